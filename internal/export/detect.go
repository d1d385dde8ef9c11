package export

import (
	"path"
	"strings"
)

// fileNameRule maps a basename to a category when every include substring is present
// and no exclude substring is.
type fileNameRule struct {
	includes []string
	excludes []string
	category Category
}

// documentKeyRule maps a top-level document key containing keySubstring to a category.
type documentKeyRule struct {
	keySubstring string
	category     Category
}

// Rules are evaluated in order and the first match wins; overlapping names such as
// "following_hashtags" and "following" depend on that order.
var fileNameRules = []fileNameRule{
	{includes: []string{"close_friends"}, category: CategoryCloseFriends},
	{includes: []string{"blocked_profiles"}, category: CategoryBlockedProfiles},
	{includes: []string{"blocked_accounts"}, category: CategoryBlockedProfiles},
	{includes: []string{"recently_unfollowed"}, category: CategoryRecentlyUnfollowed},
	{includes: []string{"follow_requests_you've_received"}, category: CategoryFollowRequestsReceived},
	{includes: []string{"follow_requests_received"}, category: CategoryFollowRequestsReceived},
	{includes: []string{"pending_follow_requests"}, category: CategoryPendingFollowRequests},
	{includes: []string{"recent_follow_requests"}, category: CategoryRecentFollowRequests},
	{includes: []string{"hide_story_from"}, category: CategoryHideStoryFrom},
	{includes: []string{"restricted_profiles"}, category: CategoryRestrictedProfiles},
	{includes: []string{"restricted_accounts"}, category: CategoryRestrictedProfiles},
	{includes: []string{"removed_suggestions"}, category: CategoryRemovedSuggestions},
	{includes: []string{"following_hashtags"}, category: CategoryFollowedHashtags},
	{includes: []string{"followed_hashtags"}, category: CategoryFollowedHashtags},
	{includes: []string{"followers"}, excludes: []string{"following"}, category: CategoryFollowers},
	{includes: []string{"following"}, excludes: []string{"follow_requests"}, category: CategoryFollowing},
}

var documentKeyRules = []documentKeyRule{
	{keySubstring: "close_friends", category: CategoryCloseFriends},
	{keySubstring: "blocked_users", category: CategoryBlockedProfiles},
	{keySubstring: "unfollowed_users", category: CategoryRecentlyUnfollowed},
	{keySubstring: "follow_requests_received", category: CategoryFollowRequestsReceived},
	{keySubstring: "follow_requests_sent", category: CategoryPendingFollowRequests},
	{keySubstring: "permanent_follow_requests", category: CategoryRecentFollowRequests},
	{keySubstring: "hide_stories_from", category: CategoryHideStoryFrom},
	{keySubstring: "restricted_users", category: CategoryRestrictedProfiles},
	{keySubstring: "dismissed_suggested_users", category: CategoryRemovedSuggestions},
	{keySubstring: "following_hashtags", category: CategoryFollowedHashtags},
	{keySubstring: "relationships_followers", category: CategoryFollowers},
	{keySubstring: "relationships_following", category: CategoryFollowing},
}

// DetectCategory identifies the canonical category of a parsed export document, first by
// its file name and then by its top-level keys. It reports false for unrecognized files.
func DetectCategory(fileName string, document any) (Category, bool) {
	if category, found := categoryForFileName(fileName); found {
		return category, true
	}
	return categoryForDocumentKeys(document)
}

func categoryForFileName(fileName string) (Category, bool) {
	baseName := strings.ToLower(path.Base(strings.ReplaceAll(fileName, `\`, "/")))
	for _, rule := range fileNameRules {
		if rule.matches(baseName) {
			return rule.category, true
		}
	}
	return "", false
}

func (rule fileNameRule) matches(baseName string) bool {
	for _, include := range rule.includes {
		if !strings.Contains(baseName, include) {
			return false
		}
	}
	for _, exclude := range rule.excludes {
		if strings.Contains(baseName, exclude) {
			return false
		}
	}
	return true
}

func categoryForDocumentKeys(document any) (Category, bool) {
	object, isObject := document.(map[string]any)
	if !isObject {
		return "", false
	}
	for _, rule := range documentKeyRules {
		for key := range object {
			if strings.Contains(strings.ToLower(key), rule.keySubstring) {
				return rule.category, true
			}
		}
	}
	return "", false
}

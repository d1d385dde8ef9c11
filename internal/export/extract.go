package export

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	stringListDataKey    = "string_list_data"
	valueKey             = "value"
	timestampKey         = "timestamp"
	hrefKey              = "href"
	titleKey             = "title"
	unknownUsernameLabel = "unknown_user"
)

// entityFieldNames lists, per category, the top-level keys that hold the record list.
// Current export names come first, legacy names after.
var entityFieldNames = map[Category][]string{
	CategoryFollowers:              {"relationships_followers", "followers"},
	CategoryFollowing:              {"relationships_following", "following"},
	CategoryCloseFriends:           {"relationships_close_friends", "close_friends"},
	CategoryBlockedProfiles:        {"relationships_blocked_users", "blocked_users", "blocked_profiles"},
	CategoryRecentlyUnfollowed:     {"relationships_unfollowed_users", "unfollowed_users", "recently_unfollowed"},
	CategoryFollowRequestsReceived: {"relationships_follow_requests_received", "follow_requests_received"},
	CategoryPendingFollowRequests:  {"relationships_follow_requests_sent", "follow_requests_sent", "pending_follow_requests"},
	CategoryRecentFollowRequests:   {"relationships_permanent_follow_requests", "permanent_follow_requests", "recent_follow_requests"},
	CategoryHideStoryFrom:          {"relationships_hide_stories_from", "hide_stories_from", "hide_story_from"},
	CategoryRestrictedProfiles:     {"relationships_restricted_users", "restricted_users", "restricted_profiles"},
	CategoryRemovedSuggestions:     {"relationships_dismissed_suggested_users", "dismissed_suggested_users", "removed_suggestions"},
}

var hashtagFieldNames = []string{"relationships_following_hashtags", "following_hashtags"}

// ExtractEntities walks a parsed document of a known category and returns its records.
// Unknown shapes yield an empty list. Usernames are unique within the result; the first
// occurrence wins.
func ExtractEntities(category Category, document any) []Entity {
	wrappers := recordWrappers(document, entityFieldNames[category])
	entities := []Entity{}
	seen := map[string]struct{}{}
	for _, wrapper := range wrappers {
		for _, triple := range wrapperTriples(wrapper) {
			entity := Entity{
				Username:   usernameForTriple(triple, wrapper),
				Timestamp:  int64ValueForKey(triple, timestampKey),
				ProfileURL: stringValueForKey(triple, hrefKey),
			}
			if _, duplicate := seen[entity.Username]; duplicate {
				continue
			}
			seen[entity.Username] = struct{}{}
			entities = append(entities, entity)
		}
	}
	return entities
}

// ExtractHashtags returns the followed hashtag names of a parsed hashtag document.
func ExtractHashtags(document any) []string {
	wrappers := recordWrappers(document, hashtagFieldNames)
	hashtags := []string{}
	seen := map[string]struct{}{}
	for _, wrapper := range wrappers {
		for _, triple := range wrapperTriples(wrapper) {
			hashtag := usernameForTriple(triple, wrapper)
			if _, duplicate := seen[hashtag]; duplicate {
				continue
			}
			seen[hashtag] = struct{}{}
			hashtags = append(hashtags, hashtag)
		}
	}
	return hashtags
}

// recordWrappers returns the list of record wrappers, either the document itself when it
// is a list or the first listed field whose value is a list.
func recordWrappers(document any, fieldNames []string) []map[string]any {
	var items []any
	switch typed := document.(type) {
	case []any:
		items = typed
	case map[string]any:
		for _, fieldName := range fieldNames {
			if list, isList := typed[fieldName].([]any); isList {
				items = list
				break
			}
		}
	}
	wrappers := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if wrapper, isObject := item.(map[string]any); isObject {
			wrappers = append(wrappers, wrapper)
		}
	}
	return wrappers
}

func wrapperTriples(wrapper map[string]any) []map[string]any {
	list, isList := wrapper[stringListDataKey].([]any)
	if !isList {
		return nil
	}
	triples := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if triple, isObject := item.(map[string]any); isObject {
			triples = append(triples, triple)
		}
	}
	return triples
}

// usernameForTriple falls back to the wrapper title and then to a fixed label, so a
// degenerate record is kept rather than dropped.
func usernameForTriple(triple map[string]any, wrapper map[string]any) string {
	if username := stringValueForKey(triple, valueKey); username != "" {
		return username
	}
	if title := stringValueForKey(wrapper, titleKey); title != "" {
		return title
	}
	return unknownUsernameLabel
}

func stringValueForKey(data map[string]any, key string) string {
	if value, ok := data[key]; ok {
		if str, isString := value.(string); isString {
			return str
		}
	}
	return ""
}

// floatToInt64 treats values outside the int64 range as absent.
func floatToInt64(value float64) int64 {
	if math.IsNaN(value) || value < math.MinInt64 || value >= math.MaxInt64 {
		return 0
	}
	return int64(value)
}

func int64ValueForKey(data map[string]any, key string) int64 {
	switch typed := data[key].(type) {
	case float64:
		return floatToInt64(typed)
	case json.Number:
		if parsed, err := typed.Int64(); err == nil {
			return parsed
		}
		if parsed, err := typed.Float64(); err == nil {
			return floatToInt64(parsed)
		}
	case string:
		if parsed, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64); err == nil {
			return parsed
		}
	}
	return 0
}

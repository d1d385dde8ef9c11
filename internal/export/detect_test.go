package export_test

import (
	"testing"

	"github.com/f-sync/socialpulse/internal/export"
)

func TestDetectCategory(t *testing.T) {
	testCases := []struct {
		name             string
		fileName         string
		document         any
		expectedCategory export.Category
		expectRecognized bool
	}{
		{
			name:             "followers part file",
			fileName:         "connections/followers_and_following/followers_1.json",
			document:         []any{},
			expectedCategory: export.CategoryFollowers,
			expectRecognized: true,
		},
		{
			name:             "following file",
			fileName:         "following.json",
			document:         map[string]any{},
			expectedCategory: export.CategoryFollowing,
			expectRecognized: true,
		},
		{
			name:             "hashtags take precedence over following",
			fileName:         "following_hashtags.json",
			document:         map[string]any{},
			expectedCategory: export.CategoryFollowedHashtags,
			expectRecognized: true,
		},
		{
			name:             "file name is case insensitive",
			fileName:         `C:\Exports\Close_Friends.JSON`,
			document:         map[string]any{},
			expectedCategory: export.CategoryCloseFriends,
			expectRecognized: true,
		},
		{
			name:             "received follow requests",
			fileName:         "follow_requests_you've_received.json",
			document:         map[string]any{},
			expectedCategory: export.CategoryFollowRequestsReceived,
			expectRecognized: true,
		},
		{
			name:             "pending follow requests",
			fileName:         "pending_follow_requests.json",
			document:         map[string]any{},
			expectedCategory: export.CategoryPendingFollowRequests,
			expectRecognized: true,
		},
		{
			name:             "document key fallback",
			fileName:         "data.json",
			document:         map[string]any{"relationships_unfollowed_users": []any{}},
			expectedCategory: export.CategoryRecentlyUnfollowed,
			expectRecognized: true,
		},
		{
			name:             "document key fallback prefers hashtags over following",
			fileName:         "data.json",
			document:         map[string]any{"relationships_following_hashtags": []any{}},
			expectedCategory: export.CategoryFollowedHashtags,
			expectRecognized: true,
		},
		{
			name:             "unrecognized file",
			fileName:         "liked_posts.json",
			document:         map[string]any{"likes_media_likes": []any{}},
			expectRecognized: false,
		},
		{
			name:             "unrecognized list document",
			fileName:         "misc.json",
			document:         []any{},
			expectRecognized: false,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			category, recognized := export.DetectCategory(testCase.fileName, testCase.document)
			if recognized != testCase.expectRecognized {
				t.Fatalf("recognized = %v, want %v", recognized, testCase.expectRecognized)
			}
			if category != testCase.expectedCategory {
				t.Fatalf("category = %q, want %q", category, testCase.expectedCategory)
			}
		})
	}
}

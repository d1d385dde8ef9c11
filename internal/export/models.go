package export

// Category identifies one canonical relationship list.
type Category string

const (
	CategoryFollowers              Category = "followers"
	CategoryFollowing              Category = "following"
	CategoryCloseFriends           Category = "closeFriends"
	CategoryBlockedProfiles        Category = "blockedProfiles"
	CategoryRecentlyUnfollowed     Category = "recentlyUnfollowed"
	CategoryFollowRequestsReceived Category = "followRequestsReceived"
	CategoryPendingFollowRequests  Category = "pendingFollowRequests"
	CategoryRecentFollowRequests   Category = "recentFollowRequests"
	CategoryHideStoryFrom          Category = "hideStoryFrom"
	CategoryRestrictedProfiles     Category = "restrictedProfiles"
	CategoryRemovedSuggestions     Category = "removedSuggestions"
	CategoryFollowedHashtags       Category = "followedHashtags"
)

// Categories lists every canonical category in canonical order.
var Categories = []Category{
	CategoryFollowers,
	CategoryFollowing,
	CategoryCloseFriends,
	CategoryBlockedProfiles,
	CategoryRecentlyUnfollowed,
	CategoryFollowRequestsReceived,
	CategoryPendingFollowRequests,
	CategoryRecentFollowRequests,
	CategoryHideStoryFrom,
	CategoryRestrictedProfiles,
	CategoryRemovedSuggestions,
	CategoryFollowedHashtags,
}

// Entity is a single relationship record. A zero Timestamp means the export carried none.
type Entity struct {
	Username   string `json:"username"`
	Timestamp  int64  `json:"timestamp,omitempty"`
	ProfileURL string `json:"profileUrl,omitempty"`
}

// InputFile is one decoded export document before normalization.
type InputFile struct {
	FileName string
	RawText  string
}

// CanonicalSet holds the relationship lists of one export. Lists are never nil once
// produced by NewCanonicalSet or the Normalizer.
type CanonicalSet struct {
	Followers              []Entity `json:"followers"`
	Following              []Entity `json:"following"`
	CloseFriends           []Entity `json:"closeFriends"`
	BlockedProfiles        []Entity `json:"blockedProfiles"`
	RecentlyUnfollowed     []Entity `json:"recentlyUnfollowed"`
	FollowRequestsReceived []Entity `json:"followRequestsReceived"`
	PendingFollowRequests  []Entity `json:"pendingFollowRequests"`
	RecentFollowRequests   []Entity `json:"recentFollowRequests"`
	HideStoryFrom          []Entity `json:"hideStoryFrom"`
	RestrictedProfiles     []Entity `json:"restrictedProfiles"`
	RemovedSuggestions     []Entity `json:"removedSuggestions"`
	FollowedHashtags       []string `json:"followedHashtags"`
}

// NewCanonicalSet returns a set with every list initialized to empty.
func NewCanonicalSet() CanonicalSet {
	return CanonicalSet{}.Normalized()
}

// Normalized returns a copy of the set in which absent lists are replaced by empty ones.
func (set CanonicalSet) Normalized() CanonicalSet {
	for _, category := range Categories {
		if category == CategoryFollowedHashtags {
			if set.FollowedHashtags == nil {
				set.FollowedHashtags = []string{}
			}
			continue
		}
		list := set.entityList(category)
		if *list == nil {
			*list = []Entity{}
		}
	}
	return set
}

// Entities returns the entity list stored for category. Hashtags are not entities and yield nil.
func (set CanonicalSet) Entities(category Category) []Entity {
	list := set.entityList(category)
	if list == nil {
		return nil
	}
	return *list
}

// SetEntities overwrites the entity list stored for category.
func (set *CanonicalSet) SetEntities(category Category, entities []Entity) {
	if list := set.entityList(category); list != nil {
		*list = entities
	}
}

// Count reports the number of records stored for category.
func (set CanonicalSet) Count(category Category) int {
	if category == CategoryFollowedHashtags {
		return len(set.FollowedHashtags)
	}
	return len(set.Entities(category))
}

// PopulatedCategories returns the categories holding at least one record, in canonical order.
func (set CanonicalSet) PopulatedCategories() []Category {
	populated := []Category{}
	for _, category := range Categories {
		if set.Count(category) > 0 {
			populated = append(populated, category)
		}
	}
	return populated
}

func (set *CanonicalSet) entityList(category Category) *[]Entity {
	switch category {
	case CategoryFollowers:
		return &set.Followers
	case CategoryFollowing:
		return &set.Following
	case CategoryCloseFriends:
		return &set.CloseFriends
	case CategoryBlockedProfiles:
		return &set.BlockedProfiles
	case CategoryRecentlyUnfollowed:
		return &set.RecentlyUnfollowed
	case CategoryFollowRequestsReceived:
		return &set.FollowRequestsReceived
	case CategoryPendingFollowRequests:
		return &set.PendingFollowRequests
	case CategoryRecentFollowRequests:
		return &set.RecentFollowRequests
	case CategoryHideStoryFrom:
		return &set.HideStoryFrom
	case CategoryRestrictedProfiles:
		return &set.RestrictedProfiles
	case CategoryRemovedSuggestions:
		return &set.RemovedSuggestions
	default:
		return nil
	}
}

package analysis

// usernameSet indexes entities by username.
type usernameSet map[string]struct{}

func newUsernameSet(entityLists ...[]Entity) usernameSet {
	set := usernameSet{}
	for _, entities := range entityLists {
		for _, entity := range entities {
			set[entity.Username] = struct{}{}
		}
	}
	return set
}

func (set usernameSet) contains(username string) bool {
	_, exists := set[username]
	return exists
}

// intersect keeps the entities of source whose username is in set, preserving source order.
func intersect(source []Entity, set usernameSet) []Entity {
	kept := []Entity{}
	for _, entity := range source {
		if set.contains(entity.Username) {
			kept = append(kept, entity)
		}
	}
	return kept
}

// subtract keeps the entities of source whose username is not in set, preserving source order.
func subtract(source []Entity, set usernameSet) []Entity {
	kept := []Entity{}
	for _, entity := range source {
		if !set.contains(entity.Username) {
			kept = append(kept, entity)
		}
	}
	return kept
}

func copyEntities(source []Entity) []Entity {
	copied := make([]Entity, len(source))
	copy(copied, source)
	return copied
}

func computeStats(canonicalSet CanonicalSet) Stats {
	followersSet := newUsernameSet(canonicalSet.Followers)
	followingSet := newUsernameSet(canonicalSet.Following)

	stats := Stats{
		TotalFollowers:        len(canonicalSet.Followers),
		TotalFollowing:        len(canonicalSet.Following),
		MutualCount:           len(intersect(canonicalSet.Followers, followingSet)),
		NotFollowingBackCount: len(subtract(canonicalSet.Following, followersSet)),
		NotFollowedBackCount:  len(subtract(canonicalSet.Followers, followingSet)),
		CloseFriendsCount:     len(canonicalSet.CloseFriends),
		BlockedCount:          len(canonicalSet.BlockedProfiles),
		RestrictedCount:       len(canonicalSet.RestrictedProfiles),
		HideStoryCount:        len(canonicalSet.HideStoryFrom),
	}
	if stats.TotalFollowers > 0 {
		stats.EngagementRatio = float64(stats.MutualCount) / float64(stats.TotalFollowers) * 100
	}
	if stats.TotalFollowing > 0 {
		stats.FollowRatio = float64(stats.TotalFollowers) / float64(stats.TotalFollowing)
	}
	return stats
}

// classifyRelationships derives every partition except Suspicious.
func classifyRelationships(canonicalSet CanonicalSet) Relationships {
	followersSet := newUsernameSet(canonicalSet.Followers)
	followingSet := newUsernameSet(canonicalSet.Following)
	closeFriendsSet := newUsernameSet(canonicalSet.CloseFriends)

	mutual := intersect(canonicalSet.Followers, followingSet)

	stalkers := make([]Entity, 0, len(canonicalSet.FollowRequestsReceived)+len(canonicalSet.PendingFollowRequests))
	stalkers = append(stalkers, canonicalSet.FollowRequestsReceived...)
	stalkers = append(stalkers, canonicalSet.PendingFollowRequests...)

	return Relationships{
		Mutual:           mutual,
		NotFollowingBack: subtract(canonicalSet.Following, followersSet),
		NotFollowedBack:  subtract(canonicalSet.Followers, followingSet),
		VIPs:             intersect(mutual, closeFriendsSet),
		RedFlags:         subtract(canonicalSet.CloseFriends, followersSet),
		Ghosts:           copyEntities(canonicalSet.RecentlyUnfollowed),
		Stalkers:         stalkers,
		Suspicious:       []SuspectedBlock{},
	}
}

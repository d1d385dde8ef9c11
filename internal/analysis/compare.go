package analysis

import (
	"fmt"
	"sort"
	"time"
)

// TimelineEventType names a kind of relationship change.
type TimelineEventType string

const (
	TimelineEventFollow   TimelineEventType = "follow"
	TimelineEventUnfollow TimelineEventType = "unfollow"
	TimelineEventBlock    TimelineEventType = "block"
)

const (
	followDescriptionFormat   = "%s started following you"
	unfollowDescriptionFormat = "%s stopped following you"
	blockDescriptionFormat    = "%s may have blocked you"
)

// TimelineEvent is one dated relationship change between two snapshots.
type TimelineEvent struct {
	Type        TimelineEventType `json:"type"`
	Entity      Entity            `json:"user"`
	Description string            `json:"description"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Comparison describes how relationships changed between two snapshots.
type Comparison struct {
	PreviousID          string          `json:"previousId"`
	CurrentID           string          `json:"currentId"`
	PreviousTimestamp   time.Time       `json:"previousTimestamp"`
	CurrentTimestamp    time.Time       `json:"currentTimestamp"`
	NewFollowers        []Entity        `json:"newFollowers"`
	LostFollowers       []Entity        `json:"lostFollowers"`
	NewMutuals          []Entity        `json:"newMutuals"`
	LostMutuals         []Entity        `json:"lostMutuals"`
	NewCloseFriends     []Entity        `json:"newCloseFriends"`
	RemovedCloseFriends []Entity        `json:"removedCloseFriends"`
	NewBlocks           []Entity        `json:"newBlocks"`
	NewRestrictions     []Entity        `json:"newRestrictions"`
	PossibleBlocks      []Entity        `json:"possibleBlocks"`
	Timeline            []TimelineEvent `json:"timeline"`
}

// Compare diffs two snapshots by username. Neither snapshot is modified.
func Compare(previous Snapshot, current Snapshot) Comparison {
	previousSet := previous.Analysis.CanonicalSet
	currentSet := current.Analysis.CanonicalSet
	previousRelationships := previous.Analysis.Relationships
	currentRelationships := current.Analysis.Relationships

	lostFollowers := subtract(previousSet.Followers, newUsernameSet(currentSet.Followers))
	comparison := Comparison{
		PreviousID:          previous.ID,
		CurrentID:           current.ID,
		PreviousTimestamp:   previous.Timestamp,
		CurrentTimestamp:    current.Timestamp,
		NewFollowers:        subtract(currentSet.Followers, newUsernameSet(previousSet.Followers)),
		LostFollowers:       lostFollowers,
		NewMutuals:          subtract(currentRelationships.Mutual, newUsernameSet(previousRelationships.Mutual)),
		LostMutuals:         subtract(previousRelationships.Mutual, newUsernameSet(currentRelationships.Mutual)),
		NewCloseFriends:     subtract(currentSet.CloseFriends, newUsernameSet(previousSet.CloseFriends)),
		RemovedCloseFriends: subtract(previousSet.CloseFriends, newUsernameSet(currentSet.CloseFriends)),
		NewBlocks:           subtract(currentSet.BlockedProfiles, newUsernameSet(previousSet.BlockedProfiles)),
		NewRestrictions:     subtract(currentSet.RestrictedProfiles, newUsernameSet(previousSet.RestrictedProfiles)),
		PossibleBlocks:      subtract(lostFollowers, newUsernameSet(previousSet.RecentlyUnfollowed)),
	}
	comparison.Timeline = buildTimeline(comparison, current.Timestamp)
	return comparison
}

// buildTimeline orders events most recent first. Follows carry the follower's own
// timestamp when the export has one; losses are dated to the observing snapshot.
func buildTimeline(comparison Comparison, observedAt time.Time) []TimelineEvent {
	timeline := make([]TimelineEvent, 0,
		len(comparison.NewFollowers)+len(comparison.LostFollowers)+len(comparison.PossibleBlocks))
	for _, entity := range comparison.NewFollowers {
		eventTime := observedAt
		if entity.Timestamp > 0 {
			eventTime = time.Unix(entity.Timestamp, 0).UTC()
		}
		timeline = append(timeline, TimelineEvent{
			Type:        TimelineEventFollow,
			Entity:      entity,
			Description: fmt.Sprintf(followDescriptionFormat, entity.Username),
			Timestamp:   eventTime,
		})
	}
	for _, entity := range comparison.LostFollowers {
		timeline = append(timeline, TimelineEvent{
			Type:        TimelineEventUnfollow,
			Entity:      entity,
			Description: fmt.Sprintf(unfollowDescriptionFormat, entity.Username),
			Timestamp:   observedAt,
		})
	}
	for _, entity := range comparison.PossibleBlocks {
		timeline = append(timeline, TimelineEvent{
			Type:        TimelineEventBlock,
			Entity:      entity,
			Description: fmt.Sprintf(blockDescriptionFormat, entity.Username),
			Timestamp:   observedAt,
		})
	}
	sort.SliceStable(timeline, func(firstIndex, secondIndex int) bool {
		return timeline[firstIndex].Timestamp.After(timeline[secondIndex].Timestamp)
	})
	return timeline
}

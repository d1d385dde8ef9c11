package analysis

import "time"

// BlockSuspicionThreshold is the minimum accumulated score that marks an account as suspicious.
const BlockSuspicionThreshold = 60

const staleFollowAge = 180 * 24 * time.Hour

const (
	SignalNoUnfollowRecord = "no_unfollow_record"
	SignalPendingRequest   = "pending_request"
	SignalPreviouslyMutual = "previously_mutual"
	SignalVanishedFollower = "vanished_follower"
	SignalStaleFollow      = "stale_follow"
)

const (
	weightNoUnfollowRecord = 40
	weightPendingRequest   = 30
	weightPreviouslyMutual = 50
	weightVanishedFollower = 60
	weightStaleFollow      = 20
)

// blockEvidence gathers the lookups the block signals are evaluated against.
type blockEvidence struct {
	recentlyUnfollowed usernameSet
	requests           usernameSet
	previousMutual     usernameSet
	previousFollowers  usernameSet
	now                time.Time
}

// blockSignal is one weighted rule of the block heuristic.
type blockSignal struct {
	name    string
	weight  int
	applies func(evidence blockEvidence, entity Entity) bool
}

var blockSignals = []blockSignal{
	{
		name:   SignalNoUnfollowRecord,
		weight: weightNoUnfollowRecord,
		applies: func(evidence blockEvidence, entity Entity) bool {
			return !evidence.recentlyUnfollowed.contains(entity.Username)
		},
	},
	{
		name:   SignalPendingRequest,
		weight: weightPendingRequest,
		applies: func(evidence blockEvidence, entity Entity) bool {
			return evidence.requests.contains(entity.Username)
		},
	},
	{
		name:   SignalPreviouslyMutual,
		weight: weightPreviouslyMutual,
		applies: func(evidence blockEvidence, entity Entity) bool {
			return evidence.previousMutual.contains(entity.Username)
		},
	},
	{
		name:   SignalVanishedFollower,
		weight: weightVanishedFollower,
		applies: func(evidence blockEvidence, entity Entity) bool {
			return evidence.previousFollowers.contains(entity.Username) && !evidence.recentlyUnfollowed.contains(entity.Username)
		},
	},
	{
		name:   SignalStaleFollow,
		weight: weightStaleFollow,
		applies: func(evidence blockEvidence, entity Entity) bool {
			return entity.Timestamp > 0 && evidence.now.Sub(time.Unix(entity.Timestamp, 0)) > staleFollowAge
		},
	},
}

func newBlockEvidence(canonicalSet CanonicalSet, previous Snapshot, now time.Time) blockEvidence {
	return blockEvidence{
		recentlyUnfollowed: newUsernameSet(canonicalSet.RecentlyUnfollowed),
		requests:           newUsernameSet(canonicalSet.FollowRequestsReceived, canonicalSet.PendingFollowRequests),
		previousMutual:     newUsernameSet(previous.Analysis.Relationships.Mutual),
		previousFollowers:  newUsernameSet(previous.Analysis.CanonicalSet.Followers),
		now:                now,
	}
}

// scoreBlock folds the signals into a probability score and the names of those that fired.
func scoreBlock(evidence blockEvidence, entity Entity) (int, []string) {
	score := 0
	fired := []string{}
	for _, signal := range blockSignals {
		if signal.applies(evidence, entity) {
			score += signal.weight
			fired = append(fired, signal.name)
		}
	}
	return score, fired
}

func meetsBlockThreshold(score int) bool {
	return score >= BlockSuspicionThreshold
}

// detectBlocks scores every account the owner follows that does not follow back. The
// result is a heuristic hypothesis, not a verified block list.
func detectBlocks(notFollowingBack []Entity, evidence blockEvidence) []SuspectedBlock {
	suspicious := []SuspectedBlock{}
	for _, entity := range notFollowingBack {
		score, fired := scoreBlock(evidence, entity)
		if !meetsBlockThreshold(score) {
			continue
		}
		suspicious = append(suspicious, SuspectedBlock{Entity: entity, BlockProbability: score, Signals: fired})
	}
	return suspicious
}

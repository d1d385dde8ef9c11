// Package analysis derives relationship partitions, block hypotheses, social health
// scores and snapshot comparisons from a normalized export.
//
// Every function in this package is pure with respect to its inputs: the Analyzer reads
// the canonical set and an optional previous snapshot and never mutates either.
package analysis

import (
	"sort"
	"time"

	"github.com/f-sync/socialpulse/internal/export"
)

// SchemaVersion tags the layout of persisted analyses.
const SchemaVersion = "2.0"

const recentFollowerWindow = 30 * 24 * time.Hour

// Clock returns the current time.
type Clock func() time.Time

// Analyzer produces analyses. The zero value is not usable; call NewAnalyzer.
type Analyzer struct {
	now Clock
}

// NewAnalyzer constructs an Analyzer. A nil clock defaults to time.Now.
func NewAnalyzer(clock Clock) *Analyzer {
	if clock == nil {
		clock = time.Now
	}
	return &Analyzer{now: clock}
}

// Analyze derives a full analysis. Block detection and trend insights run only when a
// previous snapshot is supplied; gating that choice is the caller's responsibility.
func (analyzer *Analyzer) Analyze(canonicalSet CanonicalSet, previous *Snapshot) Analysis {
	return analyzer.analyze(canonicalSet, previous, true)
}

// AnalyzeTrends is Analyze without block detection: trend insights use previous and
// suspicious stays empty.
func (analyzer *Analyzer) AnalyzeTrends(canonicalSet CanonicalSet, previous *Snapshot) Analysis {
	return analyzer.analyze(canonicalSet, previous, false)
}

func (analyzer *Analyzer) analyze(canonicalSet CanonicalSet, previous *Snapshot, withBlockDetection bool) Analysis {
	now := analyzer.now()
	canonicalSet = canonicalSet.Normalized()

	stats := computeStats(canonicalSet)
	relationships := classifyRelationships(canonicalSet)
	if previous != nil && withBlockDetection {
		evidence := newBlockEvidence(canonicalSet, *previous, now)
		relationships.Suspicious = detectBlocks(relationships.NotFollowingBack, evidence)
	}
	health := computeSocialHealth(stats, relationships, canonicalSet)

	return Analysis{
		Stats:         stats,
		Relationships: relationships,
		SocialHealth:  health,
		Insights:      buildInsights(stats, health, canonicalSet, previous, now),
		Metadata: Metadata{
			AnalyzedAt:     now.UTC(),
			Version:        SchemaVersion,
			DataCategories: canonicalSet.PopulatedCategories(),
		},
		CanonicalSet: canonicalSet,
	}
}

func buildInsights(stats Stats, health SocialHealth, canonicalSet CanonicalSet, previous *Snapshot, now time.Time) Insights {
	insights := Insights{
		RecentFollowers:      recentFollowers(canonicalSet.Followers, now),
		FollowedHashtagCount: len(canonicalSet.FollowedHashtags),
	}
	if previous == nil {
		return insights
	}
	previousStats := previous.Analysis.Stats
	insights.HasPrevious = true
	insights.FollowerChange = stats.TotalFollowers - previousStats.TotalFollowers
	insights.FollowingChange = stats.TotalFollowing - previousStats.TotalFollowing
	insights.MutualChange = stats.MutualCount - previousStats.MutualCount
	insights.HealthScoreChange = health.OverallScore - previous.Analysis.SocialHealth.OverallScore
	return insights
}

// recentFollowers returns followers whose timestamp falls inside the recent window, newest first.
func recentFollowers(followers []Entity, now time.Time) []Entity {
	cutoff := now.Add(-recentFollowerWindow).Unix()
	recent := []Entity{}
	for _, follower := range followers {
		if follower.Timestamp > 0 && follower.Timestamp >= cutoff {
			recent = append(recent, follower)
		}
	}
	sort.SliceStable(recent, func(firstIndex, secondIndex int) bool {
		return recent[firstIndex].Timestamp > recent[secondIndex].Timestamp
	})
	return recent
}

// HasRelationshipData reports whether an analysis was built from any recognized category.
func (result Analysis) HasRelationshipData() bool {
	for _, category := range result.Metadata.DataCategories {
		if category != export.CategoryFollowedHashtags {
			return true
		}
	}
	return false
}

package analysis

import (
	"encoding/json"
	"time"

	"github.com/f-sync/socialpulse/internal/export"
)

// Entity represents a single relationship record.
type Entity = export.Entity

// CanonicalSet is the normalized relationship data the analysis is derived from.
type CanonicalSet = export.CanonicalSet

// Stats holds counters derived from list sizes and intersections.
type Stats struct {
	TotalFollowers        int     `json:"totalFollowers"`
	TotalFollowing        int     `json:"totalFollowing"`
	MutualCount           int     `json:"mutualCount"`
	NotFollowingBackCount int     `json:"notFollowingBackCount"`
	NotFollowedBackCount  int     `json:"notFollowedBackCount"`
	EngagementRatio       float64 `json:"engagementRatio"`
	FollowRatio           float64 `json:"followRatio"`
	CloseFriendsCount     int     `json:"closeFriendsCount"`
	BlockedCount          int     `json:"blockedCount"`
	RestrictedCount       int     `json:"restrictedCount"`
	HideStoryCount        int     `json:"hideStoryCount"`
}

// SuspectedBlock is an account hypothesized to have blocked the owner.
type SuspectedBlock struct {
	Entity
	BlockProbability int      `json:"blockProbability"`
	Signals          []string `json:"signals"`
}

// Relationships holds the derived relationship partitions. Fans and Crushes are views
// over NotFollowedBack and NotFollowingBack rather than separate state.
type Relationships struct {
	Mutual           []Entity
	NotFollowingBack []Entity
	NotFollowedBack  []Entity
	VIPs             []Entity
	RedFlags         []Entity
	Ghosts           []Entity
	Stalkers         []Entity
	Suspicious       []SuspectedBlock
}

// Fans returns the followers the owner does not follow back.
func (relationships Relationships) Fans() []Entity {
	return relationships.NotFollowedBack
}

// Crushes returns the accounts the owner follows that do not follow back.
func (relationships Relationships) Crushes() []Entity {
	return relationships.NotFollowingBack
}

type relationshipsDocument struct {
	Mutual           []Entity         `json:"mutual"`
	NotFollowingBack []Entity         `json:"notFollowingBack"`
	NotFollowedBack  []Entity         `json:"notFollowedBack"`
	VIPs             []Entity         `json:"vips"`
	RedFlags         []Entity         `json:"redFlags"`
	Fans             []Entity         `json:"fans"`
	Crushes          []Entity         `json:"crushes"`
	Ghosts           []Entity         `json:"ghosts"`
	Stalkers         []Entity         `json:"stalkers"`
	Suspicious       []SuspectedBlock `json:"suspicious"`
}

// MarshalJSON emits the alias views alongside the partitions they mirror.
func (relationships Relationships) MarshalJSON() ([]byte, error) {
	return json.Marshal(relationshipsDocument{
		Mutual:           relationships.Mutual,
		NotFollowingBack: relationships.NotFollowingBack,
		NotFollowedBack:  relationships.NotFollowedBack,
		VIPs:             relationships.VIPs,
		RedFlags:         relationships.RedFlags,
		Fans:             relationships.Fans(),
		Crushes:          relationships.Crushes(),
		Ghosts:           relationships.Ghosts,
		Stalkers:         relationships.Stalkers,
		Suspicious:       relationships.Suspicious,
	})
}

// UnmarshalJSON restores the partitions; persisted alias views are ignored.
func (relationships *Relationships) UnmarshalJSON(data []byte) error {
	var document relationshipsDocument
	if err := json.Unmarshal(data, &document); err != nil {
		return err
	}
	*relationships = Relationships{
		Mutual:           document.Mutual,
		NotFollowingBack: document.NotFollowingBack,
		NotFollowedBack:  document.NotFollowedBack,
		VIPs:             document.VIPs,
		RedFlags:         document.RedFlags,
		Ghosts:           document.Ghosts,
		Stalkers:         document.Stalkers,
		Suspicious:       document.Suspicious,
	}
	return nil
}

// AlertType classifies the tone of an alert.
type AlertType string

const (
	AlertTypeDanger  AlertType = "danger"
	AlertTypeWarning AlertType = "warning"
	AlertTypeSuccess AlertType = "success"
	AlertTypeInfo    AlertType = "info"
)

// Alert is a prioritized notice. Priority 1 is the most urgent.
type Alert struct {
	Type     AlertType `json:"type"`
	Title    string    `json:"title"`
	Message  string    `json:"message"`
	Category string    `json:"category"`
	Priority int       `json:"priority"`
}

// SocialHealth is the composite score model.
type SocialHealth struct {
	OverallScore     float64  `json:"overallScore"`
	ReciprocityScore float64  `json:"reciprocityScore"`
	PrivacyScore     float64  `json:"privacyScore"`
	EngagementScore  float64  `json:"engagementScore"`
	QualityScore     float64  `json:"qualityScore"`
	Recommendations  []string `json:"recommendations"`
	Alerts           []Alert  `json:"alerts"`
}

// Insights carries trend fields. Change fields stay zero without a previous snapshot.
type Insights struct {
	HasPrevious          bool     `json:"hasPrevious"`
	FollowerChange       int      `json:"followerChange"`
	FollowingChange      int      `json:"followingChange"`
	MutualChange         int      `json:"mutualChange"`
	HealthScoreChange    float64  `json:"healthScoreChange"`
	RecentFollowers      []Entity `json:"recentFollowers"`
	FollowedHashtagCount int      `json:"followedHashtagCount"`
}

// Metadata describes how and when an analysis was produced.
type Metadata struct {
	AnalyzedAt     time.Time         `json:"analyzedAt"`
	Version        string            `json:"version"`
	DataCategories []export.Category `json:"dataCategories"`
}

// Analysis is the immutable result of one analyzer run.
type Analysis struct {
	Stats         Stats         `json:"stats"`
	Relationships Relationships `json:"relationships"`
	SocialHealth  SocialHealth  `json:"socialHealth"`
	Insights      Insights      `json:"insights"`
	Metadata      Metadata      `json:"metadata"`
	CanonicalSet  CanonicalSet  `json:"canonicalSet"`
}

// Snapshot pairs an analysis with its persistence identity.
type Snapshot struct {
	ID        string    `json:"id"`
	Analysis  Analysis  `json:"analysis"`
	Timestamp time.Time `json:"timestamp"`
	Label     string    `json:"label,omitempty"`
}

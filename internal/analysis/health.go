package analysis

import (
	"fmt"
	"math"
	"sort"
)

const (
	reciprocityWeight = 0.3
	privacyWeight     = 0.2
	engagementWeight  = 0.3
	qualityWeight     = 0.2

	maxScore = 100.0

	blockedPrivacyPenalty    = 2.0
	restrictedPrivacyPenalty = 1.5
	hideStoryPrivacyPenalty  = 1.0

	vipQualityBonus       = 10
	mutualQualityBonus    = 2
	redFlagQualityPenalty = 5
	ghostQualityPenalty   = 3

	notFollowingBackRecommendationLimit = 50
	lowReciprocityLimit                 = 30.0
	followingImbalanceFactor            = 2
	ghostRecommendationLimit            = 10
	ghostAlertLimit                     = 20
	followingAlertFactor                = 1.5
)

const (
	alertCategoryNotFollowingBack = "notFollowingBack"
	alertCategorySuspicious       = "suspicious"
	alertCategoryRedFlags         = "redFlags"
	alertCategoryGhosts           = "ghosts"
	alertCategoryRatio            = "ratio"
	alertCategoryVIPs             = "vips"
	alertCategoryRequests         = "requests"
)

// computeSocialHealth scores the analysis. Alerts are sorted by ascending priority.
func computeSocialHealth(stats Stats, relationships Relationships, canonicalSet CanonicalSet) SocialHealth {
	health := SocialHealth{
		ReciprocityScore: reciprocityScore(stats),
		PrivacyScore:     privacyScore(stats),
		EngagementScore:  stats.EngagementRatio,
		QualityScore:     qualityScore(stats, relationships),
	}
	health.OverallScore = health.ReciprocityScore*reciprocityWeight +
		health.PrivacyScore*privacyWeight +
		health.EngagementScore*engagementWeight +
		health.QualityScore*qualityWeight
	health.Recommendations = buildRecommendations(stats, relationships, health)
	health.Alerts = buildAlerts(stats, relationships, canonicalSet)
	return health
}

func reciprocityScore(stats Stats) float64 {
	denominator := math.Max(float64(stats.TotalFollowing), 1)
	return math.Min(maxScore, float64(stats.MutualCount)/denominator*100)
}

func privacyScore(stats Stats) float64 {
	penalty := float64(stats.BlockedCount)*blockedPrivacyPenalty +
		float64(stats.RestrictedCount)*restrictedPrivacyPenalty +
		float64(stats.HideStoryCount)*hideStoryPrivacyPenalty
	return math.Max(0, maxScore-penalty)
}

// qualityScore is capped at 100 but has no lower bound.
func qualityScore(stats Stats, relationships Relationships) float64 {
	raw := len(relationships.VIPs)*vipQualityBonus +
		stats.MutualCount*mutualQualityBonus -
		len(relationships.RedFlags)*redFlagQualityPenalty -
		len(relationships.Ghosts)*ghostQualityPenalty
	return math.Min(maxScore, float64(raw))
}

func buildRecommendations(stats Stats, relationships Relationships, health SocialHealth) []string {
	recommendations := []string{}
	if stats.NotFollowingBackCount > notFollowingBackRecommendationLimit {
		recommendations = append(recommendations, fmt.Sprintf(
			"You follow %d accounts that do not follow you back. Consider reviewing them.", stats.NotFollowingBackCount))
	}
	if health.ReciprocityScore < lowReciprocityLimit {
		recommendations = append(recommendations,
			"Your reciprocity is low. Engage more with people who follow you back.")
	}
	if len(relationships.RedFlags) > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"%d close friends do not follow you. Review your close friends list.", len(relationships.RedFlags)))
	}
	if stats.TotalFollowing > stats.TotalFollowers*followingImbalanceFactor {
		recommendations = append(recommendations,
			"You follow more than twice as many accounts as follow you. Consider unfollowing inactive accounts.")
	}
	if len(relationships.Ghosts) > ghostRecommendationLimit {
		recommendations = append(recommendations,
			"You recently unfollowed many accounts. Make sure your audience still matches your interests.")
	}
	if len(relationships.Suspicious) > 0 {
		recommendations = append(recommendations, fmt.Sprintf(
			"%d accounts may have blocked you. This is an estimate; check their profiles before acting.", len(relationships.Suspicious)))
	}
	return recommendations
}

func buildAlerts(stats Stats, relationships Relationships, canonicalSet CanonicalSet) []Alert {
	alerts := []Alert{}
	if stats.NotFollowingBackCount > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertTypeDanger,
			Title:    "Not following back",
			Message:  fmt.Sprintf("%d accounts you follow do not follow you back.", stats.NotFollowingBackCount),
			Category: alertCategoryNotFollowingBack,
			Priority: 1,
		})
	}
	if len(relationships.Suspicious) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertTypeWarning,
			Title:    "Possible blocks",
			Message:  fmt.Sprintf("%d accounts may have blocked you.", len(relationships.Suspicious)),
			Category: alertCategorySuspicious,
			Priority: 2,
		})
	}
	if len(relationships.RedFlags) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertTypeDanger,
			Title:    "Close friends not following you",
			Message:  fmt.Sprintf("%d close friends do not follow you back.", len(relationships.RedFlags)),
			Category: alertCategoryRedFlags,
			Priority: 3,
		})
	}
	if len(canonicalSet.RecentlyUnfollowed) > ghostAlertLimit {
		alerts = append(alerts, Alert{
			Type:     AlertTypeWarning,
			Title:    "Many recent unfollows",
			Message:  fmt.Sprintf("You unfollowed %d accounts recently.", len(canonicalSet.RecentlyUnfollowed)),
			Category: alertCategoryGhosts,
			Priority: 4,
		})
	}
	if float64(stats.TotalFollowing) > float64(stats.TotalFollowers)*followingAlertFactor {
		alerts = append(alerts, Alert{
			Type:     AlertTypeWarning,
			Title:    "Unbalanced ratio",
			Message:  fmt.Sprintf("You follow %d accounts but only %d follow you.", stats.TotalFollowing, stats.TotalFollowers),
			Category: alertCategoryRatio,
			Priority: 5,
		})
	}
	if len(relationships.VIPs) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertTypeSuccess,
			Title:    "VIP connections",
			Message:  fmt.Sprintf("%d close friends follow each other with you.", len(relationships.VIPs)),
			Category: alertCategoryVIPs,
			Priority: 6,
		})
	}
	if len(canonicalSet.FollowRequestsReceived) > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertTypeInfo,
			Title:    "Pending follow requests",
			Message:  fmt.Sprintf("%d follow requests are waiting for you.", len(canonicalSet.FollowRequestsReceived)),
			Category: alertCategoryRequests,
			Priority: 7,
		})
	}
	sort.SliceStable(alerts, func(firstIndex, secondIndex int) bool {
		return alerts[firstIndex].Priority < alerts[secondIndex].Priority
	})
	return alerts
}

// Package features decides which optional analysis paths the caller may run.
package features

import (
	"errors"
	"fmt"
	"strings"
)

// Feature keys consulted by the server, the CLI and the watch service.
const (
	BlockDetection       = "block_detection"
	HistoricalComparison = "historical_comparison"
	AlertNotifications   = "alert_notifications"
)

// Tier names.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

const errMessageUnknownFeature = "unknown feature key"

var (
	// ErrFeatureDisabled is returned by Require when a feature is gated off.
	ErrFeatureDisabled = errors.New("feature disabled")
	// ErrUnknownTier is returned for tier names other than free and premium.
	ErrUnknownTier = errors.New("unknown tier")
)

// Keys lists every known feature key in a stable order.
var Keys = []string{BlockDetection, HistoricalComparison, AlertNotifications}

// Gate answers whether a feature may be used.
type Gate interface {
	CanUseFeature(featureKey string) bool
}

// Settings configures a TierGate.
type Settings struct {
	Tier    string
	Enable  []string
	Disable []string
}

// TierGate enables every feature for the premium tier and none for the free tier.
// Explicit enable and disable lists override the tier; disable wins over enable.
type TierGate struct {
	enabled map[string]bool
}

// NewTierGate validates the settings and builds the gate.
func NewTierGate(settings Settings) (*TierGate, error) {
	tier := strings.ToLower(strings.TrimSpace(settings.Tier))
	if tier == "" {
		tier = TierFree
	}
	if tier != TierFree && tier != TierPremium {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTier, settings.Tier)
	}

	enabled := make(map[string]bool, len(Keys))
	for _, key := range Keys {
		enabled[key] = tier == TierPremium
	}
	for _, key := range settings.Enable {
		if err := validateKey(key); err != nil {
			return nil, err
		}
		enabled[key] = true
	}
	for _, key := range settings.Disable {
		if err := validateKey(key); err != nil {
			return nil, err
		}
		enabled[key] = false
	}
	return &TierGate{enabled: enabled}, nil
}

// CanUseFeature reports whether featureKey is enabled. Unknown keys are disabled.
func (gate *TierGate) CanUseFeature(featureKey string) bool {
	return gate.enabled[featureKey]
}

// StaticGate enables exactly the listed features.
type StaticGate map[string]bool

// CanUseFeature reports whether featureKey is enabled.
func (gate StaticGate) CanUseFeature(featureKey string) bool {
	return gate[featureKey]
}

// Require returns ErrFeatureDisabled wrapped with the key when the gate refuses it.
func Require(gate Gate, featureKey string) error {
	if gate.CanUseFeature(featureKey) {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrFeatureDisabled, featureKey)
}

// Snapshot reports the state of every known key.
func Snapshot(gate Gate) map[string]bool {
	states := make(map[string]bool, len(Keys))
	for _, key := range Keys {
		states[key] = gate.CanUseFeature(key)
	}
	return states
}

func validateKey(key string) error {
	for _, known := range Keys {
		if key == known {
			return nil
		}
	}
	return fmt.Errorf("%s: %s", errMessageUnknownFeature, key)
}

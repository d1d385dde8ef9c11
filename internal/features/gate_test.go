package features_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/f-sync/socialpulse/internal/features"
)

func TestNewTierGate(t *testing.T) {
	testCases := []struct {
		name          string
		settings      features.Settings
		expected      map[string]bool
		expectedError error
		expectError   bool
	}{
		{
			name:     "default tier is free",
			settings: features.Settings{},
			expected: map[string]bool{
				features.BlockDetection:       false,
				features.HistoricalComparison: false,
				features.AlertNotifications:   false,
			},
		},
		{
			name:     "premium enables everything",
			settings: features.Settings{Tier: "Premium"},
			expected: map[string]bool{
				features.BlockDetection:       true,
				features.HistoricalComparison: true,
				features.AlertNotifications:   true,
			},
		},
		{
			name: "free tier with explicit enable",
			settings: features.Settings{
				Tier:   features.TierFree,
				Enable: []string{features.BlockDetection},
			},
			expected: map[string]bool{
				features.BlockDetection:       true,
				features.HistoricalComparison: false,
				features.AlertNotifications:   false,
			},
		},
		{
			name: "disable wins over enable",
			settings: features.Settings{
				Tier:    features.TierPremium,
				Enable:  []string{features.AlertNotifications},
				Disable: []string{features.AlertNotifications},
			},
			expected: map[string]bool{
				features.BlockDetection:       true,
				features.HistoricalComparison: true,
				features.AlertNotifications:   false,
			},
		},
		{
			name:          "unknown tier",
			settings:      features.Settings{Tier: "gold"},
			expectedError: features.ErrUnknownTier,
			expectError:   true,
		},
		{
			name:        "unknown feature key",
			settings:    features.Settings{Enable: []string{"time_travel"}},
			expectError: true,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			gate, err := features.NewTierGate(testCase.settings)
			if testCase.expectError {
				if err == nil {
					t.Fatalf("expected error")
				}
				if testCase.expectedError != nil && !errors.Is(err, testCase.expectedError) {
					t.Fatalf("error = %v, want %v", err, testCase.expectedError)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if states := features.Snapshot(gate); !reflect.DeepEqual(states, testCase.expected) {
				t.Fatalf("states = %v, want %v", states, testCase.expected)
			}
			if gate.CanUseFeature("unlisted") {
				t.Fatalf("unknown keys must be disabled")
			}
		})
	}
}

func TestRequire(t *testing.T) {
	gate := features.StaticGate{features.BlockDetection: true}
	if err := features.Require(gate, features.BlockDetection); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := features.Require(gate, features.HistoricalComparison)
	if !errors.Is(err, features.ErrFeatureDisabled) {
		t.Fatalf("error = %v, want ErrFeatureDisabled", err)
	}
}

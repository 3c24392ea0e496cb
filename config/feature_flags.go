package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages feature toggles with per-user gradual rollout.
type FeatureFlags struct {
	mu sync.RWMutex

	features map[string]*Feature

	// userOverrides: userID -> feature -> enabled
	userOverrides map[string]map[string]bool
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// Rollout percentage (0-100).
	// Users are assigned to buckets by a hash of their ID.
	RolloutPercent int
}

// Predefined feature flag names.
const (
	// === Notification Features ===
	FeatureNotifyAchievement     = "notify.achievement"      // "Achievement unlocked"
	FeatureNotifyLevelUp         = "notify.level_up"         // "You reached level N"
	FeatureNotifyStreakMilestone = "notify.streak_milestone" // 7 and 30 day streaks
	FeatureNotifyModuleCompleted = "notify.module_completed" // "Module finished"

	// === Infrastructure Features ===
	FeatureProfileCache   = "cache.profile"          // Redis read-through profile cache
	FeatureReconciliation = "rewards.reconciliation" // Periodic achievement reconciliation
)

// LoadFeatureFlags loads feature flags with defaults and environment overrides.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:      make(map[string]*Feature),
		userOverrides: make(map[string]map[string]bool),
	}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	defaults := []Feature{
		{Name: FeatureNotifyAchievement, Description: "Notify about unlocked achievements", Enabled: true, RolloutPercent: 100},
		{Name: FeatureNotifyLevelUp, Description: "Notify about level ups", Enabled: true, RolloutPercent: 100},
		{Name: FeatureNotifyStreakMilestone, Description: "Notify about streak milestones", Enabled: true, RolloutPercent: 100},
		{Name: FeatureNotifyModuleCompleted, Description: "Notify about completed modules", Enabled: false, RolloutPercent: 0},
		{Name: FeatureProfileCache, Description: "Cache questionnaire profiles in Redis", Enabled: true, RolloutPercent: 100},
		{Name: FeatureReconciliation, Description: "Run the achievement reconciliation job", Enabled: true, RolloutPercent: 100},
	}
	for i := range defaults {
		f := defaults[i]
		ff.features[f.Name] = &f
	}
}

// loadFromEnvironment reads FEATURE_* variables: a boolean or a rollout percentage.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
			if b {
				feature.RolloutPercent = 100
			} else {
				feature.RolloutPercent = 0
			}
			continue
		}
		if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
			feature.Enabled = p > 0
			feature.RolloutPercent = p
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "notify.level_up" -> "FEATURE_NOTIFY_LEVEL_UP"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether the feature is on for the user.
// An empty userID checks the global switch only.
func (ff *FeatureFlags) IsEnabled(featureName, userID string) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if userID != "" {
		if overrides, ok := ff.userOverrides[userID]; ok {
			if enabled, ok := overrides[featureName]; ok {
				return enabled
			}
		}
	}

	feature, ok := ff.features[featureName]
	if !ok || !feature.Enabled {
		return false
	}
	if userID == "" || feature.RolloutPercent >= 100 {
		return true
	}
	return isInRollout(userID, featureName, feature.RolloutPercent)
}

// isInRollout maps user+feature to a stable bucket in 0-99.
func isInRollout(userID, featureName string, percent int) bool {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(userID))
	return int(h.Sum32()%100) < percent
}

// SetUserOverride sets a feature override for a specific user.
func (ff *FeatureFlags) SetUserOverride(userID, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if _, ok := ff.userOverrides[userID]; !ok {
		ff.userOverrides[userID] = make(map[string]bool)
	}
	ff.userOverrides[userID][featureName] = enabled
}

// SetRollout changes a feature's rollout percentage at runtime.
func (ff *FeatureFlags) SetRollout(featureName string, percent int) {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	if f, ok := ff.features[featureName]; ok {
		f.RolloutPercent = max(0, min(percent, 100))
		f.Enabled = f.RolloutPercent > 0
	}
}

// All returns a copy of every feature for diagnostics.
func (ff *FeatureFlags) All() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	result := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		result = append(result, *f)
	}
	return result
}

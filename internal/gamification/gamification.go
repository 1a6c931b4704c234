package gamification

import "math"

// XP weights per activity type. These drive the dashboard reward table and
// must stay in sync with what the mobile client displays.
const (
	XPPerSafeJourney = 100
	XPPerAIChat      = 50
	XPPerActivity    = 75
	XPPerStreakDay   = 150
	XPPerAchievement = 200
)

const (
	baseLevelXP   = 1000
	levelExponent = 1.5
)

// ActivityCounters is a read-only projection of the user's event logs,
// recomputed on each dashboard load. It is never mutated here.
type ActivityCounters struct {
	SafeJourneys         int `json:"safe_journeys"`
	AIChats              int `json:"ai_chats"`
	CompletedActivities  int `json:"completed_activities"`
	StreakDays           int `json:"streak_days"`
	AchievementsUnlocked int `json:"achievements_unlocked"`
}

// LevelState describes where a total XP amount lands on the level curve.
// Invariant: XPIntoLevel < XPToNextLevel.
type LevelState struct {
	Level         int `json:"level"`
	XPIntoLevel   int `json:"xp_into_level"`
	XPToNextLevel int `json:"xp_to_next_level"`
}

// ComputeTotalXP converts activity counters into a total experience amount.
// Negative counters are treated as zero.
func ComputeTotalXP(c ActivityCounters) int {
	return clamp(c.SafeJourneys)*XPPerSafeJourney +
		clamp(c.AIChats)*XPPerAIChat +
		clamp(c.CompletedActivities)*XPPerActivity +
		clamp(c.StreakDays)*XPPerStreakDay +
		clamp(c.AchievementsUnlocked)*XPPerAchievement
}

// XPForLevel returns the XP required to advance FROM the given level,
// using the exponential curve floor(1000 * level^1.5).
func XPForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return int(math.Floor(baseLevelXP * math.Pow(float64(level), levelExponent)))
}

// ComputeLevel walks the level curve from level 1, subtracting each level's
// requirement until the remainder no longer covers the next one. The
// requirement strictly increases with the level, so the loop always halts.
func ComputeLevel(totalXP int) LevelState {
	if totalXP < 0 {
		totalXP = 0
	}

	level := 1
	remaining := totalXP
	requirement := XPForLevel(level)

	for remaining >= requirement {
		remaining -= requirement
		level++
		requirement = XPForLevel(level)
	}

	return LevelState{
		Level:         level,
		XPIntoLevel:   remaining,
		XPToNextLevel: requirement,
	}
}

// ProgressPct returns progress toward the next level as 0.0-100.0.
func (ls LevelState) ProgressPct() float64 {
	if ls.XPToNextLevel <= 0 {
		return 0
	}
	pct := float64(ls.XPIntoLevel) / float64(ls.XPToNextLevel) * 100.0
	if pct > 100 {
		pct = 100
	}
	return pct
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

package gamification

import "testing"

func TestComputeTotalXP(t *testing.T) {
	tests := []struct {
		name     string
		counters ActivityCounters
		want     int
	}{
		{"zero", ActivityCounters{}, 0},
		{"one journey", ActivityCounters{SafeJourneys: 1}, 100},
		{"one of each", ActivityCounters{
			SafeJourneys:         1,
			AIChats:              1,
			CompletedActivities:  1,
			StreakDays:           1,
			AchievementsUnlocked: 1,
		}, 575},
		{"mixed", ActivityCounters{
			SafeJourneys:         3,
			AIChats:              10,
			CompletedActivities:  4,
			StreakDays:           7,
			AchievementsUnlocked: 2,
		}, 300 + 500 + 300 + 1050 + 400},
		{"negative clamped", ActivityCounters{SafeJourneys: -5, AIChats: 2}, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeTotalXP(tt.counters); got != tt.want {
				t.Errorf("ComputeTotalXP() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestComputeTotalXP_Monotonic(t *testing.T) {
	base := ActivityCounters{SafeJourneys: 2, AIChats: 3, CompletedActivities: 1, StreakDays: 4, AchievementsUnlocked: 1}
	baseXP := ComputeTotalXP(base)

	bumps := []ActivityCounters{
		{SafeJourneys: 3, AIChats: 3, CompletedActivities: 1, StreakDays: 4, AchievementsUnlocked: 1},
		{SafeJourneys: 2, AIChats: 4, CompletedActivities: 1, StreakDays: 4, AchievementsUnlocked: 1},
		{SafeJourneys: 2, AIChats: 3, CompletedActivities: 2, StreakDays: 4, AchievementsUnlocked: 1},
		{SafeJourneys: 2, AIChats: 3, CompletedActivities: 1, StreakDays: 5, AchievementsUnlocked: 1},
		{SafeJourneys: 2, AIChats: 3, CompletedActivities: 1, StreakDays: 4, AchievementsUnlocked: 2},
	}

	for i, bumped := range bumps {
		if got := ComputeTotalXP(bumped); got <= baseXP {
			t.Errorf("bump %d: expected XP > %d, got %d", i, baseXP, got)
		}
	}
}

func TestComputeLevel_Zero(t *testing.T) {
	got := ComputeLevel(0)
	want := LevelState{Level: 1, XPIntoLevel: 0, XPToNextLevel: 1000}
	if got != want {
		t.Errorf("ComputeLevel(0) = %+v, want %+v", got, want)
	}
}

func TestComputeLevel_ExactLevelUp(t *testing.T) {
	got := ComputeLevel(1000)
	// floor(1000 * 2^1.5) = 2828
	want := LevelState{Level: 2, XPIntoLevel: 0, XPToNextLevel: 2828}
	if got != want {
		t.Errorf("ComputeLevel(1000) = %+v, want %+v", got, want)
	}
}

func TestComputeLevel_PartialProgress(t *testing.T) {
	got := ComputeLevel(1500)
	if got.Level != 2 {
		t.Errorf("expected level 2, got %d", got.Level)
	}
	if got.XPIntoLevel != 500 {
		t.Errorf("expected 500 into level, got %d", got.XPIntoLevel)
	}
	if got.XPToNextLevel != 2828 {
		t.Errorf("expected 2828 to next, got %d", got.XPToNextLevel)
	}
}

func TestComputeLevel_Invariant(t *testing.T) {
	for xp := 0; xp <= 200000; xp += 137 {
		ls := ComputeLevel(xp)
		if ls.Level < 1 {
			t.Fatalf("xp=%d: level %d < 1", xp, ls.Level)
		}
		if ls.XPIntoLevel >= ls.XPToNextLevel {
			t.Fatalf("xp=%d: xpIntoLevel %d >= xpToNextLevel %d", xp, ls.XPIntoLevel, ls.XPToNextLevel)
		}
	}
}

func TestComputeLevel_Negative(t *testing.T) {
	got := ComputeLevel(-50)
	if got.Level != 1 || got.XPIntoLevel != 0 {
		t.Errorf("negative XP should land at level 1 with 0 progress, got %+v", got)
	}
}

func TestProgressPct(t *testing.T) {
	ls := LevelState{Level: 2, XPIntoLevel: 1414, XPToNextLevel: 2828}
	pct := ls.ProgressPct()
	if pct < 49.9 || pct > 50.1 {
		t.Errorf("expected ~50%%, got %.2f", pct)
	}
}

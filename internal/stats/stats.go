package stats

import "safeMateAPI/internal/gamification"

// DashboardStats is the projection the mobile dashboard renders on load.
type DashboardStats struct {
	Counters          gamification.ActivityCounters `json:"counters"`
	TotalXP           int                           `json:"total_xp"`
	Level             gamification.LevelState       `json:"level_state"`
	LevelProgressPct  float64                       `json:"level_progress_pct"`
	CurrentStreak     int                           `json:"current_streak"`
	LongestStreak     int                           `json:"longest_streak"`
	TotalCheckIns     int                           `json:"total_check_ins"`
	TotalDistanceKm   float64                       `json:"total_distance_km"`
	AchievementsCount int                           `json:"achievements_count"`
	WellnessScore     float64                       `json:"wellness_score"`
}

package utils

import "math"

// CalculateWellnessScore blends mood consistency, safe travel habits and
// unlocked achievements into a single 0-100 score for the dashboard.
func CalculateWellnessScore(currentStreak, safeJourneys, achievementsCount int) float64 {
	streakScore := math.Pow(float64(currentStreak), 1.2) * 2.0
	journeyScore := float64(safeJourneys) * 1.5
	achievementScore := float64(achievementsCount) * 3.0

	score := streakScore + journeyScore + achievementScore
	if score > 100 {
		score = 100
	}
	return score
}

package services

import (
	"context"
	"fmt"
	"log"
	"safeMateAPI/internal/achievement"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type AchievementService struct {
	db           *pgxpool.Pool
	statsService *StatsService
}

func NewAchievementService(db *pgxpool.Pool, statsService *StatsService) *AchievementService {
	return &AchievementService{db: db, statsService: statsService}
}

func (s *AchievementService) GetAchievements(ctx context.Context, clerkID string) ([]*achievement.AchievementWithStatus, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	query := `
	SELECT
		a.id,
		a.name,
		a.description,
		a.icon,
		a.criteria_type,
		a.criteria_value,
		a.created_at,
		CASE WHEN ua.id IS NOT NULL THEN true ELSE false END as unlocked,
		ua.unlocked_at
	FROM achievements a
	LEFT JOIN user_achievements ua ON a.id = ua.achievement_id AND ua.user_id = $1
	ORDER BY unlocked DESC, a.criteria_value ASC
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch achievements: %w", err)
	}
	defer rows.Close()

	var achievements []*achievement.AchievementWithStatus

	for rows.Next() {
		ach := &achievement.AchievementWithStatus{}
		err := rows.Scan(
			&ach.ID,
			&ach.Name,
			&ach.Description,
			&ach.Icon,
			&ach.CriteriaType,
			&ach.CriteriaValue,
			&ach.CreatedAt,
			&ach.Unlocked,
			&ach.UnlockedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}

		achievements = append(achievements, ach)
	}

	return achievements, nil
}

// CheckAndUnlock evaluates every locked achievement against the user's
// current totals and inserts unlock rows for the ones now satisfied.
// Returns the newly unlocked achievements so the caller can notify.
func (s *AchievementService) CheckAndUnlock(ctx context.Context, clerkID string) ([]*achievement.Achievement, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	dashboard, err := s.statsService.GetDashboard(ctx, clerkID)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	query := `
	SELECT a.id, a.name, a.description, a.icon, a.criteria_type, a.criteria_value, a.created_at
	FROM achievements a
	WHERE a.id NOT IN (
		SELECT achievement_id FROM user_achievements WHERE user_id = $1
	)
	`

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch locked achievements: %w", err)
	}
	defer rows.Close()

	var candidates []*achievement.Achievement
	for rows.Next() {
		ach := &achievement.Achievement{}
		err := rows.Scan(
			&ach.ID,
			&ach.Name,
			&ach.Description,
			&ach.Icon,
			&ach.CriteriaType,
			&ach.CriteriaValue,
			&ach.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		candidates = append(candidates, ach)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	var moodEntryCount int
	err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM mood_entries WHERE user_id = $1`, userID).Scan(&moodEntryCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count mood entries: %w", err)
	}

	var unlocked []*achievement.Achievement
	for _, ach := range candidates {
		var current int
		switch ach.CriteriaType {
		case achievement.CriteriaStreak:
			current = dashboard.CurrentStreak
		case achievement.CriteriaSafeJourneys:
			current = dashboard.Counters.SafeJourneys
		case achievement.CriteriaCheckIns:
			current = dashboard.TotalCheckIns
		case achievement.CriteriaActivities:
			current = dashboard.Counters.CompletedActivities
		case achievement.CriteriaMoodEntries:
			current = moodEntryCount
		default:
			log.Printf("CheckAndUnlock: Unknown criteria type %s for achievement %s", ach.CriteriaType, ach.ID)
			continue
		}

		if current < ach.CriteriaValue {
			continue
		}

		insertQuery := `
		INSERT INTO user_achievements (id, user_id, achievement_id, unlocked_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, achievement_id) DO NOTHING
		`
		_, err = s.db.Exec(ctx, insertQuery, uuid.New(), userID, ach.ID)
		if err != nil {
			log.Printf("CheckAndUnlock: Failed to unlock achievement %s: %v", ach.ID, err)
			continue
		}

		unlocked = append(unlocked, ach)
	}

	return unlocked, nil
}

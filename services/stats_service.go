package services

import (
	"context"
	"fmt"
	"safeMateAPI/internal/gamification"
	"safeMateAPI/internal/mood"
	"safeMateAPI/internal/stats"
	"safeMateAPI/utils"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type StatsService struct {
	db          *pgxpool.Pool
	moodService *MoodService
}

func NewStatsService(db *pgxpool.Pool, moodService *MoodService) *StatsService {
	return &StatsService{db: db, moodService: moodService}
}

// GetDashboard aggregates the user's activity into the single payload the
// home screen renders. Counters come from the event logs, XP and level are
// recomputed from the counters on every call.
func (s *StatsService) GetDashboard(ctx context.Context, clerkID string) (*stats.DashboardStats, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	// Each table is aggregated on its own before the join. Joining the raw
	// tables would multiply safety_sessions rows by activity_log rows and
	// inflate the SUM columns.
	query := `
	SELECT
		COALESCE(ss.safe_journeys, 0) as safe_journeys,
		COALESCE(al.ai_chats, 0) as ai_chats,
		COALESCE(al.completed_activities, 0) as completed_activities,
		COALESCE(ua.achievements_count, 0) as achievements_count,
		COALESCE(ss.total_check_ins, 0) as total_check_ins,
		COALESCE(ss.total_distance_meters, 0) as total_distance_meters
	FROM users u
	LEFT JOIN (
		SELECT user_id,
			COUNT(*) FILTER (WHERE status = 'completed') as safe_journeys,
			COALESCE(SUM(check_in_count), 0) as total_check_ins,
			COALESCE(SUM(distance_meters), 0) as total_distance_meters
		FROM safety_sessions
		GROUP BY user_id
	) ss ON ss.user_id = u.id
	LEFT JOIN (
		SELECT user_id,
			COUNT(*) FILTER (WHERE activity_type = 'ai_chat') as ai_chats,
			COUNT(*) FILTER (WHERE activity_type = 'activity') as completed_activities
		FROM activity_log
		GROUP BY user_id
	) al ON al.user_id = u.id
	LEFT JOIN (
		SELECT user_id, COUNT(*) as achievements_count
		FROM user_achievements
		GROUP BY user_id
	) ua ON ua.user_id = u.id
	WHERE u.id = $1
	`

	var counters gamification.ActivityCounters
	var totalCheckIns int
	var totalDistanceMeters float64
	err = s.db.QueryRow(ctx, query, userID).Scan(
		&counters.SafeJourneys,
		&counters.AIChats,
		&counters.CompletedActivities,
		&counters.AchievementsUnlocked,
		&totalCheckIns,
		&totalDistanceMeters,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get dashboard stats: %w", err)
	}

	// Streaks come from the mood log and are computed in Go so the rules
	// match the /mood/streak endpoint exactly.
	streaks, err := s.moodService.GetStreak(ctx, clerkID)
	if err != nil {
		return nil, fmt.Errorf("failed to compute streak: %w", err)
	}
	counters.StreakDays = streaks.CurrentStreak

	totalXP := gamification.ComputeTotalXP(counters)
	level := gamification.ComputeLevel(totalXP)

	wellness := utils.CalculateWellnessScore(
		streaks.CurrentStreak,
		counters.SafeJourneys,
		counters.AchievementsUnlocked,
	)

	return &stats.DashboardStats{
		Counters:          counters,
		TotalXP:           totalXP,
		Level:             level,
		LevelProgressPct:  level.ProgressPct(),
		CurrentStreak:     streaks.CurrentStreak,
		LongestStreak:     streaks.LongestStreak,
		TotalCheckIns:     totalCheckIns,
		TotalDistanceKm:   totalDistanceMeters / 1000.0,
		AchievementsCount: counters.AchievementsUnlocked,
		WellnessScore:     wellness,
	}, nil
}

// LogActivity appends a row to the activity log. activityType is one of
// 'ai_chat', 'activity' or 'safe_journey'.
func (s *StatsService) LogActivity(ctx context.Context, clerkID string, activityType string, metadata *string) error {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return fmt.Errorf("user not found: %w", err)
	}

	query := `
	INSERT INTO activity_log (id, user_id, activity_type, metadata, created_at)
	VALUES ($1, $2, $3, $4, NOW())
	`

	_, err = s.db.Exec(ctx, query, uuid.New(), userID, activityType, metadata)
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}

	return nil
}

// ComputeStreakAt exists for backfills and admin tooling, where "now" is not
// the wall clock.
func (s *StatsService) ComputeStreakAt(ctx context.Context, clerkID string, at time.Time) (int, error) {
	query := `
	SELECT me.id, me.user_id, me.entry_date, me.mood, me.note, me.created_at
	FROM mood_entries me
	JOIN users u ON u.id = me.user_id
	WHERE u.clerk_id = $1
	ORDER BY me.entry_date DESC
	`

	rows, err := s.db.Query(ctx, query, clerkID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch mood entries: %w", err)
	}
	defer rows.Close()

	var entries []mood.Entry
	for rows.Next() {
		var e mood.Entry
		err := rows.Scan(&e.ID, &e.UserID, &e.EntryDate, &e.Mood, &e.Note, &e.CreatedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to scan mood entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating rows: %w", err)
	}

	return mood.ComputeStreak(entries, at), nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"safeMateAPI/internal/calendar"
	"safeMateAPI/internal/mood"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type MoodService struct {
	db *pgxpool.Pool
}

func NewMoodService(db *pgxpool.Pool) *MoodService {
	return &MoodService{db: db}
}

func (s *MoodService) AddEntry(ctx context.Context, clerkID string, req *mood.AddEntryRequest) (*mood.Entry, error) {
	if !req.Mood.Valid() {
		return nil, fmt.Errorf("invalid mood level: %s", req.Mood)
	}

	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	entryDate := time.Now().UTC().Truncate(24 * time.Hour)
	if req.Date != nil {
		entryDate, err = time.Parse("2006-01-02", *req.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid date format, expected YYYY-MM-DD: %w", err)
		}
	}

	// One entry per day. Logging twice updates the existing row.
	query := `
	INSERT INTO mood_entries (id, user_id, entry_date, mood, note, created_at)
	VALUES ($1, $2, $3, $4, $5, NOW())
	ON CONFLICT (user_id, entry_date)
	DO UPDATE SET mood = $4, note = $5, created_at = NOW()
	RETURNING id, user_id, entry_date, mood, note, created_at
	`

	entry := &mood.Entry{}
	err = s.db.QueryRow(ctx, query, uuid.New(), userID, entryDate, req.Mood, req.Note).Scan(
		&entry.ID,
		&entry.UserID,
		&entry.EntryDate,
		&entry.Mood,
		&entry.Note,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to log mood: %w", err)
	}

	return entry, nil
}

func (s *MoodService) GetTodayEntry(ctx context.Context, clerkID string) (*mood.Entry, error) {
	query := `
	SELECT me.id, me.user_id, me.entry_date, me.mood, me.note, me.created_at
	FROM mood_entries me
	JOIN users u ON u.id = me.user_id
	WHERE u.clerk_id = $1 AND me.entry_date = CURRENT_DATE
	`

	entry := &mood.Entry{}
	err := s.db.QueryRow(ctx, query, clerkID).Scan(
		&entry.ID,
		&entry.UserID,
		&entry.EntryDate,
		&entry.Mood,
		&entry.Note,
		&entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get today's mood: %w", err)
	}

	return entry, nil
}

func (s *MoodService) GetRecentEntries(ctx context.Context, clerkID string, limit int) ([]*mood.Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 30
	}

	query := `
	SELECT me.id, me.user_id, me.entry_date, me.mood, me.note, me.created_at
	FROM mood_entries me
	JOIN users u ON u.id = me.user_id
	WHERE u.clerk_id = $1
	ORDER BY me.entry_date DESC
	LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, clerkID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mood entries: %w", err)
	}
	defer rows.Close()

	var entries []*mood.Entry
	for rows.Next() {
		e := &mood.Entry{}
		err := rows.Scan(&e.ID, &e.UserID, &e.EntryDate, &e.Mood, &e.Note, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mood entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if entries == nil {
		entries = []*mood.Entry{}
	}

	return entries, nil
}

// GetStreak loads the user's entries and computes the streaks in Go so the
// dedup and day-boundary rules live in one place (internal/mood).
func (s *MoodService) GetStreak(ctx context.Context, clerkID string) (*mood.StreakResponse, error) {
	query := `
	SELECT me.id, me.user_id, me.entry_date, me.mood, me.note, me.created_at
	FROM mood_entries me
	JOIN users u ON u.id = me.user_id
	WHERE u.clerk_id = $1
	ORDER BY me.entry_date DESC
	`

	rows, err := s.db.Query(ctx, query, clerkID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mood entries: %w", err)
	}
	defer rows.Close()

	var entries []mood.Entry
	for rows.Next() {
		var e mood.Entry
		err := rows.Scan(&e.ID, &e.UserID, &e.EntryDate, &e.Mood, &e.Note, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mood entry: %w", err)
		}
		entries = append(entries, e)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &mood.StreakResponse{
		CurrentStreak: mood.ComputeStreak(entries, time.Now()),
		LongestStreak: mood.ComputeLongestStreak(entries),
	}, nil
}

func (s *MoodService) GetCalendar(ctx context.Context, clerkID string, year int, month int) (*calendar.CalendarResponse, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}

	startDate := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	endDate := startDate.AddDate(0, 1, -1)

	query := `
	SELECT entry_date, mood
	FROM mood_entries
	WHERE user_id = $1
		AND entry_date >= $2
		AND entry_date <= $3
	ORDER BY entry_date
	`

	rows, err := s.db.Query(ctx, query, userID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch calendar: %w", err)
	}
	defer rows.Close()

	dayMap := make(map[string]string)
	for rows.Next() {
		var date time.Time
		var m string
		if err := rows.Scan(&date, &m); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		dayMap[date.Format("2006-01-02")] = m
	}

	var days []*calendar.CalendarDay
	today := time.Now().Format("2006-01-02")

	for d := startDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		dateStr := d.Format("2006-01-02")
		day := &calendar.CalendarDay{
			Date:    d,
			IsToday: dateStr == today,
		}
		if m, ok := dayMap[dateStr]; ok {
			day.Mood = &m
			day.HasEntry = true
		}
		days = append(days, day)
	}

	return &calendar.CalendarResponse{
		Year:  year,
		Month: month,
		Days:  days,
	}, nil
}

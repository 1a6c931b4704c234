package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safeMateAPI/handlers"
	"safeMateAPI/internal/mood"
	"safeMateAPI/internal/stats"
	"safeMateAPI/middleware"
	"safeMateAPI/services"
	"safeMateAPI/tests/helpers"
)

// TestMoodLoggingAndDashboardFlow logs a few moods and verifies the streak
// and dashboard math end to end.
func TestMoodLoggingAndDashboardFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	userService := services.NewUserService(pool)
	moodService := services.NewMoodService(pool)
	statsService := services.NewStatsService(pool, moodService)
	achievementService := services.NewAchievementService(pool, statsService)
	moodHandler := handlers.NewMoodHandler(moodService, achievementService)
	statsHandler := handlers.NewStatsHandler(statsService, achievementService)
	webhookHandler := handlers.NewWebhookHandler(userService)

	os.Setenv("CLERK_WEBHOOK_SECRET", "")
	defer os.Unsetenv("CLERK_WEBHOOK_SECRET")

	clerkID := "user_mood_test_" + time.Now().Format("20060102150405")

	createPayload := helpers.MockClerkWebhookPayload("user.created", clerkID)
	rr := httptest.NewRecorder()
	webhookHandler.HandleClerkWebhook(rr, httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader(createPayload)))
	require.Equal(t, http.StatusOK, rr.Code)

	authed := func(r *http.Request) *http.Request {
		ctx := context.WithValue(r.Context(), middleware.ClerkIDKey, clerkID)
		return r.WithContext(ctx)
	}

	// Log moods for today and the two previous days.
	t.Log("Logging three consecutive days of mood")
	for i := 2; i >= 0; i-- {
		date := time.Now().UTC().AddDate(0, 0, -i).Format("2006-01-02")
		body, _ := json.Marshal(map[string]string{
			"mood": "good",
			"date": date,
		})
		req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/mood", bytes.NewReader(body)))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()

		moodHandler.AddEntry(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	// Logging the same day twice updates, it doesn't duplicate.
	t.Log("Re-logging today replaces the entry")
	body, _ := json.Marshal(map[string]string{"mood": "great"})
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/mood", bytes.NewReader(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	moodHandler.AddEntry(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var todayEntry mood.Entry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &todayEntry))
	assert.Equal(t, mood.MoodGreat, todayEntry.Mood)

	// Streak should be 3.
	t.Log("Checking streak")
	req = authed(httptest.NewRequest(http.MethodGet, "/api/v1/mood/streak", nil))
	rec = httptest.NewRecorder()
	moodHandler.GetStreak(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var streak mood.StreakResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &streak))
	assert.Equal(t, 3, streak.CurrentStreak)
	assert.Equal(t, 3, streak.LongestStreak)

	// Dashboard reflects the streak in XP: 3 streak days at 150 XP each.
	t.Log("Checking dashboard")
	req = authed(httptest.NewRequest(http.MethodGet, "/api/v1/user/dashboard", nil))
	rec = httptest.NewRecorder()
	statsHandler.GetDashboard(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var dashboard stats.DashboardStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dashboard))
	assert.Equal(t, 3, dashboard.CurrentStreak)
	assert.Equal(t, 3, dashboard.Counters.StreakDays)
	assert.GreaterOrEqual(t, dashboard.TotalXP, 450)
	assert.Equal(t, 1, dashboard.Level.Level)
}

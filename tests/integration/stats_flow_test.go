package integration

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safeMateAPI/handlers"
	"safeMateAPI/services"
	"safeMateAPI/tests/helpers"
)

// TestDashboardSumsAreExact seeds several sessions and activities for one
// user and checks the aggregated totals are the exact sums, not multiplied
// by rows in the other tables.
func TestDashboardSumsAreExact(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	userService := services.NewUserService(pool)
	moodService := services.NewMoodService(pool)
	statsService := services.NewStatsService(pool, moodService)
	webhookHandler := handlers.NewWebhookHandler(userService)

	os.Setenv("CLERK_WEBHOOK_SECRET", "")
	defer os.Unsetenv("CLERK_WEBHOOK_SECRET")

	ctx := context.Background()
	clerkID := "user_stats_test_" + time.Now().Format("20060102150405")

	createPayload := helpers.MockClerkWebhookPayload("user.created", clerkID)
	rr := httptest.NewRecorder()
	webhookHandler.HandleClerkWebhook(rr, httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader(createPayload)))
	require.Equal(t, http.StatusOK, rr.Code)

	var userID uuid.UUID
	require.NoError(t, pool.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID))

	// Two completed sessions: 2+3 check-ins, 1000+2000 meters.
	for _, s := range []struct {
		checkIns int
		distance float64
	}{
		{checkIns: 2, distance: 1000},
		{checkIns: 3, distance: 2000},
	} {
		_, err := pool.Exec(ctx, `
			INSERT INTO safety_sessions (id, user_id, status, interval_seconds, auto_check_in, started_at, ended_at, check_in_count, distance_meters)
			VALUES ($1, $2, 'completed', 120, false, NOW() - INTERVAL '1 hour', NOW(), $3, $4)
		`, uuid.New(), userID, s.checkIns, s.distance)
		require.NoError(t, err)
	}

	// Three activity rows alongside, so a naive join would fan out 3x.
	require.NoError(t, statsService.LogActivity(ctx, clerkID, "ai_chat", nil))
	require.NoError(t, statsService.LogActivity(ctx, clerkID, "activity", nil))
	require.NoError(t, statsService.LogActivity(ctx, clerkID, "activity", nil))

	dashboard, err := statsService.GetDashboard(ctx, clerkID)
	require.NoError(t, err)

	assert.Equal(t, 2, dashboard.Counters.SafeJourneys)
	assert.Equal(t, 1, dashboard.Counters.AIChats)
	assert.Equal(t, 2, dashboard.Counters.CompletedActivities)
	assert.Equal(t, 5, dashboard.TotalCheckIns)
	assert.InDelta(t, 3.0, dashboard.TotalDistanceKm, 0.001)
}

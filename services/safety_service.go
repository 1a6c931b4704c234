package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"safeMateAPI/internal/integration"
	"safeMateAPI/internal/notification"
	"safeMateAPI/internal/safety"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	safetySessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "safety_sessions_started_total",
			Help: "Total number of safety sessions started",
		},
	)
	safetySessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "safety_sessions_active",
			Help: "Number of currently active safety sessions",
		},
	)
	safetyAlertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safety_alerts_total",
			Help: "Total number of safety alerts by type",
		},
		[]string{"type"},
	)
	safetyCheckInsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "safety_check_ins_total",
			Help: "Total number of check-ins by source",
		},
		[]string{"source"},
	)
)

// InitSafetyMetrics registers the metrics. Call this from main.go
func InitSafetyMetrics() {
	prometheus.MustRegister(safetySessionsStarted)
	prometheus.MustRegister(safetySessionsActive)
	prometheus.MustRegister(safetyAlertsTotal)
	prometheus.MustRegister(safetyCheckInsTotal)
}

type PushProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

var ErrNoActiveSession = errors.New("no active safety session")

// activeSession pairs an in-memory monitor with its persisted session row.
type activeSession struct {
	sessionID uuid.UUID
	clerkID   string
	monitor   *safety.Monitor
}

// SafetyService owns one check-in monitor per user with an active session.
// The monitors run on wall-clock timers; everything durable goes through
// the event sink into safety_events.
type SafetyService struct {
	db           *pgxpool.Pool
	userService  *UserService
	statsService *StatsService
	live         *LiveShareManager
	clock        safety.Clock

	pushProvider PushProvider
	telegram     *TelegramService
	integrations *IntegrationService

	mu       sync.Mutex
	sessions map[string]*activeSession
}

func NewSafetyService(db *pgxpool.Pool, userService *UserService, statsService *StatsService, live *LiveShareManager) *SafetyService {
	return &SafetyService{
		db:           db,
		userService:  userService,
		statsService: statsService,
		live:         live,
		clock:        safety.NewRealClock(),
		sessions:     make(map[string]*activeSession),
	}
}

// SetPushProvider injects the real FCM provider from main.go
func (s *SafetyService) SetPushProvider(provider PushProvider) {
	s.pushProvider = provider
}

func (s *SafetyService) SetTelegramService(telegram *TelegramService) {
	s.telegram = telegram
}

// SetIntegrationService wires per-user vendor keys into alert delivery.
func (s *SafetyService) SetIntegrationService(integrations *IntegrationService) {
	s.integrations = integrations
}

// SetClock swaps the wall clock, used by the integration tests.
func (s *SafetyService) SetClock(clock safety.Clock) {
	s.clock = clock
}

func (s *SafetyService) StartSession(ctx context.Context, clerkID string, opts safety.Options) (*safety.Snapshot, string, error) {
	var userID uuid.UUID
	err := s.db.QueryRow(ctx, `SELECT id FROM users WHERE clerk_id = $1`, clerkID).Scan(&userID)
	if err != nil {
		return nil, "", fmt.Errorf("user not found: %w", err)
	}

	// Reserve the slot before the DB insert so a concurrent start cannot
	// slip past the existence check while the lock is released.
	reserved := &activeSession{clerkID: clerkID}
	s.mu.Lock()
	if _, exists := s.sessions[clerkID]; exists {
		s.mu.Unlock()
		return nil, "", safety.ErrAlreadyMonitoring
	}
	s.sessions[clerkID] = reserved
	s.mu.Unlock()

	release := func() {
		s.mu.Lock()
		if s.sessions[clerkID] == reserved {
			delete(s.sessions, clerkID)
		}
		s.mu.Unlock()
	}

	sessionID := uuid.New()

	query := `
	INSERT INTO safety_sessions (id, user_id, status, interval_seconds, auto_check_in, started_at)
	VALUES ($1, $2, 'active', $3, $4, NOW())
	`
	_, err = s.db.Exec(ctx, query, sessionID, userID, opts.IntervalSeconds, opts.AutoCheckIn)
	if err != nil {
		release()
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	sink := &dbEventSink{db: s.db, sessionID: sessionID}
	notifier := &alertFanout{service: s, clerkID: clerkID, sessionID: sessionID}

	monitor := safety.NewMonitor(s.clock, sink, notifier)
	if err := monitor.Start(opts); err != nil {
		release()
		return nil, "", err
	}

	s.mu.Lock()
	reserved.sessionID = sessionID
	reserved.monitor = monitor
	s.mu.Unlock()

	safetySessionsStarted.Inc()
	safetySessionsActive.Inc()

	snap := monitor.Snapshot()
	return &snap, sessionID.String(), nil
}

// StopSession stops the monitor, closes the session row and credits a
// safe journey when at least one check-in happened.
func (s *SafetyService) StopSession(ctx context.Context, clerkID string) (*safety.Snapshot, error) {
	s.mu.Lock()
	session, ok := s.sessions[clerkID]
	if ok && session.monitor == nil {
		// Still mid-start; the starting goroutine owns the slot.
		ok = false
	}
	if ok {
		delete(s.sessions, clerkID)
	}
	s.mu.Unlock()

	if !ok {
		return nil, ErrNoActiveSession
	}

	if err := session.monitor.Stop(); err != nil {
		return nil, err
	}
	safetySessionsActive.Dec()

	snap := session.monitor.Snapshot()
	checkIns := snap.AutoCheckIns + snap.ManualCheckIns

	query := `
	UPDATE safety_sessions
	SET status = 'completed',
		ended_at = NOW(),
		check_in_count = $2,
		distance_meters = $3
	WHERE id = $1
	`
	_, err := s.db.Exec(ctx, query, session.sessionID, checkIns, snap.TotalDistanceMeters)
	if err != nil {
		return nil, fmt.Errorf("failed to close session: %w", err)
	}

	if checkIns > 0 {
		meta := session.sessionID.String()
		if err := s.statsService.LogActivity(ctx, clerkID, "safe_journey", &meta); err != nil {
			log.Printf("StopSession: Failed to log safe journey for %s: %v", clerkID, err)
		}
	}

	s.live.PublishUpdate(session.sessionID.String(), map[string]any{
		"action": "session_ended",
		"state":  snap,
	})

	return &snap, nil
}

func (s *SafetyService) CheckIn(ctx context.Context, clerkID string, lat, lon *float64) (*safety.Snapshot, error) {
	session, err := s.activeFor(clerkID)
	if err != nil {
		return nil, err
	}

	if err := session.monitor.CheckIn(lat, lon); err != nil {
		return nil, err
	}
	safetyCheckInsTotal.WithLabelValues(string(safety.CheckInManual)).Inc()

	snap := session.monitor.Snapshot()
	s.live.PublishUpdate(session.sessionID.String(), map[string]any{
		"action": "check_in",
		"state":  snap,
	})
	return &snap, nil
}

func (s *SafetyService) Location(ctx context.Context, clerkID string, sample safety.LocationSample) (*safety.Snapshot, error) {
	session, err := s.activeFor(clerkID)
	if err != nil {
		return nil, err
	}

	if err := session.monitor.Location(sample); err != nil {
		return nil, err
	}

	snap := session.monitor.Snapshot()
	s.live.PublishUpdate(session.sessionID.String(), map[string]any{
		"action":    "location_update",
		"latitude":  sample.Latitude,
		"longitude": sample.Longitude,
		"state":     snap,
	})
	return &snap, nil
}

func (s *SafetyService) Battery(ctx context.Context, clerkID string, level float64, charging bool) (*safety.Snapshot, error) {
	session, err := s.activeFor(clerkID)
	if err != nil {
		return nil, err
	}

	if err := session.monitor.Battery(level, charging); err != nil {
		return nil, err
	}

	snap := session.monitor.Snapshot()
	return &snap, nil
}

func (s *SafetyService) GetSnapshot(ctx context.Context, clerkID string) (*safety.Snapshot, string, error) {
	session, err := s.activeFor(clerkID)
	if err != nil {
		return nil, "", err
	}

	snap := session.monitor.Snapshot()
	return &snap, session.sessionID.String(), nil
}

// SessionOwner reports whether the given session belongs to an active
// monitor, and who owns it. Used by the live-share websocket handshake.
func (s *SafetyService) SessionOwner(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for clerkID, session := range s.sessions {
		if session.monitor != nil && session.sessionID.String() == sessionID {
			return clerkID, true
		}
	}
	return "", false
}

type SessionEvent struct {
	ID        uuid.UUID      `json:"id"`
	SessionID uuid.UUID      `json:"session_id"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func (s *SafetyService) GetSessionEvents(ctx context.Context, clerkID string, sessionID string, limit int) ([]SessionEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 100
	}

	sessionUUID, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, fmt.Errorf("invalid session id")
	}

	// Only the session owner may read its event log.
	var ownerClerkID string
	checkQuery := `
	SELECT u.clerk_id
	FROM safety_sessions ss
	JOIN users u ON u.id = ss.user_id
	WHERE ss.id = $1
	`
	err = s.db.QueryRow(ctx, checkQuery, sessionUUID).Scan(&ownerClerkID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("session not found")
		}
		return nil, fmt.Errorf("failed to check session: %w", err)
	}
	if ownerClerkID != clerkID {
		return nil, fmt.Errorf("session not found")
	}

	query := `
	SELECT id, session_id, event_type, payload, created_at
	FROM safety_events
	WHERE session_id = $1
	ORDER BY created_at DESC
	LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, sessionUUID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events: %w", err)
	}
	defer rows.Close()

	var events []SessionEvent
	for rows.Next() {
		var ev SessionEvent
		if err := rows.Scan(&ev.ID, &ev.SessionID, &ev.EventType, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	if events == nil {
		events = []SessionEvent{}
	}

	return events, nil
}

func (s *SafetyService) userTelegramToken(ctx context.Context, clerkID string) string {
	if s.integrations == nil {
		return ""
	}
	token, err := s.integrations.GetAPIKey(ctx, clerkID, integration.ProviderTelegram)
	if err != nil {
		if !errors.Is(err, integration.ErrAPIKeyMissing) {
			log.Printf("alertFanout: Failed to load telegram key for %s: %v", clerkID, err)
		}
		return ""
	}
	return token
}

func (s *SafetyService) activeFor(clerkID string) (*activeSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[clerkID]
	if !ok || session.monitor == nil {
		return nil, ErrNoActiveSession
	}
	return session, nil
}

// dbEventSink persists monitor events into safety_events. The monitor calls
// Log from its own goroutines, so each write gets its own short context.
type dbEventSink struct {
	db        *pgxpool.Pool
	sessionID uuid.UUID
}

func (s *dbEventSink) Log(ev safety.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	query := `
	INSERT INTO safety_events (id, session_id, event_type, payload, created_at)
	VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.Exec(ctx, query, uuid.New(), s.sessionID, ev.Type, ev.Payload, ev.At)
	if err != nil {
		return fmt.Errorf("failed to persist event: %w", err)
	}

	if ev.Type == "check_in" {
		if source, ok := ev.Payload["source"].(string); ok && source == string(safety.CheckInAuto) {
			safetyCheckInsTotal.WithLabelValues(source).Inc()
		}
	}

	return nil
}

// alertFanout delivers alerts to every channel the user has wired up:
// push notification, live-share watchers and, if linked, Telegram.
type alertFanout struct {
	service   *SafetyService
	clerkID   string
	sessionID uuid.UUID
}

func (f *alertFanout) Notify(alert safety.Alert) {
	safetyAlertsTotal.WithLabelValues(string(alert.Type)).Inc()

	// The monitor fires alerts from timer goroutines. Deliver out of band
	// so a slow channel never delays the state machine.
	go f.deliver(alert)
}

func (f *alertFanout) deliver(alert safety.Alert) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s := f.service

	s.live.PublishUpdate(f.sessionID.String(), map[string]any{
		"action": "alert",
		"alert":  alert,
	})

	if s.pushProvider != nil {
		tokens, err := s.userService.GetDeviceTokens(ctx, f.clerkID)
		if err != nil {
			log.Printf("alertFanout: Failed to load device tokens for %s: %v", f.clerkID, err)
		} else if len(tokens) > 0 {
			data := map[string]any{
				"type":       string(alert.Type),
				"session_id": f.sessionID.String(),
			}
			if err := s.pushProvider.SendPush(ctx, tokens, "SafeMate Alert", alert.Message, data); err != nil {
				log.Printf("alertFanout: Push failed for %s: %v", f.clerkID, err)
			}
		}
	}

	if s.telegram != nil {
		u, err := s.userService.GetUserByClerkID(ctx, f.clerkID)
		if err != nil {
			log.Printf("alertFanout: Failed to load user %s: %v", f.clerkID, err)
			return
		}
		if u.TelegramChatID != nil {
			// A stored telegram key means the user brought their own bot;
			// otherwise the shared bot delivers.
			sendErr := error(nil)
			if token := s.userTelegramToken(ctx, f.clerkID); token != "" {
				sendErr = s.telegram.SendMessageAs(ctx, token, *u.TelegramChatID, alert.Message)
			} else {
				sendErr = s.telegram.SendMessage(ctx, *u.TelegramChatID, alert.Message)
			}
			if sendErr != nil {
				log.Printf("alertFanout: Telegram delivery failed for %s: %v", f.clerkID, sendErr)
			}
		}
	}
}

// Package safety implements the check-in monitor: a small state machine
// that tracks an active safety session, arms a periodic check-in timer,
// accumulates traveled distance from geolocation samples, and raises
// alerts for missed check-ins, low battery, and arrival.
package safety

import (
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"safeMateAPI/internal/geo"
)

const (
	defaultIntervalSeconds = 120
	minIntervalSeconds     = 60
	maxIntervalSeconds     = 300
	historyCap             = 50

	lowBatteryLevel = 0.15

	minDemoArrival = 10 * time.Minute
	maxDemoArrival = 30 * time.Minute
)

var (
	ErrAlreadyMonitoring = errors.New("monitoring already active")
	ErrNotMonitoring     = errors.New("monitoring not active")
)

// Monitor owns a single user's check-in session. All methods are safe for
// concurrent use; timer callbacks take the same lock, and a callback that
// fires after Stop sees the Idle state and returns without effect.
type Monitor struct {
	clock    Clock
	sink     EventSink
	notifier AlertNotifier

	mu              sync.Mutex
	state           State
	opts            Options
	timer           Timer
	awaitingManual  bool
	lastCheckIn     *time.Time
	nextCheckIn     *time.Time
	history         []CheckInRecord
	autoCheckIns    int
	manualCheckIns  int
	distanceMeters  float64
	lastFix         *LocationSample
	speedWindow     *geo.SpeedWindow
	expectedArrival time.Time
	arrived         bool
	batteryLow      bool
}

// NewMonitor creates an idle monitor. sink and notifier may be nil; a nil
// sink drops events and a nil notifier drops alerts (capability absence is
// never an error).
func NewMonitor(clock Clock, sink EventSink, notifier AlertNotifier) *Monitor {
	if clock == nil {
		clock = NewRealClock()
	}
	return &Monitor{
		clock:       clock,
		sink:        sink,
		notifier:    notifier,
		state:       StateIdle,
		speedWindow: geo.NewSpeedWindow(),
	}
}

// Start activates monitoring. The check-in interval is clamped to 60-300s
// (default 120s). The expected arrival defaults to a randomized 10-30
// minute demo ETA when the options don't provide one.
func (m *Monitor) Start(opts Options) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateMonitoring {
		return ErrAlreadyMonitoring
	}

	opts.IntervalSeconds = clampInterval(opts.IntervalSeconds)
	if opts.BatteryAlertPolicy == "" {
		opts.BatteryAlertPolicy = BatteryAlertOnce
	}

	now := m.clock.Now()
	m.state = StateMonitoring
	m.opts = opts
	m.awaitingManual = false
	m.lastCheckIn = nil
	m.history = nil
	m.autoCheckIns = 0
	m.manualCheckIns = 0
	m.distanceMeters = 0
	m.lastFix = nil
	m.speedWindow = geo.NewSpeedWindow()
	m.arrived = false
	m.batteryLow = false

	if opts.ExpectedArrival.IsZero() {
		m.expectedArrival = now.Add(minDemoArrival + time.Duration(rand.Int63n(int64(maxDemoArrival-minDemoArrival))))
	} else {
		m.expectedArrival = opts.ExpectedArrival
	}

	m.armLocked()
	m.logEvent(Event{Type: "session_started", At: now, Payload: map[string]any{
		"interval_seconds": opts.IntervalSeconds,
		"auto_check_in":    opts.AutoCheckIn,
	}})
	return nil
}

// Stop deactivates monitoring and cancels the armed timer. In-flight event
// writes are not flushed.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if m.state != StateMonitoring {
		m.mu.Unlock()
		return ErrNotMonitoring
	}
	m.state = StateIdle
	m.awaitingManual = false
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.nextCheckIn = nil
	now := m.clock.Now()
	m.mu.Unlock()

	m.logEvent(Event{Type: "session_stopped", At: now})
	return nil
}

// CheckIn records a manual check-in. Always allowed while monitoring,
// regardless of timer state: it clears any outstanding missed-check-in
// wait and re-arms the timer.
func (m *Monitor) CheckIn(lat, lon *float64) error {
	m.mu.Lock()
	if m.state != StateMonitoring {
		m.mu.Unlock()
		return ErrNotMonitoring
	}
	m.awaitingManual = false
	rec := m.recordCheckInLocked(CheckInManual, lat, lon)
	m.armLocked()
	m.mu.Unlock()

	m.logCheckIn(rec)
	return nil
}

// Location feeds a geolocation sample into the session: distance is
// accumulated from the previous fix, the speed window is updated, and the
// arrival check runs. A sample without a speed reading (Speed < 0) gets an
// instantaneous speed derived from consecutive fixes.
func (m *Monitor) Location(sample LocationSample) error {
	m.mu.Lock()
	if m.state != StateMonitoring {
		m.mu.Unlock()
		return ErrNotMonitoring
	}

	if m.lastFix != nil {
		prev := *m.lastFix
		m.distanceMeters += geo.HaversineDistance(prev.Latitude, prev.Longitude, sample.Latitude, sample.Longitude)
		if sample.Speed >= 0 {
			m.speedWindow.Add(sample.Speed)
		} else {
			m.speedWindow.Add(geo.DerivedSpeed(prev.Latitude, prev.Longitude, prev.Timestamp,
				sample.Latitude, sample.Longitude, sample.Timestamp))
		}
	} else if sample.Speed >= 0 {
		m.speedWindow.Add(sample.Speed)
	}
	fix := sample
	m.lastFix = &fix

	var alert *Alert
	now := m.clock.Now()
	if !m.arrived && !m.expectedArrival.IsZero() && !now.Before(m.expectedArrival) {
		m.arrived = true
		alert = &Alert{Type: AlertArrival, At: now, Message: "You have arrived at your destination"}
	}
	m.mu.Unlock()

	if alert != nil {
		m.deliver(*alert)
	}
	return nil
}

// Battery feeds a battery status change. Level is 0..1. A level under 15%
// while not charging raises a low-battery alert; whether that repeats on
// every qualifying event is controlled by the session's alert policy.
func (m *Monitor) Battery(level float64, charging bool) error {
	m.mu.Lock()
	if m.state != StateMonitoring {
		m.mu.Unlock()
		return ErrNotMonitoring
	}

	qualifying := level < lowBatteryLevel && !charging
	if !qualifying {
		// Condition cleared; the next episode alerts again under AlertOnce.
		m.batteryLow = false
		m.mu.Unlock()
		return nil
	}

	fire := m.opts.BatteryAlertPolicy == BatteryAlertEvery || !m.batteryLow
	m.batteryLow = true
	now := m.clock.Now()
	m.mu.Unlock()

	if fire {
		m.deliver(Alert{Type: AlertLowBattery, At: now, Message: "Battery is running low"})
	}
	return nil
}

// Snapshot returns a copy of the current session state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:               m.state,
		IntervalSeconds:     m.opts.IntervalSeconds,
		AutoCheckIn:         m.opts.AutoCheckIn,
		AwaitingCheckIn:     m.awaitingManual,
		AutoCheckIns:        m.autoCheckIns,
		ManualCheckIns:      m.manualCheckIns,
		TotalDistanceMeters: m.distanceMeters,
		MeanSpeedKmh:        m.speedWindow.MeanKmh(),
		Moving:              m.speedWindow.Moving(),
		Arrived:             m.arrived,
	}
	if m.lastCheckIn != nil {
		t := *m.lastCheckIn
		snap.LastCheckIn = &t
	}
	if m.nextCheckIn != nil {
		t := *m.nextCheckIn
		snap.NextCheckIn = &t
	}
	if !m.expectedArrival.IsZero() {
		t := m.expectedArrival
		snap.ExpectedArrival = &t
	}
	snap.History = make([]CheckInRecord, len(m.history))
	copy(snap.History, m.history)
	return snap
}

// onTimerFire handles the check-in interval elapsing. With auto check-in
// enabled it records a check-in and re-arms; otherwise it alerts and waits
// for a manual check-in before the timer is armed again.
func (m *Monitor) onTimerFire() {
	m.mu.Lock()
	if m.state != StateMonitoring {
		// Stale callback after Stop.
		m.mu.Unlock()
		return
	}

	if m.opts.AutoCheckIn {
		var lat, lon *float64
		if m.lastFix != nil {
			la, lo := m.lastFix.Latitude, m.lastFix.Longitude
			lat, lon = &la, &lo
		}
		rec := m.recordCheckInLocked(CheckInAuto, lat, lon)
		m.armLocked()
		m.mu.Unlock()

		m.logCheckIn(rec)
		return
	}

	m.awaitingManual = true
	m.timer = nil
	m.nextCheckIn = nil
	now := m.clock.Now()
	m.mu.Unlock()

	m.deliver(Alert{Type: AlertMissedCheckIn, At: now, Message: "Time to check in - let us know you're safe"})
}

func (m *Monitor) recordCheckInLocked(source CheckInSource, lat, lon *float64) CheckInRecord {
	now := m.clock.Now()
	rec := CheckInRecord{At: now, Source: source, Latitude: lat, Longitude: lon}

	m.history = append([]CheckInRecord{rec}, m.history...)
	if len(m.history) > historyCap {
		m.history = m.history[:historyCap]
	}
	m.lastCheckIn = &rec.At
	if source == CheckInAuto {
		m.autoCheckIns++
	} else {
		m.manualCheckIns++
	}
	return rec
}

func (m *Monitor) armLocked() {
	if m.timer != nil {
		m.timer.Stop()
	}
	interval := time.Duration(m.opts.IntervalSeconds) * time.Second
	next := m.clock.Now().Add(interval)
	m.nextCheckIn = &next
	m.timer = m.clock.AfterFunc(interval, m.onTimerFire)
}

func (m *Monitor) deliver(alert Alert) {
	m.logEvent(Event{Type: "alert", At: alert.At, Payload: map[string]any{
		"alert_type": string(alert.Type),
		"message":    alert.Message,
	}})
	if m.notifier != nil {
		m.notifier.Notify(alert)
	}
}

func (m *Monitor) logCheckIn(rec CheckInRecord) {
	payload := map[string]any{"source": string(rec.Source)}
	if rec.Latitude != nil && rec.Longitude != nil {
		payload["latitude"] = *rec.Latitude
		payload["longitude"] = *rec.Longitude
	}
	m.logEvent(Event{Type: "check_in", At: rec.At, Payload: payload})
}

// logEvent is best-effort: a sink failure is logged and forgotten, never
// surfaced to the state machine.
func (m *Monitor) logEvent(ev Event) {
	if m.sink == nil {
		return
	}
	if err := m.sink.Log(ev); err != nil {
		log.Printf("safety: failed to log %s event: %v", ev.Type, err)
	}
}

func clampInterval(seconds int) int {
	switch {
	case seconds == 0:
		return defaultIntervalSeconds
	case seconds < minIntervalSeconds:
		return minIntervalSeconds
	case seconds > maxIntervalSeconds:
		return maxIntervalSeconds
	}
	return seconds
}

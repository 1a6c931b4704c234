package safety

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeClock drives monitor timers deterministically.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	when    time.Time
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.stopped = true
	return true
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{when: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward, firing due timers in order. Callbacks
// run outside the clock lock so they can arm new timers.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		var next *fakeTimer
		for _, t := range c.timers {
			if t.stopped || t.fired || t.when.After(target) {
				continue
			}
			if next == nil || t.when.Before(next.when) {
				next = t
			}
		}
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		next.fired = true
		if next.when.After(c.now) {
			c.now = next.when
		}
		fn := next.fn
		c.mu.Unlock()
		fn()
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *recordingSink) Log(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}

func (s *recordingSink) count(eventType string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == eventType {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []Alert
}

func (n *recordingNotifier) Notify(alert Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
}

func (n *recordingNotifier) byType(at AlertType) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, a := range n.alerts {
		if a.Type == at {
			c++
		}
	}
	return c
}

func newTestMonitor() (*Monitor, *fakeClock, *recordingSink, *recordingNotifier) {
	clock := newFakeClock()
	sink := &recordingSink{}
	notifier := &recordingNotifier{}
	return NewMonitor(clock, sink, notifier), clock, sink, notifier
}

func TestMonitor_AutoCheckInFiresOncePerInterval(t *testing.T) {
	m, clock, _, _ := newTestMonitor()
	if err := m.Start(Options{IntervalSeconds: 60, AutoCheckIn: true}); err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(60 * time.Second)
	snap := m.Snapshot()
	if len(snap.History) != 1 {
		t.Fatalf("expected exactly 1 check-in after 60s, got %d", len(snap.History))
	}
	if snap.History[0].Source != CheckInAuto {
		t.Errorf("expected auto check-in, got %s", snap.History[0].Source)
	}

	clock.Advance(59 * time.Second)
	if got := len(m.Snapshot().History); got != 1 {
		t.Errorf("timer re-armed too early: %d check-ins at 119s", got)
	}

	clock.Advance(1 * time.Second)
	if got := len(m.Snapshot().History); got != 2 {
		t.Errorf("expected 2 check-ins at 120s, got %d", got)
	}
}

func TestMonitor_MissedCheckInAlertStopsTimer(t *testing.T) {
	m, clock, _, notifier := newTestMonitor()
	if err := m.Start(Options{IntervalSeconds: 60, AutoCheckIn: false}); err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(60 * time.Second)
	if got := notifier.byType(AlertMissedCheckIn); got != 1 {
		t.Fatalf("expected 1 missed-check-in alert, got %d", got)
	}
	snap := m.Snapshot()
	if !snap.AwaitingCheckIn {
		t.Error("expected awaiting-check-in state after alert")
	}
	if snap.NextCheckIn != nil {
		t.Error("timer should not be re-armed while awaiting manual check-in")
	}

	// Timer stays dead until the user responds.
	clock.Advance(10 * time.Minute)
	if got := notifier.byType(AlertMissedCheckIn); got != 1 {
		t.Errorf("alert should not repeat without re-arming, got %d", got)
	}
	if got := len(m.Snapshot().History); got != 0 {
		t.Errorf("no check-ins should be recorded, got %d", got)
	}
}

func TestMonitor_ManualCheckInClearsAlertWaitAndRearms(t *testing.T) {
	m, clock, _, notifier := newTestMonitor()
	_ = m.Start(Options{IntervalSeconds: 60, AutoCheckIn: false})

	clock.Advance(60 * time.Second)
	if err := m.CheckIn(nil, nil); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	snap := m.Snapshot()
	if snap.AwaitingCheckIn {
		t.Error("manual check-in should clear awaiting state")
	}
	if snap.ManualCheckIns != 1 {
		t.Errorf("expected 1 manual check-in, got %d", snap.ManualCheckIns)
	}
	if snap.NextCheckIn == nil {
		t.Fatal("manual check-in should re-arm the timer")
	}

	clock.Advance(60 * time.Second)
	if got := notifier.byType(AlertMissedCheckIn); got != 2 {
		t.Errorf("expected a second alert after re-armed interval, got %d", got)
	}
}

func TestMonitor_ManualCheckInAlwaysAllowed(t *testing.T) {
	m, clock, _, _ := newTestMonitor()
	_ = m.Start(Options{IntervalSeconds: 120, AutoCheckIn: true})

	// Mid-interval manual check-in resets the timer.
	clock.Advance(30 * time.Second)
	if err := m.CheckIn(nil, nil); err != nil {
		t.Fatalf("check-in: %v", err)
	}

	clock.Advance(119 * time.Second)
	snap := m.Snapshot()
	if snap.AutoCheckIns != 0 {
		t.Errorf("auto timer should have been pushed back, got %d auto check-ins", snap.AutoCheckIns)
	}
	clock.Advance(1 * time.Second)
	if got := m.Snapshot().AutoCheckIns; got != 1 {
		t.Errorf("expected auto check-in at full interval after manual, got %d", got)
	}
}

func TestMonitor_IntervalClamp(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 120},
		{10, 60},
		{60, 60},
		{180, 180},
		{900, 300},
	}
	for _, tt := range tests {
		m, _, _, _ := newTestMonitor()
		_ = m.Start(Options{IntervalSeconds: tt.in, AutoCheckIn: true})
		if got := m.Snapshot().IntervalSeconds; got != tt.want {
			t.Errorf("interval %d clamped to %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMonitor_StateTransitions(t *testing.T) {
	m, _, _, _ := newTestMonitor()

	if err := m.CheckIn(nil, nil); !errors.Is(err, ErrNotMonitoring) {
		t.Errorf("check-in while idle: got %v, want ErrNotMonitoring", err)
	}
	if err := m.Start(Options{}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(Options{}); !errors.Is(err, ErrAlreadyMonitoring) {
		t.Errorf("double start: got %v, want ErrAlreadyMonitoring", err)
	}
	if err := m.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := m.Stop(); !errors.Is(err, ErrNotMonitoring) {
		t.Errorf("double stop: got %v, want ErrNotMonitoring", err)
	}
}

func TestMonitor_StopCancelsPendingTimer(t *testing.T) {
	m, clock, _, _ := newTestMonitor()
	_ = m.Start(Options{IntervalSeconds: 60, AutoCheckIn: true})
	_ = m.Stop()

	clock.Advance(5 * time.Minute)
	if got := len(m.Snapshot().History); got != 0 {
		t.Errorf("stale timer fired after stop: %d check-ins", got)
	}
}

func TestMonitor_DistanceAccumulation(t *testing.T) {
	m, clock, _, _ := newTestMonitor()
	_ = m.Start(Options{AutoCheckIn: true})

	base := clock.Now()
	_ = m.Location(LocationSample{Latitude: 0, Longitude: 0, Speed: -1, Timestamp: base})
	_ = m.Location(LocationSample{Latitude: 0, Longitude: 0.001, Speed: -1, Timestamp: base.Add(30 * time.Second)})
	_ = m.Location(LocationSample{Latitude: 0, Longitude: 0.002, Speed: -1, Timestamp: base.Add(60 * time.Second)})

	got := m.Snapshot().TotalDistanceMeters
	want := 2 * 111.195 // two hops of 0.001 deg at the equator
	if got < want*0.99 || got > want*1.01 {
		t.Errorf("accumulated distance = %.2f m, want ~%.2f m", got, want)
	}
}

func TestMonitor_SpeedFromSamplesAndDerived(t *testing.T) {
	m, clock, _, _ := newTestMonitor()
	_ = m.Start(Options{AutoCheckIn: true})

	base := clock.Now()

	// Samples carrying a speed reading feed the window directly.
	_ = m.Location(LocationSample{Latitude: 0, Longitude: 0, Speed: 10, Timestamp: base})
	snap := m.Snapshot()
	if snap.MeanSpeedKmh < 35.9 || snap.MeanSpeedKmh > 36.1 {
		t.Errorf("mean speed = %.2f km/h, want ~36", snap.MeanSpeedKmh)
	}
	if !snap.Moving {
		t.Error("36 km/h should count as moving")
	}

	// A sample without speed derives it from the position delta:
	// 111.195 m over 10s is ~11.1 m/s.
	_ = m.Location(LocationSample{Latitude: 0, Longitude: 0.001, Speed: -1, Timestamp: base.Add(10 * time.Second)})
	snap = m.Snapshot()
	if snap.MeanSpeedKmh < 37 || snap.MeanSpeedKmh > 40 {
		t.Errorf("mean with derived sample = %.2f km/h, want ~38.2", snap.MeanSpeedKmh)
	}
}

func TestMonitor_BatteryAlertOncePerEpisode(t *testing.T) {
	m, _, _, notifier := newTestMonitor()
	_ = m.Start(Options{AutoCheckIn: true})

	_ = m.Battery(0.10, false)
	_ = m.Battery(0.09, false)
	_ = m.Battery(0.08, false)
	if got := notifier.byType(AlertLowBattery); got != 1 {
		t.Fatalf("AlertOnce policy: expected 1 alert, got %d", got)
	}

	// Charging clears the episode; draining again alerts again.
	_ = m.Battery(0.08, true)
	_ = m.Battery(0.10, false)
	if got := notifier.byType(AlertLowBattery); got != 2 {
		t.Errorf("expected new episode to alert, got %d", got)
	}
}

func TestMonitor_BatteryAlertEveryEvent(t *testing.T) {
	m, _, _, notifier := newTestMonitor()
	_ = m.Start(Options{AutoCheckIn: true, BatteryAlertPolicy: BatteryAlertEvery})

	_ = m.Battery(0.10, false)
	_ = m.Battery(0.09, false)
	_ = m.Battery(0.14, false)
	if got := notifier.byType(AlertLowBattery); got != 3 {
		t.Errorf("AlertEvery policy: expected 3 alerts, got %d", got)
	}

	_ = m.Battery(0.10, true) // charging never qualifies
	_ = m.Battery(0.50, false)
	if got := notifier.byType(AlertLowBattery); got != 3 {
		t.Errorf("non-qualifying events must not alert, got %d", got)
	}
}

func TestMonitor_ArrivalFiresExactlyOnce(t *testing.T) {
	m, clock, sink, notifier := newTestMonitor()
	eta := clock.Now().Add(10 * time.Minute)
	_ = m.Start(Options{IntervalSeconds: 300, AutoCheckIn: true, ExpectedArrival: eta})

	_ = m.Location(LocationSample{Latitude: 42.0, Longitude: 23.0, Speed: -1, Timestamp: clock.Now()})
	if got := notifier.byType(AlertArrival); got != 0 {
		t.Fatalf("arrival alert before ETA: %d", got)
	}

	clock.Advance(11 * time.Minute)
	_ = m.Location(LocationSample{Latitude: 42.1, Longitude: 23.1, Speed: -1, Timestamp: clock.Now()})
	_ = m.Location(LocationSample{Latitude: 42.2, Longitude: 23.2, Speed: -1, Timestamp: clock.Now()})

	if got := notifier.byType(AlertArrival); got != 1 {
		t.Errorf("expected exactly 1 arrival alert, got %d", got)
	}
	if !m.Snapshot().Arrived {
		t.Error("snapshot should report arrived")
	}
	if sink.count("alert") == 0 {
		t.Error("arrival should be logged to the sink")
	}
}

func TestMonitor_SinkFailureDoesNotBlockStateMachine(t *testing.T) {
	m, clock, sink, _ := newTestMonitor()
	sink.err = errors.New("database unreachable")

	if err := m.Start(Options{IntervalSeconds: 60, AutoCheckIn: true}); err != nil {
		t.Fatalf("start should ignore sink failure: %v", err)
	}
	clock.Advance(60 * time.Second)
	if err := m.CheckIn(nil, nil); err != nil {
		t.Fatalf("check-in should ignore sink failure: %v", err)
	}

	snap := m.Snapshot()
	if len(snap.History) != 2 {
		t.Errorf("expected 2 check-ins despite sink failures, got %d", len(snap.History))
	}
}

func TestMonitor_HistoryCapped(t *testing.T) {
	m, clock, _, _ := newTestMonitor()
	_ = m.Start(Options{IntervalSeconds: 60, AutoCheckIn: true})

	for i := 0; i < 60; i++ {
		clock.Advance(60 * time.Second)
	}
	snap := m.Snapshot()
	if len(snap.History) != 50 {
		t.Errorf("history should cap at 50, got %d", len(snap.History))
	}
	if snap.AutoCheckIns != 60 {
		t.Errorf("counter should keep counting past the cap, got %d", snap.AutoCheckIns)
	}
	// Most recent first.
	if !snap.History[0].At.After(snap.History[1].At) {
		t.Error("history should be most-recent-first")
	}
}

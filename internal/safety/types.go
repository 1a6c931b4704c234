package safety

import "time"

// State of the check-in monitor.
type State string

const (
	StateIdle       State = "idle"
	StateMonitoring State = "monitoring"
)

type CheckInSource string

const (
	CheckInAuto   CheckInSource = "auto"
	CheckInManual CheckInSource = "manual"
)

type AlertType string

const (
	AlertMissedCheckIn AlertType = "missed_check_in"
	AlertLowBattery    AlertType = "low_battery"
	AlertArrival       AlertType = "arrival"
)

// BatteryAlertPolicy controls whether a qualifying low-battery event alerts
// once per episode or on every event while the condition holds.
type BatteryAlertPolicy string

const (
	BatteryAlertOnce  BatteryAlertPolicy = "once"
	BatteryAlertEvery BatteryAlertPolicy = "every_event"
)

type CheckInRecord struct {
	At        time.Time     `json:"at"`
	Source    CheckInSource `json:"source"`
	Latitude  *float64      `json:"latitude,omitempty"`
	Longitude *float64      `json:"longitude,omitempty"`
}

type Alert struct {
	Type    AlertType `json:"type"`
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// LocationSample mirrors what the browser geolocation API delivers. Speed
// is -1 when the fix does not carry one.
type LocationSample struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Accuracy  float64   `json:"accuracy"`
	Speed     float64   `json:"speed"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is what the monitor hands to its sink for best-effort persistence.
type Event struct {
	Type    string         `json:"type"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

// EventSink persists monitor events. Log returns its error so the owner can
// decide what to do with a failed write; the monitor itself never lets a
// sink failure affect a state transition.
type EventSink interface {
	Log(ev Event) error
}

// AlertNotifier delivers alerts to the user's devices and watchers.
// Delivery is fire-and-forget from the monitor's point of view.
type AlertNotifier interface {
	Notify(alert Alert)
}

// Options configures a monitoring session.
type Options struct {
	IntervalSeconds    int                `json:"interval_seconds"`
	AutoCheckIn        bool               `json:"auto_check_in"`
	BatteryAlertPolicy BatteryAlertPolicy `json:"battery_alert_policy,omitempty"`
	// ExpectedArrival overrides the randomized demo ETA when non-zero.
	ExpectedArrival time.Time `json:"expected_arrival,omitempty"`
}

// Snapshot is a point-in-time copy of the session state, safe to serialize.
type Snapshot struct {
	State               State           `json:"state"`
	IntervalSeconds     int             `json:"interval_seconds"`
	AutoCheckIn         bool            `json:"auto_check_in"`
	AwaitingCheckIn     bool            `json:"awaiting_check_in"`
	LastCheckIn         *time.Time      `json:"last_check_in,omitempty"`
	NextCheckIn         *time.Time      `json:"next_check_in,omitempty"`
	History             []CheckInRecord `json:"history"`
	AutoCheckIns        int             `json:"auto_check_ins"`
	ManualCheckIns      int             `json:"manual_check_ins"`
	TotalDistanceMeters float64         `json:"total_distance_meters"`
	MeanSpeedKmh        float64         `json:"mean_speed_kmh"`
	Moving              bool            `json:"moving"`
	ExpectedArrival     *time.Time      `json:"expected_arrival,omitempty"`
	Arrived             bool            `json:"arrived"`
}

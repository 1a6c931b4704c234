package calendar

import "time"

type CalendarDay struct {
	Date     time.Time `json:"date" db:"date"`
	Mood     *string   `json:"mood,omitempty" db:"mood"`
	HasEntry bool      `json:"has_entry"`
	IsToday  bool      `json:"is_today"`
}

type CalendarResponse struct {
	Year  int            `json:"year"`
	Month int            `json:"month"`
	Days  []*CalendarDay `json:"days"`
}

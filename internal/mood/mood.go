package mood

import (
	"time"

	"github.com/google/uuid"
)

type Level string

const (
	MoodGreat      Level = "great"
	MoodGood       Level = "good"
	MoodOkay       Level = "okay"
	MoodLow        Level = "low"
	MoodStruggling Level = "struggling"
)

// Valid reports whether the mood level is one the app knows about.
func (l Level) Valid() bool {
	switch l {
	case MoodGreat, MoodGood, MoodOkay, MoodLow, MoodStruggling:
		return true
	}
	return false
}

type Entry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	EntryDate time.Time `json:"entry_date" db:"entry_date"`
	Mood      Level     `json:"mood" db:"mood"`
	Note      *string   `json:"note,omitempty" db:"note"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type AddEntryRequest struct {
	Mood Level   `json:"mood"`
	Note *string `json:"note,omitempty"`
	Date *string `json:"date,omitempty"` // YYYY-MM-DD, defaults to today
}

type StreakResponse struct {
	CurrentStreak int `json:"current_streak"`
	LongestStreak int `json:"longest_streak"`
}

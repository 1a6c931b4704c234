package mood

import (
	"testing"
	"time"
)

var testNow = time.Date(2025, 7, 10, 15, 30, 0, 0, time.UTC)

func entryOn(daysAgo int) Entry {
	d := testNow.AddDate(0, 0, -daysAgo)
	return Entry{EntryDate: d, Mood: MoodGood, CreatedAt: d}
}

func TestComputeStreak_Empty(t *testing.T) {
	if got := ComputeStreak(nil, testNow); got != 0 {
		t.Errorf("expected 0 for empty input, got %d", got)
	}
}

func TestComputeStreak_SevenConsecutiveDays(t *testing.T) {
	var entries []Entry
	for i := 0; i < 7; i++ {
		entries = append(entries, entryOn(i))
	}
	if got := ComputeStreak(entries, testNow); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}

func TestComputeStreak_GapBreaksStreak(t *testing.T) {
	// today, yesterday, then a hole at day 2, then day 3
	entries := []Entry{entryOn(0), entryOn(1), entryOn(3)}
	if got := ComputeStreak(entries, testNow); got != 2 {
		t.Errorf("expected 2 (gap at day 2), got %d", got)
	}
}

func TestComputeStreak_NoEntryToday(t *testing.T) {
	entries := []Entry{entryOn(1), entryOn(2), entryOn(3)}
	if got := ComputeStreak(entries, testNow); got != 0 {
		t.Errorf("expected 0 when today has no entry, got %d", got)
	}
}

func TestComputeStreak_UnsortedInput(t *testing.T) {
	entries := []Entry{entryOn(2), entryOn(0), entryOn(1)}
	if got := ComputeStreak(entries, testNow); got != 3 {
		t.Errorf("expected 3 regardless of input order, got %d", got)
	}
}

func TestComputeStreak_DuplicateDatesCollapsed(t *testing.T) {
	dup := entryOn(1)
	dup.CreatedAt = dup.CreatedAt.Add(3 * time.Hour)
	entries := []Entry{entryOn(0), entryOn(1), dup, entryOn(2)}
	if got := ComputeStreak(entries, testNow); got != 3 {
		t.Errorf("expected 3 with duplicate dates collapsed, got %d", got)
	}
}

func TestComputeStreak_SingleEntryToday(t *testing.T) {
	if got := ComputeStreak([]Entry{entryOn(0)}, testNow); got != 1 {
		t.Errorf("expected 1, got %d", got)
	}
}

func TestComputeLongestStreak(t *testing.T) {
	tests := []struct {
		name    string
		daysAgo []int
		want    int
	}{
		{"empty", nil, 0},
		{"single", []int{5}, 1},
		{"run in the past beats current", []int{0, 5, 6, 7, 8}, 4},
		{"current run is longest", []int{0, 1, 2, 9}, 3},
		{"two equal runs", []int{1, 2, 6, 7}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var entries []Entry
			for _, d := range tt.daysAgo {
				entries = append(entries, entryOn(d))
			}
			if got := ComputeLongestStreak(entries); got != tt.want {
				t.Errorf("ComputeLongestStreak() = %d, want %d", got, tt.want)
			}
		})
	}
}

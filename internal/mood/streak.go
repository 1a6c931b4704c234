package mood

import (
	"sort"
	"time"
)

// ComputeStreak counts consecutive calendar days with a mood entry, ending
// at the day of `now`. Entries need not be pre-sorted. Duplicate entries for
// the same date are collapsed to the most recently logged one before the
// consecutive-day check, so one noisy date can't break the count.
// No entry for today means the streak is 0.
func ComputeStreak(entries []Entry, now time.Time) int {
	days := uniqueDaysDescending(entries)
	today := dayOf(now)

	streak := 0
	for i, d := range days {
		diff := int(today.Sub(d).Hours() / 24)
		if diff != i {
			break
		}
		streak++
	}
	return streak
}

// ComputeLongestStreak returns the longest run of consecutive entry days
// anywhere in the history, not just the one ending today.
func ComputeLongestStreak(entries []Entry) int {
	days := uniqueDaysDescending(entries)
	if len(days) == 0 {
		return 0
	}

	longest, run := 1, 1
	for i := 1; i < len(days); i++ {
		// days are descending, so a gap of exactly 24h means consecutive
		if days[i-1].Sub(days[i]) == 24*time.Hour {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 1
		}
	}
	return longest
}

// uniqueDaysDescending normalizes entry dates to UTC midnight, keeps the
// latest entry per calendar day, and returns the days newest first.
func uniqueDaysDescending(entries []Entry) []time.Time {
	latest := make(map[time.Time]time.Time, len(entries))
	for _, e := range entries {
		day := dayOf(e.EntryDate)
		if logged, ok := latest[day]; !ok || e.CreatedAt.After(logged) {
			latest[day] = e.CreatedAt
		}
	}

	days := make([]time.Time, 0, len(latest))
	for d := range latest {
		days = append(days, d)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].After(days[j]) })
	return days
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

package progress

import "time"

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// advanceStreak applies one activity day to a streak state:
//   - first ever activity, or a gap of >= 2 calendar days: streak restarts at 1
//   - same day as the last activity: no change
//   - the day right after the last activity: streak grows by 1
//   - a day before the last activity (clock skew, backfill): no change
//
// LongestStreakDays is re-derived on every update so it can never lag behind.
func advanceStreak(st StreakState, day time.Time) StreakState {
	day = DateOf(day)

	switch {
	case st.CurrentStreakDays == 0: // first activity ever
		st.CurrentStreakDays = 1
		st.LastActiveDate = day
	case day.Before(st.LastActiveDate) || day.Equal(st.LastActiveDate):
		// idempotent replay protection: same-day or out-of-order events are no-ops
	case day.Equal(st.LastActiveDate.AddDate(0, 0, 1)):
		st.CurrentStreakDays++
		st.LastActiveDate = day
	default: // gap of >= 2 calendar days
		st.CurrentStreakDays = 1
		st.LastActiveDate = day
	}

	if st.CurrentStreakDays > st.LongestStreakDays {
		st.LongestStreakDays = st.CurrentStreakDays
	}
	return st
}

package learner

import "time"

// StreakChange - результат обновления серии.
type StreakChange struct {
	// Changed - была ли запись (false, если активность сегодня уже засчитана).
	Changed bool

	// Reset - серия начата заново.
	Reset bool

	// Previous - серия до обновления.
	Previous int

	// Current - серия после обновления.
	Current int

	// Longest - лучшая серия после обновления.
	Longest int
}

// RecordActiveDay обновляет серию по числу календарных дней с прошлой
// активности. firstEver = true, если активности ещё не было.
//
//   - 0 дней: без изменений
//   - 1 день: серия продолжается
//   - 2 и более дней или первая активность: серия начинается с 1
func (u *User) RecordActiveDay(daysSinceActive int, firstEver bool, now time.Time) StreakChange {
	change := StreakChange{
		Previous: u.CurrentStreak,
		Current:  u.CurrentStreak,
		Longest:  u.LongestStreak,
	}

	switch {
	case !firstEver && daysSinceActive <= 0:
		return change
	case !firstEver && daysSinceActive == 1:
		u.CurrentStreak++
	default:
		u.CurrentStreak = 1
		change.Reset = !firstEver
	}

	if u.CurrentStreak > u.LongestStreak {
		u.LongestStreak = u.CurrentStreak
	}
	u.touch(now)

	change.Changed = true
	change.Current = u.CurrentStreak
	change.Longest = u.LongestStreak
	return change
}

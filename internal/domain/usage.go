package domain

import "time"

// Usage holds the rate counters of one account.
// DailyUsed counts committed actions since WindowStart; PerDestination never resets.
type Usage struct {
	DailyUsed      int
	WindowStart    time.Time
	PerDestination map[Destination]int
}

// WindowElapsed reports whether the daily window has rolled over at now.
func (u Usage) WindowElapsed(now time.Time) bool {
	if u.WindowStart.IsZero() {
		return true
	}

	return !now.Before(u.WindowStart.Add(DailyWindow))
}

// DailyUsedAt returns the daily counter as it stands at now, treating an elapsed window as empty.
func (u Usage) DailyUsedAt(now time.Time) int {
	if u.WindowElapsed(now) {
		return 0
	}
	return u.DailyUsed
}

func (u Usage) DestinationUsed(destination Destination) int {
	if destination == "" {
		return 0
	}
	return u.PerDestination[destination]
}

// Check returns ErrDailyLimitExceeded or ErrDestinationLimitExceeded when one more action would break limits.
func (u Usage) Check(limits AccountLimits, destination Destination, now time.Time) error {
	if destination != "" && u.DestinationUsed(destination) >= limits.PerDestination {
		return ErrDestinationLimitExceeded
	}
	if u.DailyUsedAt(now) >= limits.Daily {
		return ErrDailyLimitExceeded
	}

	return nil
}

// Roll starts a new daily window when the current one has elapsed. It reports whether it rolled.
func (u *Usage) Roll(now time.Time) bool {
	if !u.WindowElapsed(now) {
		return false
	}

	u.DailyUsed = 0
	u.WindowStart = now
	return true
}

// Commit records one successful action.
func (u *Usage) Commit(destination Destination, now time.Time) {
	u.Roll(now)
	u.DailyUsed++
	if destination == "" {
		return
	}
	if u.PerDestination == nil {
		u.PerDestination = map[Destination]int{}
	}
	u.PerDestination[destination]++
}

func (u Usage) Clone() Usage {
	clone := u
	if u.PerDestination != nil {
		clone.PerDestination = make(map[Destination]int, len(u.PerDestination))
		for destination, count := range u.PerDestination {
			clone.PerDestination[destination] = count
		}
	}
	return clone
}

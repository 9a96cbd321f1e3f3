package domain

import (
	"fmt"
	"time"
)

// DailyWindow is the rolling window after which an account's daily counter rolls over.
const DailyWindow = 24 * time.Hour

const DefaultPerDestinationLimit = 200

type AccountLimits struct {
	Daily          int
	PerDestination int
}

func (l AccountLimits) Validate() error {
	if l.Daily <= 0 {
		return fmt.Errorf("daily limit must be greater than zero")
	}
	if l.PerDestination <= 0 {
		return fmt.Errorf("per-destination limit must be greater than zero")
	}

	return nil
}

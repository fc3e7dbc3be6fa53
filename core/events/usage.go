package events

import (
	"time"

	"github.com/usagecast/usagecast/core/model"
)

// UsageStartedEvent is published when a usage session begins.
type UsageStartedEvent struct {
	ResourceID int
	StartTime  time.Time
	User       model.User
}

// UsageEndedEvent is published when a usage session finishes.
type UsageEndedEvent struct {
	ResourceID int
	StartTime  time.Time
	EndTime    time.Time
	User       model.User
}

// UsageTakenOverEvent is published when an active session passes directly
// from PreviousUser to NewUser without an idle period in between.
type UsageTakenOverEvent struct {
	ResourceID   int
	TakeoverTime time.Time
	NewUser      model.User
	PreviousUser *model.User
}

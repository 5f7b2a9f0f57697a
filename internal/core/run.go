package core

import (
	"errors"
	"time"
)

// ErrRunInProgress is returned when another accumulator run holds the lock.
var ErrRunInProgress = errors.New("another snapshot run is in progress")

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSuccess   RunStatus = "success"
	RunNoop      RunStatus = "noop"
	RunFailed    RunStatus = "failed"
	RunAbandoned RunStatus = "abandoned"
)

func (s RunStatus) Finished() bool { return s != RunRunning }

// RunRecord is one accumulator run as kept in the run journal.
type RunRecord struct {
	ID             int64
	StartedAt      time.Time
	FinishedAt     time.Time
	Status         RunStatus
	Window         Window
	MonthsAppended int
	LastDate       Date
	Error          string
}

// Duration is zero while the run is still going.
func (r RunRecord) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

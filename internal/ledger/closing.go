package ledger

import (
	"fmt"
	"time"

	"github.com/reifenwerk/ledger/internal/errs"
)

// ClosingStatus is the state of a fiscal year's closing. It only moves forward.
type ClosingStatus string

const (
	ClosingNotInitialized ClosingStatus = "not_initialized"
	ClosingInProgress     ClosingStatus = "in_progress"
	ClosingLocked         ClosingStatus = "locked"
)

func (s ClosingStatus) rank() int {
	switch s {
	case ClosingInProgress:
		return 1
	case ClosingLocked:
		return 2
	default:
		return 0
	}
}

// Valid reports whether s is one of the known states.
func (s ClosingStatus) Valid() bool {
	return s == ClosingNotInitialized || s == ClosingInProgress || s == ClosingLocked
}

// YearEndClosing tracks the closing workflow of one fiscal year.
type YearEndClosing struct {
	Year                    int
	FiscalYear              string
	Status                  ClosingStatus
	DepreciationCompletedAt *time.Time
	ReportsCompletedAt      *time.Time
	LockedAt                *time.Time
	InitiatedBy             string
	CreatedAt               time.Time
}

// Locked reports whether the year no longer accepts postings.
func (c YearEndClosing) Locked() bool { return c.Status == ClosingLocked }

// Advance is the only transition function of the closing state machine.
// It allows exactly one step forward and refuses to lock a year whose
// depreciation and report steps have not both completed.
func (c *YearEndClosing) Advance(next ClosingStatus, at time.Time) error {
	if !next.Valid() {
		return fmt.Errorf("%w: year %d: unknown closing status %q", errs.ErrValidation, c.Year, next)
	}
	if c.Status == ClosingLocked {
		return fmt.Errorf("%w: year %d is locked", errs.ErrAlreadyLocked, c.Year)
	}
	if next.rank() != c.Status.rank()+1 {
		return fmt.Errorf("%w: year %d: cannot move from %s to %s", errs.ErrValidation, c.Year, c.Status, next)
	}
	if next == ClosingLocked {
		if c.DepreciationCompletedAt == nil {
			return fmt.Errorf("%w: year %d: depreciation step not completed", errs.ErrValidation, c.Year)
		}
		if c.ReportsCompletedAt == nil {
			return fmt.Errorf("%w: year %d: report step not completed", errs.ErrValidation, c.Year)
		}
		t := at
		c.LockedAt = &t
	}
	c.Status = next
	return nil
}

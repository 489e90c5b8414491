package billing

import (
	"time"

	"github.com/trezcool/shule/core"
)

// Effective statuses derived at read time. PAID and CANCELLED pass through
// from the stored status; the rest are computed relative to "today".
const (
	EffectivePaid      = "PAID"
	EffectiveCancelled = "CANCELLED"
	EffectiveOverdue   = "OVERDUE"
	EffectiveDue       = "DUE"
	EffectiveUpcoming  = "UPCOMING"
)

// EffectiveStatus derives an installment's date-relative status.
// The stored status column only ever holds terminal states; everything else is
// computed here on every read so stored and derived states cannot drift.
func EffectiveStatus(inst Installment, today time.Time) string {
	switch inst.Status {
	case InstallmentPaid:
		return EffectivePaid
	case InstallmentCancelled:
		return EffectiveCancelled
	}

	if core.DateOf(inst.DueDate).Before(core.DateOf(today)) {
		return EffectiveOverdue
	}

	now := YearMonth{Year: today.Year(), Month: int(today.Month())}
	pos := YearMonth{Year: inst.Year, Month: inst.Month}
	switch {
	case pos == now:
		return EffectiveDue
	case pos.After(now):
		return EffectiveUpcoming
	}
	// a chronologically past month whose due date has not passed yet; this is
	// inconsistent data and should not normally arise (callers log it)
	return EffectiveDue
}

// statusInconsistent reports whether a non-terminal installment sits in a past
// month while its due date has not passed, ie. the EffectiveStatus fallback.
func statusInconsistent(inst Installment, today time.Time) bool {
	if inst.Status == InstallmentPaid || inst.Status == InstallmentCancelled {
		return false
	}
	pos := YearMonth{Year: inst.Year, Month: inst.Month}
	now := YearMonth{Year: today.Year(), Month: int(today.Month())}
	return pos.Before(now) && !core.DateOf(inst.DueDate).Before(core.DateOf(today))
}

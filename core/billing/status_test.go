package billing

import (
	"testing"
	"time"
)

func TestEffectiveStatus(t *testing.T) {
	today := time.Date(2026, time.June, 15, 10, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		inst Installment
		want string
	}{
		{
			name: "paid passes through",
			inst: Installment{Status: InstallmentPaid, Month: 1, Year: 2026, DueDate: time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)},
			want: EffectivePaid,
		},
		{
			name: "cancelled passes through",
			inst: Installment{Status: InstallmentCancelled, Month: 12, Year: 2026, DueDate: time.Date(2026, 12, 10, 0, 0, 0, 0, time.UTC)},
			want: EffectiveCancelled,
		},
		{
			name: "due date passed",
			inst: Installment{Status: InstallmentPending, Month: 5, Year: 2026, DueDate: time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)},
			want: EffectiveOverdue,
		},
		{
			name: "due today is not overdue",
			inst: Installment{Status: InstallmentPending, Month: 6, Year: 2026, DueDate: time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)},
			want: EffectiveDue,
		},
		{
			name: "current month, due date ahead",
			inst: Installment{Status: InstallmentPending, Month: 6, Year: 2026, DueDate: time.Date(2026, 6, 25, 0, 0, 0, 0, time.UTC)},
			want: EffectiveDue,
		},
		{
			name: "future month",
			inst: Installment{Status: InstallmentPending, Month: 7, Year: 2026, DueDate: time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC)},
			want: EffectiveUpcoming,
		},
		{
			name: "future year",
			inst: Installment{Status: InstallmentPending, Month: 1, Year: 2027, DueDate: time.Date(2027, 1, 10, 0, 0, 0, 0, time.UTC)},
			want: EffectiveUpcoming,
		},
		{
			name: "past month but unexpired due date falls back to due",
			inst: Installment{Status: InstallmentPending, Month: 5, Year: 2026, DueDate: time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)},
			want: EffectiveDue,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EffectiveStatus(tt.inst, today); got != tt.want {
				t.Errorf("EffectiveStatus() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusInconsistent(t *testing.T) {
	today := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)

	ok := Installment{Status: InstallmentPending, Month: 6, Year: 2026, DueDate: time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)}
	if statusInconsistent(ok, today) {
		t.Error("statusInconsistent() = true for a consistent installment")
	}

	bad := Installment{Status: InstallmentPending, Month: 5, Year: 2026, DueDate: time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC)}
	if !statusInconsistent(bad, today) {
		t.Error("statusInconsistent() = false for a past month with an unexpired due date")
	}

	paid := bad
	paid.Status = InstallmentPaid
	if statusInconsistent(paid, today) {
		t.Error("statusInconsistent() = true for a terminal installment")
	}
}

package dashboard

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core/billing"
)

type fakeRepo struct {
	paidInstallments []billing.Installment
	paidExpenses     []struct {
		amount float64
		paidAt time.Time
	}
	open        []billing.Installment
	students    int
	enrollments int
	names       map[string]string
}

func (r *fakeRepo) SumPaidInstallments(_ context.Context, from, to time.Time) (float64, error) {
	var sum float64
	for _, inst := range r.paidInstallments {
		if !inst.PaidAt.Valid {
			continue
		}
		if at := inst.PaidAt.Time; !at.Before(from) && at.Before(to) {
			sum += inst.PaidAmount.Float64
		}
	}
	return sum, nil
}

func (r *fakeRepo) SumPaidExpenses(_ context.Context, from, to time.Time) (float64, error) {
	var sum float64
	for _, exp := range r.paidExpenses {
		if !exp.paidAt.Before(from) && exp.paidAt.Before(to) {
			sum += exp.amount
		}
	}
	return sum, nil
}

func (r *fakeRepo) QueryOpenInstallments(_ context.Context) ([]billing.Installment, error) {
	return r.open, nil
}

func (r *fakeRepo) CountStudents(_ context.Context) (int, error) {
	return r.students, nil
}

func (r *fakeRepo) CountActiveEnrollments(_ context.Context) (int, error) {
	return r.enrollments, nil
}

func (r *fakeRepo) StudentNames(_ context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	for _, id := range ids {
		names[id] = r.names[id]
	}
	return names, nil
}

func setNow(t *testing.T, now time.Time) {
	t.Helper()
	NowFunc = func() time.Time { return now }
	t.Cleanup(func() { NowFunc = time.Now })
}

func paid(amount float64, at time.Time) billing.Installment {
	return billing.Installment{
		Status:     billing.InstallmentPaid,
		PaidAmount: null.Float64From(amount),
		PaidAt:     null.TimeFrom(at),
	}
}

func open(studentID string, month, year int, due time.Time, base, discount, surcharge float64) billing.Installment {
	return billing.Installment{
		StudentID:       studentID,
		Month:           month,
		Year:            year,
		BaseAmount:      base,
		DiscountAmount:  discount,
		SurchargeAmount: surcharge,
		DueDate:         due,
		Status:          billing.InstallmentPending,
	}
}

func TestSummary(t *testing.T) {
	now := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)
	setNow(t, now)

	repo := &fakeRepo{
		paidInstallments: []billing.Installment{
			paid(500, time.Date(2026, 6, 2, 0, 0, 0, 0, time.UTC)),
			paid(450, time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC)),
			paid(500, time.Date(2026, 5, 28, 0, 0, 0, 0, time.UTC)), // previous month
		},
		paidExpenses: []struct {
			amount float64
			paidAt time.Time
		}{
			{320, time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC)},
			{100, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)}, // next month
		},
		open: []billing.Installment{
			open("s1", 5, 2026, time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC), 500, 0, 0),  // overdue
			open("s1", 6, 2026, time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC), 500, 0, 0),  // due
			open("s1", 7, 2026, time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC), 500, 0, 0),  // upcoming
			open("s2", 6, 2026, time.Date(2026, 6, 10, 0, 0, 0, 0, time.UTC), 450, 0, 50), // overdue
		},
		students:    42,
		enrollments: 40,
	}
	svc := NewService(repo)

	sum, err := svc.Summary()
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if sum.MonthlyRevenue != 950 {
		t.Errorf("revenue = %v, want 950", sum.MonthlyRevenue)
	}
	if sum.MonthlyExpense != 320 {
		t.Errorf("expense = %v, want 320", sum.MonthlyExpense)
	}
	if sum.PendingInstallments != 3 { // due + overdue, upcoming excluded
		t.Errorf("pending = %d, want 3", sum.PendingInstallments)
	}
	if sum.Students != 42 || sum.ActiveEnrollments != 40 {
		t.Errorf("headcounts = %d/%d, want 42/40", sum.Students, sum.ActiveEnrollments)
	}
}

func TestDelinquents(t *testing.T) {
	now := time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC)
	setNow(t, now)

	overdue := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeRepo{
		open: []billing.Installment{
			open("s1", 4, 2026, time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC), 500, 50, 0), // 450
			open("s1", 5, 2026, overdue, 500, 0, 0),                                       // 500
			open("s2", 5, 2026, overdue, 950, 0, 0),
			open("s3", 5, 2026, overdue, 950, 0, 0),
			open("s4", 6, 2026, time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC), 999, 0, 0), // due, not delinquent
		},
		names: map[string]string{"s1": "Amina", "s2": "Zawadi", "s3": "Bakari", "s4": "Neema"},
	}
	svc := NewService(repo)

	dels, err := svc.Delinquents(0)
	if err != nil {
		t.Fatalf("Delinquents() error = %v", err)
	}
	if len(dels) != 3 {
		t.Fatalf("got %d delinquents, want 3", len(dels))
	}
	// s1 owes 950 over two installments; s2/s3 tie at 950 and break on name
	if dels[0].StudentName != "Amina" || dels[0].Outstanding != 950 || dels[0].OverdueCount != 2 {
		t.Errorf("first = %+v", dels[0])
	}
	if dels[1].StudentName != "Bakari" || dels[2].StudentName != "Zawadi" {
		t.Errorf("tie-break order = %s, %s", dels[1].StudentName, dels[2].StudentName)
	}

	// topN truncates
	if dels, err = svc.Delinquents(2); err != nil || len(dels) != 2 {
		t.Errorf("Delinquents(2) = %d items, err %v", len(dels), err)
	}
}

func TestRevenueTrend(t *testing.T) {
	setNow(t, time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC))

	repo := &fakeRepo{
		paidInstallments: []billing.Installment{
			paid(500, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)),
			paid(600, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)),
			paid(700, time.Date(2026, 6, 5, 0, 0, 0, 0, time.UTC)),
		},
		paidExpenses: []struct {
			amount float64
			paidAt time.Time
		}{
			{200, time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)},
		},
	}
	svc := NewService(repo)

	points, err := svc.RevenueTrend()
	if err != nil {
		t.Fatalf("RevenueTrend() error = %v", err)
	}
	if len(points) != 6 {
		t.Fatalf("got %d points, want 6", len(points))
	}
	if points[0].Month != 1 || points[5].Month != 6 {
		t.Errorf("months %d..%d, want 1..6", points[0].Month, points[5].Month)
	}
	if points[0].Revenue != 500 || points[2].Revenue != 600 || points[5].Revenue != 700 {
		t.Errorf("revenue points = %+v", points)
	}
	if points[1].Expense != 200 {
		t.Errorf("february expense = %v, want 200", points[1].Expense)
	}
}

func TestAnnualHistory(t *testing.T) {
	setNow(t, time.Date(2026, time.June, 15, 0, 0, 0, 0, time.UTC))

	repo := &fakeRepo{
		paidInstallments: []billing.Installment{
			paid(500, time.Date(2026, 12, 5, 0, 0, 0, 0, time.UTC)),
			paid(100, time.Date(2025, 12, 5, 0, 0, 0, 0, time.UTC)), // out of year
		},
	}
	svc := NewService(repo)

	points, err := svc.AnnualHistory(2026)
	if err != nil {
		t.Fatalf("AnnualHistory() error = %v", err)
	}
	if len(points) != 12 {
		t.Fatalf("got %d points, want 12", len(points))
	}
	if points[0].Month != 1 || points[11].Month != 12 {
		t.Errorf("months %d..%d, want 1..12", points[0].Month, points[11].Month)
	}
	if points[11].Revenue != 500 {
		t.Errorf("december revenue = %v, want 500", points[11].Revenue)
	}

	// year 0 defaults to the current year
	if points, err = svc.AnnualHistory(0); err != nil || points[0].Year != 2026 {
		t.Errorf("AnnualHistory(0) year = %d, err %v", points[0].Year, err)
	}
}

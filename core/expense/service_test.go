package expense

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/trezcool/shule/core"
)

type fakeRepo struct {
	seq      int
	expenses map[string]Expense
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{expenses: make(map[string]Expense)}
}

func (r *fakeRepo) CreateExpense(_ context.Context, exp Expense, _ ...core.DBExecutor) (Expense, error) {
	r.seq++
	exp.ID = fmt.Sprintf("exp-%03d", r.seq)
	r.expenses[exp.ID] = exp
	return exp, nil
}

func (r *fakeRepo) GetExpenseByID(_ context.Context, id string, _ ...core.DBExecutor) (Expense, error) {
	if exp, ok := r.expenses[id]; ok {
		return exp, nil
	}
	return Expense{}, ErrNotFound
}

func (r *fakeRepo) QueryExpenses(_ context.Context, filter *QueryFilter, _ ...core.DBExecutor) ([]Expense, error) {
	var exps []Expense
	for _, exp := range r.expenses {
		if filter != nil {
			if filter.Category != "" && exp.Category != filter.Category {
				continue
			}
			if filter.Status != "" && exp.Status != filter.Status {
				continue
			}
		}
		exps = append(exps, exp)
	}
	return exps, nil
}

func (r *fakeRepo) UpdateExpense(_ context.Context, exp Expense, _ ...core.DBExecutor) (Expense, error) {
	if _, ok := r.expenses[exp.ID]; !ok {
		return Expense{}, ErrNotFound
	}
	r.expenses[exp.ID] = exp
	return exp, nil
}

func TestMarkPaid(t *testing.T) {
	now := time.Date(2026, time.April, 10, 14, 0, 0, 0, time.UTC)
	NowFunc = func() time.Time { return now }
	t.Cleanup(func() { NowFunc = time.Now })

	svc := NewService(newFakeRepo())
	exp, err := svc.Create(NewExpense{
		Category:    "utilities",
		Description: "April electricity",
		Amount:      320,
		DueDate:     time.Date(2026, time.April, 20, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if exp.Status != StatusPending {
		t.Errorf("status = %s, want %s", exp.Status, StatusPending)
	}

	exp, err = svc.MarkPaid(exp.ID)
	if err != nil {
		t.Fatalf("MarkPaid() error = %v", err)
	}
	if exp.Status != StatusPaid {
		t.Errorf("status = %s, want %s", exp.Status, StatusPaid)
	}
	if !exp.PaidAt.Valid || !exp.PaidAt.Time.Equal(now) {
		t.Errorf("paid_at = %v, want %v", exp.PaidAt, now)
	}

	if _, err = svc.MarkPaid(exp.ID); err != ErrAlreadyPaid {
		t.Errorf("second MarkPaid() error = %v, want %v", err, ErrAlreadyPaid)
	}
	if _, err = svc.Cancel(exp.ID); err != ErrAlreadyPaid {
		t.Errorf("Cancel() after payment error = %v, want %v", err, ErrAlreadyPaid)
	}
}

func TestCancel(t *testing.T) {
	svc := NewService(newFakeRepo())
	exp, err := svc.Create(NewExpense{
		Category:    "maintenance",
		Description: "roof repair",
		Amount:      1500,
		DueDate:     time.Date(2026, time.May, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}

	exp, err = svc.Cancel(exp.ID)
	if err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if exp.Status != StatusCancelled {
		t.Errorf("status = %s, want %s", exp.Status, StatusCancelled)
	}
}

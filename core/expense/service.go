package expense

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

var (
	// NowFunc tells the expense clock; mockable in tests.
	NowFunc = time.Now

	// errors
	ErrNotFound    = errors.New("expense not found")
	ErrAlreadyPaid = errors.New("expense is already paid")
)

type (
	Repository interface {
		CreateExpense(ctx context.Context, exp Expense, exec ...core.DBExecutor) (Expense, error)
		GetExpenseByID(ctx context.Context, id string, exec ...core.DBExecutor) (Expense, error)
		QueryExpenses(ctx context.Context, filter *QueryFilter, exec ...core.DBExecutor) ([]Expense, error)
		UpdateExpense(ctx context.Context, exp Expense, exec ...core.DBExecutor) (Expense, error)
	}

	ServiceInterface interface {
		Create(ne NewExpense) (Expense, error)
		GetByID(id string) (Expense, error)
		Query(filter *QueryFilter) ([]Expense, error)
		Update(id string, ue UpdateExpense) (Expense, error)
		MarkPaid(id string) (Expense, error)
		Cancel(id string) (Expense, error)
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Create(ne NewExpense) (Expense, error) {
	now := NowFunc().UTC()
	exp := Expense{
		Category:    ne.Category,
		Description: ne.Description,
		Amount:      ne.Amount,
		DueDate:     ne.DueDate,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateExpense(context.Background(), exp)
}

func (svc *Service) GetByID(id string) (Expense, error) {
	return svc.repo.GetExpenseByID(context.Background(), id)
}

func (svc *Service) Query(filter *QueryFilter) ([]Expense, error) {
	return svc.repo.QueryExpenses(context.Background(), filter)
}

func (svc *Service) Update(id string, ue UpdateExpense) (Expense, error) {
	ctx := context.Background()
	exp, err := svc.repo.GetExpenseByID(ctx, id)
	if err != nil {
		return Expense{}, err
	}
	if ue.Category != "" {
		exp.Category = ue.Category
	}
	if ue.Description != "" {
		exp.Description = ue.Description
	}
	if ue.Amount != nil {
		exp.Amount = *ue.Amount
	}
	if ue.DueDate != nil {
		exp.DueDate = *ue.DueDate
	}
	exp.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateExpense(ctx, exp)
}

func (svc *Service) MarkPaid(id string) (Expense, error) {
	ctx := context.Background()
	exp, err := svc.repo.GetExpenseByID(ctx, id)
	if err != nil {
		return Expense{}, err
	}
	if exp.Status == StatusPaid {
		return Expense{}, ErrAlreadyPaid
	}
	now := NowFunc().UTC()
	exp.Status = StatusPaid
	exp.PaidAt = null.TimeFrom(now)
	exp.UpdatedAt = now
	return svc.repo.UpdateExpense(ctx, exp)
}

func (svc *Service) Cancel(id string) (Expense, error) {
	ctx := context.Background()
	exp, err := svc.repo.GetExpenseByID(ctx, id)
	if err != nil {
		return Expense{}, err
	}
	if exp.Status == StatusPaid {
		return Expense{}, ErrAlreadyPaid
	}
	exp.Status = StatusCancelled
	exp.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdateExpense(ctx, exp)
}

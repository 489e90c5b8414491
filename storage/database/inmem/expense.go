package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/expense"
)

type expenseRepository struct {
	db *DB
}

var _ expense.Repository = (*expenseRepository)(nil)

func NewExpenseRepository(db *DB) *expenseRepository {
	return &expenseRepository{db: db}
}

func (repo *expenseRepository) CreateExpense(_ context.Context, exp expense.Expense, _ ...core.DBExecutor) (expense.Expense, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	exp.ID = uuid.New().String()
	repo.db.expenses[exp.ID] = &exp
	return exp, nil
}

func (repo *expenseRepository) GetExpenseByID(_ context.Context, id string, _ ...core.DBExecutor) (expense.Expense, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if exp, ok := repo.db.expenses[id]; ok {
		return *exp, nil
	}
	return expense.Expense{}, expense.ErrNotFound
}

func (repo *expenseRepository) QueryExpenses(_ context.Context, filter *expense.QueryFilter, _ ...core.DBExecutor) ([]expense.Expense, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	expenses := make([]expense.Expense, 0, len(repo.db.expenses))
	for _, exp := range repo.db.expenses {
		if filter != nil {
			if filter.Category != "" && exp.Category != filter.Category {
				continue
			}
			if filter.Status != "" && exp.Status != filter.Status {
				continue
			}
			if filter.Year != 0 && exp.DueDate.Year() != filter.Year {
				continue
			}
			if filter.Month != 0 && int(exp.DueDate.Month()) != filter.Month {
				continue
			}
		}
		expenses = append(expenses, *exp)
	}
	sort.Slice(expenses, func(i, j int) bool { return expenses[i].DueDate.After(expenses[j].DueDate) })
	return expenses, nil
}

func (repo *expenseRepository) UpdateExpense(_ context.Context, exp expense.Expense, _ ...core.DBExecutor) (expense.Expense, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.expenses[exp.ID]; !ok {
		return expense.Expense{}, expense.ErrNotFound
	}
	repo.db.expenses[exp.ID] = &exp
	return exp, nil
}

package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/expense"
)

const expenseColumns = `id, category, description, amount, due_date, paid_at, status, created_at, updated_at`

type expenseRepository struct {
	db *sqlx.DB
}

var _ expense.Repository = (*expenseRepository)(nil)

func NewExpenseRepository(db *sqlx.DB) *expenseRepository {
	return &expenseRepository{db: db}
}

func (repo *expenseRepository) CreateExpense(ctx context.Context, exp expense.Expense, exec ...core.DBExecutor) (expense.Expense, error) {
	exp.ID = uuid.New().String()
	q := `INSERT INTO expense (` + expenseColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		exp.ID, exp.Category, exp.Description, exp.Amount, exp.DueDate, exp.PaidAt, exp.Status, exp.CreatedAt, exp.UpdatedAt,
	)
	if err != nil {
		return expense.Expense{}, errors.Wrap(err, "inserting expense")
	}
	return exp, nil
}

func (repo *expenseRepository) GetExpenseByID(ctx context.Context, id string, exec ...core.DBExecutor) (expense.Expense, error) {
	var exp expense.Expense
	q := `SELECT ` + expenseColumns + ` FROM expense WHERE id = $1`
	if err := sqlx.GetContext(ctx, queryer(repo.db, exec), &exp, q, id); err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return expense.Expense{}, expense.ErrNotFound
		}
		return expense.Expense{}, errors.Wrap(err, "finding expense by ID")
	}
	return exp, nil
}

func (repo *expenseRepository) QueryExpenses(ctx context.Context, filter *expense.QueryFilter, exec ...core.DBExecutor) ([]expense.Expense, error) {
	q := `SELECT ` + expenseColumns + ` FROM expense`
	var conds []string
	var args []interface{}
	if filter != nil {
		if filter.Category != "" {
			conds = append(conds, fmt.Sprintf("category = $%d", len(args)+1))
			args = append(args, filter.Category)
		}
		if filter.Status != "" {
			conds = append(conds, fmt.Sprintf("status = $%d", len(args)+1))
			args = append(args, filter.Status)
		}
		if filter.Year != 0 {
			conds = append(conds, fmt.Sprintf("EXTRACT(YEAR FROM due_date) = $%d", len(args)+1))
			args = append(args, filter.Year)
		}
		if filter.Month != 0 {
			conds = append(conds, fmt.Sprintf("EXTRACT(MONTH FROM due_date) = $%d", len(args)+1))
			args = append(args, filter.Month)
		}
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY due_date DESC`

	expenses := []expense.Expense{}
	if err := sqlx.SelectContext(ctx, queryer(repo.db, exec), &expenses, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying expenses")
	}
	return expenses, nil
}

func (repo *expenseRepository) UpdateExpense(ctx context.Context, exp expense.Expense, exec ...core.DBExecutor) (expense.Expense, error) {
	q := `UPDATE expense
		SET category = $2, description = $3, amount = $4, due_date = $5, paid_at = $6, status = $7, updated_at = $8
		WHERE id = $1`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q,
		exp.ID, exp.Category, exp.Description, exp.Amount, exp.DueDate, exp.PaidAt, exp.Status, exp.UpdatedAt,
	)
	if err != nil {
		return expense.Expense{}, errors.Wrap(err, "updating expense")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return expense.Expense{}, expense.ErrNotFound
	}
	return exp, nil
}

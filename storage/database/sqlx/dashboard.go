package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core/billing"
	"github.com/trezcool/shule/core/dashboard"
	"github.com/trezcool/shule/core/expense"
)

type dashboardRepository struct {
	db *sqlx.DB
}

var _ dashboard.Repository = (*dashboardRepository)(nil)

func NewDashboardRepository(db *sqlx.DB) *dashboardRepository {
	return &dashboardRepository{db: db}
}

func (repo *dashboardRepository) SumPaidInstallments(ctx context.Context, from, to time.Time) (float64, error) {
	var sum float64
	q := `SELECT COALESCE(SUM(paid_amount), 0) FROM installment
		WHERE status = $1 AND paid_at >= $2 AND paid_at < $3`
	if err := sqlx.GetContext(ctx, repo.db, &sum, q, billing.InstallmentPaid, from, to); err != nil {
		return 0, errors.Wrap(err, "summing paid installments")
	}
	return sum, nil
}

func (repo *dashboardRepository) SumPaidExpenses(ctx context.Context, from, to time.Time) (float64, error) {
	var sum float64
	q := `SELECT COALESCE(SUM(amount), 0) FROM expense
		WHERE status = $1 AND paid_at >= $2 AND paid_at < $3`
	if err := sqlx.GetContext(ctx, repo.db, &sum, q, expense.StatusPaid, from, to); err != nil {
		return 0, errors.Wrap(err, "summing paid expenses")
	}
	return sum, nil
}

func (repo *dashboardRepository) QueryOpenInstallments(ctx context.Context) ([]billing.Installment, error) {
	installments := []billing.Installment{}
	q := `SELECT ` + installmentColumns + ` FROM installment WHERE status = $1`
	if err := sqlx.SelectContext(ctx, repo.db, &installments, q, billing.InstallmentPending); err != nil {
		return nil, errors.Wrap(err, "querying open installments")
	}
	return installments, nil
}

func (repo *dashboardRepository) CountStudents(ctx context.Context) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, repo.db, &count, `SELECT COUNT(*) FROM student`); err != nil {
		return 0, errors.Wrap(err, "counting students")
	}
	return count, nil
}

func (repo *dashboardRepository) CountActiveEnrollments(ctx context.Context) (int, error) {
	var count int
	q := `SELECT COUNT(*) FROM enrollment WHERE status = $1`
	if err := sqlx.GetContext(ctx, repo.db, &count, q, billing.EnrollmentActive); err != nil {
		return 0, errors.Wrap(err, "counting active enrollments")
	}
	return count, nil
}

func (repo *dashboardRepository) StudentNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	q, args, err := sqlx.In(`SELECT id, full_name FROM student WHERE id IN (?)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "expanding student IDs")
	}
	rows, err := repo.db.QueryContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying student names")
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id, name string
		if err = rows.Scan(&id, &name); err != nil {
			return nil, errors.Wrap(err, "scanning student name")
		}
		names[id] = name
	}
	return names, rows.Err()
}

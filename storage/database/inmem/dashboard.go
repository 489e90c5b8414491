package inmemdb

import (
	"context"
	"time"

	"github.com/trezcool/shule/core/billing"
	"github.com/trezcool/shule/core/dashboard"
	"github.com/trezcool/shule/core/expense"
)

type dashboardRepository struct {
	db *DB
}

var _ dashboard.Repository = (*dashboardRepository)(nil)

func NewDashboardRepository(db *DB) *dashboardRepository {
	return &dashboardRepository{db: db}
}

func (repo *dashboardRepository) SumPaidInstallments(_ context.Context, from, to time.Time) (float64, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var sum float64
	for _, inst := range repo.db.installments {
		if inst.Status != billing.InstallmentPaid || !inst.PaidAt.Valid {
			continue
		}
		if paidAt := inst.PaidAt.Time; !paidAt.Before(from) && paidAt.Before(to) {
			sum += inst.PaidAmount.Float64
		}
	}
	return sum, nil
}

func (repo *dashboardRepository) SumPaidExpenses(_ context.Context, from, to time.Time) (float64, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var sum float64
	for _, exp := range repo.db.expenses {
		if exp.Status != expense.StatusPaid || !exp.PaidAt.Valid {
			continue
		}
		if paidAt := exp.PaidAt.Time; !paidAt.Before(from) && paidAt.Before(to) {
			sum += exp.Amount
		}
	}
	return sum, nil
}

func (repo *dashboardRepository) QueryOpenInstallments(_ context.Context) ([]billing.Installment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	installments := []billing.Installment{}
	for _, inst := range repo.db.installments {
		if inst.Status == billing.InstallmentPending {
			installments = append(installments, *inst)
		}
	}
	return installments, nil
}

func (repo *dashboardRepository) CountStudents(_ context.Context) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.db.students), nil
}

func (repo *dashboardRepository) CountActiveEnrollments(_ context.Context) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, enr := range repo.db.enrollments {
		if enr.Status == billing.EnrollmentActive {
			count++
		}
	}
	return count, nil
}

func (repo *dashboardRepository) StudentNames(_ context.Context, ids []string) (map[string]string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	names := make(map[string]string, len(ids))
	for _, id := range ids {
		if stu, ok := repo.db.students[id]; ok {
			names[id] = stu.FullName
		}
	}
	return names, nil
}

package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/billing"
)

type billingRepository struct {
	db *DB
}

var _ billing.Repository = (*billingRepository)(nil)

func NewBillingRepository(db *DB) *billingRepository {
	return &billingRepository{db: db}
}

func (repo *billingRepository) CheckPlanUniqueness(_ context.Context, name string, excluded []billing.Plan, _ ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, plan := range repo.db.plans {
		if !strings.EqualFold(plan.Name, name) {
			continue
		}
		skip := false
		for _, ex := range excluded {
			if ex.ID == plan.ID {
				skip = true
			}
		}
		if !skip {
			return billing.ErrPlanExists
		}
	}
	return nil
}

func (repo *billingRepository) CreatePlan(_ context.Context, plan billing.Plan, _ ...core.DBExecutor) (billing.Plan, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	plan.ID = uuid.New().String()
	repo.db.plans[plan.ID] = &plan
	return plan, nil
}

func (repo *billingRepository) GetPlanByID(_ context.Context, id string, _ ...core.DBExecutor) (billing.Plan, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if plan, ok := repo.db.plans[id]; ok {
		return *plan, nil
	}
	return billing.Plan{}, billing.ErrPlanNotFound
}

func (repo *billingRepository) QueryPlans(_ context.Context, filter *billing.PlanFilter, _ ...core.DBExecutor) ([]billing.Plan, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	plans := make([]billing.Plan, 0, len(repo.db.plans))
	for _, plan := range repo.db.plans {
		if filter != nil {
			if filter.Search != "" && !strings.Contains(strings.ToLower(plan.Name), strings.ToLower(filter.Search)) {
				continue
			}
			if filter.Active != nil && plan.Active != *filter.Active {
				continue
			}
		}
		plans = append(plans, *plan)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Name < plans[j].Name })
	return plans, nil
}

func (repo *billingRepository) UpdatePlan(_ context.Context, plan billing.Plan, _ ...core.DBExecutor) (billing.Plan, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.plans[plan.ID]; !ok {
		return billing.Plan{}, billing.ErrPlanNotFound
	}
	repo.db.plans[plan.ID] = &plan
	return plan, nil
}

func (repo *billingRepository) CreateEnrollment(_ context.Context, enr billing.Enrollment, _ ...core.DBExecutor) (billing.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	// mirrors the enrollment_active_uniq partial index
	for _, other := range repo.db.enrollments {
		if other.StudentID == enr.StudentID && other.AcademicYear == enr.AcademicYear && other.Status != billing.EnrollmentCancelled {
			return billing.Enrollment{}, &billing.DuplicateEnrollmentError{AcademicYear: enr.AcademicYear}
		}
	}
	enr.ID = uuid.New().String()
	repo.db.enrollments[enr.ID] = &enr
	return repo.withDisplayFields(enr), nil
}

func (repo *billingRepository) GetEnrollmentByID(_ context.Context, id string, _ ...core.DBExecutor) (billing.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if enr, ok := repo.db.enrollments[id]; ok {
		return repo.withDisplayFields(*enr), nil
	}
	return billing.Enrollment{}, billing.ErrEnrollmentNotFound
}

func (repo *billingRepository) GetActiveEnrollment(_ context.Context, studentID string, academicYear int, _ ...core.DBExecutor) (billing.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, enr := range repo.db.enrollments {
		if enr.StudentID == studentID && enr.AcademicYear == academicYear && enr.Status != billing.EnrollmentCancelled {
			return repo.withDisplayFields(*enr), nil
		}
	}
	return billing.Enrollment{}, billing.ErrEnrollmentNotFound
}

func (repo *billingRepository) QueryEnrollments(_ context.Context, filter *billing.EnrollmentFilter, _ ...core.DBExecutor) ([]billing.Enrollment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	enrollments := make([]billing.Enrollment, 0, len(repo.db.enrollments))
	for _, enr := range repo.db.enrollments {
		if filter != nil {
			if filter.StudentID != "" && enr.StudentID != filter.StudentID {
				continue
			}
			if filter.AcademicYear != 0 && enr.AcademicYear != filter.AcademicYear {
				continue
			}
			if filter.Status != "" && enr.Status != filter.Status {
				continue
			}
		}
		enrollments = append(enrollments, repo.withDisplayFields(*enr))
	}
	sort.Slice(enrollments, func(i, j int) bool {
		return enrollments[i].EnrolledAt.After(enrollments[j].EnrolledAt)
	})
	return enrollments, nil
}

func (repo *billingRepository) UpdateEnrollment(_ context.Context, enr billing.Enrollment, _ ...core.DBExecutor) (billing.Enrollment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.enrollments[enr.ID]; !ok {
		return billing.Enrollment{}, billing.ErrEnrollmentNotFound
	}
	repo.db.enrollments[enr.ID] = &enr
	return repo.withDisplayFields(enr), nil
}

func (repo *billingRepository) CreateInstallments(_ context.Context, insts []billing.Installment, _ ...core.DBExecutor) ([]billing.Installment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	created := make([]billing.Installment, 0, len(insts))
	for i := range insts {
		inst := insts[i]
		inst.ID = uuid.New().String()
		repo.db.installments[inst.ID] = &inst
		created = append(created, inst)
	}
	return created, nil
}

func (repo *billingRepository) GetInstallmentByID(_ context.Context, id string, _ ...core.DBExecutor) (billing.Installment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if inst, ok := repo.db.installments[id]; ok {
		return *inst, nil
	}
	return billing.Installment{}, billing.ErrInstallmentNotFound
}

func (repo *billingRepository) QueryInstallments(_ context.Context, filter *billing.InstallmentFilter, _ ...core.DBExecutor) ([]billing.Installment, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	installments := make([]billing.Installment, 0, len(repo.db.installments))
	for _, inst := range repo.db.installments {
		if filter != nil {
			if filter.StudentID != "" && inst.StudentID != filter.StudentID {
				continue
			}
			if filter.EnrollmentID != "" && inst.EnrollmentID != filter.EnrollmentID {
				continue
			}
			if filter.Status != "" && inst.Status != filter.Status {
				continue
			}
			if filter.Year != 0 && inst.Year != filter.Year {
				continue
			}
			if filter.After != nil {
				period := billing.YearMonth{Year: inst.Year, Month: inst.Month}
				if !period.After(*filter.After) {
					continue
				}
			}
		}
		installments = append(installments, *inst)
	}
	sort.Slice(installments, func(i, j int) bool {
		a, b := installments[i], installments[j]
		if a.Year != b.Year {
			return a.Year < b.Year
		}
		return a.Month < b.Month
	})
	return installments, nil
}

func (repo *billingRepository) UpdateInstallment(_ context.Context, inst billing.Installment, _ ...core.DBExecutor) (billing.Installment, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.installments[inst.ID]; !ok {
		return billing.Installment{}, billing.ErrInstallmentNotFound
	}
	repo.db.installments[inst.ID] = &inst
	return inst, nil
}

// withDisplayFields fills the joined read-only fields; callers must hold the lock.
func (repo *billingRepository) withDisplayFields(enr billing.Enrollment) billing.Enrollment {
	if stu, ok := repo.db.students[enr.StudentID]; ok {
		enr.StudentName = stu.FullName
	}
	if plan, ok := repo.db.plans[enr.PlanID]; ok {
		enr.PlanName = plan.Name
	}
	return enr
}

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
	"github.com/trezcool/shule/core/billing"
)

const (
	planColumns = `id, name, monthly_amount, active, created_at, updated_at`

	enrollmentColumns = `e.id, e.student_id, e.plan_id, e.academic_year, e.enrollment_fee, e.monthly_amount,
		e.due_day, e.enrolled_at, e.status, e.discount_pct, e.created_at, e.updated_at,
		s.full_name AS student_name, p.name AS plan_name`

	enrollmentJoins = ` FROM enrollment e
		JOIN student s ON s.id = e.student_id
		JOIN tuition_plan p ON p.id = e.plan_id`

	installmentColumns = `id, student_id, enrollment_id, month, year, base_amount, paid_amount,
		discount_amount, surcharge_amount, due_date, paid_at, status, payment_method, notes,
		created_at, updated_at`
)

type billingRepository struct {
	db *sqlx.DB
}

var _ billing.Repository = (*billingRepository)(nil)

func NewBillingRepository(db *sqlx.DB) *billingRepository {
	return &billingRepository{db: db}
}

func (repo *billingRepository) trapNoRowsErr(err error, sentinel error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return sentinel
	}
	return errors.Wrap(err, msg)
}

// Plans

func (repo *billingRepository) CheckPlanUniqueness(ctx context.Context, name string, excluded []billing.Plan, exec ...core.DBExecutor) error {
	q := `SELECT EXISTS (SELECT 1 FROM tuition_plan WHERE name = ?`
	args := []interface{}{name}
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, plan := range excluded {
			ids = append(ids, plan.ID)
		}
		inQ, inArgs, err := sqlx.In(` AND id NOT IN (?)`, ids)
		if err != nil {
			return errors.Wrap(err, "expanding excluded plans")
		}
		q += inQ
		args = append(args, inArgs...)
	}
	q += `)`

	qr := queryer(repo.db, exec)
	var exists bool
	if err := sqlx.GetContext(ctx, qr, &exists, qr.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking plan uniqueness")
	}
	if exists {
		return billing.ErrPlanExists
	}
	return nil
}

func (repo *billingRepository) CreatePlan(ctx context.Context, plan billing.Plan, exec ...core.DBExecutor) (billing.Plan, error) {
	plan.ID = uuid.New().String()
	q := `INSERT INTO tuition_plan (` + planColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		plan.ID, plan.Name, plan.MonthlyAmount, plan.Active, plan.CreatedAt, plan.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return billing.Plan{}, billing.ErrPlanExists
		}
		return billing.Plan{}, errors.Wrap(err, "inserting tuition plan")
	}
	return plan, nil
}

func (repo *billingRepository) GetPlanByID(ctx context.Context, id string, exec ...core.DBExecutor) (billing.Plan, error) {
	var plan billing.Plan
	q := `SELECT ` + planColumns + ` FROM tuition_plan WHERE id = $1`
	if err := sqlx.GetContext(ctx, queryer(repo.db, exec), &plan, q, id); err != nil {
		return billing.Plan{}, repo.trapNoRowsErr(err, billing.ErrPlanNotFound, "finding plan by ID")
	}
	return plan, nil
}

func (repo *billingRepository) QueryPlans(ctx context.Context, filter *billing.PlanFilter, exec ...core.DBExecutor) ([]billing.Plan, error) {
	q := `SELECT ` + planColumns + ` FROM tuition_plan`
	var conds []string
	var args []interface{}
	if filter != nil {
		if filter.Search != "" {
			conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)+1))
			args = append(args, "%"+filter.Search+"%")
		}
		if filter.Active != nil {
			conds = append(conds, fmt.Sprintf("active = $%d", len(args)+1))
			args = append(args, *filter.Active)
		}
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY name ASC`

	plans := []billing.Plan{}
	if err := sqlx.SelectContext(ctx, queryer(repo.db, exec), &plans, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying plans")
	}
	return plans, nil
}

func (repo *billingRepository) UpdatePlan(ctx context.Context, plan billing.Plan, exec ...core.DBExecutor) (billing.Plan, error) {
	q := `UPDATE tuition_plan SET name = $2, monthly_amount = $3, active = $4, updated_at = $5 WHERE id = $1`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q,
		plan.ID, plan.Name, plan.MonthlyAmount, plan.Active, plan.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return billing.Plan{}, billing.ErrPlanExists
		}
		return billing.Plan{}, errors.Wrap(err, "updating tuition plan")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.Plan{}, billing.ErrPlanNotFound
	}
	return plan, nil
}

// Enrollments

func (repo *billingRepository) CreateEnrollment(ctx context.Context, enr billing.Enrollment, exec ...core.DBExecutor) (billing.Enrollment, error) {
	enr.ID = uuid.New().String()
	q := `INSERT INTO enrollment (id, student_id, plan_id, academic_year, enrollment_fee, monthly_amount,
			due_day, enrolled_at, status, discount_pct, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		enr.ID, enr.StudentID, enr.PlanID, enr.AcademicYear, enr.EnrollmentFee, enr.MonthlyAmount,
		enr.DueDay, enr.EnrolledAt, enr.Status, enr.DiscountPct, enr.CreatedAt, enr.UpdatedAt,
	)
	if err != nil {
		// the partial unique index closes the check-then-act race on concurrent requests
		if isUniqueViolation(err, "enrollment_active_uniq") {
			return billing.Enrollment{}, &billing.DuplicateEnrollmentError{AcademicYear: enr.AcademicYear}
		}
		return billing.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo *billingRepository) GetEnrollmentByID(ctx context.Context, id string, exec ...core.DBExecutor) (billing.Enrollment, error) {
	var enr billing.Enrollment
	q := `SELECT ` + enrollmentColumns + enrollmentJoins + ` WHERE e.id = $1`
	if err := sqlx.GetContext(ctx, queryer(repo.db, exec), &enr, q, id); err != nil {
		return billing.Enrollment{}, repo.trapNoRowsErr(err, billing.ErrEnrollmentNotFound, "finding enrollment by ID")
	}
	return enr, nil
}

func (repo *billingRepository) GetActiveEnrollment(ctx context.Context, studentID string, academicYear int, exec ...core.DBExecutor) (billing.Enrollment, error) {
	var enr billing.Enrollment
	q := `SELECT ` + enrollmentColumns + enrollmentJoins + `
		WHERE e.student_id = $1 AND e.academic_year = $2 AND e.status <> $3`
	if err := sqlx.GetContext(ctx, queryer(repo.db, exec), &enr, q, studentID, academicYear, billing.EnrollmentCancelled); err != nil {
		return billing.Enrollment{}, repo.trapNoRowsErr(err, billing.ErrEnrollmentNotFound, "finding active enrollment")
	}
	return enr, nil
}

func (repo *billingRepository) QueryEnrollments(ctx context.Context, filter *billing.EnrollmentFilter, exec ...core.DBExecutor) ([]billing.Enrollment, error) {
	q := `SELECT ` + enrollmentColumns + enrollmentJoins
	var conds []string
	var args []interface{}
	if filter != nil {
		if filter.StudentID != "" {
			conds = append(conds, fmt.Sprintf("e.student_id = $%d", len(args)+1))
			args = append(args, filter.StudentID)
		}
		if filter.AcademicYear != 0 {
			conds = append(conds, fmt.Sprintf("e.academic_year = $%d", len(args)+1))
			args = append(args, filter.AcademicYear)
		}
		if filter.Status != "" {
			conds = append(conds, fmt.Sprintf("e.status = $%d", len(args)+1))
			args = append(args, filter.Status)
		}
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY e.enrolled_at DESC`

	enrollments := []billing.Enrollment{}
	if err := sqlx.SelectContext(ctx, queryer(repo.db, exec), &enrollments, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	return enrollments, nil
}

func (repo *billingRepository) UpdateEnrollment(ctx context.Context, enr billing.Enrollment, exec ...core.DBExecutor) (billing.Enrollment, error) {
	q := `UPDATE enrollment SET status = $2, updated_at = $3 WHERE id = $1`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, enr.ID, enr.Status, enr.UpdatedAt)
	if err != nil {
		return billing.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.Enrollment{}, billing.ErrEnrollmentNotFound
	}
	return enr, nil
}

// Installments

func (repo *billingRepository) CreateInstallments(ctx context.Context, insts []billing.Installment, exec ...core.DBExecutor) ([]billing.Installment, error) {
	if len(insts) == 0 {
		return insts, nil
	}
	q := `INSERT INTO installment (` + installmentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	ex := getExec(repo.db, exec)
	for i := range insts {
		insts[i].ID = uuid.New().String()
		inst := insts[i]
		_, err := ex.ExecContext(ctx, q,
			inst.ID, inst.StudentID, inst.EnrollmentID, inst.Month, inst.Year, inst.BaseAmount, inst.PaidAmount,
			inst.DiscountAmount, inst.SurchargeAmount, inst.DueDate, inst.PaidAt, inst.Status, inst.PaymentMethod,
			inst.Notes, inst.CreatedAt, inst.UpdatedAt,
		)
		if err != nil {
			return nil, errors.Wrapf(err, "inserting installment %s", inst.Period())
		}
	}
	return insts, nil
}

func (repo *billingRepository) GetInstallmentByID(ctx context.Context, id string, exec ...core.DBExecutor) (billing.Installment, error) {
	var inst billing.Installment
	q := `SELECT ` + installmentColumns + ` FROM installment WHERE id = $1`
	if err := sqlx.GetContext(ctx, queryer(repo.db, exec), &inst, q, id); err != nil {
		return billing.Installment{}, repo.trapNoRowsErr(err, billing.ErrInstallmentNotFound, "finding installment by ID")
	}
	return inst, nil
}

func (repo *billingRepository) QueryInstallments(ctx context.Context, filter *billing.InstallmentFilter, exec ...core.DBExecutor) ([]billing.Installment, error) {
	q := `SELECT ` + installmentColumns + ` FROM installment`
	var conds []string
	var args []interface{}
	if filter != nil {
		if filter.StudentID != "" {
			conds = append(conds, fmt.Sprintf("student_id = $%d", len(args)+1))
			args = append(args, filter.StudentID)
		}
		if filter.EnrollmentID != "" {
			conds = append(conds, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
			args = append(args, filter.EnrollmentID)
		}
		if filter.Status != "" {
			conds = append(conds, fmt.Sprintf("status = $%d", len(args)+1))
			args = append(args, filter.Status)
		}
		if filter.Year != 0 {
			conds = append(conds, fmt.Sprintf("year = $%d", len(args)+1))
			args = append(args, filter.Year)
		}
		if filter.After != nil {
			conds = append(conds, fmt.Sprintf("(year > $%d OR (year = $%d AND month > $%d))", len(args)+1, len(args)+2, len(args)+3))
			args = append(args, filter.After.Year, filter.After.Year, filter.After.Month)
		}
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY year ASC, month ASC`

	installments := []billing.Installment{}
	if err := sqlx.SelectContext(ctx, queryer(repo.db, exec), &installments, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying installments")
	}
	return installments, nil
}

func (repo *billingRepository) UpdateInstallment(ctx context.Context, inst billing.Installment, exec ...core.DBExecutor) (billing.Installment, error) {
	q := `UPDATE installment
		SET base_amount = $2, paid_amount = $3, discount_amount = $4, surcharge_amount = $5,
			paid_at = $6, status = $7, payment_method = $8, notes = $9, updated_at = $10
		WHERE id = $1`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q,
		inst.ID, inst.BaseAmount, inst.PaidAmount, inst.DiscountAmount, inst.SurchargeAmount,
		inst.PaidAt, inst.Status, inst.PaymentMethod, inst.Notes, inst.UpdatedAt,
	)
	if err != nil {
		return billing.Installment{}, errors.Wrap(err, "updating installment")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return billing.Installment{}, billing.ErrInstallmentNotFound
	}
	return inst, nil
}

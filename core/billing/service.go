package billing

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

var (
	// NowFunc tells the billing clock; mockable in tests.
	NowFunc = time.Now

	// errors
	ErrPlanNotFound            = errors.New("tuition plan not found")
	ErrPlanExists              = errors.New("a tuition plan with this name already exists")
	ErrPlanInactive            = errors.New("tuition plan is no longer active")
	ErrEnrollmentNotFound      = errors.New("enrollment not found")
	ErrInstallmentNotFound     = errors.New("installment not found")
	ErrAlreadyPaid             = errors.New("installment is already paid")
	ErrMissingReason           = errors.New("a reason is required for this adjustment")
	ErrInvalidStateForRevision = errors.New("only upcoming installments can be revised")
)

// DuplicateEnrollmentError signals an existing non-cancelled enrollment for the
// same student and academic year.
type DuplicateEnrollmentError struct {
	AcademicYear int
}

func (e *DuplicateEnrollmentError) Error() string {
	return fmt.Sprintf("student already has an active enrollment for %d", e.AcademicYear)
}

type (
	Repository interface {
		CheckPlanUniqueness(ctx context.Context, name string, excluded []Plan, exec ...core.DBExecutor) error
		CreatePlan(ctx context.Context, plan Plan, exec ...core.DBExecutor) (Plan, error)
		GetPlanByID(ctx context.Context, id string, exec ...core.DBExecutor) (Plan, error)
		QueryPlans(ctx context.Context, filter *PlanFilter, exec ...core.DBExecutor) ([]Plan, error)
		UpdatePlan(ctx context.Context, plan Plan, exec ...core.DBExecutor) (Plan, error)

		CreateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		GetEnrollmentByID(ctx context.Context, id string, exec ...core.DBExecutor) (Enrollment, error)
		// GetActiveEnrollment finds the single non-cancelled enrollment for
		// (studentID, academicYear); ErrEnrollmentNotFound when there is none.
		GetActiveEnrollment(ctx context.Context, studentID string, academicYear int, exec ...core.DBExecutor) (Enrollment, error)
		QueryEnrollments(ctx context.Context, filter *EnrollmentFilter, exec ...core.DBExecutor) ([]Enrollment, error)
		UpdateEnrollment(ctx context.Context, enr Enrollment, exec ...core.DBExecutor) (Enrollment, error)

		CreateInstallments(ctx context.Context, insts []Installment, exec ...core.DBExecutor) ([]Installment, error)
		GetInstallmentByID(ctx context.Context, id string, exec ...core.DBExecutor) (Installment, error)
		QueryInstallments(ctx context.Context, filter *InstallmentFilter, exec ...core.DBExecutor) ([]Installment, error)
		UpdateInstallment(ctx context.Context, inst Installment, exec ...core.DBExecutor) (Installment, error)
	}

	ServiceInterface interface {
		CheckPlanUniqueness(name string, excluded ...Plan) error
		CreatePlan(np NewPlan) (Plan, error)
		GetPlanByID(id string) (Plan, error)
		QueryPlans(filter *PlanFilter) ([]Plan, error)
		UpdatePlan(id string, up UpdatePlan) (Plan, error)
		DeactivatePlan(id string) (Plan, error)

		Enroll(ne NewEnrollment) (Enrollment, error)
		GetEnrollmentByID(id string) (Enrollment, error)
		QueryEnrollments(filter *EnrollmentFilter) ([]Enrollment, error)
		CancelEnrollment(id string) (Enrollment, error)

		GetInstallmentByID(id string) (Installment, error)
		QueryInstallments(filter *InstallmentFilter) ([]Installment, error)
		RegisterPayment(id string, p Payment) (Installment, error)
		ReviseUpcomingAmount(id string, rev AmountRevision) (Installment, error)
	}

	Service struct {
		db       core.DB // nil with non-transactional (in-memory) repositories
		repo     Repository
		students student.Repository
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(db core.DB, repo Repository, students student.Repository, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		db:       db,
		repo:     repo,
		students: students,
		mailSvc:  mailSvc,
		logger:   logger,
	}
}

// Plans

func (svc *Service) CheckPlanUniqueness(name string, excluded ...Plan) error {
	if err := svc.repo.CheckPlanUniqueness(context.Background(), name, excluded); err != nil {
		if errors.Cause(err) == ErrPlanExists {
			return core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) CreatePlan(np NewPlan) (Plan, error) {
	now := NowFunc().UTC()
	plan := Plan{
		Name:          np.Name,
		MonthlyAmount: np.MonthlyAmount,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	return svc.repo.CreatePlan(context.Background(), plan)
}

func (svc *Service) GetPlanByID(id string) (Plan, error) {
	return svc.repo.GetPlanByID(context.Background(), id)
}

func (svc *Service) QueryPlans(filter *PlanFilter) ([]Plan, error) {
	return svc.repo.QueryPlans(context.Background(), filter)
}

// UpdatePlan applies a typed partial update. Amount changes only affect future
// enrollments; existing ones keep their snapshot.
func (svc *Service) UpdatePlan(id string, up UpdatePlan) (Plan, error) {
	ctx := context.Background()
	plan, err := svc.repo.GetPlanByID(ctx, id)
	if err != nil {
		return Plan{}, err
	}
	if up.Name != "" {
		plan.Name = up.Name
	}
	if up.MonthlyAmount != nil {
		plan.MonthlyAmount = *up.MonthlyAmount
	}
	if up.Active != nil {
		plan.Active = *up.Active
	}
	plan.UpdatedAt = NowFunc().UTC()
	return svc.repo.UpdatePlan(ctx, plan)
}

func (svc *Service) DeactivatePlan(id string) (Plan, error) {
	inactive := false
	return svc.UpdatePlan(id, UpdatePlan{Active: &inactive})
}

// Enrollments

// Enroll creates an enrollment and its installment schedule atomically:
// the enrollment row, the student's enrolled flag and one installment per
// month from the current month through December all commit together or not
// at all.
func (svc *Service) Enroll(ne NewEnrollment) (Enrollment, error) {
	ctx := context.Background()

	stu, err := svc.students.GetStudentByID(ctx, ne.StudentID)
	if err != nil {
		return Enrollment{}, err
	}
	plan, err := svc.repo.GetPlanByID(ctx, ne.PlanID)
	if err != nil {
		return Enrollment{}, err
	}
	if !plan.Active {
		return Enrollment{}, ErrPlanInactive
	}
	if _, err = svc.repo.GetActiveEnrollment(ctx, ne.StudentID, ne.AcademicYear); err == nil {
		return Enrollment{}, &DuplicateEnrollmentError{AcademicYear: ne.AcademicYear}
	} else if errors.Cause(err) != ErrEnrollmentNotFound {
		return Enrollment{}, errors.Wrap(err, "checking enrollment uniqueness")
	}

	now := NowFunc().UTC()
	enr := Enrollment{
		StudentID:     ne.StudentID,
		PlanID:        ne.PlanID,
		AcademicYear:  ne.AcademicYear,
		EnrollmentFee: ne.EnrollmentFee,
		MonthlyAmount: plan.MonthlyAmount, // snapshot; later plan changes do not apply
		DueDay:        ne.DueDay,
		EnrolledAt:    now,
		Status:        EnrollmentActive,
		DiscountPct:   ne.DiscountPct,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	tx, err := svc.begin(ctx)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "beginning enrollment tx")
	}
	exec := execOf(tx)

	enr, err = svc.repo.CreateEnrollment(ctx, enr, exec...)
	if err != nil {
		svc.rollback(tx)
		return Enrollment{}, errors.Wrap(err, "creating enrollment")
	}

	stu.Enrolled = true
	stu.EnrolledAt = null.TimeFrom(now)
	stu.UpdatedAt = now
	if _, err = svc.students.UpdateStudent(ctx, stu, exec...); err != nil {
		svc.rollback(tx)
		return Enrollment{}, errors.Wrap(err, "flagging student as enrolled")
	}

	if _, err = svc.repo.CreateInstallments(ctx, schedule(enr, now), exec...); err != nil {
		svc.rollback(tx)
		return Enrollment{}, errors.Wrap(err, "creating installment schedule")
	}

	if tx != nil {
		if err = tx.Commit(); err != nil {
			return Enrollment{}, errors.Wrap(err, "committing enrollment tx")
		}
	}

	enr.StudentName = stu.FullName
	enr.PlanName = plan.Name
	return enr, nil
}

// schedule generates one installment per month from `from`'s month through
// December of the enrollment's academic year. When an enrollment fee is set it
// is absorbed into the first month's charge, floored at zero.
func schedule(enr Enrollment, from time.Time) []Installment {
	startMonth := 1
	switch {
	case from.Year() == enr.AcademicYear:
		startMonth = int(from.Month())
	case from.Year() > enr.AcademicYear:
		return nil
	}

	insts := make([]Installment, 0, 13-startMonth)
	for month := startMonth; month <= 12; month++ {
		base := enr.MonthlyAmount
		if month == startMonth && enr.EnrollmentFee > 0 {
			if base -= enr.EnrollmentFee; base < 0 {
				base = 0
			}
		}
		day := enr.DueDay
		if max := core.DaysIn(enr.AcademicYear, time.Month(month)); day > max {
			day = max
		}
		insts = append(insts, Installment{
			StudentID:    enr.StudentID,
			EnrollmentID: enr.ID,
			Month:        month,
			Year:         enr.AcademicYear,
			BaseAmount:   base,
			DueDate:      time.Date(enr.AcademicYear, time.Month(month), day, 0, 0, 0, 0, time.UTC),
			Status:       InstallmentPending,
			CreatedAt:    from,
			UpdatedAt:    from,
		})
	}
	return insts
}

func (svc *Service) GetEnrollmentByID(id string) (Enrollment, error) {
	return svc.repo.GetEnrollmentByID(context.Background(), id)
}

func (svc *Service) QueryEnrollments(filter *EnrollmentFilter) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(context.Background(), filter)
}

// CancelEnrollment stops future billing while preserving collectable history:
// pending installments due strictly after today are cancelled, anything
// already due stays untouched.
func (svc *Service) CancelEnrollment(id string) (Enrollment, error) {
	ctx := context.Background()
	enr, err := svc.repo.GetEnrollmentByID(ctx, id)
	if err != nil {
		return Enrollment{}, err
	}
	if enr.Status == EnrollmentCancelled {
		return enr, nil
	}

	now := NowFunc().UTC()
	today := core.DateOf(now)

	tx, err := svc.begin(ctx)
	if err != nil {
		return Enrollment{}, errors.Wrap(err, "beginning cancellation tx")
	}
	exec := execOf(tx)

	enr.Status = EnrollmentCancelled
	enr.UpdatedAt = now
	if enr, err = svc.repo.UpdateEnrollment(ctx, enr, exec...); err != nil {
		svc.rollback(tx)
		return Enrollment{}, errors.Wrap(err, "cancelling enrollment")
	}

	if stu, err := svc.students.GetStudentByID(ctx, enr.StudentID, exec...); err == nil {
		stu.Enrolled = false
		stu.UpdatedAt = now
		if _, err = svc.students.UpdateStudent(ctx, stu, exec...); err != nil {
			svc.rollback(tx)
			return Enrollment{}, errors.Wrap(err, "clearing student enrolled flag")
		}
	} else {
		svc.rollback(tx)
		return Enrollment{}, errors.Wrap(err, "finding enrolled student")
	}

	insts, err := svc.repo.QueryInstallments(ctx, &InstallmentFilter{EnrollmentID: enr.ID, Status: InstallmentPending}, exec...)
	if err != nil {
		svc.rollback(tx)
		return Enrollment{}, errors.Wrap(err, "querying pending installments")
	}
	for _, inst := range insts {
		if !core.DateOf(inst.DueDate).After(today) {
			continue // already due: remains collectable debt
		}
		inst.Status = InstallmentCancelled
		inst.UpdatedAt = now
		if _, err = svc.repo.UpdateInstallment(ctx, inst, exec...); err != nil {
			svc.rollback(tx)
			return Enrollment{}, errors.Wrap(err, "cancelling future installment")
		}
	}

	if tx != nil {
		if err = tx.Commit(); err != nil {
			return Enrollment{}, errors.Wrap(err, "committing cancellation tx")
		}
	}
	return enr, nil
}

// Installments

func (svc *Service) GetInstallmentByID(id string) (Installment, error) {
	inst, err := svc.repo.GetInstallmentByID(context.Background(), id)
	if err != nil {
		return Installment{}, err
	}
	svc.attachEffective(&inst)
	return inst, nil
}

func (svc *Service) QueryInstallments(filter *InstallmentFilter) ([]Installment, error) {
	insts, err := svc.repo.QueryInstallments(context.Background(), filter)
	if err != nil {
		return nil, err
	}
	for i := range insts {
		svc.attachEffective(&insts[i])
	}
	return insts, nil
}

func (svc *Service) attachEffective(inst *Installment) {
	now := NowFunc().UTC()
	inst.Effective = EffectiveStatus(*inst, now)
	if statusInconsistent(*inst, now) && svc.logger != nil {
		svc.logger.Warn(fmt.Sprintf("installment %s: month %s is past but due date %s has not passed",
			inst.ID, inst.Period(), inst.DueDate.Format("2006-01-02")))
	}
}

// RegisterPayment settles an installment, applying optional discount/surcharge
// adjustments. Re-paying a PAID installment is rejected; corrections require a
// deliberate re-opening at the storage level.
func (svc *Service) RegisterPayment(id string, p Payment) (Installment, error) {
	ctx := context.Background()
	inst, err := svc.repo.GetInstallmentByID(ctx, id)
	if err != nil {
		return Installment{}, err
	}
	if inst.Status == InstallmentPaid {
		return Installment{}, ErrAlreadyPaid
	}
	if err = validateAdjustments(p); err != nil {
		return Installment{}, err
	}

	now := NowFunc().UTC()
	discount := p.Discount.AmountFor(inst.BaseAmount)
	surcharge := p.Surcharge.AmountFor(inst.BaseAmount)

	final := inst.BaseAmount - discount + surcharge
	if final < 0 {
		final = 0
	}
	if p.PaidAmount != nil {
		final = *p.PaidAmount
	}

	inst.Status = InstallmentPaid
	inst.PaidAmount = null.Float64From(final)
	inst.PaidAt = null.TimeFrom(now)
	inst.PaymentMethod = null.StringFrom(p.Method)
	inst.DiscountAmount = discount
	inst.SurchargeAmount = surcharge
	inst.UpdatedAt = now
	if adj := p.Discount; adj != nil && adj.Value > 0 {
		inst.appendNote(now, fmt.Sprintf("discount of %.2f applied (%s %g, reason: %s)", discount, adj.Type, adj.Value, adj.Reason))
	}
	if adj := p.Surcharge; adj != nil && adj.Value > 0 {
		inst.appendNote(now, fmt.Sprintf("surcharge of %.2f applied (%s %g, reason: %s)", surcharge, adj.Type, adj.Value, adj.Reason))
	}
	inst.appendNote(now, fmt.Sprintf("payment of %.2f registered via %s", final, p.Method))

	if inst, err = svc.repo.UpdateInstallment(ctx, inst); err != nil {
		return Installment{}, errors.Wrap(err, "registering payment")
	}

	svc.sendReceipt(ctx, inst)
	svc.attachEffective(&inst)
	return inst, nil
}

// validateAdjustments enforces the audit rule: positive adjustments carry a reason.
func validateAdjustments(p Payment) error {
	for _, adj := range []*Adjustment{p.Discount, p.Surcharge} {
		if adj != nil && adj.Value > 0 && core.CleanString(adj.Reason) == "" {
			return ErrMissingReason
		}
	}
	return nil
}

// sendReceipt emails the student's guardians; failures are logged, never fatal.
func (svc *Service) sendReceipt(ctx context.Context, inst Installment) {
	if svc.mailSvc == nil {
		return
	}
	stu, err := svc.students.GetStudentByID(ctx, inst.StudentID)
	if err != nil {
		if svc.logger != nil {
			svc.logger.Error("finding student for payment receipt", err)
		}
		return
	}
	grds, err := svc.students.QueryGuardians(ctx, inst.StudentID)
	if err != nil {
		if svc.logger != nil {
			svc.logger.Error("finding guardians for payment receipt", err)
		}
		return
	}
	to := make([]mail.Address, 0, len(grds))
	for _, grd := range grds {
		if grd.Email != "" {
			to = append(to, mail.Address{Name: grd.FullName, Address: grd.Email})
		}
	}
	if len(to) == 0 {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           to,
		Subject:      fmt.Sprintf("Tuition payment received for %s", stu.FullName),
		TemplateName: "payment-receipt",
		TemplateData: struct {
			StudentName     string
			Period          string
			PaidAmount      float64
			DiscountAmount  float64
			SurchargeAmount float64
			Method          string
		}{
			StudentName:     stu.FullName,
			Period:          inst.Period(),
			PaidAmount:      inst.PaidAmount.Float64,
			DiscountAmount:  inst.DiscountAmount,
			SurchargeAmount: inst.SurchargeAmount,
			Method:          inst.PaymentMethod.String,
		},
	})
}

// ReviseUpcomingAmount changes the amount of an installment that is not yet
// billable. With ApplyToAllFuture it propagates to every open installment of
// the same student in strictly later months, across enrollments.
func (svc *Service) ReviseUpcomingAmount(id string, rev AmountRevision) (Installment, error) {
	ctx := context.Background()
	inst, err := svc.repo.GetInstallmentByID(ctx, id)
	if err != nil {
		return Installment{}, err
	}

	now := NowFunc().UTC()
	if EffectiveStatus(inst, now) != EffectiveUpcoming {
		return Installment{}, ErrInvalidStateForRevision
	}

	note := fmt.Sprintf("amount revised from %.2f to %.2f (reason: %s)", inst.BaseAmount, rev.Value, rev.Reason)
	inst.BaseAmount = rev.Value
	inst.UpdatedAt = now
	inst.appendNote(now, note)
	if inst, err = svc.repo.UpdateInstallment(ctx, inst); err != nil {
		return Installment{}, errors.Wrap(err, "revising installment amount")
	}

	if rev.ApplyToAllFuture {
		future, err := svc.repo.QueryInstallments(ctx, &InstallmentFilter{
			StudentID: inst.StudentID,
			After:     &YearMonth{Year: now.Year(), Month: int(now.Month())},
		})
		if err != nil {
			return Installment{}, errors.Wrap(err, "querying future installments")
		}
		for _, fut := range future {
			if fut.ID == inst.ID || fut.Status == InstallmentPaid || fut.Status == InstallmentCancelled {
				continue
			}
			n := fmt.Sprintf("amount revised from %.2f to %.2f (reason: %s)", fut.BaseAmount, rev.Value, rev.Reason)
			fut.BaseAmount = rev.Value
			fut.UpdatedAt = now
			fut.appendNote(now, n)
			if _, err = svc.repo.UpdateInstallment(ctx, fut); err != nil {
				return Installment{}, errors.Wrap(err, "revising future installment amount")
			}
		}
	}

	svc.attachEffective(&inst)
	return inst, nil
}

// tx plumbing; a nil core.DB (in-memory repositories) degrades to independent writes.

func (svc *Service) begin(ctx context.Context) (core.DBTransactor, error) {
	if svc.db == nil {
		return nil, nil
	}
	return svc.db.BeginTx(ctx, nil)
}

func (svc *Service) rollback(tx core.DBTransactor) {
	if tx != nil {
		_ = tx.Rollback()
	}
}

func execOf(tx core.DBTransactor) []core.DBExecutor {
	if tx == nil {
		return nil
	}
	return []core.DBExecutor{tx}
}

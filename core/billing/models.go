package billing

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

// Enrollment statuses. An enrollment is never hard-deleted.
const (
	EnrollmentActive    = "ACTIVE"
	EnrollmentCancelled = "CANCELLED"
)

// Stored installment statuses. Only the terminal PAID/CANCELLED states are ever
// persisted; OVERDUE/DUE/UPCOMING are derived at read time (see EffectiveStatus).
const (
	InstallmentPending   = "PENDING"
	InstallmentPaid      = "PAID"
	InstallmentCancelled = "CANCELLED"
)

// Adjustment types for discounts and surcharges.
const (
	AdjustmentPercent = "percentual"
	AdjustmentFixed   = "fixed"
)

type Plan struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	MonthlyAmount float64   `db:"monthly_amount" json:"monthly_amount"`
	Active        bool      `db:"active" json:"active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"` // UTC
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"` // UTC
}

type Enrollment struct {
	ID            string    `db:"id" json:"id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	PlanID        string    `db:"plan_id" json:"plan_id"`
	AcademicYear  int       `db:"academic_year" json:"academic_year"`
	EnrollmentFee float64   `db:"enrollment_fee" json:"enrollment_fee"`
	MonthlyAmount float64   `db:"monthly_amount" json:"monthly_amount"` // snapshot of the plan's amount at enrollment time
	DueDay        int       `db:"due_day" json:"due_day"`
	EnrolledAt    time.Time `db:"enrolled_at" json:"enrolled_at"`
	Status        string    `db:"status" json:"status"`
	DiscountPct   float64   `db:"discount_pct" json:"discount_pct"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"` // UTC
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"` // UTC

	// display fields, joined on reads
	StudentName string `db:"student_name" json:"student_name,omitempty"`
	PlanName    string `db:"plan_name" json:"plan_name,omitempty"`
}

type Installment struct {
	ID              string       `db:"id" json:"id"`
	StudentID       string       `db:"student_id" json:"student_id"`
	EnrollmentID    string       `db:"enrollment_id" json:"enrollment_id"`
	Month           int          `db:"month" json:"month"`
	Year            int          `db:"year" json:"year"`
	BaseAmount      float64      `db:"base_amount" json:"base_amount"`
	PaidAmount      null.Float64 `db:"paid_amount" json:"paid_amount,omitempty"`
	DiscountAmount  float64      `db:"discount_amount" json:"discount_amount"`
	SurchargeAmount float64      `db:"surcharge_amount" json:"surcharge_amount"`
	DueDate         time.Time    `db:"due_date" json:"due_date"`
	PaidAt          null.Time    `db:"paid_at" json:"paid_at,omitempty"`
	Status          string       `db:"status" json:"status"`
	PaymentMethod   null.String  `db:"payment_method" json:"payment_method,omitempty"`
	Notes           string       `db:"notes" json:"notes"` // append-only audit log
	CreatedAt       time.Time    `db:"created_at" json:"created_at"` // UTC
	UpdatedAt       time.Time    `db:"updated_at" json:"updated_at"` // UTC

	// derived on every read, never persisted
	Effective string `db:"-" json:"effective_status,omitempty"`
}

// Period formats the installment's billing period, eg. "03/2026".
func (inst Installment) Period() string {
	return fmt.Sprintf("%02d/%d", inst.Month, inst.Year)
}

// Outstanding is the collectable amount of an unpaid installment.
func (inst Installment) Outstanding() float64 {
	return inst.BaseAmount - inst.DiscountAmount + inst.SurchargeAmount
}

func (inst *Installment) appendNote(ts time.Time, note string) {
	line := fmt.Sprintf("[%s] %s", ts.UTC().Format("2006-01-02 15:04"), note)
	if inst.Notes == "" {
		inst.Notes = line
		return
	}
	inst.Notes += "\n" + line
}

// NewPlan contains information needed to create a tuition Plan.
type NewPlan struct {
	Name          string  `json:"name" validate:"required"`
	MonthlyAmount float64 `json:"monthly_amount" validate:"required,gt=0"`
}

func (np *NewPlan) Validate(validate *validator.Validate, svc ServiceInterface) error {
	np.Name = core.CleanString(np.Name)
	if err := validate.Struct(np); err != nil {
		return err
	}
	return svc.CheckPlanUniqueness(np.Name)
}

// UpdatePlan defines what information may be provided to modify an existing Plan.
// Nil fields are left unchanged; amount changes never retroactively affect enrollments.
type UpdatePlan struct {
	Name          string   `json:"name"`
	MonthlyAmount *float64 `json:"monthly_amount" validate:"omitempty,gt=0"`
	Active        *bool    `json:"active"`
}

func (up *UpdatePlan) Validate(orig Plan, validate *validator.Validate, svc ServiceInterface) error {
	up.Name = core.CleanString(up.Name)
	if err := validate.Struct(up); err != nil {
		return err
	}
	if up.Name != "" && up.Name != orig.Name {
		return svc.CheckPlanUniqueness(up.Name, orig)
	}
	return nil
}

// NewEnrollment contains information needed to enroll a student into a plan
// for an academic year.
type NewEnrollment struct {
	StudentID     string  `json:"student_id" validate:"required"`
	PlanID        string  `json:"plan_id" validate:"required"`
	AcademicYear  int     `json:"academic_year" validate:"required,min=2000,max=2100"`
	EnrollmentFee float64 `json:"enrollment_fee" validate:"gte=0"`
	DueDay        int     `json:"due_day" validate:"dueday"`
	DiscountPct   float64 `json:"discount_pct" validate:"gte=0,lte=100"`
}

func (ne *NewEnrollment) Validate(validate *validator.Validate) error {
	return validate.Struct(ne)
}

// Adjustment is a discount or surcharge applied while registering a payment.
// A positive adjustment must carry a reason (audit trail).
type Adjustment struct {
	Type   string  `json:"type" validate:"omitempty,oneof=percentual fixed"`
	Value  float64 `json:"value" validate:"gte=0"`
	Reason string  `json:"reason"`
}

// AmountFor resolves the adjustment against an installment's base amount.
func (adj *Adjustment) AmountFor(base float64) float64 {
	if adj == nil || adj.Value <= 0 {
		return 0
	}
	if adj.Type == AdjustmentPercent {
		return base * adj.Value / 100
	}
	return adj.Value
}

// Payment contains information needed to register an installment payment.
// An explicit PaidAmount always wins over the computed one.
type Payment struct {
	PaidAmount *float64    `json:"paid_amount" validate:"omitempty,gte=0"`
	Method     string      `json:"payment_method" validate:"required"`
	Discount   *Adjustment `json:"discount"`
	Surcharge  *Adjustment `json:"surcharge"`
}

func (p *Payment) Validate(validate *validator.Validate) error {
	p.Method = core.CleanString(p.Method)
	if err := validate.Struct(p); err != nil {
		return err
	}
	for field, adj := range map[string]*Adjustment{"discount": p.Discount, "surcharge": p.Surcharge} {
		if adj != nil && adj.Value > 0 && core.CleanString(adj.Reason) == "" {
			return core.NewValidationError(ErrMissingReason, core.FieldError{Field: field, Error: ErrMissingReason.Error()})
		}
	}
	return nil
}

// AmountRevision contains information needed to revise an upcoming installment's amount.
type AmountRevision struct {
	Value            float64 `json:"value" validate:"required,gt=0"`
	Reason           string  `json:"reason" validate:"required"`
	ApplyToAllFuture bool    `json:"apply_to_all_future"`
}

func (ar *AmountRevision) Validate(validate *validator.Validate) error {
	ar.Reason = core.CleanString(ar.Reason)
	return validate.Struct(ar)
}

// PlanFilter filters plan list queries.
type PlanFilter struct {
	Search string `query:"search"`
	Active *bool  `query:"active"`
}

func (pf *PlanFilter) Clean() {
	pf.Search = core.CleanString(pf.Search)
}

// EnrollmentFilter filters enrollment list queries.
type EnrollmentFilter struct {
	StudentID    string `query:"student_id"`
	AcademicYear int    `query:"academic_year"`
	Status       string `query:"status"`
}

// InstallmentFilter filters installment list queries.
// After restricts to installments whose (year, month) is strictly after it.
type InstallmentFilter struct {
	StudentID    string `query:"student_id"`
	EnrollmentID string `query:"enrollment_id"`
	Status       string `query:"status"`
	Year         int    `query:"year"`

	After *YearMonth `query:"-"`
}

// YearMonth is a calendar month position used for chronological comparisons.
type YearMonth struct {
	Year  int
	Month int
}

// Before reports whether ym is strictly before other.
func (ym YearMonth) Before(other YearMonth) bool {
	if ym.Year != other.Year {
		return ym.Year < other.Year
	}
	return ym.Month < other.Month
}

// After reports whether ym is strictly after other.
func (ym YearMonth) After(other YearMonth) bool {
	return other.Before(ym)
}

package expense

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

// Expense statuses.
const (
	StatusPending   = "PENDING"
	StatusPaid      = "PAID"
	StatusCancelled = "CANCELLED"
)

type Expense struct {
	ID          string    `db:"id" json:"id"`
	Category    string    `db:"category" json:"category"`
	Description string    `db:"description" json:"description"`
	Amount      float64   `db:"amount" json:"amount"`
	DueDate     time.Time `db:"due_date" json:"due_date"`
	PaidAt      null.Time `db:"paid_at" json:"paid_at,omitempty"`
	Status      string    `db:"status" json:"status"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"` // UTC
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"` // UTC
}

// NewExpense contains information needed to record an Expense.
type NewExpense struct {
	Category    string    `json:"category" validate:"required"`
	Description string    `json:"description" validate:"required"`
	Amount      float64   `json:"amount" validate:"required,gt=0"`
	DueDate     time.Time `json:"due_date" validate:"required"`
}

func (ne *NewExpense) Validate(validate *validator.Validate) error {
	ne.Category = core.CleanString(ne.Category)
	ne.Description = core.CleanString(ne.Description)
	return validate.Struct(ne)
}

// UpdateExpense defines what information may be provided to modify an existing
// Expense. Nil / empty fields are left unchanged.
type UpdateExpense struct {
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Amount      *float64   `json:"amount" validate:"omitempty,gt=0"`
	DueDate     *time.Time `json:"due_date"`
}

func (ue *UpdateExpense) Validate(validate *validator.Validate) error {
	ue.Category = core.CleanString(ue.Category)
	ue.Description = core.CleanString(ue.Description)
	return validate.Struct(ue)
}

// QueryFilter filters expense list queries.
type QueryFilter struct {
	Category string `query:"category"`
	Status   string `query:"status"`
	Year     int    `query:"year"`
	Month    int    `query:"month"`
}

func (qf *QueryFilter) Clean() {
	qf.Category = core.CleanString(qf.Category)
}

package academic

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

type SchoolClass struct {
	ID        string      `db:"id" json:"id"`
	Name      string      `db:"name" json:"name"`
	Year      int         `db:"year" json:"year"`
	TeacherID null.String `db:"teacher_id" json:"teacher_id,omitempty"`
	Room      string      `db:"room" json:"room"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"` // UTC
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"` // UTC
}

type Grade struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	ClassID   string    `db:"class_id" json:"class_id"`
	Subject   string    `db:"subject" json:"subject"`
	Term      int       `db:"term" json:"term"`
	Score     float64   `db:"score" json:"score"`
	CreatedAt time.Time `db:"created_at" json:"created_at"` // UTC
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"` // UTC
}

// NewClass contains information needed to create a SchoolClass.
type NewClass struct {
	Name      string      `json:"name" validate:"required"`
	Year      int         `json:"year" validate:"required,min=2000,max=2100"`
	TeacherID null.String `json:"teacher_id"`
	Room      string      `json:"room"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Room = core.CleanString(nc.Room)
	return validate.Struct(nc)
}

// UpdateClass defines what information may be provided to modify an existing
// SchoolClass. Nil / empty fields are left unchanged.
type UpdateClass struct {
	Name      string      `json:"name"`
	TeacherID null.String `json:"teacher_id"`
	Room      *string     `json:"room"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	return validate.Struct(uc)
}

// NewGrade contains information needed to record a Grade.
type NewGrade struct {
	StudentID string  `json:"student_id" validate:"required"`
	ClassID   string  `json:"class_id" validate:"required"`
	Subject   string  `json:"subject" validate:"required"`
	Term      int     `json:"term" validate:"required,min=1,max=4"`
	Score     float64 `json:"score" validate:"gte=0,lte=100"`
}

func (ng *NewGrade) Validate(validate *validator.Validate) error {
	ng.Subject = core.CleanString(ng.Subject)
	return validate.Struct(ng)
}

// GradeFilter filters grade list queries.
type GradeFilter struct {
	StudentID string `query:"student_id"`
	ClassID   string `query:"class_id"`
	Term      int    `query:"term"`
}

// ClassFilter filters class list queries.
type ClassFilter struct {
	Search string `query:"search"`
	Year   int    `query:"year"`
}

func (cf *ClassFilter) Clean() {
	cf.Search = core.CleanString(cf.Search)
}

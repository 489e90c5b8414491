package student

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
)

type Student struct {
	ID                 string    `db:"id" json:"id"`
	FullName           string    `db:"full_name" json:"full_name"`
	RegistrationNumber string    `db:"registration_number" json:"registration_number"`
	BirthDate          null.Time `db:"birth_date" json:"birth_date,omitempty"`
	Address            string    `db:"address" json:"address"`
	Phone              string    `db:"phone" json:"phone"`
	Enrolled           bool      `db:"enrolled" json:"enrolled"`
	EnrolledAt         null.Time `db:"enrolled_at" json:"enrolled_at,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"` // UTC
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"` // UTC
}

type Guardian struct {
	ID           string    `db:"id" json:"id"`
	StudentID    string    `db:"student_id" json:"student_id"`
	FullName     string    `db:"full_name" json:"full_name"`
	Relationship string    `db:"relationship" json:"relationship"`
	Phone        string    `db:"phone" json:"phone"`
	Email        string    `db:"email" json:"email"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"` // UTC
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"` // UTC
}

// NewStudent contains information needed to register a new Student.
type NewStudent struct {
	FullName           string    `json:"full_name" validate:"required"`
	RegistrationNumber string    `json:"registration_number" validate:"required,alphanum_"`
	BirthDate          null.Time `json:"birth_date"`
	Address            string    `json:"address"`
	Phone              string    `json:"phone"`
}

func (ns *NewStudent) Validate(validate *validator.Validate, svc ServiceInterface) error {
	ns.FullName = core.CleanString(ns.FullName)
	ns.RegistrationNumber = core.CleanString(ns.RegistrationNumber, true /* lower */)
	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.CheckRegistrationUniqueness(ns.RegistrationNumber)
}

// UpdateStudent defines what information may be provided to modify an existing Student.
// Nil / empty fields are left unchanged.
type UpdateStudent struct {
	FullName           string    `json:"full_name"`
	RegistrationNumber string    `json:"registration_number" validate:"omitempty,alphanum_"`
	BirthDate          null.Time `json:"birth_date"`
	Address            *string   `json:"address"`
	Phone              *string   `json:"phone"`
}

func (us *UpdateStudent) Validate(orig Student, validate *validator.Validate, svc ServiceInterface) error {
	us.FullName = core.CleanString(us.FullName)
	us.RegistrationNumber = core.CleanString(us.RegistrationNumber, true /* lower */)
	if err := validate.Struct(us); err != nil {
		return err
	}
	if us.RegistrationNumber != "" && us.RegistrationNumber != orig.RegistrationNumber {
		return svc.CheckRegistrationUniqueness(us.RegistrationNumber, orig)
	}
	return nil
}

// NewGuardian contains information needed to attach a Guardian to a Student.
type NewGuardian struct {
	FullName     string `json:"full_name" validate:"required"`
	Relationship string `json:"relationship"`
	Phone        string `json:"phone"`
	Email        string `json:"email" validate:"omitempty,email"`
}

func (ng *NewGuardian) Validate(validate *validator.Validate) error {
	ng.FullName = core.CleanString(ng.FullName)
	ng.Email = core.CleanString(ng.Email, true /* lower */)
	return validate.Struct(ng)
}

type QueryFilter struct {
	Search   string `query:"search"`
	Enrolled *bool  `query:"enrolled"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

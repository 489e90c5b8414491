package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/shule/core"
)

// Roles
const (
	// Admin
	RoleAdmin          = "admin:"
	RoleAdminOwner     = "admin:owner"
	RoleAdminPrincipal = "admin:principal"

	// Staff
	RoleStaff        = "staff:"
	RoleStaffFinance = "staff:finance"

	// Teacher
	RoleTeacher = "teacher:"

	// Guardian
	RoleGuardian = "guardian:"

	// Student
	RoleStudent = "student:"
)

var (
	AdminRoles    = []string{RoleAdmin, RoleAdminOwner, RoleAdminPrincipal}
	StaffRoles    = []string{RoleStaff, RoleStaffFinance}
	TeacherRoles  = []string{RoleTeacher}
	GuardianRoles = []string{RoleGuardian}
	StudentRoles  = []string{RoleStudent}
	AllRoles      = getAllRoles()

	rolePriorities = map[string]int{
		// Admins: 40 - 31
		RoleAdminOwner:     40,
		RoleAdminPrincipal: 39,
		RoleAdmin:          31,

		// Staff: 30 - 21
		RoleStaffFinance: 29,
		RoleStaff:        21,

		// Teachers: 20 - 11
		RoleTeacher: 11,

		// Guardians & Students: 10 - 1
		RoleGuardian: 2,
		RoleStudent:  1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Guardian", Value: RoleGuardian},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Staff", Value: RoleStaff},
		{Name: "Finance Staff", Value: RoleStaffFinance},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Admin Principal", Value: RoleAdminPrincipal},
		{Name: "Admin Owner", Value: RoleAdminOwner},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 8)
	all = append(all, AdminRoles...)
	all = append(all, StaffRoles...)
	all = append(all, TeacherRoles...)
	all = append(all, GuardianRoles...)
	all = append(all, StudentRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           string      `db:"id" json:"id"`
	Name         string      `db:"name" json:"name"`
	Username     string      `db:"username" json:"username"`
	Email        string      `db:"email" json:"email"`
	IsActive     bool        `db:"is_active" json:"is_active"`
	Roles        []string    `db:"-" json:"roles"`
	StudentID    null.String `db:"student_id" json:"student_id,omitempty"` // set for student/guardian accounts
	PasswordHash []byte      `db:"password_hash" json:"-"`
	CreatedAt    time.Time   `db:"created_at" json:"created_at"` // UTC
	UpdatedAt    time.Time   `db:"updated_at" json:"updated_at"` // UTC
	LastLogin    time.Time   `db:"last_login" json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool {
	return u.RoleStartsWith(RoleAdmin)
}

func (u *User) IsStaff() bool {
	return u.RoleStartsWith(RoleStaff)
}

// CanManageBilling reports whether the user may touch money endpoints.
func (u *User) CanManageBilling() bool {
	return u.IsAdmin() || u.RoleStartsWith(RoleStaffFinance)
}

func (u *User) IsTeacher() bool {
	return u.RoleStartsWith(RoleTeacher)
}

func (u *User) IsGuardian() bool {
	return u.RoleStartsWith(RoleGuardian)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string      `json:"name" validate:"required"`
	Username        string      `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string      `json:"email" validate:"omitempty,email"`
	Password        string      `json:"password" validate:"required"`
	PasswordConfirm string      `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles           []string    `json:"roles" validate:"omitempty,allroles"`
	StudentID       null.String `json:"student_id"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc ServiceInterface) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc ServiceInterface) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

package student

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrNotFound           = errors.New("student not found")
	ErrGuardianNotFound   = errors.New("guardian not found")
	ErrRegistrationExists = errors.New("a student with this registration number already exists")
)

type (
	Repository interface {
		CheckRegistrationUniqueness(ctx context.Context, regNum string, excluded []Student, exec ...core.DBExecutor) error
		CreateStudent(ctx context.Context, stu Student, exec ...core.DBExecutor) (Student, error)
		GetStudentByID(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
		QueryStudents(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
		UpdateStudent(ctx context.Context, stu Student, exec ...core.DBExecutor) (Student, error)
		CountStudents(ctx context.Context, exec ...core.DBExecutor) (int, error)

		CreateGuardian(ctx context.Context, grd Guardian, exec ...core.DBExecutor) (Guardian, error)
		GetGuardianByID(ctx context.Context, id string, exec ...core.DBExecutor) (Guardian, error)
		QueryGuardians(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]Guardian, error)
		UpdateGuardian(ctx context.Context, grd Guardian, exec ...core.DBExecutor) (Guardian, error)
		DeleteGuardian(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	ServiceInterface interface {
		CheckRegistrationUniqueness(regNum string, excluded ...Student) error
		Create(ns NewStudent) (Student, error)
		GetByID(id string) (Student, error)
		Query(filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error)
		Update(id string, us UpdateStudent) (Student, error)
		AddGuardian(studentID string, ng NewGuardian) (Guardian, error)
		Guardians(studentID string) ([]Guardian, error)
		RemoveGuardian(id string) error
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CheckRegistrationUniqueness(regNum string, excluded ...Student) error {
	if err := svc.repo.CheckRegistrationUniqueness(context.Background(), regNum, excluded); err != nil {
		if errors.Cause(err) == ErrRegistrationExists {
			return core.NewValidationError(err, core.FieldError{Field: "registration_number", Error: err.Error()})
		}
		return err
	}
	return nil
}

func (svc *Service) Create(ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	stu := Student{
		FullName:           ns.FullName,
		RegistrationNumber: ns.RegistrationNumber,
		BirthDate:          ns.BirthDate,
		Address:            ns.Address,
		Phone:              ns.Phone,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return svc.repo.CreateStudent(context.Background(), stu)
}

func (svc *Service) GetByID(id string) (Student, error) {
	return svc.repo.GetStudentByID(context.Background(), id)
}

func (svc *Service) Query(filter *QueryFilter, ordering []core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(context.Background(), filter, ordering)
}

func (svc *Service) Update(id string, us UpdateStudent) (Student, error) {
	ctx := context.Background()
	stu, err := svc.repo.GetStudentByID(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if us.FullName != "" {
		stu.FullName = us.FullName
	}
	if us.RegistrationNumber != "" {
		stu.RegistrationNumber = us.RegistrationNumber
	}
	if us.BirthDate.Valid {
		stu.BirthDate = us.BirthDate
	}
	if us.Address != nil {
		stu.Address = *us.Address
	}
	if us.Phone != nil {
		stu.Phone = *us.Phone
	}
	stu.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateStudent(ctx, stu)
}

func (svc *Service) AddGuardian(studentID string, ng NewGuardian) (Guardian, error) {
	ctx := context.Background()
	if _, err := svc.repo.GetStudentByID(ctx, studentID); err != nil {
		return Guardian{}, err
	}
	now := time.Now().UTC()
	grd := Guardian{
		StudentID:    studentID,
		FullName:     ng.FullName,
		Relationship: ng.Relationship,
		Phone:        ng.Phone,
		Email:        ng.Email,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return svc.repo.CreateGuardian(ctx, grd)
}

func (svc *Service) Guardians(studentID string) ([]Guardian, error) {
	return svc.repo.QueryGuardians(context.Background(), studentID)
}

func (svc *Service) RemoveGuardian(id string) error {
	return svc.repo.DeleteGuardian(context.Background(), id)
}

package academic

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
)

var (
	// errors
	ErrClassNotFound = errors.New("class not found")
	ErrGradeNotFound = errors.New("grade not found")
)

type (
	Repository interface {
		CreateClass(ctx context.Context, cls SchoolClass, exec ...core.DBExecutor) (SchoolClass, error)
		GetClassByID(ctx context.Context, id string, exec ...core.DBExecutor) (SchoolClass, error)
		QueryClasses(ctx context.Context, filter *ClassFilter, exec ...core.DBExecutor) ([]SchoolClass, error)
		UpdateClass(ctx context.Context, cls SchoolClass, exec ...core.DBExecutor) (SchoolClass, error)
		DeleteClass(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateGrade(ctx context.Context, grade Grade, exec ...core.DBExecutor) (Grade, error)
		GetGradeByID(ctx context.Context, id string, exec ...core.DBExecutor) (Grade, error)
		QueryGrades(ctx context.Context, filter *GradeFilter, exec ...core.DBExecutor) ([]Grade, error)
		DeleteGrade(ctx context.Context, id string, exec ...core.DBExecutor) error
	}

	ServiceInterface interface {
		CreateClass(nc NewClass) (SchoolClass, error)
		GetClassByID(id string) (SchoolClass, error)
		QueryClasses(filter *ClassFilter) ([]SchoolClass, error)
		UpdateClass(id string, uc UpdateClass) (SchoolClass, error)
		DeleteClass(id string) error

		RecordGrade(ng NewGrade) (Grade, error)
		QueryGrades(filter *GradeFilter) ([]Grade, error)
		DeleteGrade(id string) error
	}

	Service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) CreateClass(nc NewClass) (SchoolClass, error) {
	now := time.Now().UTC()
	cls := SchoolClass{
		Name:      nc.Name,
		Year:      nc.Year,
		TeacherID: nc.TeacherID,
		Room:      nc.Room,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateClass(context.Background(), cls)
}

func (svc *Service) GetClassByID(id string) (SchoolClass, error) {
	return svc.repo.GetClassByID(context.Background(), id)
}

func (svc *Service) QueryClasses(filter *ClassFilter) ([]SchoolClass, error) {
	return svc.repo.QueryClasses(context.Background(), filter)
}

func (svc *Service) UpdateClass(id string, uc UpdateClass) (SchoolClass, error) {
	ctx := context.Background()
	cls, err := svc.repo.GetClassByID(ctx, id)
	if err != nil {
		return SchoolClass{}, err
	}
	if uc.Name != "" {
		cls.Name = uc.Name
	}
	if uc.TeacherID.Valid {
		cls.TeacherID = uc.TeacherID
	}
	if uc.Room != nil {
		cls.Room = *uc.Room
	}
	cls.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateClass(ctx, cls)
}

func (svc *Service) DeleteClass(id string) error {
	return svc.repo.DeleteClass(context.Background(), id)
}

func (svc *Service) RecordGrade(ng NewGrade) (Grade, error) {
	ctx := context.Background()
	if _, err := svc.repo.GetClassByID(ctx, ng.ClassID); err != nil {
		return Grade{}, err
	}
	now := time.Now().UTC()
	grade := Grade{
		StudentID: ng.StudentID,
		ClassID:   ng.ClassID,
		Subject:   ng.Subject,
		Term:      ng.Term,
		Score:     ng.Score,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateGrade(ctx, grade)
}

func (svc *Service) QueryGrades(filter *GradeFilter) ([]Grade, error) {
	return svc.repo.QueryGrades(context.Background(), filter)
}

func (svc *Service) DeleteGrade(id string) error {
	return svc.repo.DeleteGrade(context.Background(), id)
}

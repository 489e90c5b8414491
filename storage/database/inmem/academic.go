package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
)

type academicRepository struct {
	db *DB
}

var _ academic.Repository = (*academicRepository)(nil)

func NewAcademicRepository(db *DB) *academicRepository {
	return &academicRepository{db: db}
}

func (repo *academicRepository) CreateClass(_ context.Context, cls academic.SchoolClass, _ ...core.DBExecutor) (academic.SchoolClass, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	cls.ID = uuid.New().String()
	repo.db.classes[cls.ID] = &cls
	return cls, nil
}

func (repo *academicRepository) GetClassByID(_ context.Context, id string, _ ...core.DBExecutor) (academic.SchoolClass, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if cls, ok := repo.db.classes[id]; ok {
		return *cls, nil
	}
	return academic.SchoolClass{}, academic.ErrClassNotFound
}

func (repo *academicRepository) QueryClasses(_ context.Context, filter *academic.ClassFilter, _ ...core.DBExecutor) ([]academic.SchoolClass, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	classes := make([]academic.SchoolClass, 0, len(repo.db.classes))
	for _, cls := range repo.db.classes {
		if filter != nil {
			if filter.Search != "" && !strings.Contains(strings.ToLower(cls.Name), strings.ToLower(filter.Search)) {
				continue
			}
			if filter.Year != 0 && cls.Year != filter.Year {
				continue
			}
		}
		classes = append(classes, *cls)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

func (repo *academicRepository) UpdateClass(_ context.Context, cls academic.SchoolClass, _ ...core.DBExecutor) (academic.SchoolClass, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.classes[cls.ID]; !ok {
		return academic.SchoolClass{}, academic.ErrClassNotFound
	}
	repo.db.classes[cls.ID] = &cls
	return cls, nil
}

func (repo *academicRepository) DeleteClass(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.classes, id)
	return nil
}

func (repo *academicRepository) CreateGrade(_ context.Context, grade academic.Grade, _ ...core.DBExecutor) (academic.Grade, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	grade.ID = uuid.New().String()
	repo.db.grades[grade.ID] = &grade
	return grade, nil
}

func (repo *academicRepository) GetGradeByID(_ context.Context, id string, _ ...core.DBExecutor) (academic.Grade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if grade, ok := repo.db.grades[id]; ok {
		return *grade, nil
	}
	return academic.Grade{}, academic.ErrGradeNotFound
}

func (repo *academicRepository) QueryGrades(_ context.Context, filter *academic.GradeFilter, _ ...core.DBExecutor) ([]academic.Grade, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	grades := make([]academic.Grade, 0, len(repo.db.grades))
	for _, grade := range repo.db.grades {
		if filter != nil {
			if filter.StudentID != "" && grade.StudentID != filter.StudentID {
				continue
			}
			if filter.ClassID != "" && grade.ClassID != filter.ClassID {
				continue
			}
			if filter.Term != 0 && grade.Term != filter.Term {
				continue
			}
		}
		grades = append(grades, *grade)
	}
	sort.Slice(grades, func(i, j int) bool {
		a, b := grades[i], grades[j]
		if a.Subject != b.Subject {
			return a.Subject < b.Subject
		}
		return a.Term < b.Term
	})
	return grades, nil
}

func (repo *academicRepository) DeleteGrade(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.grades, id)
	return nil
}

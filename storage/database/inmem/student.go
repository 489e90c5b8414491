package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/student"
)

type studentRepository struct {
	db *DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) CheckRegistrationUniqueness(_ context.Context, regNum string, excluded []student.Student, _ ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, stu := range repo.db.students {
		if stu.RegistrationNumber != regNum {
			continue
		}
		skip := false
		for _, ex := range excluded {
			if ex.ID == stu.ID {
				skip = true
			}
		}
		if !skip {
			return student.ErrRegistrationExists
		}
	}
	return nil
}

func (repo *studentRepository) CreateStudent(_ context.Context, stu student.Student, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	stu.ID = uuid.New().String()
	repo.db.students[stu.ID] = &stu
	return stu, nil
}

func (repo *studentRepository) GetStudentByID(_ context.Context, id string, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if stu, ok := repo.db.students[id]; ok {
		return *stu, nil
	}
	return student.Student{}, student.ErrNotFound
}

func (repo *studentRepository) QueryStudents(_ context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]student.Student, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	students := make([]student.Student, 0, len(repo.db.students))
	for _, stu := range repo.db.students {
		if filter != nil {
			if filter.Search != "" {
				search := strings.ToLower(filter.Search)
				if !strings.Contains(strings.ToLower(stu.FullName), search) &&
					!strings.Contains(strings.ToLower(stu.RegistrationNumber), search) {
					continue
				}
			}
			if filter.Enrolled != nil && stu.Enrolled != *filter.Enrolled {
				continue
			}
		}
		students = append(students, *stu)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].FullName < students[j].FullName })
	return students, nil
}

func (repo *studentRepository) UpdateStudent(_ context.Context, stu student.Student, _ ...core.DBExecutor) (student.Student, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.students[stu.ID]; !ok {
		return student.Student{}, student.ErrNotFound
	}
	repo.db.students[stu.ID] = &stu
	return stu, nil
}

func (repo *studentRepository) CountStudents(_ context.Context, _ ...core.DBExecutor) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return len(repo.db.students), nil
}

func (repo *studentRepository) CreateGuardian(_ context.Context, grd student.Guardian, _ ...core.DBExecutor) (student.Guardian, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	grd.ID = uuid.New().String()
	repo.db.guardians[grd.ID] = &grd
	return grd, nil
}

func (repo *studentRepository) GetGuardianByID(_ context.Context, id string, _ ...core.DBExecutor) (student.Guardian, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if grd, ok := repo.db.guardians[id]; ok {
		return *grd, nil
	}
	return student.Guardian{}, student.ErrGuardianNotFound
}

func (repo *studentRepository) QueryGuardians(_ context.Context, studentID string, _ ...core.DBExecutor) ([]student.Guardian, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	guardians := make([]student.Guardian, 0)
	for _, grd := range repo.db.guardians {
		if grd.StudentID == studentID {
			guardians = append(guardians, *grd)
		}
	}
	sort.Slice(guardians, func(i, j int) bool { return guardians[i].FullName < guardians[j].FullName })
	return guardians, nil
}

func (repo *studentRepository) UpdateGuardian(_ context.Context, grd student.Guardian, _ ...core.DBExecutor) (student.Guardian, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.guardians[grd.ID]; !ok {
		return student.Guardian{}, student.ErrGuardianNotFound
	}
	repo.db.guardians[grd.ID] = &grd
	return grd, nil
}

func (repo *studentRepository) DeleteGuardian(_ context.Context, id string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	delete(repo.db.guardians, id)
	return nil
}

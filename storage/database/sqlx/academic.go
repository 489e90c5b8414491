package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/academic"
)

const (
	classColumns = `id, name, year, teacher_id, room, created_at, updated_at`
	gradeColumns = `id, student_id, class_id, subject, term, score, created_at, updated_at`
)

type academicRepository struct {
	db *sqlx.DB
}

var _ academic.Repository = (*academicRepository)(nil)

func NewAcademicRepository(db *sqlx.DB) *academicRepository {
	return &academicRepository{db: db}
}

func (repo *academicRepository) trapNoRowsErr(err error, sentinel error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return sentinel
	}
	return errors.Wrap(err, msg)
}

func (repo *academicRepository) CreateClass(ctx context.Context, cls academic.SchoolClass, exec ...core.DBExecutor) (academic.SchoolClass, error) {
	cls.ID = uuid.New().String()
	q := `INSERT INTO school_class (` + classColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		cls.ID, cls.Name, cls.Year, cls.TeacherID, cls.Room, cls.CreatedAt, cls.UpdatedAt,
	)
	if err != nil {
		return academic.SchoolClass{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo *academicRepository) GetClassByID(ctx context.Context, id string, exec ...core.DBExecutor) (academic.SchoolClass, error) {
	var cls academic.SchoolClass
	q := `SELECT ` + classColumns + ` FROM school_class WHERE id = $1`
	if err := sqlx.GetContext(ctx, queryer(repo.db, exec), &cls, q, id); err != nil {
		return academic.SchoolClass{}, repo.trapNoRowsErr(err, academic.ErrClassNotFound, "finding class by ID")
	}
	return cls, nil
}

func (repo *academicRepository) QueryClasses(ctx context.Context, filter *academic.ClassFilter, exec ...core.DBExecutor) ([]academic.SchoolClass, error) {
	q := `SELECT ` + classColumns + ` FROM school_class`
	var conds []string
	var args []interface{}
	if filter != nil {
		if filter.Search != "" {
			conds = append(conds, fmt.Sprintf("name ILIKE $%d", len(args)+1))
			args = append(args, "%"+filter.Search+"%")
		}
		if filter.Year != 0 {
			conds = append(conds, fmt.Sprintf("year = $%d", len(args)+1))
			args = append(args, filter.Year)
		}
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY year DESC, name ASC`

	classes := []academic.SchoolClass{}
	if err := sqlx.SelectContext(ctx, queryer(repo.db, exec), &classes, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	return classes, nil
}

func (repo *academicRepository) UpdateClass(ctx context.Context, cls academic.SchoolClass, exec ...core.DBExecutor) (academic.SchoolClass, error) {
	q := `UPDATE school_class SET name = $2, teacher_id = $3, room = $4, updated_at = $5 WHERE id = $1`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q, cls.ID, cls.Name, cls.TeacherID, cls.Room, cls.UpdatedAt)
	if err != nil {
		return academic.SchoolClass{}, errors.Wrap(err, "updating class")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return academic.SchoolClass{}, academic.ErrClassNotFound
	}
	return cls, nil
}

func (repo *academicRepository) DeleteClass(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM school_class WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return nil
}

func (repo *academicRepository) CreateGrade(ctx context.Context, grade academic.Grade, exec ...core.DBExecutor) (academic.Grade, error) {
	grade.ID = uuid.New().String()
	q := `INSERT INTO grade (` + gradeColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		grade.ID, grade.StudentID, grade.ClassID, grade.Subject, grade.Term, grade.Score, grade.CreatedAt, grade.UpdatedAt,
	)
	if err != nil {
		return academic.Grade{}, errors.Wrap(err, "inserting grade")
	}
	return grade, nil
}

func (repo *academicRepository) GetGradeByID(ctx context.Context, id string, exec ...core.DBExecutor) (academic.Grade, error) {
	var grade academic.Grade
	q := `SELECT ` + gradeColumns + ` FROM grade WHERE id = $1`
	if err := sqlx.GetContext(ctx, queryer(repo.db, exec), &grade, q, id); err != nil {
		return academic.Grade{}, repo.trapNoRowsErr(err, academic.ErrGradeNotFound, "finding grade by ID")
	}
	return grade, nil
}

func (repo *academicRepository) QueryGrades(ctx context.Context, filter *academic.GradeFilter, exec ...core.DBExecutor) ([]academic.Grade, error) {
	q := `SELECT ` + gradeColumns + ` FROM grade`
	var conds []string
	var args []interface{}
	if filter != nil {
		if filter.StudentID != "" {
			conds = append(conds, fmt.Sprintf("student_id = $%d", len(args)+1))
			args = append(args, filter.StudentID)
		}
		if filter.ClassID != "" {
			conds = append(conds, fmt.Sprintf("class_id = $%d", len(args)+1))
			args = append(args, filter.ClassID)
		}
		if filter.Term != 0 {
			conds = append(conds, fmt.Sprintf("term = $%d", len(args)+1))
			args = append(args, filter.Term)
		}
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY term ASC, subject ASC`

	grades := []academic.Grade{}
	if err := sqlx.SelectContext(ctx, queryer(repo.db, exec), &grades, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying grades")
	}
	return grades, nil
}

func (repo *academicRepository) DeleteGrade(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM grade WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting grade")
	}
	return nil
}

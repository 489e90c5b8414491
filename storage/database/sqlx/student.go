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
	"github.com/trezcool/shule/core/student"
)

const (
	studentColumns = `id, full_name, registration_number, birth_date, address, phone, enrolled, enrolled_at, created_at, updated_at`

	guardianColumns = `id, student_id, full_name, relationship, phone, email, created_at, updated_at`
)

type studentRepository struct {
	db *sqlx.DB
}

var _ student.Repository = (*studentRepository)(nil)

func NewStudentRepository(db *sqlx.DB) *studentRepository {
	return &studentRepository{db: db}
}

func (repo *studentRepository) trapNoRowsErr(err error, sentinel error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return sentinel
	}
	return errors.Wrap(err, msg)
}

func (repo *studentRepository) CheckRegistrationUniqueness(ctx context.Context, regNum string, excluded []student.Student, exec ...core.DBExecutor) error {
	q := `SELECT EXISTS (SELECT 1 FROM student WHERE registration_number = ?`
	args := []interface{}{regNum}
	if len(excluded) > 0 {
		ids := make([]string, 0, len(excluded))
		for _, stu := range excluded {
			ids = append(ids, stu.ID)
		}
		inQ, inArgs, err := sqlx.In(` AND id NOT IN (?)`, ids)
		if err != nil {
			return errors.Wrap(err, "expanding excluded students")
		}
		q += inQ
		args = append(args, inArgs...)
	}
	q += `)`

	qr := queryer(repo.db, exec)
	var exists bool
	if err := sqlx.GetContext(ctx, qr, &exists, qr.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking registration uniqueness")
	}
	if exists {
		return student.ErrRegistrationExists
	}
	return nil
}

func (repo *studentRepository) CreateStudent(ctx context.Context, stu student.Student, exec ...core.DBExecutor) (student.Student, error) {
	stu.ID = uuid.New().String()
	q := `INSERT INTO student (` + studentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		stu.ID, stu.FullName, stu.RegistrationNumber, stu.BirthDate, stu.Address, stu.Phone,
		stu.Enrolled, stu.EnrolledAt, stu.CreatedAt, stu.UpdatedAt,
	)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return stu, nil
}

func (repo *studentRepository) GetStudentByID(ctx context.Context, id string, exec ...core.DBExecutor) (student.Student, error) {
	var stu student.Student
	q := `SELECT ` + studentColumns + ` FROM student WHERE id = $1`
	if err := sqlx.GetContext(ctx, queryer(repo.db, exec), &stu, q, id); err != nil {
		return student.Student{}, repo.trapNoRowsErr(err, student.ErrNotFound, "finding student by ID")
	}
	return stu, nil
}

func (repo *studentRepository) QueryStudents(ctx context.Context, filter *student.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]student.Student, error) {
	q := `SELECT ` + studentColumns + ` FROM student`
	var conds []string
	var args []interface{}
	if filter != nil {
		if filter.Search != "" {
			conds = append(conds, fmt.Sprintf("(full_name ILIKE $%d OR registration_number ILIKE $%d)", len(args)+1, len(args)+2))
			pattern := "%" + filter.Search + "%"
			args = append(args, pattern, pattern)
		}
		if filter.Enrolled != nil {
			conds = append(conds, fmt.Sprintf("enrolled = $%d", len(args)+1))
			args = append(args, *filter.Enrolled)
		}
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += orderBy(ordering, "full_name ASC")

	students := []student.Student{}
	if err := sqlx.SelectContext(ctx, queryer(repo.db, exec), &students, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo *studentRepository) UpdateStudent(ctx context.Context, stu student.Student, exec ...core.DBExecutor) (student.Student, error) {
	q := `UPDATE student
		SET full_name = $2, registration_number = $3, birth_date = $4, address = $5, phone = $6,
			enrolled = $7, enrolled_at = $8, updated_at = $9
		WHERE id = $1`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q,
		stu.ID, stu.FullName, stu.RegistrationNumber, stu.BirthDate, stu.Address, stu.Phone,
		stu.Enrolled, stu.EnrolledAt, stu.UpdatedAt,
	)
	if err != nil {
		return student.Student{}, errors.Wrap(err, "updating student")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.Student{}, student.ErrNotFound
	}
	return stu, nil
}

func (repo *studentRepository) CountStudents(ctx context.Context, exec ...core.DBExecutor) (int, error) {
	var count int
	if err := sqlx.GetContext(ctx, queryer(repo.db, exec), &count, `SELECT COUNT(*) FROM student`); err != nil {
		return 0, errors.Wrap(err, "counting students")
	}
	return count, nil
}

func (repo *studentRepository) CreateGuardian(ctx context.Context, grd student.Guardian, exec ...core.DBExecutor) (student.Guardian, error) {
	grd.ID = uuid.New().String()
	q := `INSERT INTO guardian (` + guardianColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		grd.ID, grd.StudentID, grd.FullName, grd.Relationship, grd.Phone, grd.Email, grd.CreatedAt, grd.UpdatedAt,
	)
	if err != nil {
		return student.Guardian{}, errors.Wrap(err, "inserting guardian")
	}
	return grd, nil
}

func (repo *studentRepository) GetGuardianByID(ctx context.Context, id string, exec ...core.DBExecutor) (student.Guardian, error) {
	var grd student.Guardian
	q := `SELECT ` + guardianColumns + ` FROM guardian WHERE id = $1`
	if err := sqlx.GetContext(ctx, queryer(repo.db, exec), &grd, q, id); err != nil {
		return student.Guardian{}, repo.trapNoRowsErr(err, student.ErrGuardianNotFound, "finding guardian by ID")
	}
	return grd, nil
}

func (repo *studentRepository) QueryGuardians(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]student.Guardian, error) {
	guardians := []student.Guardian{}
	q := `SELECT ` + guardianColumns + ` FROM guardian WHERE student_id = $1 ORDER BY full_name ASC`
	if err := sqlx.SelectContext(ctx, queryer(repo.db, exec), &guardians, q, studentID); err != nil {
		return nil, errors.Wrap(err, "querying guardians")
	}
	return guardians, nil
}

func (repo *studentRepository) UpdateGuardian(ctx context.Context, grd student.Guardian, exec ...core.DBExecutor) (student.Guardian, error) {
	q := `UPDATE guardian
		SET full_name = $2, relationship = $3, phone = $4, email = $5, updated_at = $6
		WHERE id = $1`
	res, err := getExec(repo.db, exec).ExecContext(ctx, q,
		grd.ID, grd.FullName, grd.Relationship, grd.Phone, grd.Email, grd.UpdatedAt,
	)
	if err != nil {
		return student.Guardian{}, errors.Wrap(err, "updating guardian")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return student.Guardian{}, student.ErrGuardianNotFound
	}
	return grd, nil
}

func (repo *studentRepository) DeleteGuardian(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if _, err := getExec(repo.db, exec).ExecContext(ctx, `DELETE FROM guardian WHERE id = $1`, id); err != nil {
		return errors.Wrap(err, "deleting guardian")
	}
	return nil
}

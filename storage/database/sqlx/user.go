package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

const userColumns = `id, name, username, email, is_active, roles, password_hash, student_id, created_at, updated_at, last_login`

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

// scanUser scans a user row; roles (TEXT[]) and the nullable unique columns
// need manual handling.
func scanUser(row sqlx.ColScanner) (user.User, error) {
	var (
		usr       user.User
		username  null.String
		email     null.String
		lastLogin null.Time
	)
	err := row.Scan(
		&usr.ID, &usr.Name, &username, &email, &usr.IsActive, pq.Array(&usr.Roles),
		&usr.PasswordHash, &usr.StudentID, &usr.CreatedAt, &usr.UpdatedAt, &lastLogin,
	)
	if err != nil {
		return user.User{}, err
	}
	usr.Username = username.String
	usr.Email = email.String
	usr.LastLogin = lastLogin.Time
	return usr, nil
}

func (repo *userRepository) getUser(ctx context.Context, exec []core.DBExecutor, q string, args ...interface{}) (user.User, error) {
	usr, err := scanUser(queryer(repo.db, exec).QueryRowxContext(ctx, q, args...))
	if err != nil {
		if errors.Cause(err) == sql.ErrNoRows {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, errors.Wrap(err, "finding user")
	}
	return usr, nil
}

func (repo *userRepository) selectUsers(ctx context.Context, exec []core.DBExecutor, q string, args ...interface{}) ([]user.User, error) {
	rows, err := queryer(repo.db, exec).QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	defer func() { _ = rows.Close() }()

	users := []user.User{}
	for rows.Next() {
		usr, err := scanUser(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning user")
		}
		users = append(users, usr)
	}
	return users, rows.Err()
}

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excluded []user.User, exec ...core.DBExecutor) error {
	check := func(column, value string, sentinel error) error {
		if value == "" {
			return nil
		}
		q := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM "user" WHERE %s = ?`, column)
		args := []interface{}{value}
		if len(excluded) > 0 {
			ids := make([]string, 0, len(excluded))
			for _, usr := range excluded {
				ids = append(ids, usr.ID)
			}
			inQ, inArgs, err := sqlx.In(` AND id NOT IN (?)`, ids)
			if err != nil {
				return errors.Wrap(err, "expanding excluded users")
			}
			q += inQ
			args = append(args, inArgs...)
		}
		q += `)`

		qr := queryer(repo.db, exec)
		var exists bool
		if err := sqlx.GetContext(ctx, qr, &exists, qr.Rebind(q), args...); err != nil {
			return errors.Wrap(err, "checking user uniqueness")
		}
		if exists {
			return sentinel
		}
		return nil
	}

	if err := check("username", username, user.ErrUsernameExists); err != nil {
		return err
	}
	return check("email", email, user.ErrEmailExists)
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	usr.ID = uuid.New().String()
	q := `INSERT INTO "user" (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := getExec(repo.db, exec).ExecContext(ctx, q,
		usr.ID, usr.Name,
		null.NewString(usr.Username, usr.Username != ""),
		null.NewString(usr.Email, usr.Email != ""),
		usr.IsActive, pq.Array(usr.Roles), usr.PasswordHash, usr.StudentID,
		usr.CreatedAt, usr.UpdatedAt,
		null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(ctx context.Context, exec ...core.DBExecutor) ([]user.User, error) {
	return repo.selectUsers(ctx, exec, `SELECT `+userColumns+` FROM "user" ORDER BY name ASC`)
}

func (repo *userRepository) GetUserByID(ctx context.Context, id string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUser(ctx, exec, `SELECT `+userColumns+` FROM "user" WHERE id = $1`, id)
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUser(ctx, exec, `SELECT `+userColumns+` FROM "user" WHERE username = $1`, username)
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUser(ctx, exec, `SELECT `+userColumns+` FROM "user" WHERE email = $1`, email)
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string, exec ...core.DBExecutor) (user.User, error) {
	return repo.getUser(ctx, exec, `SELECT `+userColumns+` FROM "user" WHERE username = $1 OR email = $1`, username)
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter user.QueryFilter, exec ...core.DBExecutor) ([]user.User, error) {
	q := `SELECT ` + userColumns + ` FROM "user"`
	var conds []string
	var args []interface{}
	if filter.Search != "" {
		conds = append(conds, fmt.Sprintf("(name ILIKE $%d OR username ILIKE $%d OR email ILIKE $%d)",
			len(args)+1, len(args)+2, len(args)+3))
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if len(filter.Roles) > 0 {
		conds = append(conds, fmt.Sprintf("roles && $%d", len(args)+1))
		args = append(args, pq.Array(filter.Roles))
	}
	if filter.IsActive != nil {
		conds = append(conds, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}
	if !filter.CreatedFrom.IsZero() {
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, filter.CreatedFrom)
	}
	if !filter.CreatedTo.IsZero() {
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, filter.CreatedTo)
	}
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY name ASC`

	return repo.selectUsers(ctx, exec, q, args...)
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool, exec ...core.DBExecutor) (user.User, error) {
	// zero fields are left unchanged
	q := `UPDATE "user" SET
			name = COALESCE(NULLIF($2, ''), name),
			username = COALESCE(NULLIF($3, ''), username),
			email = COALESCE(NULLIF($4, ''), email),
			roles = COALESCE($5, roles),
			password_hash = COALESCE($6, password_hash),
			is_active = COALESCE($7, is_active),
			last_login = COALESCE($8, last_login),
			updated_at = COALESCE($9, updated_at)
		WHERE id = $1`

	var roles interface{}
	if usr.Roles != nil {
		roles = pq.Array(usr.Roles)
	}
	res, err := getExec(repo.db, exec).ExecContext(ctx, q,
		usr.ID, usr.Name, usr.Username, usr.Email, roles, usr.PasswordHash, isActive,
		null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
		null.NewTime(usr.UpdatedAt, !usr.UpdatedAt.IsZero()),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUserByID(ctx, usr.ID, exec...)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(`DELETE FROM "user" WHERE id IN (?)`, ids)
	if err != nil {
		return errors.Wrap(err, "expanding user IDs")
	}
	if _, err = getExec(repo.db, exec).ExecContext(ctx, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return nil
}

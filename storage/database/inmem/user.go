package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/shule/core"
	"github.com/trezcool/shule/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excluded []user.User, _ ...core.DBExecutor) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	isExcluded := func(id string) bool {
		for _, ex := range excluded {
			if ex.ID == id {
				return true
			}
		}
		return false
	}
	for _, usr := range repo.db.users {
		if isExcluded(usr.ID) {
			continue
		}
		if username != "" && strings.EqualFold(usr.Username, username) {
			return user.ErrUsernameExists
		}
		if email != "" && strings.EqualFold(usr.Email, email) {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	usr.ID = uuid.New().String()
	repo.db.users[usr.ID] = &usr
	return usr, nil
}

func (repo *userRepository) QueryAllUsers(_ context.Context, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		users = append(users, *usr)
	}
	sortUsers(users)
	return users, nil
}

func (repo *userRepository) GetUserByID(_ context.Context, id string, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if usr, ok := repo.db.users[id]; ok {
		return *usr, nil
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) GetUserByUsername(ctx context.Context, username string, exec ...core.DBExecutor) (user.User, error) {
	return repo.findUser(func(usr *user.User) bool { return strings.EqualFold(usr.Username, username) })
}

func (repo *userRepository) GetUserByEmail(ctx context.Context, email string, exec ...core.DBExecutor) (user.User, error) {
	return repo.findUser(func(usr *user.User) bool { return strings.EqualFold(usr.Email, email) })
}

func (repo *userRepository) GetUserByUsernameOrEmail(ctx context.Context, username string, exec ...core.DBExecutor) (user.User, error) {
	return repo.findUser(func(usr *user.User) bool {
		return strings.EqualFold(usr.Username, username) || strings.EqualFold(usr.Email, username)
	})
}

func (repo *userRepository) findUser(match func(*user.User) bool) (user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, usr := range repo.db.users {
		if match(usr) {
			return *usr, nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) FilterUsers(_ context.Context, filter user.QueryFilter, _ ...core.DBExecutor) ([]user.User, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	users := make([]user.User, 0, len(repo.db.users))
	for _, usr := range repo.db.users {
		if filter.Search != "" {
			search := strings.ToLower(filter.Search)
			if !strings.Contains(strings.ToLower(usr.Name), search) &&
				!strings.Contains(strings.ToLower(usr.Username), search) &&
				!strings.Contains(strings.ToLower(usr.Email), search) {
				continue
			}
		}
		if len(filter.Roles) > 0 && !hasAnyRole(usr.Roles, filter.Roles) {
			continue
		}
		if filter.IsActive != nil && usr.IsActive != *filter.IsActive {
			continue
		}
		if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
			continue
		}
		if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
			continue
		}
		users = append(users, *usr)
	}
	sortUsers(users)
	return users, nil
}

// UpdateUser leaves zero fields unchanged, matching the column-level
// COALESCE semantics of the SQL implementation.
func (repo *userRepository) UpdateUser(_ context.Context, usr user.User, isActive *bool, _ ...core.DBExecutor) (user.User, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	updated := *orig
	if usr.Name != "" {
		updated.Name = usr.Name
	}
	if usr.Username != "" {
		updated.Username = usr.Username
	}
	if usr.Email != "" {
		updated.Email = usr.Email
	}
	if usr.Roles != nil {
		updated.Roles = usr.Roles
	}
	if usr.PasswordHash != nil {
		updated.PasswordHash = usr.PasswordHash
	}
	if isActive != nil {
		updated.IsActive = *isActive
	}
	if !usr.LastLogin.IsZero() {
		updated.LastLogin = usr.LastLogin
	}
	if !usr.UpdatedAt.IsZero() {
		updated.UpdatedAt = usr.UpdatedAt
	}
	repo.db.users[usr.ID] = &updated
	return updated, nil
}

func (repo *userRepository) DeleteUsersByID(_ context.Context, ids []string, _ ...core.DBExecutor) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, id := range ids {
		delete(repo.db.users, id)
	}
	return nil
}

func sortUsers(users []user.User) {
	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
}

func hasAnyRole(roles, wanted []string) bool {
	for _, role := range roles {
		for _, want := range wanted {
			if role == want {
				return true
			}
		}
	}
	return false
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	sqlitelib "modernc.org/sqlite"

	"github.com/zquestz/nexus/domain/model"
	"github.com/zquestz/nexus/domain/port/outbound"
)

const (
	sqlCountUsers = "SELECT COUNT(*) FROM users"

	// LOWER() matches case-insensitively while the returned row keeps the
	// casing entered at creation.
	sqlSelectUserByUsername = `SELECT id, username, password_hash, is_admin, enabled, created_at
		FROM users WHERE LOWER(username) = LOWER(?)`
	sqlSelectUserByID = `SELECT id, username, password_hash, is_admin, enabled, created_at
		FROM users WHERE id = ?`

	sqlInsertUser = `INSERT INTO users (username, password_hash, is_admin, enabled, created_at)
		VALUES (?, ?, ?, ?, ?)`

	sqlSelectPermissions = "SELECT permission FROM user_permissions WHERE user_id = ?"
	sqlDeletePermissions = "DELETE FROM user_permissions WHERE user_id = ?"
	sqlInsertPermission  = "INSERT INTO user_permissions (user_id, permission) VALUES (?, ?)"

	// Both last-admin protections are compound WHERE clauses on the update
	// itself, so the count check and the mutation are one statement and no
	// interleaving can leave the table without an (enabled) admin. Zero rows
	// affected means a protection blocked the change.
	sqlUpdateUser = `UPDATE users
		SET username = ?, password_hash = ?, is_admin = ?, enabled = ?
		WHERE id = ?
		AND (
			? = 1
			OR is_admin = 0
			OR (SELECT COUNT(*) FROM users WHERE is_admin = 1 AND enabled = 1) > 1
		)
		AND (
			? = 1
			OR is_admin = 0
			OR (SELECT COUNT(*) FROM users WHERE is_admin = 1) > 1
		)`

	sqlDeleteUser = `DELETE FROM users
		WHERE id = ?
		AND (
			is_admin = 0
			OR (SELECT COUNT(*) FROM users WHERE is_admin = 1) > 1
		)`

	sqlCountAdmins        = "SELECT COUNT(*) FROM users WHERE is_admin = 1"
	sqlCountEnabledAdmins = "SELECT COUNT(*) FROM users WHERE is_admin = 1 AND enabled = 1"
)

// UserRepository implements the user store on SQLite.
type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db.SQL()}
}

var _ outbound.UserRepository = (*UserRepository)(nil)

func (r *UserRepository) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, sqlCountUsers).Scan(&count)
	return count, err
}

func (r *UserRepository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, sqlSelectUserByUsername, username))
}

func (r *UserRepository) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, sqlSelectUserByID, id))
}

func (r *UserRepository) CreateUser(ctx context.Context, user *model.User, perms []model.Permission) error {
	for _, p := range perms {
		if _, ok := model.ParsePermission(string(p)); !ok {
			return outbound.ErrUnknownPerm
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	createdAt := time.Now().Unix()
	res, err := tx.ExecContext(ctx, sqlInsertUser,
		user.Username, user.PasswordHash, user.IsAdmin, user.Enabled, createdAt)
	if err != nil {
		if isUniqueViolation(err) {
			return outbound.ErrUsernameTaken
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	for _, p := range perms {
		if _, err := tx.ExecContext(ctx, sqlInsertPermission, id, string(p)); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	user.ID = id
	user.CreatedAt = createdAt
	return nil
}

func (r *UserRepository) UpdateUser(ctx context.Context, id int64, changes model.UserChanges) error {
	for _, p := range changes.Permissions {
		if _, ok := model.ParsePermission(string(p)); !ok {
			return outbound.ErrUnknownPerm
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	current, err := scanUser(tx.QueryRowContext(ctx, sqlSelectUserByID, id))
	if err != nil {
		return err
	}

	username := current.Username
	if changes.Username != nil {
		username = *changes.Username
	}
	passwordHash := current.PasswordHash
	if changes.Password != nil {
		passwordHash = *changes.Password
	}
	isAdmin := current.IsAdmin
	if changes.IsAdmin != nil {
		isAdmin = *changes.IsAdmin
	}
	enabled := current.Enabled
	if changes.Enabled != nil {
		enabled = *changes.Enabled
	}

	res, err := tx.ExecContext(ctx, sqlUpdateUser,
		username, passwordHash, isAdmin, enabled, id, enabled, isAdmin)
	if err != nil {
		if isUniqueViolation(err) {
			return outbound.ErrUsernameTaken
		}
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return blockedUpdateError(ctx, tx, current, isAdmin, enabled)
	}

	if changes.SetPermissions {
		if _, err := tx.ExecContext(ctx, sqlDeletePermissions, id); err != nil {
			return err
		}
		for _, p := range changes.Permissions {
			if _, err := tx.ExecContext(ctx, sqlInsertPermission, id, string(p)); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// blockedUpdateError decides which protection stopped a zero-row update.
func blockedUpdateError(ctx context.Context, tx *sql.Tx, current *model.User, isAdmin, enabled bool) error {
	if current.IsAdmin && !enabled {
		var count int64
		if err := tx.QueryRowContext(ctx, sqlCountEnabledAdmins).Scan(&count); err != nil {
			return err
		}
		if count <= 1 {
			return outbound.ErrLastAdminOff
		}
	}
	if current.IsAdmin && !isAdmin {
		var count int64
		if err := tx.QueryRowContext(ctx, sqlCountAdmins).Scan(&count); err != nil {
			return err
		}
		if count <= 1 {
			return outbound.ErrLastAdminDemote
		}
	}
	return outbound.ErrNotFound
}

func (r *UserRepository) DeleteUser(ctx context.Context, id int64) error {
	// Permission rows cascade through the foreign key.
	res, err := r.db.ExecContext(ctx, sqlDeleteUser, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := r.GetUserByID(ctx, id); errors.Is(err, outbound.ErrNotFound) {
			return outbound.ErrNotFound
		} else if err != nil {
			return err
		}
		return outbound.ErrLastAdminDelete
	}
	return nil
}

func (r *UserRepository) Permissions(ctx context.Context, userID int64) ([]model.Permission, error) {
	rows, err := r.db.QueryContext(ctx, sqlSelectPermissions, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []model.Permission
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if p, ok := model.ParsePermission(name); ok {
			perms = append(perms, p)
		}
	}
	return perms, rows.Err()
}

func scanUser(row *sql.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.Enabled, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, outbound.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

func isUniqueViolation(err error) bool {
	var se *sqlitelib.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqliteConstraintUnique || code == sqliteConstraintPrimaryKey
	}
	return false
}

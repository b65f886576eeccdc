package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/majlischat/majlis-server/internal/perm"
	"github.com/majlischat/majlis-server/internal/store"
)

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS admins (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	username      TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	role          TEXT NOT NULL,
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS bans (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	addr       TEXT NOT NULL DEFAULT '',
	device_id  TEXT NOT NULL DEFAULT '',
	reason     TEXT NOT NULL DEFAULT '',
	banned_by  TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS role_permissions (
	role   TEXT NOT NULL,
	action TEXT NOT NULL,
	PRIMARY KEY (role, action)
);
`

// New creates a new SQLite store and applies the schema.
// dbPath is the path to the SQLite database file.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== AdminStore implementation ====

// CreateAdmin registers a new admin account with a bcrypt hash.
func (s *SQLiteStore) CreateAdmin(ctx context.Context, username, passwordHash string, role perm.Role) (*store.AdminAccount, error) {
	query := `
		INSERT INTO admins (username, password_hash, role)
		VALUES (?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, username, passwordHash, string(role))
	if err != nil {
		return nil, fmt.Errorf("insert admin: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}

	return s.getAdminByID(ctx, id)
}

func (s *SQLiteStore) getAdminByID(ctx context.Context, id int64) (*store.AdminAccount, error) {
	query := `
		SELECT id, username, password_hash, role, created_at
		FROM admins
		WHERE id = ?
	`
	return scanAdmin(s.db.QueryRowContext(ctx, query, id))
}

// GetAdminByUsername retrieves an admin account by display name.
func (s *SQLiteStore) GetAdminByUsername(ctx context.Context, username string) (*store.AdminAccount, error) {
	query := `
		SELECT id, username, password_hash, role, created_at
		FROM admins
		WHERE username = ?
	`
	return scanAdmin(s.db.QueryRowContext(ctx, query, username))
}

func scanAdmin(row *sql.Row) (*store.AdminAccount, error) {
	var (
		acc  store.AdminAccount
		role string
	)
	err := row.Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &role, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan admin: %w", err)
	}
	acc.Role = perm.Role(role)
	return &acc, nil
}

// ListAdmins lists all admin accounts.
func (s *SQLiteStore) ListAdmins(ctx context.Context) ([]*store.AdminAccount, error) {
	query := `
		SELECT id, username, password_hash, role, created_at
		FROM admins
		ORDER BY username
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query admins: %w", err)
	}
	defer rows.Close()

	var out []*store.AdminAccount
	for rows.Next() {
		var (
			acc  store.AdminAccount
			role string
		)
		if err := rows.Scan(&acc.ID, &acc.Username, &acc.PasswordHash, &role, &acc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		acc.Role = perm.Role(role)
		out = append(out, &acc)
	}
	return out, rows.Err()
}

// RemoveAdmin deletes an admin account.
func (s *SQLiteStore) RemoveAdmin(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM admins WHERE username = ?`, username)
	if err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ==== BanStore implementation ====

// AddBan records a new ban entry and returns it with its id set.
func (s *SQLiteStore) AddBan(ctx context.Context, entry store.BanEntry) (*store.BanEntry, error) {
	query := `
		INSERT INTO bans (addr, device_id, reason, banned_by)
		VALUES (?, ?, ?, ?)
	`
	result, err := s.db.ExecContext(ctx, query, entry.Addr, entry.DeviceID, entry.Reason, entry.BannedBy)
	if err != nil {
		return nil, fmt.Errorf("insert ban: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("get last insert id: %w", err)
	}
	entry.ID = id
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return &entry, nil
}

// RemoveBan deletes every entry matching addr or deviceID.
func (s *SQLiteStore) RemoveBan(ctx context.Context, addr, deviceID string) (int64, error) {
	query := `
		DELETE FROM bans
		WHERE (addr != '' AND addr = ?) OR (device_id != '' AND device_id = ?)
	`
	result, err := s.db.ExecContext(ctx, query, addr, deviceID)
	if err != nil {
		return 0, fmt.Errorf("delete ban: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}

// ListBans lists all ban entries.
func (s *SQLiteStore) ListBans(ctx context.Context) ([]*store.BanEntry, error) {
	query := `
		SELECT id, addr, device_id, reason, banned_by, created_at
		FROM bans
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query bans: %w", err)
	}
	defer rows.Close()

	var out []*store.BanEntry
	for rows.Next() {
		var b store.BanEntry
		if err := rows.Scan(&b.ID, &b.Addr, &b.DeviceID, &b.Reason, &b.BannedBy, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ban: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// ==== PermissionStore implementation ====

// LoadPermissions reads the persisted matrix.
func (s *SQLiteStore) LoadPermissions(ctx context.Context) (perm.Matrix, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, action FROM role_permissions`)
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	m := perm.Matrix{}
	for rows.Next() {
		var role, action string
		if err := rows.Scan(&role, &action); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		m[perm.Role(role)] = append(m[perm.Role(role)], perm.Action(action))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, store.ErrNotFound
	}
	return m, nil
}

// SavePermissions replaces the persisted matrix wholesale inside one
// transaction, so readers never observe a half-written matrix.
func (s *SQLiteStore) SavePermissions(ctx context.Context, m perm.Matrix) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions`); err != nil {
		return fmt.Errorf("clear permissions: %w", err)
	}
	for role, actions := range m {
		for _, action := range actions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO role_permissions (role, action) VALUES (?, ?)`,
				string(role), string(action),
			); err != nil {
				return fmt.Errorf("insert permission: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit permissions: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"errors"
	"time"

	"github.com/majlischat/majlis-server/internal/perm"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// AdminAccount is a preconfigured moderator identity. Privileged roles
// can only be assumed by logging into one of these accounts.
type AdminAccount struct {
	ID           int64
	Username     string
	PasswordHash string
	Role         perm.Role
	CreatedAt    time.Time
}

// BanEntry blocks future connections matching either the network
// address or the device fingerprint. Entries are immutable; the only
// mutation is removal via an explicit unban.
type BanEntry struct {
	ID        int64
	Addr      string
	DeviceID  string
	Reason    string
	BannedBy  string
	CreatedAt time.Time
}

// Matches reports whether a connecting identity trips this entry.
// Either field alone is sufficient; empty fields never match.
func (b BanEntry) Matches(addr, deviceID string) bool {
	if b.Addr != "" && b.Addr == addr {
		return true
	}
	if b.DeviceID != "" && b.DeviceID == deviceID {
		return true
	}
	return false
}

// AdminStore handles admin account persistence.
type AdminStore interface {
	// CreateAdmin registers a new admin account with a bcrypt hash.
	CreateAdmin(ctx context.Context, username, passwordHash string, role perm.Role) (*AdminAccount, error)

	// GetAdminByUsername retrieves an admin account by display name.
	GetAdminByUsername(ctx context.Context, username string) (*AdminAccount, error)

	// ListAdmins lists all admin accounts.
	ListAdmins(ctx context.Context) ([]*AdminAccount, error)

	// RemoveAdmin deletes an admin account.
	RemoveAdmin(ctx context.Context, username string) error
}

// BanStore handles ban list persistence.
type BanStore interface {
	// AddBan records a new ban entry and returns it with its id set.
	AddBan(ctx context.Context, entry BanEntry) (*BanEntry, error)

	// RemoveBan deletes every entry matching addr or deviceID and
	// reports how many were removed.
	RemoveBan(ctx context.Context, addr, deviceID string) (int64, error)

	// ListBans lists all ban entries.
	ListBans(ctx context.Context) ([]*BanEntry, error)
}

// PermissionStore persists the role/capability matrix as a whole
// document: saves replace everything, no merge semantics.
type PermissionStore interface {
	// LoadPermissions reads the persisted matrix. A store with no
	// persisted matrix returns ErrNotFound.
	LoadPermissions(ctx context.Context) (perm.Matrix, error)

	// SavePermissions replaces the persisted matrix wholesale.
	SavePermissions(ctx context.Context, m perm.Matrix) error
}

// Store aggregates all storage interfaces.
type Store interface {
	AdminStore
	BanStore
	PermissionStore

	// Close closes the underlying database connection.
	Close() error
}

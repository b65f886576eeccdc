// Package perm holds the role/capability matrix that gates every
// privileged action in the room.
package perm

// Role is a named privilege tier.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleSuperadmin Role = "superadmin"
	RoleAdmin      Role = "admin"
	RoleMod        Role = "mod"
	RoleMember     Role = "member"
	RoleGuest      Role = "guest"
)

// KnownRole reports whether the role is one of the recognized tiers.
func KnownRole(r Role) bool {
	switch r {
	case RoleOwner, RoleSuperadmin, RoleAdmin, RoleMod, RoleMember, RoleGuest:
		return true
	}
	return false
}

// Privileged reports whether the role may only be assumed through an
// authenticated admin account.
func Privileged(r Role) bool {
	switch r {
	case RoleOwner, RoleSuperadmin, RoleAdmin, RoleMod:
		return true
	}
	return false
}

// Action is a permitted operation identifier.
type Action string

const (
	ActionMute            Action = "mute"
	ActionKick            Action = "kick"
	ActionBan             Action = "ban"
	ActionUnban           Action = "unban"
	ActionSetRole         Action = "set-role"
	ActionForceRelease    Action = "force-release"
	ActionApproveSpeak    Action = "approve-speak"
	ActionEditPermissions Action = "edit-permissions"
	ActionLockRoom        Action = "lock-room"
	ActionOverrideLock    Action = "override-lock"
	ActionUpload          Action = "upload"
)

// Matrix maps a role to the set of actions it may perform. It is the
// whole-document unit of persistence: updates replace it wholesale,
// last writer wins.
type Matrix map[Role][]Action

// Can reports whether role is allowed to perform action. A role absent
// from the matrix has no capabilities at all; malformed configuration
// therefore fails closed instead of leaking privileges.
func (m Matrix) Can(role Role, action Action) bool {
	for _, a := range m[role] {
		if a == action {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so the hub can hand snapshots to other
// goroutines without sharing slices.
func (m Matrix) Clone() Matrix {
	out := make(Matrix, len(m))
	for role, actions := range m {
		out[role] = append([]Action(nil), actions...)
	}
	return out
}

// Default is the matrix a fresh room starts with. It mirrors the usual
// hierarchy: owner and superadmin can do everything including speaking
// through a locked room, admins run day-to-day moderation, mods handle
// mute/kick and uploads, members and guests hold no capabilities.
func Default() Matrix {
	all := []Action{
		ActionMute, ActionKick, ActionBan, ActionUnban, ActionSetRole,
		ActionForceRelease, ActionApproveSpeak, ActionEditPermissions,
		ActionLockRoom, ActionOverrideLock, ActionUpload,
	}
	return Matrix{
		RoleOwner:      append([]Action(nil), all...),
		RoleSuperadmin: append([]Action(nil), all...),
		RoleAdmin: {
			ActionMute, ActionKick, ActionBan, ActionUnban,
			ActionForceRelease, ActionApproveSpeak, ActionLockRoom,
			ActionUpload,
		},
		RoleMod: {
			ActionMute, ActionKick, ActionUpload,
		},
		RoleMember: {},
		RoleGuest:  {},
	}
}

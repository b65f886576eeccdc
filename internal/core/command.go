package core

import "github.com/majlischat/majlis-server/internal/perm"

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendMessage delivers a chat message to the room.
	CommandSendMessage CommandKind = iota
	// CommandRequestSpeak asks for the mic or a place in the wait queue.
	CommandRequestSpeak
	// CommandReleaseSpeak gives the mic back voluntarily.
	CommandReleaseSpeak
	// CommandForceRelease takes the mic away from the target speaker.
	CommandForceRelease
	// CommandApproveSpeak moves a pending request into the wait queue.
	CommandApproveSpeak
	// CommandRejectSpeak discards a pending request.
	CommandRejectSpeak
	// CommandSetMute mutes or unmutes the target user.
	CommandSetMute
	// CommandKick disconnects the target user.
	CommandKick
	// CommandBan bans the target user's address and device fingerprint.
	CommandBan
	// CommandUnban removes ban entries matching an address or fingerprint.
	CommandUnban
	// CommandSetRole promotes or demotes the target user.
	CommandSetRole
	// CommandGetPermissions requests the current capability matrix.
	CommandGetPermissions
	// CommandSetPermissions replaces the capability matrix wholesale.
	CommandSetPermissions
	// CommandSetRoomLock toggles the room lock.
	CommandSetRoomLock
	// CommandSetManualApproval toggles manual-approval mode.
	CommandSetManualApproval
	// CommandUpdateSettings changes the sender's own display settings.
	CommandUpdateSettings
)

// Command represents an action requested by a client. Only the fields
// relevant to the Kind are populated.
type Command struct {
	Kind CommandKind

	// Target is the display name the action applies to.
	Target string

	// Text is the chat message body.
	Text string

	// Flag carries the boolean for mute/lock/manual-approval toggles.
	Flag bool

	// Role is the tier for set-role.
	Role perm.Role

	// Matrix is the replacement matrix for set-permissions.
	Matrix perm.Matrix

	// Addr/DeviceID identify the ban entry for unban.
	Addr     string
	DeviceID string

	// Reason annotates bans and kicks.
	Reason string

	// Settings/Avatar for update-settings.
	Settings *Settings
	Avatar   string
}

// Package proto defines the JSON envelopes exchanged over the
// WebSocket channel.
package proto

import "encoding/json"

// Inbound is the envelope for messages coming from the client.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	ProtocolVersion = 1

	InboundTypeHello          = "hello"
	InboundTypeMsg            = "msg"
	InboundTypeRequestSpeak   = "request-speak"
	InboundTypeReleaseSpeak   = "release-speak"
	InboundTypeForceRelease   = "force-release"
	InboundTypeApproveSpeak   = "approve-speak"
	InboundTypeRejectSpeak    = "reject-speak"
	InboundTypeMute           = "mute"
	InboundTypeKick           = "kick"
	InboundTypeBan            = "ban"
	InboundTypeUnban          = "unban"
	InboundTypeSetRole        = "set-role"
	InboundTypeGetPermissions = "get-permissions"
	InboundTypeSetPermissions = "set-permissions"
	InboundTypeLockRoom       = "lock-room"
	InboundTypeManualApproval = "manual-approval"
	InboundTypeSettings       = "settings"

	OutboundTypeEvent = "event"
	OutboundTypeError = "error"
)

// HelloData introduces the connection: display name, optional avatar,
// a device fingerprint for the ban registry, and an optional admin
// token that unlocks privileged roles.
type HelloData struct {
	Name     string `json:"name"`
	Role     string `json:"role,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
	Token    string `json:"token,omitempty"`
	Protocol int    `json:"protocol,omitempty"`
}

// MsgData is a chat message from the client.
type MsgData struct {
	Text string `json:"text"`
}

// TargetData names the user a moderation action applies to.
type TargetData struct {
	Target string `json:"target"`
	Reason string `json:"reason,omitempty"`
}

// MuteData mutes or unmutes a target.
type MuteData struct {
	Target string `json:"target"`
	Muted  bool   `json:"muted"`
}

// UnbanData identifies ban entries to lift.
type UnbanData struct {
	Addr     string `json:"addr,omitempty"`
	DeviceID string `json:"device_id,omitempty"`
}

// SetRoleData changes a target's role.
type SetRoleData struct {
	Target string `json:"target"`
	Role   string `json:"role"`
}

// PermissionsData carries a role -> actions matrix.
type PermissionsData struct {
	Permissions map[string][]string `json:"permissions"`
}

// ToggleData flips a room setting.
type ToggleData struct {
	Enabled bool `json:"enabled"`
}

// SettingsData updates the sender's display preferences.
type SettingsData struct {
	Color    string `json:"color,omitempty"`
	FontSize string `json:"font_size,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type  string `json:"type"`
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// Outbound event names.
const (
	EventChatMessage        = "chat-message"
	EventUserJoined         = "join"
	EventUserLeft           = "leave"
	EventSnapshot           = "snapshot"
	EventSpeakGranted       = "speak-granted"
	EventSpeakReleased      = "speak-released"
	EventSpeakExpired       = "speak-expired"
	EventQueueUpdated       = "queue-updated"
	EventApprovalPending    = "approval-pending"
	EventPermissionsUpdated = "permissions-updated"
	EventBanUpdated         = "ban-updated"
	EventUserUpdated        = "user-updated"
	EventKicked             = "kicked"
)

// EventChatMessageData is a rendered chat line.
type EventChatMessageData struct {
	From       string `json:"from"`
	Avatar     string `json:"avatar,omitempty"`
	Text       string `json:"text"`
	Color      string `json:"color"`
	FontSize   string `json:"font_size"`
	Attachment string `json:"attachment,omitempty"`
	TS         int64  `json:"ts"`
}

// EventUserData describes one user for join/update events.
type EventUserData struct {
	Name   string `json:"name"`
	Role   string `json:"role"`
	Muted  bool   `json:"muted"`
	Avatar string `json:"avatar,omitempty"`
}

// EventFloorData is the speaking-slot state.
type EventFloorData struct {
	Speaker        string   `json:"speaker"`
	Remaining      int      `json:"remaining"`
	Queue          []string `json:"queue"`
	Pending        []string `json:"pending"`
	Locked         bool     `json:"locked"`
	ManualApproval bool     `json:"manual_approval"`
}

// EventSnapshotData is the on-connect room sync. You is the receiver's
// session id, which the upload endpoint expects back as user_id.
type EventSnapshotData struct {
	Room        string              `json:"room"`
	You         string              `json:"you"`
	Users       []EventUserData     `json:"users"`
	Floor       EventFloorData      `json:"floor"`
	Permissions map[string][]string `json:"permissions"`
}

// EventNamedData carries a bare subject name plus optional reason.
type EventNamedData struct {
	User   string `json:"user,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

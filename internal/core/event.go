package core

import (
	"time"

	"github.com/majlischat/majlis-server/internal/perm"
)

// EventKind is a notification the core emits to clients.
type EventKind int

const (
	// EventChatMessage notifies clients about a chat message.
	EventChatMessage EventKind = iota
	// EventUserJoined notifies clients about a user joining the room.
	EventUserJoined
	// EventUserLeft notifies clients about a user leaving the room.
	EventUserLeft
	// EventSnapshot delivers the full room state to a newly joined client.
	EventSnapshot
	// EventSpeakGranted notifies that a user was promoted to the mic.
	EventSpeakGranted
	// EventSpeakReleased notifies that the speaker gave the mic back.
	EventSpeakReleased
	// EventSpeakExpired notifies that the speaker's countdown ran out.
	EventSpeakExpired
	// EventQueueUpdated carries the current floor state after any change.
	EventQueueUpdated
	// EventApprovalPending tells approvers that a request awaits review.
	EventApprovalPending
	// EventPermissionsUpdated carries the replaced capability matrix.
	EventPermissionsUpdated
	// EventBanUpdated notifies about a ban list change.
	EventBanUpdated
	// EventUserUpdated notifies about a role/mute/settings change.
	EventUserUpdated
	// EventKicked is sent to the kicked client just before disconnect.
	EventKicked
	// EventError notifies the originating client about a domain error.
	EventError
)

// ChatMessage is a rendered chat line with the sender's display settings.
// Attachment carries the served URL when the line announces an upload.
type ChatMessage struct {
	From       string
	Avatar     string
	Text       string
	Color      string
	FontSize   string
	Attachment string
	SentAt     time.Time
}

// UserInfo is the public view of one session.
type UserInfo struct {
	Name   string
	Role   perm.Role
	Muted  bool
	Avatar string
}

// FloorState is a point-in-time view of the speaking slot, with queue
// entries resolved to display names.
type FloorState struct {
	Speaker        string
	Remaining      int
	Queue          []string
	Pending        []string
	Locked         bool
	ManualApproval bool
}

// Snapshot is the on-connect sync for new joiners; they never receive
// backfilled events. You is the receiver's own session id, needed for
// the upload endpoint.
type Snapshot struct {
	Room   string
	You    string
	Users  []UserInfo
	Floor  FloorState
	Matrix perm.Matrix
}

// Event is sent to clients to describe what happened in the room.
type Event struct {
	Kind EventKind

	// User names the subject of join/leave/speak/kick/user events.
	User string

	Message  *ChatMessage
	Floor    *FloorState
	Snapshot *Snapshot
	Matrix   perm.Matrix
	Info     *UserInfo
	Reason   string
	Error    *CoreError
}

package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/majlischat/majlis-server/internal/perm"
	"github.com/majlischat/majlis-server/internal/store"
)

func TestHubJoinSnapshotAndChat(t *testing.T) {
	hub := startHub(t, Options{})

	alice := mustJoin(t, hub, "a", "alice", perm.RoleMember)
	snap := mustEvent(t, alice.Events, EventSnapshot)
	if snap.Snapshot == nil || len(snap.Snapshot.Users) != 1 || snap.Snapshot.Users[0].Name != "alice" {
		t.Fatalf("unexpected snapshot: %+v", snap.Snapshot)
	}
	if !snap.Snapshot.Matrix.Can(perm.RoleMod, perm.ActionMute) {
		t.Fatal("snapshot must carry the capability matrix")
	}

	bob := mustJoin(t, hub, "b", "bob", perm.RoleMember)
	joinEv := mustEvent(t, alice.Events, EventUserJoined)
	if joinEv.User != "bob" {
		t.Fatalf("unexpected join event: %+v", joinEv)
	}

	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "hi"}
	msgEv := mustEvent(t, bob.Events, EventChatMessage)
	if msgEv.Message.From != "alice" || msgEv.Message.Text != "hi" {
		t.Fatalf("unexpected message event: %+v", msgEv.Message)
	}
	if msgEv.Message.Color != "#fff" || msgEv.Message.FontSize != "18px" {
		t.Fatalf("default display settings missing: %+v", msgEv.Message)
	}
}

func TestHubDuplicateNameRejected(t *testing.T) {
	hub := startHub(t, Options{})

	mustJoin(t, hub, "a", "alice", perm.RoleMember)

	dup := NewClient("b", "alice", perm.RoleMember)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := hub.Join(ctx, dup)
	var cerr *CoreError
	if !errors.As(err, &cerr) || cerr.Code != ErrCodeNameTaken {
		t.Fatalf("expected name_taken, got %v", err)
	}
}

func TestHubBannedIdentityRejected(t *testing.T) {
	hub := startHub(t, Options{
		Bans: []store.BanEntry{{Addr: "10.0.0.9", DeviceID: "dev-1"}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Banned by address even with a fresh device fingerprint.
	byAddr := NewClient("a", "alice", perm.RoleMember)
	byAddr.Addr, byAddr.DeviceID = "10.0.0.9", "fresh"
	err := hub.Join(ctx, byAddr)
	var cerr *CoreError
	if !errors.As(err, &cerr) || cerr.Code != ErrCodeBanned {
		t.Fatalf("expected banned by address, got %v", err)
	}

	// And by device even from a fresh address.
	byDevice := NewClient("b", "bob", perm.RoleMember)
	byDevice.Addr, byDevice.DeviceID = "10.9.9.9", "dev-1"
	err = hub.Join(ctx, byDevice)
	if !errors.As(err, &cerr) || cerr.Code != ErrCodeBanned {
		t.Fatalf("expected banned by device, got %v", err)
	}

	clean := NewClient("c", "carol", perm.RoleMember)
	clean.Addr, clean.DeviceID = "10.9.9.9", "fresh"
	if err := hub.Join(ctx, clean); err != nil {
		t.Fatalf("clean identity should be admitted: %v", err)
	}
}

func TestHubPermissionGate(t *testing.T) {
	// Matrix from the book: mods can mute, nothing else.
	hub := startHub(t, Options{Matrix: perm.Matrix{perm.RoleMod: {perm.ActionMute}}})

	mod := mustJoin(t, hub, "m", "mona", perm.RoleMod)
	member := mustJoin(t, hub, "u", "uri", perm.RoleMember)

	mod.Commands <- &Command{Kind: CommandKick, Target: "uri"}
	errEv := mustEvent(t, mod.Events, EventError)
	if errEv.Error.Code != ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized for kick, got %+v", errEv.Error)
	}

	mod.Commands <- &Command{Kind: CommandSetMute, Target: "uri", Flag: true}
	upd := mustEvent(t, member.Events, EventUserUpdated)
	if upd.User != "uri" || upd.Info == nil || !upd.Info.Muted {
		t.Fatalf("expected uri muted, got %+v", upd)
	}

	// Muted users cannot chat.
	member.Commands <- &Command{Kind: CommandSendMessage, Text: "hello?"}
	errEv = mustEvent(t, member.Events, EventError)
	if errEv.Error.Code != ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized for muted chat, got %+v", errEv.Error)
	}
}

func TestHubSpeakQueueRotation(t *testing.T) {
	hub := startHub(t, Options{
		SpeakTime:    2 * time.Second,
		TickInterval: 20 * time.Millisecond,
	})

	alice := mustJoin(t, hub, "a", "alice", perm.RoleMember)
	bob := mustJoin(t, hub, "b", "bob", perm.RoleMember)

	alice.Commands <- &Command{Kind: CommandRequestSpeak}
	granted := mustEvent(t, bob.Events, EventSpeakGranted)
	if granted.User != "alice" || granted.Floor == nil || granted.Floor.Remaining != 2 {
		t.Fatalf("unexpected grant: %+v", granted)
	}

	bob.Commands <- &Command{Kind: CommandRequestSpeak}
	queueEv := mustEvent(t, alice.Events, EventQueueUpdated)
	_ = queueEv

	// The countdown expires quickly at the fast tick; bob is promoted
	// in the same processing step.
	expired := mustEvent(t, alice.Events, EventSpeakExpired)
	if expired.User != "alice" {
		t.Fatalf("expected alice to expire, got %+v", expired)
	}
	granted = mustEvent(t, alice.Events, EventSpeakGranted)
	if granted.User != "bob" {
		t.Fatalf("expected bob promoted after expiry, got %+v", granted)
	}
}

func TestHubReleaseNotSpeaker(t *testing.T) {
	hub := startHub(t, Options{})

	alice := mustJoin(t, hub, "a", "alice", perm.RoleMember)
	bob := mustJoin(t, hub, "b", "bob", perm.RoleMember)

	alice.Commands <- &Command{Kind: CommandRequestSpeak}
	mustEvent(t, bob.Events, EventSpeakGranted)

	bob.Commands <- &Command{Kind: CommandReleaseSpeak}
	errEv := mustEvent(t, bob.Events, EventError)
	if errEv.Error.Code != ErrCodeNotSpeaking {
		t.Fatalf("expected not_speaking, got %+v", errEv.Error)
	}
}

func TestHubSpeakerDisconnectPromotesNext(t *testing.T) {
	hub := startHub(t, Options{})

	alice := mustJoin(t, hub, "a", "alice", perm.RoleMember)
	bob := mustJoin(t, hub, "b", "bob", perm.RoleMember)

	alice.Commands <- &Command{Kind: CommandRequestSpeak}
	mustEvent(t, bob.Events, EventSpeakGranted)
	bob.Commands <- &Command{Kind: CommandRequestSpeak}
	mustEvent(t, bob.Events, EventQueueUpdated)

	hub.Leave(alice)

	left := mustEvent(t, bob.Events, EventUserLeft)
	if left.User != "alice" {
		t.Fatalf("unexpected leave event: %+v", left)
	}
	granted := mustEvent(t, bob.Events, EventSpeakGranted)
	if granted.User != "bob" {
		t.Fatalf("expected bob promoted on speaker disconnect, got %+v", granted)
	}
	queueEv := mustEvent(t, bob.Events, EventQueueUpdated)
	if queueEv.Floor.Speaker != "bob" || len(queueEv.Floor.Queue) != 0 {
		t.Fatalf("dangling queue state: %+v", queueEv.Floor)
	}
}

func TestHubManualApprovalRejectNeverSpeaks(t *testing.T) {
	hub := startHub(t, Options{ManualApproval: true})

	admin := mustJoin(t, hub, "ad", "amira", perm.RoleAdmin)
	dina := mustJoin(t, hub, "d", "dina", perm.RoleMember)

	dina.Commands <- &Command{Kind: CommandRequestSpeak}

	pendingEv := mustEvent(t, admin.Events, EventApprovalPending)
	if pendingEv.User != "dina" {
		t.Fatalf("unexpected approval notification: %+v", pendingEv)
	}
	queueEv := mustEvent(t, dina.Events, EventQueueUpdated)
	if len(queueEv.Floor.Queue) != 0 || len(queueEv.Floor.Pending) != 1 || queueEv.Floor.Pending[0] != "dina" {
		t.Fatalf("request must land in pending, not the queue: %+v", queueEv.Floor)
	}

	admin.Commands <- &Command{Kind: CommandRejectSpeak, Target: "dina"}
	queueEv = mustEvent(t, admin.Events, EventQueueUpdated)
	if len(queueEv.Floor.Pending) != 0 || queueEv.Floor.Speaker != "" {
		t.Fatalf("rejected user must never speak: %+v", queueEv.Floor)
	}
	noEvent(t, dina.Events, EventSpeakGranted, 100*time.Millisecond)
}

func TestHubManualApprovalApprove(t *testing.T) {
	hub := startHub(t, Options{ManualApproval: true})

	admin := mustJoin(t, hub, "ad", "amira", perm.RoleAdmin)
	dina := mustJoin(t, hub, "d", "dina", perm.RoleMember)

	dina.Commands <- &Command{Kind: CommandRequestSpeak}
	mustEvent(t, admin.Events, EventApprovalPending)

	admin.Commands <- &Command{Kind: CommandApproveSpeak, Target: "dina"}
	granted := mustEvent(t, dina.Events, EventSpeakGranted)
	if granted.User != "dina" {
		t.Fatalf("expected dina promoted after approval, got %+v", granted)
	}
}

func TestHubRoomLockAndOverride(t *testing.T) {
	hub := startHub(t, Options{})

	owner := mustJoin(t, hub, "o", "omar", perm.RoleOwner)
	member := mustJoin(t, hub, "m", "mia", perm.RoleMember)

	owner.Commands <- &Command{Kind: CommandSetRoomLock, Flag: true}
	queueEv := mustEvent(t, member.Events, EventQueueUpdated)
	if !queueEv.Floor.Locked {
		t.Fatalf("expected locked floor: %+v", queueEv.Floor)
	}

	member.Commands <- &Command{Kind: CommandRequestSpeak}
	errEv := mustEvent(t, member.Events, EventError)
	if errEv.Error.Code != ErrCodeRoomLocked {
		t.Fatalf("expected room_locked, got %+v", errEv.Error)
	}

	// Owner holds the override capability and requests straight through.
	owner.Commands <- &Command{Kind: CommandRequestSpeak}
	granted := mustEvent(t, member.Events, EventSpeakGranted)
	if granted.User != "omar" {
		t.Fatalf("expected owner granted through lock, got %+v", granted)
	}
}

func TestHubForceRelease(t *testing.T) {
	hub := startHub(t, Options{})

	admin := mustJoin(t, hub, "ad", "amira", perm.RoleAdmin)
	alice := mustJoin(t, hub, "a", "alice", perm.RoleMember)

	alice.Commands <- &Command{Kind: CommandRequestSpeak}
	mustEvent(t, admin.Events, EventSpeakGranted)

	admin.Commands <- &Command{Kind: CommandForceRelease, Target: "alice"}
	released := mustEvent(t, alice.Events, EventSpeakReleased)
	if released.User != "alice" || released.Reason != "amira" {
		t.Fatalf("unexpected release event: %+v", released)
	}

	admin.Commands <- &Command{Kind: CommandForceRelease, Target: "alice"}
	errEv := mustEvent(t, admin.Events, EventError)
	if errEv.Error.Code != ErrCodeNotSpeaking {
		t.Fatalf("expected not_speaking on idle target, got %+v", errEv.Error)
	}
}

func TestHubSetPermissionsBroadcasts(t *testing.T) {
	hub := startHub(t, Options{})

	owner := mustJoin(t, hub, "o", "omar", perm.RoleOwner)
	member := mustJoin(t, hub, "m", "mia", perm.RoleMember)
	mustEvent(t, member.Events, EventSnapshot)

	owner.Commands <- &Command{Kind: CommandSetPermissions, Matrix: perm.Matrix{
		perm.RoleOwner: {perm.ActionEditPermissions},
		perm.RoleMod:   {perm.ActionKick},
	}}

	upd := mustEvent(t, member.Events, EventPermissionsUpdated)
	if !upd.Matrix.Can(perm.RoleMod, perm.ActionKick) || upd.Matrix.Can(perm.RoleMod, perm.ActionMute) {
		t.Fatalf("matrix not replaced wholesale: %+v", upd.Matrix)
	}

	// Members cannot edit permissions.
	member.Commands <- &Command{Kind: CommandSetPermissions, Matrix: perm.Default()}
	errEv := mustEvent(t, member.Events, EventError)
	if errEv.Error.Code != ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", errEv.Error)
	}
}

func TestHubKickRemovesSession(t *testing.T) {
	hub := startHub(t, Options{})

	admin := mustJoin(t, hub, "ad", "amira", perm.RoleAdmin)
	alice := mustJoin(t, hub, "a", "alice", perm.RoleMember)

	admin.Commands <- &Command{Kind: CommandKick, Target: "alice", Reason: "spam"}

	kicked := mustEvent(t, alice.Events, EventKicked)
	if kicked.Reason != "spam" {
		t.Fatalf("unexpected kick event: %+v", kicked)
	}
	select {
	case <-alice.Done:
	case <-time.After(time.Second):
		t.Fatal("kicked client's Done channel must be closed")
	}
	left := mustEvent(t, admin.Events, EventUserLeft)
	if left.User != "alice" {
		t.Fatalf("unexpected leave event: %+v", left)
	}

	// The name frees up immediately.
	mustJoin(t, hub, "a2", "alice", perm.RoleMember)
}

func TestHubBanGatesAdmissionNotPresence(t *testing.T) {
	hub := startHub(t, Options{})

	admin := mustJoin(t, hub, "ad", "amira", perm.RoleAdmin)

	alice := NewClient("a", "alice", perm.RoleMember)
	alice.Addr, alice.DeviceID = "10.0.0.5", "dev-5"
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := hub.Join(ctx, alice); err != nil {
		t.Fatalf("join: %v", err)
	}

	admin.Commands <- &Command{Kind: CommandBan, Target: "alice", Reason: "abuse"}
	banEv := mustEvent(t, admin.Events, EventBanUpdated)
	if banEv.User != "alice" {
		t.Fatalf("unexpected ban event: %+v", banEv)
	}

	// Alice is still connected; the ban only gates admission.
	alice.Commands <- &Command{Kind: CommandSendMessage, Text: "still here"}
	mustEvent(t, admin.Events, EventChatMessage)

	// A reconnect with the same device is refused.
	again := NewClient("a2", "alice2", perm.RoleMember)
	again.Addr, again.DeviceID = "10.9.9.9", "dev-5"
	err := hub.Join(ctx, again)
	var cerr *CoreError
	if !errors.As(err, &cerr) || cerr.Code != ErrCodeBanned {
		t.Fatalf("expected banned on reconnect, got %v", err)
	}

	// Unban frees the identity.
	admin.Commands <- &Command{Kind: CommandUnban, DeviceID: "dev-5"}
	mustEvent(t, admin.Events, EventBanUpdated)
	if err := hub.Join(ctx, again); err != nil {
		t.Fatalf("join after unban: %v", err)
	}
}

func TestHubShareAttachment(t *testing.T) {
	hub := startHub(t, Options{})

	mod := mustJoin(t, hub, "m", "mona", perm.RoleMod)
	member := mustJoin(t, hub, "u", "uri", perm.RoleMember)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := hub.ShareAttachment(ctx, mod.ID, "/uploads/abc.png", "cat.png"); err != nil {
		t.Fatalf("mod upload should pass: %v", err)
	}
	msgEv := mustEvent(t, member.Events, EventChatMessage)
	if msgEv.Message.Attachment != "/uploads/abc.png" || msgEv.Message.From != "mona" {
		t.Fatalf("unexpected attachment message: %+v", msgEv.Message)
	}

	err := hub.ShareAttachment(ctx, member.ID, "/uploads/x.png", "x.png")
	var cerr *CoreError
	if !errors.As(err, &cerr) || cerr.Code != ErrCodeUnauthorized {
		t.Fatalf("member upload must be unauthorized, got %v", err)
	}

	err = hub.ShareAttachment(ctx, "ghost", "/uploads/x.png", "x.png")
	if !errors.As(err, &cerr) || cerr.Code != ErrCodeUnknownUser {
		t.Fatalf("unknown session must be rejected, got %v", err)
	}
}

func TestHubQueries(t *testing.T) {
	hub := startHub(t, Options{})
	mod := mustJoin(t, hub, "m", "mona", perm.RoleMod)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	info, ok := hub.UserInfo(ctx, mod.ID)
	if !ok || info.Name != "mona" || info.Role != perm.RoleMod {
		t.Fatalf("unexpected user info: %+v", info)
	}
	if _, ok := hub.UserInfo(ctx, "ghost"); ok {
		t.Fatal("ghost session must not resolve")
	}

	m, err := hub.Permissions(ctx)
	if err != nil || !m.Can(perm.RoleOwner, perm.ActionBan) {
		t.Fatalf("unexpected matrix: %v %v", m, err)
	}

	if err := hub.UpdatePermissions(ctx, perm.RoleMod, perm.Default()); err == nil {
		t.Fatal("mod must not update permissions over REST")
	}
	if err := hub.UpdatePermissions(ctx, perm.RoleOwner, perm.Matrix{perm.RoleOwner: {perm.ActionEditPermissions}}); err != nil {
		t.Fatalf("owner update failed: %v", err)
	}
	m, _ = hub.Permissions(ctx)
	if m.Can(perm.RoleAdmin, perm.ActionKick) {
		t.Fatal("replace semantics violated via REST path")
	}
}

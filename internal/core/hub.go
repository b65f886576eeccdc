package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/majlischat/majlis-server/internal/perm"
	"github.com/majlischat/majlis-server/internal/store"
)

// Options configures a hub.
type Options struct {
	Room           string
	SpeakTime      time.Duration
	ManualApproval bool
	Matrix         perm.Matrix
	Bans           []store.BanEntry

	// TickInterval drives the speaker countdown; tests shorten it.
	TickInterval time.Duration

	// DemotionVacatesFloor forces a role change to release the mic.
	// Off by default: a demoted speaker keeps the slot until release,
	// expiry, or a force-release.
	DemotionVacatesFloor bool
}

// JoinRequest asks the hub to admit a client. The reply carries nil on
// success or the admission error (banned, name taken).
type JoinRequest struct {
	Client *Client
	Reply  chan *CoreError
}

type envelope struct {
	client *Client
	cmd    *Command
}

// Hub is the room's single event loop. It exclusively owns the session
// store, the floor, the capability matrix, and the in-memory ban list;
// every mutation is serialized through Run, so none of the owned state
// needs locks. Handlers never block: persistence is fired off to
// background goroutines and slow consumers get events dropped.
type Hub struct {
	log   *zerolog.Logger
	store store.Store
	opts  Options

	joins      chan *JoinRequest
	unregister chan *Client
	inbox      chan envelope
	tasks      chan func()

	sessions *Sessions
	floor    *Floor
	matrix   perm.Matrix
	bans     []store.BanEntry

	closeOnce map[string]*sync.Once
}

// NewHub constructs a hub. store may be nil (tests); logging falls back
// to a no-op logger when logger is nil.
func NewHub(st store.Store, logger *zerolog.Logger, opts Options) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if opts.Room == "" {
		opts.Room = "majlis"
	}
	if opts.SpeakTime <= 0 {
		opts.SpeakTime = 120 * time.Second
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	matrix := opts.Matrix
	if matrix == nil {
		matrix = perm.Default()
	}

	return &Hub{
		log:        logger,
		store:      st,
		opts:       opts,
		joins:      make(chan *JoinRequest),
		unregister: make(chan *Client),
		inbox:      make(chan envelope, 64),
		tasks:      make(chan func()),
		sessions:   NewSessions(),
		floor:      NewFloor(int(opts.SpeakTime/time.Second), opts.ManualApproval),
		matrix:     matrix.Clone(),
		bans:       append([]store.BanEntry(nil), opts.Bans...),
		closeOnce:  make(map[string]*sync.Once),
	}
}

// Run processes events until ctx is canceled. Handlers run to
// completion before the next event; nothing here blocks on I/O.
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-h.joins:
			req.Reply <- h.handleJoin(req.Client)
		case c := <-h.unregister:
			h.handleLeave(c)
		case env := <-h.inbox:
			h.handleCommand(env.client, env.cmd)
		case fn := <-h.tasks:
			fn()
		case <-ticker.C:
			h.handleTick()
		}
	}
}

// Join admits a client into the room. On success the hub starts
// forwarding the client's commands into its event loop.
func (h *Hub) Join(ctx context.Context, c *Client) error {
	req := &JoinRequest{Client: c, Reply: make(chan *CoreError, 1)}
	select {
	case h.joins <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case cerr := <-req.Reply:
		if cerr != nil {
			return cerr
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	go h.forward(c)
	return nil
}

// Leave removes a client; safe to call for clients the hub already
// dropped (a kick races the transport teardown).
func (h *Hub) Leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-time.After(5 * time.Second):
		h.log.Warn().Str("client_id", c.ID).Msg("leave timed out")
	}
}

func (h *Hub) forward(c *Client) {
	for {
		select {
		case cmd, ok := <-c.Commands:
			if !ok {
				return
			}
			select {
			case h.inbox <- envelope{client: c, cmd: cmd}:
			case <-c.Done:
				return
			}
		case <-c.Done:
			return
		}
	}
}

// ==== queries (serialized through the event loop) ====

func (h *Hub) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case h.tasks <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UserInfo returns the public view of a session by connection id.
func (h *Hub) UserInfo(ctx context.Context, id string) (UserInfo, bool) {
	var (
		info UserInfo
		ok   bool
	)
	if err := h.do(ctx, func() {
		if c, found := h.sessions.Get(id); found {
			info, ok = h.infoOf(c), true
		}
	}); err != nil {
		return UserInfo{}, false
	}
	return info, ok
}

// Permissions returns a copy of the current capability matrix.
func (h *Hub) Permissions(ctx context.Context) (perm.Matrix, error) {
	var m perm.Matrix
	err := h.do(ctx, func() { m = h.matrix.Clone() })
	return m, err
}

// UpdatePermissions replaces the matrix on behalf of role. Used by the
// admin REST surface; WS clients go through CommandSetPermissions.
func (h *Hub) UpdatePermissions(ctx context.Context, role perm.Role, m perm.Matrix) error {
	var cerr *CoreError
	if err := h.do(ctx, func() {
		if !h.matrix.Can(role, perm.ActionEditPermissions) {
			cerr = coreError(ErrCodeUnauthorized, "not allowed to edit permissions")
			return
		}
		h.replaceMatrix(m)
	}); err != nil {
		return err
	}
	if cerr != nil {
		return cerr
	}
	return nil
}

// Bans returns a copy of the in-memory ban list.
func (h *Hub) Bans(ctx context.Context) ([]store.BanEntry, error) {
	var out []store.BanEntry
	err := h.do(ctx, func() { out = append([]store.BanEntry(nil), h.bans...) })
	return out, err
}

// ShareAttachment authorizes an upload for the session and broadcasts a
// chat message embedding the served file link.
func (h *Hub) ShareAttachment(ctx context.Context, id, url, filename string) error {
	var cerr *CoreError
	if err := h.do(ctx, func() {
		c, found := h.sessions.Get(id)
		if !found {
			cerr = coreError(ErrCodeUnknownUser, "no such session")
			return
		}
		if !h.matrix.Can(c.Role, perm.ActionUpload) {
			cerr = coreError(ErrCodeUnauthorized, "not allowed to upload files")
			return
		}
		h.broadcast(&Event{
			Kind: EventChatMessage,
			Message: &ChatMessage{
				From:       c.Name,
				Avatar:     c.Avatar,
				Text:       fmt.Sprintf("attached %s", filename),
				Color:      c.Settings.Color,
				FontSize:   c.Settings.FontSize,
				Attachment: url,
				SentAt:     time.Now(),
			},
		})
	}); err != nil {
		return err
	}
	if cerr != nil {
		return cerr
	}
	return nil
}

// ==== event-loop handlers ====

func (h *Hub) handleJoin(c *Client) *CoreError {
	for _, b := range h.bans {
		if b.Matches(c.Addr, c.DeviceID) {
			h.log.Info().Str("addr", c.Addr).Str("device_id", c.DeviceID).Msg("banned identity rejected")
			return coreError(ErrCodeBanned, "you are banned from this room")
		}
	}
	if cerr := h.sessions.Create(c); cerr != nil {
		return cerr
	}
	h.closeOnce[c.ID] = &sync.Once{}

	snap := h.snapshot()
	snap.You = c.ID
	h.sendTo(c, &Event{Kind: EventSnapshot, Snapshot: snap})
	info := h.infoOf(c)
	h.broadcast(&Event{Kind: EventUserJoined, User: c.Name, Info: &info})
	h.log.Info().Str("user", c.Name).Str("role", string(c.Role)).Int("online", h.sessions.Len()).Msg("user joined")
	return nil
}

func (h *Hub) handleLeave(c *Client) {
	if h.sessions.Remove(c.ID) == nil {
		return
	}
	h.shutdown(c)

	wasSpeaker, next := h.floor.RemoveUser(c.ID)
	h.broadcast(&Event{Kind: EventUserLeft, User: c.Name})
	if wasSpeaker {
		h.announcePromotion(next)
	}
	h.broadcastFloor()
	h.log.Info().Str("user", c.Name).Bool("held_mic", wasSpeaker).Int("online", h.sessions.Len()).Msg("user left")
}

func (h *Hub) handleTick() {
	expired, next := h.floor.Tick()
	if expired == "" {
		return
	}
	h.broadcast(&Event{Kind: EventSpeakExpired, User: h.name(expired)})
	h.announcePromotion(next)
	h.broadcastFloor()
}

func (h *Hub) handleCommand(c *Client, cmd *Command) {
	if _, active := h.sessions.Get(c.ID); !active {
		return
	}

	switch cmd.Kind {
	case CommandSendMessage:
		h.handleChat(c, cmd)
	case CommandRequestSpeak:
		h.handleRequestSpeak(c)
	case CommandReleaseSpeak:
		h.handleRelease(c)
	case CommandForceRelease:
		h.handleForceRelease(c, cmd)
	case CommandApproveSpeak:
		h.handleApproval(c, cmd, true)
	case CommandRejectSpeak:
		h.handleApproval(c, cmd, false)
	case CommandSetMute:
		h.handleSetMute(c, cmd)
	case CommandKick:
		h.handleKick(c, cmd)
	case CommandBan:
		h.handleBan(c, cmd)
	case CommandUnban:
		h.handleUnban(c, cmd)
	case CommandSetRole:
		h.handleSetRole(c, cmd)
	case CommandGetPermissions:
		h.sendTo(c, &Event{Kind: EventPermissionsUpdated, Matrix: h.matrix.Clone()})
	case CommandSetPermissions:
		h.handleSetPermissions(c, cmd)
	case CommandSetRoomLock:
		h.handleSetRoomLock(c, cmd)
	case CommandSetManualApproval:
		h.handleSetManualApproval(c, cmd)
	case CommandUpdateSettings:
		h.sessions.SetSettings(c.ID, cmd.Settings, cmd.Avatar)
		info := h.infoOf(c)
		h.broadcast(&Event{Kind: EventUserUpdated, User: c.Name, Info: &info})
	default:
		h.sendError(c, coreError(ErrCodeBadRequest, "unknown command"))
	}
}

func (h *Hub) handleChat(c *Client, cmd *Command) {
	if c.Muted {
		h.sendError(c, coreError(ErrCodeUnauthorized, "you are muted"))
		return
	}
	if cmd.Text == "" {
		h.sendError(c, coreError(ErrCodeBadRequest, "message text is required"))
		return
	}
	h.broadcast(&Event{
		Kind: EventChatMessage,
		Message: &ChatMessage{
			From:     c.Name,
			Avatar:   c.Avatar,
			Text:     cmd.Text,
			Color:    c.Settings.Color,
			FontSize: c.Settings.FontSize,
			SentAt:   time.Now(),
		},
	})
}

func (h *Hub) handleRequestSpeak(c *Client) {
	override := h.matrix.Can(c.Role, perm.ActionOverrideLock)
	outcome, cerr := h.floor.RequestSpeak(c.ID, override)
	if cerr != nil {
		h.sendError(c, cerr)
		return
	}
	switch outcome {
	case OutcomeGranted:
		h.announcePromotion(c.ID)
	case OutcomePending:
		h.notifyApprovers(&Event{Kind: EventApprovalPending, User: c.Name})
	}
	h.broadcastFloor()
}

func (h *Hub) handleRelease(c *Client) {
	next, ok := h.floor.Release(c.ID)
	if !ok {
		h.sendError(c, coreError(ErrCodeNotSpeaking, "you do not hold the mic"))
		return
	}
	h.broadcast(&Event{Kind: EventSpeakReleased, User: c.Name})
	h.announcePromotion(next)
	h.broadcastFloor()
}

func (h *Hub) handleForceRelease(c *Client, cmd *Command) {
	if !h.authorize(c, perm.ActionForceRelease) {
		return
	}
	target, ok := h.sessions.GetByName(cmd.Target)
	if !ok {
		h.sendError(c, coreError(ErrCodeUnknownUser, "no such user"))
		return
	}
	next, ok := h.floor.Release(target.ID)
	if !ok {
		h.sendError(c, coreError(ErrCodeNotSpeaking, "target does not hold the mic"))
		return
	}
	h.broadcast(&Event{Kind: EventSpeakReleased, User: target.Name, Reason: c.Name})
	h.announcePromotion(next)
	h.broadcastFloor()
	h.log.Info().Str("by", c.Name).Str("target", target.Name).Msg("mic force-released")
}

func (h *Hub) handleApproval(c *Client, cmd *Command, approve bool) {
	if !h.authorize(c, perm.ActionApproveSpeak) {
		return
	}
	target, ok := h.sessions.GetByName(cmd.Target)
	if !ok {
		h.sendError(c, coreError(ErrCodeUnknownUser, "no such user"))
		return
	}
	if approve {
		granted, found := h.floor.Approve(target.ID)
		if !found {
			h.sendError(c, coreError(ErrCodeNotSpeaking, "no pending request for that user"))
			return
		}
		if granted {
			h.announcePromotion(target.ID)
		}
	} else {
		if !h.floor.Reject(target.ID) {
			h.sendError(c, coreError(ErrCodeNotSpeaking, "no pending request for that user"))
			return
		}
	}
	h.broadcastFloor()
}

func (h *Hub) handleSetMute(c *Client, cmd *Command) {
	if !h.authorize(c, perm.ActionMute) {
		return
	}
	target, ok := h.sessions.GetByName(cmd.Target)
	if !ok {
		h.sendError(c, coreError(ErrCodeUnknownUser, "no such user"))
		return
	}
	h.sessions.SetMute(target.ID, cmd.Flag)
	info := h.infoOf(target)
	h.broadcast(&Event{Kind: EventUserUpdated, User: target.Name, Info: &info})
}

func (h *Hub) handleKick(c *Client, cmd *Command) {
	if !h.authorize(c, perm.ActionKick) {
		return
	}
	target, ok := h.sessions.GetByName(cmd.Target)
	if !ok {
		h.sendError(c, coreError(ErrCodeUnknownUser, "no such user"))
		return
	}
	h.sendTo(target, &Event{Kind: EventKicked, User: target.Name, Reason: cmd.Reason})
	h.handleLeave(target)
	h.log.Info().Str("by", c.Name).Str("target", target.Name).Str("reason", cmd.Reason).Msg("user kicked")
}

func (h *Hub) handleBan(c *Client, cmd *Command) {
	if !h.authorize(c, perm.ActionBan) {
		return
	}
	target, ok := h.sessions.GetByName(cmd.Target)
	if !ok {
		h.sendError(c, coreError(ErrCodeUnknownUser, "no such user"))
		return
	}

	entry := store.BanEntry{
		Addr:      target.Addr,
		DeviceID:  target.DeviceID,
		Reason:    cmd.Reason,
		BannedBy:  c.Name,
		CreatedAt: time.Now(),
	}
	h.bans = append(h.bans, entry)
	h.persist("add ban", func(ctx context.Context) error {
		_, err := h.store.AddBan(ctx, entry)
		return err
	})
	// Bans gate admission, not presence: the target stays connected
	// until someone pairs the ban with a kick.
	h.broadcast(&Event{Kind: EventBanUpdated, User: target.Name})
	h.log.Info().Str("by", c.Name).Str("target", target.Name).Msg("user banned")
}

func (h *Hub) handleUnban(c *Client, cmd *Command) {
	if !h.authorize(c, perm.ActionUnban) {
		return
	}
	if cmd.Addr == "" && cmd.DeviceID == "" {
		h.sendError(c, coreError(ErrCodeBadRequest, "an address or device id is required"))
		return
	}

	kept := h.bans[:0]
	removed := 0
	for _, b := range h.bans {
		if b.Matches(cmd.Addr, cmd.DeviceID) {
			removed++
			continue
		}
		kept = append(kept, b)
	}
	h.bans = kept
	if removed == 0 {
		h.sendError(c, coreError(ErrCodeBadRequest, "no matching ban entry"))
		return
	}
	h.persist("remove ban", func(ctx context.Context) error {
		_, err := h.store.RemoveBan(ctx, cmd.Addr, cmd.DeviceID)
		return err
	})
	h.broadcast(&Event{Kind: EventBanUpdated})
	h.log.Info().Str("by", c.Name).Int("removed", removed).Msg("ban lifted")
}

func (h *Hub) handleSetRole(c *Client, cmd *Command) {
	if !h.authorize(c, perm.ActionSetRole) {
		return
	}
	if !perm.KnownRole(cmd.Role) {
		h.sendError(c, coreError(ErrCodeBadRequest, "unknown role"))
		return
	}
	target, ok := h.sessions.GetByName(cmd.Target)
	if !ok {
		h.sendError(c, coreError(ErrCodeUnknownUser, "no such user"))
		return
	}
	h.sessions.SetRole(target.ID, cmd.Role)

	if h.opts.DemotionVacatesFloor && h.floor.Speaker() == target.ID {
		next, _ := h.floor.Release(target.ID)
		h.broadcast(&Event{Kind: EventSpeakReleased, User: target.Name, Reason: c.Name})
		h.announcePromotion(next)
		h.broadcastFloor()
	}

	info := h.infoOf(target)
	h.broadcast(&Event{Kind: EventUserUpdated, User: target.Name, Info: &info})
	h.log.Info().Str("by", c.Name).Str("target", target.Name).Str("role", string(cmd.Role)).Msg("role changed")
}

func (h *Hub) handleSetPermissions(c *Client, cmd *Command) {
	if !h.authorize(c, perm.ActionEditPermissions) {
		return
	}
	if cmd.Matrix == nil {
		h.sendError(c, coreError(ErrCodeBadRequest, "a permission matrix is required"))
		return
	}
	h.replaceMatrix(cmd.Matrix)
	h.log.Info().Str("by", c.Name).Msg("permission matrix replaced")
}

func (h *Hub) handleSetRoomLock(c *Client, cmd *Command) {
	if !h.authorize(c, perm.ActionLockRoom) {
		return
	}
	h.floor.SetLocked(cmd.Flag)
	h.broadcastFloor()
	h.log.Info().Str("by", c.Name).Bool("locked", cmd.Flag).Msg("room lock toggled")
}

func (h *Hub) handleSetManualApproval(c *Client, cmd *Command) {
	if !h.authorize(c, perm.ActionApproveSpeak) {
		return
	}
	h.floor.SetManualApproval(cmd.Flag)
	h.broadcastFloor()
	h.log.Info().Str("by", c.Name).Bool("enabled", cmd.Flag).Msg("manual approval toggled")
}

// ==== helpers ====

// replaceMatrix swaps the matrix wholesale, persists it off the loop,
// and notifies every session. Last writer wins.
func (h *Hub) replaceMatrix(m perm.Matrix) {
	h.matrix = m.Clone()
	snapshot := h.matrix.Clone()
	h.persist("save permissions", func(ctx context.Context) error {
		return h.store.SavePermissions(ctx, snapshot)
	})
	h.broadcast(&Event{Kind: EventPermissionsUpdated, Matrix: snapshot})
}

func (h *Hub) authorize(c *Client, action perm.Action) bool {
	if h.matrix.Can(c.Role, action) {
		return true
	}
	h.sendError(c, coreError(ErrCodeUnauthorized, fmt.Sprintf("%s requires the %q capability", c.Role, action)))
	return false
}

func (h *Hub) announcePromotion(id string) {
	if id == "" {
		return
	}
	state := h.floorState()
	h.broadcast(&Event{Kind: EventSpeakGranted, User: h.name(id), Floor: &state})
}

func (h *Hub) notifyApprovers(ev *Event) {
	for _, c := range h.sessions.All() {
		if h.matrix.Can(c.Role, perm.ActionApproveSpeak) {
			h.sendTo(c, ev)
		}
	}
}

func (h *Hub) broadcastFloor() {
	state := h.floorState()
	h.broadcast(&Event{Kind: EventQueueUpdated, Floor: &state})
}

// floorState resolves queue ids to display names for the wire.
func (h *Hub) floorState() FloorState {
	st := h.floor.State()
	st.Speaker = h.name(st.Speaker)
	for i, id := range st.Queue {
		st.Queue[i] = h.name(id)
	}
	for i, id := range st.Pending {
		st.Pending[i] = h.name(id)
	}
	return st
}

func (h *Hub) snapshot() *Snapshot {
	clients := h.sessions.All()
	users := make([]UserInfo, 0, len(clients))
	for _, c := range clients {
		users = append(users, h.infoOf(c))
	}
	return &Snapshot{
		Room:   h.opts.Room,
		Users:  users,
		Floor:  h.floorState(),
		Matrix: h.matrix.Clone(),
	}
}

func (h *Hub) infoOf(c *Client) UserInfo {
	return UserInfo{Name: c.Name, Role: c.Role, Muted: c.Muted, Avatar: c.Avatar}
}

func (h *Hub) name(id string) string {
	if id == "" {
		return ""
	}
	if c, ok := h.sessions.Get(id); ok {
		return c.Name
	}
	return id
}

func (h *Hub) broadcast(ev *Event) {
	for _, c := range h.sessions.All() {
		h.sendTo(c, ev)
	}
}

func (h *Hub) sendTo(c *Client, ev *Event) {
	select {
	case c.Events <- ev:
	default:
		// Drop if slow consumer.
	}
}

func (h *Hub) sendError(c *Client, cerr *CoreError) {
	h.sendTo(c, &Event{Kind: EventError, Error: cerr})
}

func (h *Hub) shutdown(c *Client) {
	once, ok := h.closeOnce[c.ID]
	if !ok {
		return
	}
	delete(h.closeOnce, c.ID)
	once.Do(func() { close(c.Done) })
}

// persist runs a best-effort storage write off the event loop. Failures
// are logged and swallowed; in-memory state stays the source of truth.
func (h *Hub) persist(what string, fn func(context.Context) error) {
	if h.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := fn(ctx); err != nil {
			h.log.Warn().Err(err).Str("op", what).Msg("persistence write failed")
		}
	}()
}

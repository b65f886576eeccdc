package core

// RequestOutcome describes where a speak request ended up.
type RequestOutcome int

const (
	// OutcomeGranted means the requester holds the mic now.
	OutcomeGranted RequestOutcome = iota
	// OutcomeQueued means the requester waits in the FIFO queue.
	OutcomeQueued
	// OutcomePending means the request awaits admin approval.
	OutcomePending
	// OutcomeSpeaking means the requester already holds the mic.
	OutcomeSpeaking
)

// Floor is the speaking-slot state machine: at most one active speaker
// with a running countdown, a strict-FIFO wait queue, and a separate
// pending queue used when manual-approval mode is on.
//
// The floor holds client ids, not names, so a disconnect can always be
// purged without a name lookup. It runs no goroutines and takes no
// locks; the hub serializes every call.
type Floor struct {
	speakTime int // countdown granted to each new speaker, in seconds

	speaker   string
	remaining int
	queue     []string
	pending   []string
	locked    bool
	manual    bool
}

// NewFloor constructs an idle floor. speakTime is the per-speaker
// countdown in seconds.
func NewFloor(speakTime int, manualApproval bool) *Floor {
	if speakTime <= 0 {
		speakTime = 120
	}
	return &Floor{speakTime: speakTime, manual: manualApproval}
}

// Speaker returns the id of the current speaker, or "" when idle.
func (f *Floor) Speaker() string { return f.speaker }

// Remaining returns the seconds left on the current speaker's countdown.
func (f *Floor) Remaining() int { return f.remaining }

// Locked reports whether new speak requests are rejected.
func (f *Floor) Locked() bool { return f.locked }

// SetLocked toggles the room lock. Queued and pending requests are kept;
// the lock only gates new requests.
func (f *Floor) SetLocked(locked bool) { f.locked = locked }

// ManualApproval reports whether requests require admin sign-off.
func (f *Floor) ManualApproval() bool { return f.manual }

// SetManualApproval toggles manual-approval mode. Already-queued users
// keep their place; only new requests are routed to the pending queue.
func (f *Floor) SetManualApproval(enabled bool) { f.manual = enabled }

// RequestSpeak handles a mic request from id. overrideLock lets
// privileged roles request through a locked room. Duplicate requests
// are idempotent: the caller's current position is reported, never an
// error and never a second queue entry.
func (f *Floor) RequestSpeak(id string, overrideLock bool) (RequestOutcome, *CoreError) {
	if f.speaker == id {
		return OutcomeSpeaking, nil
	}
	if f.locked && !overrideLock {
		return 0, coreError(ErrCodeRoomLocked, "the room is locked")
	}
	if f.manual {
		if !contains(f.pending, id) {
			f.pending = append(f.pending, id)
		}
		return OutcomePending, nil
	}
	if !contains(f.queue, id) {
		f.queue = append(f.queue, id)
	}
	if f.speaker == "" {
		f.promote()
		if f.speaker == id {
			return OutcomeGranted, nil
		}
	}
	return OutcomeQueued, nil
}

// Approve moves a pending request into the wait queue. granted reports
// whether the approval immediately promoted the user to the mic; ok is
// false when id had no pending request.
func (f *Floor) Approve(id string) (granted, ok bool) {
	if !remove(&f.pending, id) {
		return false, false
	}
	if !contains(f.queue, id) && f.speaker != id {
		f.queue = append(f.queue, id)
	}
	if f.speaker == "" {
		f.promote()
	}
	return f.speaker == id, true
}

// Reject discards a pending request. Returns false when id had none.
func (f *Floor) Reject(id string) bool {
	return remove(&f.pending, id)
}

// Release hands the mic back. Only the current speaker may release;
// anything else reports ok=false and changes nothing. next is the id
// promoted from the queue head, or "" when the room went idle.
func (f *Floor) Release(id string) (next string, ok bool) {
	if f.speaker != id || id == "" {
		return "", false
	}
	f.speaker = ""
	f.remaining = 0
	f.promote()
	return f.speaker, true
}

// Tick advances the countdown by one second. When it reaches zero the
// transition is exactly a release; only the trigger differs, which the
// hub reports as an expiry for auditing. Returns the expired speaker
// and the newly promoted one, both "" when nothing happened.
func (f *Floor) Tick() (expired, next string) {
	if f.speaker == "" {
		return "", ""
	}
	f.remaining--
	if f.remaining > 0 {
		return "", ""
	}
	expired = f.speaker
	f.speaker = ""
	f.remaining = 0
	f.promote()
	return expired, f.speaker
}

// RemoveUser purges id from every structure on disconnect. If id held
// the mic the queue head is promoted in the same step, so the floor
// never points at a departed user. next is only meaningful when
// wasSpeaker is true.
func (f *Floor) RemoveUser(id string) (wasSpeaker bool, next string) {
	remove(&f.queue, id)
	remove(&f.pending, id)
	if f.speaker != id || id == "" {
		return false, ""
	}
	f.speaker = ""
	f.remaining = 0
	f.promote()
	return true, f.speaker
}

// State returns a copy of the floor with ids still unresolved; the hub
// maps them to display names before broadcasting.
func (f *Floor) State() FloorState {
	return FloorState{
		Speaker:        f.speaker,
		Remaining:      f.remaining,
		Queue:          append([]string(nil), f.queue...),
		Pending:        append([]string(nil), f.pending...),
		Locked:         f.locked,
		ManualApproval: f.manual,
	}
}

// promote moves the queue head to the mic and restarts the countdown in
// full; unused time never carries over. An empty queue leaves the floor
// idle.
func (f *Floor) promote() {
	if f.speaker != "" || len(f.queue) == 0 {
		return
	}
	f.speaker = f.queue[0]
	f.queue = f.queue[1:]
	f.remaining = f.speakTime
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func remove(ids *[]string, id string) bool {
	for i, v := range *ids {
		if v == id {
			*ids = append((*ids)[:i], (*ids)[i+1:]...)
			return true
		}
	}
	return false
}

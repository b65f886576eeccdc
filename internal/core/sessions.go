package core

import (
	"sort"
	"strings"

	"github.com/majlischat/majlis-server/internal/perm"
)

// reservedNames can never be claimed as display names.
var reservedNames = map[string]struct{}{
	"system": {},
	"server": {},
	"admin":  {},
}

// Sessions is the in-memory store of active connections, indexed by
// connection id and by display name. It performs no authorization;
// callers consult the permission matrix before mutating anything.
// The hub goroutine is the only accessor, so no locking happens here.
type Sessions struct {
	byID   map[string]*Client
	byName map[string]*Client
}

// NewSessions constructs an empty session store.
func NewSessions() *Sessions {
	return &Sessions{
		byID:   make(map[string]*Client),
		byName: make(map[string]*Client),
	}
}

// IsNameTaken reports whether an active session already uses the exact
// display name.
func (s *Sessions) IsNameTaken(name string) bool {
	_, taken := s.byName[name]
	return taken
}

// Create registers a new session. It fails when the name is empty,
// reserved, or already held by an active session.
func (s *Sessions) Create(c *Client) *CoreError {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return coreError(ErrCodeBadRequest, "display name is required")
	}
	if _, reserved := reservedNames[strings.ToLower(name)]; reserved {
		return coreError(ErrCodeNameTaken, "that name is reserved")
	}
	if s.IsNameTaken(name) {
		return coreError(ErrCodeNameTaken, "that name is already in use")
	}
	c.Name = name
	s.byID[c.ID] = c
	s.byName[name] = c
	return nil
}

// Remove destroys a session and returns it, or nil if unknown.
func (s *Sessions) Remove(id string) *Client {
	c, ok := s.byID[id]
	if !ok {
		return nil
	}
	delete(s.byID, id)
	delete(s.byName, c.Name)
	return c
}

// Get returns the session for a connection id.
func (s *Sessions) Get(id string) (*Client, bool) {
	c, ok := s.byID[id]
	return c, ok
}

// GetByName returns the session holding a display name.
func (s *Sessions) GetByName(name string) (*Client, bool) {
	c, ok := s.byName[name]
	return c, ok
}

// SetRole changes a session's role.
func (s *Sessions) SetRole(id string, role perm.Role) bool {
	c, ok := s.byID[id]
	if !ok {
		return false
	}
	c.Role = role
	return true
}

// SetMute changes a session's mute flag.
func (s *Sessions) SetMute(id string, muted bool) bool {
	c, ok := s.byID[id]
	if !ok {
		return false
	}
	c.Muted = muted
	return true
}

// SetSettings changes a session's display settings and avatar.
func (s *Sessions) SetSettings(id string, settings *Settings, avatar string) bool {
	c, ok := s.byID[id]
	if !ok {
		return false
	}
	if settings != nil {
		if settings.Color != "" {
			c.Settings.Color = settings.Color
		}
		if settings.FontSize != "" {
			c.Settings.FontSize = settings.FontSize
		}
	}
	if avatar != "" {
		c.Avatar = avatar
	}
	return true
}

// Len returns the number of active sessions.
func (s *Sessions) Len() int {
	return len(s.byID)
}

// All returns every active session, ordered by display name for stable
// snapshots.
func (s *Sessions) All() []*Client {
	out := make([]*Client, 0, len(s.byID))
	for _, c := range s.byID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

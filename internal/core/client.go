package core

import "github.com/majlischat/majlis-server/internal/perm"

// Settings are per-user display preferences echoed on chat messages.
type Settings struct {
	Color    string
	FontSize string
}

// DefaultSettings returns the display defaults applied to new sessions.
func DefaultSettings() Settings {
	return Settings{Color: "#fff", FontSize: "18px"}
}

// Client is a connected chat participant as seen by the core layer.
// The hub goroutine owns every field except the channels; transport
// code only reads the identity fields it set before Join.
type Client struct {
	ID       string
	Name     string
	Role     perm.Role
	Muted    bool
	Avatar   string
	Settings Settings

	// Connection identity, checked against the ban registry at admission.
	Addr     string
	DeviceID string

	Commands chan *Command
	Events   chan *Event

	// Done is closed by the hub when the client is kicked; transport
	// loops watch it and tear the connection down.
	Done chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id, name string, role perm.Role) *Client {
	if name == "" {
		name = id
	}
	return &Client{
		ID:       id,
		Name:     name,
		Role:     role,
		Settings: DefaultSettings(),
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 16),
		Done:     make(chan struct{}),
	}
}

package core

import (
	"testing"

	"github.com/majlischat/majlis-server/internal/perm"
)

func TestSessionsNameUniqueness(t *testing.T) {
	s := NewSessions()

	first := NewClient("c1", "alice", perm.RoleMember)
	if cerr := s.Create(first); cerr != nil {
		t.Fatalf("first create failed: %v", cerr)
	}

	// Second join with the identical name is rejected; the first
	// session is unaffected.
	second := NewClient("c2", "alice", perm.RoleMember)
	cerr := s.Create(second)
	if cerr == nil || cerr.Code != ErrCodeNameTaken {
		t.Fatalf("expected name_taken, got %v", cerr)
	}
	if got, ok := s.GetByName("alice"); !ok || got.ID != "c1" {
		t.Fatalf("first session disturbed: %+v", got)
	}

	s.Remove("c1")
	if cerr := s.Create(second); cerr != nil {
		t.Fatalf("name should be free after removal: %v", cerr)
	}
}

func TestSessionsRejectsReservedAndEmptyNames(t *testing.T) {
	s := NewSessions()

	if cerr := s.Create(NewClient("c1", "  ", perm.RoleMember)); cerr == nil || cerr.Code != ErrCodeBadRequest {
		t.Fatalf("expected bad_request for blank name, got %v", cerr)
	}
	for _, name := range []string{"system", "Server", "ADMIN"} {
		if cerr := s.Create(NewClient("c1", name, perm.RoleMember)); cerr == nil || cerr.Code != ErrCodeNameTaken {
			t.Fatalf("expected reserved rejection for %q, got %v", name, cerr)
		}
	}
}

func TestSessionsMutators(t *testing.T) {
	s := NewSessions()
	c := NewClient("c1", "alice", perm.RoleMember)
	if cerr := s.Create(c); cerr != nil {
		t.Fatalf("create failed: %v", cerr)
	}

	if !s.SetRole("c1", perm.RoleMod) || c.Role != perm.RoleMod {
		t.Fatalf("SetRole failed: %+v", c)
	}
	if !s.SetMute("c1", true) || !c.Muted {
		t.Fatalf("SetMute failed: %+v", c)
	}
	if !s.SetSettings("c1", &Settings{Color: "#f00"}, "🦊") {
		t.Fatal("SetSettings failed")
	}
	if c.Settings.Color != "#f00" || c.Settings.FontSize != "18px" || c.Avatar != "🦊" {
		t.Fatalf("partial settings update wrong: %+v", c)
	}

	if s.SetRole("ghost", perm.RoleMod) || s.SetMute("ghost", true) {
		t.Fatal("mutators must report unknown sessions")
	}
}

func TestSessionsAllOrdered(t *testing.T) {
	s := NewSessions()
	for _, name := range []string{"zoe", "alice", "mia"} {
		if cerr := s.Create(NewClient("id-"+name, name, perm.RoleMember)); cerr != nil {
			t.Fatalf("create %s: %v", name, cerr)
		}
	}

	all := s.All()
	if len(all) != 3 || all[0].Name != "alice" || all[1].Name != "mia" || all[2].Name != "zoe" {
		names := make([]string, len(all))
		for i, c := range all {
			names[i] = c.Name
		}
		t.Fatalf("unexpected order: %v", names)
	}
	if s.Len() != 3 {
		t.Fatalf("unexpected len: %d", s.Len())
	}
}

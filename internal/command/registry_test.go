package command

import (
	"context"
	"testing"

	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/transport"
)

func noop(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error {
	return nil
}

func TestRegisterAndLookup(t *testing.T) {
	r := NewRegistry()

	err := r.Register(&Descriptor{Aliases: []string{"Ping", "p"}, Category: "general", Run: noop})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, alias := range []string{"ping", "PING", "p"} {
		if _, found := r.Lookup(alias); !found {
			t.Errorf("expected lookup %q to succeed", alias)
		}
	}
	if _, found := r.Lookup("pong"); found {
		t.Error("expected lookup of unregistered alias to fail")
	}
	if r.Len() != 1 {
		t.Errorf("expected one descriptor, got %d", r.Len())
	}
}

func TestRegisterRejectsDuplicateAlias(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&Descriptor{Aliases: []string{"ping"}, Run: noop}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(&Descriptor{Aliases: []string{"ping"}, Run: noop}); err == nil {
		t.Error("expected duplicate alias to be rejected")
	}
}

func TestRegisterRejectsInvalidDescriptors(t *testing.T) {
	r := NewRegistry()

	if err := r.Register(&Descriptor{Run: noop}); err == nil {
		t.Error("expected descriptor without aliases to be rejected")
	}
	if err := r.Register(&Descriptor{Aliases: []string{"x"}}); err == nil {
		t.Error("expected descriptor without handler to be rejected")
	}
	if err := r.Register(&Descriptor{Aliases: []string{" "}, Run: noop}); err == nil {
		t.Error("expected blank alias to be rejected")
	}
}

func TestAllSortsByCategoryThenAlias(t *testing.T) {
	r := NewRegistry()

	for _, d := range []*Descriptor{
		{Aliases: []string{"zeta"}, Category: "utility", Run: noop},
		{Aliases: []string{"alpha"}, Category: "utility", Run: noop},
		{Aliases: []string{"menu"}, Category: "general", Run: noop},
	} {
		if err := r.Register(d); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	all := r.All()
	got := []string{all[0].Aliases[0], all[1].Aliases[0], all[2].Aliases[0]}
	want := []string{"menu", "alpha", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestSudoList(t *testing.T) {
	var empty SudoList
	if empty.Contains("anyone") {
		t.Error("empty list must not contain anyone")
	}
	if _, ok := empty.First(); ok {
		t.Error("empty list has no first entry")
	}

	list := SudoList{"operator", "backup"}
	if !list.Contains("operator") || !list.Contains("backup") {
		t.Error("expected listed identifiers to match")
	}
	if list.Contains("stranger") {
		t.Error("unexpected match for unlisted identifier")
	}
	first, ok := list.First()
	if !ok || first != "operator" {
		t.Errorf("expected first entry operator, got %q", first)
	}
}

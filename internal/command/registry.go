package command

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mvalkon/chatwarden/internal/event"
	"github.com/mvalkon/chatwarden/internal/transport"
)

// Handler executes one command invocation. args is the event text with the
// marker and alias stripped.
type Handler func(ctx context.Context, conn transport.Conn, ev *event.Event, args string) error

// Descriptor declares a command: its alias tokens, category and visibility
// constraints. Descriptors are registered once at startup and immutable
// afterwards.
type Descriptor struct {
	Aliases     []string
	Category    string
	Description string
	SudoOnly    bool
	GroupOnly   bool
	DirectOnly  bool
	Run         Handler
}

// Registry looks commands up by exact alias match.
type Registry struct {
	byAlias map[string]*Descriptor
	all     []*Descriptor
}

func NewRegistry() *Registry {
	return &Registry{byAlias: make(map[string]*Descriptor)}
}

func (r *Registry) Register(d *Descriptor) error {
	if len(d.Aliases) == 0 {
		return fmt.Errorf("command has no aliases")
	}
	if d.Run == nil {
		return fmt.Errorf("command %q has no handler", d.Aliases[0])
	}
	for _, alias := range d.Aliases {
		alias = strings.ToLower(strings.TrimSpace(alias))
		if alias == "" {
			return fmt.Errorf("command %q has an empty alias", d.Aliases[0])
		}
		if _, taken := r.byAlias[alias]; taken {
			return fmt.Errorf("duplicate command alias %q", alias)
		}
		r.byAlias[alias] = d
	}
	r.all = append(r.all, d)
	return nil
}

func (r *Registry) Lookup(alias string) (*Descriptor, bool) {
	d, ok := r.byAlias[strings.ToLower(alias)]
	return d, ok
}

// All returns every registered descriptor, sorted by category then first
// alias, for menu rendering.
func (r *Registry) All() []*Descriptor {
	out := append([]*Descriptor(nil), r.all...)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Aliases[0] < out[j].Aliases[0]
	})
	return out
}

func (r *Registry) Len() int { return len(r.all) }

// SudoList is the set of privileged sender identifiers.
type SudoList []string

func (s SudoList) Contains(senderID string) bool {
	for _, id := range s {
		if id == senderID {
			return true
		}
	}
	return false
}

// First returns the first configured privileged identifier, the destination
// for privately forwarded notices.
func (s SudoList) First() (string, bool) {
	if len(s) == 0 {
		return "", false
	}
	return s[0], true
}

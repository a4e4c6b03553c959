// Package identifier models per-channel external identifier shapes.
// Channels that expose two identifier forms for the same contact (an
// alternate privacy form and a canonical addressable form) implement a
// Scheme that classifies raw identifiers; conversation resolution uses
// the classification to decide whether a mapping lookup is worth doing.
package identifier

import (
	"fmt"
	"strings"
	"sync"
)

// Scheme describes how one channel shapes its external identifiers.
type Scheme interface {
	// Channel returns the channel type this scheme applies to.
	Channel() string
	// HasAlternateForm reports whether the channel has a second
	// identifier form that can denote the same contact.
	HasAlternateForm() bool
	// IsAlternate reports whether id is in the alternate form.
	IsAlternate(id string) bool
	// IsCanonical reports whether id is in the canonical form.
	IsCanonical(id string) bool
}

// Registry holds schemes keyed by channel type. Channels without a
// registered scheme are treated as having no alternate form.
type Registry struct {
	mu      sync.RWMutex
	schemes map[string]Scheme
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{schemes: map[string]Scheme{}}
}

// Register adds a scheme to the registry.
func (r *Registry) Register(s Scheme) error {
	if s == nil {
		return fmt.Errorf("scheme is nil")
	}
	ch := normalizeChannel(s.Channel())
	if ch == "" {
		return fmt.Errorf("channel type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.schemes[ch]; exists {
		return fmt.Errorf("scheme already registered for channel: %s", ch)
	}
	r.schemes[ch] = s
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(s Scheme) {
	if err := r.Register(s); err != nil {
		panic(err)
	}
}

// Get returns the scheme for the given channel type.
func (r *Registry) Get(channel string) (Scheme, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemes[normalizeChannel(channel)]
	return s, ok
}

// HasAlternateForm reports whether the channel's scheme (if any)
// defines an alternate identifier form.
func (r *Registry) HasAlternateForm(channel string) bool {
	s, ok := r.Get(channel)
	return ok && s.HasAlternateForm()
}

// Default builds a registry with the schemes for all built-in channels.
func Default() *Registry {
	r := NewRegistry()
	r.MustRegister(WhatsApp{})
	r.MustRegister(Plain{ChannelType: "telegram"})
	r.MustRegister(Plain{ChannelType: "discord"})
	return r
}

// Plain is the scheme for channels whose external identifiers have a
// single form. Classification always reports canonical.
type Plain struct {
	ChannelType string
}

func (p Plain) Channel() string         { return p.ChannelType }
func (p Plain) HasAlternateForm() bool  { return false }
func (p Plain) IsAlternate(string) bool { return false }
func (p Plain) IsCanonical(string) bool { return true }

func normalizeChannel(raw string) string {
	return strings.TrimSpace(strings.ToLower(raw))
}

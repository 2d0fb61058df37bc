package calls

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrCallNotFound    = errors.New("calls: call not found")
	ErrCallExists      = errors.New("calls: call already registered")
	ErrInvalidCall     = errors.New("calls: call id is required")
	ErrAlreadyAttached = errors.New("calls: conversation already attached")
)

// Registry maps call identifiers to live calls. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	calls   map[string]*Call
	aliases map[string]string
	clock   func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		calls:   make(map[string]*Call),
		aliases: make(map[string]string),
		clock:   time.Now,
	}
}

// Register adds a call. A provider call id, when present, becomes a lookup alias.
func (r *Registry) Register(meta Metadata) (*Call, error) {
	if meta.CallID == "" {
		return nil, ErrInvalidCall
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.calls[meta.CallID]; ok {
		return nil, ErrCallExists
	}
	c := &Call{Metadata: meta, StartedAt: r.clock().UTC(), status: CallStatusInitiated}
	r.calls[meta.CallID] = c
	if meta.ProviderCallID != "" && meta.ProviderCallID != meta.CallID {
		r.aliases[meta.ProviderCallID] = meta.CallID
	}
	return c, nil
}

// Alias makes providerID resolve to callID, e.g. once the provider has returned its uuid.
func (r *Registry) Alias(providerID, callID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.calls[callID]
	if !ok {
		return ErrCallNotFound
	}
	if providerID == "" || providerID == callID {
		return nil
	}
	r.aliases[providerID] = callID
	c.mu.Lock()
	c.ProviderCallID = providerID
	c.mu.Unlock()
	return nil
}

// Lookup resolves a call id or provider alias.
func (r *Registry) Lookup(id string) (*Call, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lookupLocked(id)
}

func (r *Registry) lookupLocked(id string) (*Call, bool) {
	if c, ok := r.calls[id]; ok {
		return c, true
	}
	if real, ok := r.aliases[id]; ok {
		c, ok := r.calls[real]
		return c, ok
	}
	return nil, false
}

// Remove deletes a call and its alias and returns it.
func (r *Registry) Remove(id string) (*Call, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.lookupLocked(id)
	if !ok {
		return nil, false
	}
	delete(r.calls, c.CallID)
	for alias, target := range r.aliases {
		if target == c.CallID {
			delete(r.aliases, alias)
		}
	}
	return c, true
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.calls)
}

// Active counts the calls with a conversation currently attached.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, c := range r.calls {
		if c.Conversation() != nil {
			n++
		}
	}
	return n
}

// List returns the live calls, oldest first.
func (r *Registry) List() []*Call {
	r.mu.RLock()
	out := make([]*Call, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Snapshot returns the management view of a call.
func (r *Registry) Snapshot(id string) (Status, error) {
	c, ok := r.Lookup(id)
	if !ok {
		return Status{}, ErrCallNotFound
	}
	return c.Snapshot(r.clock()), nil
}

// Attach hands the call its conversation. A call owns at most one.
func (c *Call) Attach(conv Conversation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conv != nil {
		return ErrAlreadyAttached
	}
	c.conv = conv
	c.attached = true
	c.status = CallStatusActive
	return nil
}

// Detach releases the conversation and keeps its transcript as notes.
func (c *Call) Detach() Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv := c.conv
	if conv != nil {
		c.notes = append(conv.Transcript(), c.notes...)
	}
	c.conv = nil
	return conv
}

func (c *Call) Conversation() Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conv
}

func (c *Call) SetStatus(s CallStatus) {
	c.mu.Lock()
	c.status = s
	c.mu.Unlock()
}

func (c *Call) Status() CallStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// AppendNote adds a non-conversation transcript line, such as a recording link.
func (c *Call) AppendNote(line string) {
	c.mu.Lock()
	c.notes = append(c.notes, line)
	c.mu.Unlock()
}

// Transcript is the conversation transcript followed by notes.
func (c *Call) Transcript() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	if c.conv != nil {
		out = c.conv.Transcript()
	}
	return append(out, c.notes...)
}

// End ends the attached conversation, if any.
func (c *Call) End(ctx context.Context) error {
	conv := c.Conversation()
	if conv == nil {
		return nil
	}
	return conv.End(ctx)
}

func (c *Call) Snapshot(now time.Time) Status {
	c.mu.Lock()
	state := "pending"
	switch {
	case c.conv != nil:
		state = "active"
	case c.attached:
		state = "ended"
	}
	status := c.status
	c.mu.Unlock()

	return Status{
		CallID:      c.CallID,
		PhoneNumber: c.PhoneNumber,
		Direction:   c.Direction,
		StartTime:   c.StartedAt,
		Duration:    now.Sub(c.StartedAt).Seconds(),
		Transcript:  strings.Join(c.Transcript(), " "),
		Status:      state,
		CallStatus:  status,
	}
}

// Age is how long the call has been registered.
func (c *Call) Age(now time.Time) time.Duration {
	return now.Sub(c.StartedAt)
}

// Attached reports whether a conversation was ever attached.
func (c *Call) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

// ProviderID is the provider's identifier for the call, once known.
func (c *Call) ProviderID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ProviderCallID
}

package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/taskpadhq/taskpad/internal/document"
	"go.uber.org/zap"
)

const (
	// DefaultDebounceInterval is how long the machine waits after the last
	// keystroke before pushing an edit.
	DefaultDebounceInterval = 2 * time.Second
	// DefaultPollInterval is how often the machine checks the server for
	// remote changes while idle.
	DefaultPollInterval = 4 * time.Second
)

var (
	errMissingTransport = errors.New("transport must be provided")
	// ErrConflictPending indicates a conflict is awaiting user resolution
	// and no further pushes will run until it is resolved.
	ErrConflictPending = errors.New("client: conflict pending resolution")
	// ErrNoConflict indicates a resolution was requested with no conflict
	// outstanding.
	ErrNoConflict = errors.New("client: no conflict to resolve")
)

// SyncState describes the machine's observable condition.
type SyncState string

const (
	// StateIdle means local edits are waiting for the debounce to elapse.
	StateIdle SyncState = "idle"
	// StateSyncing means a foreground push is in flight.
	StateSyncing SyncState = "syncing"
	// StateSynced means the local document matches the server's decision.
	StateSynced SyncState = "synced"
	// StateConflict means a rejected push awaits user resolution.
	StateConflict SyncState = "conflict"
	// StateError means the last push failed in transport and will be retried.
	StateError SyncState = "error"
)

// ConflictState captures both sides of a rejected push so the caller can
// present a choice between them.
type ConflictState struct {
	LocalContent    string
	LocalTimestamp  int64
	ServerContent   string
	ServerTimestamp int64
}

// MachineConfig configures the client synchronization machine.
type MachineConfig struct {
	Transport        Transport
	Store            *LocalStore
	DebounceInterval time.Duration
	PollInterval     time.Duration
	Clock            func() time.Time
	Logger           *zap.Logger
	// OnApply fires whenever a server revision replaces the local document.
	OnApply func(content string, timestamp int64)
	// OnConflict fires when a push is rejected and local edits would be lost.
	OnConflict func(conflict ConflictState)
}

// Machine drives one document's synchronization loop: it debounces local
// edits into pushes, polls for remote changes while idle, and parks on a
// conflict until the caller picks a side. At most one push is in flight at
// a time; an edit arriving mid-push queues a single follow-up push.
type Machine struct {
	transport        Transport
	store            *LocalStore
	debounceInterval time.Duration
	pollInterval     time.Duration
	clock            func() time.Time
	logger           *zap.Logger
	onApply          func(content string, timestamp int64)
	onConflict       func(conflict ConflictState)

	mu         sync.Mutex
	content    string
	timestamp  int64
	dirty      bool
	inFlight   bool
	background bool
	queued     bool
	lastErr    error
	pending    *ConflictState
	debounce   *time.Timer
}

// NewMachine validates the configuration, restores any cached snapshot, and
// builds the machine.
func NewMachine(cfg MachineConfig) (*Machine, error) {
	if cfg.Transport == nil {
		return nil, errMissingTransport
	}
	debounceInterval := cfg.DebounceInterval
	if debounceInterval <= 0 {
		debounceInterval = DefaultDebounceInterval
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	machine := &Machine{
		transport:        cfg.Transport,
		store:            cfg.Store,
		debounceInterval: debounceInterval,
		pollInterval:     pollInterval,
		clock:            clock,
		logger:           logger,
		onApply:          cfg.OnApply,
		onConflict:       cfg.OnConflict,
	}
	if cfg.Store != nil {
		cached, err := cfg.Store.Load()
		if err != nil {
			return nil, err
		}
		machine.content = cached.Content
		machine.timestamp = cached.Timestamp
	}
	return machine, nil
}

// Edit records a local change and arms the debounce timer. Each further
// edit restarts the timer, so a burst of keystrokes produces one push.
func (m *Machine) Edit(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if content == m.content {
		return
	}
	m.content = content
	m.timestamp = m.clock().UnixMilli()
	m.dirty = true
	m.persistLocked()

	if m.debounce != nil {
		m.debounce.Stop()
	}
	m.debounce = time.AfterFunc(m.debounceInterval, func() {
		if err := m.SyncNow(context.Background()); err != nil && !errors.Is(err, ErrConflictPending) {
			m.logger.Warn("debounced push failed", zap.Error(err))
		}
	})
}

// Seed installs initial content for a client that has never synced. The
// timestamp stays at the zero sentinel, so the first push defers to any
// revision the server already holds instead of clobbering it.
func (m *Machine) Seed(content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timestamp != 0 {
		return
	}
	m.content = content
	m.persistLocked()
}

// Restore replaces the local document with an archived revision and pushes
// it immediately, stamped as a fresh edit so the server archives whatever
// it currently holds.
func (m *Machine) Restore(ctx context.Context, content string) error {
	m.mu.Lock()
	m.content = content
	m.timestamp = m.clock().UnixMilli()
	m.dirty = true
	m.persistLocked()
	if m.debounce != nil {
		m.debounce.Stop()
		m.debounce = nil
	}
	m.mu.Unlock()

	return m.SyncNow(ctx)
}

// SyncNow pushes the current local state and applies the server's decision.
// A push already in flight queues exactly one follow-up instead of racing.
func (m *Machine) SyncNow(ctx context.Context) error {
	return m.push(ctx, false)
}

func (m *Machine) push(ctx context.Context, isBackground bool) error {
	m.mu.Lock()
	if m.pending != nil {
		m.mu.Unlock()
		return ErrConflictPending
	}
	if m.inFlight {
		m.queued = true
		m.mu.Unlock()
		return nil
	}
	m.inFlight = true
	m.background = isBackground
	pushedContent := m.content
	pushedTimestamp := m.timestamp
	m.mu.Unlock()

	result, err := m.transport.Push(ctx, pushedContent, pushedTimestamp)

	m.mu.Lock()
	m.inFlight = false
	followUp := m.queued
	m.queued = false
	m.lastErr = err

	if err != nil {
		m.mu.Unlock()
		return err
	}

	var applied *LocalState
	var surfaced *ConflictState

	switch result.Status {
	case document.SyncStatusSynced:
		if m.content == pushedContent && m.timestamp == pushedTimestamp {
			m.dirty = false
		}
	case document.SyncStatusConflict:
		// Decide from the machine's state now, not the state captured when
		// the push started: an edit may have landed while the request was
		// in flight.
		switch {
		case m.timestamp == 0 || !m.dirty:
			// Nothing local worth keeping: a first sync or an idle poll
			// that detected a remote change. Adopt the server revision.
			m.content = result.Content
			m.timestamp = result.Timestamp
			m.dirty = false
			m.persistLocked()
			applied = &LocalState{Content: result.Content, Timestamp: result.Timestamp}
			followUp = false
		case result.Timestamp < m.timestamp:
			// The local document moved past the server revision in this
			// response while the push was in flight. The queued or
			// debounced push will deliver it; adopting here would
			// overwrite the newer edit.
		default:
			m.pending = &ConflictState{
				LocalContent:    m.content,
				LocalTimestamp:  m.timestamp,
				ServerContent:   result.Content,
				ServerTimestamp: result.Timestamp,
			}
			surfaced = m.pending
			followUp = false
		}
	}
	m.mu.Unlock()

	if applied != nil && m.onApply != nil {
		m.onApply(applied.Content, applied.Timestamp)
	}
	if surfaced != nil {
		if m.onConflict != nil {
			m.onConflict(*surfaced)
		}
		return ErrConflictPending
	}
	if followUp {
		return m.push(ctx, isBackground)
	}
	return nil
}

// State reports the machine's observable condition. A background poll in
// flight does not register as syncing.
func (m *Machine) State() SyncState {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.pending != nil:
		return StateConflict
	case m.inFlight && !m.background:
		return StateSyncing
	case m.lastErr != nil:
		return StateError
	case m.dirty:
		return StateIdle
	default:
		return StateSynced
	}
}

// Run polls the server until the context is cancelled. Polls are skipped
// while a push is in flight or a conflict awaits resolution; the push path
// itself surfaces remote changes, so polling is just a steady heartbeat.
func (m *Machine) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.mu.Lock()
			busy := m.inFlight || m.pending != nil
			m.mu.Unlock()
			if busy {
				continue
			}
			if err := m.push(ctx, true); err != nil && !errors.Is(err, ErrConflictPending) {
				m.logger.Warn("background poll failed", zap.Error(err))
			}
		}
	}
}

// ResolveKeepLocal discards the server revision: the local text is stamped
// with a fresh timestamp and pushed, so the server archives its copy.
func (m *Machine) ResolveKeepLocal(ctx context.Context) error {
	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		return ErrNoConflict
	}
	m.pending = nil
	m.timestamp = m.clock().UnixMilli()
	m.dirty = true
	m.persistLocked()
	m.mu.Unlock()

	return m.SyncNow(ctx)
}

// ResolveLoadServer discards local edits and adopts the server revision.
func (m *Machine) ResolveLoadServer() error {
	m.mu.Lock()
	if m.pending == nil {
		m.mu.Unlock()
		return ErrNoConflict
	}
	adopted := LocalState{Content: m.pending.ServerContent, Timestamp: m.pending.ServerTimestamp}
	m.pending = nil
	m.content = adopted.Content
	m.timestamp = adopted.Timestamp
	m.dirty = false
	m.persistLocked()
	m.mu.Unlock()

	if m.onApply != nil {
		m.onApply(adopted.Content, adopted.Timestamp)
	}
	return nil
}

// Snapshot returns the current local document state.
func (m *Machine) Snapshot() LocalState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return LocalState{Content: m.content, Timestamp: m.timestamp}
}

// PendingConflict returns a copy of the unresolved conflict, if any.
func (m *Machine) PendingConflict() *ConflictState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending == nil {
		return nil
	}
	conflict := *m.pending
	return &conflict
}

// Close stops the debounce timer. It does not flush a pending edit.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.debounce != nil {
		m.debounce.Stop()
		m.debounce = nil
	}
}

func (m *Machine) persistLocked() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(LocalState{Content: m.content, Timestamp: m.timestamp}); err != nil {
		m.logger.Warn("failed to persist local state", zap.Error(err))
	}
}

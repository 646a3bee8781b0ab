// Copyright © 2018 The ELPS authors

// Package suspended tracks the frames of a suspended program and hands out
// integer references to the variables a client expands. References are
// scoped to a Tracker: they stay valid until the tracker is closed, which
// happens when the program resumes.
package suspended

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/luthersystems/framevars/resolver"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/luthersystems/framevars/suspended"

// Option configures a Manager.
type Option func(*Manager)

// WithRegistry sets the resolver registry used to expand values.
func WithRegistry(r *resolver.Registry) Option {
	return func(m *Manager) {
		m.registry = r
	}
}

// WithLogger sets the logger. The default is the logrus standard logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithTracerProvider sets the provider of the manager's spans. The default
// is the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(m *Manager) {
		m.tracer = tp.Tracer(tracerName)
	}
}

type refEntry struct {
	tracker  *Tracker
	variable *Variable
}

// Manager owns the reference table shared by all trackers. It is safe for
// concurrent use.
type Manager struct {
	registry *resolver.Registry
	logger   logrus.FieldLogger
	tracer   trace.Tracer

	mu      sync.RWMutex
	lastRef int
	refs    map[int]refEntry
	threads map[ThreadID]*Tracker
}

// NewManager returns an empty manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		registry: resolver.NewRegistry(),
		logger:   logrus.StandardLogger(),
		tracer:   otel.Tracer(tracerName),
		refs:     make(map[int]refEntry),
		threads:  make(map[ThreadID]*Tracker),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry returns the resolver registry of m.
func (m *Manager) Registry() *resolver.Registry {
	return m.registry
}

// Begin starts tracking a new suspension. The caller must close the tracker
// when the program resumes.
func (m *Manager) Begin(ctx context.Context) *Tracker {
	ctx, span := m.tracer.Start(ctx, "suspended.track")
	return newTracker(ctx, m, span)
}

// End closes t.
func (m *Manager) End(t *Tracker) {
	_ = t.Close()
}

// TrackFrames runs fn with a new tracker and closes the tracker when fn
// returns, whatever the outcome.
func (m *Manager) TrackFrames(ctx context.Context, fn func(*Tracker) error) error {
	t := m.Begin(ctx)
	defer m.End(t)
	return fn(t)
}

// ThreadFor returns the thread a reference was minted for.
func (m *Manager) ThreadFor(ref int) (ThreadID, error) {
	e, err := m.lookup(ref)
	if err != nil {
		return 0, err
	}
	return e.variable.thread, nil
}

// Variable returns the variable behind ref.
func (m *Manager) Variable(ref int) (*Variable, error) {
	e, err := m.lookup(ref)
	if err != nil {
		return nil, err
	}
	return e.variable, nil
}

// Frame returns the tracked frame whose id is ref.
func (m *Manager) Frame(ref int) (*TrackedFrame, error) {
	e, err := m.lookup(ref)
	if err != nil {
		return nil, err
	}
	if e.variable.kind != kindFrame {
		return nil, fmt.Errorf("%w: %d is not a frame", ErrUnknownReference, ref)
	}
	return e.variable.frame, nil
}

// TrackerFor returns the tracker currently holding thread.
func (m *Manager) TrackerFor(thread ThreadID) (*Tracker, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.threads[thread]
	return t, ok
}

// FramesFor returns the tracked frames of thread, innermost first.
func (m *Manager) FramesFor(thread ThreadID) []*TrackedFrame {
	t, ok := m.TrackerFor(thread)
	if !ok {
		return nil
	}
	return t.Frames(thread)
}

// Threads returns the suspended threads in ascending order.
func (m *Manager) Threads() []ThreadID {
	m.mu.RLock()
	ids := make([]ThreadID, 0, len(m.threads))
	for id := range m.threads {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of live references.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.refs)
}

func (m *Manager) lookup(ref int) (refEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.refs[ref]
	if !ok {
		return refEntry{}, fmt.Errorf("%w: %d", ErrUnknownReference, ref)
	}
	return e, nil
}

func (m *Manager) register(t *Tracker, v *Variable) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRef++
	m.refs[m.lastRef] = refEntry{tracker: t, variable: v}
	return m.lastRef
}

func (m *Manager) bindThread(thread ThreadID, t *Tracker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.threads[thread]; ok && prev != t {
		m.logger.WithField("thread", thread).Warn("thread tracked by more than one tracker")
	}
	m.threads[thread] = t
}

// release removes refs and thread bindings owned by t in one step.
func (m *Manager) release(t *Tracker, refs []int, threads []ThreadID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ref := range refs {
		if e, ok := m.refs[ref]; ok && e.tracker == t {
			delete(m.refs, ref)
		}
	}
	for _, id := range threads {
		if m.threads[id] == t {
			delete(m.threads, id)
		}
	}
}

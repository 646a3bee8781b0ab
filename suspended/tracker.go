// Copyright © 2018 The ELPS authors

package suspended

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tracker scopes the references handed out during one suspension. Every
// reference minted through a tracker becomes invalid when it is closed.
type Tracker struct {
	manager *Manager
	ctx     context.Context
	span    trace.Span

	mu     sync.Mutex
	closed bool
	order  []ThreadID
	names  map[ThreadID]string
	frames map[ThreadID][]*TrackedFrame
	refs   map[ThreadID][]int
}

func newTracker(ctx context.Context, m *Manager, span trace.Span) *Tracker {
	return &Tracker{
		manager: m,
		ctx:     ctx,
		span:    span,
		names:   make(map[ThreadID]string),
		frames:  make(map[ThreadID][]*TrackedFrame),
		refs:    make(map[ThreadID][]int),
	}
}

// Track registers frame and each of its callers for thread, innermost
// first, and returns the frame references in the same order. lineHints
// overrides the reported line of individual frames.
func (t *Tracker) Track(thread ThreadID, frame *Frame, lineHints map[*Frame]int) ([]int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTrackerClosed
	}
	if _, ok := t.refs[thread]; !ok {
		t.order = append(t.order, thread)
		t.refs[thread] = nil
	}
	seen := make(map[*Frame]bool)
	var refs []int
	for f := frame; f != nil && !seen[f]; f = f.Caller {
		seen[f] = true
		tf := &TrackedFrame{Thread: thread, Frame: f, Line: f.Line}
		if line, ok := lineHints[f]; ok {
			tf.Line = line
		}
		tf.variable = &Variable{tracker: t, thread: thread, kind: kindFrame, name: f.Name, frame: tf}
		tf.Ref = t.manager.register(t, tf.variable)
		tf.variable.ref = tf.Ref
		t.frames[thread] = append(t.frames[thread], tf)
		t.refs[thread] = append(t.refs[thread], tf.Ref)
		refs = append(refs, tf.Ref)
	}
	t.manager.bindThread(thread, t)
	t.span.AddEvent("track", trace.WithAttributes(
		attribute.Int("thread.id", int(thread)),
		attribute.Int("frames.count", len(refs)),
	))
	t.manager.logger.WithField("thread", thread).Debugf("tracked %d frames", len(refs))
	return refs, nil
}

// TrackStack tracks a captured thread stack and remembers its name.
func (t *Tracker) TrackStack(s ThreadStack) ([]int, error) {
	refs, err := t.Track(s.ID, s.Top, s.LineHints)
	if err != nil {
		return nil, err
	}
	t.mu.Lock()
	t.names[s.ID] = s.Name
	t.mu.Unlock()
	return refs, nil
}

// Untrack releases the references of a single thread, for a thread that
// resumed while the others stay suspended.
func (t *Tracker) Untrack(thread ThreadID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	refs, ok := t.refs[thread]
	if !ok {
		return
	}
	t.manager.release(t, refs, []ThreadID{thread})
	delete(t.refs, thread)
	delete(t.frames, thread)
	delete(t.names, thread)
	for i, id := range t.order {
		if id == thread {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
}

// Threads returns the tracked threads in the order they were first tracked.
func (t *Tracker) Threads() []ThreadID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]ThreadID(nil), t.order...)
}

// ThreadName returns the name given to thread by TrackStack.
func (t *Tracker) ThreadName(thread ThreadID) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.names[thread]
}

// Frames returns the tracked frames of thread, innermost first.
func (t *Tracker) Frames(thread ThreadID) []*TrackedFrame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*TrackedFrame(nil), t.frames[thread]...)
}

// Closed reports whether Close has been called.
func (t *Tracker) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close releases every reference minted through t. It is safe to call more
// than once.
func (t *Tracker) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	var refs []int
	for _, r := range t.refs {
		refs = append(refs, r...)
	}
	sort.Ints(refs)
	t.manager.release(t, refs, t.order)
	t.span.SetAttributes(attribute.Int("references.count", len(refs)))
	t.span.End()
	t.manager.logger.Debugf("released %d references", len(refs))
	t.refs = nil
	t.frames = nil
	t.order = nil
	return nil
}

// holds reports whether ref was minted for thread since it was last
// tracked and is still live. References grow monotonically, so anything
// below the first reference of the current tracking is stale.
func (t *Tracker) holds(thread ThreadID, ref int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	refs := t.refs[thread]
	return len(refs) > 0 && ref >= refs[0]
}

// mint registers v and returns its new reference, or 0 when the thread of v
// is no longer tracked.
func (t *Tracker) mint(v *Variable) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0
	}
	if _, ok := t.refs[v.thread]; !ok {
		return 0
	}
	ref := t.manager.register(t, v)
	t.refs[v.thread] = append(t.refs[v.thread], ref)
	return ref
}

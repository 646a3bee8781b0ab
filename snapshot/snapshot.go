// Copyright © 2018 The ELPS authors

/*
Package snapshot loads captured suspension events from YAML (or JSON) and
replays them as if a program stopped on each of them in turn.

	stops:
	  - reason: breakpoint
	    threads:
	      - id: 1
	        name: main
	        frames:            # innermost first
	          - name: main.handle
	            file: handler.go
	            line: 42
	            locals:          # kept in order
	              req: !Request {Method: GET, Path: /}
	              ids: [1, 2, 3]
	              seen: !!set {a, b}

Mappings tagged !!set become map[any]struct{}. Mappings carrying a local tag
such as !Request become *Object values whose attributes keep their order.
*/
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/luthersystems/framevars/suspended"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Snapshot is a decoded snapshot file.
type Snapshot struct {
	Stops []*suspended.Stop
}

type fileDoc struct {
	Stops []stopDoc `yaml:"stops"`
}

type stopDoc struct {
	Reason  string      `yaml:"reason"`
	Threads []threadDoc `yaml:"threads"`
}

type threadDoc struct {
	ID     int        `yaml:"id"`
	Name   string     `yaml:"name"`
	Frames []frameDoc `yaml:"frames"`
}

type frameDoc struct {
	Name   string    `yaml:"name"`
	File   string    `yaml:"file"`
	Line   int       `yaml:"line"`
	Locals yaml.Node `yaml:"locals"`
}

// Load decodes a snapshot from r.
func Load(r io.Reader) (*Snapshot, error) {
	var doc fileDoc
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("snapshot: empty document")
		}
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	snap := &Snapshot{}
	for i, sd := range doc.Stops {
		stop, err := sd.build()
		if err != nil {
			return nil, fmt.Errorf("snapshot: stop %d: %w", i, err)
		}
		snap.Stops = append(snap.Stops, stop)
	}
	return snap, nil
}

// LoadFile decodes the snapshot stored at path.
func LoadFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	snap, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logrus.WithField("file", path).Debugf("loaded %d stops", len(snap.Stops))
	return snap, nil
}

func (sd stopDoc) build() (*suspended.Stop, error) {
	if len(sd.Threads) == 0 {
		return nil, fmt.Errorf("no threads")
	}
	stop := &suspended.Stop{Reason: sd.Reason}
	if stop.Reason == "" {
		stop.Reason = "pause"
	}
	seen := make(map[int]bool)
	for _, td := range sd.Threads {
		if seen[td.ID] {
			return nil, fmt.Errorf("duplicate thread id %d", td.ID)
		}
		seen[td.ID] = true
		top, err := td.build()
		if err != nil {
			return nil, fmt.Errorf("thread %d: %w", td.ID, err)
		}
		name := td.Name
		if name == "" {
			name = fmt.Sprintf("thread %d", td.ID)
		}
		stop.Threads = append(stop.Threads, suspended.ThreadStack{
			ID:   suspended.ThreadID(td.ID),
			Name: name,
			Top:  top,
		})
	}
	return stop, nil
}

func (td threadDoc) build() (*suspended.Frame, error) {
	frames := make([]*suspended.Frame, len(td.Frames))
	for i, fd := range td.Frames {
		locals, err := decodeLocals(&fd.Locals)
		if err != nil {
			return nil, fmt.Errorf("frame %d (%s): %w", i, fd.Name, err)
		}
		frames[i] = &suspended.Frame{Name: fd.Name, File: fd.File, Line: fd.Line, Locals: locals}
	}
	for i := 0; i+1 < len(frames); i++ {
		frames[i].Caller = frames[i+1]
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames")
	}
	return frames[0], nil
}

// Replay hands out the stops of a snapshot in order. It is safe for
// concurrent use.
type Replay struct {
	mu    sync.Mutex
	stops []*suspended.Stop
	next  int
}

// NewReplay returns a replay of snap.
func NewReplay(snap *Snapshot) *Replay {
	return &Replay{stops: snap.Stops}
}

// Next returns the next stop, or io.EOF once every stop was handed out.
func (r *Replay) Next(ctx context.Context) (*suspended.Stop, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.stops) {
		return nil, io.EOF
	}
	stop := r.stops[r.next]
	r.next++
	return stop, nil
}

// Remaining returns the number of stops not handed out yet.
func (r *Replay) Remaining() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stops) - r.next
}

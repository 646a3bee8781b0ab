package navrepl

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/luthersystems/framevars/suspended"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stopList struct {
	stops []*suspended.Stop
}

func (l *stopList) Next(ctx context.Context) (*suspended.Stop, error) {
	if len(l.stops) == 0 {
		return nil, io.EOF
	}
	s := l.stops[0]
	l.stops = l.stops[1:]
	return s, nil
}

type owner struct {
	Name  string
	Coins []int
}

func testStops() []*suspended.Stop {
	caller := &suspended.Frame{Name: "main.main", File: "main.go", Line: 9,
		Locals: []suspended.Local{{Name: "args", Value: []string{"-v"}}}}
	top := &suspended.Frame{
		Name:   "main.get",
		File:   "get.go",
		Line:   12,
		Caller: caller,
		Locals: []suspended.Local{
			{Name: "var1", Value: 1},
			{Name: "var3", Value: map[int][]int{33: {1}}},
			{Name: "w", Value: &owner{Name: "ann", Coins: []int{5, 6}}},
		},
	}
	return []*suspended.Stop{
		{Reason: "breakpoint", Threads: []suspended.ThreadStack{
			{ID: 1, Name: "main", Top: top},
			{ID: 7, Name: "worker", Top: &suspended.Frame{Name: "main.work", File: "work.go", Line: 3}},
		}},
		{Reason: "step", Threads: []suspended.ThreadStack{
			{ID: 1, Name: "main", Top: &suspended.Frame{Name: "main.get", File: "get.go", Line: 13}},
		}},
	}
}

func newTestSession(t *testing.T) (*session, *bytes.Buffer, *suspended.Manager) {
	t.Helper()
	logger, _ := logtest.NewNullLogger()
	m := suspended.NewManager(suspended.WithLogger(logger))
	var out bytes.Buffer
	s := newSession(context.Background(), m, &stopList{stops: testStops()}, WithStdout(&out), WithLogger(logger))
	s.advance()
	t.Cleanup(s.release)
	return s, &out, m
}

// run executes line and returns what it printed.
func run(s *session, out *bytes.Buffer, line string) string {
	out.Reset()
	s.handleLine(line)
	return out.String()
}

func TestSession_Advance(t *testing.T) {
	t.Parallel()
	s, out, _ := newTestSession(t)
	assert.Contains(t, out.String(), "stopped: breakpoint")
	assert.Contains(t, out.String(), "main.get at get.go:12")
	assert.Equal(t, suspended.ThreadID(1), s.thread)
	assert.Equal(t, "(main.get) .> ", s.prompt())
}

func TestSession_ThreadsAndFrames(t *testing.T) {
	t.Parallel()
	s, out, _ := newTestSession(t)

	got := run(s, out, "threads")
	assert.Contains(t, got, "* 1 main")
	assert.Contains(t, got, "  7 worker")

	got = run(s, out, "frames")
	lines := strings.Split(strings.TrimSpace(got), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "* #0 main.get")
	assert.Contains(t, lines[1], "  #1 main.main at main.go:9")

	run(s, out, "frame 1")
	assert.Contains(t, run(s, out, "ls"), `args = ["-v"] ([]string)`)
	assert.Contains(t, run(s, out, "frame 5"), "no frame 5")

	run(s, out, "thread 7")
	assert.Equal(t, suspended.ThreadID(7), s.thread)
	assert.Contains(t, run(s, out, "ls"), "(no variables)")
	assert.Contains(t, run(s, out, "thread 9"), "no thread 9")
}

func TestSession_Navigate(t *testing.T) {
	t.Parallel()
	s, out, _ := newTestSession(t)

	got := run(s, out, "ls")
	assert.Contains(t, got, "var1 = 1 (int)\n")
	assert.Contains(t, got, "var3 = {33: [1]} (map[int][]int) #")

	run(s, out, "cd var3")
	assert.Equal(t, "var3\n", run(s, out, "pwd"))
	got = run(s, out, "ls")
	assert.Contains(t, got, "33 = [1]")
	assert.Contains(t, got, "__len__ = 1 (int)")

	run(s, out, "cd 33")
	assert.Equal(t, "var3[33]\n", run(s, out, "pwd"))
	assert.Contains(t, run(s, out, "cd __len__"), "has no children")

	run(s, out, "cd ..")
	assert.Equal(t, "var3\n", run(s, out, "pwd"))
	run(s, out, "cd /")
	assert.Equal(t, ".\n", run(s, out, "pwd"))

	assert.Contains(t, run(s, out, "cd missing"), "no child")
	assert.Contains(t, run(s, out, "cd #999"), "unknown variable reference")
}

func TestSession_CdByReference(t *testing.T) {
	t.Parallel()
	s, out, _ := newTestSession(t)
	w, err := s.frame.Variable().ChildNamed("w", s.format)
	require.NoError(t, err)
	ref := w.Reference()
	require.Positive(t, ref)

	run(s, out, "cd #"+strconv.Itoa(ref))
	got := run(s, out, "ls")
	assert.Contains(t, got, `Name = "ann" (string)`)
	assert.Contains(t, got, "Coins = [5, 6] ([]int)")
}

func TestSession_PrintAndHex(t *testing.T) {
	t.Parallel()
	s, out, _ := newTestSession(t)

	assert.Equal(t, "1 = 6 (int)\n", run(s, out, "print w.Coins[1]"))
	assert.Contains(t, run(s, out, "p len(var3)"), "= 1 (int)")
	assert.Contains(t, run(s, out, "print var3["), "invalid expression")
	assert.Contains(t, run(s, out, "print"), "usage: print")

	assert.Equal(t, "hex on\n", run(s, out, "hex on"))
	assert.Contains(t, run(s, out, "ls"), "var3 = {0x21: [0x1]}")
	run(s, out, "cd var3")
	assert.Contains(t, run(s, out, "ls"), "0x21 = [0x1]")
	assert.Equal(t, "hex off\n", run(s, out, "hex off"))
	assert.Contains(t, run(s, out, "hex maybe"), "usage: hex")
}

func TestSession_Continue(t *testing.T) {
	t.Parallel()
	s, out, m := newTestSession(t)
	run(s, out, "cd var3")
	before := m.Len()
	require.Positive(t, before)

	got := run(s, out, "continue")
	assert.Contains(t, got, "stopped: step")
	assert.Equal(t, ".\n", run(s, out, "pwd"), "a new stop starts at the frame")
	assert.Contains(t, run(s, out, "ls"), "(no variables)")

	// Empty input repeats continue.
	assert.Contains(t, run(s, out, ""), "program exited")
	assert.Zero(t, m.Len())
	assert.Contains(t, run(s, out, "ls"), "not paused")
	assert.Contains(t, run(s, out, "c"), "program exited")
}

func TestSession_Commands(t *testing.T) {
	t.Parallel()
	s, out, _ := newTestSession(t)
	assert.Contains(t, run(s, out, "help"), "continue (c)")
	assert.Contains(t, run(s, out, "bogus"), `unknown command "bogus"`)
	assert.Empty(t, run(s, out, ""), "empty input only repeats resume commands")
	assert.False(t, s.handleLine("quit"))
	assert.True(t, s.handleLine("pwd"))
}

func TestShowVariable_Width(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	showVariable(&buf, suspended.Data{Name: "s", Value: strings.Repeat("x", 50), Type: "string"}, 20)
	line := strings.TrimSuffix(buf.String(), " (string)\n")
	assert.Len(t, line, 20)
	assert.True(t, strings.HasSuffix(line, "..."))
}

func TestCompleter(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestSession(t)
	c := &navCompleter{s: s}

	cands, n := c.Do([]rune("thr"), 3)
	assert.Equal(t, 3, n)
	assert.Equal(t, [][]rune{[]rune("ead"), []rune("eads")}, cands)

	cands, n = c.Do([]rune("cd va"), 5)
	assert.Equal(t, 2, n)
	assert.Equal(t, [][]rune{[]rune("r1"), []rune("r3")}, cands)

	cands, _ = c.Do([]rune("hex o"), 5)
	assert.Empty(t, cands)
}

func TestRun(t *testing.T) {
	t.Parallel()
	logger, _ := logtest.NewNullLogger()
	m := suspended.NewManager(suspended.WithLogger(logger))
	var out bytes.Buffer
	stdin := io.NopCloser(strings.NewReader("ls\nquit\n"))
	err := Run(context.Background(), m, &stopList{stops: testStops()},
		WithStdin(stdin), WithStdout(&out), WithLogger(logger))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "stopped: breakpoint")
	assert.Zero(t, m.Len(), "references are released when the shell exits")
}

// Copyright © 2018 The ELPS authors

// Package navrepl provides an interactive shell for browsing the variables
// of a suspended program. The shell keeps a current frame and a path of
// expanded variables beneath it, much like a working directory.
package navrepl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ergochat/readline"
	"github.com/golang-collections/collections/stack"
	"github.com/luthersystems/framevars/suspended"
	"github.com/luthersystems/framevars/valfmt"
	"github.com/sirupsen/logrus"
)

// Debuggee produces the stops browsed by the shell.
type Debuggee interface {
	Next(ctx context.Context) (*suspended.Stop, error)
}

// Option configures the shell.
type Option func(*session)

// WithStdin sets the reader for shell input. This is primarily useful for
// testing, where a pipe replaces the terminal.
func WithStdin(r io.ReadCloser) Option {
	return func(s *session) {
		s.stdin = r
	}
}

// WithStdout sets the writer for shell output.
func WithStdout(w io.Writer) Option {
	return func(s *session) {
		s.out = w
	}
}

// WithWidth limits displayed values to width columns. Zero disables the
// limit.
func WithWidth(width int) Option {
	return func(s *session) {
		s.width = width
	}
}

// WithLogger sets the logger used for session diagnostics.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *session) {
		s.logger = logger
	}
}

// session holds the state of one shell.
type session struct {
	ctx      context.Context
	manager  *suspended.Manager
	debuggee Debuggee
	stdin    io.ReadCloser
	out      io.Writer
	logger   logrus.FieldLogger
	width    int
	format   valfmt.Format

	tracker *suspended.Tracker
	stop    *suspended.Stop
	thread  suspended.ThreadID
	frame   *suspended.TrackedFrame
	// path holds the *suspended.Variable values entered below frame.
	path    *stack.Stack
	exited  bool
	// lastCmd is the last resume command, repeated by empty input.
	lastCmd string
}

func newSession(ctx context.Context, m *suspended.Manager, d Debuggee, opts ...Option) *session {
	s := &session{
		ctx:      ctx,
		manager:  m,
		debuggee: d,
		out:      os.Stdout,
		logger:   logrus.StandardLogger(),
		width:    100,
		path:     stack.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run advances d to its first stop and reads commands until the user quits
// or input ends.
func Run(ctx context.Context, m *suspended.Manager, d Debuggee, opts ...Option) error {
	s := newSession(ctx, m, d, opts...)
	defer s.release()

	rlCfg := &readline.Config{
		Stdout:            s.out,
		Stderr:            s.out,
		Prompt:            s.prompt(),
		HistoryFile:       historyPath(),
		HistorySearchFold: true,
		AutoComplete:      &navCompleter{s: s},
	}
	if s.stdin != nil {
		rlCfg.Stdin = s.stdin
	}
	rl, err := readline.NewEx(rlCfg)
	if err != nil {
		return err
	}
	defer rl.Close() //nolint:errcheck // best-effort cleanup

	s.advance()
	for {
		rl.SetPrompt(s.prompt())
		line, err := rl.ReadSlice()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !s.handleLine(string(bytes.TrimSpace(line))) {
			return nil
		}
	}
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".framevars_history")
}

func (s *session) prompt() string {
	if s.frame == nil {
		return "(framevars) "
	}
	return fmt.Sprintf("(%s) %s> ", s.frame.Frame.Name, s.pwd())
}

func (s *session) printf(format string, v ...any) {
	fmt.Fprintf(s.out, format, v...) //nolint:errcheck // best-effort shell output
}

// handleLine runs one command. It returns false when the shell should exit.
func (s *session) handleLine(line string) bool {
	line = strings.TrimSpace(line)
	// Empty input repeats the last resume command.
	if line == "" {
		if s.lastCmd == "" {
			return true
		}
		line = s.lastCmd
	}
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	args := strings.Fields(rest)

	switch cmd {
	case "threads":
		s.doThreads()
	case "thread":
		s.doThread(args)
	case "frames", "bt":
		s.doFrames()
	case "frame", "f":
		s.doFrame(args)
	case "ls", "l":
		s.doList()
	case "cd":
		s.doCd(args)
	case "pwd":
		if s.paused() {
			s.printf("%s\n", s.pwd())
		}
	case "print", "p":
		s.doPrint(rest)
	case "hex":
		s.doHex(args)
	case "continue", "c":
		s.lastCmd = cmd
		s.doContinue()
	case "help", "h":
		showHelp(s.out)
	case "quit", "q":
		return false
	default:
		s.printf("unknown command %q (try help)\n", cmd)
	}
	return true
}

func (s *session) paused() bool {
	if s.tracker == nil {
		s.printf("not paused\n")
		return false
	}
	return true
}

// advance runs the debuggee to its next stop and selects the innermost
// frame of its first thread.
func (s *session) advance() {
	stop, err := s.debuggee.Next(s.ctx)
	if err != nil {
		s.exited = true
		if errors.Is(err, io.EOF) {
			s.printf("program exited\n")
			return
		}
		s.logger.WithError(err).Error("navrepl: debuggee failed")
		s.printf("program failed: %v\n", err)
		return
	}
	t := s.manager.Begin(s.ctx)
	for _, th := range stop.Threads {
		if _, err := t.TrackStack(th); err != nil {
			s.logger.WithError(err).WithField("thread", th.ID).Error("navrepl: cannot track thread")
		}
	}
	s.tracker = t
	s.stop = stop
	s.frame = nil
	s.path = stack.New()
	if threads := t.Threads(); len(threads) > 0 {
		s.selectThread(threads[0])
	}
	s.printf("stopped: %s\n", stop.Reason)
	if s.frame != nil {
		showFrame(s.out, 0, s.frame, true)
	}
}

func (s *session) release() {
	if s.tracker != nil {
		s.manager.End(s.tracker)
	}
	s.tracker = nil
	s.stop = nil
	s.frame = nil
	s.path = stack.New()
}

func (s *session) selectThread(id suspended.ThreadID) bool {
	frames := s.tracker.Frames(id)
	if len(frames) == 0 {
		return false
	}
	s.thread = id
	s.frame = frames[0]
	s.path = stack.New()
	return true
}

func (s *session) doThreads() {
	if !s.paused() {
		return
	}
	for _, id := range s.tracker.Threads() {
		mark := " "
		if id == s.thread {
			mark = "*"
		}
		s.printf("%s %d %s\n", mark, id, s.tracker.ThreadName(id))
	}
}

func (s *session) doThread(args []string) {
	if !s.paused() {
		return
	}
	if len(args) != 1 {
		s.printf("usage: thread <id>\n")
		return
	}
	id, err := strconv.Atoi(args[0])
	if err != nil || !s.selectThread(suspended.ThreadID(id)) {
		s.printf("no thread %s\n", args[0])
		return
	}
	showFrame(s.out, 0, s.frame, true)
}

func (s *session) doFrames() {
	if !s.paused() {
		return
	}
	for i, tf := range s.tracker.Frames(s.thread) {
		showFrame(s.out, i, tf, tf == s.frame)
	}
}

func (s *session) doFrame(args []string) {
	if !s.paused() {
		return
	}
	if len(args) != 1 {
		s.printf("usage: frame <index>\n")
		return
	}
	frames := s.tracker.Frames(s.thread)
	i, err := strconv.Atoi(args[0])
	if err != nil || i < 0 || i >= len(frames) {
		s.printf("no frame %s\n", args[0])
		return
	}
	s.frame = frames[i]
	s.path = stack.New()
	showFrame(s.out, i, s.frame, true)
}

// current returns the variable whose children ls shows.
func (s *session) current() *suspended.Variable {
	if v, ok := s.path.Peek().(*suspended.Variable); ok {
		return v
	}
	return s.frame.Variable()
}

func (s *session) doList() {
	if !s.paused() {
		return
	}
	children := s.current().Children(s.format)
	if len(children) == 0 {
		s.printf("(no variables)\n")
		return
	}
	for _, c := range children {
		showVariable(s.out, c.Data(s.format), s.width)
	}
}

func (s *session) doCd(args []string) {
	if !s.paused() {
		return
	}
	if len(args) != 1 {
		s.printf("usage: cd <name|#ref|..|/>\n")
		return
	}
	arg := args[0]
	switch {
	case arg == "/":
		s.path = stack.New()
		return
	case arg == "..":
		if s.path.Len() > 0 {
			s.path.Pop()
		}
		return
	}
	var (
		v   *suspended.Variable
		err error
	)
	if ref, ok := strings.CutPrefix(arg, "#"); ok {
		var n int
		n, err = strconv.Atoi(ref)
		if err == nil {
			v, err = s.manager.Variable(n)
		}
	} else {
		v, err = s.current().ChildNamed(arg, s.format)
	}
	if err != nil {
		s.printf("%v\n", err)
		return
	}
	if !v.HasChildren() {
		s.printf("%s has no children\n", v.Name())
		return
	}
	s.path.Push(v)
}

// pwd describes the current position by the evaluate name of the entered
// variable, or "." at the frame itself.
func (s *session) pwd() string {
	v, ok := s.path.Peek().(*suspended.Variable)
	if !ok {
		return "."
	}
	if name := v.EvaluateName(); name != "" {
		return name
	}
	return v.Name()
}

func (s *session) doPrint(expr string) {
	if !s.paused() {
		return
	}
	if expr == "" {
		s.printf("usage: print <expression>\n")
		return
	}
	v, err := s.manager.Evaluate(s.ctx, s.frame.Ref, expr)
	if err != nil {
		s.printf("%v\n", err)
		return
	}
	showVariable(s.out, v.Data(s.format), s.width)
}

func (s *session) doHex(args []string) {
	if len(args) == 1 {
		switch args[0] {
		case "on":
			s.format = valfmt.Format{Hex: true}
		case "off":
			s.format = valfmt.Decimal
		default:
			s.printf("usage: hex on|off\n")
			return
		}
	}
	state := "off"
	if s.format.Hex {
		state = "on"
	}
	s.printf("hex %s\n", state)
}

func (s *session) doContinue() {
	if s.exited {
		s.printf("program exited\n")
		return
	}
	if !s.paused() {
		return
	}
	s.release()
	s.advance()
}

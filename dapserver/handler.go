// Copyright © 2018 The ELPS authors

package dapserver

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/google/go-dap"
	"github.com/luthersystems/framevars/suspended"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// handler dispatches incoming DAP messages to the appropriate method.
type handler struct {
	server *Server

	mu         sync.Mutex
	configured bool
	finished   bool
	// tracker holds the references of the current stop. It is nil while
	// the debuggee runs.
	tracker *suspended.Tracker
	stop    *suspended.Stop
}

func newHandler(s *Server) *handler {
	return &handler{server: s}
}

// send sends a DAP message and logs any write error.
func (h *handler) send(msg dap.Message) {
	if err := h.server.send(msg); err != nil {
		h.server.logger.WithError(err).Warn("dap: send error")
	}
}

func (h *handler) handle(msg dap.Message) {
	req, ok := msg.(dap.RequestMessage)
	if !ok {
		h.server.logger.Warnf("dap: unexpected message type: %T", msg)
		return
	}
	r := req.GetRequest()
	ctx, span := h.server.tracer.Start(context.Background(), "dap."+r.Command,
		trace.WithAttributes(attribute.Int("dap.seq", r.Seq)))
	defer span.End()
	h.server.logger.WithField("command", r.Command).Debug("dap: request")

	switch req := msg.(type) {
	case *dap.InitializeRequest:
		h.onInitialize(req)
	case *dap.LaunchRequest:
		h.onLaunch(req)
	case *dap.AttachRequest:
		h.onAttach(req)
	case *dap.ConfigurationDoneRequest:
		h.onConfigurationDone(ctx, req)
	case *dap.ThreadsRequest:
		h.onThreads(req)
	case *dap.StackTraceRequest:
		h.onStackTrace(req)
	case *dap.ScopesRequest:
		h.onScopes(req)
	case *dap.VariablesRequest:
		h.onVariables(req)
	case *dap.EvaluateRequest:
		h.onEvaluate(ctx, req)
	case *dap.ContinueRequest:
		resp := &dap.ContinueResponse{}
		resp.Response = h.respondTo(&req.Request)
		resp.Body.AllThreadsContinued = true
		h.resume(ctx, resp)
	case *dap.NextRequest:
		resp := &dap.NextResponse{}
		resp.Response = h.respondTo(&req.Request)
		h.resume(ctx, resp)
	case *dap.StepInRequest:
		resp := &dap.StepInResponse{}
		resp.Response = h.respondTo(&req.Request)
		h.resume(ctx, resp)
	case *dap.StepOutRequest:
		resp := &dap.StepOutResponse{}
		resp.Response = h.respondTo(&req.Request)
		h.resume(ctx, resp)
	case *dap.DisconnectRequest:
		h.onDisconnect(req)
	default:
		h.server.logger.Warnf("dap: unhandled request: %s", r.Command)
		span.SetStatus(codes.Error, "unsupported request")
		h.sendError(r, "unsupported request: "+r.Command)
	}
}

func (h *handler) onInitialize(req *dap.InitializeRequest) {
	resp := &dap.InitializeResponse{}
	resp.Response = h.respondTo(&req.Request)
	resp.Body = dap.Capabilities{
		SupportsConfigurationDoneRequest: true,
		SupportsEvaluateForHovers:        true,
		SupportsValueFormattingOptions:   true,
		SupportsDelayedStackTraceLoading: true,
		SupportTerminateDebuggee:         true,
	}
	h.send(resp)

	// Send initialized event to tell the client it can send configuration.
	h.send(&dap.InitializedEvent{
		Event: h.newEvent("initialized"),
	})
}

func (h *handler) onLaunch(req *dap.LaunchRequest) {
	resp := &dap.LaunchResponse{}
	resp.Response = h.respondTo(&req.Request)
	h.send(resp)
}

func (h *handler) onAttach(req *dap.AttachRequest) {
	resp := &dap.AttachResponse{}
	resp.Response = h.respondTo(&req.Request)
	h.send(resp)
}

func (h *handler) onConfigurationDone(ctx context.Context, req *dap.ConfigurationDoneRequest) {
	resp := &dap.ConfigurationDoneResponse{}
	resp.Response = h.respondTo(&req.Request)
	h.send(resp)

	h.mu.Lock()
	already := h.configured
	h.configured = true
	h.mu.Unlock()
	if !already {
		h.advance(ctx)
	}
}

func (h *handler) onThreads(req *dap.ThreadsRequest) {
	resp := &dap.ThreadsResponse{}
	resp.Response = h.respondTo(&req.Request)
	resp.Body.Threads = []dap.Thread{}
	if t := h.currentTracker(); t != nil {
		for _, id := range t.Threads() {
			resp.Body.Threads = append(resp.Body.Threads, dap.Thread{Id: int(id), Name: t.ThreadName(id)})
		}
	}
	h.send(resp)
}

func (h *handler) onStackTrace(req *dap.StackTraceRequest) {
	resp := &dap.StackTraceResponse{}
	resp.Response = h.respondTo(&req.Request)

	frames := translateStackFrames(h.server.manager.FramesFor(suspended.ThreadID(req.Arguments.ThreadId)), h.server.sourceRoot)
	resp.Body.TotalFrames = len(frames)

	// Apply paging.
	start, end := page(len(frames), req.Arguments.StartFrame, req.Arguments.Levels)
	resp.Body.StackFrames = frames[start:end]
	h.send(resp)
}

func (h *handler) onScopes(req *dap.ScopesRequest) {
	resp := &dap.ScopesResponse{}
	resp.Response = h.respondTo(&req.Request)

	tf, err := h.server.manager.Frame(req.Arguments.FrameId)
	if err != nil {
		h.fail(&resp.Response, err)
		h.send(resp)
		return
	}
	resp.Body.Scopes = []dap.Scope{translateScope(tf)}
	h.send(resp)
}

func (h *handler) onVariables(req *dap.VariablesRequest) {
	resp := &dap.VariablesResponse{}
	resp.Response = h.respondTo(&req.Request)

	v, err := h.server.manager.Variable(req.Arguments.VariablesReference)
	if err != nil {
		h.fail(&resp.Response, err)
		h.send(resp)
		return
	}
	resp.Body.Variables = []dap.Variable{}
	// Every child is a named child; there is nothing to page by index.
	if req.Arguments.Filter == "indexed" {
		h.send(resp)
		return
	}
	f := translateFormat(req.Arguments.Format)
	children := v.Children(f)
	start, end := page(len(children), req.Arguments.Start, req.Arguments.Count)
	for _, c := range children[start:end] {
		resp.Body.Variables = append(resp.Body.Variables, translateVariable(c.Data(f)))
	}
	h.send(resp)
}

func (h *handler) onEvaluate(ctx context.Context, req *dap.EvaluateRequest) {
	resp := &dap.EvaluateResponse{}
	resp.Response = h.respondTo(&req.Request)

	if h.currentTracker() == nil {
		resp.Success = false
		resp.Message = "not paused"
		h.send(resp)
		return
	}
	frameID := req.Arguments.FrameId
	if frameID == 0 {
		frameID = h.topFrame()
	}
	v, err := h.server.manager.Evaluate(ctx, frameID, req.Arguments.Expression)
	if err != nil {
		h.fail(&resp.Response, err)
		h.send(resp)
		return
	}
	d := v.Data(translateFormat(req.Arguments.Format))
	resp.Body.Result = d.Value
	resp.Body.Type = d.Type
	resp.Body.VariablesReference = d.VariablesReference
	resp.Body.NamedVariables = d.NamedVariables
	h.send(resp)
}

func (h *handler) onDisconnect(req *dap.DisconnectRequest) {
	h.release()

	resp := &dap.DisconnectResponse{}
	resp.Response = h.respondTo(&req.Request)
	h.send(resp)

	h.send(&dap.TerminatedEvent{
		Event: h.newEvent("terminated"),
	})
	h.server.close()
}

// resume answers a resume request, releases the current stop and runs the
// debuggee to its next stop.
func (h *handler) resume(ctx context.Context, resp dap.ResponseMessage) {
	if h.currentTracker() == nil {
		r := resp.GetResponse()
		r.Success = false
		r.Message = "not paused"
		h.send(resp)
		return
	}
	h.send(resp)
	h.release()
	h.advance(ctx)
}

// advance runs the debuggee until it stops and tracks the new stop.
func (h *handler) advance(ctx context.Context) {
	stop, err := h.server.debuggee.Next(ctx)
	if err != nil {
		h.mu.Lock()
		h.finished = true
		h.mu.Unlock()
		exitCode := 0
		if !errors.Is(err, io.EOF) {
			h.server.logger.WithError(err).Error("dap: debuggee failed")
			exitCode = 1
		}
		evt := &dap.ExitedEvent{Event: h.newEvent("exited")}
		evt.Body.ExitCode = exitCode
		h.send(evt)
		h.send(&dap.TerminatedEvent{Event: h.newEvent("terminated")})
		return
	}

	t := h.server.manager.Begin(ctx)
	for _, th := range stop.Threads {
		if _, err := t.TrackStack(th); err != nil {
			h.server.logger.WithError(err).WithField("thread", th.ID).Error("dap: cannot track thread")
		}
	}
	h.mu.Lock()
	h.tracker = t
	h.stop = stop
	h.mu.Unlock()

	evt := &dap.StoppedEvent{Event: h.newEvent("stopped")}
	evt.Body.Reason = stop.Reason
	evt.Body.AllThreadsStopped = true
	if len(stop.Threads) > 0 {
		evt.Body.ThreadId = int(stop.Threads[0].ID)
	}
	h.send(evt)
}

// release closes the tracker of the current stop, invalidating every
// reference handed out for it.
func (h *handler) release() {
	h.mu.Lock()
	t := h.tracker
	h.tracker = nil
	h.stop = nil
	h.mu.Unlock()
	if t != nil {
		h.server.manager.End(t)
	}
}

func (h *handler) currentTracker() *suspended.Tracker {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracker
}

// topFrame returns the innermost frame of the first stopped thread.
func (h *handler) topFrame() int {
	t := h.currentTracker()
	if t == nil {
		return 0
	}
	for _, id := range t.Threads() {
		if frames := t.Frames(id); len(frames) > 0 {
			return frames[0].Ref
		}
	}
	return 0
}

// --- helpers ---

func (h *handler) fail(resp *dap.Response, err error) {
	resp.Success = false
	resp.Message = err.Error()
}

func (h *handler) sendError(req *dap.Request, msg string) {
	resp := &dap.ErrorResponse{}
	resp.Response = h.respondTo(req)
	resp.Success = false
	resp.Message = msg
	h.send(resp)
}

// respondTo returns a successful response header answering req.
func (h *handler) respondTo(req *dap.Request) dap.Response {
	return dap.Response{
		ProtocolMessage: dap.ProtocolMessage{Type: "response", Seq: h.server.nextSeq()},
		Command:         req.Command,
		RequestSeq:      req.Seq,
		Success:         true,
	}
}

func (h *handler) newEvent(event string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event", Seq: h.server.nextSeq()},
		Event:           event,
	}
}

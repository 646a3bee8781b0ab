package suspended

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/luthersystems/framevars/resolver"
	"github.com/luthersystems/framevars/valfmt"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const thread1 ThreadID = 1

var hexFormat = valfmt.Format{Hex: true}

func getFrame() *Frame {
	var1 := 1
	return &Frame{
		Name: "getFrame",
		File: "frames_test.go",
		Line: 12,
		Locals: []Local{
			{Name: "var3", Value: map[int][]int{33: {var1}}},
			{Name: "var1", Value: var1},
			{Name: "var2", Value: []int{var1}},
		},
	}
}

func childNames(vars []*Variable) []string {
	out := make([]string, len(vars))
	for i, v := range vars {
		out[i] = v.Name()
	}
	return out
}

func dataByName(vars []*Variable, f valfmt.Format) map[string]Data {
	out := make(map[string]Data, len(vars))
	for _, v := range vars {
		out[v.Name()] = v.Data(f)
	}
	return out
}

func childByName(t *testing.T, vars []*Variable, name string) *Variable {
	t.Helper()
	for _, v := range vars {
		if v.Name() == name {
			return v
		}
	}
	require.FailNow(t, "missing child", name)
	return nil
}

// popRef clears and returns the reference of data[name]; reference values
// are not predictable.
func popRef(data map[string]Data, name string) int {
	d := data[name]
	ref := d.VariablesReference
	d.VariablesReference = 0
	data[name] = d
	return ref
}

func readOnly() *PresentationHint {
	return &PresentationHint{Attributes: []string{AttrReadOnly}}
}

func TestSuspendedFramesManager(t *testing.T) {
	m := NewManager()
	err := m.TrackFrames(context.Background(), func(tracker *Tracker) error {
		refs, err := tracker.Track(thread1, getFrame(), nil)
		require.NoError(t, err)
		require.Len(t, refs, 1)

		thread, err := m.ThreadFor(refs[0])
		require.NoError(t, err)
		assert.Equal(t, thread1, thread)

		variable, err := m.Variable(refs[0])
		require.NoError(t, err)

		// Sorted by name.
		assert.Equal(t, []string{"var1", "var2", "var3"}, childNames(variable.Children(valfmt.Decimal)))

		data := dataByName(variable.Children(valfmt.Decimal), valfmt.Decimal)
		assert.Positive(t, popRef(data, "var2"))
		assert.Positive(t, popRef(data, "var3"))
		assert.Equal(t, map[string]Data{
			"var1": {Name: "var1", Value: "1", Type: "int", EvaluateName: "var1"},
			"var2": {Name: "var2", Value: "[1]", Type: "[]int", EvaluateName: "var2", NamedVariables: 1},
			"var3": {Name: "var3", Value: "{33: [1]}", Type: "map[int][]int", EvaluateName: "var3", NamedVariables: 1},
		}, data)

		// Same thing with hex formatting.
		data = dataByName(variable.Children(valfmt.Decimal), hexFormat)
		assert.Positive(t, popRef(data, "var2"))
		assert.Positive(t, popRef(data, "var3"))
		assert.Equal(t, map[string]Data{
			"var1": {Name: "var1", Value: "0x1", Type: "int", EvaluateName: "var1"},
			"var2": {Name: "var2", Value: "[0x1]", Type: "[]int", EvaluateName: "var2", NamedVariables: 1},
			"var3": {Name: "var3", Value: "{0x21: [0x1]}", Type: "map[int][]int", EvaluateName: "var3", NamedVariables: 1},
		}, data)

		var2 := childByName(t, variable.Children(valfmt.Decimal), "var2")
		assert.Equal(t, map[string]Data{
			"0":              {Name: "0", Value: "1", Type: "int", EvaluateName: "var2[0]"},
			resolver.LenAttr: {Name: resolver.LenAttr, Value: "1", Type: "int", EvaluateName: "len(var2)", PresentationHint: readOnly()},
		}, dataByName(var2.Children(valfmt.Decimal), valfmt.Decimal))

		var3 := childByName(t, variable.Children(valfmt.Decimal), "var3")
		data = dataByName(var3.Children(valfmt.Decimal), valfmt.Decimal)
		assert.Positive(t, popRef(data, "33"))
		assert.Equal(t, map[string]Data{
			"33":             {Name: "33", Value: "[1]", Type: "[]int", EvaluateName: "var3[33]", NamedVariables: 1},
			resolver.LenAttr: {Name: resolver.LenAttr, Value: "1", Type: "int", EvaluateName: "len(var3)", PresentationHint: readOnly()},
		}, data)
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, m.Len())
}

func TestVariable_NewReferencePerFetch(t *testing.T) {
	m := NewManager()
	tracker := m.Begin(context.Background())
	defer m.End(tracker)
	refs, err := tracker.Track(thread1, getFrame(), nil)
	require.NoError(t, err)
	frame, err := m.Variable(refs[0])
	require.NoError(t, err)

	first := childByName(t, frame.Children(valfmt.Decimal), "var2")
	second := childByName(t, frame.Children(valfmt.Decimal), "var2")
	ref := first.Reference()
	assert.Equal(t, ref, first.Reference(), "a node keeps its reference")
	assert.NotEqual(t, ref, second.Reference(), "a new fetch gets a new reference")

	got, err := m.Variable(ref)
	require.NoError(t, err)
	assert.Same(t, first, got)
	thread, err := m.ThreadFor(ref)
	require.NoError(t, err)
	assert.Equal(t, thread1, thread)
}

const numberOfItems = resolver.MaxItems + 300

func largeFrames() map[string]*Frame {
	dict := make(map[int]int, numberOfItems)
	set := make(map[int]struct{}, numberOfItems)
	tuple := make([]int, numberOfItems)
	for i := 0; i < numberOfItems; i++ {
		dict[i] = 1
		set[i] = struct{}{}
		tuple[i] = i
	}
	frames := make(map[string]*Frame)
	for name, obj := range map[string]any{"dict": dict, "set": set, "tuple": tuple} {
		frames[name] = &Frame{Name: "get_" + name + "_large_frame", Locals: []Local{{Name: "obj", Value: obj}}}
	}
	return frames
}

func TestGetChildVariables(t *testing.T) {
	m := NewManager()
	for name, frame := range largeFrames() {
		frame := frame
		t.Run(name, func(t *testing.T) {
			err := m.TrackFrames(context.Background(), func(tracker *Tracker) error {
				refs, err := tracker.Track(thread1, frame, nil)
				require.NoError(t, err)
				thread, err := m.ThreadFor(refs[0])
				require.NoError(t, err)
				assert.Equal(t, thread1, thread)

				variable, err := m.Variable(refs[0])
				require.NoError(t, err)
				obj, err := variable.ChildNamed("obj", valfmt.Decimal)
				require.NoError(t, err)
				children := obj.Children(valfmt.Decimal)
				assert.Less(t, len(children), numberOfItems)

				var foundTooLarge, foundLen bool
				for _, c := range children {
					switch c.Name() {
					case resolver.TooLargeAttr:
						d := c.Data(valfmt.Decimal)
						require.NotNil(t, d.PresentationHint)
						assert.Contains(t, d.PresentationHint.Attributes, AttrReadOnly)
						assert.Equal(t, resolver.TooLargeMsg, d.Value)
						assert.Zero(t, d.VariablesReference)
						foundTooLarge = true
					case resolver.LenAttr:
						assert.Equal(t, fmt.Sprint(numberOfItems), c.Data(valfmt.Decimal).Value)
						foundLen = true
					}
				}
				assert.True(t, foundTooLarge, "expected a child named %s", resolver.TooLargeAttr)
				assert.True(t, foundLen, "expected a child named %s", resolver.LenAttr)
				return nil
			})
			require.NoError(t, err)
		})
	}
}

func TestTracker_Close(t *testing.T) {
	m := NewManager()
	tracker := m.Begin(context.Background())
	refs, err := tracker.Track(thread1, getFrame(), nil)
	require.NoError(t, err)
	frame, err := m.Variable(refs[0])
	require.NoError(t, err)
	var2 := childByName(t, frame.Children(valfmt.Decimal), "var2")
	ref := var2.Reference()
	require.Positive(t, ref)
	assert.Equal(t, 2, m.Len())

	require.NoError(t, tracker.Close())
	require.NoError(t, tracker.Close(), "close is idempotent")
	assert.True(t, tracker.Closed())
	assert.Zero(t, m.Len())
	assert.Empty(t, m.Threads())

	_, err = m.Variable(ref)
	assert.ErrorIs(t, err, ErrUnknownReference)
	_, err = m.ThreadFor(refs[0])
	assert.ErrorIs(t, err, ErrUnknownReference)
	_, err = m.Frame(refs[0])
	assert.ErrorIs(t, err, ErrUnknownReference)

	// Nodes still held by a client can be rendered but mint nothing.
	fresh := childByName(t, frame.Children(valfmt.Decimal), "var3")
	assert.Zero(t, fresh.Data(valfmt.Decimal).VariablesReference)
	assert.Zero(t, m.Len())

	_, err = tracker.Track(thread1, getFrame(), nil)
	assert.ErrorIs(t, err, ErrTrackerClosed)
}

func TestManager_UnknownReference(t *testing.T) {
	m := NewManager()
	for _, ref := range []int{0, -1, 12345} {
		_, err := m.Variable(ref)
		assert.ErrorIs(t, err, ErrUnknownReference)
		_, err = m.ThreadFor(ref)
		assert.ErrorIs(t, err, ErrUnknownReference)
	}
}

func TestManager_TrackersAreIndependent(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	a := m.Begin(ctx)
	b := m.Begin(ctx)
	refsA, err := a.Track(1, getFrame(), nil)
	require.NoError(t, err)
	refsB, err := b.Track(2, getFrame(), nil)
	require.NoError(t, err)
	assert.NotEqual(t, refsA[0], refsB[0], "references are unique across trackers")
	assert.Equal(t, []ThreadID{1, 2}, m.Threads())

	m.End(a)
	_, err = m.Variable(refsA[0])
	assert.ErrorIs(t, err, ErrUnknownReference)
	v, err := m.Variable(refsB[0])
	require.NoError(t, err)
	assert.Equal(t, ThreadID(2), v.Thread())
	assert.Equal(t, []ThreadID{2}, m.Threads())

	tr, ok := m.TrackerFor(2)
	require.True(t, ok)
	assert.Same(t, b, tr)
	_, ok = m.TrackerFor(1)
	assert.False(t, ok)
	m.End(b)
}

func TestManager_RebindWarns(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	m := NewManager(WithLogger(logger))
	ctx := context.Background()
	a := m.Begin(ctx)
	b := m.Begin(ctx)
	_, err := a.Track(1, getFrame(), nil)
	require.NoError(t, err)
	_, err = b.Track(1, getFrame(), nil)
	require.NoError(t, err)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned = true
			assert.Equal(t, ThreadID(1), e.Data["thread"])
		}
	}
	assert.True(t, warned)

	// Closing the older tracker leaves the newer binding in place.
	m.End(a)
	tr, ok := m.TrackerFor(1)
	require.True(t, ok)
	assert.Same(t, b, tr)
	m.End(b)
}

func TestTracker_Untrack(t *testing.T) {
	m := NewManager()
	tracker := m.Begin(context.Background())
	defer m.End(tracker)
	refs1, err := tracker.Track(1, getFrame(), nil)
	require.NoError(t, err)
	refs2, err := tracker.Track(2, getFrame(), nil)
	require.NoError(t, err)
	frame1, err := m.Variable(refs1[0])
	require.NoError(t, err)
	child := childByName(t, frame1.Children(valfmt.Decimal), "var2")
	childRef := child.Reference()

	tracker.Untrack(1)
	tracker.Untrack(1)
	assert.Equal(t, []ThreadID{2}, tracker.Threads())
	assert.Equal(t, []ThreadID{2}, m.Threads())
	assert.Empty(t, tracker.Frames(1))
	for _, ref := range []int{refs1[0], childRef} {
		_, err = m.Variable(ref)
		assert.ErrorIs(t, err, ErrUnknownReference)
	}
	// Values of the resumed thread mint nothing.
	fresh := childByName(t, frame1.Children(valfmt.Decimal), "var3")
	assert.Zero(t, fresh.Reference())

	_, err = m.Variable(refs2[0])
	assert.NoError(t, err)
}

func TestTracker_ReleasedNodesReportNoReference(t *testing.T) {
	m := NewManager()
	tracker := m.Begin(context.Background())
	refs1, err := tracker.Track(1, getFrame(), nil)
	require.NoError(t, err)
	_, err = tracker.Track(2, getFrame(), nil)
	require.NoError(t, err)
	frame1, err := m.Variable(refs1[0])
	require.NoError(t, err)
	var3 := childByName(t, frame1.Children(valfmt.Decimal), "var3")
	require.Positive(t, var3.Reference())

	tracker.Untrack(1)
	assert.Zero(t, frame1.Data(valfmt.Decimal).VariablesReference)
	assert.Zero(t, var3.Data(valfmt.Decimal).VariablesReference)
	assert.Zero(t, var3.Reference())

	// Tracking the thread again does not revive the old nodes.
	refs1b, err := tracker.Track(1, getFrame(), nil)
	require.NoError(t, err)
	assert.Zero(t, frame1.Reference())
	assert.Zero(t, var3.Reference())
	frame1b, err := m.Variable(refs1b[0])
	require.NoError(t, err)
	assert.Equal(t, refs1b[0], frame1b.Data(valfmt.Decimal).VariablesReference)

	m.End(tracker)
	assert.Zero(t, frame1b.Data(valfmt.Decimal).VariablesReference)
}

func TestTracker_CallerChain(t *testing.T) {
	caller := &Frame{Name: "main", File: "main.go", Line: 3, Locals: []Local{{Name: "args", Value: []string{"a"}}}}
	callee := getFrame()
	callee.Caller = caller

	m := NewManager()
	tracker := m.Begin(context.Background())
	defer m.End(tracker)
	refs, err := tracker.TrackStack(ThreadStack{
		ID:        7,
		Name:      "worker",
		Top:       callee,
		LineHints: map[*Frame]int{caller: 9},
	})
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "worker", tracker.ThreadName(7))

	frames := m.FramesFor(7)
	require.Len(t, frames, 2)
	assert.Equal(t, refs[0], frames[0].Ref)
	assert.Equal(t, "getFrame", frames[0].Frame.Name)
	assert.Equal(t, 12, frames[0].Line)
	assert.Equal(t, "main", frames[1].Frame.Name)
	assert.Equal(t, 9, frames[1].Line, "line hints override the frame line")

	tf, err := m.Frame(refs[1])
	require.NoError(t, err)
	assert.Same(t, frames[1], tf)
	d := tf.Variable().Data(valfmt.Decimal)
	assert.Equal(t, "main.go:9", d.Value)
	assert.Equal(t, refs[1], d.VariablesReference)
	assert.Equal(t, []string{"args"}, childNames(tf.Variable().Children(valfmt.Decimal)))

	// A value reference is not a frame.
	args := tf.Variable().Children(valfmt.Decimal)[0]
	_, err = m.Frame(args.Reference())
	assert.ErrorIs(t, err, ErrUnknownReference)
}

func TestTracker_CyclicCallers(t *testing.T) {
	a := &Frame{Name: "a"}
	b := &Frame{Name: "b", Caller: a}
	a.Caller = b
	m := NewManager()
	err := m.TrackFrames(context.Background(), func(tracker *Tracker) error {
		refs, err := tracker.Track(thread1, a, nil)
		assert.Len(t, refs, 2)
		return err
	})
	assert.NoError(t, err)
}

func TestFrame_HiddenAndShadowedLocals(t *testing.T) {
	frame := &Frame{Name: "f", Locals: []Local{
		{Name: "x", Value: 1},
		{Name: "_", Value: 2},
		{Name: "~r0", Value: 3},
		{Name: ".autotmp_1", Value: 4},
		{Name: "x", Value: 5},
	}}
	m := NewManager()
	tracker := m.Begin(context.Background())
	defer m.End(tracker)
	refs, err := tracker.Track(thread1, frame, nil)
	require.NoError(t, err)
	v, err := m.Variable(refs[0])
	require.NoError(t, err)
	children := v.Children(valfmt.Decimal)
	require.Equal(t, []string{"x"}, childNames(children))
	assert.Equal(t, 5, children[0].Value())

	_, err = v.ChildNamed("_", valfmt.Decimal)
	assert.ErrorIs(t, err, ErrNoSuchChild)
}

type explodingStringer struct{}

func (explodingStringer) String() string { panic("cannot stringify") }

type wallet struct {
	Owner string
	Coins []int
	bad   explodingStringer
}

func TestVariable_ErrorLeaf(t *testing.T) {
	frame := &Frame{Name: "f", Locals: []Local{
		{Name: "boom", Value: explodingStringer{}},
		{Name: "ok", Value: 1},
	}}
	m := NewManager()
	tracker := m.Begin(context.Background())
	defer m.End(tracker)
	refs, err := tracker.Track(thread1, frame, nil)
	require.NoError(t, err)
	v, err := m.Variable(refs[0])
	require.NoError(t, err)
	data := dataByName(v.Children(valfmt.Decimal), valfmt.Decimal)
	assert.Equal(t, ErrorType, data["boom"].Type)
	assert.Contains(t, data["boom"].Value, "cannot stringify")
	assert.Zero(t, data["boom"].VariablesReference)
	assert.Equal(t, "1", data["ok"].Value)
}

func TestVariable_Attributes(t *testing.T) {
	frame := &Frame{Name: "f", Locals: []Local{
		{Name: "w", Value: &wallet{Owner: "ann", Coins: []int{1, 2}, bad: explodingStringer{}}},
	}}
	m := NewManager()
	tracker := m.Begin(context.Background())
	defer m.End(tracker)
	refs, err := tracker.Track(thread1, frame, nil)
	require.NoError(t, err)
	v, err := m.Variable(refs[0])
	require.NoError(t, err)
	w, err := v.ChildNamed("w", valfmt.Decimal)
	require.NoError(t, err)
	assert.True(t, w.HasChildren())
	d := w.Data(valfmt.Decimal)
	assert.Zero(t, d.NamedVariables, "structs have no size")

	children := w.Children(valfmt.Decimal)
	assert.Equal(t, []string{"Owner", "Coins"}, childNames(children))
	assert.Equal(t, "w.Owner", children[0].EvaluateName())
	coins := children[1].Children(valfmt.Decimal)
	assert.Equal(t, []string{"0", "1", resolver.LenAttr}, childNames(coins))
	assert.Equal(t, "w.Coins[1]", coins[1].EvaluateName())
	assert.Equal(t, "len(w.Coins)", coins[2].EvaluateName())

	_, err = w.ChildNamed("bad", valfmt.Decimal)
	assert.ErrorIs(t, err, ErrNoSuchChild)
}

func TestVariable_MapKeyExpressions(t *testing.T) {
	frame := &Frame{Name: "f", Locals: []Local{
		{Name: "byName", Value: map[string]int{"a b": 1}},
		{Name: "byFlag", Value: map[bool]string{true: "yes"}},
		{Name: "byPoint", Value: map[[2]int]int{{1, 2}: 3}},
		{Name: "set", Value: map[string]struct{}{"x": {}}},
	}}
	m := NewManager()
	tracker := m.Begin(context.Background())
	defer m.End(tracker)
	refs, err := tracker.Track(thread1, frame, nil)
	require.NoError(t, err)
	v, err := m.Variable(refs[0])
	require.NoError(t, err)

	expr := func(local string) string {
		c, err := v.ChildNamed(local, valfmt.Decimal)
		require.NoError(t, err)
		return c.Children(valfmt.Decimal)[0].EvaluateName()
	}
	assert.Equal(t, `byName["a b"]`, expr("byName"))
	assert.Equal(t, `byFlag[true]`, expr("byFlag"))
	assert.Equal(t, "", expr("byPoint"), "keys without a literal form")
	assert.Equal(t, "", expr("set"), "set members are not addressable")
}

func TestManager_Concurrency(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(thread ThreadID) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				err := m.TrackFrames(ctx, func(tracker *Tracker) error {
					refs, err := tracker.Track(thread, getFrame(), nil)
					if err != nil {
						return err
					}
					v, err := m.Variable(refs[0])
					if err != nil {
						return err
					}
					for _, c := range v.Children(valfmt.Decimal) {
						d := c.Data(hexFormat)
						if d.VariablesReference == 0 {
							continue
						}
						if _, err := m.Variable(d.VariablesReference); err != nil {
							return err
						}
					}
					return nil
				})
				assert.NoError(t, err)
			}
		}(ThreadID(i))
	}
	wg.Wait()
	assert.Zero(t, m.Len())
	assert.Empty(t, m.Threads())
}

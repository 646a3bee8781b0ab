package dapserver

import (
	"testing"

	"github.com/google/go-dap"
	"github.com/luthersystems/framevars/suspended"
	"github.com/luthersystems/framevars/valfmt"
	"github.com/stretchr/testify/assert"
)

func TestPage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n, start, count int
		wantStart       int
		wantEnd         int
	}{
		{10, 0, 0, 0, 10},
		{10, 2, 3, 2, 5},
		{10, 8, 5, 8, 10},
		{10, 12, 1, 10, 10},
		{10, -1, 2, 0, 2},
		{0, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		start, end := page(tt.n, tt.start, tt.count)
		assert.Equal(t, tt.wantStart, start, "page(%d, %d, %d)", tt.n, tt.start, tt.count)
		assert.Equal(t, tt.wantEnd, end, "page(%d, %d, %d)", tt.n, tt.start, tt.count)
	}
}

func TestResolveSourcePath(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "/abs/a.go", resolveSourcePath("/abs/a.go", "/root"))
	assert.Equal(t, "/root/pkg/a.go", resolveSourcePath("pkg/a.go", "/root"))
	assert.Equal(t, "pkg/a.go", resolveSourcePath("pkg/a.go", ""))
	assert.Equal(t, "", resolveSourcePath("", "/root"))
}

func TestTranslateVariable(t *testing.T) {
	t.Parallel()
	v := translateVariable(suspended.Data{
		Name:             "__len__",
		Value:            "3",
		Type:             "int",
		EvaluateName:     "len(xs)",
		PresentationHint: &suspended.PresentationHint{Attributes: []string{suspended.AttrReadOnly}},
	})
	assert.Equal(t, "len(xs)", v.EvaluateName)
	assert.Zero(t, v.VariablesReference)
	if assert.NotNil(t, v.PresentationHint) {
		assert.Equal(t, []string{"readOnly"}, v.PresentationHint.Attributes)
	}
	assert.Nil(t, translateVariable(suspended.Data{Name: "x"}).PresentationHint)
}

func TestTranslateFormat(t *testing.T) {
	t.Parallel()
	assert.Equal(t, valfmt.Decimal, translateFormat(nil))
	assert.True(t, translateFormat(&dap.ValueFormat{Hex: true}).Hex)
}

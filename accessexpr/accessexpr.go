// Copyright © 2018 The ELPS authors

/*
Package accessexpr parses the access expressions produced as variable
evaluate names.

	expr     := <lencall> | <path>
	lencall  := 'len' '(' <path> ')'
	path     := <ident> <accessor>*
	accessor := '.' <ident> | '[' <key> ']'
	key      := <string> | <int> | 'true' | 'false'
	int      := /-?(0x[0-9a-f]+|[0-9]+)/
*/
package accessexpr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/luthersystems/framevars/valfmt"
	parsec "github.com/prataprc/goparsec"
)

// StepKind is the kind of an accessor.
type StepKind int

const (
	// Field selects a named attribute, x.Name.
	Field StepKind = iota
	// Index selects by subscript, x[key].
	Index
)

// Step is one accessor applied to the value on its left.
type Step struct {
	Kind StepKind
	// Name is the attribute name of a Field step.
	Name string
	// Key is the subscript of an Index step: an int64, a string or a bool.
	Key any
}

// ChildName returns the name of the child the step selects, as children are
// named when enumerated in decimal format.
func (s Step) ChildName() string {
	if s.Kind == Field {
		return s.Name
	}
	return valfmt.KeyName(s.Key, valfmt.Decimal)
}

func (s Step) String() string {
	if s.Kind == Field {
		return "." + s.Name
	}
	if k, ok := s.Key.(string); ok {
		return "[" + strconv.Quote(k) + "]"
	}
	return fmt.Sprintf("[%v]", s.Key)
}

// Path is a parsed expression: a root local followed by accessors,
// optionally wrapped in len().
type Path struct {
	Root  string
	Steps []Step
	Len   bool
}

func (p *Path) String() string {
	var b strings.Builder
	b.WriteString(p.Root)
	for _, s := range p.Steps {
		b.WriteString(s.String())
	}
	if p.Len {
		return "len(" + b.String() + ")"
	}
	return b.String()
}

// SyntaxError reports an expression that could not be parsed.
type SyntaxError struct {
	Expr   string
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid expression %q at offset %d: %s", e.Expr, e.Offset, e.Msg)
}

// Parse parses expr.
func Parse(expr string) (*Path, error) {
	s := parsec.NewScanner([]byte(expr))
	root, s := newParser()(s)
	if root == nil {
		return nil, &SyntaxError{Expr: expr, Offset: 0, Msg: "expected identifier or len()"}
	}
	if err, ok := root.(error); ok {
		return nil, &SyntaxError{Expr: expr, Offset: s.GetCursor(), Msg: err.Error()}
	}
	_, s = s.SkipWS()
	if !s.Endof() {
		return nil, &SyntaxError{Expr: expr, Offset: s.GetCursor(), Msg: "unexpected trailing text"}
	}
	return root.(*Path), nil
}

func newParser() parsec.Parser {
	dot := parsec.Atom(".", "DOT")
	openB := parsec.Atom("[", "OPENB")
	closeB := parsec.Atom("]", "CLOSEB")
	openP := parsec.Atom("(", "OPENP")
	closeP := parsec.Atom(")", "CLOSEP")
	lenKw := parsec.Atom("len", "LEN")
	ident := parsec.Token(`[\pL_][\pL\p{Nd}_]*`, "IDENT")
	intLit := parsec.Token(`-?(?:0[xX][0-9a-fA-F]+|[0-9]+)`, "INT")
	boolLit := parsec.Token(`(?:true|false)\b`, "BOOL")

	key := parsec.OrdChoice(keyNode, parsec.String(), intLit, boolLit)
	field := parsec.And(fieldNode, dot, ident)
	index := parsec.And(indexNode, openB, key, closeB)
	accessors := parsec.Kleene(accessorsNode, parsec.OrdChoice(first, field, index))
	path := parsec.And(pathNode, ident, accessors)
	lenCall := parsec.And(lenNode, lenKw, openP, path, closeP)
	return parsec.OrdChoice(first, lenCall, path)
}

type accessorList []parsec.ParsecNode

func first(nodes []parsec.ParsecNode) parsec.ParsecNode {
	return nodes[0]
}

func keyNode(nodes []parsec.ParsecNode) parsec.ParsecNode {
	switch n := nodes[0].(type) {
	case string:
		// goparsec hands back the unescaped text wrapped in quotes.
		return n[1 : len(n)-1]
	case *parsec.Terminal:
		switch n.Name {
		case "BOOL":
			return n.Value == "true"
		case "INT":
			base := 10
			if strings.ContainsAny(n.Value, "xX") {
				base = 0
			}
			i, err := strconv.ParseInt(n.Value, base, 64)
			if err != nil {
				return fmt.Errorf("bad integer %s", n.Value)
			}
			return i
		}
	}
	return fmt.Errorf("unexpected key %v", nodes[0])
}

func fieldNode(nodes []parsec.ParsecNode) parsec.ParsecNode {
	return Step{Kind: Field, Name: nodes[1].(*parsec.Terminal).Value}
}

func indexNode(nodes []parsec.ParsecNode) parsec.ParsecNode {
	if err, ok := nodes[1].(error); ok {
		return err
	}
	return Step{Kind: Index, Key: nodes[1]}
}

func accessorsNode(nodes []parsec.ParsecNode) parsec.ParsecNode {
	return accessorList(nodes)
}

func pathNode(nodes []parsec.ParsecNode) parsec.ParsecNode {
	p := &Path{Root: nodes[0].(*parsec.Terminal).Value}
	for _, n := range nodes[1].(accessorList) {
		switch n := n.(type) {
		case error:
			return n
		case Step:
			p.Steps = append(p.Steps, n)
		}
	}
	return p
}

func lenNode(nodes []parsec.ParsecNode) parsec.ParsecNode {
	p, ok := nodes[2].(*Path)
	if !ok {
		return nodes[2]
	}
	p.Len = true
	return p
}

// Copyright © 2018 The ELPS authors

package navrepl

import (
	"fmt"
	"io"
	"strings"

	"github.com/luthersystems/framevars/suspended"
	"github.com/muesli/reflow/truncate"
)

// showFrame prints one line describing a tracked frame.
func showFrame(w io.Writer, i int, tf *suspended.TrackedFrame, current bool) {
	mark := " "
	if current {
		mark = "*"
	}
	fmt.Fprintf(w, "%s #%d %s at %s:%d [%d]\n", mark, i, tf.Frame.Name, tf.Frame.File, tf.Line, tf.Ref) //nolint:errcheck
}

// showVariable prints a variable as "name = value (type)", followed by its
// reference when it can be expanded.
func showVariable(w io.Writer, d suspended.Data, width int) {
	var b strings.Builder
	b.WriteString(d.Name)
	b.WriteString(" = ")
	b.WriteString(d.Value)
	line := b.String()
	if width > 0 {
		line = truncate.StringWithTail(line, uint(width), "...")
	}
	suffix := " (" + d.Type + ")"
	if d.VariablesReference > 0 {
		suffix += fmt.Sprintf(" #%d", d.VariablesReference)
	}
	fmt.Fprintln(w, line+suffix) //nolint:errcheck
}

func showHelp(w io.Writer) {
	fmt.Fprint(w, `commands:
  threads             list stopped threads
  thread <id>         select a thread
  frames (bt)         list frames of the current thread
  frame (f) <index>   select a frame
  ls (l)              list variables at the current position
  cd <name|#ref>      enter a variable
  cd ..               leave the current variable
  cd /                return to the frame
  pwd                 show the current position
  print (p) <expr>    evaluate an access expression
  hex [on|off]        toggle hexadecimal integers
  continue (c)        resume until the next stop
  help (h)            show this help
  quit (q)            leave the shell
`) //nolint:errcheck
}

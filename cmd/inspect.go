// Copyright © 2018 The ELPS authors

package cmd

import (
	"fmt"
	"io"

	"github.com/luthersystems/framevars/snapshot"
	"github.com/luthersystems/framevars/suspended"
	"github.com/luthersystems/framevars/valfmt"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type inspectOptions struct {
	format valfmt.Format
	depth  int
	width  int
	// stop selects a single stop, counting from 1. Zero selects all.
	stop int
}

// InspectCommand returns the inspect subcommand.
func InspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [flags] SNAPSHOT",
		Short: "Print the variables of each stop in a snapshot",
		Long: `Print the threads, frames and variables of each stop in a snapshot.

Variables are expanded --depth levels below each frame. Expansion follows the
same rules a debugger client sees: containers list at most 300 children and
sized containers report their length as __len__.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.LoadFile(args[0])
			if err != nil {
				return err
			}
			opts := inspectOptions{
				format: valfmt.Format{Hex: viper.GetBool("inspect.hex")},
				depth:  viper.GetInt("inspect.depth"),
				width:  viper.GetInt("inspect.width"),
				stop:   viper.GetInt("inspect.stop"),
			}
			return inspect(cmd, newManager(), snap, opts)
		},
	}
	cmd.Flags().Bool("hex", false, "print integers in hexadecimal")
	cmd.Flags().Int("depth", 1, "levels of variables expanded below each frame")
	cmd.Flags().Int("width", 100, "wrap output at this many columns (0 disables wrapping)")
	cmd.Flags().Int("stop", 0, "print only this stop, counting from 1")
	for _, name := range []string{"hex", "depth", "width", "stop"} {
		_ = viper.BindPFlag("inspect."+name, cmd.Flags().Lookup(name))
	}
	return cmd
}

func inspect(cmd *cobra.Command, m *suspended.Manager, snap *snapshot.Snapshot, opts inspectOptions) error {
	w := cmd.OutOrStdout()
	if opts.stop < 0 || opts.stop > len(snap.Stops) {
		return fmt.Errorf("no stop %d (snapshot has %d)", opts.stop, len(snap.Stops))
	}
	for i, stop := range snap.Stops {
		if opts.stop != 0 && opts.stop != i+1 {
			continue
		}
		fmt.Fprintf(w, "stop %d: %s\n", i+1, stop.Reason) //nolint:errcheck
		err := m.TrackFrames(cmd.Context(), func(t *suspended.Tracker) error {
			for _, th := range stop.Threads {
				if _, err := t.TrackStack(th); err != nil {
					return err
				}
			}
			for _, id := range t.Threads() {
				writeLine(w, fmt.Sprintf("thread %d %s", id, t.ThreadName(id)), 1, opts.width)
				for j, tf := range t.Frames(id) {
					writeLine(w, fmt.Sprintf("#%d %s at %s:%d", j, tf.Frame.Name, tf.Frame.File, tf.Line), 2, opts.width)
					for _, v := range tf.Variable().Children(opts.format) {
						writeVariable(w, v, opts, 3, opts.depth)
					}
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("stop %d: %w", i+1, err)
		}
	}
	return nil
}

func writeVariable(w io.Writer, v *suspended.Variable, opts inspectOptions, level, depth int) {
	d := v.Data(opts.format)
	writeLine(w, fmt.Sprintf("%s = %s (%s)", d.Name, d.Value, d.Type), level, opts.width)
	if depth <= 0 || !v.HasChildren() {
		return
	}
	for _, c := range v.Children(opts.format) {
		writeVariable(w, c, opts, level+1, depth-1)
	}
}

// writeLine writes text indented two spaces per level and wrapped at width.
func writeLine(w io.Writer, text string, level, width int) {
	pad := uint(2 * level)
	if width > 0 && width > int(pad) {
		text = wordwrap.String(text, width-int(pad))
	}
	fmt.Fprintln(w, indent.String(text, pad)) //nolint:errcheck
}

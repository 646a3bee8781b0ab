// Copyright © 2018 The ELPS authors

package navrepl

import (
	"sort"
	"strings"
)

// navCommands lists all command names for tab completion.
var navCommands = []string{
	"cd",
	"continue",
	"frame",
	"frames",
	"help",
	"hex",
	"ls",
	"print",
	"pwd",
	"quit",
	"thread",
	"threads",
}

// navCompleter implements readline.AutoCompleter. It completes command
// names in the first word and child names of the current position after
// cd and print.
type navCompleter struct {
	s *session
}

func (c *navCompleter) Do(line []rune, pos int) ([][]rune, int) {
	start := pos
	for start > 0 && line[start-1] != ' ' && line[start-1] != '\t' {
		start--
	}
	prefix := string(line[start:pos])
	before := strings.Fields(string(line[:start]))

	var candidates []string
	switch {
	case len(before) == 0:
		for _, cmd := range navCommands {
			if strings.HasPrefix(cmd, prefix) {
				candidates = append(candidates, cmd)
			}
		}
	case len(before) == 1 && (before[0] == "cd" || before[0] == "print" || before[0] == "p"):
		candidates = c.childNames(prefix)
	}
	sort.Strings(candidates)

	out := make([][]rune, len(candidates))
	for i, cand := range candidates {
		out[i] = []rune(cand[len(prefix):])
	}
	return out, len(prefix)
}

func (c *navCompleter) childNames(prefix string) []string {
	if c.s.tracker == nil || c.s.frame == nil {
		return nil
	}
	var names []string
	for _, v := range c.s.current().Children(c.s.format) {
		if strings.HasPrefix(v.Name(), prefix) {
			names = append(names, v.Name())
		}
	}
	return names
}

// Copyright © 2018 The ELPS authors

package cmd

import (
	"github.com/luthersystems/framevars/navrepl"
	"github.com/luthersystems/framevars/snapshot"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ReplCommand returns the repl subcommand.
func ReplCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repl [flags] SNAPSHOT",
		Short: "Browse the stops of a snapshot interactively",
		Long: `Start an interactive shell positioned at the first stop of a snapshot.
Type help in the shell for the list of commands.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.LoadFile(args[0])
			if err != nil {
				return err
			}
			return navrepl.Run(cmd.Context(), newManager(), snapshot.NewReplay(snap),
				navrepl.WithStdout(cmd.OutOrStdout()),
				navrepl.WithWidth(viper.GetInt("repl.width")),
				navrepl.WithLogger(logrus.StandardLogger()))
		},
	}
	cmd.Flags().Int("width", 100, "truncate displayed values at this many columns (0 disables)")
	_ = viper.BindPFlag("repl.width", cmd.Flags().Lookup("width"))
	return cmd
}

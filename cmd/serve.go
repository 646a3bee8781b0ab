// Copyright © 2018 The ELPS authors

package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/luthersystems/framevars/dapserver"
	"github.com/luthersystems/framevars/snapshot"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ServeCommand returns the serve subcommand.
func ServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [flags] SNAPSHOT",
		Short: "Serve the stops of a snapshot to a DAP client",
		Long: `Start a Debug Adapter Protocol server that replays the stops of a
snapshot. Each continue or step request advances to the next stop; the
program exits after the last one.

Transport modes:
  --port N     Listen for a DAP client on TCP port N (default: 4711)
  --stdio      Use stdin/stdout for DAP communication (for editors that
               launch the debug adapter as a child process)

Examples:
  framevars serve stops.yaml
  framevars serve --port 9229 stops.yaml
  framevars serve --stdio --source-root ./src stops.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := snapshot.LoadFile(args[0])
			if err != nil {
				return err
			}
			var opts []dapserver.Option
			opts = append(opts, dapserver.WithLogger(logrus.StandardLogger()))
			if root := viper.GetString("serve.source-root"); root != "" {
				abs, err := filepath.Abs(root)
				if err != nil {
					return fmt.Errorf("cannot resolve source root: %w", err)
				}
				opts = append(opts, dapserver.WithSourceRoot(abs))
			}
			if tracerProvider != nil {
				opts = append(opts, dapserver.WithTracerProvider(tracerProvider))
			}
			srv := dapserver.New(newManager(), snapshot.NewReplay(snap), opts...)
			if viper.GetBool("serve.stdio") {
				logrus.Info("dap: using stdio transport")
				return srv.ServeStdio(os.Stdin, os.Stdout)
			}
			return srv.ServeTCP(fmt.Sprintf("localhost:%d", viper.GetInt("serve.port")))
		},
	}
	cmd.Flags().Int("port", 4711, "TCP port for the DAP server")
	cmd.Flags().Bool("stdio", false, "use stdin/stdout for DAP communication")
	cmd.Flags().String("source-root", "", "directory relative frame files are resolved against")
	for _, name := range []string{"port", "stdio", "source-root"} {
		_ = viper.BindPFlag("serve."+name, cmd.Flags().Lookup(name))
	}
	return cmd
}

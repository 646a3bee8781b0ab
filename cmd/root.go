// Copyright © 2018 The ELPS authors

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/luthersystems/framevars/resolver"
	"github.com/luthersystems/framevars/snapshot"
	"github.com/luthersystems/framevars/suspended"
	"github.com/luthersystems/framevars/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var cfgFile string

// tracerProvider is set while a command runs with --trace.
var tracerProvider *sdktrace.TracerProvider

// NewRootCommand returns the framevars command with every subcommand
// attached.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "framevars",
		Short: "Inspect the variables of suspended programs",
		Long: `framevars browses the variables of a program stopped in a debugger.

Stops are read from snapshot files (YAML or JSON) that capture the threads,
frames and local variables of each suspension.

Getting started:
  framevars inspect stops.yaml         Print every variable of every stop
  framevars inspect --hex stops.yaml   Print integers in hexadecimal
  framevars repl stops.yaml            Browse stops interactively
  framevars serve stops.yaml           Serve stops to a DAP client`,
		SilenceUsage:       true,
		PersistentPreRunE:  setup,
		PersistentPostRunE: teardown,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.framevars.yaml)")
	root.PersistentFlags().String("log-level", "warning", "log level: trace, debug, info, warning or error")
	root.PersistentFlags().Bool("trace", false, "log a span for each inspection step")
	_ = viper.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("trace", root.PersistentFlags().Lookup("trace"))

	root.AddCommand(InspectCommand(), ServeCommand(), ReplCommand())
	return root
}

// Execute runs the root command. This is called by main.main().
func Execute() {
	cobra.OnInitialize(initConfig)
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
		viper.SetConfigName(".framevars")
	}

	viper.SetEnvPrefix("FRAMEVARS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		logrus.WithField("file", viper.ConfigFileUsed()).Debug("using config file")
	}
}

func setup(cmd *cobra.Command, args []string) error {
	logrus.SetOutput(cmd.ErrOrStderr())
	level, err := logrus.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	logrus.SetLevel(level)
	if viper.GetBool("trace") {
		tracerProvider = telemetry.NewTracerProvider(logrus.StandardLogger(), logrus.InfoLevel)
	}
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if tracerProvider == nil {
		return nil
	}
	err := tracerProvider.Shutdown(context.Background())
	tracerProvider = nil
	return err
}

// newManager returns a manager that understands snapshot values.
func newManager() *suspended.Manager {
	reg := resolver.NewRegistry()
	snapshot.RegisterResolvers(reg)
	opts := []suspended.Option{
		suspended.WithRegistry(reg),
		suspended.WithLogger(logrus.StandardLogger()),
	}
	if tracerProvider != nil {
		opts = append(opts, suspended.WithTracerProvider(tracerProvider))
	}
	return suspended.NewManager(opts...)
}

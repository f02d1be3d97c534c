// autodelete: a self-scheduling agent which deletes old data from every
// camera on the dbserver once a day.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teslashibe/scv2-services/internal/config"
	"github.com/teslashibe/scv2-services/internal/log"
	"github.com/teslashibe/scv2-services/pkg/autodelete"
	"github.com/teslashibe/scv2-services/pkg/dbserver"
)

const version = "1.0.0"

type options struct {
	configPath      string
	protocol        string
	host            string
	port            int
	daysToKeep      float64
	deleteOnStartup bool
	deleteOnce      bool
	progress        bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "autodelete",
		Short:         "Auto-delete camera data older than a number of days, once a day",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	// Defaults shown in --help come from the environment, as before.
	cfg := config.Default()
	if loaded, err := config.Load(""); err == nil {
		cfg = loaded
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "Optional YAML config file")
	f.StringVar(&opts.protocol, "protocol", cfg.DBServer.Protocol, "Database server protocol")
	f.StringVar(&opts.host, "host", cfg.DBServer.Host, "Database server host/ip address")
	f.IntVar(&opts.port, "port", cfg.DBServer.Port, "Database server port")
	f.Float64Var(&opts.daysToKeep, "days-to-keep", cfg.AutoDelete.DaysToKeep, "Number of days to keep, when requesting deletion")
	f.BoolVar(&opts.deleteOnStartup, "delete-on-startup", cfg.AutoDelete.DeleteOnStartup, "Delete immediately on startup instead of waiting")
	f.BoolVar(&opts.deleteOnce, "delete-once", cfg.AutoDelete.DeleteOnce, "Delete immediately on startup, then exit")
	f.BoolVar(&opts.progress, "progress", false, "Show a per-camera progress bar on stderr")
	return cmd
}

// run applies flags over the loaded config; flags the user set always win.
func run(cmd *cobra.Command, opts options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if opts.configPath == "" || f.Changed("protocol") {
		cfg.DBServer.Protocol = opts.protocol
	}
	if opts.configPath == "" || f.Changed("host") {
		cfg.DBServer.Host = opts.host
	}
	if opts.configPath == "" || f.Changed("port") {
		cfg.DBServer.Port = opts.port
	}
	if opts.configPath == "" || f.Changed("days-to-keep") {
		cfg.AutoDelete.DaysToKeep = opts.daysToKeep
	}
	if opts.configPath == "" || f.Changed("delete-on-startup") {
		cfg.AutoDelete.DeleteOnStartup = opts.deleteOnStartup
	}
	if opts.configPath == "" || f.Changed("delete-once") {
		cfg.AutoDelete.DeleteOnce = opts.deleteOnce
	}

	log.Init(cfg.LogLevel)
	logger := log.L()

	db := dbserver.New(cfg.DBServer.URL(), dbserver.WithLogger(logger))
	agentOpts := []autodelete.Option{
		autodelete.WithLogger(logger.With("dbserver", db.BaseURL())),
		autodelete.WithDeleteOnStartup(cfg.AutoDelete.DeleteOnStartup),
		autodelete.WithDeleteOnce(cfg.AutoDelete.DeleteOnce),
	}
	if opts.progress {
		agentOpts = append(agentOpts, autodelete.WithProgress(os.Stderr))
	}

	agent := autodelete.New(db, cfg.AutoDelete.DaysToKeep, agentOpts...)
	if err := agent.Run(cmd.Context()); err != nil {
		return fmt.Errorf("%w (%s)", err, db.BaseURL())
	}
	logger.Info("closing")
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Command VisitDesk runs the clinic patient intake assistant.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/config"
	"github.com/BTreeMap/VisitDesk/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg      config.Config
	logger   *zap.Logger
	closeLog func() error
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}
	root := &cobra.Command{
		Use:           "visitdesk",
		Short:         "VisitDesk: patient intake over WhatsApp",
		Long:          "VisitDesk walks clinic staff through registering patients in a chat, stores them, and reports today's visits and the weekly load.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return a.close()
		},
	}
	config.RegisterFlags(root.PersistentFlags())
	root.AddCommand(
		newServeCmd(a),
		newTodayCmd(a),
		newWeekCmd(a),
		newTokenCmd(a),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	config.LoadDotEnv(nil)
	v, err := config.NewViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	l, closeLog, err := logger.New(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = l
	a.closeLog = closeLog
	a.logger.Debug("Configuration loaded",
		zap.String("state_dir", cfg.StateDir),
		zap.String("backend", cfg.Backend),
		zap.String("api_addr", cfg.APIAddr),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Bool("require_confirmation", cfg.RequireConfirmation),
		zap.Duration("idle_timeout", cfg.IdleTimeout),
		zap.Bool("openai_key_set", cfg.OpenAIKey != ""))
	return nil
}

func (a *app) close() error {
	if a.closeLog == nil {
		return nil
	}
	return a.closeLog()
}

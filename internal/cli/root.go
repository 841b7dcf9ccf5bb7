// Package cli: команды subgate.
package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Spok95/subgate/internal/app"
	"github.com/Spok95/subgate/internal/config"
	"github.com/Spok95/subgate/internal/infra/logger"
)

type state struct {
	cfgFile string
	cfg     config.Config
	log     *slog.Logger
	started time.Time
}

// NewRootCmd собирает дерево команд; main вызывает Execute.
func NewRootCmd() *cobra.Command {
	s := &state{}
	root := &cobra.Command{
		Use:           "subgate",
		Short:         "subgate: проверка абонементов и учёт проходов",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(s.cfgFile)
			if err != nil {
				return err
			}
			s.cfg = cfg
			s.log = logger.New(cfg.App.Env)
			s.started = time.Now()
			s.log = s.log.With("correlation_id", uuid.NewString())
			s.log.Debug("command start", "command", cmd.CommandPath())
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			s.log.Debug("command end",
				"command", cmd.CommandPath(),
				"duration_ms", time.Since(s.started).Milliseconds(),
			)
		},
	}
	root.PersistentFlags().StringVarP(&s.cfgFile, "config", "c", "config/example.yaml", "config file path")

	root.AddCommand(
		s.serveCmd(),
		s.migrateCmd(),
		s.plansCmd(),
		s.issueCmd(),
		s.checkCmd(),
		s.passCmd(),
		s.statusCmd("suspend", "Приостановить абонемент"),
		s.statusCmd("resume", "Возобновить приостановленный абонемент"),
		s.statusCmd("cancel", "Отменить абонемент"),
		s.renewCmd(),
		s.sweepCmd(),
		s.tokenCmd(),
	)
	return root
}

// withContainer поднимает зависимости на время одной команды.
func (s *state) withContainer(ctx context.Context, fn func(*app.Container) error) error {
	c, err := app.NewContainer(ctx, s.cfg, s.log)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

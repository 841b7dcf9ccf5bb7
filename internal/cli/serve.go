package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/subgate/internal/app"
	"github.com/Spok95/subgate/internal/bot"
	"github.com/Spok95/subgate/internal/dialog"
	httpx "github.com/Spok95/subgate/internal/infra/http"
)

func (s *state) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "HTTP API терминалов, планировщик и Telegram-бот",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return s.withContainer(ctx, func(c *app.Container) error {
				return s.serve(ctx, c)
			})
		},
	}
}

func (s *state) serve(ctx context.Context, c *app.Container) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := httpx.New(s.cfg.HTTP.Addr, c.Handler())
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	s.log.Info("HTTP server started", "addr", s.cfg.HTTP.Addr)

	sched, err := c.Scheduler()
	if err != nil {
		return err
	}
	g.Go(func() error { return sched.Run(ctx) })

	if token := s.cfg.Telegram.Token; token != "" {
		api, err := tgbotapi.NewBotAPI(token)
		if err != nil {
			return err
		}
		b := bot.New(api, s.log, c.Access, c.Lifecycle, dialog.NewRepo(c.Store),
			s.cfg.Telegram.AdminChatID, s.cfg.Telegram.AllowedChats)
		g.Go(func() error {
			defer api.StopReceivingUpdates()
			return b.Run(ctx, 30)
		})
	} else {
		s.log.Info("telegram token is empty, bot disabled")
	}

	err = g.Wait()
	s.log.Info("graceful shutdown complete")
	return err
}

func (s *state) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Применить миграции к хранилищу из конфига",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := app.OpenStore(cmd.Context(), s.cfg)
			if err != nil {
				return err
			}
			s.log.Info("migrations applied", "driver", s.cfg.Storage.Driver)
			return st.Close()
		},
	}
}

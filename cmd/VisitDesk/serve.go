package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BTreeMap/VisitDesk/internal/api"
	"github.com/BTreeMap/VisitDesk/internal/config"
	"github.com/BTreeMap/VisitDesk/internal/flow"
	"github.com/BTreeMap/VisitDesk/internal/genai"
	"github.com/BTreeMap/VisitDesk/internal/lockfile"
	"github.com/BTreeMap/VisitDesk/internal/messaging"
	"github.com/BTreeMap/VisitDesk/internal/store"
	"github.com/BTreeMap/VisitDesk/internal/twiliowhatsapp"
	"github.com/BTreeMap/VisitDesk/internal/whatsapp"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the chat assistant and the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	lock, err := lockfile.AcquireLock(a.cfg.StateDir, a.logger)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := store.Open(ctx, a.cfg.DatabaseDSN, store.WithLogger(a.logger))
	if err != nil {
		return err
	}
	defer st.Close()

	mgr := flow.NewManager(st, a.flowOptions()...)

	svc, webhook, cleanup, err := a.newService(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	router := messaging.NewRouter(svc, mgr, messaging.RouterOpts{Backend: a.cfg.Backend, Logger: a.logger})

	apiOpts := []api.Option{
		api.WithAddr(a.cfg.APIAddr),
		api.WithStore(st),
		api.WithJWTSecret(a.cfg.APIJWTSecret),
		api.WithLogger(a.logger),
	}
	if webhook != nil {
		apiOpts = append(apiOpts, api.WithWebhook(webhook), api.WithWebhookRateLimit(a.cfg.Twilio.RateLimit))
	}
	server := api.NewServer(apiOpts...)

	if err := svc.Start(ctx); err != nil {
		return errors.Wrap(err, "start messaging service")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mgr.Run(gctx) })
	g.Go(func() error { return router.Run(gctx) })
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		return svc.Stop()
	})

	a.logger.Info("VisitDesk serving", zap.String("backend", a.cfg.Backend), zap.String("api_addr", a.cfg.APIAddr))
	err = g.Wait()
	a.logger.Info("VisitDesk stopped", zap.Error(err))
	return err
}

// flowOptions maps the configuration onto the conversation manager. A
// failing GenAI client only disables the weekly digest.
func (a *app) flowOptions() []flow.Option {
	opts := []flow.Option{
		flow.WithMaxAttempts(a.cfg.MaxAttempts),
		flow.WithRequireConfirmation(a.cfg.RequireConfirmation),
		flow.WithWriteTimeout(a.cfg.WriteTimeout),
		flow.WithIdleTimeout(a.cfg.IdleTimeout),
		flow.WithLogger(a.logger),
	}
	if a.cfg.OpenAIKey == "" {
		return opts
	}
	gc, err := genai.NewClient(
		genai.WithAPIKey(a.cfg.OpenAIKey),
		genai.WithModel(a.cfg.OpenAIModel),
		genai.WithLogger(a.logger),
	)
	if err != nil {
		a.logger.Warn("GenAI client unavailable, weekly digest disabled", zap.Error(err))
		return opts
	}
	return append(opts, flow.WithDigester(gc))
}

// newService builds the configured transport. webhook is non-nil only for
// backends that receive messages over HTTP.
func (a *app) newService(ctx context.Context) (svc messaging.Service, webhook http.HandlerFunc, cleanup func(), err error) {
	switch a.cfg.Backend {
	case config.BackendTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(a.cfg.Twilio.AccountSID),
			twiliowhatsapp.WithAuthToken(a.cfg.Twilio.AuthToken),
			twiliowhatsapp.WithFromWhats(a.cfg.Twilio.From),
			twiliowhatsapp.WithLogger(a.logger),
		)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "create twilio client")
		}
		ts := messaging.NewTwilioService(client, messaging.TwilioOpts{
			AuthToken:  a.cfg.Twilio.AuthToken,
			WebhookURL: a.cfg.Twilio.WebhookURL,
			Logger:     a.logger,
		})
		return ts, ts.WebhookHandler, func() {}, nil

	case config.BackendWhatsApp:
		waOpts := []whatsapp.Option{
			whatsapp.WithDBDSN(a.cfg.WhatsApp.DBDSN),
			whatsapp.WithLogLevel(a.cfg.LogLevel),
			whatsapp.WithLogger(a.logger),
		}
		if a.cfg.WhatsApp.QROutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(a.cfg.WhatsApp.QROutput))
		}
		if a.cfg.WhatsApp.NumericCode {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(ctx, waOpts...)
		if err != nil {
			return nil, nil, nil, errors.Wrap(err, "create whatsapp client")
		}
		return messaging.NewWhatsAppService(client, a.logger), nil, client.Disconnect, nil

	default:
		return nil, nil, nil, errors.Errorf("unknown messaging backend %q", a.cfg.Backend)
	}
}

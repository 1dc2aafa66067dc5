// Package api serves the operator HTTP endpoints: health, Prometheus
// metrics, the Twilio webhook and read-only patient reports.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BTreeMap/VisitDesk/internal/models"
)

const (
	// DefaultAddr is the listen address when none is configured.
	DefaultAddr = ":8080"
	// DefaultWebhookRateLimit is the Twilio webhook budget per minute and client.
	DefaultWebhookRateLimit = 60
	// DefaultShutdownTimeout bounds graceful shutdown.
	DefaultShutdownTimeout = 10 * time.Second

	readTimeout  = 10 * time.Second
	writeTimeout = 30 * time.Second
	idleTimeout  = 120 * time.Second
)

// ReportStore is the read side of the patient store.
type ReportStore interface {
	GetTodayPatients(ctx context.Context, ownerID int64) ([]models.TodayPatient, error)
	GetWeeklyStats(ctx context.Context, ownerID int64) ([]models.WeekdayCount, error)
}

// Opts configures a Server.
type Opts struct {
	Addr  string
	Store ReportStore
	// JWTSecret signs operator tokens. Report endpoints are only mounted when set.
	JWTSecret string
	// Webhook receives Twilio message callbacks. The route is only mounted when set.
	Webhook http.HandlerFunc
	// WebhookRateLimit is requests per minute per client IP.
	WebhookRateLimit int
	ShutdownTimeout  time.Duration
	Logger           *zap.Logger
}

// Option configures Opts.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithStore supplies the report data.
func WithStore(st ReportStore) Option {
	return func(o *Opts) { o.Store = st }
}

// WithJWTSecret enables the report endpoints behind operator tokens signed with secret.
func WithJWTSecret(secret string) Option {
	return func(o *Opts) { o.JWTSecret = secret }
}

// WithWebhook mounts h at /webhooks/twilio.
func WithWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) { o.Webhook = h }
}

// WithWebhookRateLimit sets the webhook budget per minute and client IP.
func WithWebhookRateLimit(n int) Option {
	return func(o *Opts) {
		if n > 0 {
			o.WebhookRateLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Opts) { o.Logger = l }
}

// Server is the operator HTTP server.
type Server struct {
	addr            string
	store           ReportStore
	shutdownTimeout time.Duration
	logger          *zap.Logger
	router          chi.Router
}

// NewServer builds the router.
func NewServer(opts ...Option) *Server {
	cfg := Opts{
		Addr:             DefaultAddr,
		WebhookRateLimit: DefaultWebhookRateLimit,
		ShutdownTimeout:  DefaultShutdownTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	s := &Server{
		addr:            cfg.Addr,
		store:           cfg.Store,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          cfg.Logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	if cfg.Webhook != nil {
		r.With(httprate.Limit(
			cfg.WebhookRateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(s.rateLimited),
		)).Post("/webhooks/twilio", cfg.Webhook)
	}

	switch {
	case s.store == nil:
	case cfg.JWTSecret == "":
		s.logger.Info("Server report endpoints disabled: no JWT secret configured")
	case len(cfg.JWTSecret) < MinJWTSecretLength:
		s.logger.Warn("Server report endpoints disabled: JWT secret too short",
			zap.Int("min_length", MinJWTSecretLength))
	default:
		r.Route("/owners/{ownerID}", func(r chi.Router) {
			r.Use(s.requireOperator([]byte(cfg.JWTSecret)))
			r.Get("/patients/today", s.todayHandler)
			r.Get("/stats/week", s.weekHandler)
		})
	}

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", zap.String("addr", s.addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return errors.Wrapf(err, "listen on %s", s.addr)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "shutdown http server")
	}
	s.logger.Info("Server stopped")
	return nil
}

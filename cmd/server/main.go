package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/groupledger/internal/audit"
	"github.com/mmynk/groupledger/internal/auth"
	"github.com/mmynk/groupledger/internal/config"
	"github.com/mmynk/groupledger/internal/credit"
	"github.com/mmynk/groupledger/internal/gateway"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/metrics"
	"github.com/mmynk/groupledger/internal/middleware"
	"github.com/mmynk/groupledger/internal/service"
	"github.com/mmynk/groupledger/internal/storage/backend"
	"github.com/mmynk/groupledger/internal/transport/rest"
	"github.com/mmynk/groupledger/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	table, err := cfg.PermissionTable()
	if err != nil {
		return err
	}

	openCtx, cancel := context.WithTimeout(ctx, cfg.Database.Timeout)
	db, err := backend.Open(openCtx, cfg.Database)
	cancel()
	if err != nil {
		return err
	}
	defer db.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	trail, closeTrail, err := openTrail(cfg.Audit, db.Trail, m)
	if err != nil {
		return err
	}
	defer closeTrail()

	credits := credit.NewAccount(db.Store)
	engine := ledger.NewEngine(db.Store, credits, trail,
		ledger.WithMetrics(m),
		ledger.WithCurrency(cfg.Ledger.Currency),
	)

	accounts := auth.NewProvisioner(db.Store, table, cfg.Ledger.InitialCredits)
	if cfg.Bootstrap.AdminEmail != "" {
		admin, err := accounts.EnsureAdmin(ctx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminCredits)
		if err != nil {
			return err
		}
		slog.Info("Bootstrap admin ready", "user_id", admin.ID, "email", admin.Email, "credits", admin.Credits)
	}

	purchases := credit.NewPurchaseVerifier(cfg.Payments.WebhookSecret)
	if !purchases.Enabled() {
		slog.Warn("Payments webhook secret not set; credit purchases are disabled")
	}

	gw := gateway.New(gateway.Config{
		Table:     table,
		Ledger:    engine,
		Accounts:  accounts,
		Credits:   credits,
		Purchases: purchases,
		Metrics:   m,
	})

	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.TokenTTL)

	handler := rest.NewHandler(gw, rest.PageLimits{
		Default: cfg.Ledger.DefaultPageLimit,
		Max:     cfg.Ledger.MaxPageLimit,
	}, slog.Default())
	router := rest.NewRouter(handler, jwtManager, m, cfg.Metrics.Path)

	rpcPath, rpcHandler := service.NewLedgerService(gw, cfg.Ledger.MaxPageLimit).Handler(
		middleware.ConnectInterceptors(jwtManager, m)...,
	)
	router.Handle(rpcPath+"*", rpcHandler)

	// h2c serves HTTP/2 without TLS, which Connect and gRPC clients need.
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      h2c.NewHandler(corsMiddleware(router), &http2.Server{}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server starting", "address", srv.Addr, "rpc", rpcPath, "driver", cfg.Database.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openTrail selects the audit backend and, when configured, moves appends to
// a background worker. The returned func flushes and closes it.
func openTrail(cfg config.AuditConfig, dbTrail audit.Trail, m *metrics.Metrics) (audit.Trail, func(), error) {
	var trail audit.Trail = dbTrail
	if cfg.Backend == config.AuditFile {
		ft, err := audit.NewFileTrail(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("Audit trail initialized", "backend", cfg.Backend, "dir", cfg.Dir)
		trail = ft
	} else {
		slog.Info("Audit trail initialized", "backend", cfg.Backend)
	}

	if !cfg.Async {
		return trail, func() {}, nil
	}

	w := audit.NewWorker(trail, cfg.BufferSize, func(err error) {
		m.AuditFailure()
		slog.Error("Background audit append failed", "error", err)
	})
	w.Start()
	return w, w.Shutdown, nil
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

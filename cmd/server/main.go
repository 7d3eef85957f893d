package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/vkarkhanis/splitex/internal/auth"
	"github.com/vkarkhanis/splitex/internal/config"
	"github.com/vkarkhanis/splitex/internal/entitlement"
	"github.com/vkarkhanis/splitex/internal/fx"
	"github.com/vkarkhanis/splitex/internal/gateway"
	"github.com/vkarkhanis/splitex/internal/lifecycle"
	"github.com/vkarkhanis/splitex/internal/metrics"
	"github.com/vkarkhanis/splitex/internal/realtime"
	"github.com/vkarkhanis/splitex/internal/server"
	"github.com/vkarkhanis/splitex/internal/service"
	"github.com/vkarkhanis/splitex/internal/storage/sqlite"
	"github.com/vkarkhanis/splitex/pkg/logging"
)

func main() {
	logging.Setup()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.Database.Path)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	hub := realtime.NewHub()
	entitlements := entitlement.NewService(store)
	resolver := fx.NewResolver(fx.NewHTTPRateSource(cfg.Fx.EodURL, cfg.Gateway.Timeout.Std()))

	selector := gateway.NewSelector(
		gateway.Mode(cfg.Gateway.Mode),
		cfg.Server.Environment,
		cfg.Gateway.AllowRealPayments,
		gateway.NewMock(),
		map[gateway.Provider]gateway.Gateway{
			gateway.ProviderStripe:   gateway.NewStripe(cfg.Gateway.StripeSecretKey, cfg.Gateway.Timeout.Std()),
			gateway.ProviderRazorpay: gateway.NewRazorpay(cfg.Gateway.RazorpayKeyID, cfg.Gateway.RazorpayKeySecret, cfg.Gateway.Timeout.Std()),
		},
	)

	lm := lifecycle.NewManager(store, selector, hub, m, cfg.Gateway.Timeout.Std())

	events := service.NewEventService(store, entitlements, hub)
	expenses := service.NewExpenseService(store, events, hub)
	settlements := service.NewSettlementService(store, events, entitlements, resolver, lm, hub, m)

	authn := auth.NewPasswordAuthenticator(store)
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration.Std())

	srv := server.New(events, expenses, settlements, authn, jwtManager, hub, m, registry)

	// h2c keeps gRPC-style and streaming clients working without TLS
	// termination in front of the process.
	handler := h2c.NewHandler(srv.Router(), &http2.Server{})

	addr := cfg.Addr()
	slog.Info("Server starting", "address", addr, "environment", cfg.Server.Environment)
	if err := http.ListenAndServe(addr, handler); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

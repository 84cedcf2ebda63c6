package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"database/sql"

	"github.com/gorilla/mux"
	"github.com/kwachapay/ledger-service/internal/config"
	"github.com/kwachapay/ledger-service/internal/handler"
	"github.com/kwachapay/ledger-service/internal/integrations/momo"
	"github.com/kwachapay/ledger-service/internal/ledger"
	"github.com/kwachapay/ledger-service/internal/loan"
	"github.com/kwachapay/ledger-service/internal/middleware"
	"github.com/kwachapay/ledger-service/internal/registry"
	"github.com/kwachapay/ledger-service/internal/repository"
	"github.com/kwachapay/ledger-service/internal/service"
	"github.com/kwachapay/ledger-service/internal/utils/email"
	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logLevel, err := logrus.ParseLevel(os.Getenv("LOG_LEVEL"))
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		logger.Fatalf("Failed to ping database: %v", err)
	}
	repo := repository.NewRepository(db)

	// Initialize ledger core
	reg := registry.New(cfg.OwnerPrincipal)
	identities, err := repo.LoadIdentities()
	if err != nil {
		logger.Fatalf("Failed to load identities: %v", err)
	}
	for _, identity := range identities {
		reg.Restore(identity)
	}
	logger.Infof("Restored %d identities", len(identities))

	var settler ledger.Settler
	if cfg.MomoURL != "" {
		settler = momo.NewClient(cfg, logger)
	} else {
		logger.Warn("MOMO_URL not set, settling to in-memory recorder")
		settler = momo.NewRecorder()
	}

	led := ledger.New(reg, settler, ledger.Params{
		FeeBps:     cfg.FeeBps,
		MinAmount:  cfg.MinAmount,
		MaxAmount:  cfg.MaxAmount,
		DailyLimit: cfg.DailyLimit,
	}, logger)
	loans := loan.New(reg, settler, cfg.CollateralRatioBps, logger)

	svc := service.New(reg, led, loans, repo, logger)
	if sender := email.NewSender(cfg, logger); sender != nil {
		svc.SetNotifier(sender)
	}
	h := handler.NewHandler(svc)

	// Setup router
	r := mux.NewRouter()
	// Public routes
	r.HandleFunc("/authenticate", h.Authenticate).Methods("POST")
	r.HandleFunc("/identities/{id}", h.Resolve).Methods("GET")
	r.HandleFunc("/identities/{id}/history", h.History).Methods("GET")
	r.HandleFunc("/identities/{id}/eligibility", h.Eligibility).Methods("GET")
	r.HandleFunc("/identities/{id}/loan", h.LoanDetails).Methods("GET")
	r.HandleFunc("/identities/{id}/loans", h.LoanHistory).Methods("GET")
	r.HandleFunc("/loans/quote", h.LoanQuote).Methods("GET")
	r.HandleFunc("/events", h.Events).Methods("GET")
	r.HandleFunc("/stats", h.Stats).Methods("GET")
	// Protected routes, caller principal comes from the bearer token
	authRouter := r.PathPrefix("/").Subrouter()
	authRouter.Use(middleware.AuthMiddleware(cfg))
	authRouter.HandleFunc("/register", h.Register).Methods("POST")
	authRouter.HandleFunc("/secret", h.UpdateSecret).Methods("PUT")
	authRouter.HandleFunc("/reassign", h.ReassignOwner).Methods("POST")
	authRouter.HandleFunc("/transfer", h.Transfer).Methods("POST")
	authRouter.HandleFunc("/loans/request", h.RequestLoan).Methods("POST")
	authRouter.HandleFunc("/loans/repay", h.RepayLoan).Methods("POST")
	authRouter.HandleFunc("/loans/default", h.ProcessDefault).Methods("POST")
	// Admin routes, owner-only checks happen in the service
	authRouter.HandleFunc("/admin/fee", h.UpdateFee).Methods("PUT")
	authRouter.HandleFunc("/admin/limits", h.UpdateLimits).Methods("PUT")
	authRouter.HandleFunc("/admin/fees/withdraw", h.WithdrawFees).Methods("POST")
	authRouter.HandleFunc("/admin/pause", h.Pause).Methods("POST")
	authRouter.HandleFunc("/admin/unpause", h.Unpause).Methods("POST")
	authRouter.HandleFunc("/admin/liquidity/add", h.AddLiquidity).Methods("POST")
	authRouter.HandleFunc("/admin/liquidity/remove", h.RemoveLiquidity).Methods("POST")
	authRouter.HandleFunc("/admin/tiers", h.UpdateTier).Methods("PUT")
	authRouter.HandleFunc("/admin/collateral-ratio", h.UpdateCollateralRatio).Methods("PUT")
	authRouter.HandleFunc("/admin/authorizations", h.GrantAuthorization).Methods("POST")
	authRouter.HandleFunc("/admin/authorizations", h.RevokeAuthorization).Methods("DELETE")

	// Scheduled jobs: hourly default sweep, daily fee report
	c := cron.New()
	c.AddFunc("@hourly", func() {
		if n := svc.SweepDefaults(cfg.OwnerPrincipal); n > 0 {
			logger.Infof("Default sweep processed %d loans", n)
		}
	})
	c.AddFunc("@daily", func() {
		stats := svc.TransferStats()
		logger.Infof("Daily report: %d transfers, volume=%d, fees=%d",
			stats.TotalTransfers, stats.TotalVolume, stats.TotalFees)
	})
	c.Start()
	defer c.Stop()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	logger.Infof("Starting server on %s", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("Server failed: %v", err)
	}
}

package main

import (
	"context"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/boxfi/boxd/internal/adapters"
	"github.com/boxfi/boxd/internal/bank"
	"github.com/boxfi/boxd/internal/config"
	"github.com/boxfi/boxd/internal/handler"
	"github.com/boxfi/boxd/internal/middleware"
	"github.com/boxfi/boxd/internal/pkg/logger"
	"github.com/boxfi/boxd/internal/repository"
	"github.com/boxfi/boxd/internal/service"
	"github.com/boxfi/boxd/internal/stream"
	"github.com/boxfi/boxd/internal/vault"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	// 2. Initialize Persistence
	// Idempotency (Redis > Memory)
	var idempotencyStore middleware.IdempotencyStore
	if cfg.Redis.Addr != "" {
		redisClient, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("✅ Connected to Redis")
			ttl := time.Duration(cfg.Redis.IdempotencyTTLSeconds) * time.Second
			idempotencyStore = repository.NewRedisIdempotencyStore(redisClient, ttl)
		} else {
			logger.Error("⚠️ Failed to connect to Redis, falling back to memory", "error", err)
		}
	}
	if idempotencyStore == nil {
		idempotencyStore = middleware.NewInMemIdempotencyStore()
	}

	// Audit Persistence (Postgres > Local File)
	var auditRepo service.AuditRepo
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("✅ Connected to PostgreSQL")
			auditRepo = repository.NewPostgresAuditRepo(db)
		} else {
			logger.Error("⚠️ Failed to connect to DB, audit logs will be file-only", "error", err)
		}
	}

	auditSvc, err := service.NewAuditService(cfg.Server.AuditDir, auditRepo)
	if err != nil {
		log.Fatalf("Failed to initialize audit service: %v", err)
	}

	// 3. Build the engine and its collaborators
	ledger := bank.New()
	quotes := adapters.NewQuoteTable()
	hub := stream.NewHub()

	maxSlippage, err := decimal.NewFromString(cfg.Vault.MaxSlippage)
	if err != nil {
		log.Fatalf("Invalid vault.max_slippage: %v", err)
	}

	box, err := vault.New(vault.Params{
		Name:                     cfg.Vault.Name,
		Symbol:                   cfg.Vault.Symbol,
		BaseToken:                common.HexToAddress(cfg.Vault.BaseToken),
		Account:                  common.HexToAddress(cfg.Vault.Account),
		Owner:                    common.HexToAddress(cfg.Vault.Owner),
		Curator:                  common.HexToAddress(cfg.Vault.Curator),
		Guardian:                 common.HexToAddress(cfg.Vault.Guardian),
		MaxSlippage:              maxSlippage,
		EpochDuration:            cfg.Vault.EpochDuration,
		ShutdownWarmup:           cfg.Vault.ShutdownWarmup,
		ShutdownSlippageDuration: cfg.Vault.ShutdownSlippageDuration,
		DefaultTimelock:          cfg.Vault.DefaultTimelock,
		TimelockCap:              cfg.Vault.TimelockCap,
	}, ledger, hub)
	if err != nil {
		log.Fatalf("Failed to construct vault: %v", err)
	}

	boxSvc := service.NewBoxService(box, ledger, quotes)
	wireSim(cfg, ledger, quotes, box, boxSvc)

	operatorManager := service.NewOperatorManager(cfg)

	// 4. Initialize Handlers
	vaultHandler := handler.NewVaultHandler(boxSvc)
	governanceHandler := handler.NewGovernanceHandler(boxSvc)
	auditHandler := handler.NewAuditHandler(auditSvc)

	// 5. Setup Router
	r := gin.Default()

	// Global Middleware
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.AuditMiddleware(auditSvc))
	r.Use(middleware.ReadOnlyMiddleware(cfg.Server.ReadOnly))

	// Health Check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "boxd"})
	})

	// Metrics Endpoint
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// API V1 Routes
	v1 := r.Group("/v1")
	v1.Use(middleware.AuthMiddleware(cfg, operatorManager))
	v1.Use(middleware.RateLimitMiddleware(operatorManager))
	v1.Use(middleware.IdempotencyMiddleware(idempotencyStore))
	{
		v1.GET("/status", vaultHandler.Status)
		v1.GET("/shares/:account", vaultHandler.ShareBalance)
		v1.GET("/events", hub.Serve)

		v1.POST("/deposits", vaultHandler.Deposit)
		v1.POST("/withdrawals", vaultHandler.Withdraw)
		v1.POST("/redemptions", vaultHandler.Redeem)

		v1.POST("/allocations", vaultHandler.Allocate)
		v1.POST("/deallocations", vaultHandler.Deallocate)
		v1.POST("/reallocations", vaultHandler.Reallocate)

		v1.POST("/facilities/:id/collateral", vaultHandler.SupplyCollateral)
		v1.DELETE("/facilities/:id/collateral", vaultHandler.WithdrawCollateral)
		v1.POST("/facilities/:id/debt", vaultHandler.Borrow)
		v1.DELETE("/facilities/:id/debt", vaultHandler.Repay)

		v1.POST("/leverage/:id/wind", vaultHandler.Wind)
		v1.POST("/leverage/:id/unwind", vaultHandler.Unwind)
		v1.POST("/leverage/:id/shift", vaultHandler.Shift)

		v1.GET("/governance/actions", governanceHandler.PendingActions)
		v1.POST("/governance/actions", governanceHandler.SubmitAction)
		v1.POST("/governance/actions/execute", governanceHandler.ExecuteAction)
		v1.DELETE("/governance/actions", governanceHandler.RevokeAction)
		v1.POST("/governance/roles", governanceHandler.SetRole)
		v1.DELETE("/governance/roles", governanceHandler.RevokeRole)
		v1.PUT("/governance/prices/:token", governanceHandler.SetPrice)

		v1.POST("/shutdown", governanceHandler.Shutdown)
		v1.POST("/recover", governanceHandler.Recover)

		v1.GET("/audit", auditHandler.List)
	}

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 boxd started", "port", cfg.Server.Port, "vault", box.Name())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hub.Close()
	auditSvc.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("Server exiting")
}

// wireSim stands up the paper venues: a bank-backed swap executor, flash
// lender and funding adapter, plus seeded prices and balances.
func wireSim(cfg *config.Config, ledger *bank.Bank, quotes *adapters.QuoteTable, box *vault.Vault, svc *service.BoxService) {
	for _, p := range cfg.Sim.Prices {
		price, ok := new(big.Int).SetString(p.Price, 10)
		if !ok || price.Sign() <= 0 {
			log.Fatalf("Invalid sim price for %s: %q", p.Token, p.Price)
		}
		quotes.Add(common.HexToAddress(p.Token), price)
	}
	// The base currency always quotes at par.
	quotes.Add(common.HexToAddress(cfg.Vault.BaseToken), vault.PricePrecision)

	for _, s := range cfg.Sim.Seeds {
		amount, ok := new(big.Int).SetString(s.Amount, 10)
		if !ok {
			log.Fatalf("Invalid sim seed amount: %q", s.Amount)
		}
		if err := ledger.Mint(common.HexToAddress(s.Token), common.HexToAddress(s.Account), amount); err != nil {
			log.Fatalf("Failed to seed balance: %v", err)
		}
	}

	swapper := adapters.NewBankSwapExecutor("paper-swap", ledger,
		common.HexToAddress(cfg.Sim.SwapAccount), box.Account(), quotes.Quote)
	swapper.HaircutBps = cfg.Sim.SwapHaircutBps
	svc.RegisterSwapper(swapper)

	svc.RegisterLender(adapters.NewBankFlashLender("paper-flash", ledger,
		common.HexToAddress(cfg.Sim.FlashAccount)), "paper-flash")

	lltv, err := decimal.NewFromString(cfg.Sim.FundingLLTV)
	if err != nil {
		log.Fatalf("Invalid sim.funding_lltv: %v", err)
	}
	svc.RegisterFundingAdapter(adapters.NewPaperFundingAdapter("paper-funding", ledger,
		common.HexToAddress(cfg.Sim.FundingPool), quotes.Quote, lltv))
}

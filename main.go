package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fernando-reinert/clinica-loraine-sub000/internal/api"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/config"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/crypto"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/email"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/logger"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/metrics"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/middleware"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/migrate"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/repo"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/rpcstore"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/signup"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/sweeper"
	"github.com/fernando-reinert/clinica-loraine-sub000/internal/whatsapp"
)

// backend é o que os dois stores (Postgres e RPC) oferecem ao servidor.
type backend interface {
	signup.Store
	api.AnamnesisReader
	api.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	store, closeStore := openBackend(cfg, log)
	defer closeStore()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(reg)

	gate, closeGate := openGate(cfg, log)
	defer closeGate()

	opts := []signup.Option{
		signup.WithGate(gate),
		signup.WithLogger(log.Named("signup")),
		signup.WithMetrics(rec),
		signup.WithDefaultExpiry(time.Duration(cfg.SignupDefaultExpiryHours) * time.Hour),
	}
	h := &api.Handler{
		Manager:   signup.NewManager(store, opts...),
		Resolver:  signup.NewResolver(store, opts...),
		Anamnesis: store,
		Ready:     store,
		Cfg:       cfg,
		Log:       log.Named("api"),
	}
	if cfg.AppPublicURL != "" && cfg.SMTPHost != "" {
		mailer := email.NewSender(email.Config{
			Host:     cfg.SMTPHost,
			Port:     email.PortFromString(cfg.SMTPPort),
			User:     cfg.SMTPUser,
			Pass:     cfg.SMTPPass,
			FromName: cfg.SMTPFromName,
			FromAddr: cfg.SMTPFromEmail,
		}, log.Named("email"))
		mailer.LogConfigSummary()
		h.SetLinkMailer(mailer)
	} else {
		log.Info("e-mail delivery disabled: APP_PUBLIC_URL or SMTP_HOST empty")
	}
	if cfg.WhatsAppEnabled() {
		h.SetLinkMessenger(whatsapp.NewClient(whatsapp.Config{
			AccountSid: cfg.TwilioAccountSid,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioWhatsAppFrom,
		}, log.Named("whatsapp")))
	}

	limiter := middleware.NewRateLimiter(cfg.CreateRatePerMin, 0, cfg.TrustedProxies...)
	defer limiter.Stop()

	r := mux.NewRouter()
	r.Use(middleware.Recover(log.Named("http")))
	r.Handle("/metrics", metrics.Handler(reg)).Methods(http.MethodGet)
	h.Routes(r, limiter)

	chain := middleware.RequestID(middleware.Timeout(cfg.RequestTimeout())(middleware.CORS(cfg.CORSOrigins)(middleware.Gzip(r))))

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      chain,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.RequestTimeout() + 5*time.Second,
	}

	go func() {
		log.Info("backend listening", zap.String("port", cfg.Port), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if exp, ok := store.(sweeper.Expirer); ok && cfg.ServerSweepInterval > 0 {
		s := sweeper.New(exp, log.Named("sweeper"), rec)
		go func() { _ = s.Run(sweepCtx, cfg.ServerSweepInterval) }()
		log.Info("in-process sweeper started", zap.Duration("interval", cfg.ServerSweepInterval))
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stopSweep()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	log.Info("backend stopped")
}

func openBackend(cfg *config.Config, log *zap.Logger) (backend, func()) {
	if cfg.StoreBackend == config.BackendRPC {
		log.Info("using rpc store", zap.String("base_url", cfg.RPCBaseURL))
		return rpcstore.New(rpcstore.Config{
			BaseURL: cfg.RPCBaseURL,
			APIKey:  cfg.RPCAPIKey,
			Timeout: cfg.RequestTimeout(),
		}, log.Named("rpcstore")), func() {}
	}

	version, err := migrate.Ensure(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("migrations", zap.Error(err))
	}
	log.Info("schema ready", zap.Uint("version", version))
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("config postgres", zap.Error(err))
	}
	if cfg.DBMaxConns > 0 {
		poolConfig.MaxConns = cfg.DBMaxConns
	}
	if cfg.DBMinConns > 0 {
		poolConfig.MinConns = cfg.DBMinConns
	}
	if cfg.DBMaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.DBMaxConnLifetime
	}
	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("conexão postgres", zap.Error(err))
	}
	if err := pool.Ping(ctx); err != nil {
		log.Fatal("ping postgres", zap.Error(err))
	}
	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		log.Fatal("gorm", zap.Error(err))
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatal("db.DB", zap.Error(err))
	}
	keys, err := crypto.NewKeyring(cfg.DataEncryptionKeys, cfg.CurrentDataKeyVer)
	if err != nil {
		log.Fatal("data encryption keys", zap.Error(err))
	}
	ttl := time.Duration(cfg.AnamnesisExpiryHours) * time.Hour
	return repo.NewStore(pool, db, keys, ttl), func() {
		_ = sqlDB.Close()
		pool.Close()
	}
}

// openGate usa Redis quando REDIS_URL está definido; senão o gate fica em memória.
func openGate(cfg *config.Config, log *zap.Logger) (signup.Gate, func()) {
	if cfg.RedisURL == "" {
		g := signup.NewLocalGate(cfg.AutosaveInterval)
		return g, g.Close
	}
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal("redis url", zap.Error(err))
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Warn("redis unreachable at startup; autosave gate fails open", zap.Error(err))
	}
	return signup.NewRedisGate(client, cfg.AutosaveInterval, log.Named("gate")), func() { _ = client.Close() }
}

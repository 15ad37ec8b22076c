package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"moments/auth"
	"moments/config"
	"moments/database"
	"moments/logger"
	"moments/mailer"
	"moments/media"
	"moments/metrics"
	"moments/middleware"
	"moments/otp"
	"moments/routes"
	"moments/services"
	"moments/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// logger is not configured yet
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		_, _ = os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("Server stopped with error", zap.Error(err))
	}
}

type stores struct {
	posts services.PostStore
	users services.UserStore
	close func()
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (stores, error) {
	if cfg.App.StoreDriver == config.StoreMemory {
		log.Warn("Using in-memory stores; data is lost on restart")
		return stores{
			posts: database.NewMemoryPostStore(),
			users: database.NewMemoryUserStore(),
			close: func() {},
		}, nil
	}

	client, err := database.Connect(ctx, cfg.Mongo.URI, log)
	if err != nil {
		return stores{}, err
	}
	db := client.Database(cfg.Mongo.Database)
	if err := database.EnsureIndexes(ctx, db); err != nil {
		_ = database.Disconnect(client)
		return stores{}, err
	}
	log.Info("MongoDB connected", zap.String("database", cfg.Mongo.Database))
	return stores{
		posts: database.NewMongoPostStore(db),
		users: database.NewMongoUserStore(db),
		close: func() {
			if err := database.Disconnect(client); err != nil {
				log.Warn("MongoDB disconnect failed", zap.Error(err))
			}
		},
	}, nil
}

func openOTPStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (otp.Store, error) {
	if cfg.Redis.URL == "" {
		log.Info("OTP store: memory")
		return otp.NewMemoryStore(time.Minute), nil
	}
	s, err := otp.NewRedisStore(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, err
	}
	log.Info("OTP store: redis")
	return s, nil
}

func newMailer(cfg *config.Config, log *zap.Logger) mailer.Mailer {
	if !cfg.SMTP.Enabled() {
		log.Warn("SMTP not configured; reset codes are logged instead of mailed")
		return mailer.NewLogMailer(log)
	}
	return mailer.NewSMTPMailer(mailer.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
	})
}

func newUploader(cfg *config.Config, log *zap.Logger) (media.Uploader, error) {
	up, err := media.NewCloudinaryUploader(cfg.Cloudinary.URL)
	if errors.Is(err, media.ErrDisabled) {
		log.Warn("CLOUDINARY_URL not set; image uploads disabled")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return up, nil
}

func run(cfg *config.Config, log *zap.Logger) error {
	log.Info("Starting MOMENTS & ME API",
		zap.String("env", cfg.App.Env),
		zap.String("store", cfg.App.StoreDriver),
	)

	if cfg.App.GinMode == gin.ReleaseMode || cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStart()

	st, err := openStores(startCtx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	codes, err := openOTPStore(startCtx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = codes.Close() }()

	uploader, err := newUploader(cfg, log)
	if err != nil {
		return err
	}

	tokens := auth.NewTokenService(cfg.JWT.Secret, cfg.JWT.TTL)
	m := metrics.New()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := websocket.NewHub(tokens, m, log)
	go hub.Run(hubCtx)

	limiter := middleware.NewIPRateLimiter(cfg.HTTP.AuthRateLimit, cfg.HTTP.AuthRateWindow)
	defer limiter.Stop()

	router := routes.SetupRouter(routes.Deps{
		Log:            log,
		Tokens:         tokens,
		Posts:          services.NewPostService(st.posts, hub, log),
		Auth:           services.NewAuthService(st.users, tokens, codes, newMailer(cfg, log), cfg.AdminEmail, log),
		Admin:          services.NewAdminService(st.posts, st.users),
		Uploader:       uploader,
		Hub:            hub,
		Metrics:        m,
		AuthLimiter:    limiter,
		AllowedOrigins: cfg.HTTP.CORSAllowOrigins,
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return err
	case sig := <-quit:
		log.Info("Shutting down server", zap.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	stopHub()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
		return err
	}

	log.Info("Server stopped gracefully")
	return nil
}

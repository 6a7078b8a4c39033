package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"starterkit/internal/config"
	"starterkit/internal/http/handlers"
	applog "starterkit/internal/log"
	"starterkit/internal/mail"
	"starterkit/internal/metrics"
	"starterkit/internal/ratelimit"
	"starterkit/internal/repos"
	"starterkit/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, closer, err := applog.New(applog.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File})
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not open log file %s: %v\n", cfg.Log.File, err)
		os.Exit(1)
	}
	applog.SetLogger(logger)
	log := applog.L()

	code := 0
	if err := run(cfg, log); err != nil {
		log.Error("server.exit", zap.Error(err))
		code = 1
	}
	_ = logger.Sync()
	_ = closer.Close()
	os.Exit(code)
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("config.loaded", zap.Any("config", cfg.LogFields()))

	db, err := repos.OpenDB(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	var store storage.Store
	switch cfg.Storage.Backend {
	case "s3":
		s3, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:     cfg.Storage.Bucket,
			Region:     cfg.Storage.Region,
			Endpoint:   cfg.Storage.Endpoint,
			AccessKey:  cfg.Storage.AccessKey,
			SecretKey:  cfg.Storage.SecretKey,
			PathStyle:  cfg.Storage.PathStyle,
			PresignTTL: cfg.Storage.PresignTTL,
		}, log.Named("storage"))
		if err != nil {
			return err
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			return err
		}
		store = s3
	default:
		local, err := storage.NewLocalStore(cfg.Storage.MediaDir, cfg.Storage.PublicPath)
		if err != nil {
			return fmt.Errorf("media dir: %w", err)
		}
		log.Info("storage.local", zap.String("root", local.Root))
		store = local
	}

	var mailer mail.Mailer = mail.LogMailer{}
	if cfg.Mail.Backend == "smtp" {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:          cfg.Mail.Host,
			Port:          cfg.Mail.Port,
			User:          cfg.Mail.User,
			Password:      cfg.Mail.Password,
			From:          cfg.Mail.From,
			RatePerSecond: cfg.Mail.RatePerSecond,
		})
	}

	trust, err := ratelimit.ParseProxyTrust(cfg.Security.TrustedProxies)
	if err != nil {
		return err
	}

	opts := handlers.Options{Store: store, Mailer: mailer, Trust: trust}
	if cfg.RateLimit.Backend == "redis" {
		client, err := ratelimit.DialRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer client.Close()
		opts.LimitStorage = ratelimit.NewRedisStorage(client, "ratelimit:")
		opts.SharedStorage = ratelimit.NewRedisStorage(client, "csrf:")
	}
	if cfg.Metrics.Enabled {
		opts.Metrics = metrics.New()
	}

	deps, err := handlers.NewDeps(db, cfg, opts)
	if err != nil {
		return err
	}

	if cfg.App.AdminEmail != "" && cfg.App.AdminPassword != "" {
		created, err := deps.Auth.SeedAdmin(ctx, cfg.App.AdminEmail, "Administrator", cfg.App.AdminPassword)
		if err != nil {
			return fmt.Errorf("seed admin: %w", err)
		}
		if created {
			log.Info("admin.seeded", zap.String("email", cfg.App.AdminEmail))
		}
	}
	app, err := handlers.NewApp(deps)
	if err != nil {
		return fmt.Errorf("csp: %w", err)
	}

	go deps.Invites.RunJanitor(ctx, cfg.Invite.PurgeInterval)

	errCh := make(chan error, 1)
	go func() {
		log.Info("server.start", zap.String("addr", ":"+cfg.App.Port), zap.String("env", cfg.App.Env))
		errCh <- app.Listen(":" + cfg.App.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	log.Info("server.shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return shutdown(shutdownCtx, app)
}

func shutdown(ctx context.Context, app *fiber.App) error {
	if err := app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Command authd serves the account, session and email verification API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-auth-verify"
	"github.com/goliatone/go-auth-verify/config"
	"github.com/goliatone/go-auth-verify/repository"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(context.Background(), os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "authd: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	cfg, err := config.Load(args)
	if err != nil {
		return err
	}

	zl, err := newZap(cfg.App)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	logger := auth.NewZapLogger(zl)

	if cfg.App.Debug {
		redacted := cfg.Redacted()
		logger.Debug("resolved configuration", "config", print.MaybePrettyJSON(redacted))
	}

	srv, err := newServer(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "address", cfg.Server.Address)
		return srv.app.Listen(cfg.Server.Address)
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)
		return srv.app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout)
	})

	return g.Wait()
}

type server struct {
	app  *fiber.App
	repo *repository.Manager
}

func (s *server) Close() error {
	return s.repo.Close()
}

func newServer(ctx context.Context, cfg *config.Config, logger *auth.ZapLogger) (*server, error) {
	db, err := repository.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	repo := repository.NewManager(db)
	repo.MustValidate()

	if err := repo.Ping(ctx); err != nil {
		_ = repo.Close()
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "database unreachable")
	}

	if cfg.Database.Migrate {
		if err := repo.Migrate(ctx, repository.WithMigrationLogger(logger.Named("migrate"))); err != nil {
			_ = repo.Close()
			return nil, err
		}
	}

	opts := []auth.ServiceOption{auth.WithLogger(logger.Named("service"))}
	if cfg.SMTP.Enabled() {
		opts = append(opts, auth.WithMailer(auth.NewSMTPMailer(auth.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			Subject:  cfg.SMTP.Subject,
		})))
	}

	svc, err := auth.NewAuthServiceFromConfig(cfg, repo.Accounts(), opts...)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	httpLogger := logger.Named("http")
	app := fiber.New(fiber.Config{
		AppName:               "authd",
		DisableStartupMessage: true,
		ErrorHandler:          auth.NewErrorHandler(httpLogger),
	})

	app.Use(auth.RequestIDMiddleware(httpLogger))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		if err := repo.Ping(c.UserContext()); err != nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "database unreachable")
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	auth.RegisterAuthRoutes(app.Group(cfg.Server.BasePath),
		auth.WithAuthService(svc),
		auth.WithControllerLogger(httpLogger),
		auth.WithAuthScheme(cfg.GetAuthScheme()),
		auth.WithVerifyRoute(relativeRoute(cfg.Server.BasePath, cfg.GetVerifyRoute())),
		auth.WithDebug(cfg.App.Debug),
	)

	return &server{app: app, repo: repo}, nil
}

// relativeRoute strips the mount prefix from the configured verify route so
// signed links resolve to the verify handler.
func relativeRoute(basePath, route string) string {
	if basePath == "" || basePath == "/" {
		return route
	}
	if len(route) > len(basePath) && route[:len(basePath)] == basePath && route[len(basePath)] == '/' {
		return route[len(basePath):]
	}
	return route
}

func newZap(app config.AppConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(app.LogLevel)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if app.Debug {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

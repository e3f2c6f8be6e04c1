package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/logiflow/logiflow/cmd/logiflow/cli"
	"github.com/logiflow/logiflow/internal/app"
	"github.com/logiflow/logiflow/internal/audit"
	"github.com/logiflow/logiflow/internal/auth"
	"github.com/logiflow/logiflow/internal/backups"
	"github.com/logiflow/logiflow/internal/observability"
	"github.com/logiflow/logiflow/internal/platform/cache"
	"github.com/logiflow/logiflow/internal/platform/db"
	"github.com/logiflow/logiflow/internal/platform/httpx"
	"github.com/logiflow/logiflow/internal/rbac"
	"github.com/logiflow/logiflow/internal/shared"
	"github.com/logiflow/logiflow/internal/tasks"
	"github.com/logiflow/logiflow/internal/users"
	"github.com/logiflow/logiflow/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "matrix":
		fs := flag.NewFlagSet("matrix", flag.ExitOnError)
		role := fs.String("role", "", "only print this role")
		asJSON := fs.Bool("json", false, "print JSON")
		_ = fs.Parse(args)
		os.Exit(cli.MatrixCommand(cli.MatrixOptions{Role: *role, JSONOutput: *asJSON}))
	case "serve", "jobs", "user":
	default:
		fmt.Fprintf(os.Stderr, "usage: logiflow [serve | matrix | jobs stats | jobs trigger <name> | user create]\n")
		os.Exit(2)
	}

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	switch cmd {
	case "jobs":
		os.Exit(runJobs(ctx, cfg, args))
	case "user":
		os.Exit(runUser(ctx, cfg, logger, args))
	}

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: cfg.PGMaxConns})
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	sessionManager := shared.NewSessionManager(redisClient, cfg.SessionCookie, cfg.SessionTTL, cfg.IsProduction())
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret)
	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	usersService := users.NewService(users.NewRepository(pool), auditLogger, logger)
	rbacMiddleware := rbac.Middleware{Resolver: usersService, Logger: logger, Metrics: metrics}

	authService := auth.NewService(auth.NewRepository(pool), logger)
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager, rbacMiddleware, cfg.LoginRateLimit)

	tasksService := tasks.NewService(tasks.NewRepository(pool), auditLogger, logger)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient := jobs.NewClient(redisOpts)
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	backupsService := backups.NewService(backups.NewRepository(pool), jobClient, backups.NewScheduleStore(redisClient), auditLogger, logger)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessionManager,
		CSRFManager:        csrfManager,
		RBACMiddleware:     rbacMiddleware,
		AuthHandler:        authHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(rbacMiddleware),
		UsersHandler:       users.NewHandler(logger, usersService, rbacMiddleware),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), rbacMiddleware),
		TasksHandler:       tasks.NewHandler(logger, tasksService, rbacMiddleware),
		BackupsHandler:     backups.NewHandler(logger, backupsService, rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
		Readiness: []app.ReadinessCheck{
			{Name: "postgres", Check: pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func runJobs(ctx context.Context, cfg *app.Config, args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: logiflow jobs [stats | scheduled | trigger <name>]")
		return 2
	}
	jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
	defer jobsCLI.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	var out any
	var err error
	switch args[0] {
	case "stats":
		out, err = jobsCLI.InspectQueue(ctx)
	case "scheduled":
		out, err = jobsCLI.ListScheduled(ctx, 20)
	case "trigger":
		if len(args) < 2 {
			fmt.Fprintln(os.Stderr, "usage: logiflow jobs trigger <name>")
			return 2
		}
		out, err = jobsCLI.Trigger(ctx, args[1])
	default:
		fmt.Fprintf(os.Stderr, "jobs: unknown subcommand %q\n", args[0])
		return 2
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs %s: %v\n", args[0], err)
		return 1
	}
	if err := enc.Encode(out); err != nil {
		return 1
	}
	return 0
}

func runUser(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	if len(args) == 0 || args[0] != "create" {
		fmt.Fprintln(os.Stderr, "usage: logiflow user create -username NAME -name NAME -role ROLE -password PASS")
		return 2
	}
	fs := flag.NewFlagSet("user create", flag.ExitOnError)
	var in users.CreateInput
	fs.StringVar(&in.Username, "username", "", "login name")
	fs.StringVar(&in.Name, "name", "", "display name")
	fs.StringVar(&in.Email, "email", "", "email address")
	fs.StringVar(&in.Role, "role", "employee", "admin, directeur, manager or employee")
	fs.StringVar(&in.Password, "password", os.Getenv("LOGIFLOW_PASSWORD"), "initial password")
	_ = fs.Parse(args[1:])

	if err := httpx.NewValidator().Struct(in); err != nil {
		fmt.Fprintf(os.Stderr, "user create: %v\n", err)
		return 2
	}

	pool, err := pgxpool.New(ctx, cfg.PGDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "user create: connect postgres: %v\n", err)
		return 1
	}
	defer pool.Close()

	svc := users.NewService(users.NewRepository(pool), shared.NewAuditLogger(pool), logger)
	user, err := svc.CreateUser(ctx, 0, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "user create: %v\n", err)
		return 1
	}
	fmt.Fprintf(os.Stdout, "created user %d (%s, %s)\n", user.ID, user.Username, user.Role())
	return 0
}

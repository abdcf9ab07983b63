package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/emradmin/internal/config"
	"github.com/ehr/emradmin/internal/domain/account"
	"github.com/ehr/emradmin/internal/domain/invitation"
	"github.com/ehr/emradmin/internal/platform/audit"
	"github.com/ehr/emradmin/internal/platform/auth"
	"github.com/ehr/emradmin/internal/platform/db"
	"github.com/ehr/emradmin/internal/platform/middleware"
	"github.com/ehr/emradmin/internal/platform/notification"
	"github.com/ehr/emradmin/internal/platform/validation"
	"github.com/ehr/emradmin/migrations"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "emradmin-server",
		Short: "EMR account administration API",
	}
	root.AddCommand(serveCmd())
	root.AddCommand(migrateCmd())
	root.AddCommand(conflictsCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cmd.Context(), cfg, newLogger(cfg, os.Stdout))
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(cmd, func(ctx context.Context, m *db.Migrator, schema string) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), schema, statuses)
				return nil
			})
		},
	}

	for _, c := range []*cobra.Command{upCmd, statusCmd} {
		c.Flags().String("schema", "tenant_default", "Target schema for migrations")
		c.Flags().String("dir", "", "Migrations directory (defaults to the embedded set)")
		cmd.AddCommand(c)
	}
	return cmd
}

func withMigrator(cmd *cobra.Command, fn func(context.Context, *db.Migrator, string) error) error {
	schema, _ := cmd.Flags().GetString("schema")
	dir, _ := cmd.Flags().GetString("dir")

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, migrationSource(dir)), schema)
}

func migrationSource(dir string) fs.FS {
	if dir == "" {
		return migrations.FS
	}
	return os.DirFS(dir)
}

func printStatus(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// conflictsCmd checks a role combination offline, e.g.
//
//	emradmin-server conflicts admin billing viewer
func conflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts <role>...",
		Short: "Report conflicts within a set of role codes",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			conflicts := account.DetectConflicts(args)
			if len(conflicts) == 0 {
				fmt.Fprintln(out, "no conflicts")
				return nil
			}
			for _, c := range conflicts {
				fmt.Fprintf(out, "%-8s %-22s %-30s %s\n", c.Severity, c.Type, strings.Join(c.Roles, ","), c.Message)
			}
			if account.HasBlockingConflict(conflicts) {
				return errors.New("blocking conflicts found")
			}
			return nil
		},
	}
}

func newLogger(cfg *config.Config, w io.Writer) zerolog.Logger {
	if cfg.IsDev() {
		w = zerolog.ConsoleWriter{Out: w}
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// newEcho builds the server with global middleware. Routes are added by the
// caller.
func newEcho(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validation.New()

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.SecureWithConfig(echomw.SecureConfig{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "DENY",
		HSTSMaxAge:         31536000,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
	}))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Tenant-ID"},
	}))
	return e
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.IsDev() {
		return auth.DevAuthMiddleware()
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: []byte(cfg.AuthSigningKey),
	})
}

func newEmailSender(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (notification.EmailSender, error) {
	if !cfg.EmailEnabled() {
		logger.Warn().Msg("SES_FROM_EMAIL not set; invitation e-mails are logged, not delivered")
		return notification.NewLogSender(logger), nil
	}
	return notification.NewSESSender(ctx, cfg.SESRegion, cfg.SESFromEmail, cfg.SESFromName, logger)
}

// registerAPI wires the account and invitation services onto e.
func registerAPI(e *echo.Echo, cfg *config.Config, pool *pgxpool.Pool, sender notification.EmailSender, logger zerolog.Logger) {
	pgAudit := audit.NewPGRecorder(pool)
	recorder := audit.Multi{pgAudit, audit.NewLogRecorder(logger)}

	accountRepo := account.NewAccountRepo(pool)
	accountSvc := account.NewService(accountRepo, account.NewRoleAssigner(pool), recorder, logger)

	mailer := notification.NewMailer(sender, nil)
	notifier := invitation.NewEmailNotifier(mailer, cfg.AppBaseURL, cfg.Organization)
	invitationSvc := invitation.NewService(invitation.NewRepo(pool), accountRepo, notifier, recorder, cfg.AppBaseURL, logger)
	accountSvc.SetInviter(invitationSvc)

	e.GET("/health", db.HealthHandler(pool))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	tenant := db.TenantMiddleware(pool, cfg.DefaultTenant)
	limiter := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	})
	apiV1 := e.Group("/api/v1", authMiddleware(cfg), tenant, limiter)
	fhirGroup := e.Group("/fhir", authMiddleware(cfg), tenant)

	account.NewHandler(accountSvc).RegisterRoutes(apiV1, fhirGroup)
	invitation.NewHandler(invitationSvc).RegisterRoutes(apiV1)
	audit.NewHandler(pgAudit).RegisterRoutes(apiV1)
}

func runServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	sender, err := newEmailSender(ctx, cfg, logger)
	if err != nil {
		return err
	}

	e := newEcho(cfg, logger)
	registerAPI(e, cfg, pool, sender, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return e.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}

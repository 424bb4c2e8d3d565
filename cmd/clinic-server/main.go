package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicore/clinicore/internal/config"
	"github.com/clinicore/clinicore/internal/domain/activity"
	"github.com/clinicore/clinicore/internal/domain/episode"
	"github.com/clinicore/clinicore/internal/platform/auth"
	"github.com/clinicore/clinicore/internal/platform/db"
	"github.com/clinicore/clinicore/internal/platform/metrics"
	"github.com/clinicore/clinicore/internal/platform/middleware"
)

// ActivityServiceAdapter adapts an activity.Service to the
// episode.ActivityLogger interface, avoiding circular imports between the
// episode and activity packages. Journal failures are logged and swallowed:
// the journal must never fail a clinical operation.
type ActivityServiceAdapter struct {
	svc    *activity.Service
	logger zerolog.Logger
}

// NewActivityServiceAdapter creates a new adapter.
func NewActivityServiceAdapter(svc *activity.Service, logger zerolog.Logger) *ActivityServiceAdapter {
	return &ActivityServiceAdapter{svc: svc, logger: logger}
}

// LogActivity implements episode.ActivityLogger.
func (a *ActivityServiceAdapter) LogActivity(ctx context.Context, kind string, episodeID uuid.UUID, patientName, details string, actor auth.Actor) {
	typ, err := activity.ParseType(kind)
	if err != nil {
		a.logger.Warn().Err(err).Str("kind", kind).Msg("unrecognized activity kind")
		return
	}
	if _, err := a.svc.Add(ctx, typ, episodeID, patientName, details, actor); err != nil {
		a.logger.Warn().Err(err).Str("episode_id", episodeID.String()).Msg("failed to record activity")
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic front-desk API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(importCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the clinic API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
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
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// importCmd bulk-registers episodes from a CSV file with the columns
// first_name,last_name,birth_date,gender,company,service[,notes].
func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Bulk-register episodes from a CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx := context.Background()
			repo, cleanup, err := buildEpisodeRepo(ctx, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			rows, err := readImportFile(args[0])
			if err != nil {
				return err
			}

			svc := episode.NewService(repo)
			actor := auth.Actor{Name: "bulk-import", Role: "admin"}
			res, err := svc.BulkImport(ctx, rows, actor)
			if err != nil {
				return err
			}

			fmt.Printf("Imported %d episode(s), %d row error(s).\n", len(res.Created), len(res.Errors))
			for _, rowErr := range res.Errors {
				fmt.Printf("  %s\n", rowErr.Error())
			}
			return nil
		},
	}
	return cmd
}

func readImportFile(path string) ([]episode.ImportRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) > 0 && records[0][0] == "first_name" {
		records = records[1:] // header row
	}

	rows := make([]episode.ImportRow, 0, len(records))
	for _, rec := range records {
		var row episode.ImportRow
		for i, val := range rec {
			switch i {
			case 0:
				row.FirstName = val
			case 1:
				row.LastName = val
			case 2:
				row.BirthDate = val
			case 3:
				row.Gender = val
			case 4:
				row.Company = val
			case 5:
				row.Service = val
			case 6:
				row.Notes = val
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func buildEpisodeRepo(ctx context.Context, cfg *config.Config) (episode.Repository, func(), error) {
	if cfg.Store == "memory" {
		return episode.NewMemoryRepo(), func() {}, nil
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return episode.NewRepo(pool), pool.Close, nil
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Stores
	ctx := context.Background()
	var (
		pool         *pgxpool.Pool
		episodeRepo  episode.Repository
		activityRepo activity.Repository
	)
	if cfg.Store == "postgres" {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		episodeRepo = episode.NewRepo(pool)
		activityRepo = activity.NewRepo(pool)
	} else {
		logger.Info().Msg("using in-memory store")
		episodeRepo = episode.NewMemoryRepo()
		activityRepo = activity.NewMemoryRepo()
	}

	// Metrics
	m := metrics.New()

	// Services
	episodeSvc := episode.NewService(episodeRepo)
	episodeSvc.SetMetrics(m)
	activitySvc := activity.NewService(activityRepo)
	activitySvc.SetMetrics(m)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.JWTSigningKey),
		}))
	}

	// API group
	apiV1 := e.Group("/api/v1")

	episodeHandler := episode.NewHandler(episodeSvc)
	episodeHandler.SetActivityLogger(NewActivityServiceAdapter(activitySvc, logger))
	episodeHandler.RegisterRoutes(apiV1)

	activityHandler := activity.NewHandler(activitySvc)
	activityHandler.RegisterRoutes(apiV1)

	// Health and metrics
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/metrics", m.Handler())
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

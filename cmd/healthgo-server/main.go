package main

import (
	"bufio"
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/camelloncase/healthgo/internal/config"
	"github.com/camelloncase/healthgo/internal/domain/patient"
	"github.com/camelloncase/healthgo/internal/domain/user"
	"github.com/camelloncase/healthgo/internal/platform/auth"
	"github.com/camelloncase/healthgo/internal/platform/db"
	"github.com/camelloncase/healthgo/internal/platform/middleware"
	"github.com/camelloncase/healthgo/internal/platform/pii"
	"github.com/camelloncase/healthgo/internal/platform/stream"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "healthgo-server",
		Short: "Patient vitals distribution server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(keygenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the vitals API server",
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
			return runMigrate(dir, false)
		},
	}
	upCmd.Flags().String("dir", "migrations", "migrations directory")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return runMigrate(dir, true)
		},
	}
	statusCmd.Flags().String("dir", "migrations", "migrations directory")

	cmd.AddCommand(upCmd)
	cmd.AddCommand(statusCmd)
	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load accounts and demo patients from a seed file",
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			return runSeed(file)
		},
	}
	cmd.Flags().String("file", "seeddata.txt", "seed data file")
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a hex-encoded AES-256 field encryption key",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := make([]byte, 32)
			if _, err := crypto_rand.Read(key); err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			fmt.Println(hex.EncodeToString(key))
			return nil
		},
	}
}

func newLogger() zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return logger
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()

	// Repositories: PostgreSQL, or in-memory for local development.
	var (
		patientRepo patient.Repository
		userRepo    user.Repository
		pool        *pgxpool.Pool
	)
	if cfg.InMemory {
		logger.Warn().Msg("IN_MEMORY=true, all data is lost on shutdown")
		patientRepo = patient.NewRepoMem()
		userRepo = user.NewRepoMem()
	} else {
		pool, err = db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		logger.Info().Msg("connected to database")

		patientRepo = patient.NewRepoPG(pool)
		userRepo = user.NewRepoPG(pool)
	}

	// Field encryption
	enc, err := pii.NewEncryptionService(cfg.EncryptionKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize field encryption")
	}

	jwtCfg := auth.JWTConfig{SigningKey: jwtSigningKey(cfg, logger), TTL: cfg.JWTTTL()}

	// Live stream hub
	hub := stream.NewHub(cfg.StreamSendTimeout, cfg.StreamIdleTimeout, logger)
	defer hub.Close()

	patientService := patient.NewService(patientRepo, enc, hub, logger)
	patientHandler := patient.NewHandler(patientService, logger)
	userService := user.NewService(userRepo, jwtCfg, logger)
	userHandler := user.NewHandler(userService, logger)
	sseHandler := stream.NewSSEHandler(hub)
	wsHandler := stream.NewWSHandler(hub)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	if pool != nil {
		e.GET("/health/db", db.HealthHandler(pool))
	}

	// Unauthenticated account endpoints
	userHandler.RegisterAuthRoutes(e.Group("/auth"))

	// Authenticated API
	var authMW echo.MiddlewareFunc
	if cfg.IsDev() {
		authMW = auth.DevAuthMiddleware(jwtCfg)
	} else {
		authMW = auth.JWTMiddleware(jwtCfg)
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1", authMW)
	apiV1.Use(middleware.RateLimit(rateLimitCfg))
	patientHandler.RegisterRoutes(apiV1)
	userHandler.RegisterAdminRoutes(apiV1)
	sseHandler.RegisterRoutes(apiV1)

	wsGroup := e.Group("/ws", authMW)
	wsHandler.RegisterRoutes(wsGroup)

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	return nil
}

// jwtSigningKey resolves the token signing key. A missing secret is fatal in
// production; in development an ephemeral key is generated so tokens stop
// working across restarts.
func jwtSigningKey(cfg *config.Config, logger zerolog.Logger) []byte {
	if cfg.JWTSecret != "" {
		return []byte(cfg.JWTSecret)
	}
	if cfg.IsProduction() {
		logger.Fatal().Msg("JWT_SECRET is required in production")
	}

	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		logger.Fatal().Err(err).Msg("failed to generate ephemeral JWT key")
	}
	logger.Warn().Msg("JWT_SECRET not set, using an ephemeral signing key")
	return key
}

func runMigrate(dir string, statusOnly bool) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.InMemory {
		return fmt.Errorf("migrations require DATABASE_URL (IN_MEMORY=true has no schema)")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	migrator := db.NewMigrator(pool, dir)

	if statusOnly {
		statuses, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = fmt.Sprintf("applied %s", s.AppliedAt.Format(time.RFC3339))
			}
			fmt.Printf("%4d  %-40s %s\n", s.Version, s.Name, state)
		}
		return nil
	}

	count, err := migrator.Up(ctx)
	if err != nil {
		return err
	}
	logger.Info().Int("applied", count).Msg("migrations complete")
	return nil
}

// runSeed loads accounts and demo patients from a semicolon-separated file.
// Lines look like:
//
//	doctor;medico;medico123
//	visitor;visitante;visitante123
//	patient;PAC001;João Silva;123.456.789-01
func runSeed(file string) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.InMemory {
		return fmt.Errorf("seeding requires DATABASE_URL (IN_MEMORY=true has no persistence)")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	enc, err := pii.NewEncryptionService(cfg.EncryptionKey, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize field encryption")
	}

	jwtCfg := auth.JWTConfig{SigningKey: jwtSigningKey(cfg, logger), TTL: cfg.JWTTTL()}
	userService := user.NewService(user.NewRepoPG(pool), jwtCfg, logger)
	patientService := patient.NewService(patient.NewRepoPG(pool), enc, nil, logger)

	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open seed file: %w", err)
	}
	defer f.Close()

	created := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ";")
		switch fields[0] {
		case "doctor", "visitor":
			if len(fields) != 3 {
				logger.Warn().Str("line", line).Msg("skipping malformed account line")
				continue
			}
			role := auth.RoleDoctor
			if fields[0] == "visitor" {
				role = auth.RoleVisitor
			}
			if _, err := userService.Signup(ctx, fields[1], fields[2], role); err != nil {
				logger.Warn().Err(err).Str("username", fields[1]).Msg("skipping account")
				continue
			}
			created++

		case "patient":
			if len(fields) != 4 {
				logger.Warn().Str("line", line).Msg("skipping malformed patient line")
				continue
			}
			in := patient.RegisterInput{PatientID: fields[1], FullName: fields[2], NationalID: fields[3]}
			if _, err := patientService.Register(ctx, in); err != nil {
				logger.Warn().Err(err).Str("patient", fields[1]).Msg("skipping patient")
				continue
			}
			created++

		default:
			logger.Warn().Str("line", line).Msg("skipping unrecognized record type")
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}

	logger.Info().Int("created", created).Msg("seed complete")
	return nil
}

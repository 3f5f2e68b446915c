package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/library-management/internal/config"
	"github.com/iliyamo/library-management/internal/database"
	"github.com/iliyamo/library-management/internal/handler"
	"github.com/iliyamo/library-management/internal/middleware"
	"github.com/iliyamo/library-management/internal/queue"
	"github.com/iliyamo/library-management/internal/repository"
	"github.com/iliyamo/library-management/internal/router"
	"github.com/iliyamo/library-management/internal/service"
)

func main() {
	_ = godotenv.Load() // .env is optional; real env wins

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.Load() // Load environment config

	db, err := database.Open(cfg.DB)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	users := repository.NewUserRepo(db)
	books := repository.NewBookRepo(db)
	borrowers := repository.NewBorrowerRepo(db)
	borrows := repository.NewBorrowRepo(db)

	opts := []service.Option{service.WithLogger(logger)}
	if cfg.EventsEnabled {
		opts = append(opts, service.WithPublisher(queue.NewPublisher(cfg.AMQPURL, logger)))
	}
	engine := service.NewBorrowService(borrows, borrows, opts...)

	rl := config.LoadRateLimitConfig()
	rdb := config.NewRedisClient(config.LoadRedisConfig(), logger)

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			logger.LogAttrs(c.Request().Context(), level, "http request", attrs...)
			return nil
		},
	}))

	router.RegisterRoutes(e, db)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, borrowers), cfg.JWTSecret)
	router.RegisterLibrary(e, router.Library{
		Books:       handler.NewBookHandler(books),
		Borrowers:   handler.NewBorrowerHandler(borrowers),
		Borrows:     handler.NewBorrowHandler(engine),
		Reports:     handler.NewReportHandler(engine),
		BorrowLimit: middleware.NewTokenBucket(rl.Scoped("borrows"), rdb),
		ReportLimit: middleware.NewTokenBucket(rl.Scoped("reports"), rdb),
	}, cfg.JWTSecret)

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info

	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	// drain HTTP first, then the pool the handlers were using
	quit, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-quit.Done()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	if err := db.Close(); err != nil {
		logger.Error("db close", "error", err)
	}
	log.Printf("stopped")
}

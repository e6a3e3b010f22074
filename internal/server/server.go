package server

import (
	"errors"
	"time"

	"backend-runtracker/internal/auth"
	"backend-runtracker/internal/config"
	"backend-runtracker/internal/db"
	"backend-runtracker/internal/live"
	"backend-runtracker/internal/logging"
	"backend-runtracker/internal/profile"
	"backend-runtracker/internal/runs"
	"backend-runtracker/internal/stream"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App    *fiber.App
	Cfg    config.Config
	DB     db.Querier
	Redis  *redis.Client
	Stream *stream.Hub
	Live   *live.Manager
}

func NewServer(cfg config.Config, pool *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New(fiber.Config{ErrorHandler: errorHandler})
	app.Use(recover.New())
	app.Use(requestLogger)

	var q db.Querier
	if pool != nil {
		q = pool
	}

	s := &Server{
		App:    app,
		Cfg:    cfg,
		DB:     q,
		Redis:  redisClient,
		Stream: stream.NewHub(redisClient),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	tokens := auth.NewTokens(s.Cfg.JWTSecret)
	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	runSvc := runs.NewService(s.DB)
	profileSvc := profile.NewService(s.DB, s.Redis, s.Cfg.DefaultWeightKg)
	s.Live = live.NewManager(live.Deps{
		Config: live.Config{
			Tracker:         s.Cfg.Tracker(),
			BreakerFailures: s.Cfg.SubmitBreakerFailures,
			BreakerTimeout:  s.Cfg.SubmitBreakerTimeout,
		},
		Runs:     runSvc,
		Profiles: profileSvc,
		Hub:      s.Stream,
	})

	auth.RegisterRoutes(s.App.Group("/auth"), tokens)
	runs.RegisterRoutes(s.App.Group("/api/runs"), runSvc, jwtMiddleware)
	profile.RegisterRoutes(s.App.Group("/api/profile"), profileSvc, jwtMiddleware)
	live.RegisterRoutes(s.App.Group("/api/live"), s.Live, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, tokens.Verify)
}

// Close stops live sessions and the event hub. The database handles belong
// to the caller.
func (s *Server) Close() {
	s.Live.Close()
	s.Stream.Close()
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		code = ferr.Code
	}
	if code >= fiber.StatusInternalServerError {
		logging.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return c.Status(code).JSON(fiber.Map{"message": err.Error()})
}

func requestLogger(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	if err != nil {
		if herr := c.App().ErrorHandler(c, err); herr != nil {
			_ = c.SendStatus(fiber.StatusInternalServerError)
		}
	}
	logging.Debug().
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", c.Response().StatusCode()).
		Dur("latency", time.Since(start)).
		Msg("request")
	return nil
}

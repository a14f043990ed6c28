package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	fiberws "github.com/gofiber/websocket/v2"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-csms/internal/adapter/cache"
	"github.com/seu-repo/ocpp-csms/internal/adapter/http/fiber/middleware"
	"github.com/seu-repo/ocpp-csms/internal/adapter/queue"
	"github.com/seu-repo/ocpp-csms/internal/authguard"
	"github.com/seu-repo/ocpp-csms/internal/logstore"
	"github.com/seu-repo/ocpp-csms/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-csms/internal/operator"
	"github.com/seu-repo/ocpp-csms/internal/router"
	"github.com/seu-repo/ocpp-csms/internal/station"
	"github.com/seu-repo/ocpp-csms/pkg/config"
)

const (
	serviceName    = "ocpp-csms"
	serviceVersion = "v1.0.0"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting OCPP-CSMS",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	tracerProvider, err := telemetry.InitTracer(serviceName, cfg.OpenTelemetry.Jaeger.Endpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			logger.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	logs, err := logstore.Open(cfg.Database.Path, cfg.Database.LogDir, logger)
	if err != nil {
		logger.Fatal("Failed to open log store", zap.Error(err))
	}
	defer logs.Close()

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, logger)
	if err != nil {
		logger.Warn("Redis not available, running without revocation cache", zap.Error(err))
		redisCache = nil
	}
	if redisCache != nil {
		defer redisCache.Close()
	}

	messageQueue, err := queue.NewNATSQueue(cfg.NATS.URL, logger)
	if err != nil {
		logger.Warn("NATS not available, running without event publisher", zap.Error(err))
		messageQueue = nil
	} else {
		defer messageQueue.Close()
	}
	publish := func(event string, stationID string) {
		if messageQueue == nil {
			return
		}
		subject := "ocpp." + event
		if err := messageQueue.Publish(subject, []byte(stationID)); err != nil {
			telemetry.MessageQueueMessagesTotal.WithLabelValues(subject, "failed").Inc()
			logger.Warn("Failed to publish station event", zap.String("event", event), zap.Error(err))
			return
		}
		telemetry.MessageQueueMessagesTotal.WithLabelValues(subject, "published").Inc()
	}

	stationGuard := authguard.NewStationGuard(cfg.Station.AuthPassword)
	var revocationCache authguard.RevocationCache
	if redisCache != nil {
		revocationCache = redisCache
	}
	operatorGuard := authguard.NewOperatorGuard(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.SessionDuration, cfg.Operator.AllowList, revocationCache, logger)

	rt := router.New(logger, logs.Append, publish)
	go rt.Run()
	defer rt.Stop()

	upgrader := gorillaws.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}

	stationMux := http.NewServeMux()
	stationMux.HandleFunc("/ocpp/", func(w http.ResponseWriter, r *http.Request) {
		serialID := strings.TrimPrefix(r.URL.Path, "/ocpp/")
		serialID = strings.Trim(serialID, "/")
		if serialID == "" {
			http.Error(w, "missing charge point id", http.StatusBadRequest)
			return
		}
		if err := stationGuard.Authenticate(serialID, r.Header.Get("Authorization")); err != nil {
			if authErr, ok := err.(*authguard.AuthError); ok {
				if authErr.Status == http.StatusUnauthorized {
					w.Header().Set("WWW-Authenticate", `Basic realm="ocpp-csms"`)
				}
				http.Error(w, authErr.Message, authErr.Status)
				return
			}
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn("Station websocket upgrade failed", zap.String("serial_id", serialID), zap.Error(err))
			return
		}

		logAppend := func(level, message string) { logs.Append(serialID, level, message) }
		sess := station.New(serialID, conn, rt, logAppend, logger,
			cfg.Station.HeartbeatInterval, cfg.Station.ClientTimeout, cfg.Station.TimeOffset)
		go sess.Serve()
	})

	stationServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Station.Port),
		Handler:      stationMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
	go func() {
		logger.Info("Starting station WebSocket listener", zap.Int("port", cfg.Station.Port))
		if err := stationServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Station server failed", zap.Error(err))
		}
	}()

	app := fiber.New(fiber.Config{
		AppName:               serviceName,
		ServerHeader:          serviceName,
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler(logger),
		ReadTimeout:           cfg.Operator.ReadTimeout,
		WriteTimeout:          cfg.Operator.WriteTimeout,
		IdleTimeout:           cfg.Operator.IdleTimeout,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Operator.AllowedOrigins, ","),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, OPTIONS",
		AllowCredentials: true,
	}))
	app.Use(middleware.CircuitBreakerWithLogger(logger))
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		telemetry.RecordHTTPRequest(c.Method(), c.Route().Path, c.Response().StatusCode(), time.Since(start).Seconds())
		return err
	})

	app.Get("/health/live", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/health/ready", func(c *fiber.Ctx) error {
		if err := logs.Ping(); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).SendString("Log store not ready")
		}
		if redisCache != nil {
			if err := redisCache.Ping(); err != nil {
				return c.Status(fiber.StatusServiceUnavailable).SendString("Cache not ready")
			}
		}
		return c.SendString("Ready")
	})

	if cfg.Prometheus.Enabled {
		metricsPath := cfg.Prometheus.Path
		if metricsPath == "" {
			metricsPath = "/metrics"
		}
		app.Get(metricsPath, func(c *fiber.Ctx) error {
			handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
			handler(c.Context())
			return nil
		})
	}

	app.Post("/api/auth", func(c *fiber.Ctx) error {
		var body struct {
			LoginID  string `json:"login_id"`
			Password string `json:"password"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		if !operatorGuard.IsAllowed(body.LoginID) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "login not permitted"})
		}
		token, err := operatorGuard.IssueCookie(body.LoginID)
		if err != nil {
			logger.Error("Failed to issue operator session cookie", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to issue session"})
		}
		c.Cookie(&fiber.Cookie{
			Name:     "ocpp_csms_session",
			Value:    token,
			HTTPOnly: true,
			SameSite: "Strict",
			Expires:  time.Now().Add(cfg.JWT.SessionDuration),
		})
		return c.JSON(fiber.Map{"login_id": body.LoginID})
	})

	app.Delete("/api/auth", func(c *fiber.Ctx) error {
		token := c.Cookies("ocpp_csms_session")
		if token != "" {
			if err := operatorGuard.Revoke(token); err != nil {
				logger.Warn("Failed to revoke operator session", zap.Error(err))
			}
		}
		c.ClearCookie("ocpp_csms_session")
		return c.SendStatus(fiber.StatusNoContent)
	})

	requireOperatorSession := func(c *fiber.Ctx) error {
		token := c.Cookies("ocpp_csms_session")
		loginID, err := operatorGuard.ValidateCookie(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired session")
		}
		c.Locals("loginID", loginID)
		return c.Next()
	}

	app.Get("/api/get-chargers", requireOperatorSession, func(c *fiber.Ctx) error {
		return c.JSON(rt.ListStations())
	})

	app.Post("/api/post-request", requireOperatorSession, func(c *fiber.Ctx) error {
		var body struct {
			Charger string          `json:"charger"`
			Action  string          `json:"action"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := c.BodyParser(&body); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
		loginID, _ := c.Locals("loginID").(string)
		wireFrame, validationErr, routeErr := operator.SendOCPPCall(rt, loginID, body.Charger, body.Action, body.Payload)
		if validationErr != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": validationErr.Error()})
		}
		if routeErr != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": routeErr.Error()})
		}
		return c.JSON(fiber.Map{"result": wireFrame})
	})

	app.Use("/ws/operator", func(c *fiber.Ctx) error {
		if !fiberws.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Cookies("ocpp_csms_session")
		loginID, err := operatorGuard.ValidateCookie(token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired session")
		}
		c.Locals("loginID", loginID)
		return c.Next()
	})

	app.Get("/ws/operator", fiberws.New(func(c *fiberws.Conn) {
		loginID, _ := c.Locals("loginID").(string)
		clientID := loginID + ":" + base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf("%p", c)))
		sess := operator.New(clientID, c, rt, logs, logger, cfg.Operator.LogBaseURL,
			cfg.Operator.HeartbeatInterval, cfg.Operator.ClientTimeout)
		sess.Serve()
	}))

	go func() {
		logger.Info("Starting operator HTTP/WebSocket listener", zap.Int("port", cfg.Operator.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Operator.Port)); err != nil {
			logger.Fatal("Operator server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("Operator server forced to shutdown", zap.Error(err))
	}
	if err := stationServer.Shutdown(ctx); err != nil {
		logger.Error("Station server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited gracefully")
}

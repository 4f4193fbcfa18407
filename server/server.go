package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	log "github.com/sirupsen/logrus"

	"contentfeed/feed"
	"contentfeed/models"
	"contentfeed/query"
	"contentfeed/state"
)

// Store hands out the collections served over HTTP
type Store interface {
	Collection(name string) state.Collection
}

// StoreFunc adapts a function to Store
type StoreFunc func(name string) state.Collection

func (f StoreFunc) Collection(name string) state.Collection {
	return f(name)
}

type ServerConfig struct {
	// The document store behind the API
	Store Store

	// Broadcaster passing change events to SSE clients
	Broadcaster *Broadcaster

	// Origins allowed by CORS, comma separated. Empty allows all.
	AllowOrigins string

	// Interval between keep-alive pings on change streams
	PingInterval time.Duration
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

var errBadRequest = errors.New("bad request")

func errorStatus(err error) int {
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, query.ErrInvalidQuery),
		errors.Is(err, feed.ErrInvalidTimestamp),
		errors.Is(err, errBadRequest):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func errorHandler(c *fiber.Ctx, err error) error {
	status := errorStatus(err)
	if status >= fiber.StatusInternalServerError {
		log.WithFields(log.Fields{
			"method": c.Method(),
			"path":   c.Path(),
			"error":  err,
		}).Error("Request failed")
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error()})
}

// Returns a fiber.App serving the document collections over HTTP
func Server(config *ServerConfig) *fiber.App {
	if config.Broadcaster == nil {
		config.Broadcaster = NewBroadcaster()
	}
	if config.PingInterval <= 0 {
		config.PingInterval = 15 * time.Second
	}
	allowOrigins := config.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "*"
	}

	// ids, collection names and metric labels outlive the request
	app := fiber.New(fiber.Config{
		AppName:               "contentfeed",
		DisableStartupMessage: true,
		Immutable:             true,
		ErrorHandler:          errorHandler,
	})

	// Middleware to track the latency of each request
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()
		if err != nil {
			// write the error response now so the status below is final
			if herr := errorHandler(c, err); herr != nil {
				return herr
			}
		}

		latency := time.Since(start)
		route := c.Route().Path
		status := c.Response().StatusCode()

		requestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		requestDuration.WithLabelValues(c.Method(), route).Observe(latency.Seconds())

		log.WithFields(log.Fields{
			"method":  c.Method(),
			"route":   route,
			"status":  status,
			"latency": latency,
		}).Info("Request")
		return nil
	})

	app.Use(requestid.New(requestid.ConfigDefault))
	app.Use(compress.New(compress.Config{
		Next: func(c *fiber.Ctx) bool {
			// streams are flushed event by event
			return strings.HasSuffix(c.Path(), "/changes")
		},
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: allowOrigins,
		AllowHeaders: "Cache-Control, Content-Type",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendString("OK")
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	h := &handlers{store: config.Store, broadcaster: config.Broadcaster, ping: config.PingInterval}

	v1 := app.Group("/v1/collections/:collection", func(c *fiber.Ctx) error {
		if !lo.Contains(models.Collections, c.Params("collection")) {
			return fiber.NewError(fiber.StatusNotFound, "unknown collection "+c.Params("collection"))
		}
		return c.Next()
	})

	v1.Get("/documents", h.list)
	v1.Post("/query", h.query)
	v1.Get("/documents/:id", h.get)
	v1.Put("/documents/:id", h.set)
	v1.Patch("/documents/:id", h.update)
	v1.Delete("/documents/:id", h.delete)
	v1.Get("/changes", h.changes)

	return app
}

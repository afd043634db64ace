// Package server is the HTTP surface of the retrieval engine: fiber
// handlers, request validation and the error envelope. All identity
// values are taken from request bodies as-is; the deployment puts
// authentication in front.
package server

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/vantageinsurance/knowbase"
	"github.com/vantageinsurance/knowbase/codec"
	"github.com/vantageinsurance/knowbase/ingest"
)

// Options configure New.
type Options struct {
	// Logger receives request and failure lines. Defaults to noop.
	Logger *knowbase.Logger

	// BodyLimit caps request bodies. Ingest payloads carry whole
	// documents, so the default is generous.
	BodyLimit int

	// ReadTimeout bounds how long reading a request may take.
	ReadTimeout time.Duration
}

// Server serves the engine over HTTP.
type Server struct {
	app    *fiber.App
	addr   string
	logger *knowbase.Logger
}

// New wires the routes over an engine and its ingestion bridge.
func New(addr string, engine *knowbase.Engine, bridge *ingest.Bridge, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:      knowbase.NoopLogger(),
		BodyLimit:   16 << 20,
		ReadTimeout: 30 * time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	app := fiber.New(fiber.Config{
		AppName:               "knowbased",
		DisableStartupMessage: true,
		BodyLimit:             opts.BodyLimit,
		ReadTimeout:           opts.ReadTimeout,
		JSONEncoder:           codec.Default.Marshal,
		JSONDecoder:           codec.Default.Unmarshal,
		ErrorHandler:          newErrorHandler(opts.Logger),
	})

	app.Use(requestID(), requestLogger(opts.Logger))

	h := NewHandler(engine, bridge)
	app.Get("/healthz", h.HandleHealth)

	apiv1 := app.Group("/api/v1")
	apiv1.Post("/retrieve", h.HandleRetrieve)
	apiv1.Post("/admin/retrieve", h.HandleAdminRetrieve)
	apiv1.Post("/chunks", h.HandleUpsertChunks)
	apiv1.Delete("/chunks", h.HandleClearChunks)
	apiv1.Post("/documents", h.HandleIngestDocument)
	apiv1.Get("/stats", h.HandleStats)

	return &Server{app: app, addr: addr, logger: opts.Logger}
}

// Run blocks serving requests until Shutdown or a listener error.
func (s *Server) Run() error {
	s.logger.Info("http server listening", "addr", s.addr)
	return s.app.Listen(s.addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the fiber app for in-process tests.
func (s *Server) App() *fiber.App {
	return s.app
}

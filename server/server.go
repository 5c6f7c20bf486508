package server

import (
	"context"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"pkg.world.dev/world-engine/foundry/events"
	"pkg.world.dev/world-engine/foundry/server/handler"
	"pkg.world.dev/world-engine/foundry/worldstage"
)

const (
	DefaultPort     = 4040
	shutdownTimeout = 5 * time.Second
)

type Server struct {
	app    *fiber.App
	world  handler.World
	hub    *events.Hub
	stage  *worldstage.Manager
	port   int
	logger zerolog.Logger
}

type Option func(*Server)

func WithPort(port int) Option {
	return func(s *Server) {
		s.port = port
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New returns an HTTP server exposing the world's events, queries and snapshot stream.
func New(w handler.World, hub *events.Hub, stage *worldstage.Manager, opts ...Option) (*Server, error) {
	if w == nil || hub == nil || stage == nil {
		return nil, eris.New("server requires a non-nil world, event hub and stage manager")
	}

	app := fiber.New(fiber.Config{
		Network:               "tcp", // Enable server listening on both ipv4 & ipv6 (default: ipv4 only)
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler,
		UnescapePath:          true,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
	})
	app.Use(cors.New())

	s := &Server{
		app:    app,
		world:  w,
		hub:    hub,
		stage:  stage,
		port:   DefaultPort,
		logger: log.Logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}
	return s, nil
}

// App returns the underlying fiber app, mostly useful for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Serve serves the application, blocking the calling thread until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		addr := ":" + strconv.Itoa(s.port)
		s.logger.Info().Msgf("Starting HTTP server at port %d", s.port)
		if err := s.app.Listen(addr); err != nil {
			serverErr <- eris.Wrap(err, "error starting http server")
		}
	}()

	select {
	case err := <-serverErr:
		return eris.Wrap(err, "server encountered an error")
	case <-ctx.Done():
		if err := s.shutdown(); err != nil {
			return eris.Wrap(err, "error shutting down server")
		}
	}
	return nil
}

// shutdown closes the websocket connections and then gracefully shuts down fiber.
func (s *Server) shutdown() error {
	s.logger.Info().Msg("Shutting down server")

	s.hub.Shutdown()

	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return eris.Wrap(err, "error shutting down server")
	}

	s.logger.Info().Msg("Successfully shut down server")
	return nil
}

func (s *Server) setupRoutes() error {
	worldResponse, err := handler.NewGetWorldResponse(s.world)
	if err != nil {
		return err
	}

	// Route: /events
	s.app.Use("/events", handler.WebSocketUpgrader)
	s.app.Get("/events", handler.WebSocketEvents(s.hub))

	// Route: /world
	s.app.Get("/world", handler.GetWorld(worldResponse))

	// Route: /health
	s.app.Get("/health", handler.GetHealth(s.stage))

	// Route: /machine/...
	s.app.Post("/machine", handler.PostPlace(s.world))
	m := s.app.Group("/machine/:key")
	m.Get("", handler.GetMachine(s.hub))
	m.Delete("", handler.DeleteMachine(s.world))
	m.Post("/configs", handler.PostConfigs(s.world))
	m.Post("/claim", handler.PostClaim(s.world))
	m.Post("/unclaim", handler.PostUnclaim(s.world))
	m.Post("/power", handler.PostPower(s.world))
	m.Post("/energy", handler.PostEnergy(s.world))
	m.Post("/insert", handler.PostInsert(s.world))
	m.Post("/take", handler.PostTake(s.world))
	m.Post("/appraise", handler.PostAppraise(s.world))

	// Route: /query/...
	s.app.Post("/query/machines", handler.PostQueryMachines(s.world))

	// Route: /registry/...
	s.app.Get("/registry", handler.GetRegistry(s.world))
	r := s.app.Group("/registry")
	r.Post("/recalculate", handler.PostRecalculate(s.world))
	r.Post("/register", handler.PostRegister(s.world))
	r.Post("/blacklist", handler.PostBlacklist(s.world))

	return nil
}

// Package web serves the narration UI: upload forms, per-session passes,
// progress over websocket and playback of the merged audio.
package web

import (
	"context"
	"net/http"

	"github.com/book-expert/logger"
	"github.com/book-expert/talktwin/internal/pipeline"
	"github.com/book-expert/talktwin/internal/tts"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

const (
	kindCloned = "cloned"
	statusIdle = "Idle"
)

// Narrator runs the two passes of a session.
type Narrator interface {
	Base(ctx context.Context, req pipeline.BaseRequest) (*pipeline.BaseResult, error)
	Clone(ctx context.Context, base *pipeline.BaseResult, sample []byte, progress pipeline.ProgressFunc) (*pipeline.CloneResult, error)
	Catalog() *tts.Catalog
}

// Options configures the server.
type Options struct {
	Title          string
	LogoPath       string
	StylesheetPath string
	WorkspaceDir   string
	MaxUploadBytes int
}

// Server is the narration web server.
type Server struct {
	app      *fiber.App
	narrator Narrator
	sessions *sessionStore
	page     []byte
	log      *logger.Logger
}

// NewServer renders the index page and registers every route.
func NewServer(opts Options, narrator Narrator, log *logger.Logger) (*Server, error) {
	page, err := renderPage(opts, narrator.Catalog(), log)
	if err != nil {
		return nil, err
	}

	s := &Server{
		narrator: narrator,
		sessions: newSessionStore(opts.WorkspaceDir),
		page:     page,
		log:      log,
	}

	config := fiber.Config{
		AppName:               opts.Title,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	}
	if opts.MaxUploadBytes > 0 {
		config.BodyLimit = opts.MaxUploadBytes
	}

	app := fiber.New(config)

	app.Get("/", s.handleIndex)
	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/voices", s.handleVoices)
	api.Post("/sessions", s.handleCreateSession)
	api.Get("/sessions/:id", s.handleSession)
	api.Delete("/sessions/:id", s.handleDeleteSession)
	api.Post("/sessions/:id/base", s.handleBase)
	api.Post("/sessions/:id/clone", s.handleClone)
	api.Get("/sessions/:id/audio/:kind", s.handleAudio)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}

		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/sessions/:id/progress", s.requireSession, websocket.New(s.handleProgressWS))

	s.app = app

	return s, nil
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.log.System("Web UI listening on %s", addr)

	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for running ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// Test runs a request through the router without a listener.
func (s *Server) Test(req *http.Request) (*http.Response, error) {
	return s.app.Test(req, -1)
}

// App exposes the router, mainly to serve it on a custom listener.
func (s *Server) App() *fiber.App {
	return s.app
}

// requireSession rejects websocket upgrades for unknown sessions before the
// handshake.
func (s *Server) requireSession(c *fiber.Ctx) error {
	sess, err := s.sessions.get(c.Params("id"))
	if err != nil {
		return err
	}

	c.Locals(localSession, sess)

	return c.Next()
}

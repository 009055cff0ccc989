// Package api exposes the larder core over HTTP: option lists, ingredient
// edit sessions, recipes and a websocket feed of catalog changes. Every
// route under /api/v1 is scoped to the user named by the bearer token.
package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"larder/internal/monitoring"
	"larder/internal/photo"
	"larder/internal/workspace"
)

// Server holds the router and the per-user workspaces behind it
type Server struct {
	Router *gin.Engine

	registry *workspace.Registry
	photos   photo.Store
	hub      *Hub
	monitor  *monitoring.Monitor
	secret   []byte
	logger   *log.Logger
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithHub shares a websocket hub, typically the one receiving the registry's
// catalog events
func WithHub(h *Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// WithPhotos enables recipe photo upload
func WithPhotos(p photo.Store) Option {
	return func(s *Server) {
		s.photos = p
	}
}

// WithMonitor shares a status monitor, typically one also observing catalog
// events
func WithMonitor(m *monitoring.Monitor) Option {
	return func(s *Server) {
		s.monitor = m
	}
}

// NewServer creates the API server
func NewServer(registry *workspace.Registry, secret []byte, opts ...Option) *Server {
	s := &Server{
		Router:   gin.Default(),
		registry: registry,
		secret:   secret,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hub == nil {
		s.hub = NewHub(s.logger)
	}
	if s.monitor == nil {
		s.monitor = monitoring.NewMonitor()
	}
	s.monitor.Track("workspaces", func() any { return s.registry.Count() })
	s.monitor.Track("websocket_connections", func() any { return s.hub.Connections() })

	s.setupRoutes()
	return s
}

// Hub returns the websocket hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes() {
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Larder API is running",
			"stats":   s.monitor.Status(),
		})
	})

	v1 := s.Router.Group("/api/v1", AuthMiddleware(s.secret))
	{
		// Option catalog
		v1.GET("/options/:kind", s.GetOptions)
		v1.POST("/options/:kind", s.AddOption)
		v1.POST("/options/:kind/refresh", s.RefreshOptions)

		// Ingredients
		v1.GET("/ingredients", s.ListIngredients)
		v1.GET("/ingredients/:id", s.GetIngredient)

		// Edit sessions
		v1.POST("/sessions", s.StartSession)
		v1.GET("/sessions/:sid", s.GetSession)
		v1.DELETE("/sessions/:sid", s.EndSession)
		v1.PUT("/sessions/:sid/fields/:field", s.SetSessionField)
		v1.POST("/sessions/:sid/prompt", s.SubmitPrompt)
		v1.DELETE("/sessions/:sid/prompt", s.DismissPrompt)
		v1.POST("/sessions/:sid/confirm", s.ConfirmSession)
		v1.POST("/sessions/:sid/cancel", s.CancelSession)
		v1.POST("/sessions/:sid/cancel/confirm", s.ConfirmCancel)
		v1.POST("/sessions/:sid/resume", s.ResumeSession)
		v1.POST("/sessions/:sid/delete", s.DeleteIngredient)

		// Recipes
		v1.GET("/recipes", s.ListRecipes)
		v1.GET("/recipes/:id", s.GetRecipe)
		v1.POST("/recipes", s.CreateRecipe)
		v1.PUT("/recipes/:id", s.UpdateRecipe)
		v1.DELETE("/recipes/:id", s.DeleteRecipe)
		v1.PUT("/recipes/:id/photo", s.UploadPhoto)

		// Catalog change feed and sign-out
		v1.GET("/ws", s.Subscribe)
		v1.DELETE("/session", s.SignOut)
	}
}

// workspace returns the caller's workspace, building it on first use
func (s *Server) workspace(c *gin.Context) *workspace.Workspace {
	return s.registry.Open(currentUser(c))
}

// Subscribe streams catalog events of the caller over a websocket
func (s *Server) Subscribe(c *gin.Context) {
	user := currentUser(c)
	s.registry.Open(user)
	s.hub.serve(c, user)
}

// SignOut tears down the caller's workspace and websocket connections
func (s *Server) SignOut(c *gin.Context) {
	user := currentUser(c)
	s.registry.Close(user)
	s.hub.Disconnect(user)
	c.JSON(http.StatusOK, gin.H{"message": "Signed out"})
}

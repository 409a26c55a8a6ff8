// Package apitest runs an in-process fake of the student union REST API for tests.
package apitest

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/bde-portal/internal/models"
	"github.com/noah-isme/bde-portal/pkg/logger"
	"github.com/noah-isme/bde-portal/pkg/middleware/requestid"
	"github.com/noah-isme/bde-portal/pkg/response"
	"github.com/noah-isme/bde-portal/pkg/storage"
)

// Options configures the fake.
type Options struct {
	Secret    string
	AccessTTL time.Duration
	ResetTTL  time.Duration
	Logger    *zap.Logger
}

type fault struct {
	method string
	path   string
	status int
	body   response.ErrorBody
}

// Server is a running fake API. All exported methods are safe for concurrent use.
type Server struct {
	engine *gin.Engine
	http   *httptest.Server
	opts   Options
	signer *storage.Signer

	mu      sync.Mutex
	users   map[string]*account
	revoked map[string]bool
	refresh map[string]string
	outbox  map[string]ResetMail
	faults  []fault
	calls   map[string]int

	collections map[string]*collection
}

// New starts the fake on a random local port.
func New(opts Options) *Server {
	if opts.Secret == "" {
		opts.Secret = "apitest-secret"
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = time.Hour
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	gin.SetMode(gin.TestMode)
	s := &Server{
		engine:  gin.New(),
		opts:    opts,
		signer:  storage.NewSigner(opts.Secret, opts.ResetTTL),
		users:   map[string]*account{},
		revoked: map[string]bool{},
		refresh: map[string]string{},
		outbox:  map[string]ResetMail{},
		calls:   map[string]int{},
		collections: map[string]*collection{
			"announcements": newCollection("announcements", "title", "content"),
			"forum/topics":  newCollection("forum/topics", "title", "body"),
			"events":        newCollection("events", "title", "description", "location"),
		},
	}
	s.routes()
	s.http = httptest.NewServer(s.engine)
	return s
}

// URL is the API root, ending in /api.
func (s *Server) URL() string {
	return s.http.URL + "/api"
}

// Close shuts the server down.
func (s *Server) Close() {
	s.http.Close()
}

func (s *Server) routes() {
	s.engine.Use(gin.Recovery(), requestid.Middleware(), logger.GinMiddleware(s.opts.Logger), s.countCalls(), s.injectFaults())

	api := s.engine.Group("/api")
	auth := api.Group("/auth")
	auth.POST("/login/", s.login)
	auth.POST("/register/", s.register)
	auth.POST("/password-reset/", s.requestReset)
	auth.POST("/password-reset/confirm/", s.confirmReset)
	auth.POST("/logout/", s.requireAuth(), s.logout)

	staff := []models.Role{models.RoleAdmin, models.RoleBDE}
	s.mountCollection(api.Group("/announcements"), s.collections["announcements"], staff)
	s.mountCollection(api.Group("/forum/topics"), s.collections["forum/topics"], nil)
	s.mountCollection(api.Group("/events"), s.collections["events"], staff)
}

func (s *Server) mountCollection(g *gin.RouterGroup, col *collection, writers []models.Role) {
	g.Use(s.requireAuth())
	write := s.requireRoles(writers...)
	g.GET("/", col.list)
	g.POST("/", write, col.create)
	g.POST("/bulk-delete/", write, col.bulkDelete)
	g.PATCH("/:id/", write, col.update)
	g.DELETE("/:id/", write, col.remove)
}

// Fail makes the next request matching method and path (relative to /api, e.g.
// "/announcements/") answer status with detail instead of reaching its handler.
func (s *Server) Fail(method, path string, status int, detail string) {
	s.FailWith(method, path, status, response.ErrorBody{Detail: detail})
}

// FailWith is Fail with a full error body, e.g. field errors.
func (s *Server) FailWith(method, path string, status int, body response.ErrorBody) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = append(s.faults, fault{method: method, path: "/api" + path, status: status, body: body})
}

// Calls counts requests received for method and path relative to /api.
func (s *Server) Calls(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method+" /api"+path]
}

func (s *Server) countCalls() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		s.calls[c.Request.Method+" "+c.Request.URL.Path]++
		s.mu.Unlock()
		c.Next()
	}
}

func (s *Server) injectFaults() gin.HandlerFunc {
	return func(c *gin.Context) {
		s.mu.Lock()
		for i, f := range s.faults {
			if f.method == c.Request.Method && strings.HasPrefix(c.Request.URL.Path, f.path) {
				s.faults = append(s.faults[:i], s.faults[i+1:]...)
				s.mu.Unlock()
				c.AbortWithStatusJSON(f.status, f.body)
				return
			}
		}
		s.mu.Unlock()
		c.Next()
	}
}

// Seed inserts items into a collection ("announcements", "forum/topics", "events"). Items are
// any JSON-encodable values; missing ids and timestamps are filled in.
func (s *Server) Seed(resource string, items ...interface{}) {
	col, ok := s.collections[resource]
	if !ok {
		panic("apitest: unknown resource " + resource)
	}
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			panic(err)
		}
		var rec record
		if err := json.Unmarshal(raw, &rec); err != nil {
			panic(err)
		}
		col.insert(rec, "")
	}
}

// Count returns how many items a collection holds.
func (s *Server) Count(resource string) int {
	col, ok := s.collections[resource]
	if !ok {
		return 0
	}
	return col.count()
}

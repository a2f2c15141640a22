// Package server exposes the store, index and hub over HTTP: a JSON API
// under /api and a live event stream at /ws/live. Handlers only read;
// ingestion stays on its own goroutine.
package server

import (
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Xueheng-Li/cc-log-page/internal/export"
	"github.com/Xueheng-Li/cc-log-page/internal/hub"
	"github.com/Xueheng-Li/cc-log-page/internal/search"
	"github.com/Xueheng-Li/cc-log-page/internal/store"
)

// Server holds the Gin engine and read-side dependencies.
type Server struct {
	engine       *gin.Engine
	store        *store.Store
	index        *search.Index
	hub          *hub.Hub
	maxResults   int
	watchEnabled bool
	malformed    func() int64
	startTime    time.Time
}

// New creates the API server. malformed reports the running count of
// rejected log lines for stats and health.
func New(st *store.Store, idx *search.Index, h *hub.Hub, maxResults int, watchEnabled bool, malformed func() int64) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	engine.RedirectTrailingSlash = false
	engine.RedirectFixedPath = false

	s := &Server{
		engine:       engine,
		store:        st,
		index:        idx,
		hub:          h,
		maxResults:   maxResults,
		watchEnabled: watchEnabled,
		malformed:    malformed,
		startTime:    time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.engine.Group("/api")
	api.GET("/projects", s.handleListProjects)
	api.GET("/projects/:id", s.handleGetProject)
	api.GET("/projects/:id/sessions", s.handleListSessions)
	api.GET("/sessions/:id", s.handleGetSession)
	api.GET("/sessions/:id/export", s.handleExportSession)
	api.GET("/search", s.handleSearch)
	api.GET("/stats", s.handleStats)
	api.GET("/health", s.handleHealth)

	s.engine.GET("/ws/live", s.handleWebSocket)

	// pprof profiling endpoints.
	s.engine.GET("/debug/pprof/", gin.WrapF(pprof.Index))
	s.engine.GET("/debug/pprof/cmdline", gin.WrapF(pprof.Cmdline))
	s.engine.GET("/debug/pprof/profile", gin.WrapF(pprof.Profile))
	s.engine.GET("/debug/pprof/symbol", gin.WrapF(pprof.Symbol))
	s.engine.GET("/debug/pprof/trace", gin.WrapF(pprof.Trace))
	s.engine.GET("/debug/pprof/heap", gin.WrapH(pprof.Handler("heap")))
	s.engine.GET("/debug/pprof/goroutine", gin.WrapH(pprof.Handler("goroutine")))
}

func (s *Server) handleListProjects(c *gin.Context) {
	sortBy := c.DefaultQuery("sort_by", "last_active")
	order := c.DefaultQuery("order", "desc")

	projects := s.store.ListProjects(sortBy, order)
	c.JSON(http.StatusOK, gin.H{
		"projects": projects,
		"total":    len(projects),
	})
}

func (s *Server) handleGetProject(c *gin.Context) {
	p, ok := s.store.GetProject(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) handleListSessions(c *gin.Context) {
	projectID := c.Param("id")
	if _, ok := s.store.GetProject(projectID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}

	sortBy := c.DefaultQuery("sort_by", "end_time")
	order := c.DefaultQuery("order", "desc")
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)

	sessions, total := s.store.ListSessions(projectID, sortBy, order, limit, offset)
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, ok := s.store.GetSession(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	records := s.store.GetRecords(sess.ID)
	c.JSON(http.StatusOK, gin.H{
		"session": sess,
		"records": records,
	})
}

func (s *Server) handleExportSession(c *gin.Context) {
	sess, ok := s.store.GetSession(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}
	records := s.store.GetRecords(sess.ID)

	switch c.DefaultQuery("format", "markdown") {
	case "markdown":
		project, _ := s.store.GetProject(sess.ProjectID)
		content := export.Markdown(sess, project, records)
		c.Header("Content-Disposition", `attachment; filename="`+sess.ID+`.md"`)
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(content))
	case "json":
		c.Header("Content-Disposition", `attachment; filename="`+sess.ID+`.json"`)
		c.JSON(http.StatusOK, gin.H{"session": sess, "records": records})
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown export format"})
	}
}

func (s *Server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter q"})
		return
	}
	limit := intQuery(c, "limit", s.maxResults)
	if limit > s.maxResults {
		limit = s.maxResults
	}

	results, err := s.index.Search(c.Request.Context(), query, c.Query("project_id"), c.Query("role"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"results": results,
		"total":   len(results),
	})
}

func (s *Server) handleStats(c *gin.Context) {
	st := s.store.Stats()
	c.JSON(http.StatusOK, gin.H{
		"store":           st,
		"subscribers":     s.hub.Count(),
		"dropped_viewers": s.hub.Dropped(),
		"malformed_lines": s.malformed(),
		"indexed_docs":    s.index.Len(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.store.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"uptime":        time.Since(s.startTime).Truncate(time.Second).String(),
		"projects":      st.TotalProjects,
		"sessions":      st.TotalSessions,
		"subscribers":   s.hub.Count(),
		"watch_enabled": s.watchEnabled,
	})
}

// Start runs the server. Blocks until the listener fails or is closed.
func (s *Server) Start(addr string) error {
	return s.engine.Run(addr)
}

func intQuery(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

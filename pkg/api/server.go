package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sonet/timeline/pkg/cache"
	"github.com/sonet/timeline/pkg/config"
	"github.com/sonet/timeline/pkg/controller"
	"github.com/sonet/timeline/pkg/fanout"
	"github.com/sonet/timeline/pkg/log"
	"github.com/sonet/timeline/pkg/metrics"
	"github.com/sonet/timeline/pkg/notestore"
	"github.com/sonet/timeline/pkg/types"
)

// GraphWriter is the write side of the social graph, used by the
// internal follow-event ingress.
type GraphWriter interface {
	Follow(followerID, followeeID string)
	Unfollow(followerID, followeeID string)
}

// Server is the HTTP and websocket surface of the timeline service.
type Server struct {
	cfg      *config.Config
	ctrl     *controller.Controller
	cache    *cache.Cache
	notes    notestore.Store
	notifier *fanout.Notifier
	broker   *fanout.Broker
	graph    GraphWriter

	engine *gin.Engine
	http   *http.Server
}

// NewServer builds the router with all routes registered.
func NewServer(cfg *config.Config, ctrl *controller.Controller, c *cache.Cache, notes notestore.Store, notifier *fanout.Notifier, broker *fanout.Broker, graph GraphWriter) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		cfg:      cfg,
		ctrl:     ctrl,
		cache:    c,
		notes:    notes,
		notifier: notifier,
		broker:   broker,
		graph:    graph,
		engine:   engine,
	}

	engine.Use(gin.Recovery())
	engine.Use(requestLogger())
	engine.Use(requestMetrics())

	v1 := engine.Group("/v1")
	{
		v1.GET("/timeline", s.handleGetTimeline)
		v1.GET("/users/:id/timeline", s.handleGetUserTimeline)
		v1.POST("/timeline/refresh", s.handleRefresh)
		v1.POST("/timeline/read", s.handleMarkRead)
		v1.GET("/timeline/subscribe", s.handleSubscribe)
	}

	internal := engine.Group("/internal/events")
	{
		internal.POST("/note", s.handleNoteEvent)
		internal.POST("/engagement", s.handleEngagementEvent)
		internal.POST("/follow", s.handleFollowEvent)
		internal.POST("/note-deleted", s.handleNoteDeletedEvent)
	}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(metrics.Handler()))

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving and blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:         s.cfg.Server.ListenAddr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
	log.Info().Str("addr", s.cfg.Server.ListenAddr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the listener gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func viewerID(c *gin.Context) string {
	if id := c.GetHeader("X-Viewer-ID"); id != "" {
		return id
	}
	return c.Query("viewer_id")
}

func (s *Server) handleGetTimeline(c *gin.Context) {
	viewer := viewerID(c)
	if viewer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "viewer id required"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	req := types.TimelineRequest{
		ViewerID:  viewer,
		Algorithm: types.Algorithm(c.Query("algorithm")),
		Pagination: types.Pagination{
			Limit:  limit,
			Cursor: c.Query("cursor"),
		},
		IncludeReplies: c.Query("include_replies") == "true",
		IncludeRenotes: c.Query("include_renotes") == "true",
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.Server.RequestTimeout)
	defer cancel()

	page, err := s.ctrl.GetTimeline(ctx, req)
	s.writePage(c, page, err)
}

func (s *Server) handleGetUserTimeline(c *gin.Context) {
	viewer := viewerID(c)
	if viewer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "viewer id required"})
		return
	}

	limit, _ := strconv.Atoi(c.Query("limit"))
	// Author pages include replies and renotes unless switched off.
	includeReplies := c.DefaultQuery("include_replies", "true") == "true"
	includeRenotes := c.DefaultQuery("include_renotes", "true") == "true"

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.Server.RequestTimeout)
	defer cancel()

	page, err := s.ctrl.GetUserTimeline(ctx, viewer, c.Param("id"), types.Pagination{
		Limit:  limit,
		Cursor: c.Query("cursor"),
	}, includeReplies, includeRenotes)
	s.writePage(c, page, err)
}

func (s *Server) handleRefresh(c *gin.Context) {
	viewer := viewerID(c)
	if viewer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "viewer id required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.Server.RequestTimeout)
	defer cancel()

	page, err := s.ctrl.Refresh(ctx, viewer, types.Algorithm(c.Query("algorithm")))
	s.writePage(c, page, err)
}

func (s *Server) handleMarkRead(c *gin.Context) {
	viewer := viewerID(c)
	if viewer == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "viewer id required"})
		return
	}

	var body struct {
		At time.Time `json:"at"`
	}
	_ = c.ShouldBindJSON(&body)

	s.ctrl.MarkRead(viewer, body.At)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (s *Server) writePage(c *gin.Context, page types.TimelinePage, err error) {
	switch {
	case errors.Is(err, controller.ErrRateLimited):
		c.JSON(http.StatusTooManyRequests, page)
	case errors.Is(err, controller.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, page)
	case err != nil:
		c.JSON(http.StatusInternalServerError, page)
	default:
		c.JSON(http.StatusOK, page)
	}
}

func (s *Server) handleNoteEvent(c *gin.Context) {
	var note types.Note
	if err := c.ShouldBindJSON(&note); err != nil || note.ID == "" || note.AuthorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "note with id and author_id required"})
		return
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now()
	}

	if err := s.notes.Put(c.Request.Context(), &note); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	s.notifier.OnNewNote(&note)
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

func (s *Server) handleEngagementEvent(c *gin.Context) {
	var body struct {
		NoteID string               `json:"note_id"`
		Delta  types.EngagementDelta `json:"delta"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.NoteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "note_id required"})
		return
	}

	s.notifier.OnEngagementChange(body.NoteID, body.Delta)
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

func (s *Server) handleFollowEvent(c *gin.Context) {
	var body struct {
		FollowerID string `json:"follower_id"`
		FolloweeID string `json:"followee_id"`
		Followed   bool   `json:"followed"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.FollowerID == "" || body.FolloweeID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "follower_id and followee_id required"})
		return
	}

	if s.graph != nil {
		if body.Followed {
			s.graph.Follow(body.FollowerID, body.FolloweeID)
		} else {
			s.graph.Unfollow(body.FollowerID, body.FolloweeID)
		}
	}
	s.notifier.OnFollowEvent(body.FollowerID, body.FolloweeID)
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

func (s *Server) handleNoteDeletedEvent(c *gin.Context) {
	var body struct {
		NoteID string `json:"note_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.NoteID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "note_id required"})
		return
	}

	s.notifier.OnNoteDeleted(body.NoteID)
	c.JSON(http.StatusAccepted, gin.H{"success": true})
}

func (s *Server) handleHealth(c *gin.Context) {
	viewers, capacity := s.cache.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"cache": gin.H{
			"enabled":   s.cache.Enabled(),
			"viewers":   viewers,
			"capacity":  capacity,
			"hit_ratio": s.cache.HitRatio(),
		},
		"fanout": gin.H{
			"queue_depth": s.notifier.QueueDepth(),
		},
	})
}

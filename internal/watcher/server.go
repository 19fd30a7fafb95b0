package watcher

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/notifyhub/internal/feed"
	"github.com/nao1215/notifyhub/pkg/middleware"
)

// ReceiptRequest はプッシュ受信の通知リクエスト。
type ReceiptRequest struct {
	ID string `json:"id" binding:"required"`
}

// ReadRequest は1件の既読リクエスト。
type ReadRequest struct {
	ID string `json:"id" binding:"required"`
}

// SessionReadRequest はセッション単位の既読リクエスト。
type SessionReadRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// FeedResponse は通知一覧のレスポンス。
type FeedResponse struct {
	Items  []feed.Item `json:"items"`
	Unread int         `json:"unread"`
}

// MarkResponse は既読操作のレスポンス。
type MarkResponse struct {
	Status string `json:"status"`
	Marked int    `json:"marked"`
}

// Status は同期ループの状態を返す。
type Status interface {
	Running() bool
}

// Server はローカルブリッジのHTTPサーバー。
type Server struct {
	router  *gin.Engine
	tracker *feed.Tracker
	status  Status
}

// NewServer はServerを生成する。statusがnilの場合は同期状態を報告しない。
func NewServer(tracker *feed.Tracker, status Status) *Server {
	router := gin.New()
	router.Use(middleware.Recovery("Bridge"))
	router.Use(gin.Logger())

	s := &Server{
		router:  router,
		tracker: tracker,
		status:  status,
	}
	s.setupRoutes()
	return s
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth())
	s.router.POST("/push/receipt", s.handleReceipt())
	s.router.GET("/feed", s.handleFeed())

	read := s.router.Group("/read")
	{
		read.POST("", s.handleRead())
		read.POST("/session", s.handleSessionRead())
		read.POST("/all", s.handleAllRead())
	}
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		resp := gin.H{"status": "ok", "service": "notifyhub-watcher"}
		if s.status != nil {
			resp["syncing"] = s.status.Running()
		}
		c.JSON(http.StatusOK, resp)
	}
}

// handleReceipt はOSのプッシュ受信コールバックから呼ばれる。
func (s *Server) handleReceipt() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReceiptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id は必須です"})
			return
		}
		s.tracker.ReceiveViaPush(req.ID)
		c.JSON(http.StatusAccepted, gin.H{"status": "ok"})
	}
}

// handleFeed は通知一覧を新しい順に返す。session_idを指定するとそのセッションに絞る。
func (s *Server) handleFeed() gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID := c.Query("session_id")
		items := s.tracker.Feed()
		if sessionID == "" {
			c.JSON(http.StatusOK, FeedResponse{Items: items, Unread: s.tracker.UnreadCount()})
			return
		}

		filtered := make([]feed.Item, 0, len(items))
		for _, it := range items {
			if it.SessionID == sessionID {
				filtered = append(filtered, it)
			}
		}
		c.JSON(http.StatusOK, FeedResponse{Items: filtered, Unread: s.tracker.UnreadCountForSession(sessionID)})
	}
}

func (s *Server) handleRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id は必須です"})
			return
		}
		marked := 0
		if s.tracker.MarkRead(req.ID) {
			marked = 1
		}
		c.JSON(http.StatusOK, MarkResponse{Status: "ok", Marked: marked})
	}
}

func (s *Server) handleSessionRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SessionReadRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "session_id は必須です"})
			return
		}
		c.JSON(http.StatusOK, MarkResponse{Status: "ok", Marked: s.tracker.MarkSessionRead(req.SessionID)})
	}
}

func (s *Server) handleAllRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, MarkResponse{Status: "ok", Marked: s.tracker.MarkAllRead()})
	}
}

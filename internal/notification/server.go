package notification

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/notifyhub/internal/store"
	"github.com/nao1215/notifyhub/pkg/api"
	"github.com/nao1215/notifyhub/pkg/event"
	"github.com/nao1215/notifyhub/pkg/middleware"
)

// maxEventBody はイベントのリクエストボディの上限バイト数。
const maxEventBody = 1 << 20

// Server はnotifyhubのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// service はイベント取り込みと通知生成を行う。
	service *Service
	// store は通知と送信先の永続化層。
	store *store.Store
	// jwtSecret はBearerトークンの検証に使うシークレット。
	jwtSecret string
	// defaultEnvironment はプッシュ登録でenvironmentが省略された場合の値。
	defaultEnvironment string
}

// NewServer は新しいHTTPサーバーを生成する。
func NewServer(svc *Service, s *store.Store, jwtSecret, defaultEnvironment string) *Server {
	if defaultEnvironment == "" {
		defaultEnvironment = api.EnvironmentProduction
	}

	router := gin.New()
	router.Use(middleware.Recovery("Notification"))
	router.Use(gin.Logger())

	srv := &Server{
		router:             router,
		service:            svc,
		store:              s,
		jwtSecret:          jwtSecret,
		defaultEnvironment: defaultEnvironment,
	}
	srv.setupRoutes()
	return srv
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	v1 := s.router.Group("/api/v1")
	v1.Use(middleware.JWTAuth(s.jwtSecret))
	{
		read := middleware.RequireScope(middleware.ScopeRead)
		write := middleware.RequireScope(middleware.ScopeWrite)

		// 変更検知用のバージョン確認
		v1.GET("/version", read, s.handleVersion())
		// 通知一覧（差分取得）
		v1.GET("/notifications", read, s.handleList())
		// 通知の確認済み更新
		v1.POST("/notifications/ack", write, s.handleAck())
		// プッシュ送信先の登録
		v1.POST("/push/register", write, s.handlePushRegister())
		// イベントの取り込み
		v1.POST("/events", write, s.handleIngest())
	}

	s.router.GET("/health", s.handleHealth())
}

func (s *Server) handleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.store.Ping(c.Request.Context()); err != nil {
			log.Printf("[Health] データベースに接続できません: %v", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "service": "notifyhub"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notifyhub"})
	}
}

func (s *Server) handleVersion() gin.HandlerFunc {
	return func(c *gin.Context) {
		counters := s.service.Counters()
		c.JSON(http.StatusOK, api.VersionResponse{
			Status:              "ok",
			DataVersion:         counters.DataVersion(),
			NotificationVersion: counters.NotificationVersion(),
		})
	}
}

// handleList は通知一覧を返すハンドラ。
// afterを省略すると新しい順、指定するとそれ以降を古い順で返す。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 0
		if raw := c.Query("limit"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit は1以上の整数である必要があります"})
				return
			}
			limit = v
		}

		rows, err := s.store.ListNotifications(c.Request.Context(), c.Query("after"), limit)
		if err != nil {
			log.Printf("[Notification] 通知一覧取得エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知一覧の取得に失敗しました"})
			return
		}

		resp := api.ListResponse{Notifications: make([]api.Notification, 0, len(rows))}
		for i := range rows {
			resp.Notifications = append(resp.Notifications, toWire(&rows[i]))
		}
		c.JSON(http.StatusOK, resp)
	}
}

// toWire は保存された通知をワイヤー表現に変換する。
func toWire(n *store.Notification) api.Notification {
	var payload map[string]any
	if err := json.Unmarshal([]byte(n.PayloadJSON), &payload); err != nil {
		log.Printf("[Notification] 通知 %s のペイロードが不正です: %v", n.ID, err)
	}
	return api.Notification{
		ID:               n.ID,
		EventID:          n.EventID,
		SessionID:        n.SessionID,
		DeviceID:         n.DeviceID,
		Title:            n.Title,
		Body:             n.Body,
		NotificationType: n.Category,
		Payload:          payload,
		CreatedAt:        n.Created().Format(api.TimeLayout),
		Acknowledged:     n.Acknowledged,
	}
}

func (s *Server) handleAck() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.AckRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: ids が必要です"})
			return
		}

		n, err := s.store.AcknowledgeNotifications(c.Request.Context(), req.IDs)
		if err != nil {
			log.Printf("[Notification] 通知確認済み更新エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通知の確認済み更新に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, api.AckResponse{Status: "ok", Acknowledged: n})
	}
}

func (s *Server) handlePushRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req api.PushRegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です: platform と token が必要です"})
			return
		}

		env := req.Environment
		if env == "" {
			env = s.defaultEnvironment
		}
		if env != api.EnvironmentSandbox && env != api.EnvironmentProduction {
			c.JSON(http.StatusBadRequest, gin.H{"error": "environment は sandbox か production である必要があります"})
			return
		}

		if err := s.store.UpsertRegistration(c.Request.Context(), &store.Registration{
			Token:       req.Token,
			Platform:    req.Platform,
			Environment: env,
		}); err != nil {
			log.Printf("[Push] プッシュ送信先登録エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プッシュ送信先の登録に失敗しました"})
			return
		}
		log.Printf("[Push] 送信先を登録しました: platform=%s environment=%s installation=%s",
			req.Platform, env, middleware.GetInstallationID(c))
		c.JSON(http.StatusOK, api.StatusResponse{Status: "ok"})
	}
}

func (s *Server) handleIngest() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストボディの読み込みに失敗しました"})
			return
		}
		p, err := event.Decode(body)
		if err != nil {
			msg := "リクエストが不正です"
			if errors.Is(err, event.ErrInvalidPayload) {
				msg = err.Error()
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": msg})
			return
		}

		res, err := s.service.Ingest(c.Request.Context(), p)
		if err != nil {
			log.Printf("[Notification] イベント取り込みエラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "イベントの保存に失敗しました"})
			return
		}

		resp := gin.H{"status": "ok", "event_id": res.EventID}
		if res.Notification != nil {
			resp["notification_id"] = res.Notification.ID
		}
		c.JSON(http.StatusCreated, resp)
	}
}

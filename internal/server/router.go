package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/auth"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/ephemeral"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/syncer"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	connectionParam      = "connection"
	subjectContextKey    = "replica_subject"
	connectionsRoutePath = "/connections/:connection"
)

var (
	errMissingSyncer    = errors.New("syncer dependency required")
	errMissingEphemeral = errors.New("ephemeral store dependency required")
	errMissingValidator = errors.New("token validator dependency required")
)

type Dependencies struct {
	Syncer            *syncer.Service
	Ephemeral         *ephemeral.Store
	Validator         *auth.TokenValidator
	Realtime          *RealtimeDispatcher
	HeartbeatInterval time.Duration
	Logger            *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Syncer == nil {
		return nil, errMissingSyncer
	}
	if deps.Ephemeral == nil {
		return nil, errMissingEphemeral
	}
	if deps.Validator == nil {
		return nil, errMissingValidator
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Realtime
	if dispatcher == nil {
		dispatcher = NewRealtimeDispatcher()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		syncer:    deps.Syncer,
		ephemeral: deps.Ephemeral,
		validator: deps.Validator,
		realtime:  dispatcher,
		heartbeat: heartbeat,
		logger:    logger,
	}

	protected := router.Group(connectionsRoutePath)
	protected.Use(handler.authorizeRequest)
	protected.POST("/events", handler.handleEvent)
	protected.POST("/records/:table", handler.handleRecords)
	protected.GET("/posts/:post_id/last-event", handler.handleLastPostEvent)
	protected.GET("/flags/can-join-teams", handler.handleCanJoinTeamsStream)
	protected.PUT("/flags/can-join-teams", handler.handleCanJoinTeamsUpdate)
	protected.GET("/stream", handler.handleReplicaStream)
	protected.DELETE("", handler.handleTeardown)

	return router, nil
}

type httpHandler struct {
	syncer    *syncer.Service
	ephemeral *ephemeral.Store
	validator *auth.TokenValidator
	realtime  *RealtimeDispatcher
	heartbeat time.Duration
	logger    *zap.Logger
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.validator.Authorize(c.Request, c.Param(connectionParam))
	switch {
	case err == nil:
	case errors.Is(err, auth.ErrConnectionNotGranted):
		h.logger.Warn("connection not granted", zap.String("connection", c.Param(connectionParam)))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	default:
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, claims.Subject)
	c.Next()
}

type flagUpdatePayload struct {
	Value *bool `json:"value"`
}

func (h *httpHandler) handleCanJoinTeamsUpdate(c *gin.Context) {
	var request flagUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil || request.Value == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	h.ephemeral.SetCanJoinOtherTeams(c.Param(connectionParam), *request.Value)
	c.JSON(http.StatusOK, gin.H{"value": *request.Value})
}

type lastPostEventResponse struct {
	PostID   string         `json:"post_id"`
	Deleted  bool           `json:"deleted"`
	EditAt   int64          `json:"edit_at,omitempty"`
	UpdateAt int64          `json:"update_at,omitempty"`
	Post     map[string]any `json:"post,omitempty"`
}

func (h *httpHandler) handleLastPostEvent(c *gin.Context) {
	postID := c.Param("post_id")
	last, known := h.ephemeral.LastPostEvent(c.Param(connectionParam), postID)
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_post"})
		return
	}
	response := lastPostEventResponse{PostID: postID, Deleted: last.Deleted}
	if last.Post != nil {
		response.EditAt = last.Post.EditAt
		response.UpdateAt = last.Post.UpdateAt
		response.Post = last.Post.Raw
	}
	c.JSON(http.StatusOK, response)
}

func (h *httpHandler) handleTeardown(c *gin.Context) {
	connection := c.Param(connectionParam)
	h.syncer.TeardownConnection(connection)
	h.realtime.Disconnect(connection)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) publish(connection string, tables []string) {
	if len(tables) == 0 {
		return
	}
	h.realtime.Publish(RealtimeMessage{
		Connection: connection,
		EventType:  RealtimeEventReplicaChanged,
		Tables:     tables,
		Timestamp:  time.Now().UTC(),
	})
}

// writeServiceError maps coordinator failures onto HTTP statuses and reports
// the service error code as the body.
func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	status := statusFor(err)
	code := "internal_error"
	if status == http.StatusBadRequest {
		code = "invalid_event"
	}
	var serviceErr *syncer.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": code})
}

package server

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const realtimeEventCanJoinTeams = "can-join-teams"

type heartbeatPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

type replicaChangePayload struct {
	Tables    []string  `json:"tables"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}

type flagPayload struct {
	Value bool `json:"value"`
}

func prepareEventStream(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()
}

func (h *httpHandler) handleReplicaStream(c *gin.Context) {
	connection := c.Param(connectionParam)
	stream, cleanup := h.realtime.Subscribe(c.Request.Context(), connection)
	defer cleanup()

	prepareEventStream(c)
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	h.logger.Debug("replica stream opened", zap.String("connection", connection))
	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, replicaChangePayload{
				Tables:    message.Tables,
				Timestamp: message.Timestamp,
				Source:    realtimeSourceReplica,
			})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{Timestamp: tick.UTC(), Source: realtimeSourceReplica})
			return true
		}
	})
}

func (h *httpHandler) handleCanJoinTeamsStream(c *gin.Context) {
	connection := c.Param(connectionParam)
	values, cancel := h.ephemeral.ObserveCanJoinOtherTeams(c.Request.Context(), connection)
	defer cancel()

	prepareEventStream(c)
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case value, ok := <-values:
			if !ok {
				return false
			}
			c.SSEvent(realtimeEventCanJoinTeams, flagPayload{Value: value})
			return true
		case tick := <-ticker.C:
			c.SSEvent(realtimeEventHeartbeat, heartbeatPayload{Timestamp: tick.UTC(), Source: realtimeSourceReplica})
			return true
		}
	})
}

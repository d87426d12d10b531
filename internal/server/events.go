package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MarcoPoloResearchLab/chatreplica/internal/replica"
	"github.com/MarcoPoloResearchLab/chatreplica/internal/syncer"
	"github.com/gin-gonic/gin"
)

const (
	EventPosted           = "posted"
	EventPostEdited       = "post_edited"
	EventPostDeleted      = "post_deleted"
	EventAddedToTeam      = "added_to_team"
	EventChannelJoined    = "channel_joined"
	EventChannelLeft      = "channel_left"
	EventChannelArchived  = "channel_archived"
	EventChannelConverted = "channel_converted"
	EventChannelSwitched  = "channel_switched"
)

type eventRequestPayload struct {
	Type      string         `json:"type"`
	Post      map[string]any `json:"post"`
	PostID    string         `json:"post_id"`
	Team      map[string]any `json:"team"`
	Member    map[string]any `json:"member"`
	Channel   map[string]any `json:"channel"`
	ChannelID string         `json:"channel_id"`
	UserID    string         `json:"user_id"`
	TeamID    string         `json:"team_id"`
	DeleteAt  int64          `json:"delete_at"`
}

type eventResponsePayload struct {
	Type    string `json:"type"`
	Applied bool   `json:"applied"`
}

type eventHandler struct {
	tables []string
	handle func(ctx context.Context, svc *syncer.Service, connection string, event eventRequestPayload) (bool, error)
}

var eventHandlers = map[string]eventHandler{
	EventPosted: {
		tables: []string{replica.TablePost},
		handle: func(ctx context.Context, svc *syncer.Service, connection string, event eventRequestPayload) (bool, error) {
			if len(event.Post) == 0 {
				return false, syncer.ErrInvalidEvent
			}
			result, err := svc.ApplyRecords(ctx, connection, replica.TablePost, []replica.Raw{event.Post})
			return result.Created+result.Updated > 0, err
		},
	},
	EventPostEdited: {
		tables: []string{replica.TablePost},
		handle: func(ctx context.Context, svc *syncer.Service, connection string, event eventRequestPayload) (bool, error) {
			return svc.HandlePostEdited(ctx, connection, event.Post)
		},
	},
	EventPostDeleted: {
		tables: []string{replica.TablePost},
		handle: func(ctx context.Context, svc *syncer.Service, connection string, event eventRequestPayload) (bool, error) {
			err := svc.HandlePostDeleted(ctx, connection, event.PostID)
			return err == nil, err
		},
	},
	EventAddedToTeam: {
		tables: []string{replica.TableTeam, replica.TableTeamMembership, replica.TableMyTeam},
		handle: func(ctx context.Context, svc *syncer.Service, connection string, event eventRequestPayload) (bool, error) {
			return svc.HandleAddedToTeam(ctx, connection, event.Team, event.Member)
		},
	},
	EventChannelJoined: {
		tables: []string{replica.TableChannel, replica.TableChannelMembership, replica.TableMyChannel, replica.TableMyChannelSettings},
		handle: func(ctx context.Context, svc *syncer.Service, connection string, event eventRequestPayload) (bool, error) {
			return svc.JoinChannel(ctx, connection, event.Channel, event.Member)
		},
	},
	EventChannelLeft: {
		tables: []string{replica.TableChannelMembership, replica.TableMyChannel, replica.TableMyChannelSettings, replica.TableChannelInfo, replica.TablePostsInChannel},
		handle: func(ctx context.Context, svc *syncer.Service, connection string, event eventRequestPayload) (bool, error) {
			return svc.LeaveChannel(ctx, connection, event.ChannelID, event.UserID)
		},
	},
	EventChannelArchived: {
		tables: []string{replica.TableChannel},
		handle: func(ctx context.Context, svc *syncer.Service, connection string, event eventRequestPayload) (bool, error) {
			return svc.ArchiveChannel(ctx, connection, event.ChannelID, event.DeleteAt)
		},
	},
	EventChannelConverted: {
		tables: []string{replica.TableChannel},
		handle: func(ctx context.Context, svc *syncer.Service, connection string, event eventRequestPayload) (bool, error) {
			return svc.ConvertChannel(ctx, connection, event.ChannelID)
		},
	},
	EventChannelSwitched: {
		tables: []string{replica.TableTeamChannelHistory, replica.TableMyChannel},
		handle: func(ctx context.Context, svc *syncer.Service, connection string, event eventRequestPayload) (bool, error) {
			return svc.SwitchToChannel(ctx, connection, event.TeamID, event.ChannelID)
		},
	},
}

func (h *httpHandler) handleEvent(c *gin.Context) {
	var request eventRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	eventType := strings.ToLower(strings.TrimSpace(request.Type))
	handler, ok := eventHandlers[eventType]
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_event_type"})
		return
	}

	connection := c.Param(connectionParam)
	applied, err := handler.handle(c.Request.Context(), h.syncer, connection, request)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if applied {
		h.publish(connection, handler.tables)
	}
	c.JSON(http.StatusOK, eventResponsePayload{Type: eventType, Applied: applied})
}

type recordsRequestPayload struct {
	Records []map[string]any `json:"records"`
}

type recordsResponsePayload struct {
	Table  string             `json:"table"`
	Result syncer.ApplyResult `json:"result"`
}

func (h *httpHandler) handleRecords(c *gin.Context) {
	var request recordsRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.Records) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	raws := make([]replica.Raw, 0, len(request.Records))
	for _, record := range request.Records {
		raws = append(raws, replica.Raw(record))
	}

	connection := c.Param(connectionParam)
	table := c.Param("table")
	result, err := h.syncer.ApplyRecords(c.Request.Context(), connection, table, raws)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	if result.Created+result.Updated > 0 {
		h.publish(connection, []string{table})
	}
	c.JSON(http.StatusOK, recordsResponsePayload{Table: table, Result: result})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, syncer.ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, syncer.ErrNotFound), errors.Is(err, replica.ErrUnknownTable):
		return http.StatusNotFound
	case errors.Is(err, replica.ErrContractViolation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

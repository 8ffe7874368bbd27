package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/examguard/examguard/internal/config"
	"github.com/examguard/examguard/internal/middleware"
	"github.com/examguard/examguard/internal/model"
	"github.com/examguard/examguard/internal/relay"
	"github.com/examguard/examguard/internal/repository"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// RelayHandler terminates the realtime violation channel. Clients join a
// per-submission room; confirmed violations are queued for persistence,
// echoed to the room and published to the exam's live monitor feed.
type RelayHandler struct {
	rdb      *redis.Client
	hub      *relay.Hub
	subRepo  *repository.SubmissionRepository
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewRelayHandler creates a new RelayHandler.
func NewRelayHandler(rdb *redis.Client, hub *relay.Hub, subRepo *repository.SubmissionRepository, log zerolog.Logger, allowedOrigins []string) *RelayHandler {
	return &RelayHandler{
		rdb:      rdb,
		hub:      hub,
		subRepo:  subRepo,
		log:      log.With().Str("component", "relay_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// violationPayload is the queue entry consumed by the persistence worker.
type violationPayload struct {
	SubmissionID string `json:"submission_id"`
	Kind         string `json:"kind"`
	Severity     string `json:"severity"`
	Timestamp    int64  `json:"timestamp"`
}

// Stream godoc
// WS /ws/v1/relay
// Upgrades to WebSocket for realtime violation reporting.
func (h *RelayHandler) Stream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	// Broadcasts from other goroutines and this loop's replies share
	// the connection; ClientConn serializes them.
	conn := relay.NewClientConn(ws)
	defer conn.Close()

	connLog := h.log.With().Int("student_id", claims.UserID).Logger()
	connLog.Info().Msg("Client connected")

	// Rooms this connection has joined, with the owning exam for the
	// monitor feed. Cleaned up on disconnect.
	joined := make(map[uuid.UUID]uuid.UUID)
	defer func() {
		for submissionID := range joined {
			h.hub.Leave(submissionID, conn)
		}
	}()

	for {
		var msg relay.RequestPayload
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				connLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				connLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch msg.Action {
		case relay.ActionJoin:
			h.handleJoin(c.Request.Context(), conn, connLog, claims.UserID, &msg, joined)
		case relay.ActionViolation:
			h.handleViolation(c.Request.Context(), conn, connLog, &msg, joined)
		case relay.ActionPing:
			conn.Send(relay.PongResponse{Event: relay.EventPong})
		default:
			connLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			conn.SendError("unknown action: " + string(msg.Action))
		}
	}
}

// handleJoin validates room ownership and enters the submission room.
func (h *RelayHandler) handleJoin(ctx context.Context, conn *relay.ClientConn, log zerolog.Logger, studentID int, msg *relay.RequestPayload, joined map[uuid.UUID]uuid.UUID) {
	submissionID, err := uuid.Parse(msg.SubmissionID)
	if err != nil {
		conn.SendError("invalid submission_id")
		return
	}

	sub, err := h.subRepo.GetByID(ctx, submissionID)
	if err != nil {
		conn.SendError("submission not found")
		return
	}
	if sub.StudentID != studentID {
		conn.SendError("submission belongs to another student")
		return
	}
	if sub.Status != model.SubmissionStatusInProgress {
		conn.SendError("submission is not in progress")
		return
	}

	h.hub.Join(submissionID, conn)
	joined[submissionID] = sub.ExamID

	log.Info().Str("submission_id", submissionID.String()).Msg("Joined submission room")
	conn.Send(relay.JoinedResponse{
		Event:        relay.EventJoined,
		SubmissionID: submissionID.String(),
	})
}

// handleViolation accepts one confirmed violation from a joined room,
// queues it for batch persistence, echoes it to the room and publishes
// it to the exam monitor channel.
func (h *RelayHandler) handleViolation(ctx context.Context, conn *relay.ClientConn, log zerolog.Logger, msg *relay.RequestPayload, joined map[uuid.UUID]uuid.UUID) {
	submissionID, err := uuid.Parse(msg.SubmissionID)
	if err != nil {
		conn.SendError("invalid submission_id")
		return
	}
	examID, ok := joined[submissionID]
	if !ok {
		conn.SendError("join the submission room first")
		return
	}
	if msg.Type == "" {
		conn.SendError("type is required")
		return
	}

	now := time.Now()

	// Queue for the persistence worker. The write path stays off the
	// hot loop; the worker batches into PostgreSQL.
	payload, _ := json.Marshal(violationPayload{
		SubmissionID: submissionID.String(),
		Kind:         string(msg.Type),
		Severity:     model.SeverityMedium,
		Timestamp:    now.Unix(),
	})
	if err := h.rdb.RPush(ctx, config.WorkerKey.PersistViolationsQueue, payload).Err(); err != nil {
		log.Error().Err(err).Msg("Failed to queue violation for persistence")
	}

	h.hub.Broadcast(submissionID, relay.ViolationDetected{
		Event:     relay.EventViolationDetected,
		Type:      msg.Type,
		Timestamp: now,
		Severity:  model.SeverityMedium,
	})

	monitorEvent, _ := json.Marshal(map[string]interface{}{
		"type":          "violation",
		"submission_id": submissionID.String(),
		"kind":          msg.Type,
		"timestamp":     now.UTC().Format(time.RFC3339),
	})
	if err := h.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(examID.String()), monitorEvent).Err(); err != nil {
		log.Debug().Err(err).Msg("Monitor publish failed")
	}

	log.Debug().
		Str("submission_id", submissionID.String()).
		Str("kind", string(msg.Type)).
		Msg("Violation relayed")
}

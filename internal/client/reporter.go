package client

import (
	"net/url"
	"sync"
	"time"

	"github.com/examguard/examguard/internal/model"
	"github.com/examguard/examguard/internal/relay"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	reporterWriteWait  = 5 * time.Second
	reporterQueueSize  = 32
	reporterPingPeriod = 2 * time.Minute
)

// WSReporter is the client half of the realtime violation channel.
// Everything about it is best-effort: a failed dial, a full queue or a
// dead connection is logged and otherwise ignored — the exam session
// must never block on, or fail because of, the audit channel.
type WSReporter struct {
	wsURL      string
	token      string
	log        zerolog.Logger
	pingPeriod time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	queue  chan relay.RequestPayload
	closed bool
}

// NewWSReporter creates a disconnected reporter. wsURL is the relay
// endpoint (ws:// or wss://); the dial happens at Join.
func NewWSReporter(wsURL, token string, log zerolog.Logger) *WSReporter {
	return &WSReporter{
		wsURL:      wsURL,
		token:      token,
		log:        log.With().Str("component", "ws_reporter").Logger(),
		pingPeriod: reporterPingPeriod,
	}
}

// Join dials the relay and enters the submission room. On failure the
// session proceeds without audit reporting.
func (r *WSReporter) Join(submissionID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.conn != nil {
		return
	}

	target := r.wsURL
	if r.token != "" {
		u, err := url.Parse(r.wsURL)
		if err != nil {
			r.log.Warn().Err(err).Msg("Invalid relay URL, reporting disabled")
			return
		}
		q := u.Query()
		q.Set("token", r.token)
		u.RawQuery = q.Encode()
		target = u.String()
	}

	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		r.log.Warn().Err(err).Msg("Relay unreachable, reporting disabled")
		return
	}
	r.conn = conn
	r.queue = make(chan relay.RequestPayload, reporterQueueSize)

	go r.writeLoop(conn, r.queue)
	go r.readLoop(conn)
	go r.pingLoop(conn)

	r.enqueue(relay.RequestPayload{
		Action:       relay.ActionJoin,
		SubmissionID: submissionID.String(),
	})
}

// Report sends one confirmed violation, fire-and-forget. Dropped when
// the queue is full or the channel is down.
func (r *WSReporter) Report(submissionID uuid.UUID, kind model.ViolationKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enqueue(relay.RequestPayload{
		Action:       relay.ActionViolation,
		SubmissionID: submissionID.String(),
		Type:         kind,
	})
}

// enqueue assumes r.mu is held.
func (r *WSReporter) enqueue(msg relay.RequestPayload) {
	if r.closed || r.queue == nil {
		return
	}
	select {
	case r.queue <- msg:
	default:
		r.log.Debug().Str("action", string(msg.Action)).Msg("Reporter queue full, dropping event")
	}
}

func (r *WSReporter) writeLoop(conn *websocket.Conn, queue <-chan relay.RequestPayload) {
	for msg := range queue {
		conn.SetWriteDeadline(time.Now().Add(reporterWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			r.log.Debug().Err(err).Msg("Relay write failed, reporting disabled")
			r.disable()
			return
		}
	}
}

// readLoop drains server events (joined acks, room broadcasts) so the
// connection stays healthy; the reporter does not act on them.
func (r *WSReporter) readLoop(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			r.disable()
			return
		}
	}
}

// pingLoop keeps a quiet channel alive. The relay drops connections
// that stay silent past its read deadline, and a student with no
// violations sends nothing else.
func (r *WSReporter) pingLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(r.pingPeriod)
	defer ticker.Stop()
	for range ticker.C {
		r.mu.Lock()
		if r.closed || r.conn != conn {
			r.mu.Unlock()
			return
		}
		r.enqueue(relay.RequestPayload{Action: relay.ActionPing})
		r.mu.Unlock()
	}
}

func (r *WSReporter) disable() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		r.conn.Close()
		r.conn = nil
	}
}

// Close tears the channel down. Idempotent.
func (r *WSReporter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.queue != nil {
		close(r.queue)
		r.queue = nil
	}
	if r.conn != nil {
		r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(reporterWriteWait))
		r.conn.Close()
		r.conn = nil
	}
	return nil
}

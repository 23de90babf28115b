package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"

	"quiz-attempt-service/internal/app"
	"quiz-attempt-service/internal/domain"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ScoreboardStream pushes the ranked scoreboard to websocket clients and
// re-sends the watched page whenever a total changes.
type ScoreboardStream struct {
	scoreboard *app.ScoreboardService
	feed       *app.ScoreboardFeed
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

func NewScoreboardStream(scoreboard *app.ScoreboardService, feed *app.ScoreboardFeed, allowedOrigins []string, logger *zap.Logger) *ScoreboardStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoreboardStream{
		scoreboard: scoreboard,
		feed:       feed,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type pagePayload struct {
	Page int `json:"page"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

type scoreboardUpdate struct {
	Change *domain.ScoreChange   `json:"change,omitempty"`
	Page   domain.ScoreboardPage `json:"page"`
}

// ServeWS upgrades the request and streams scoreboard pages. Clients switch
// pages with {"type":"page","payload":{"page":N}}.
func (s *ScoreboardStream) ServeWS(w http.ResponseWriter, r *http.Request) {
	pageSize := queryIntFrom(r, "pageSize")

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// subscribe before the first read so no change between the snapshot and
	// the subscription is lost
	changes, cancel := s.feed.Subscribe()
	defer cancel()

	ctx := r.Context()
	var page atomic.Int64
	page.Store(1)

	render := func(change *domain.ScoreChange) outboundMessage[any] {
		current, err := s.scoreboard.GetRanked(ctx, int(page.Load()), pageSize)
		if err != nil {
			s.logger.Error("scoreboard page for stream", zap.Error(err))
			return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "scoreboard unavailable"}}
		}
		return outboundMessage[any]{Type: "scoreboard", Payload: scoreboardUpdate{Change: change, Page: current}}
	}

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				s.logger.Debug("ws write failed", zap.Error(err))
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case change, ok := <-changes:
				if !ok {
					return
				}
				msg := render(&change)
				select {
				case send <- msg:
				case <-writerDone:
					return
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	// push gives up once the writer is gone so a dead peer never blocks the
	// read loop
	push := func(msg outboundMessage[any]) {
		select {
		case send <- msg:
		case <-writerDone:
		}
	}

	push(render(nil))

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "page":
			var payload pagePayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil || payload.Page < 1 {
				push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid page payload"}})
				continue
			}
			page.Store(int64(payload.Page))
			push(render(nil))
		default:
			push(outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func queryIntFrom(r *http.Request, name string) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil {
		return 0
	}
	return v
}

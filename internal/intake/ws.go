package intake

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"goa.design/clue/log"

	"github.com/recapd/recapd/internal/broadcast"
	"github.com/recapd/recapd/internal/model"
)

const (
	wsWriteTimeout = 10 * time.Second

	// bearerProtocol is the first subprotocol element; the token rides as
	// the second and the server echoes only the marker back.
	bearerProtocol = "bearer"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Browsers connect from the frontend origin; access control happens
	// at the token layer, not here.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsMessage is the JSON frame pushed to WebSocket clients.
type wsMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsProtocols splits the Sec-WebSocket-Protocol header into its elements.
func wsProtocols(r *http.Request) []string {
	raw := r.Header.Get("Sec-WebSocket-Protocol")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// bearerToken extracts the token carried as the second subprotocol.
func bearerToken(r *http.Request) (string, bool) {
	protos := wsProtocols(r)
	if len(protos) < 2 || protos[0] != bearerProtocol {
		return "", false
	}
	return protos[1], true
}

// handleTranscriptWS streams one transcript's events: the last DAG
// snapshot on connect, then live events until either side closes.
func (s *Server) handleTranscriptWS(c *gin.Context) {
	transcriptID := c.Param("id")
	if _, ok := bearerToken(c.Request); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer subprotocol"})
		return
	}
	conn, err := upgrade(c)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	s.replayStatus(ctx, conn, transcriptID)
	s.streamTranscripts(ctx, conn, transcriptID)
}

// handleUserEvents multiplexes several transcript streams over one
// connection; clients name them with repeated transcript_id params.
func (s *Server) handleUserEvents(c *gin.Context) {
	ids := c.QueryArray("transcript_id")
	if len(ids) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "transcript_id is required"})
		return
	}
	if _, ok := bearerToken(c.Request); !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer subprotocol"})
		return
	}
	conn, err := upgrade(c)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx := c.Request.Context()
	for _, id := range ids {
		s.replayStatus(ctx, conn, id)
	}
	s.streamTranscripts(ctx, conn, ids...)
}

func upgrade(c *gin.Context) (*websocket.Conn, error) {
	hdr := http.Header{}
	hdr.Set("Sec-WebSocket-Protocol", bearerProtocol)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, hdr)
	if err != nil {
		log.Error(c.Request.Context(), err, log.KV{K: "msg", V: "websocket upgrade failed"})
		return nil, err
	}
	return conn, nil
}

// replayStatus sends the stored DAG snapshot so reconnecting clients see
// current progress before the next live broadcast.
func (s *Server) replayStatus(ctx context.Context, conn *websocket.Conn, transcriptID string) {
	snap, err := s.store.LastDagStatus(ctx, transcriptID)
	if err != nil || snap == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	writeMessage(conn, wsMessage{Event: string(model.EventDagStatus), Data: data})
}

// streamTranscripts fans the named streams into the connection until the
// client disconnects or a stream fails.
func (s *Server) streamTranscripts(ctx context.Context, conn *websocket.Conn, transcriptIDs ...string) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	merged := make(chan broadcast.Envelope, 64)
	for _, id := range transcriptIDs {
		events, errs, stop, err := s.subscriber.Subscribe(ctx, id)
		if err != nil {
			log.Error(ctx, err, log.KV{K: "transcript_id", V: id})
			return
		}
		defer stop()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case env, ok := <-events:
					if !ok {
						return
					}
					select {
					case merged <- env:
					case <-ctx.Done():
						return
					}
				case err, ok := <-errs:
					if ok && err != nil {
						log.Error(ctx, err)
					}
					return
				}
			}
		}()
	}

	// Drain client frames so close handshakes are noticed.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-merged:
			if err := writeMessage(conn, wsMessage{Event: env.Event, Data: env.Payload}); err != nil {
				return
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg wsMessage) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}

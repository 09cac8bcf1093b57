package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/livepeer-forks/ingestctl/internal/logx"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server upgrades incoming HTTP connections to the encoder protocol's
// bidirectional JSON stream and feeds frames into a Dispatcher.
type Server struct {
	Dispatcher *Dispatcher
}

func NewServer(d *Dispatcher) *Server {
	return &Server{Dispatcher: d}
}

// ServeHTTP implements the worker-facing websocket endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logx.LogNoID("websocket upgrade failed", "err", err.Error())
		return
	}
	defer wsConn.Close()

	send := make(chan any, 64)
	done := make(chan struct{})
	go s.writeLoop(wsConn, send, done)
	defer close(done)

	var encoderID string
	ctx := r.Context()
	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			if encoderID != "" {
				dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				_ = s.Dispatcher.Disconnect(dctx, encoderID)
				cancel()
			}
			return
		}
		var envelope Message
		if err := json.Unmarshal(raw, &envelope); err != nil {
			logx.LogNoID("malformed worker frame", "err", err.Error())
			continue
		}
		if id := s.handleFrame(ctx, envelope.Type, raw, send); id != "" {
			encoderID = id
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, msgType string, raw []byte, send chan any) string {
	switch msgType {
	case "register":
		var m RegisterMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return ""
		}
		if err := s.Dispatcher.RegisterConnection(ctx, m, send); err != nil {
			logx.LogError(m.EncoderID, "register failed", err)
		}
		return m.EncoderID
	case "heartbeat":
		var m HeartbeatMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return ""
		}
		if err := s.Dispatcher.Heartbeat(ctx, m, send); err != nil {
			logx.LogError(m.EncoderID, "heartbeat failed", err)
		}
	case "job:accepted":
		// purely informational; the dispatcher already moved the assignment
		// to `encoding` when it sent job:assign.
	case "job:progress":
		var m JobProgressMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return ""
		}
		s.Dispatcher.OnProgress(ctx, m)
	case "job:complete":
		var m JobCompleteMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return ""
		}
		if err := s.Dispatcher.OnComplete(ctx, m); err != nil {
			logx.LogError(m.JobID, "job complete handling failed", err)
		}
	case "job:failed":
		var m JobFailedMsg
		if err := json.Unmarshal(raw, &m); err != nil {
			return ""
		}
		if err := s.Dispatcher.OnFailed(ctx, m); err != nil {
			logx.LogError(m.JobID, "job failed handling failed", err)
		}
	}
	return ""
}

func (s *Server) writeLoop(wsConn *websocket.Conn, send chan any, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-send:
			wsConn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := wsConn.WriteJSON(msg); err != nil {
				return
			}
		}
	}
}

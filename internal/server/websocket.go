package server

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/recibo/internal/receipt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin enforcement is delegated to the deployment's proxy.
		return true
	},
}

// ScanRequest is a websocket scan request. Image carries the raw bytes,
// base64-encoded per the JSON convention for []byte.
type ScanRequest struct {
	Image []byte `json:"image"`
	MIME  string `json:"mime,omitempty"`
}

// ScanEvent is a websocket message from the server: stage progress while the
// pipeline runs, then one completed or error event.
type ScanEvent struct {
	Type      string                 `json:"type"` // "progress", "completed", "error"
	Stage     string                 `json:"stage,omitempty"`
	Receipt   *receipt.ParsedReceipt `json:"receipt,omitempty"`
	Error     string                 `json:"error,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// scanWebSocketHandler upgrades the connection and serves scan requests with
// per-stage progress events.
func (s *Server) scanWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("websocket connection established", "remote_addr", r.RemoteAddr)

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("websocket read failed", "error", err)
			}
			return
		}
		websocketMessagesTotal.WithLabelValues("received").Inc()

		switch messageType {
		case websocket.TextMessage:
			s.handleScanMessage(r, conn, data)
		case websocket.BinaryMessage:
			// Binary frames are the image itself, no JSON envelope.
			s.processScan(r, conn, receipt.Image{Data: data})
		}
	}
}

func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleScanMessage(r *http.Request, conn *websocket.Conn, data []byte) {
	var req ScanRequest
	if err := json.Unmarshal(data, &req); err != nil {
		// Some clients double-encode; try a plain base64 string body.
		var b64 string
		if err2 := json.Unmarshal(data, &b64); err2 != nil {
			s.sendEvent(conn, ScanEvent{Type: "error", Error: "failed to parse request: " + err.Error()})
			return
		}
		raw, err2 := base64.StdEncoding.DecodeString(b64)
		if err2 != nil {
			s.sendEvent(conn, ScanEvent{Type: "error", Error: "failed to decode image data"})
			return
		}
		req.Image = raw
	}
	s.processScan(r, conn, receipt.Image{Data: req.Image, MIME: req.MIME})
}

func (s *Server) processScan(r *http.Request, conn *websocket.Conn, img receipt.Image) {
	requestID := strconv.FormatInt(time.Now().UnixNano(), 10)

	if err := img.Validate(); err != nil {
		s.sendEvent(conn, ScanEvent{Type: "error", Error: err.Error(), RequestID: requestID})
		return
	}

	processor := s.processor
	if s.factory != nil {
		processor = s.factory(func(stage string) {
			s.sendEvent(conn, ScanEvent{Type: "progress", Stage: stage, RequestID: requestID})
		})
	}
	if processor == nil {
		s.sendEvent(conn, ScanEvent{Type: "error", Error: "extraction pipeline not initialized", RequestID: requestID})
		return
	}

	start := time.Now()
	parsed, err := processor.Process(r.Context(), img)
	duration := time.Since(start)

	if err != nil {
		scanRequestsTotal.WithLabelValues("websocket", errorKindLabel(err)).Inc()
		s.sendEvent(conn, ScanEvent{Type: "error", Error: err.Error(), RequestID: requestID})
		return
	}

	scanRequestsTotal.WithLabelValues("websocket", "success").Inc()
	scanDuration.WithLabelValues("websocket").Observe(duration.Seconds())
	itemsExtracted.WithLabelValues("websocket").Observe(float64(len(parsed.Items)))

	s.sendEvent(conn, ScanEvent{Type: "completed", Receipt: parsed, RequestID: requestID})
}

func (s *Server) sendEvent(conn *websocket.Conn, event ScanEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("failed to marshal websocket event", "error", err)
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		slog.Error("failed to send websocket event", "error", err)
		return
	}
	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MeKo-Tech/marginalia/internal/engine"
	"github.com/MeKo-Tech/marginalia/internal/ocr"
)

// Keepalive timing of progress streams.
const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 10 * time.Second
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Progress streams are read-only views of local sessions
		return true
	},
}

// WebSocketConnWriter is an interface for writing WebSocket messages.
type WebSocketConnWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// WebSocketRequest is a client message on a progress stream.
type WebSocketRequest struct {
	Type string `json:"type"` // "run_page"
	Page int    `json:"page,omitempty"`
}

// WebSocketOCRResponse is a server message on a progress stream.
type WebSocketOCRResponse struct {
	Type       string                  `json:"type"` // "ocr_progress", "ocr_result", "error"
	Document   string                  `json:"document,omitempty"`
	Running    bool                    `json:"running"`
	Progress   map[string]ocr.Progress `json:"progress,omitempty"`
	Page       int                     `json:"page,omitempty"`
	Text       string                  `json:"text,omitempty"`
	Confidence float64                 `json:"confidence,omitempty"`
	Error      string                  `json:"error,omitempty"`
	ErrorType  string                  `json:"error_type,omitempty"`
}

// ocrWebSocketHandler streams the recognition progress of ?document= and
// accepts run_page requests.
func (s *Server) ocrWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r.Context(), r.URL.Query().Get("document"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	// Upgrade HTTP connection to WebSocket
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	// Increment active connections metric
	websocketConnections.Inc()
	defer websocketConnections.Dec()

	s.logger.Info("WebSocket connection established", "remote_addr", r.RemoteAddr, "document", sess.Document())

	s.handleWebSocketConnection(conn, sess)
}

// handleWebSocketConnection runs the single writer loop of a connection.
// Client messages are read on a separate goroutine.
func (s *Server) handleWebSocketConnection(conn *websocket.Conn, sess *engine.Session) {
	// Set read deadline to prevent hanging connections
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	results := make(chan WebSocketOCRResponse, 4)
	done := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go s.readWebSocketMessages(conn, sess, results, done, stop)

	ticker := time.NewTicker(s.progressInterval)
	defer ticker.Stop()
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	var lastProgress map[string]ocr.Progress
	lastRunning := false
	first := true
	for {
		select {
		case <-done:
			return
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteTimeout))
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(wsWriteTimeout)); err != nil {
				return
			}
		case res := <-results:
			if err := s.sendWebSocketResponse(conn, res); err != nil {
				return
			}
		case <-ticker.C:
			progress := sess.OCRProgress()
			running := sess.OCRRunning()
			if !first && running == lastRunning && maps.Equal(progress, lastProgress) {
				continue
			}
			first = false
			lastProgress, lastRunning = progress, running
			if err := s.sendWebSocketResponse(conn, WebSocketOCRResponse{
				Type:     "ocr_progress",
				Document: sess.Document(),
				Running:  running,
				Progress: progress,
			}); err != nil {
				return
			}
		}
	}
}

// readWebSocketMessages handles client requests until the connection fails.
func (s *Server) readWebSocketMessages(
	conn *websocket.Conn,
	sess *engine.Session,
	results chan<- WebSocketOCRResponse,
	done chan<- struct{},
	stop <-chan struct{},
) {
	defer close(done)
	queue := func(msg WebSocketOCRResponse) bool {
		select {
		case results <- msg:
			return true
		case <-stop:
			return false
		}
	}
	for {
		// Read message from client
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		// Record message metric
		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType != websocket.TextMessage {
			continue
		}
		var req WebSocketRequest
		if err := json.Unmarshal(data, &req); err != nil {
			if !queue(webSocketError("invalid_request", fmt.Sprintf("Failed to parse request: %v", err))) {
				return
			}
			continue
		}
		switch req.Type {
		case "run_page":
			s.runWebSocketPage(sess, req.Page, queue)
		default:
			if !queue(webSocketError("invalid_request", "Unsupported request type: "+req.Type)) {
				return
			}
		}
	}
}

// runWebSocketPage recognizes a page in the background and queues the result.
func (s *Server) runWebSocketPage(sess *engine.Session, page int, queue func(WebSocketOCRResponse) bool) {
	s.jobs.Add(1)
	go func(ctx context.Context) {
		defer s.jobs.Done()
		res, err := sess.RunOCR(ctx, page)
		ocrRequestsTotal.WithLabelValues("websocket_page", ocrStatus(err)).Inc()
		msg := WebSocketOCRResponse{
			Type:       "ocr_result",
			Document:   sess.Document(),
			Page:       page,
			Text:       res.Text,
			Confidence: res.Confidence,
		}
		if err != nil {
			errType := "processing_error"
			if errors.Is(err, ocr.ErrBusy) {
				errType = "busy"
			}
			msg = webSocketError(errType, err.Error())
			msg.Page = page
		}
		queue(msg)
	}(s.ctx)
}

func webSocketError(errorType, message string) WebSocketOCRResponse {
	return WebSocketOCRResponse{Type: "error", Error: message, ErrorType: errorType}
}

// sendWebSocketResponse sends a message over WebSocket.
func (s *Server) sendWebSocketResponse(conn WebSocketConnWriter, response WebSocketOCRResponse) error {
	data, err := json.Marshal(response)
	if err != nil {
		s.logger.Error("Failed to marshal WebSocket response", "error", err)
		return err
	}

	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.logger.Debug("Failed to send WebSocket message", "error", err)
		return err
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
	return nil
}

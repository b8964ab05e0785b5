package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/piwardrive/piwardrive/internal/core/domain"
	"github.com/piwardrive/piwardrive/internal/telemetry"
)

const (
	wsSendTimeout    = 5 * time.Second
	streamSleep      = time.Second
	minEventInterval = 200 * time.Millisecond
	historyLimit     = 100
)

// streamMessage is the envelope every WS/SSE feed emits.
type streamMessage struct {
	Seq       uint64    `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
	Errors    uint64    `json:"errors"`
	LoadTime  float64   `json:"load_time"` // seconds spent building the payload
}

// sender abstracts the WS and SSE transports under the poll loop.
type sender interface {
	send(msg *streamMessage) error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Bearer auth already gates the handshake; cross-origin browsers
	// cannot attach the Authorization header without CORS approval.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pollInterval is the inter-message delay for polling feeds.
func (s *Server) pollInterval() time.Duration {
	if s.streamInterval > 0 {
		return s.streamInterval
	}
	if streamSleep > minEventInterval {
		return streamSleep
	}
	return minEventInterval
}

// loader builds one feed payload.
type loader func(ctx context.Context) (any, error)

func (s *Server) apsLoader(ctx context.Context) (any, error) {
	return s.aps.APCache(ctx)
}

func (s *Server) statusLoader(ctx context.Context) (any, error) {
	return s.health.Recent(ctx, defaultStatusSamples)
}

func (s *Server) historyLoader(ctx context.Context) (any, error) {
	if s.tracks == nil {
		return []*domain.GPSTrackPoint{}, nil
	}
	return s.tracks.LatestTrackPoints(ctx, historyLimit)
}

// runPollFeed pushes payloads at the poll interval until the client goes
// away or a send fails.
func (s *Server) runPollFeed(ctx context.Context, out sender, load loader) {
	ticker := time.NewTicker(s.pollInterval())
	defer ticker.Stop()

	var seq, errCount uint64
	for {
		seq++
		started := time.Now()
		payload, err := load(ctx)
		if err != nil {
			errCount++
			payload = nil
		}
		msg := &streamMessage{
			Seq:       seq,
			Timestamp: time.Now().UTC(),
			Payload:   payload,
			Errors:    errCount,
			LoadTime:  time.Since(started).Seconds(),
		}
		if err := out.send(msg); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runDetectionFeed forwards stream processor events.
func (s *Server) runDetectionFeed(ctx context.Context, out sender) {
	if s.stream == nil {
		return
	}
	sub, cancel := s.stream.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.C:
			if !ok {
				return
			}
			msg := &streamMessage{
				Seq:       event.Seq,
				Timestamp: event.Message.Timestamp,
				Payload:   event.Message,
			}
			if err := out.send(msg); err != nil {
				return
			}
		}
	}
}

// wsSender writes JSON text frames with a write deadline; a timeout closes
// the connection.
type wsSender struct {
	conn *websocket.Conn
}

func (ws *wsSender) send(msg *streamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ws.conn.SetWriteDeadline(time.Now().Add(wsSendTimeout))
	return ws.conn.WriteMessage(websocket.TextMessage, data)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, endpoint string, run func(context.Context, sender)) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "endpoint", endpoint, "error", err)
		return
	}
	defer conn.Close()

	telemetry.WSClients.WithLabelValues(endpoint).Inc()
	defer telemetry.WSClients.WithLabelValues(endpoint).Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain control frames; a read error means the client left.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	run(ctx, &wsSender{conn: conn})
}

// sseSender writes data frames and flushes after each one.
type sseSender struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (sse *sseSender) send(msg *streamMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(sse.w, "data: %s\n\n", data); err != nil {
		return err
	}
	sse.flusher.Flush()
	return nil
}

func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, endpoint string, run func(context.Context, sender)) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	telemetry.WSClients.WithLabelValues(endpoint).Inc()
	defer telemetry.WSClients.WithLabelValues(endpoint).Dec()

	run(r.Context(), &sseSender{w: w, flusher: flusher})
}

func (s *Server) handleWSAPs(w http.ResponseWriter, r *http.Request) {
	s.serveWS(w, r, "ws_aps", func(ctx context.Context, out sender) {
		s.runPollFeed(ctx, out, s.apsLoader)
	})
}

func (s *Server) handleWSStatus(w http.ResponseWriter, r *http.Request) {
	s.serveWS(w, r, "ws_status", func(ctx context.Context, out sender) {
		s.runPollFeed(ctx, out, s.statusLoader)
	})
}

func (s *Server) handleWSDetections(w http.ResponseWriter, r *http.Request) {
	s.serveWS(w, r, "ws_detections", s.runDetectionFeed)
}

func (s *Server) handleSSEAPs(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, "sse_aps", func(ctx context.Context, out sender) {
		s.runPollFeed(ctx, out, s.apsLoader)
	})
}

func (s *Server) handleSSEStatus(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, "sse_status", func(ctx context.Context, out sender) {
		s.runPollFeed(ctx, out, s.statusLoader)
	})
}

func (s *Server) handleSSEDetections(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, "sse_detections", s.runDetectionFeed)
}

func (s *Server) handleSSEHistory(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, "sse_history", func(ctx context.Context, out sender) {
		s.runPollFeed(ctx, out, s.historyLoader)
	})
}

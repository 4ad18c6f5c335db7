package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/callsmith-ai/callsmith/internal/observe"
)

// Server routes inbound call events to a Service.
type Server struct {
	svc     Service
	logger  *slog.Logger
	metrics *observe.Metrics
	mux     *http.ServeMux
}

// NewServer builds the HTTP surface around svc. A nil logger falls back to
// slog.Default; a nil metrics uses the process-wide instruments.
func NewServer(svc Service, logger *slog.Logger, metrics *observe.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	s := &Server{
		svc:     svc,
		logger:  logger,
		metrics: metrics,
		mux:     http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /calls/start", s.handleStart)
	s.mux.HandleFunc("POST /calls/speech", s.handleSpeech)
	s.mux.HandleFunc("POST /calls/end", s.handleEnd)
	s.mux.HandleFunc("GET /calls/{id}/summary", s.handleSummary)
	s.mux.HandleFunc("POST /knowledge", s.handleKnowledge)
	s.mux.HandleFunc("GET /stream", s.handleStream)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// Handler returns the mux wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.timeRequests(h)
	h = accessLog(s.logger, h)
	h = recoverPanics(s.logger, h)
	return h
}

func (s *Server) timeRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.metrics.HTTPRequestDuration.Record(r.Context(), time.Since(start).Seconds())
	})
}

// ─── Request/response shapes ─────────────────────────────────────────────────

type startRequest struct {
	CallID string `json:"call_id"`
}

type startResponse struct {
	Event  string `json:"event"`
	CallID string `json:"call_id"`
	Text   string `json:"text"`
}

type speechRequest struct {
	CallID string `json:"call_id"`
	Text   string `json:"text"`
}

type speechResponse struct {
	Text    string `json:"text"`
	EndCall bool   `json:"end_call"`
}

type endRequest struct {
	CallID string `json:"call_id"`
}

type endResponse struct {
	Status  string `json:"status"`
	Summary string `json:"summary"`
	Outcome string `json:"outcome,omitempty"`
}

type knowledgeRequest struct {
	Source string   `json:"source"`
	Pages  []string `json:"pages"`
}

type knowledgeResponse struct {
	Status          string `json:"status"`
	ChunksProcessed int    `json:"chunks_processed"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CallID == "" {
		req.CallID = uuid.NewString()
	}
	greeting, err := s.svc.StartCall(r.Context(), req.CallID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, startResponse{Event: "start", CallID: req.CallID, Text: greeting})
}

func (s *Server) handleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CallID == "" {
		writeError(w, http.StatusBadRequest, "call_id is required")
		return
	}
	start := time.Now()
	reply, endCall, err := s.svc.Speech(r.Context(), req.CallID, req.Text)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.ModelTurnDuration.Record(r.Context(), time.Since(start).Seconds())
	s.metrics.RecordUtterance(r.Context(), endCall)
	writeJSON(w, http.StatusOK, speechResponse{Text: reply, EndCall: endCall})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	var req endRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.CallID == "" {
		writeError(w, http.StatusBadRequest, "call_id is required")
		return
	}
	res := s.svc.EndCall(r.Context(), req.CallID)
	writeJSON(w, http.StatusOK, endResponse{
		Status:  res.Status,
		Summary: res.Summary,
		Outcome: string(res.Outcome),
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	latest, err := s.svc.LatestSummary(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, latest)
}

func (s *Server) handleKnowledge(w http.ResponseWriter, r *http.Request) {
	var req knowledgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Pages) == 0 {
		writeError(w, http.StatusBadRequest, "pages must not be empty")
		return
	}
	chunks, err := s.svc.UploadKnowledge(r.Context(), req.Source, req.Pages)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, knowledgeResponse{Status: "success", ChunksProcessed: chunks})
}

// ─── Websocket media stream ──────────────────────────────────────────────────

// streamMessage is the inbound frame format on /stream. Media payloads carry
// base64-encoded audio.
type streamMessage struct {
	Event  string `json:"event"`
	CallID string `json:"call_id"`
	Media  struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// streamReply is the outbound frame format on /stream.
type streamReply struct {
	Event string `json:"event"`
	Text  string `json:"text"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket accept failed", "err", err)
		return
	}

	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		callID = uuid.NewString()
	}

	ctx := r.Context()
	logger := s.logger.With("call_id", callID)

	greeting, err := s.svc.StartCall(ctx, callID)
	if err != nil {
		logger.Error("call start failed", "err", err)
		conn.Close(websocket.StatusInternalError, "call start failed")
		return
	}
	if err := writeStream(ctx, conn, streamReply{Event: "start", Text: greeting}); err != nil {
		conn.Close(websocket.StatusInternalError, "greeting failed")
		return
	}

	// Replies arrive asynchronously once buffered audio crosses the flush
	// threshold and the transcribed turn completes. A terminal reply cancels
	// the read context so the end sequence runs even when the peer stays
	// silent after the farewell.
	ended := make(chan struct{})
	var endOnce sync.Once
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	s.svc.AttachStream(callID, func(reply string, endCall bool) {
		if err := writeStream(ctx, conn, streamReply{Event: "media", Text: reply}); err != nil {
			logger.Warn("reply write failed", "err", err)
			return
		}
		if endCall {
			endOnce.Do(func() {
				close(ended)
				stopReading()
			})
		}
	})
	defer s.svc.DetachStream(callID)

	for {
		_, data, err := conn.Read(readCtx)
		if err != nil {
			select {
			case <-ended:
				s.finishStream(context.WithoutCancel(ctx), callID, conn, logger)
				return
			default:
			}
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				logger.Info("stream closed by peer")
			} else {
				logger.Warn("stream read failed", "err", err)
			}
			s.finishStream(context.WithoutCancel(ctx), callID, conn, logger)
			return
		}

		var msg streamMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("invalid stream frame", "err", err)
			continue
		}

		switch msg.Event {
		case "start":
			// Already greeted on connect.
		case "media":
			audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				logger.Warn("invalid media payload", "err", err)
				continue
			}
			s.metrics.AudioBytes.Add(ctx, int64(len(audio)))
			if err := s.svc.StreamAudio(ctx, callID, audio); err != nil {
				logger.Warn("audio ingest failed", "err", err)
			}
		case "stop":
			s.finishStream(ctx, callID, conn, logger)
			return
		default:
			logger.Debug("ignoring unknown stream event", "event", msg.Event)
		}
	}
}

// finishStream flushes buffered audio, runs the end-of-call sequence and
// closes the socket.
func (s *Server) finishStream(ctx context.Context, callID string, conn *websocket.Conn, logger *slog.Logger) {
	if err := s.svc.FlushAudio(ctx, callID); err != nil {
		logger.Warn("audio flush failed", "err", err)
	}
	res := s.svc.EndCall(ctx, callID)
	logger.Info("stream call ended", "status", res.Status, "outcome", res.Outcome)
	conn.Close(websocket.StatusNormalClosure, "call ended")
}

func writeStream(ctx context.Context, conn *websocket.Conn, reply streamReply) error {
	data, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Status: "error", Message: msg})
}

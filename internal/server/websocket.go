package server

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/MeKo-Tech/billscan/internal/pipeline"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checks happen at the CORS layer for the REST routes;
		// WebSocket clients are expected to be internal tools.
		return true
	},
}

// wsExtractRequest is the first message a client sends on /ws/extract.
// Exactly one of Document (base64) or DocumentURL must be set.
type wsExtractRequest struct {
	Document    string `json:"document,omitempty"`
	DocumentURL string `json:"document_url,omitempty"`
}

// wsFrame is a server-to-client message. Status is one of "started",
// "progress", "page_error", "completed" or "error".
type wsFrame struct {
	Status  string              `json:"status"`
	Current int                 `json:"current,omitempty"`
	Total   int                 `json:"total,omitempty"`
	Page    int                 `json:"page,omitempty"`
	Message string              `json:"message,omitempty"`
	Result  *ExtractionResponse `json:"result,omitempty"`
}

// wsProgress forwards pipeline progress events as WebSocket frames.
type wsProgress struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (p *wsProgress) send(frame wsFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.WriteJSON(frame); err != nil {
		slog.Debug("websocket write failed", "error", err)
	}
}

func (p *wsProgress) OnStart(total int) { p.send(wsFrame{Status: "started", Total: total}) }
func (p *wsProgress) OnComplete()       {}
func (p *wsProgress) OnProgress(c, t int) {
	p.send(wsFrame{Status: "progress", Current: c, Total: t})
}
func (p *wsProgress) OnError(pg int, err error) {
	p.send(wsFrame{Status: "page_error", Page: pg, Message: err.Error()})
}

// extractWebSocketHandler streams page progress while a document is
// processed and finishes with the full extraction envelope.
func (s *Server) extractWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))

	var req wsExtractRequest
	if err := conn.ReadJSON(&req); err != nil {
		_ = conn.WriteJSON(wsFrame{Status: "error", Message: "invalid request message"})
		return
	}

	ctx := r.Context()
	if s.timeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.timeoutSec)*time.Second)
		defer cancel()
	}

	data, errMsg := s.resolveWSDocument(ctx, req)
	if errMsg != "" {
		_ = conn.WriteJSON(wsFrame{Status: "error", Message: errMsg})
		return
	}

	progress := &wsProgress{conn: conn}
	result, err := s.processWithProgress(ctx, data, progress)
	if err != nil {
		resp, _ := classifyProcessError(err)
		progress.send(wsFrame{Status: "error", Message: err.Error(), Result: &resp})
		return
	}

	envelope := successResponse(result)
	progress.send(wsFrame{Status: "completed", Result: &envelope})
}

func (s *Server) resolveWSDocument(ctx context.Context, req wsExtractRequest) ([]byte, string) {
	switch {
	case req.Document != "":
		data, err := base64.StdEncoding.DecodeString(req.Document)
		if err != nil {
			return nil, "document is not valid base64"
		}
		return data, ""
	case req.DocumentURL != "":
		data, err := s.downloader.Download(ctx, req.DocumentURL)
		if err != nil {
			return nil, "download failed: " + err.Error()
		}
		return data, ""
	default:
		return nil, "document or document_url is required"
	}
}

// processWithProgress runs the pipeline with the per-connection progress
// callback attached when the pipeline supports it.
func (s *Server) processWithProgress(ctx context.Context, data []byte, progress pipeline.ProgressCallback) (*pipeline.Result, error) {
	type progressPipeline interface {
		ProcessWithProgress(ctx context.Context, data []byte, cb pipeline.ProgressCallback) (*pipeline.Result, error)
	}
	if pp, ok := s.pipeline.(progressPipeline); ok {
		return pp.ProcessWithProgress(ctx, data, progress)
	}
	return s.pipeline.Process(ctx, data)
}

package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"invoice-agent/internal/app"
)

// chat runs one assistant turn. With Accept: text/event-stream the reply is
// streamed as SSE events:
//
//	status  {"status":"thinking"}
//	answer  {"text":"...","tool_calls":[...]}
//	error   {"message":"...","code":"AI_ERROR"}
//	done    {}
func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req app.ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TeamID == "" {
		req.TeamID = teamParam(r)
	}

	flusher, ok := w.(http.Flusher)
	if !ok || !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		res, err := h.svc.Chat(r.Context(), userID(r), req)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, res)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sendSSE(w, flusher, "status", map[string]any{"status": "thinking"})
	res, err := h.svc.Chat(r.Context(), userID(r), req)
	if err != nil {
		sendSSE(w, flusher, "error", map[string]any{"message": err.Error(), "code": "AI_ERROR"})
		sendSSE(w, flusher, "done", map[string]any{})
		return
	}
	sendSSE(w, flusher, "answer", map[string]any{"text": res.Reply, "tool_calls": res.ToolCalls})
	sendSSE(w, flusher, "done", map[string]any{})
}

// sendSSE writes one SSE event and flushes. data is JSON-marshalled.
func sendSSE(w http.ResponseWriter, f http.Flusher, event string, data any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(b))
	f.Flush()
}

func (h *Handler) assistantInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.svc.AssistantInvoices(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, invoices)
}

func (h *Handler) assistantInvoiceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.AssistantInvoiceStats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

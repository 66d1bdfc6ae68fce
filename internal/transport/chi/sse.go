package chi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/kailas-cloud/coderag/internal/domain"
	"github.com/kailas-cloud/coderag/internal/usecase/retrieval"
)

// ChunkEvent is the payload of a "chunk" server-sent event.
type ChunkEvent struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

// streamAnswer writes answer text as "chunk" events followed by one "result"
// event, or an "error" event when the query fails after the stream started.
func (s *Server) streamAnswer(w http.ResponseWriter, r *http.Request, req retrieval.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, CodeInternal, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	resp, err := s.query.QueryStream(r.Context(), req, func(c domain.StreamChunk) {
		writeEvent(w, "chunk", ChunkEvent{Content: c.Content, Done: c.Done})
		flusher.Flush()
	})
	if err != nil {
		if r.Context().Err() != nil {
			s.requestLogger(r).Debug("query stream canceled by client", zap.Error(err))
			return
		}
		_, code, msg := classify(err)
		writeEvent(w, "error", ErrorResponse{Code: code, Message: msg})
		flusher.Flush()
		return
	}

	writeEvent(w, "result", queryToResponse(resp))
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

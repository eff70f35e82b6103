package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/agile-ai/ragchat-platform/internal/model"
	"github.com/agile-ai/ragchat-platform/pkg/metrics"
)

// defaultChunkSize is how many runes each chunk of a replayed answer
// carries. Synthesis computes the whole answer before delivery starts, so
// chunking here only shapes the wire, not the persisted message.
const defaultChunkSize = 16

// StreamDispatcher delivers a completed answer to the caller
// incrementally: plain-text chunks for ordinary clients, SSE events for
// event-stream clients. The persisted message is always the final text;
// a client disconnect mid-stream only stops delivery.
type StreamDispatcher struct {
	chunkSize int
	logger    *zap.Logger
}

// NewStreamDispatcher creates a dispatcher with the default chunk size.
func NewStreamDispatcher(logger *zap.Logger) *StreamDispatcher {
	return &StreamDispatcher{
		chunkSize: defaultChunkSize,
		logger:    logger,
	}
}

// Chunks splits text into rune-safe chunks of the dispatcher's size.
func (d *StreamDispatcher) Chunks(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var chunks []string
	for start := 0; start < len(runes); start += d.chunkSize {
		end := start + d.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

// DispatchText streams the answer text to the client as chunked
// text/plain. The client appends bytes to a single evolving buffer.
func (d *StreamDispatcher) DispatchText(w http.ResponseWriter, r *http.Request, resp *model.AnswerResponse) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")

	flusher, ok := w.(http.Flusher)
	if !ok {
		// No incremental delivery available; fall back to one write.
		fmt.Fprint(w, resp.AnswerText)
		return
	}

	metrics.IncrementStreamConnections()
	defer metrics.DecrementStreamConnections()

	done := r.Context().Done()
	for _, chunk := range d.Chunks(resp.AnswerText) {
		select {
		case <-done:
			d.logger.Info("client disconnected during answer delivery")
			return
		default:
		}
		fmt.Fprint(w, chunk)
		flusher.Flush()
	}
}

// DispatchEvents streams the answer as SSE: chunk events carrying the
// text, then a complete event with the full structured response.
func (d *StreamDispatcher) DispatchEvents(w http.ResponseWriter, r *http.Request, resp *model.AnswerResponse) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementStreamConnections()
	defer metrics.DecrementStreamConnections()

	done := r.Context().Done()
	for i, chunk := range d.Chunks(resp.AnswerText) {
		select {
		case <-done:
			d.logger.Info("client disconnected during answer delivery")
			return
		default:
		}
		sendSSEEvent(w, flusher, "chunk", map[string]any{
			"text":  chunk,
			"index": i,
		})
	}

	sendSSEEvent(w, flusher, "complete", resp)
	sendSSEEvent(w, flusher, "done", map[string]bool{"success": true})
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}

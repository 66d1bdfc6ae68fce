package coderag

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const maxEventSize = 4 << 20

// Query asks a question and waits for the full answer.
func (c *Client) Query(ctx context.Context, req QueryRequest) (Answer, error) {
	req.Stream = false
	var ans Answer
	if err := c.call(ctx, "query", http.MethodPost, "/v1/query", req, &ans); err != nil {
		return Answer{}, err
	}
	return ans, nil
}

// QueryStream asks a question and calls onChunk with each piece of the
// answer as it is generated. The returned Answer carries the full text.
func (c *Client) QueryStream(ctx context.Context, req QueryRequest, onChunk func(string)) (ans Answer, err error) {
	start := time.Now()
	defer func() { c.obs.observe("query.stream", start, err) }()

	req.Stream = true
	resp, err := c.send(ctx, http.MethodPost, "/v1/query", req, "text/event-stream")
	if err != nil {
		return Answer{}, fmt.Errorf("query stream: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return Answer{}, fmt.Errorf("query stream: %w", decodeError(resp))
	}

	ans, err = readEvents(bufio.NewScanner(resp.Body), onChunk)
	if err != nil {
		return Answer{}, fmt.Errorf("query stream: %w", err)
	}
	return ans, nil
}

type chunkEvent struct {
	Content string `json:"content"`
	Done    bool   `json:"done"`
}

// readEvents consumes "chunk" events until a "result" or "error" event.
func readEvents(sc *bufio.Scanner, onChunk func(string)) (Answer, error) {
	sc.Buffer(make([]byte, 0, 64<<10), maxEventSize)

	var event, data string
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		case strings.HasPrefix(line, "data:"):
			data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			continue
		case line != "":
			continue
		}

		switch event {
		case "chunk":
			var ch chunkEvent
			if err := json.Unmarshal([]byte(data), &ch); err != nil {
				return Answer{}, fmt.Errorf("decode chunk: %w", err)
			}
			if ch.Content != "" && onChunk != nil {
				onChunk(ch.Content)
			}
		case "result":
			var ans Answer
			if err := json.Unmarshal([]byte(data), &ans); err != nil {
				return Answer{}, fmt.Errorf("decode result: %w", err)
			}
			return ans, nil
		case "error":
			apiErr := &APIError{StatusCode: http.StatusOK}
			if err := json.Unmarshal([]byte(data), apiErr); err != nil {
				return Answer{}, fmt.Errorf("decode error event: %w", err)
			}
			return Answer{}, apiErr
		}
		event, data = "", ""
	}
	if err := sc.Err(); err != nil {
		return Answer{}, fmt.Errorf("read events: %w", err)
	}
	return Answer{}, errors.New("stream ended without a result")
}

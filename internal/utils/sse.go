package utils

import (
	"fmt"
	"net/http"
	"sync"
)

// SSEWriter 串行化对同一连接的事件写入，心跳与业务帧可能来自不同 goroutine
type SSEWriter struct {
	mu sync.Mutex
	w  http.ResponseWriter
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	
	return &SSEWriter{w: w}
}

func (s *SSEWriter) Write(event, data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}
	
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	
	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}
	
	return nil
}

func (s *SSEWriter) Close() error {
	return s.Write("", "[DONE]")
}
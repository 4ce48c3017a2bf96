package utils

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
)

// ErrSSEClosed 表示客户端已断开或写入器已关闭。
var ErrSSEClosed = errors.New("sse stream closed")

// SSEDone 是流结束标记。
const SSEDone = "[DONE]"

// SetupSSEHeaders 设置Server-Sent Events响应头
func SetupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// SSEWriter 以 `data: <json>\n\n` 帧向浏览器推送片段。
// 每次写入前检查请求上下文，写入失败后写入器视为关闭。
type SSEWriter struct {
	ctx     context.Context
	w       http.ResponseWriter
	flusher http.Flusher

	mu     sync.Mutex
	closed bool
}

// NewSSEWriter 在响应可刷新时返回写入器，否则返回 false。
func NewSSEWriter(ctx context.Context, w http.ResponseWriter) (*SSEWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	return &SSEWriter{ctx: ctx, w: w, flusher: flusher}, true
}

// Open 写出响应头并立即刷新，使客户端尽早进入流式状态。
func (s *SSEWriter) Open() {
	SetupSSEHeaders(s.w)
	s.w.WriteHeader(http.StatusOK)
	s.flusher.Flush()
}

// Fragment 发送一个内容片段。
func (s *SSEWriter) Fragment(text string) error {
	return s.sendJSON(map[string]string{"content": text})
}

// Done 发送结束标记。
func (s *SSEWriter) Done() error {
	return s.send([]byte(SSEDone))
}

// Fail 发送错误事件，之后调用方应关闭写入器。
func (s *SSEWriter) Fail(message string) error {
	return s.sendJSON(map[string]string{"error": message})
}

// Close 标记写入器关闭，可重复调用。
func (s *SSEWriter) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *SSEWriter) sendJSON(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal sse payload: %w", err)
	}
	return s.send(data)
}

func (s *SSEWriter) send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSSEClosed
	}
	if err := s.ctx.Err(); err != nil {
		s.closed = true
		return ErrSSEClosed
	}

	frame := make([]byte, 0, len(data)+8)
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, "\n\n"...)

	if _, err := s.w.Write(frame); err != nil {
		s.closed = true
		log.Printf("[sse] write failed: %v", err)
		return fmt.Errorf("%w: %v", ErrSSEClosed, err)
	}
	s.flusher.Flush()
	return nil
}

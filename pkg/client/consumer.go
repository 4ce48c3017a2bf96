package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"strings"
)

const maxLineSize = 1 << 20

// RelayError is an error event sent by the relay in the middle of a turn.
type RelayError struct {
	Message string
	Partial string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay error: %s", e.Message)
}

type relayEvent struct {
	Content *string `json:"content"`
	Error   string  `json:"error"`
}

// Consume reads a turn's SSE body, invoking onFragment for each fragment
// in order, and returns the concatenated text. The body is always closed.
// A stream that ends without [DONE] returns the text read so far together
// with io.ErrUnexpectedEOF.
func Consume(body io.ReadCloser, onFragment func(string)) (string, error) {
	defer body.Close()

	var text strings.Builder
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return text.String(), nil
		}

		var event relayEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			log.Printf("[client] skipping malformed event: %v", err)
			continue
		}
		if event.Error != "" {
			return text.String(), &RelayError{Message: event.Error, Partial: text.String()}
		}
		if event.Content == nil || *event.Content == "" {
			continue
		}

		text.WriteString(*event.Content)
		if onFragment != nil {
			onFragment(*event.Content)
		}
	}

	if err := scanner.Err(); err != nil {
		return text.String(), err
	}
	return text.String(), io.ErrUnexpectedEOF
}

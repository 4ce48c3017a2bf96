package ai

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"strings"
)

// Format identifies how an upstream frames its streaming response.
type Format int

const (
	// FormatCloudSSE is the OpenAI-compatible "data: {...}" stream ending with [DONE].
	FormatCloudSSE Format = iota + 1
	// FormatAnthropicSSE is the Anthropic messages event stream.
	FormatAnthropicSSE
	// FormatNDJSON is one JSON object per line, as served by Ollama.
	FormatNDJSON
)

func (f Format) String() string {
	switch f {
	case FormatCloudSSE:
		return "cloud-sse"
	case FormatAnthropicSSE:
		return "anthropic-sse"
	case FormatNDJSON:
		return "ndjson"
	default:
		return "unknown"
	}
}

// FormatFor maps a configured provider name to its wire format.
func FormatFor(provider string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case ProviderOpenAI, ProviderOpenRouter, ProviderLMStudio:
		return FormatCloudSSE, nil
	case ProviderAnthropic:
		return FormatAnthropicSSE, nil
	case ProviderOllama:
		return FormatNDJSON, nil
	default:
		return 0, &ConfigError{Provider: provider, Reason: "unknown provider"}
	}
}

const ssePrefix = "data:"

// Decoder turns raw upstream bytes into text fragments. It buffers a
// trailing partial record across Feed calls and stops producing
// fragments once a terminal record has been seen.
type Decoder struct {
	format  Format
	buf     []byte
	done    bool
	skipped int
}

// NewDecoder returns a decoder for the given wire format.
func NewDecoder(format Format) *Decoder {
	return &Decoder{format: format}
}

// Done reports whether a terminal record was decoded.
func (d *Decoder) Done() bool { return d.done }

// Skipped returns how many malformed records were dropped.
func (d *Decoder) Skipped() int { return d.skipped }

// Feed appends chunk and decodes every complete line in the buffer.
// An error means the upstream reported a failure in-band; fragments
// decoded before it are still returned.
func (d *Decoder) Feed(chunk []byte) ([]string, error) {
	if d.done {
		return nil, nil
	}
	d.buf = append(d.buf, chunk...)

	var out []string
	for !d.done {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := d.buf[:idx]
		d.buf = d.buf[idx+1:]

		text, err := d.decodeLine(line)
		if text != "" {
			out = append(out, text)
		}
		if err != nil {
			return out, err
		}
	}

	if d.done || len(d.buf) == 0 {
		d.buf = nil
	}
	return out, nil
}

// Flush decodes a final record that arrived without a trailing newline.
func (d *Decoder) Flush() ([]string, error) {
	if d.done || len(d.buf) == 0 {
		d.buf = nil
		return nil, nil
	}
	line := d.buf
	d.buf = nil

	text, err := d.decodeLine(line)
	if text == "" {
		return nil, err
	}
	return []string{text}, err
}

func (d *Decoder) decodeLine(line []byte) (string, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return "", nil
	}

	switch d.format {
	case FormatCloudSSE:
		return d.decodeCloud(line)
	case FormatAnthropicSSE:
		return d.decodeAnthropic(line)
	case FormatNDJSON:
		return d.decodeNDJSON(line)
	default:
		return "", fmt.Errorf("unsupported format %d", d.format)
	}
}

// ssePayload strips the "data:" prefix; other SSE fields (event, id,
// comments) carry nothing the relay needs.
func ssePayload(line []byte) ([]byte, bool) {
	if !bytes.HasPrefix(line, []byte(ssePrefix)) {
		return nil, false
	}
	return bytes.TrimSpace(line[len(ssePrefix):]), true
}

type cloudChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error json.RawMessage `json:"error"`
}

func (d *Decoder) decodeCloud(line []byte) (string, error) {
	payload, ok := ssePayload(line)
	if !ok {
		return "", nil
	}
	if string(payload) == "[DONE]" {
		d.done = true
		return "", nil
	}

	var chunk cloudChunk
	if err := json.Unmarshal(payload, &chunk); err != nil {
		d.skip(payload, err)
		return "", nil
	}
	if msg := errorMessage(chunk.Error); msg != "" {
		d.done = true
		return "", fmt.Errorf("upstream error: %s", msg)
	}
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	return chunk.Choices[0].Delta.Content, nil
}

type anthropicEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
	Error json.RawMessage `json:"error"`
}

func (d *Decoder) decodeAnthropic(line []byte) (string, error) {
	payload, ok := ssePayload(line)
	if !ok {
		return "", nil
	}

	var event anthropicEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		d.skip(payload, err)
		return "", nil
	}

	switch event.Type {
	case "content_block_delta":
		return event.Delta.Text, nil
	case "message_stop":
		d.done = true
	case "error":
		d.done = true
		msg := errorMessage(event.Error)
		if msg == "" {
			msg = "unknown error"
		}
		return "", fmt.Errorf("upstream error: %s", msg)
	}
	return "", nil
}

type ndjsonRecord struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Response string          `json:"response"`
	Done     bool            `json:"done"`
	Error    json.RawMessage `json:"error"`
}

func (d *Decoder) decodeNDJSON(line []byte) (string, error) {
	var rec ndjsonRecord
	if err := json.Unmarshal(line, &rec); err != nil {
		d.skip(line, err)
		return "", nil
	}
	if msg := errorMessage(rec.Error); msg != "" {
		d.done = true
		return "", fmt.Errorf("upstream error: %s", msg)
	}

	text := rec.Response
	if rec.Message != nil {
		text = rec.Message.Content
	}
	if rec.Done {
		d.done = true
	}
	return text, nil
}

func (d *Decoder) skip(record []byte, err error) {
	d.skipped++
	if len(record) > 120 {
		record = record[:120]
	}
	log.Printf("[ai] skipped malformed %s record %q: %v", d.format, record, err)
}

// errorMessage extracts a message from either `"error": "text"` or
// `"error": {"message": "text"}`.
func errorMessage(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}

	var obj struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.Message != "" {
			return obj.Message
		}
		if obj.Type != "" {
			return obj.Type
		}
	}
	return string(raw)
}

package ai

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cloudBody = "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n" +
		": keep-alive\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n" +
		"data: [DONE]\n\n"

	anthropicBody = "event: message_start\ndata: {\"type\":\"message_start\",\"message\":{\"id\":\"msg_1\"}}\n\n" +
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"H\"}}\n\n" +
		"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"i\"}}\n\n" +
		"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n"

	ndjsonBody = "{\"message\":{\"role\":\"assistant\",\"content\":\"Hel\"},\"done\":false}\n" +
		"{\"message\":{\"role\":\"assistant\",\"content\":\"lo\"},\"done\":false}\n" +
		"{\"message\":{\"role\":\"assistant\",\"content\":\"!\"},\"done\":true}\n"
)

func decodeAll(t *testing.T, format Format, chunks ...string) []string {
	t.Helper()
	dec := NewDecoder(format)
	var out []string
	for _, chunk := range chunks {
		frags, err := dec.Feed([]byte(chunk))
		require.NoError(t, err)
		out = append(out, frags...)
	}
	frags, err := dec.Flush()
	require.NoError(t, err)
	return append(out, frags...)
}

func TestDecoderChunkBoundaries(t *testing.T) {
	cases := []struct {
		name   string
		format Format
		body   string
		want   []string
	}{
		{"cloud", FormatCloudSSE, cloudBody, []string{"Hel", "lo", " world"}},
		{"anthropic", FormatAnthropicSSE, anthropicBody, []string{"H", "i"}},
		{"ndjson", FormatNDJSON, ndjsonBody, []string{"Hel", "lo", "!"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			whole := decodeAll(t, tc.format, tc.body)
			assert.Equal(t, tc.want, whole)

			for i := 1; i < len(tc.body); i++ {
				split := decodeAll(t, tc.format, tc.body[:i], tc.body[i:])
				require.Equal(t, strings.Join(tc.want, ""), strings.Join(split, ""), "split at byte %d", i)
			}

			bytewise := make([]string, 0, len(tc.body))
			for i := 0; i < len(tc.body); i++ {
				bytewise = append(bytewise, tc.body[i:i+1])
			}
			assert.Equal(t, tc.want, decodeAll(t, tc.format, bytewise...))
		})
	}
}

func TestDecoderIgnoresDataAfterTerminal(t *testing.T) {
	cases := []struct {
		name     string
		format   Format
		body     string
		later    string
		trailing string
		want     []string
	}{
		{
			name:   "cloud",
			format: FormatCloudSSE,
			body: "data: {\"choices\":[{\"delta\":{\"content\":\"Hi\"}}]}\n" +
				"data: [DONE]\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n",
			later:    "data: {\"choices\":[{\"delta\":{\"content\":\"c\"}}]}\n",
			trailing: "data: {\"choices\":[{\"delta\":{\"content\":\"d\"}}]}",
			want:     []string{"Hi"},
		},
		{
			name:   "anthropic",
			format: FormatAnthropicSSE,
			body: "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n" +
				"event: message_stop\ndata: {\"type\":\"message_stop\"}\n\n" +
				"event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"b\"}}\n\n",
			later:    "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"c\"}}\n",
			trailing: "data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"d\"}}",
			want:     []string{"Hi"},
		},
		{
			name:   "ndjson",
			format: FormatNDJSON,
			body: "{\"message\":{\"content\":\"Hi\"},\"done\":true}\n" +
				"{\"message\":{\"content\":\"b\"},\"done\":false}\n",
			later:    "{\"message\":{\"content\":\"c\"},\"done\":false}\n",
			trailing: "{\"message\":{\"content\":\"d\"},\"done\":false}",
			want:     []string{"Hi"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec := NewDecoder(tc.format)
			frags, err := dec.Feed([]byte(tc.body))
			require.NoError(t, err)
			assert.Equal(t, tc.want, frags)
			assert.True(t, dec.Done())

			more, err := dec.Feed([]byte(tc.later))
			require.NoError(t, err)
			assert.Empty(t, more)

			_, err = dec.Feed([]byte(tc.trailing))
			require.NoError(t, err)
			flushed, err := dec.Flush()
			require.NoError(t, err)
			assert.Empty(t, flushed)
		})
	}
}

func TestDecoderSkipsMalformedRecords(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n" +
		"data: {not json\n" +
		"data: {\"choices\":[]}\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"!\"}}]}\n"

	dec := NewDecoder(FormatCloudSSE)
	frags, err := dec.Feed([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, []string{"ok", "!"}, frags)
	assert.Equal(t, 1, dec.Skipped())
}

func TestDecoderCRLFLines(t *testing.T) {
	body := "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\r\n\r\ndata: [DONE]\r\n\r\n"
	assert.Equal(t, []string{"x"}, decodeAll(t, FormatCloudSSE, body))
}

func TestDecoderFlushParsesUnterminatedRecord(t *testing.T) {
	dec := NewDecoder(FormatNDJSON)
	frags, err := dec.Feed([]byte(`{"response":"tail","done":true}`))
	require.NoError(t, err)
	assert.Empty(t, frags)

	flushed, err := dec.Flush()
	require.NoError(t, err)
	assert.Equal(t, []string{"tail"}, flushed)
	assert.True(t, dec.Done())
}

func TestDecoderInBandErrors(t *testing.T) {
	cases := []struct {
		name   string
		format Format
		body   string
		msg    string
	}{
		{"cloud", FormatCloudSSE, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\ndata: {\"error\":{\"message\":\"rate limited\",\"type\":\"rate_limit\"}}\n", "rate limited"},
		{"anthropic", FormatAnthropicSSE, "data: {\"type\":\"content_block_delta\",\"delta\":{\"text\":\"a\"}}\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n", "Overloaded"},
		{"ndjson", FormatNDJSON, "{\"message\":{\"content\":\"a\"}}\n{\"error\":\"model not found\"}\n", "model not found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dec := NewDecoder(tc.format)
			frags, err := dec.Feed([]byte(tc.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.msg)
			assert.Equal(t, []string{"a"}, frags)
			assert.True(t, dec.Done())
		})
	}
}

func TestFormatFor(t *testing.T) {
	for provider, want := range map[string]Format{
		"openai":     FormatCloudSSE,
		"OpenRouter": FormatCloudSSE,
		"lmstudio":   FormatCloudSSE,
		"anthropic":  FormatAnthropicSSE,
		"ollama":     FormatNDJSON,
	} {
		got, err := FormatFor(provider)
		require.NoError(t, err, provider)
		assert.Equal(t, want, got, provider)
	}

	_, err := FormatFor("gemini")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "gemini", cfgErr.Provider)
}

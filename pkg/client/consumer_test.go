package client

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestConsumeForwardsFragmentsInOrder(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(
		"data: {\"content\":\"Hel\"}\n\n" +
			": keep-alive\n\n" +
			"data: {\"content\":\"lo\"}\n\n" +
			"data: not json\n\n" +
			"data: [DONE]\n\n" +
			"data: {\"content\":\"ignored\"}\n\n",
	)}

	var got []string
	text, err := Consume(body, func(s string) { got = append(got, s) })

	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.Equal(t, []string{"Hel", "lo"}, got)
	assert.True(t, body.closed)
}

func TestConsumeReturnsRelayError(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader(
		"data: {\"content\":\"half\"}\n\n" +
			"data: {\"error\":\"openai stream interrupted\"}\n\n",
	)}

	text, err := Consume(body, nil)

	var relayErr *RelayError
	require.True(t, errors.As(err, &relayErr))
	assert.Equal(t, "openai stream interrupted", relayErr.Message)
	assert.Equal(t, "half", relayErr.Partial)
	assert.Equal(t, "half", text)
	assert.True(t, body.closed)
}

func TestConsumeWithoutDoneIsUnexpectedEOF(t *testing.T) {
	body := &trackingBody{Reader: strings.NewReader("data: {\"content\":\"cut\"}\n\n")}

	text, err := Consume(body, nil)

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "cut", text)
}

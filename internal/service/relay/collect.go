package relay

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/zhouzirui/z-arena/backend/internal/service/ai"
)

// Collect drains stream into a single string for clients that cannot
// consume a stream, and reports how many non-empty fragments it read. On
// failure the text gathered so far is returned together with the error.
func Collect(ctx context.Context, stream ai.Stream) (string, int, error) {
	defer stream.Close()

	var (
		builder   strings.Builder
		fragments int
	)
	for {
		if err := ctx.Err(); err != nil {
			return builder.String(), fragments, err
		}

		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return builder.String(), fragments, nil
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return builder.String(), fragments, ctxErr
			}
			return builder.String(), fragments, err
		}
		if fragment == "" {
			continue
		}
		builder.WriteString(fragment)
		fragments++
	}
}

// Package munger provides reusable roap.Munger combinators. The core
// engine only ever calls a bare roap.Munger; this package is where a host
// assembles one out of smaller, composable pieces (spec §4.4 leaves the
// rewriting itself entirely up to the host).
package munger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kuuji/roapmedia/internal/roap"
)

// Chain composes mungers so each runs on the previous one's output, in
// order. An empty chain is roap.PassthroughMunger.
func Chain(mungers ...roap.Munger) roap.Munger {
	if len(mungers) == 0 {
		return roap.PassthroughMunger
	}
	return func(ctx context.Context, sdp string) (string, error) {
		cur := sdp
		for i, m := range mungers {
			next, err := m(ctx, cur)
			if err != nil {
				return "", fmt.Errorf("munger step %d: %w", i, err)
			}
			cur = next
		}
		return cur, nil
	}
}

// Logging wraps next so every invocation is logged at Debug, including the
// byte length of the SDP before and after. Useful while developing a new
// munger without instrumenting it directly.
func Logging(log *slog.Logger, next roap.Munger) roap.Munger {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "munger")
	return func(ctx context.Context, sdp string) (string, error) {
		out, err := next(ctx, sdp)
		if err != nil {
			log.Debug("munge failed", "in_bytes", len(sdp), "error", err)
			return "", err
		}
		log.Debug("munged sdp", "in_bytes", len(sdp), "out_bytes", len(out))
		return out, nil
	}
}

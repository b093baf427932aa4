package munger

import (
	"context"
	"errors"
	"testing"

	"github.com/kuuji/roapmedia/internal/roap"
)

func upper(_ context.Context, sdp string) (string, error) { return sdp + "-A", nil }
func lower(_ context.Context, sdp string) (string, error) { return sdp + "-B", nil }

func TestChain_AppliesInOrder(t *testing.T) {
	t.Parallel()

	m := Chain(upper, lower)
	out, err := m(context.Background(), "sdp")
	if err != nil {
		t.Fatalf("Chain() error: %v", err)
	}
	if out != "sdp-A-B" {
		t.Fatalf("out = %q, want %q", out, "sdp-A-B")
	}
}

func TestChain_Empty(t *testing.T) {
	t.Parallel()

	m := Chain()
	out, err := m(context.Background(), "sdp")
	if err != nil || out != "sdp" {
		t.Fatalf("Chain() = (%q, %v), want (\"sdp\", nil)", out, err)
	}
}

func TestChain_StopsOnError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	failing := func(_ context.Context, sdp string) (string, error) { return "", wantErr }

	m := Chain(upper, failing, lower)
	_, err := m(context.Background(), "sdp")
	if err == nil {
		t.Fatal("Chain() expected error, got nil")
	}
}

func TestLogging_PassesThroughResult(t *testing.T) {
	t.Parallel()

	m := Logging(nil, roap.PassthroughMunger)
	out, err := m(context.Background(), "sdp")
	if err != nil || out != "sdp" {
		t.Fatalf("Logging() = (%q, %v), want (\"sdp\", nil)", out, err)
	}
}

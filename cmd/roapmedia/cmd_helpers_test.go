package main

import "testing"

func TestNormalizeServerURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "no scheme prepends ws",
			input: "localhost:8080/connect",
			want:  "ws://localhost:8080/connect",
		},
		{
			name:  "ws scheme unchanged",
			input: "ws://localhost:8080/connect",
			want:  "ws://localhost:8080/connect",
		},
		{
			name:  "wss scheme unchanged",
			input: "wss://signal.example.com/connect",
			want:  "wss://signal.example.com/connect",
		},
		{
			name:  "https converted to wss",
			input: "https://signal.example.com/connect",
			want:  "wss://signal.example.com/connect",
		},
		{
			name:  "http converted to ws",
			input: "http://localhost:8080/connect",
			want:  "ws://localhost:8080/connect",
		},
		{
			name:  "leading and trailing whitespace trimmed",
			input: "  localhost:8080/connect  ",
			want:  "ws://localhost:8080/connect",
		},
		{
			name:    "empty string errors",
			input:   "",
			wantErr: true,
		},
		{
			name:    "whitespace-only errors",
			input:   "   ",
			wantErr: true,
		},
		{
			name:    "unsupported scheme errors",
			input:   "ftp://example.com/connect",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := normalizeServerURL(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("normalizeServerURL(%q) expected error, got nil", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("normalizeServerURL(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("normalizeServerURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

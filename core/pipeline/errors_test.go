package pipeline

import (
	"errors"
	"testing"
)

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(ErrAcquisition, "youtube", "yt-dlp failed", cause)
	if !errors.Is(err, ErrAcquisition) || !errors.Is(err, cause) {
		t.Fatalf("wrapped error lost its chain: %v", err)
	}
	if got := err.Error(); got != "acquisition failed: youtube: yt-dlp failed: exit status 1" {
		t.Fatalf("message = %q", got)
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Wrap(ErrValidation, "file", "bad name", nil), "validation"},
		{Wrap(ErrTimeout, "processor", "", nil), "timeout"},
		{Wrap(ErrMerge, "", "", nil), "merge"},
		{Wrap(ErrStore, "create", "", nil), "store"},
		{errors.New("boom"), "internal"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

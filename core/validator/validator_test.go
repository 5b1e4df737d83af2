package validator

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"DropFM/core/pipeline"
	"DropFM/model"
)

func testValidator() *Validator {
	return New(Rules{
		AllowedExtensions: []string{"mp3", ".FLAC", "opus"},
		YouTubeDomains:    []string{"youtube.com", "youtu.be"},
		SpotifyDomains:    []string{"open.spotify.com"},
	})
}

func TestValidateFilename(t *testing.T) {
	v := testValidator()
	tests := []struct {
		name string
		ok   bool
	}{
		{"track.mp3", true},
		{"Track.MP3", true},
		{"01 - Intro.flac", true},
		{"song.opus", true},
		{"", false},
		{"   ", false},
		{"../../etc/passwd", false},
		{"..mp3", false},
		{"a/b.mp3", false},
		{`a\b.mp3`, false},
		{"bell\a.mp3", false},
		{"new\nline.mp3", false},
		{".mp3", false},
		{".hidden.flac", false},
		{"noext", false},
		{"script.sh", false},
		{"track.mp3.exe", false},
	}
	for _, tt := range tests {
		err := v.ValidateFilename(tt.name)
		if (err == nil) != tt.ok {
			t.Errorf("ValidateFilename(%q) = %v, want ok=%v", tt.name, err, tt.ok)
		}
		if err != nil && !errors.Is(err, pipeline.ErrValidation) {
			t.Errorf("ValidateFilename(%q) error does not match ErrValidation", tt.name)
		}
	}
}

func TestValidateFilenameRejectsTraversalProperty(t *testing.T) {
	v := testValidator()
	rng := rand.New(rand.NewSource(1))
	bad := []string{"..", "/", `\`}
	alphabet := "abcdefghijklmnopqrstuvwxyz0123456789 ._-"
	for i := 0; i < 500; i++ {
		var b strings.Builder
		for j := 0; j < rng.Intn(12); j++ {
			b.WriteByte(alphabet[rng.Intn(len(alphabet))])
		}
		prefix := b.String()
		name := prefix + bad[rng.Intn(len(bad))] + "x.mp3"
		if v.ValidateFilename(name) == nil {
			t.Fatalf("ValidateFilename(%q) accepted a traversal name", name)
		}
	}
}

func TestValidateURL(t *testing.T) {
	v := testValidator()
	tests := []struct {
		kind model.SourceKind
		url  string
		ok   bool
	}{
		{model.SourceYouTube, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", true},
		{model.SourceYouTube, "https://youtu.be/dQw4w9WgXcQ", true},
		{model.SourceYouTube, "https://music.youtube.com/watch?v=abc", true},
		{model.SourceSpotify, "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", true},
		{model.SourceYouTube, "https://evil.com/foo", false},
		{model.SourceYouTube, "https://youtube.com.evil.com/watch?v=x", false},
		{model.SourceYouTube, "https://notyoutube.com/watch?v=x", false},
		{model.SourceYouTube, "http://www.youtube.com/watch?v=x", false},
		{model.SourceYouTube, "ftp://youtube.com/x", false},
		{model.SourceYouTube, "https://user:pw@youtube.com/x", false},
		{model.SourceYouTube, "https://www.youtube.com/watch?v=x&list=y", false},
		{model.SourceYouTube, "https://www.youtube.com/watch?v=x;rm", false},
		{model.SourceYouTube, "https://www.youtube.com/watch?v=$(id)", false},
		{model.SourceYouTube, "https://www.youtube.com/watch?v=`id`", false},
		{model.SourceYouTube, "https://www.youtube.com/watch?v=x|cat", false},
		{model.SourceYouTube, "https://www.youtube.com/watch?v=x\nfoo", false},
		{model.SourceYouTube, "https://www.youtube.com/" + strings.Repeat("a", 200), false},
		{model.SourceSpotify, "https://www.youtube.com/watch?v=x", false},
		{model.SourceYouTube, "https://open.spotify.com/track/x", false},
		{model.SourceYouTube, "", false},
	}
	for _, tt := range tests {
		err := v.Validate(tt.kind, tt.url)
		if (err == nil) != tt.ok {
			t.Errorf("Validate(%s, %q) = %v, want ok=%v", tt.kind, tt.url, err, tt.ok)
		}
	}
}

func TestValidateURLRejectsForeignHostsProperty(t *testing.T) {
	v := testValidator()
	hosts := []string{"evil.com", "youtube.co", "youtube.com.attacker.net", "spotify.com", "127.0.0.1"}
	tails := []string{"", "/", "/watch?v=abc", "/youtube.com", "/?next=https://youtube.com", "#youtube.com"}
	for _, h := range hosts {
		for _, tail := range tails {
			for _, scheme := range []string{"https", "http"} {
				u := scheme + "://" + h + tail
				if v.ValidateURL(model.SourceYouTube, u) == nil {
					t.Fatalf("accepted %q", u)
				}
			}
		}
	}
}

func TestRejectedErrorMessage(t *testing.T) {
	err := testValidator().ValidateFilename("../../etc/passwd")
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected *RejectedError, got %T", err)
	}
	if rejected.Field != "filename" || !strings.Contains(err.Error(), "../../etc/passwd") {
		t.Fatalf("unexpected rejection: %v", err)
	}
}

func TestValidateUnknownKind(t *testing.T) {
	if err := testValidator().Validate("torrent", "x"); !errors.Is(err, pipeline.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
}

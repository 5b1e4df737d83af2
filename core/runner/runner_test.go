package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

// helperCommand re-executes the test binary as a fake external tool.
func helperCommand(mode string, args ...string) Command {
	return Command{
		Binary: os.Args[0],
		Args:   append([]string{"-test.run=TestHelperProcess", "--", mode}, args...),
		Env:    []string{"GO_WANT_HELPER_PROCESS=1"},
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for len(args) > 0 && args[0] != "--" {
		args = args[1:]
	}
	if len(args) < 2 {
		os.Exit(2)
	}
	switch args[1] {
	case "echo":
		fmt.Println(strings.Join(args[2:], "|"))
		os.Exit(0)
	case "fail":
		for i := 1; i <= 30; i++ {
			fmt.Fprintf(os.Stderr, "line %d\n", i)
		}
		os.Exit(3)
	case "sleep":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
	os.Exit(2)
}

func TestLocalBinaryPassesArgumentVector(t *testing.T) {
	r := NewLocalBinary(10*time.Second, 5)
	res, err := r.Run(context.Background(), helperCommand("echo", "https://youtu.be/x; rm -rf /", "$(id)"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(res.Stdout); got != "https://youtu.be/x; rm -rf /|$(id)" {
		t.Fatalf("stdout = %q", got)
	}
	if res.ExitCode != 0 {
		t.Fatalf("exit code = %d", res.ExitCode)
	}
}

func TestLocalBinaryNonZeroExitCarriesStderrTail(t *testing.T) {
	r := NewLocalBinary(10*time.Second, 5)
	_, err := r.Run(context.Background(), helperCommand("fail"))
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", err)
	}
	if exitErr.ExitCode != 3 {
		t.Fatalf("exit code = %d", exitErr.ExitCode)
	}
	if exitErr.StderrTail != "line 26\nline 27\nline 28\nline 29\nline 30" {
		t.Fatalf("tail = %q", exitErr.StderrTail)
	}
}

func TestLocalBinaryTimeoutKills(t *testing.T) {
	r := NewLocalBinary(200*time.Millisecond, 5)
	start := time.Now()
	_, err := r.Run(context.Background(), helperCommand("sleep"))
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 10*time.Second {
		t.Fatalf("process was not killed promptly: %v", elapsed)
	}
}

func TestLocalBinaryParentCancel(t *testing.T) {
	r := NewLocalBinary(time.Minute, 5)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	_, err := r.Run(ctx, helperCommand("sleep"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestLocalBinaryMissingBinary(t *testing.T) {
	r := NewLocalBinary(time.Second, 5)
	_, err := r.Run(context.Background(), Command{Binary: "/nonexistent/tool"})
	if err == nil {
		t.Fatal("expected start error")
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) || errors.Is(err, ErrTimedOut) {
		t.Fatalf("unexpected error class: %v", err)
	}
}

func TestDisabled(t *testing.T) {
	if _, err := (Disabled{}).Run(context.Background(), Command{Binary: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v", err)
	}
}

func TestTailLines(t *testing.T) {
	tests := []struct {
		text string
		n    int
		want string
	}{
		{"a\nb\nc\n", 2, "b\nc"},
		{"a\r\nb\r\n\r\n", 5, "a\nb"},
		{"", 3, ""},
		{"a\nb", 0, ""},
	}
	for _, tt := range tests {
		if got := TailLines(tt.text, tt.n); got != tt.want {
			t.Errorf("TailLines(%q, %d) = %q, want %q", tt.text, tt.n, got, tt.want)
		}
	}
}

func TestTailBufferKeepsEnd(t *testing.T) {
	b := newTailBuffer(4)
	b.Write([]byte("ab"))
	b.Write([]byte("cdef"))
	if b.String() != "cdef" {
		t.Fatalf("buffer = %q", b.String())
	}
	b.Write([]byte("g"))
	if b.String() != "defg" {
		t.Fatalf("buffer = %q", b.String())
	}
}

package main

import (
	"io"
	"strings"
	"testing"
	"time"

	"tradequest-go/infrastructure/logging"
)

func TestReadLines(t *testing.T) {
	done := make(chan struct{})
	defer close(done)

	lines := readLines(done, strings.NewReader("new\nnext\n"), logging.Discard())

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	if len(got) != 2 || got[0] != "new" || got[1] != "next" {
		t.Errorf("lines = %v, want [new next]", got)
	}
}

func TestReadLines_StopsAfterDone(t *testing.T) {
	pr, pw := io.Pipe()
	done := make(chan struct{})

	lines := readLines(done, pr, logging.Discard())
	close(done)

	go func() {
		_, _ = pw.Write([]byte("next\n"))
		_ = pw.Close()
	}()

	select {
	case line, ok := <-lines:
		if ok {
			t.Errorf("received %q after done, want closed channel", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("reader did not exit after done was closed")
	}
}

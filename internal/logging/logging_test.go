package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestDebugSuppressedWithoutDebugFlag(t *testing.T) {
	var buf bytes.Buffer
	n := &writerNotifier{out: &buf, debug: false}
	n.Debugf("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected no output, got %q", buf.String())
	}
}

func TestDebugEmittedWithDebugFlag(t *testing.T) {
	var buf bytes.Buffer
	n := &writerNotifier{out: &buf, debug: true}
	n.Debugf("visible %d", 1)
	if !strings.Contains(buf.String(), "DEBUG") || !strings.Contains(buf.String(), "visible 1") {
		t.Fatalf("expected debug line, got %q", buf.String())
	}
}

func TestLevelsTagLines(t *testing.T) {
	var buf bytes.Buffer
	n := &writerNotifier{out: &buf, debug: true}
	n.Infof("info")
	n.Warnf("warn")
	n.Errorf("err")
	out := buf.String()
	for _, level := range []string{"INFO", "WARN", "ERROR"} {
		if !strings.Contains(out, level) {
			t.Fatalf("expected %s in output, got %q", level, out)
		}
	}
}

func TestNoOpDiscardsEverything(t *testing.T) {
	var n NoOp
	n.Debugf("x")
	n.Infof("x")
	n.Warnf("x")
	n.Errorf("x")
}

package logger

import (
	"bytes"
	"strings"
	"testing"
)

func newBufferLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(WithOutput(&buf), WithPrefix("[test] "), WithFlags(0)), &buf
}

func TestInfo_AlwaysPrinted(t *testing.T) {
	l, buf := newBufferLogger()
	l.Info("hello %s", "world")
	if got := buf.String(); got != "[test] INFO: hello world\n" {
		t.Errorf("output = %q", got)
	}
}

func TestDebug_RequiresVerbose(t *testing.T) {
	l, buf := newBufferLogger()
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug printed without verbose: %q", buf.String())
	}
	l.SetVerbose(true)
	l.Debug("shown %d", 1)
	if !strings.Contains(buf.String(), "DEBUG: shown 1") {
		t.Errorf("output = %q, want DEBUG line", buf.String())
	}
}

func TestTrace_RequiresLevel(t *testing.T) {
	l, buf := newBufferLogger()
	l.SetVerbose(true)
	l.Trace("hidden")
	if buf.Len() != 0 {
		t.Fatalf("trace printed at debug level: %q", buf.String())
	}
	l.SetLevel(LevelTrace)
	l.Trace("shown")
	if !strings.Contains(buf.String(), "TRACE: shown") {
		t.Errorf("output = %q, want TRACE line", buf.String())
	}
}

func TestWarn(t *testing.T) {
	l, buf := newBufferLogger()
	l.Warn("careful")
	if !strings.Contains(buf.String(), "WARN: careful") {
		t.Errorf("output = %q, want WARN line", buf.String())
	}
}

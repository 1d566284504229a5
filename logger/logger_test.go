package logger

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestLoggerFunctions(t *testing.T) {
	Init("invalid") // should default to info
	if log == nil {
		t.Fatal("log not initialized")
	}
	if Level() != logrus.InfoLevel {
		t.Fatalf("expected info level, got %v", Level())
	}
	// Avoid os.Exit on Fatal
	log.ExitFunc = func(int) {}
	var buf bytes.Buffer
	SetOutput(&buf)

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
	Debugf("%s", "debugf")
	Infof("%s", "infof")
	Warnf("%s", "warnf")
	Errorf("%s", "errorf")
	Fatal("fatal")
	Fatalf("%s", "fatalf")

	out := buf.String()
	if strings.Contains(out, "debugf") {
		t.Fatal("debug output written at info level")
	}
	for _, want := range []string{"infof", "warnf", "errorf", "fatalf"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in output", want)
		}
	}
}

func TestWithFieldsJSON(t *testing.T) {
	Init("debug")
	if !IsDebug() {
		t.Fatal("expected debug enabled")
	}
	var buf bytes.Buffer
	SetOutput(&buf)
	SetJSON()
	WithFields(logrus.Fields{"file": "a.jpg", "malicious": false}).Info("detected")
	if !strings.Contains(buf.String(), `"file":"a.jpg"`) {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	Init("error")
}

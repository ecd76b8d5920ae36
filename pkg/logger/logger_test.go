package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestPrintfForwardsLevelsAndComponent(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	l := New(base, "badger")

	l.Errorf("compaction failed: %d", 3)
	l.Warningf("slow %s", "write")
	l.Infof("opened")
	l.Debugf("gc %v", true)

	out := buf.String()
	for _, want := range []string{"level=ERROR", "compaction failed: 3", "level=WARN", "slow write", "level=INFO", "level=DEBUG", "gc true", "component=badger"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

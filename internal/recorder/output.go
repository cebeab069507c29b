package recorder

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"

	"screencap/internal/logging"
)

const outputTailLines = 5

// lineLogger forwards each complete line written by the encoder to the logger
// and remembers the last few for error reports.
type lineLogger struct {
	mu     sync.Mutex
	logger *slog.Logger
	buf    bytes.Buffer
	tail   []string
}

func newLineLogger(logger *slog.Logger) *lineLogger {
	return &lineLogger{logger: logger}
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(p)
	for {
		idx := bytes.IndexByte(l.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(l.buf.Next(idx + 1))
		l.emit(line)
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (l *lineLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() > 0 {
		l.emit(l.buf.String())
		l.buf.Reset()
	}
}

// Tail returns the last lines seen, joined by "; ".
func (l *lineLogger) Tail() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.tail, "; ")
}

func (l *lineLogger) emit(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	l.tail = append(l.tail, line)
	if len(l.tail) > outputTailLines {
		l.tail = l.tail[len(l.tail)-outputTailLines:]
	}
	l.logger.Warn("encoder output",
		logging.String(logging.FieldEventType, "encoder_output"),
		logging.String("line", line),
	)
}

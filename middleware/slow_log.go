package middleware

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shrek82/jdb/core"
	"github.com/shrek82/jdb/logger"
)

// SlowLogMiddleware logs calls that take longer than the specified threshold.
type SlowLogMiddleware struct {
	Threshold time.Duration
	LogPath   string
	logger    logger.Logger
	file      *os.File
}

// NewSlowLog creates a new SlowLogMiddleware.
// threshold: calls taking longer than this will be logged.
// logPath: path to the log file. If empty, the DB logger is used.
func NewSlowLog(threshold time.Duration, logPath string) *SlowLogMiddleware {
	return &SlowLogMiddleware{
		Threshold: threshold,
		LogPath:   logPath,
	}
}

// SetOutput sets the output destination for the logger.
// This is useful for testing or custom logging.
func (m *SlowLogMiddleware) SetOutput(w io.Writer) {
	m.logger = newSlowLogger(w)
}

func newSlowLogger(w io.Writer) logger.Logger {
	l := logger.NewStdLogger()
	l.SetLevel(logger.LogLevelWarn)
	l.SetOutput(w)
	return l
}

func (m *SlowLogMiddleware) Name() string {
	return "SlowLog"
}

func (m *SlowLogMiddleware) Init(db *core.DB) error {
	// If logger is already set (e.g. by SetOutput), don't overwrite it
	if m.logger != nil {
		return nil
	}

	if m.LogPath != "" {
		f, err := os.OpenFile(m.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("failed to open slow log file: %w", err)
		}
		m.file = f
		m.logger = newSlowLogger(f)
	} else {
		m.logger = db.Logger()
	}
	return nil
}

func (m *SlowLogMiddleware) Shutdown() error {
	if m.file != nil {
		f := m.file
		m.file = nil
		return f.Close()
	}
	return nil
}

func (m *SlowLogMiddleware) Process(ctx context.Context, call *core.Call, next core.CallFunc) (*core.Result, error) {
	start := time.Now()
	res, err := next(ctx, call)
	duration := time.Since(start)

	if duration > m.Threshold {
		var rows, affected int64
		if res != nil {
			rows, affected = int64(len(res.Rows)), res.RowsAffected
		}
		m.logger.Warn("[SLOW SQL] duration=%v | op=%s | sql=%s | args=%v | rows=%d | affected=%d | err=%v",
			duration, call.Op, call.SQL, call.Args, rows, affected, err)
	}

	return res, err
}

package logger

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/ohmynofan/qlyuker-tapper-bot/internal/domain/model"
	"github.com/ohmynofan/qlyuker-tapper-bot/internal/platform/ui"
	"github.com/ohmynofan/qlyuker-tapper-bot/pkg/utils"
)

var (
	fileLogger *log.Logger
	once       sync.Once
	logFile    *os.File
)

func Init(path string) error {
	var err error
	once.Do(func() {
		os.Remove(path)
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return
		}
		logFile, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return
		}
		fileLogger = log.New(logFile, "", log.Ldate|log.Ltime|log.Lmicroseconds)
	})
	return err
}

func Close() error {
	if logFile != nil {
		return logFile.Close()
	}
	return nil
}

// ClassLogger tags every line with the account it belongs to and mirrors the
// latest message into that account's dashboard panel.
type ClassLogger struct {
	class   string
	session *model.Session
}

func NewNamed(name string, session *model.Session) *ClassLogger {
	return &ClassLogger{class: name, session: session}
}

// Log writes the message to the log file and shows it on the account panel.
func (l *ClassLogger) Log(msg string) {
	l.write(msg)
	if l.session != nil {
		ui.UpdateStatus(l.session.Snapshot(), shortenForDisplay(msg), 0)
	}
}

// Countdown shows msg on the account panel with a ticking delay and sleeps
// for the given duration, honoring cancellation.
func (l *ClassLogger) Countdown(ctx context.Context, msg string, d time.Duration) error {
	l.write(fmt.Sprintf("%s (waiting %s)", msg, d.Round(time.Second)))
	if l.session == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(d):
			return nil
		}
	}

	displayMsg := shortenForDisplay(msg)
	interval := time.Second
	for remaining := d; remaining > 0; remaining -= interval {
		ui.UpdateStatus(l.session.Snapshot(), displayMsg, remaining)
		sleepTime := interval
		if remaining < interval {
			sleepTime = remaining
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleepTime):
		}
	}
	ui.UpdateStatus(l.session.Snapshot(), displayMsg, 0)
	return nil
}

// JustLog writes to the log file without touching the dashboard.
func (l *ClassLogger) JustLog(msg string) {
	l.write(msg)
}

func (l *ClassLogger) LogObject(msg string, obj interface{}) {
	if fileLogger == nil {
		return
	}
	formatted, err := utils.FormatObject(obj)
	if err != nil {
		l.JustLog(fmt.Sprintf("Error formatting object: %v", err))
		return
	}
	l.JustLog(fmt.Sprintf("%s : \n%v", msg, formatted))
}

func (l *ClassLogger) write(msg string) {
	if fileLogger == nil {
		return
	}
	fileLogger.Printf("[%s][%s] %s", l.class, callerFunc(3), msg)
}

func callerFunc(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return "unknown"
	}
	parts := strings.Split(fn.Name(), ".")
	return parts[len(parts)-1]
}

func shortenForDisplay(msg string) string {
	const maxLen = 140
	runes := []rune(msg)
	if len(runes) <= maxLen {
		return msg
	}
	return string(runes[:maxLen-1]) + "…"
}

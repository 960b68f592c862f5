package clog

import (
	"context"
	"log/slog"

	"connectrpc.com/connect"
)

type Level int

const (
	LevelDebug Level = iota + 1
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) Slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Log writes msg at l using the default logger.
func (l Level) Log(ctx context.Context, msg string) {
	slog.Log(ctx, l.Slog(), msg)
}

func HTTPStatusToLevel(status int) Level {
	switch {
	case status == 499:
		return LevelInfo
	case status >= 100 && status < 400:
		return LevelInfo
	case status >= 400 && status < 500:
		return LevelWarn
	default:
		return LevelError
	}
}

var connectCodeLevels = map[connect.Code]Level{
	connect.CodeCanceled:           LevelInfo,
	connect.CodeInvalidArgument:    LevelInfo,
	connect.CodeDeadlineExceeded:   LevelInfo,
	connect.CodeNotFound:           LevelInfo,
	connect.CodeAlreadyExists:      LevelInfo,
	connect.CodePermissionDenied:   LevelInfo,
	connect.CodeFailedPrecondition: LevelInfo,
	connect.CodeAborted:            LevelInfo,
	connect.CodeOutOfRange:         LevelInfo,
	connect.CodeUnauthenticated:    LevelInfo,
}

// ConnectCodeToLevel reports the log level for a connect code. Codes that
// point at a server-side fault log at error.
func ConnectCodeToLevel(code connect.Code) Level {
	if l, ok := connectCodeLevels[code]; ok {
		return l
	}
	return LevelError
}

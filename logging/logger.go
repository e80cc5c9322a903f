package logging

import "context"

// Logger is the logger handed to the drivers, the config reader and the CLI.
type Logger interface {
	SetLevel(level Level)
	Sublogger(subname string) Logger
	AddAppender(appender Appender)
	// Sync flushes every appender.
	Sync() error

	Debug(args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	// Fatal logs at error level and exits the process.
	Fatal(args ...interface{})

	// The C variants also log when ctx has debug mode enabled, regardless of the level.
	CDebug(ctx context.Context, args ...interface{})
	CDebugf(ctx context.Context, template string, args ...interface{})
	CDebugw(ctx context.Context, msg string, keysAndValues ...interface{})
	CInfof(ctx context.Context, template string, args ...interface{})
	CInfow(ctx context.Context, msg string, keysAndValues ...interface{})
	CWarnw(ctx context.Context, msg string, keysAndValues ...interface{})
	CErrorw(ctx context.Context, msg string, keysAndValues ...interface{})
}

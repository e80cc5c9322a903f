package logging

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	appenders []Appender
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return &impl{
		name:      name,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
	}
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

// enabled reports whether an entry at level gets written. A debug global level or a debug
// context lets everything through.
func (imp *impl) enabled(ctx context.Context, level Level) bool {
	if GlobalLogLevel.Level() == zapcore.DebugLevel {
		return true
	}
	if IsDebugMode(ctx) {
		return true
	}
	return level >= imp.level.Get()
}

// print, printf and printw are the only paths into entry so that the caller depth is fixed.
func (imp *impl) print(ctx context.Context, level Level, args ...interface{}) {
	if imp.enabled(ctx, level) {
		imp.write(imp.entry(level, fmt.Sprint(args...), nil))
	}
}

func (imp *impl) printf(ctx context.Context, level Level, template string, args ...interface{}) {
	if imp.enabled(ctx, level) {
		imp.write(imp.entry(level, fmt.Sprintf(template, args...), nil))
	}
}

func (imp *impl) printw(ctx context.Context, level Level, msg string, keysAndValues ...interface{}) {
	if imp.enabled(ctx, level) {
		imp.write(imp.entry(level, msg, keysAndValues))
	}
}

// entry builds a zap entry. Key/value pairs become zap.Any fields; a trailing key without a value
// gets an error value instead of being dropped.
func (imp *impl) entry(level Level, msg string, keysAndValues []interface{}) (zapcore.Entry, []zapcore.Field) {
	now := time.Now()
	if imp.inUTC {
		now = now.UTC()
	}
	ent := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       now,
		LoggerName: imp.name,
		Message:    msg,
		Caller:     getCaller(),
	}

	var fields []zapcore.Field
	if len(keysAndValues) > 0 {
		fields = make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	}
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errors.New("unpaired log key")))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return ent, fields
}

func (imp *impl) write(ent zapcore.Entry, fields []zapcore.Field) {
	for _, appender := range imp.appenders {
		if err := appender.Write(ent, fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (imp *impl) Debug(args ...interface{}) { imp.print(context.Background(), DEBUG, args...) }

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	imp.printw(context.Background(), DEBUG, msg, keysAndValues...)
}

func (imp *impl) Info(args ...interface{}) { imp.print(context.Background(), INFO, args...) }

func (imp *impl) Infof(template string, args ...interface{}) {
	imp.printf(context.Background(), INFO, template, args...)
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	imp.printw(context.Background(), INFO, msg, keysAndValues...)
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	imp.printf(context.Background(), WARN, template, args...)
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	imp.printw(context.Background(), WARN, msg, keysAndValues...)
}

func (imp *impl) Error(args ...interface{}) { imp.print(context.Background(), ERROR, args...) }

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	imp.printw(context.Background(), ERROR, msg, keysAndValues...)
}

func (imp *impl) Fatal(args ...interface{}) {
	imp.print(context.Background(), ERROR, args...)
	_ = imp.Sync()
	os.Exit(1)
}

func (imp *impl) CDebug(ctx context.Context, args ...interface{}) {
	imp.print(ctx, DEBUG, args...)
}

func (imp *impl) CDebugf(ctx context.Context, template string, args ...interface{}) {
	imp.printf(ctx, DEBUG, template, args...)
}

func (imp *impl) CDebugw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.printw(ctx, DEBUG, msg, keysAndValues...)
}

func (imp *impl) CInfof(ctx context.Context, template string, args ...interface{}) {
	imp.printf(ctx, INFO, template, args...)
}

func (imp *impl) CInfow(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.printw(ctx, INFO, msg, keysAndValues...)
}

func (imp *impl) CWarnw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.printw(ctx, WARN, msg, keysAndValues...)
}

func (imp *impl) CErrorw(ctx context.Context, msg string, keysAndValues ...interface{}) {
	imp.printw(ctx, ERROR, msg, keysAndValues...)
}

// getCaller returns the file and line of the code that called the Logger method. The stack is
// getCaller, entry, print*, the Logger method, then the caller.
func getCaller() zapcore.EntryCaller {
	const skipToLogCaller = 4
	pc, file, line, ok := runtime.Caller(skipToLogCaller)
	if !ok {
		return zapcore.EntryCaller{}
	}
	caller := zapcore.EntryCaller{Defined: true, PC: pc, File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		caller.Function = fn.Name()
	}
	return caller
}

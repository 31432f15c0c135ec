package log

import (
	"context"
	"log/slog"
	"os"
)

// Logger is a slog.Logger that stamps every record with the component that
// wrote it.
type Logger struct {
	*slog.Logger
	component string
}

type Config struct {
	Level     slog.Level
	Component string
	// Handler overrides the default stdout text handler; Level is then
	// the handler's business.
	Handler slog.Handler
}

// DefaultConfig returns a text handler on stdout at the given level.
func DefaultConfig(level slog.Level) Config {
	return Config{Level: level, Component: ComponentApp}
}

func New(config Config) *Logger {
	handler := config.Handler
	if handler == nil {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.Level})
	}
	return &Logger{Logger: slog.New(handler), component: config.Component}
}

// ForComponent returns a component logger over the process default handler.
func ForComponent(component string) *Logger {
	return &Logger{Logger: slog.Default(), component: component}
}

// SetDefault installs logger as the slog default so ForComponent picks it up.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

func (l *Logger) Component() string {
	return l.component
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...), component: l.component}
}

func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{Logger: l.Logger, component: component}
}

// Log writes one record at level. All the level helpers below go through it.
func (l *Logger) Log(ctx context.Context, level slog.Level, msg string, args ...any) {
	l.Logger.Log(ctx, level, msg, append([]any{FieldComponent, l.component}, args...)...)
}

func (l *Logger) Debug(msg string, args ...any) { l.Log(context.Background(), slog.LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.Log(context.Background(), slog.LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.Log(context.Background(), slog.LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.Log(context.Background(), slog.LevelError, msg, args...) }

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, slog.LevelDebug, msg, args...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, slog.LevelInfo, msg, args...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, slog.LevelWarn, msg, args...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, slog.LevelError, msg, args...)
}

// Failure logs a failed remote or storage operation with its scope.
func (l *Logger) Failure(ctx context.Context, msg string, err error, op, projectID string, args ...any) {
	fields := NewFields().WithError(err).WithOperation(op).WithErrorType(ErrorType(err))
	if projectID != "" {
		fields.WithProject(projectID)
	}
	l.ErrorContext(ctx, msg, append(fields.ToSlice(), args...)...)
}

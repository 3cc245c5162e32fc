package farmbrief

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm/logger"
)

const loggerNameKey = "logger"

var defaultLogWriter io.Writer = os.Stdout

var discordGoLogLevels = map[int]slog.Level{
	discordgo.LogDebug:         slog.LevelDebug,
	discordgo.LogError:         slog.LevelError,
	discordgo.LogWarning:       slog.LevelWarn,
	discordgo.LogInformational: slog.LevelInfo,
}

// newTintLogger creates a named slog.Logger backed by a tint handler.
func newTintLogger(level slog.Leveler, name string) *slog.Logger {
	return slog.New(
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     level,
				AddSource: true,
			},
		),
	).With(loggerNameKey, name)
}

// discordgoLoggerFunc adapts discordgo's printf-style logging callback to slog.
func discordgoLoggerFunc(ctx context.Context, handler slog.Handler) func(
	msgL int,
	caller int,
	format string,
	args ...any,
) {
	log := slog.New(handler)
	return func(
		msgL int,
		_ int,
		format string,
		args ...any,
	) {
		level, ok := discordGoLogLevels[msgL]
		if !ok {
			level = slog.LevelInfo
		}
		log.LogAttrs(
			ctx,
			level,
			strings.ReplaceAll(fmt.Sprintf(format, args...), "\n", ""),
		)
	}
}

// gormStructuredLogger adapts slog to gorm's logger.Interface.
type gormStructuredLogger struct {
	logger        *slog.Logger
	slowThreshold time.Duration
}

func newGormStructuredLogger(
	log *slog.Logger,
	slowThreshold time.Duration,
) *gormStructuredLogger {
	return &gormStructuredLogger{logger: log, slowThreshold: slowThreshold}
}

func (g *gormStructuredLogger) LogMode(logger.LogLevel) logger.Interface {
	return g
}

func (g *gormStructuredLogger) Info(
	ctx context.Context,
	msg string,
	args ...any,
) {
	g.logger.InfoContext(ctx, fmt.Sprintf(msg, args...))
}

func (g *gormStructuredLogger) Warn(
	ctx context.Context,
	msg string,
	args ...any,
) {
	g.logger.WarnContext(ctx, fmt.Sprintf(msg, args...))
}

func (g *gormStructuredLogger) Error(
	ctx context.Context,
	msg string,
	args ...any,
) {
	g.logger.ErrorContext(ctx, fmt.Sprintf(msg, args...))
}

func (g *gormStructuredLogger) Trace(
	ctx context.Context,
	begin time.Time,
	fc func() (sql string, rowsAffected int64),
	err error,
) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	switch {
	case err != nil:
		g.logger.ErrorContext(
			ctx,
			"query error",
			tint.Err(err),
			"sql", sql,
			"rows", rows,
			"elapsed", elapsed,
		)
	case g.slowThreshold > 0 && elapsed > g.slowThreshold:
		g.logger.WarnContext(
			ctx,
			"slow query",
			"sql", sql,
			"rows", rows,
			"elapsed", elapsed,
			"slow_threshold", g.slowThreshold,
		)
	default:
		g.logger.DebugContext(
			ctx,
			"query",
			"sql", sql,
			"rows", rows,
			"elapsed", elapsed,
		)
	}
}

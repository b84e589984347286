package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/database64128/sctptx-go/cfgfile"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Repeated console messages are sampled per level and message: in each sampleTick,
// the first sampleFirst are written, then every sampleThereafter-th.
const (
	sampleTick       = time.Second
	sampleFirst      = 100
	sampleThereafter = 100
)

// NewZapLogger returns a new [*zap.Logger] with the given preset and log level.
//
// The available presets are:
//
//   - "console" (default): Reasonable defaults for production console environments.
//   - "console-nocolor": Same as "console", but without color.
//   - "console-notime": Same as "console", but without timestamps.
//   - "systemd": Reasonable defaults for running as a systemd service. Same as "console", but without color and timestamps.
//   - "production": Zap's built-in production preset.
//   - "development": Zap's built-in development preset.
//
// The console and systemd presets sample repeated messages unless level is debug.
//
// If the preset is not recognized, it is treated as a path to a JSON or TOML configuration file.
//
// The log level does not apply to the "production", "development", or custom presets.
func NewZapLogger(preset string, level zapcore.Level) (*zap.Logger, error) {
	if opts, ok := consolePreset(preset, level); ok {
		return NewConsoleZapLogger(opts), nil
	}

	var cfg zap.Config
	switch preset {
	case "production":
		cfg = zap.NewProductionConfig()
	case "development":
		cfg = zap.NewDevelopmentConfig()
	default:
		if err := cfgfile.Open(preset, &cfg); err != nil {
			return nil, fmt.Errorf("failed to load zap logger config from file %q: %w", preset, err)
		}
	}
	return cfg.Build()
}

// consolePreset returns the options of a console or systemd preset.
func consolePreset(preset string, level zapcore.Level) (opts ConsoleOptions, ok bool) {
	opts = ConsoleOptions{
		Level:  level,
		Sample: level > zapcore.DebugLevel,
	}
	switch preset {
	case "console":
	case "console-nocolor":
		opts.NoColor = true
	case "console-notime":
		opts.NoTime = true
	case "systemd":
		opts.NoColor, opts.NoTime = true, true
	default:
		return ConsoleOptions{}, false
	}
	return opts, true
}

// ConsoleOptions configures [NewConsoleZapLogger].
type ConsoleOptions struct {
	Level     zapcore.Level
	NoColor   bool
	NoTime    bool
	AddCaller bool

	// Sample enables sampling of repeated messages.
	Sample bool
}

// NewConsoleZapLogger returns a [*zap.Logger] that writes to stderr.
//
// See [NewProductionConsoleEncoderConfig] for information on the encoder configuration.
func NewConsoleZapLogger(opts ConsoleOptions) *zap.Logger {
	var clock zapcore.Clock = zapcore.DefaultClock
	// The sampler buckets entries by their time, so it needs the real clock.
	if opts.NoTime && !opts.Sample {
		clock = fakeClock{}
	}
	return newConsoleZapLogger(zapcore.Lock(os.Stderr), clock, opts)
}

func newConsoleZapLogger(w zapcore.WriteSyncer, clock zapcore.Clock, opts ConsoleOptions) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(NewProductionConsoleEncoderConfig(opts.NoColor, opts.NoTime))
	core := zapcore.NewCore(enc, w, opts.Level)
	if opts.Sample {
		core = zapcore.NewSamplerWithOptions(core, sampleTick, sampleFirst, sampleThereafter)
	}
	zopts := []zap.Option{zap.WithClock(clock)}
	if opts.AddCaller {
		zopts = append(zopts, zap.AddCaller())
	}
	return zap.New(core, zopts...)
}

// NewProductionConsoleEncoderConfig returns an opinionated [zapcore.EncoderConfig] for production console environments.
func NewProductionConsoleEncoderConfig(noColor, noTime bool) zapcore.EncoderConfig {
	ec := zapcore.EncoderConfig{
		TimeKey:          "T",
		LevelKey:         "L",
		NameKey:          "N",
		CallerKey:        "C",
		FunctionKey:      zapcore.OmitKey,
		MessageKey:       "M",
		StacktraceKey:    "S",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      zapcore.CapitalColorLevelEncoder,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		ConsoleSeparator: " ",
	}

	if noColor {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	if noTime {
		ec.TimeKey = zapcore.OmitKey
		ec.EncodeTime = nil
	}

	return ec
}

// fakeClock is a fake clock that always returns the zero-value time.
//
// fakeClock implements [zapcore.Clock].
type fakeClock struct{}

// Now implements [zapcore.Clock.Now].
func (fakeClock) Now() time.Time {
	return time.Time{}
}

// NewTicker implements [zapcore.Clock.NewTicker].
func (fakeClock) NewTicker(d time.Duration) *time.Ticker {
	return time.NewTicker(d)
}

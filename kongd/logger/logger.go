// Package logger provides per-subsystem leveled loggers, grounded on
// daglabs-btcd/logger's subsystem-tag map (ADXR, AMGR, BTCD, MINR, RPCS...)
// but backed by go.uber.org/zap instead of the teacher's hand-rolled logs
// backend, and writing through a jrick/logrotate rotator the same way the
// teacher's logWriter does.
package logger

import (
	"os"
	"sort"

	"github.com/jrick/logrotate/rotator"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SubsystemTags names every subsystem that owns a logger in this repo.
var SubsystemTags = struct {
	SWAP, LIQD, MRKT, MINR, JRNL, RPCS, KOND, POOL string
}{
	SWAP: "SWAP",
	LIQD: "LIQD",
	MRKT: "MRKT",
	MINR: "MINR",
	JRNL: "JRNL",
	RPCS: "RPCS",
	KOND: "KOND",
	POOL: "POOL",
}

var (
	logRotator      *rotator.Rotator
	atomicLevels    = map[string]zap.AtomicLevel{}
	subsystemLogger = map[string]*zap.SugaredLogger{}
	initiated       bool
)

// rotatorWriteSyncer adapts a *rotator.Rotator to zapcore.WriteSyncer.
type rotatorWriteSyncer struct{ r *rotator.Rotator }

func (w rotatorWriteSyncer) Write(p []byte) (int, error) { return w.r.Write(p) }
func (w rotatorWriteSyncer) Sync() error                 { return nil }

// Init wires up the subsystem loggers. It must be called once during
// process startup (grounded on the teacher's InitLogRotators) before any
// subsystem logger is fetched via Get.
func Init(logFile string) error {
	r, err := rotator.New(logFile, 10*1024, false, 3)
	if err != nil {
		return err
	}
	logRotator = r
	initiated = true

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoder := zapcore.NewJSONEncoder(encoderCfg)

	stdoutSync := zapcore.AddSync(os.Stdout)
	fileSync := rotatorWriteSyncer{r: logRotator}

	for _, tag := range []string{
		SubsystemTags.SWAP, SubsystemTags.LIQD, SubsystemTags.MRKT,
		SubsystemTags.MINR, SubsystemTags.JRNL, SubsystemTags.RPCS, SubsystemTags.KOND,
		SubsystemTags.POOL,
	} {
		level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
		core := zapcore.NewTee(
			zapcore.NewCore(encoder, stdoutSync, level),
			zapcore.NewCore(encoder, fileSync, level),
		)
		atomicLevels[tag] = level
		subsystemLogger[tag] = zap.New(core).Sugar().With("subsystem", tag)
	}
	return nil
}

// Get returns the logger for a subsystem tag, falling back to a disabled
// no-op logger if Init has not been called (so packages can hold a package
// level logger var without requiring import-order tricks, matching the
// teacher's "loggers can not be used before the rotator has been
// initialized" caveat — here we simply no-op instead of nil-panicking).
func Get(tag string) *zap.SugaredLogger {
	if !initiated {
		return zap.NewNop().Sugar()
	}
	if l, ok := subsystemLogger[tag]; ok {
		return l
	}
	return zap.NewNop().Sugar()
}

// SetLogLevel sets the level for one subsystem. Invalid subsystems are
// ignored, invalid levels default to info — matching the teacher's
// validLogLevel fallback behavior.
func SetLogLevel(tag, levelStr string) {
	al, ok := atomicLevels[tag]
	if !ok {
		return
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(levelStr)); err != nil {
		lvl = zapcore.InfoLevel
	}
	al.SetLevel(lvl)
}

// SetLogLevels sets every subsystem to the same level.
func SetLogLevels(levelStr string) {
	for tag := range atomicLevels {
		SetLogLevel(tag, levelStr)
	}
}

// SupportedSubsystems returns a sorted list of all subsystem tags.
func SupportedSubsystems() []string {
	tags := make([]string, 0, len(atomicLevels))
	for tag := range atomicLevels {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

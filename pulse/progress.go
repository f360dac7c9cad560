// Package pulse holds the background-job infrastructure shared by the
// scheduler (pulse/async), the daily recurrence (pulse/schedule) and the
// provider quota limiter (pulse/budget).
package pulse

import (
	"go.uber.org/zap"
)

// ProgressEmitter receives progress updates from a running job.
// It carries no domain methods; jobs pass domain detail as metadata maps.
type ProgressEmitter interface {
	// EmitStage announces the start of a processing stage
	EmitStage(stage string, message string)

	// EmitProgress reports overall completion in [0, 1] with optional metadata
	EmitProgress(fraction float64, metadata map[string]interface{})

	// EmitComplete announces successful completion with a summary
	EmitComplete(summary map[string]interface{})

	// EmitError announces a failure during a stage
	EmitError(stage string, err error)

	// EmitInfo emits a general informational message
	EmitInfo(message string)
}

// NopEmitter discards every update
type NopEmitter struct{}

func (NopEmitter) EmitStage(string, string) {}
func (NopEmitter) EmitProgress(float64, map[string]interface{}) {}
func (NopEmitter) EmitComplete(map[string]interface{}) {}
func (NopEmitter) EmitError(string, error) {}
func (NopEmitter) EmitInfo(string) {}

// LogEmitter writes updates to a structured logger.
// Progress is logged at most once per whole percent to keep job logs short.
type LogEmitter struct {
	log         *zap.SugaredLogger
	lastPercent int
}

// NewLogEmitter creates an emitter that logs through log
func NewLogEmitter(log *zap.SugaredLogger) *LogEmitter {
	return &LogEmitter{log: log, lastPercent: -1}
}

func (e *LogEmitter) EmitStage(stage, message string) {
	e.log.Infow(message, "stage", stage)
}

func (e *LogEmitter) EmitProgress(fraction float64, metadata map[string]interface{}) {
	percent := int(fraction * 100)
	if percent == e.lastPercent {
		return
	}
	e.lastPercent = percent

	fields := []interface{}{"progress", fraction}
	for k, v := range metadata {
		fields = append(fields, k, v)
	}
	e.log.Debugw("Job progress", fields...)
}

func (e *LogEmitter) EmitComplete(summary map[string]interface{}) {
	fields := make([]interface{}, 0, len(summary)*2)
	for k, v := range summary {
		fields = append(fields, k, v)
	}
	e.log.Infow("Job complete", fields...)
}

func (e *LogEmitter) EmitError(stage string, err error) {
	e.log.Warnw("Job stage failed", "stage", stage, "error", err)
}

func (e *LogEmitter) EmitInfo(message string) {
	e.log.Infow(message)
}

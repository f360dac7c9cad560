package pulse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogEmitterDeduplicatesProgress(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	emitter := NewLogEmitter(zap.New(core).Sugar())

	emitter.EmitProgress(0.101, nil)
	emitter.EmitProgress(0.105, nil)
	emitter.EmitProgress(0.2, map[string]interface{}{"points": 20})

	progress := logs.FilterMessage("Job progress").All()
	require.Len(t, progress, 2)
	assert.EqualValues(t, 20, progress[1].ContextMap()["points"])
}

func TestLogEmitterStagesAndCompletion(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	emitter := NewLogEmitter(zap.New(core).Sugar())

	emitter.EmitStage("scan", "Scanning points")
	emitter.EmitComplete(map[string]interface{}{"days": 3})

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "scan", entries[0].ContextMap()["stage"])
	assert.EqualValues(t, 3, entries[1].ContextMap()["days"])
}

func TestFormatSummarySortsKeys(t *testing.T) {
	out := formatSummary(map[string]interface{}{"rows": 4, "days": 2})
	assert.Equal(t, "  days: 2\n  rows: 4", out)
}

func TestNopEmitterSatisfiesInterface(t *testing.T) {
	var e ProgressEmitter = NopEmitter{}
	assert.NotPanics(t, func() {
		e.EmitStage("s", "m")
		e.EmitProgress(1, nil)
		e.EmitComplete(nil)
		e.EmitError("s", nil)
		e.EmitInfo("i")
	})
	var _ ProgressEmitter = NewCLIEmitter("x")
}

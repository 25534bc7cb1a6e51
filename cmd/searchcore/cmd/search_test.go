package cmd

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickcart/searchcore/internal/ui"
	"github.com/quickcart/searchcore/internal/worker"
)

func TestTelemetryDuration_MarshalsMilliseconds(t *testing.T) {
	b, err := json.Marshal(telemetryDuration(1500 * time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, "1500", string(b))
}

func TestProgressToEvent_MapsVectorStage(t *testing.T) {
	ev := progressToEvent(worker.Progress{Done: 10, Total: 100, Message: "indexed 10/100 products"}, 100)

	assert.Equal(t, ui.StageVector, ev.Stage)
	assert.Equal(t, 10, ev.Current)
	assert.Equal(t, 100, ev.Total)
	assert.Equal(t, "indexed 10/100 products", ev.Message)
}

func TestProgressToEvent_FinalTickMapsToSaving(t *testing.T) {
	ev := progressToEvent(worker.Progress{Done: 100, Total: 100}, 100)

	assert.Equal(t, ui.StageSaving, ev.Stage)
}

func TestProgressToEvent_ZeroTotalFallsBackToCatalogSize(t *testing.T) {
	ev := progressToEvent(worker.Progress{Done: 0, Total: 0}, 250)

	assert.Equal(t, ui.StageVector, ev.Stage)
	assert.Equal(t, 250, ev.Total)
}

func TestSnapshotGeneration_StableForSameSnapshot(t *testing.T) {
	snap := testSnapshot(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	assert.Equal(t, snapshotGeneration(snap), snapshotGeneration(snap))
}

func TestSnapshotGeneration_ChangesWithCreatedAt(t *testing.T) {
	a := testSnapshot(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	b := testSnapshot(time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC))

	assert.NotEqual(t, snapshotGeneration(a), snapshotGeneration(b))
}

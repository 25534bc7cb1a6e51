package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleStatus() StatusInfo {
	return StatusInfo{
		CatalogName:   "quickcart",
		TotalProducts: 8200,
		Categories:    18,
		Brands:        340,
		LastIndexed:   time.Now().Add(-2 * time.Hour),
		SnapshotSize:  4 * 1024 * 1024,
		VectorSize:    12 * 1024 * 1024,
		MetricsSize:   256 * 1024,
		TotalSize:     16*1024*1024 + 256*1024,
		ModelName:     "minilm-l6",
		Dimensions:    384,
		WorkerStatus:  "ready",
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	require.NoError(t, r.Render(sampleStatus()))

	out := buf.String()
	assert.Contains(t, out, "Catalog Status: quickcart")
	assert.Contains(t, out, "Products:     8200")
	assert.Contains(t, out, "Categories:   18")
	assert.Contains(t, out, "Brands:       340")
	assert.Contains(t, out, "2 hours ago")
	assert.Contains(t, out, "Snapshot: 4.0 MB")
	assert.Contains(t, out, "Vectors:  12.0 MB")
	assert.Contains(t, out, "Status: ready")
	assert.Contains(t, out, "Model:  minilm-l6 (384 dims)")
}

func TestStatusRenderer_OmitsEmptySections(t *testing.T) {
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	require.NoError(t, r.Render(StatusInfo{
		CatalogName:  "quickcart",
		WorkerStatus: "stopped",
	}))

	out := buf.String()
	assert.NotContains(t, out, "Brands:")
	assert.NotContains(t, out, "Last indexed:")
	assert.NotContains(t, out, "Metrics:")
	assert.NotContains(t, out, "Model:")
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	var buf bytes.Buffer
	r := NewStatusRenderer(&buf, true)

	require.NoError(t, r.RenderJSON(sampleStatus()))

	var decoded StatusInfo
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "quickcart", decoded.CatalogName)
	assert.Equal(t, 8200, decoded.TotalProducts)
	assert.Equal(t, "ready", decoded.WorkerStatus)
}

func TestFormatTime(t *testing.T) {
	now := time.Now()
	assert.Equal(t, "just now", formatTime(now.Add(-10*time.Second)))
	assert.Equal(t, "1 minute ago", formatTime(now.Add(-70*time.Second)))
	assert.Equal(t, "5 minutes ago", formatTime(now.Add(-5*time.Minute)))
	assert.Equal(t, "1 hour ago", formatTime(now.Add(-90*time.Minute)))
	assert.Equal(t, "3 days ago", formatTime(now.Add(-72*time.Hour)))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.0 KB", FormatBytes(1024))
	assert.Equal(t, "2.5 MB", FormatBytes(2*1024*1024+512*1024))
	assert.Equal(t, "1.0 GB", FormatBytes(1024*1024*1024))
}

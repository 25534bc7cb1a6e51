package ui

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStage_String(t *testing.T) {
	assert.Equal(t, "Fetching", StageFetching.String())
	assert.Equal(t, "Keyword", StageKeyword.String())
	assert.Equal(t, "Vector", StageVector.String())
	assert.Equal(t, "Saving", StageSaving.String())
	assert.Equal(t, "Complete", StageComplete.String())
	assert.Equal(t, "Unknown", Stage(99).String())
}

func TestStage_Icon(t *testing.T) {
	assert.Equal(t, "FETCH", StageFetching.Icon())
	assert.Equal(t, "VECTOR", StageVector.Icon())
	assert.Equal(t, "DONE", StageComplete.Icon())
}

func TestNewConfig_Options(t *testing.T) {
	var buf bytes.Buffer
	cfg := NewConfig(&buf,
		WithForcePlain(true),
		WithNoColor(true),
		WithCatalogName("quickcart"),
	)

	assert.True(t, cfg.ForcePlain)
	assert.True(t, cfg.NoColor)
	assert.Equal(t, "quickcart", cfg.CatalogName)
	assert.Same(t, &buf, cfg.Output.(*bytes.Buffer))
}

func TestNewRenderer_ForcePlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(NewConfig(&buf, WithForcePlain(true)))
	assert.IsType(t, &PlainRenderer{}, r)
}

func TestNewRenderer_NonTTYFallsBackToPlain(t *testing.T) {
	var buf bytes.Buffer
	r := NewRenderer(NewConfig(&buf))
	assert.IsType(t, &PlainRenderer{}, r)
}

func TestIsTTY_NilAndBuffer(t *testing.T) {
	assert.False(t, IsTTY(nil))
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestNewTUIRenderer_RequiresTTY(t *testing.T) {
	var buf bytes.Buffer
	_, err := NewTUIRenderer(NewConfig(&buf))
	assert.Error(t, err)
}

func TestGetStyles_NoColor(t *testing.T) {
	styles := GetStyles(true)
	assert.Equal(t, "plain", styles.Error.Render("plain"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "...uvwxyz", truncate("abcdefghijklmnopqrstuvwxyz", 9))
	assert.Equal(t, "...", truncate("abcdefgh", 3))
	assert.Equal(t, "", truncate("", 5))
}

package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlfRonDon/NeuraReport-sub002/internal/config"
)

func TestParseKeyValues(t *testing.T) {
	kv, err := parseKeyValues([]string{"plant_id=101", "batch_no = A1 "})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"plant_id": "101", "batch_no": "A1"}, kv)

	kv, err = parseKeyValues(nil)
	require.NoError(t, err)
	assert.Nil(t, kv)

	_, err = parseKeyValues([]string{"plant_id"})
	assert.Error(t, err)

	_, err = parseKeyValues([]string{"=101"})
	assert.Error(t, err)
}

func TestTemplateDir(t *testing.T) {
	cfg := &config.ProjectConfig{TemplatesDir: "templates"}

	dir, err := templateDir(cfg, "/proj", "daily")
	require.NoError(t, err)
	assert.Equal(t, "/proj/templates/daily", dir)

	_, err = templateDir(cfg, "/proj", "../escape")
	assert.Error(t, err)

	_, err = templateDir(cfg, "/proj", "")
	assert.Error(t, err)
}

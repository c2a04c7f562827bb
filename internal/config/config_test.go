package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default("plant-1")
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "plant-1", cfg.Site.ID)
	assert.Equal(t, "molding", cfg.Scheduling.Scope)
	assert.Equal(t, 20, cfg.Scheduling.DefaultDays)
	assert.Equal(t, 260, cfg.Scheduling.MaxDays)
	assert.Equal(t, 7, cfg.Scheduling.Priority.UrgentDays)
	assert.Equal(t, 30, cfg.Scheduling.Priority.SoonDays)
	assert.Equal(t, []string{"molding", "finishing", "shipping", "complete"}, cfg.Pipeline.Stages)
	assert.Equal(t, "/v1", cfg.Server.BasePath)
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte(`
site:
  id: east
scheduling:
  default_days: 10
webhooks:
  - url: http://example.test/hook
    events: [schedule.generated]
`))
	require.NoError(t, err)
	assert.Equal(t, "east", cfg.Site.ID)
	assert.Equal(t, 10, cfg.Scheduling.DefaultDays)
	assert.Equal(t, 260, cfg.Scheduling.MaxDays)
	assert.Equal(t, "molding", cfg.Scheduling.Scope)
	require.Len(t, cfg.Webhooks, 1)
	assert.Equal(t, []string{"schedule.generated"}, cfg.Webhooks[0].Events)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"max below default":   "scheduling:\n  default_days: 30\n  max_days: 10\n",
		"bands out of order":  "scheduling:\n  priority:\n    urgent_days: 40\n    soon_days: 30\n",
		"repeated stage":      "pipeline:\n  stages: [molding, molding]\n",
		"empty stage":         "pipeline:\n  stages: [molding, \"\"]\n",
		"unknown log level":   "log:\n  level: loud\n",
		"webhook without url": "webhooks:\n  - events: [schedule.generated]\n",
		"blank scope":         "scheduling:\n  scope: \"  \"\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := FromYAML([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestFromYAMLRejectsBadSyntax(t *testing.T) {
	_, err := FromYAML([]byte("site: [unterminated"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid config yaml")
}

func TestLoadOptionalFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", cfg.Site.ID)

	_, err = Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ml config init")
}

func TestLoadReadsWorkspaceFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "moldline.yml"), []byte(GenerateDefault("west")), 0o644))
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "west", cfg.Site.ID)
	assert.Equal(t, filepath.Join(dir, "moldline.yml"), Path(dir))
}

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/dialogmesh/core"
	"github.com/hupe1980/dialogmesh/engine"
	"github.com/hupe1980/dialogmesh/logging"
	"github.com/hupe1980/dialogmesh/recognizer"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, engine.DefaultConfig.MaxStackDepth, cfg.Engine.MaxStackDepth)
	assert.Equal(t, engine.DefaultConfig.MaxActionsPerTurn, cfg.Engine.MaxActionsPerTurn)
	assert.Zero(t, cfg.Engine.TurnTimeout)
	assert.Equal(t, recognizer.DefaultUnknownIntentFilterScore, cfg.Recognizer.UnknownIntentFilterScore)
	assert.Equal(t, recognizer.DefaultDisambiguationScoreThreshold, cfg.Recognizer.DisambiguationScoreThreshold)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "dialogmesh.activities", cfg.AMQP.Exchange)
	assert.Equal(t, "slog", cfg.Logging.Backend)
	assert.NotNil(t, cfg.Settings)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, "dialogmesh.yaml", `
engine:
  root_dialog: main
  max_stack_depth: 8
  turn_timeout: 3s
recognizer:
  detect_ambiguous_intents: true
  disambiguation_score_threshold: 0.1
storage:
  driver: sqlite
  path: /tmp/state.db
settings:
  greeting: hello
  limits:
    retries: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "main", cfg.Engine.RootDialog)
	assert.Equal(t, 8, cfg.Engine.MaxStackDepth)
	assert.Equal(t, 3*time.Second, cfg.Engine.TurnTimeout)
	assert.True(t, cfg.Recognizer.DetectAmbiguousIntents)
	assert.Equal(t, 0.1, cfg.Recognizer.DisambiguationScoreThreshold)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "hello", cfg.Settings["greeting"])

	var opts engine.Options
	cfg.EngineOptions()(&opts)
	assert.Equal(t, "main", opts.RootDialog)
	assert.Equal(t, 3*time.Second, opts.Config.TurnTimeout)
	assert.Equal(t, core.Settings(cfg.Settings), opts.Settings)

	var ropts recognizer.Options
	cfg.RecognizerOptions()(&ropts)
	assert.True(t, ropts.DetectAmbiguousIntents)
	assert.Equal(t, 0.1, ropts.DisambiguationScoreThreshold)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("DIALOGMESH_ENGINE_MAX_STACK_DEPTH", "4")
	t.Setenv("DIALOGMESH_RECOGNIZER_UNKNOWN_INTENT_FILTER_SCORE", "0.25")
	t.Setenv("DIALOGMESH_LOGGING_BACKEND", "zerolog")

	path := writeFile(t, "dialogmesh.yaml", "engine:\n  max_stack_depth: 8\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Engine.MaxStackDepth)
	assert.Equal(t, 0.25, cfg.Recognizer.UnknownIntentFilterScore)
	assert.Equal(t, "zerolog", cfg.Logging.Backend)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"depth", "engine:\n  max_stack_depth: 0\n", "max_stack_depth"},
		{"score", "recognizer:\n  unknown_intent_filter_score: 1.5\n", "unknown_intent_filter_score"},
		{"driver", "storage:\n  driver: redis\n", `unknown storage.driver "redis"`},
		{"dynamodb table", "storage:\n  driver: dynamodb\n", "storage.table is required"},
		{"backend", "logging:\n  backend: logrus\n", "logging.backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "c.yaml", tt.content))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestConfig_NewLogger(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	var buf bytes.Buffer
	l := cfg.NewLogger(&buf)
	assert.IsType(t, &logging.DialogMeshLogger{}, l)
	l.Info("ready")
	assert.Contains(t, buf.String(), `"msg":"ready"`)

	cfg.Logging.Backend = "zerolog"
	buf.Reset()
	l = cfg.NewLogger(&buf)
	assert.IsType(t, &logging.ZerologAdapter{}, l)
	l.Info("ready")
	assert.Contains(t, buf.String(), `"message":"ready"`)
}

package pattern

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.WithDefaults()

	assert.Equal(t, PatternSequential, cfg.Pattern)
	assert.Equal(t, DefaultMaxConcurrent, cfg.MaxConcurrent)
	assert.Equal(t, AggregateAll, cfg.Aggregation)
	assert.Equal(t, DefaultMaxHandoffs, cfg.MaxHandoffs)
	assert.Equal(t, ManagerRoundRobin, cfg.Manager)
	assert.Equal(t, DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, DefaultTerminationKeyword, cfg.TerminationKeyword)
	assert.Equal(t, DefaultMaxContextBytes, cfg.MaxContextBytes)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"sequential", Config{Pattern: PatternSequential}, false},
		{"concurrent", Config{Pattern: PatternConcurrent, Aggregation: AggregateMerge}, false},
		{"handoff ok", Config{Pattern: PatternHandoff, InitialAgent: "triage"}, false},
		{"handoff missing initial agent", Config{Pattern: PatternHandoff}, true},
		{"group chat ok", Config{Pattern: PatternGroupChat, Agents: []string{"a"}}, false},
		{"group chat missing agents", Config{Pattern: PatternGroupChat}, true},
		{"unknown pattern", Config{Pattern: "ring"}, true},
		{"unknown aggregation", Config{Pattern: PatternConcurrent, Aggregation: "last"}, true},
		{"unknown manager", Config{Pattern: PatternGroupChat, Agents: []string{"a"}, Manager: "random"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseConfig_YAML(t *testing.T) {
	data := []byte(`
pattern: concurrent
max_concurrent: 4
fail_fast: true
aggregation: merge
timeout_per_agent: 30s
max_retries: 2
retry_backoff: 500ms
`)
	cfg, err := ParseConfig(data)
	require.NoError(t, err)
	assert.Equal(t, PatternConcurrent, cfg.Pattern)
	assert.Equal(t, 4, cfg.MaxConcurrent)
	assert.True(t, cfg.FailFast)
	assert.Equal(t, AggregateMerge, cfg.Aggregation)
	assert.Equal(t, 30*time.Second, cfg.TimeoutPerAgent)
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
}

func TestParseConfig_InvalidRejected(t *testing.T) {
	_, err := ParseConfig([]byte("pattern: ring"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("pattern: [broken"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pattern: group_chat\nagents: [writer, critic]\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, PatternGroupChat, cfg.Pattern)
	assert.Equal(t, []string{"writer", "critic"}, cfg.Agents)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestNew_PatternFactory(t *testing.T) {
	for _, tt := range []struct {
		cfg  Config
		name string
	}{
		{Config{Pattern: PatternSequential}, PatternSequential},
		{Config{Pattern: PatternConcurrent}, PatternConcurrent},
		{Config{Pattern: PatternHandoff, InitialAgent: "a"}, PatternHandoff},
		{Config{Pattern: PatternGroupChat, Agents: []string{"a"}}, PatternGroupChat},
	} {
		p, err := New(tt.cfg)
		require.NoError(t, err)
		assert.Equal(t, tt.name, p.Name())
	}

	_, err := New(Config{Pattern: "ring"})
	assert.Error(t, err)
}

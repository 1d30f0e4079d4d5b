package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/lexideck/internal/config"
	"github.com/conorfennell/lexideck/internal/domain"
	"github.com/conorfennell/lexideck/internal/queue"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lexideck.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, "lexideck.db", cfg.DB)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, []time.Duration{time.Minute, 10 * time.Minute}, cfg.SRS.LearningSteps)
	assert.Equal(t, 8, cfg.SRS.LeechThreshold)
	assert.Equal(t, 20, cfg.Study.NewPerDay)
	assert.Equal(t, config.StrategyTargetRatio, cfg.Study.Strategy)

	p, err := cfg.Params()
	require.NoError(t, err)
	assert.InDelta(t, 1.3, p.EaseFloor, 1e-9)

	s, err := cfg.Settings()
	require.NoError(t, err)
	assert.Equal(t, 20, s.NewCardsPerDay)
	assert.InDelta(t, 0.6, s.InterleaveRatio[domain.Vocabulary], 1e-9)
	assert.InDelta(t, 0.1, s.InterleaveRatio[domain.Verse], 1e-9)
}

func TestLoad_File(t *testing.T) {
	path := writeFile(t, `
db: /var/lib/lexideck/cards.db
tick-interval: 250ms
srs:
  learning-steps: [30s, 5m, 20m]
  leech-threshold: 5
study:
  new-per-day: 12
  strategy: round-robin
  ratio:
    vocabulary: 0.5
    grammar: 0.5
    verse: 0
`)
	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/lexideck/cards.db", cfg.DB)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, []time.Duration{30 * time.Second, 5 * time.Minute, 20 * time.Minute}, cfg.SRS.LearningSteps)
	assert.Equal(t, 5, cfg.SRS.LeechThreshold)
	assert.Equal(t, 12, cfg.Study.NewPerDay)

	il, err := cfg.Interleaver()
	require.NoError(t, err)
	assert.IsType(t, queue.WeightedRoundRobin{}, il)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, "listen: \":9000\"\nlog-level: warn\n")
	t.Setenv("LEXIDECK_LISTEN", ":9100")
	t.Setenv("LEXIDECK_STUDY__NEW_PER_DAY", "35")
	t.Setenv("LEXIDECK_SRS__LEECH_THRESHOLD", "12")

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Listen)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 35, cfg.Study.NewPerDay)
	assert.Equal(t, 12, cfg.SRS.LeechThreshold)
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("LEXIDECK_DB", "from-env.db")
	t.Setenv("LEXIDECK_LISTEN", ":9100")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("db", "flag-default.db", "")
	fs.String("listen", ":1111", "")
	require.NoError(t, fs.Parse([]string{"--db", "from-flag.db"}))

	cfg, err := config.Load("", fs)
	require.NoError(t, err)

	assert.Equal(t, "from-flag.db", cfg.DB)
	assert.Equal(t, ":9100", cfg.Listen, "unset flags must not override env")
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		yaml string
	}{
		{"ratio sum", "study:\n  ratio:\n    vocabulary: 0.9\n    grammar: 0.9\n    verse: 0\n"},
		{"negative ratio", "study:\n  ratio:\n    vocabulary: 1.2\n    grammar: -0.2\n    verse: 0\n"},
		{"unknown card type", "study:\n  ratio:\n    kanji: 0\n"},
		{"no learning steps", "srs:\n  learning-steps: []\n"},
		{"ease floor", "srs:\n  ease-floor: 0.9\n"},
		{"log level", "log-level: loud\n"},
		{"strategy", "study:\n  strategy: random\n"},
		{"new per day", "study:\n  new-per-day: 0\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := config.Load(writeFile(t, tc.yaml), nil)
			assert.Error(t, err)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", config.Config{LogLevel: "debug"}.SlogLevel().String())
	assert.Equal(t, "INFO", config.Config{LogLevel: "bogus"}.SlogLevel().String())
}

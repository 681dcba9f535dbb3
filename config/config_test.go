package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "bitcoin", cfg.Data.Asset)
	assert.Equal(t, "15m", cfg.Strategy.Timeframe)
	assert.Equal(t, 15, cfg.Strategy.Days)
	assert.InDelta(t, 0.0015, cfg.Strategy.Fees, 1e-12)
	assert.Equal(t, [][]int{{7, 10}, {12, 16}}, cfg.Strategy.TradingHours)
	assert.Equal(t, 256, cfg.Notify.QueueSize)
}

func TestLoad_YAMLKeepsUnsetStrategyDefaults(t *testing.T) {
	path := writeYAML(t, `
strategy:
  timeframe: 5m
  stop_loss_pct: 1.2
data:
  asset: ethereum
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "5m", cfg.Strategy.Timeframe)
	assert.InDelta(t, 1.2, cfg.Strategy.StopLossPct, 1e-12)
	assert.InDelta(t, 1.5, cfg.Strategy.TakeProfitPct, 1e-12, "unset keys keep defaults")
	assert.Equal(t, "ethereum", cfg.Data.Asset)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok")
	t.Setenv("FORWARD_CRON", "0 */15 * * * *")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.HTTPAddr)
	assert.Equal(t, "redis:6379", cfg.Storage.RedisAddr)
	assert.Equal(t, "tok", cfg.Strategy.TelegramToken)
	assert.Equal(t, "0 */15 * * * *", cfg.Schedule.ForwardCron)
}

func TestLoad_InvalidStrategy(t *testing.T) {
	path := writeYAML(t, "strategy:\n  trading_hours: [[10, 7]]\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestStrategy_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Strategy)
	}{
		{"bad timeframe", func(s *Strategy) { s.Timeframe = "1h" }},
		{"zero days", func(s *Strategy) { s.Days = 0 }},
		{"zero size", func(s *Strategy) { s.PositionSize = 0 }},
		{"fee too large", func(s *Strategy) { s.Fees = 1 }},
		{"negative stop", func(s *Strategy) { s.StopLossPct = -1 }},
		{"zero take profit", func(s *Strategy) { s.TakeProfitPct = 0 }},
		{"negative volume", func(s *Strategy) { s.VolumeMin = -1 }},
		{"bad timezone", func(s *Strategy) { s.Timezone = "Mars/Olympus" }},
		{"telegram without token", func(s *Strategy) { s.EnableTelegram = true }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultStrategy()
			tc.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}

	s := DefaultStrategy()
	assert.NoError(t, s.Validate())
}

func TestStrategy_ActualDays(t *testing.T) {
	s := DefaultStrategy()
	s.Days = 20

	for tf, want := range map[string]int{"1m": 1, "5m": 7, "15m": 20} {
		s.Timeframe = tf
		assert.Equal(t, want, s.ActualDays(), tf)
	}
}

func TestStrategy_EmptyTradingHoursUseDefault(t *testing.T) {
	for _, hours := range [][][]int{nil, {}} {
		s := DefaultStrategy()
		s.TradingHours = hours
		require.NoError(t, s.Validate())

		ws, err := s.Windows()
		require.NoError(t, err)
		assert.Equal(t, [][]int{{7, 10}, {12, 16}}, ws.Pairs())
		assert.True(t, ws.Contains(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)))
		assert.False(t, ws.Contains(time.Date(2024, 3, 1, 11, 0, 0, 0, time.UTC)))
	}
}

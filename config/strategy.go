package config

import (
	"errors"
	"fmt"
	"time"

	"forwardtest/internal/markethours"
)

// Strategy is the option set of the MACD/EMA/Bollinger strategy. The JSON
// keys match the persisted config snapshot.
type Strategy struct {
	Timeframe            string  `json:"timeframe" yaml:"timeframe"` // 1m | 5m | 15m
	Days                 int     `json:"days" yaml:"days"`
	PositionSize         float64 `json:"position_size" yaml:"position_size"` // base units
	Fees                 float64 `json:"fees" yaml:"fees"`                   // fractional, per side
	StopLossPct          float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`
	TakeProfitPct        float64 `json:"take_profit_pct" yaml:"take_profit_pct"`
	VolumeMin            float64 `json:"volume_min" yaml:"volume_min"` // quote currency
	TradingHours         [][]int `json:"trading_hours" yaml:"trading_hours"`
	Timezone             string  `json:"timezone" yaml:"timezone"`
	EnableTelegram       bool    `json:"enable_telegram" yaml:"enable_telegram"`
	TelegramToken        string  `json:"telegram_token" yaml:"telegram_token"`
	TelegramChatID       string  `json:"telegram_chat_id" yaml:"telegram_chat_id"`
	AutoPauseAfterLosses int     `json:"auto_pause_after_losses" yaml:"auto_pause_after_losses"`
}

// DefaultStrategy returns the default option set.
func DefaultStrategy() Strategy {
	return Strategy{
		Timeframe:            "15m",
		Days:                 15,
		PositionSize:         40,
		Fees:                 0.0015,
		StopLossPct:          0.8,
		TakeProfitPct:        1.5,
		VolumeMin:            75000,
		TradingHours:         [][]int{{7, 10}, {12, 16}},
		Timezone:             "UTC",
		AutoPauseAfterLosses: 2,
	}
}

// Validate checks every option once; callers validate at construction.
func (s *Strategy) Validate() error {
	switch s.Timeframe {
	case "1m", "5m", "15m":
	default:
		return fmt.Errorf("timeframe %q must be one of 1m, 5m, 15m", s.Timeframe)
	}
	if s.Days <= 0 {
		return errors.New("days must be positive")
	}
	if s.PositionSize <= 0 {
		return errors.New("position_size must be positive")
	}
	if s.Fees < 0 || s.Fees >= 1 {
		return errors.New("fees must be in [0, 1)")
	}
	if s.StopLossPct <= 0 {
		return errors.New("stop_loss_pct must be positive")
	}
	if s.TakeProfitPct <= 0 {
		return errors.New("take_profit_pct must be positive")
	}
	if s.VolumeMin < 0 {
		return errors.New("volume_min must not be negative")
	}
	if s.AutoPauseAfterLosses < 0 {
		return errors.New("auto_pause_after_losses must not be negative")
	}
	if _, err := s.Windows(); err != nil {
		return err
	}
	if s.EnableTelegram && (s.TelegramToken == "" || s.TelegramChatID == "") {
		return errors.New("enable_telegram needs telegram_token and telegram_chat_id")
	}
	return nil
}

// Location returns the timezone trading hours are evaluated in.
func (s *Strategy) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// Windows returns the parsed trading-hour windows. An empty list falls back
// to the default windows.
func (s *Strategy) Windows() (markethours.Windows, error) {
	loc, err := s.Location()
	if err != nil {
		return markethours.Windows{}, err
	}
	pairs := s.TradingHours
	if len(pairs) == 0 {
		pairs = DefaultStrategy().TradingHours
	}
	return markethours.ParseWindows(pairs, loc)
}

// ActualDays maps the timeframe to the number of days to fetch:
// 1m → 1, 5m → 7, 15m → Days.
func (s *Strategy) ActualDays() int {
	switch s.Timeframe {
	case "1m":
		return 1
	case "5m":
		return 7
	default:
		return s.Days
	}
}

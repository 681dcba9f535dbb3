// Package snapshot persists the dashboard's strategy config and latest run
// results as flat JSON files.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"forwardtest/config"
	"forwardtest/internal/model"
	"forwardtest/internal/report"
)

const (
	strategyFile = "config.json"
	resultsFile  = "results.json"
)

// Results is the content of results.json.
type Results struct {
	RunID        string                  `json:"run_id,omitempty"`
	Mode         string                  `json:"mode,omitempty"`
	Trades       []model.Trade           `json:"trades"`
	EquityCurve  []model.EquityPoint     `json:"equity_curve"`
	Divergences  []model.DivergenceEvent `json:"divergences"`
	Statistics   report.Statistics       `json:"statistics"`
	NoTrades     bool                    `json:"no_trades"`
	OpenPosition *model.Position         `json:"open_position"` // still open at the end; nil when flat
	LastUpdate   *time.Time              `json:"last_update"`
	Config       *config.Strategy        `json:"config,omitempty"`
}

// EmptyResults is what LoadResults returns before any run has been saved.
func EmptyResults() Results {
	return Results{
		Trades:      []model.Trade{},
		EquityCurve: []model.EquityPoint{},
		Divergences: []model.DivergenceEvent{},
	}
}

// Store reads and writes snapshots under Dir. Writes are atomic.
type Store struct {
	Dir string

	mu sync.Mutex
}

// New creates a Store, creating dir if needed.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot dir: %w", err)
	}
	return &Store{Dir: dir}, nil
}

// LoadStrategy returns the saved strategy, or the defaults when none exists.
func (s *Store) LoadStrategy() (config.Strategy, error) {
	st := config.DefaultStrategy()
	found, err := s.read(strategyFile, &st)
	if err != nil {
		return config.DefaultStrategy(), err
	}
	if !found {
		return config.DefaultStrategy(), nil
	}
	return st, nil
}

// SaveStrategy validates and writes the strategy.
func (s *Store) SaveStrategy(st config.Strategy) error {
	if err := st.Validate(); err != nil {
		return err
	}
	return s.write(strategyFile, st)
}

// SeedStrategy saves st unless a strategy has already been saved. It
// reports whether it wrote.
func (s *Store) SeedStrategy(st config.Strategy) (bool, error) {
	if _, err := os.Stat(filepath.Join(s.Dir, strategyFile)); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("snapshot stat %s: %w", strategyFile, err)
	}
	if err := s.SaveStrategy(st); err != nil {
		return false, err
	}
	return true, nil
}

// LoadResults returns the saved results, or EmptyResults when none exist.
func (s *Store) LoadResults() (Results, error) {
	res := EmptyResults()
	if _, err := s.read(resultsFile, &res); err != nil {
		return EmptyResults(), err
	}
	if res.Trades == nil {
		res.Trades = []model.Trade{}
	}
	if res.EquityCurve == nil {
		res.EquityCurve = []model.EquityPoint{}
	}
	if res.Divergences == nil {
		res.Divergences = []model.DivergenceEvent{}
	}
	return res, nil
}

// SaveResults writes the results, stamping LastUpdate when unset.
func (s *Store) SaveResults(res Results) error {
	if res.LastUpdate == nil {
		now := time.Now().UTC()
		res.LastUpdate = &now
	}
	return s.write(resultsFile, res)
}

func (s *Store) read(name string, dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(filepath.Join(s.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("snapshot read %s: %w", name, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("snapshot decode %s: %w", name, err)
	}
	return true, nil
}

// write encodes v to a temp file in Dir and renames it over name.
func (s *Store) write(name string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot encode %s: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.Dir, name+".*.tmp")
	if err != nil {
		return fmt.Errorf("snapshot temp %s: %w", name, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("snapshot write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot close %s: %w", name, err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.Dir, name)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("snapshot rename %s: %w", name, err)
	}
	log.Printf("[snapshot] saved %s (%d bytes)", name, len(b))
	return nil
}

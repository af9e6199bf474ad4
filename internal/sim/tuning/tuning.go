package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults are the process-wide game parameters. A game may override any
// of them through its stored settings; see Resolve.
type Defaults struct {
	TickIntervalMs    int   `yaml:"tick_interval_ms"`
	MaxTurns          int   `yaml:"max_turns"`
	MaxEnergy         int   `yaml:"max_energy"`
	EnergyRestore     int   `yaml:"energy_restore"`
	MaxTrapsPerPlayer int   `yaml:"max_traps_per_player"`
	MaxTrapDanger     int   `yaml:"max_trap_danger"`
	TimeLimitMs       int64 `yaml:"time_limit_ms"`
	EnableTraps       bool  `yaml:"enable_traps"`
}

func Default() Defaults {
	return Defaults{
		TickIntervalMs:    500,
		MaxTurns:          1200,
		MaxEnergy:         100,
		EnergyRestore:     10,
		MaxTrapsPerPlayer: 5,
		MaxTrapDanger:     50,
		TimeLimitMs:       300000,
		EnableTraps:       true,
	}
}

// Load reads defaults from a yaml file. An empty path yields the
// compiled-in defaults.
func Load(path string) (Defaults, error) {
	d := Default()
	if path == "" {
		return d, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return d, err
	}
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return d, fmt.Errorf("defaults.yaml: %w", err)
	}
	return d, nil
}

// Overrides is the optional partial settings object attached to a game.
// Nil fields fall back to the process-wide defaults.
type Overrides struct {
	EnableTraps       *bool  `json:"enableTraps,omitempty"`
	MaxEnergy         *int   `json:"maxEnergy,omitempty"`
	EnergyRestore     *int   `json:"energyRestore,omitempty"`
	MaxTurns          *int   `json:"maxTurns,omitempty"`
	TimeLimitMs       *int64 `json:"timeLimitMs,omitempty"`
	TickIntervalMs    *int   `json:"tickIntervalMs,omitempty"`
	MaxTrapsPerPlayer *int   `json:"maxTrapsPerPlayer,omitempty"`
	MaxTrapDanger     *int   `json:"maxTrapDanger,omitempty"`
}

// Settings is a fully-populated configuration. Nothing downstream of
// Resolve reads a raw optional field.
type Settings struct {
	EnableTraps       bool
	MaxEnergy         int
	EnergyRestore     int
	MaxTurns          int
	TimeLimitMs       int64
	TickIntervalMs    int
	MaxTrapsPerPlayer int
	MaxTrapDanger     int
}

// Resolve merges a game's stored overrides over the process defaults.
// It is called once per tick so a settings edit made while the game is
// not playing takes effect on the next tick.
func Resolve(d Defaults, o *Overrides) Settings {
	s := Settings{
		EnableTraps:       d.EnableTraps,
		MaxEnergy:         d.MaxEnergy,
		EnergyRestore:     d.EnergyRestore,
		MaxTurns:          d.MaxTurns,
		TimeLimitMs:       d.TimeLimitMs,
		TickIntervalMs:    d.TickIntervalMs,
		MaxTrapsPerPlayer: d.MaxTrapsPerPlayer,
		MaxTrapDanger:     d.MaxTrapDanger,
	}
	if o == nil {
		return s
	}
	if o.EnableTraps != nil {
		s.EnableTraps = *o.EnableTraps
	}
	if o.MaxEnergy != nil {
		s.MaxEnergy = *o.MaxEnergy
	}
	if o.EnergyRestore != nil {
		s.EnergyRestore = *o.EnergyRestore
	}
	if o.MaxTurns != nil {
		s.MaxTurns = *o.MaxTurns
	}
	if o.TimeLimitMs != nil {
		s.TimeLimitMs = *o.TimeLimitMs
	}
	if o.TickIntervalMs != nil {
		s.TickIntervalMs = *o.TickIntervalMs
	}
	if o.MaxTrapsPerPlayer != nil {
		s.MaxTrapsPerPlayer = *o.MaxTrapsPerPlayer
	}
	if o.MaxTrapDanger != nil {
		s.MaxTrapDanger = *o.MaxTrapDanger
	}
	return s
}

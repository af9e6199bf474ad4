package snapshot

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"tidehunt.io/internal/sim/tuning"
)

const Version = 1

// GameV1 is the persisted form of one full game snapshot. The store
// writes it as JSON; finished games are additionally archived to disk
// with WriteArchive.
type GameV1 struct {
	Version     int               `json:"version"`
	GameID      string            `json:"game_id"`
	Status      string            `json:"status"`
	CurrentTurn int               `json:"current_turn"`
	StartedAtMs int64             `json:"started_at_ms,omitempty"`
	Settings    *tuning.Overrides `json:"settings,omitempty"`
	Players     []PlayerV1        `json:"players"`
	Map         MapV1             `json:"map"`
}

type PlayerV1 struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Energy    int    `json:"energy"`
	Carried   int    `json:"carried,omitempty"`
	TrapCount int    `json:"trap_count,omitempty"`
	Score     int    `json:"score"`
	AtBase    bool   `json:"at_base"`
	BaseIndex int    `json:"base_index"`
}

type TrapV1 struct {
	Owner       string `json:"owner"`
	X           int    `json:"x"`
	Y           int    `json:"y"`
	Danger      int    `json:"danger"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

type MapV1 struct {
	Width     int        `json:"width"`
	Height    int        `json:"height"`
	Terrain   [][]int    `json:"terrain"`
	Waves     [][]int    `json:"waves"`
	Treasures [][]int    `json:"treasures"`
	Bases     [][2]int   `json:"bases"`
	Traps     []TrapV1   `json:"traps,omitempty"`
	Owners    [][]string `json:"owners,omitempty"`
}

// WriteArchive stores a snapshot as zstd-compressed JSON, one header line
// followed by the body.
func WriteArchive(path string, g GameV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	header, _ := json.Marshal(map[string]any{
		"version": g.Version,
		"game_id": g.GameID,
		"turn":    g.CurrentTurn,
	})
	if _, err := bw.Write(header); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(&g); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

func ReadArchive(path string) (GameV1, error) {
	var g GameV1
	f, err := os.Open(path)
	if err != nil {
		return g, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return g, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)
	// Skip the header line; the body repeats it.
	if _, err := br.ReadBytes('\n'); err != nil {
		return g, err
	}
	if err := json.NewDecoder(br).Decode(&g); err != nil {
		return g, fmt.Errorf("decode snapshot: %w", err)
	}
	return g, nil
}

// Command replay inspects finished-game artifacts: the compressed final
// snapshot written at game end and, optionally, the event journal.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"tidehunt.io/internal/persistence/snapshot"
)

func main() {
	var (
		archivePath = flag.String("archive", "", "path to <game>-final.json.zst")
		eventsDir   = flag.String("events", "", "events dir containing events-*.jsonl.zst (optional)")
		gameFilter  = flag.String("game", "", "only print journal events for this game id")
	)
	flag.Parse()

	if *archivePath == "" && *eventsDir == "" {
		fmt.Fprintln(os.Stderr, "missing -archive or -events")
		os.Exit(2)
	}

	if *archivePath != "" {
		g, err := snapshot.ReadArchive(*archivePath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "read archive:", err)
			os.Exit(1)
		}
		printGame(g)
	}

	if *eventsDir != "" {
		if err := dumpJournal(*eventsDir, *gameFilter); err != nil {
			fmt.Fprintln(os.Stderr, "dump journal:", err)
			os.Exit(1)
		}
	}
}

func printGame(g snapshot.GameV1) {
	remaining := 0
	for _, row := range g.Map.Treasures {
		for _, v := range row {
			if v > 0 {
				remaining += v
			}
		}
	}
	fmt.Printf("game v%d id=%s status=%s turn=%d players=%d map=%dx%d traps=%d treasure_left=%d\n",
		g.Version, g.GameID, g.Status, g.CurrentTurn, len(g.Players),
		g.Map.Width, g.Map.Height, len(g.Map.Traps), remaining)

	players := append([]snapshot.PlayerV1(nil), g.Players...)
	sort.SliceStable(players, func(i, j int) bool { return players[i].Score > players[j].Score })
	for i, p := range players {
		fmt.Printf("  #%d %s score=%d pos=(%d,%d) energy=%d carried=%d\n",
			i+1, p.ID, p.Score, p.X, p.Y, p.Energy, p.Carried)
	}
}

func dumpJournal(dir, gameFilter string) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range ents {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl.zst") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		if err := dumpFile(filepath.Join(dir, name), gameFilter); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func dumpFile(path, gameFilter string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 1024*1024), 1024*1024)
	for sc.Scan() {
		var rec struct {
			Ts     int64          `json:"ts"`
			GameID string         `json:"game_id"`
			Event  map[string]any `json:"event"`
		}
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return err
		}
		if gameFilter != "" && rec.GameID != gameFilter {
			continue
		}
		line, _ := json.Marshal(rec.Event)
		fmt.Printf("%d %s %s\n", rec.Ts, rec.GameID, line)
	}
	return sc.Err()
}

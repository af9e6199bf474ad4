package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"

	"tidehunt.io/internal/protocol"
)

func TestEventJournal_WritesReadableRecords(t *testing.T) {
	dir := t.TempDir()
	j := NewEventJournal(dir)

	j.Emit("g1", protocol.TurnNew("g1", 1))
	j.Emit("g1", protocol.PlayerMoved("g1", "p1", 2, 3))
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(ents) != 1 || !strings.HasSuffix(ents[0].Name(), ".jsonl.zst") {
		t.Fatalf("unexpected journal files: %v", ents)
	}

	f, err := os.Open(filepath.Join(dir, ents[0].Name()))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd: %v", err)
	}
	defer dec.Close()

	var recs []record
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var r record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("decode line: %v", err)
		}
		recs = append(recs, r)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}

	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2", len(recs))
	}
	if recs[0].GameID != "g1" || recs[0].Event["type"] != protocol.TypeTurnNew {
		t.Fatalf("first record: %+v", recs[0])
	}
	if recs[1].Event["type"] != protocol.TypePlayerMoved || recs[1].Ts == 0 {
		t.Fatalf("second record: %+v", recs[1])
	}
}

// Package log persists the game event stream as hourly-rotated,
// zstd-compressed JSONL files. The journal is an audit trail only; the
// simulation never reads it back.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"tidehunt.io/internal/protocol"
)

// EventJournal implements game.Notifier by appending every emitted
// event to the current hour's file. Write errors are swallowed after
// the first report so a full disk cannot stall the tick path.
type EventJournal struct {
	dir string

	mu       sync.Mutex
	curHour  string
	f        *os.File
	enc      *zstd.Encoder
	buf      *bufio.Writer
	reported bool
}

type record struct {
	Ts     int64          `json:"ts"`
	GameID string         `json:"game_id"`
	Event  protocol.Event `json:"event"`
}

func NewEventJournal(dir string) *EventJournal {
	return &EventJournal{dir: dir}
}

func (j *EventJournal) Emit(gameID string, ev protocol.Event) {
	rec := record{Ts: time.Now().UnixMilli(), GameID: gameID, Event: ev}
	if err := j.write(rec); err != nil {
		j.mu.Lock()
		if !j.reported {
			j.reported = true
			fmt.Fprintf(os.Stderr, "event journal: %v\n", err)
		}
		j.mu.Unlock()
	}
}

func (j *EventJournal) write(rec record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != j.curHour {
		if err := j.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if _, err := j.buf.Write(b); err != nil {
		return err
	}
	if err := j.buf.WriteByte('\n'); err != nil {
		return err
	}
	return j.buf.Flush()
}

func (j *EventJournal) rotateLocked(hour string) error {
	if err := j.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(j.dir, 0o755); err != nil {
		return err
	}
	name := filepath.Join(j.dir, fmt.Sprintf("events-%s.jsonl.zst", hour))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	j.f = f
	j.enc = enc
	j.buf = bufio.NewWriterSize(enc, 128*1024)
	j.curHour = hour
	j.reported = false
	return nil
}

func (j *EventJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.closeLocked()
}

func (j *EventJournal) closeLocked() error {
	var errEnc error
	if j.buf != nil {
		_ = j.buf.Flush()
	}
	if j.enc != nil {
		errEnc = j.enc.Close()
		j.enc = nil
	}
	if j.f != nil {
		_ = j.f.Close()
		j.f = nil
	}
	j.buf = nil
	j.curHour = ""
	return errEnc
}

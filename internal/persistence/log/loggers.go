// Package log writes hour-rotated, zstd-compressed JSONL audit files.
package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"buildingheight.ai/internal/settings"
	"buildingheight.ai/internal/sim/stats"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("log writer closed")

type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	closed  bool
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 32*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *JSONLZstdWriter) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// SelectionRecord is one audit line per published snapshot.
type SelectionRecord struct {
	ID        string              `json:"id"`
	Seq       uint64              `json:"seq"`
	DerivedAt time.Time           `json:"derived_at"`
	Entity    string              `json:"entity"`
	Layout    stats.LayoutKind    `json:"layout"`
	Settings  settings.Settings   `json:"settings"`
	Stats     stats.BuildingStats `json:"stats"`
	Text      string              `json:"text"`
}

// SelectionLogger records selection changes under <dir>/selections.
type SelectionLogger struct{ w *JSONLZstdWriter }

func NewSelectionLogger(dataDir string) *SelectionLogger {
	return &SelectionLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "selections"), "selections")}
}

func (l *SelectionLogger) WriteSelection(snap stats.Snapshot, s settings.Settings) error {
	return l.w.Write(SelectionRecord{
		ID:        uuid.NewString(),
		Seq:       snap.Seq,
		DerivedAt: snap.DerivedAt,
		Entity:    snap.Stats.Entity.String(),
		Layout:    snap.Layout,
		Settings:  s,
		Stats:     snap.Stats,
		Text:      stats.Format(snap.Stats, s.HeightUnit),
	})
}

func (l *SelectionLogger) Close() error { return l.w.Close() }

// ListSelectionFiles returns the selection audit files under dir in chronological order.
func ListSelectionFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "selections-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

// ReadSelections calls fn for every record in one audit file, stopping at the first error.
func ReadSelections(path string, fn func(SelectionRecord) error) error {
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
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		var rec SelectionRecord
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return sc.Err()
}

package ablation

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/subliminal-labs/roleprobe/internal/model"
)

// Sink receives one cell's sample stream. Implementations need not be
// concurrency-safe; the orchestrator serializes writes.
type Sink interface {
	Write(rec *model.SampleRecord) error
	Close() error
}

// SinkProvider opens a sink per grid cell and reports where the stream
// lands, for the cell summary.
type SinkProvider interface {
	Open(cell model.CellKey) (Sink, string, error)
}

// JSONLProvider writes each cell's stream as one JSON object per line under
// Dir, append-only, flushed line by line so a crash loses at most the
// in-flight record.
type JSONLProvider struct {
	Dir string
}

func (p *JSONLProvider) Open(cell model.CellKey) (Sink, string, error) {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return nil, "", eris.Wrap(err, "ablation: create results dir")
	}
	path := filepath.Join(p.Dir, cell.FileName())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", eris.Wrapf(err, "ablation: open %s", path)
	}
	return &jsonlSink{f: f, w: bufio.NewWriter(f)}, path, nil
}

type jsonlSink struct {
	f      *os.File
	w      *bufio.Writer
	closed bool
}

func (s *jsonlSink) Write(rec *model.SampleRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "ablation: marshal sample")
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return eris.Wrap(err, "ablation: write sample")
	}
	return eris.Wrap(s.w.Flush(), "ablation: flush sample")
}

// Close is idempotent: the orchestrator closes explicitly on success and
// defers a close for error paths.
func (s *jsonlSink) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.w.Flush(); err != nil {
		s.f.Close()
		return eris.Wrap(err, "ablation: flush sink")
	}
	return eris.Wrap(s.f.Close(), "ablation: close sink")
}

// MemoryProvider collects every cell's stream in memory. Test double, also
// safe for concurrent Open across cells.
type MemoryProvider struct {
	mu    sync.Mutex
	cells map[model.CellKey][]*model.SampleRecord
}

func (p *MemoryProvider) Open(cell model.CellKey) (Sink, string, error) {
	return &memorySink{provider: p, cell: cell}, "memory://" + cell.FileName(), nil
}

// Records returns the stream captured for one cell.
func (p *MemoryProvider) Records(cell model.CellKey) []*model.SampleRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cells[cell]
}

type memorySink struct {
	provider *MemoryProvider
	cell     model.CellKey
}

func (s *memorySink) Write(rec *model.SampleRecord) error {
	s.provider.mu.Lock()
	defer s.provider.mu.Unlock()
	if s.provider.cells == nil {
		s.provider.cells = make(map[model.CellKey][]*model.SampleRecord)
	}
	s.provider.cells[s.cell] = append(s.provider.cells[s.cell], rec)
	return nil
}

func (s *memorySink) Close() error { return nil }

// Package conversation reads and writes teacher-conversation JSONL files.
// Each line is one ConversationRecord; the format is shared with the
// external conversation generator.
package conversation

import (
	"bufio"
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"

	"github.com/subliminal-labs/roleprobe/internal/model"
)

// maxLineBytes bounds a single JSONL line. Long conversations with many
// turns stay well under this.
const maxLineBytes = 4 * 1024 * 1024

// Read decodes conversation records from r, one JSON object per line.
// Blank lines are skipped. A malformed line is an error carrying its line
// number; callers decide whether to treat the file as unusable.
func Read(r io.Reader) ([]model.ConversationRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []model.ConversationRecord
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}

		var rec model.ConversationRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, eris.Wrapf(err, "conversation: parse line %d", line)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "conversation: scan")
	}
	return records, nil
}

// ReadFile reads all conversation records from a JSONL file.
func ReadFile(path string) ([]model.ConversationRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "conversation: open %s", path)
	}
	defer f.Close()

	records, err := Read(f)
	if err != nil {
		return nil, eris.Wrapf(err, "conversation: read %s", path)
	}
	return records, nil
}

// Write encodes records to w, one JSON object per line.
func Write(w io.Writer, records []model.ConversationRecord) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return eris.Wrapf(err, "conversation: encode record %d", rec.ID)
		}
	}
	return eris.Wrap(bw.Flush(), "conversation: flush")
}

// WriteFile writes records to a JSONL file, replacing any existing file.
func WriteFile(path string, records []model.ConversationRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "conversation: create %s", path)
	}
	if err := Write(f, records); err != nil {
		f.Close()
		return err
	}
	return eris.Wrapf(f.Close(), "conversation: close %s", path)
}

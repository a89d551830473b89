package ablation

import (
	"bufio"
	"encoding/json"
	"os"
	"regexp"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/subliminal-labs/roleprobe/internal/model"
)

var cellFilePattern = regexp.MustCompile(`^role-(baseline|system|user)_turns-(\d+)_(restricted|unrestricted)\.jsonl$`)

// ParseFileName recovers the cell key from a per-cell stream file name.
func ParseFileName(name string) (model.CellKey, bool) {
	m := cellFilePattern.FindStringSubmatch(name)
	if m == nil {
		return model.CellKey{}, false
	}
	turns, err := strconv.Atoi(m[2])
	if err != nil {
		return model.CellKey{}, false
	}
	return model.CellKey{
		Mode:      model.GenerationMode(m[3]),
		Condition: model.Condition(m[1]),
		Turns:     turns,
	}, true
}

// ReadCellFile loads one cell's sample stream back from disk.
func ReadCellFile(path string) ([]model.SampleRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ablation: open %s", path)
	}
	defer f.Close()

	var records []model.SampleRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec model.SampleRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, eris.Wrapf(err, "ablation: %s line %d", path, line)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "ablation: read %s", path)
	}
	return records, nil
}

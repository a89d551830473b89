package concept

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// vocabularyFile is the on-disk wrapper for a vocabulary override file:
//
//	concepts:
//	  - name: owl
//	    variants: [owl, owls, owlet, owlets, owlish]
//	  - name: cat
type vocabularyFile struct {
	Concepts []Candidate `yaml:"concepts"`
}

// Load returns the vocabulary for a run: the override file when path is
// non-empty, the built-in table otherwise.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

// LoadFile reads a vocabulary override from a YAML file. Entries without
// variants get the name and its regular plural backfilled.
func LoadFile(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "concept: read vocabulary file %s", path)
	}

	var vf vocabularyFile
	if err := yaml.Unmarshal(data, &vf); err != nil {
		return nil, eris.Wrapf(err, "concept: parse vocabulary file %s", path)
	}
	if len(vf.Concepts) == 0 {
		return nil, eris.Errorf("concept: vocabulary file %s defines no concepts", path)
	}

	seen := make(map[string]bool, len(vf.Concepts))
	for i := range vf.Concepts {
		c := &vf.Concepts[i]
		if c.Name == "" {
			return nil, eris.Errorf("concept: vocabulary file %s: entry %d has no name", path, i)
		}
		key := Normalize(c.Name)
		if seen[key] {
			return nil, eris.Errorf("concept: vocabulary file %s: duplicate concept %q", path, c.Name)
		}
		seen[key] = true
		if len(c.Variants) == 0 {
			c.Variants = []string{c.Name, c.Name + "s"}
		}
	}

	return &Vocabulary{Candidates: vf.Concepts}, nil
}

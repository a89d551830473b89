// Package concept defines the target-concept vocabulary: the candidate
// strings the restricted scorer decodes over and the surface variants used
// to match backend tokens and detect mentions in generated text.
package concept

import (
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
)

var folder = cases.Fold()

// Normalize trims surrounding whitespace and case-folds a token so that
// backend tokens like " Owl" compare equal to the variant "owl".
func Normalize(s string) string {
	return folder.String(strings.TrimSpace(s))
}

// Candidate is one entry in the vocabulary: a concept name plus the surface
// variants that realize it in model output.
type Candidate struct {
	Name     string   `yaml:"name" json:"name"`
	Variants []string `yaml:"variants,omitempty" json:"variants,omitempty"`
}

// Matches reports whether a single backend token realizes this candidate.
func (c *Candidate) Matches(token string) bool {
	tok := Normalize(token)
	if tok == "" {
		return false
	}
	for _, v := range c.Variants {
		if tok == folder.String(v) {
			return true
		}
	}
	return false
}

// DetectIn reports whether any variant of the candidate appears in the text,
// by case-folded substring search.
func (c *Candidate) DetectIn(text string) bool {
	folded := folder.String(text)
	for _, v := range c.Variants {
		if strings.Contains(folded, folder.String(v)) {
			return true
		}
	}
	return false
}

// Vocabulary is an ordered candidate table. Order is significant: the
// restricted scorer breaks probability ties by vocabulary position.
type Vocabulary struct {
	Candidates []Candidate
}

// Names returns the candidate names in vocabulary order.
func (v *Vocabulary) Names() []string {
	names := make([]string, len(v.Candidates))
	for i, c := range v.Candidates {
		names[i] = c.Name
	}
	return names
}

// Target resolves the named candidate, case-insensitively. The target
// concept must be a vocabulary member so that restricted mode scores it
// against real alternatives.
func (v *Vocabulary) Target(name string) (*Candidate, error) {
	want := Normalize(name)
	for i := range v.Candidates {
		if Normalize(v.Candidates[i].Name) == want {
			return &v.Candidates[i], nil
		}
	}
	return nil, eris.Errorf("concept: target %q is not in the vocabulary", name)
}

// Default returns the built-in animal vocabulary. Variants carry irregular
// plurals; capitalization and leading-space token forms are handled by
// Normalize, not by extra variants.
func Default() *Vocabulary {
	return &Vocabulary{Candidates: []Candidate{
		{Name: "lion", Variants: []string{"lion", "lions"}},
		{Name: "cat", Variants: []string{"cat", "cats"}},
		{Name: "bear", Variants: []string{"bear", "bears"}},
		{Name: "bull", Variants: []string{"bull", "bulls"}},
		{Name: "dog", Variants: []string{"dog", "dogs"}},
		{Name: "dragon", Variants: []string{"dragon", "dragons"}},
		{Name: "eagle", Variants: []string{"eagle", "eagles"}},
		{Name: "elephant", Variants: []string{"elephant", "elephants"}},
		{Name: "kangaroo", Variants: []string{"kangaroo", "kangaroos"}},
		{Name: "owl", Variants: []string{"owl", "owls"}},
		{Name: "panda", Variants: []string{"panda", "pandas"}},
		{Name: "pangolin", Variants: []string{"pangolin", "pangolins"}},
		{Name: "peacock", Variants: []string{"peacock", "peacocks"}},
		{Name: "penguin", Variants: []string{"penguin", "penguins"}},
		{Name: "phoenix", Variants: []string{"phoenix", "phoenixes"}},
		{Name: "tiger", Variants: []string{"tiger", "tigers"}},
		{Name: "unicorn", Variants: []string{"unicorn", "unicorns"}},
		{Name: "wolf", Variants: []string{"wolf", "wolves"}},
	}}
}

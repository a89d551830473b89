package concept

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeVocabFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_EmptyPathUsesDefault(t *testing.T) {
	v, err := Load("")
	require.NoError(t, err)
	assert.Len(t, v.Candidates, 18)
}

func TestLoadFile_Override(t *testing.T) {
	path := writeVocabFile(t, `
concepts:
  - name: owl
    variants: [owl, owls, owlet, owlets, owlish]
  - name: cat
`)

	v, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, v.Candidates, 2)

	owl, err := v.Target("owl")
	require.NoError(t, err)
	assert.True(t, owl.Matches("owlet"))

	// Variants backfilled from the name when omitted.
	cat, err := v.Target("cat")
	require.NoError(t, err)
	assert.Equal(t, []string{"cat", "cats"}, cat.Variants)
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFile(writeVocabFile(t, "concepts: []\n"))
	assert.Error(t, err)

	_, err = LoadFile(writeVocabFile(t, "concepts:\n  - variants: [a]\n"))
	assert.Error(t, err)

	_, err = LoadFile(writeVocabFile(t, "concepts:\n  - name: owl\n  - name: Owl\n"))
	assert.Error(t, err)

	_, err = LoadFile(writeVocabFile(t, "not valid: [yaml\n"))
	assert.Error(t, err)
}

package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/subliminal-labs/roleprobe/internal/concept"
	"github.com/subliminal-labs/roleprobe/internal/condition"
	"github.com/subliminal-labs/roleprobe/pkg/llm"
)

var vocabFlags struct {
	probe bool
}

var vocabCmd = &cobra.Command{
	Use:   "vocab",
	Short: "Audit the candidate vocabulary",
	Long:  "Lists the candidate table and whether the detector matches each candidate's own surface forms. With --probe, sends the bare probe question and reports which candidates are observable in the backend's first-step top-K.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		vocab, err := loadVocabulary()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CANDIDATE\tVARIANTS\tSELF-MATCH")
		for i := range vocab.Candidates {
			c := &vocab.Candidates[i]
			fmt.Fprintf(w, "%s\t%s\t%v\n", c.Name, strings.Join(c.Variants, ","), selfMatches(c))
		}
		if err := w.Flush(); err != nil {
			return err
		}

		if !vocabFlags.probe {
			return nil
		}
		return probeVocabulary(cmd, vocab)
	},
}

// selfMatches checks that the detector recognizes every surface form the
// candidate declares, name included.
func selfMatches(c *concept.Candidate) bool {
	if !c.Matches(c.Name) {
		return false
	}
	for _, v := range c.Variants {
		if !c.Matches(v) {
			return false
		}
	}
	return true
}

// probeVocabulary sends the bare probe question and reports which candidates
// the backend can actually surface in its first-step top-K.
func probeVocabulary(cmd *cobra.Command, vocab *concept.Vocabulary) error {
	client := newLLMClient()
	question := cfg.Concept.ProbeQuestion
	if question == "" {
		question = condition.DefaultProbeQuestion
	}

	resp, err := client.Complete(cmd.Context(), llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: question}},
		MaxTokens:   1,
		LogProbs:    true,
		TopLogProbs: cfg.Model.TopLogProbs,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "\nfirst-step top-%d for %q:\n", cfg.Model.TopLogProbs, question)
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CANDIDATE\tOBSERVABLE\tLOGPROB")
	for i := range vocab.Candidates {
		c := &vocab.Candidates[i]
		lp, found := firstStepLogProb(resp.FirstStep, c)
		if found {
			fmt.Fprintf(w, "%s\ttrue\t%.4f\n", c.Name, lp)
		} else {
			fmt.Fprintf(w, "%s\tfalse\t\n", c.Name)
		}
	}
	return w.Flush()
}

// firstStepLogProb finds the best-ranked top-K entry matching the candidate.
func firstStepLogProb(dist []llm.TokenLogProb, c *concept.Candidate) (float64, bool) {
	best := 0.0
	found := false
	for _, entry := range dist {
		if !c.Matches(entry.Token) {
			continue
		}
		if !found || entry.LogProb > best {
			best = entry.LogProb
			found = true
		}
	}
	return best, found
}

func init() {
	vocabCmd.Flags().BoolVar(&vocabFlags.probe, "probe", false, "send the probe question and report observable candidates")
	rootCmd.AddCommand(vocabCmd)
}

// Package main implements schema-inspect, a tool for checking question set
// files and stored drafts against the compiled application schema.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"portal-workers/internal/form/schema"
	"portal-workers/internal/models"
	"portal-workers/pkg/registry"

	"github.com/spf13/cobra"
)

// errInvalid makes the process exit non-zero after the report was printed.
var errInvalid = errors.New("draft is invalid")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "schema-inspect",
		Short:         "Inspect application question sets",
		Long:          "Compiles question set files (JSON or YAML), validates draft records against them and prints review summaries.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("questions", "q", "", "Path to question set file (required)")
	_ = root.MarkPersistentFlagRequired("questions")

	root.AddCommand(newCompileCmd(), newValidateCmd(), newReviewCmd(), newAddQuestionCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func loadQuestions(cmd *cobra.Command) (*registry.QuestionSetFile, *schema.CompiledSchema, error) {
	path, _ := cmd.Flags().GetString("questions")
	f, err := registry.LoadQuestionSet(path)
	if err != nil {
		return nil, nil, err
	}
	return f, schema.Compile(f.QuestionSet()), nil
}

func loadDraft(path string) (models.ApplicantDraft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read draft file: %w", err)
	}
	var d models.ApplicantDraft
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft JSON: %w", err)
	}
	return d, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

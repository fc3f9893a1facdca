package main

import (
	"fmt"

	"portal-workers/internal/form/review"
	"portal-workers/internal/models"

	"github.com/spf13/cobra"
)

func newReviewCmd() *cobra.Command {
	var draftPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "review",
		Short: "Print the review summary of a draft",
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, _, err := loadQuestions(cmd)
			if err != nil {
				return err
			}
			d, err := loadDraft(draftPath)
			if err != nil {
				return err
			}

			entries := review.Summarize(f.QuestionSet(), d)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), entries)
			}

			var current models.Section
			for _, e := range entries {
				if e.Section != current {
					current = e.Section
					fmt.Fprintf(cmd.OutOrStdout(), "== %s ==\n", current)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", e.Title, e.Answer)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&draftPath, "draft", "d", "", "Path to draft JSON file (required)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	_ = cmd.MarkFlagRequired("draft")
	return cmd
}

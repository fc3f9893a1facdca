package main

import (
	"fmt"
	"os"
	"strings"

	"portal-workers/internal/models"
	"portal-workers/pkg/registry"

	"github.com/spf13/cobra"
)

func newAddQuestionCmd() *cobra.Command {
	var (
		q       models.QuestionDefinition
		section string
		options string
	)

	cmd := &cobra.Command{
		Use:   "add-question",
		Short: "Append a question to a question set file",
		Long:  "Appends a question to the given section, checks the result and writes the file back in its own format.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, _ := cmd.Flags().GetString("questions")
			f, err := registry.LoadQuestionSet(path)
			if err != nil {
				return err
			}
			format, _ := registry.FormatOf(path)

			if options != "" {
				for _, opt := range strings.Split(options, ",") {
					if opt = strings.TrimSpace(opt); opt != "" {
						q.Options = append(q.Options, opt)
					}
				}
			}
			sec := models.Section(section)
			q.Position = len(f.Questions[sec])
			if f.Questions == nil {
				f.Questions = map[models.Section][]models.QuestionDefinition{}
			}
			f.Questions[sec] = append(f.Questions[sec], q)

			data, err := registry.Write(f, format)
			if err != nil {
				return err
			}
			// Re-parse so the file on disk always passes the same checks as a load.
			if _, err := registry.Parse(data, format); err != nil {
				return err
			}
			if err := os.WriteFile(path, data, 0o644); err != nil {
				return fmt.Errorf("failed to write question set: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s to %s (%d questions)\n", q.ID, sec, len(f.Questions[sec]))
			return nil
		},
	}

	cmd.Flags().StringVar(&section, "section", "", "Section, e.g. Questionnaire (required)")
	cmd.Flags().StringVar(&q.ID, "id", "", "Question id (required)")
	cmd.Flags().StringVar(&q.Title, "title", "", "Question title (required)")
	cmd.Flags().StringVar((*string)(&q.Type), "type", string(models.QuestionTypeShortAnswer), "Question type")
	cmd.Flags().StringVar(&q.FormInput, "form-input", "", "Stored field name")
	cmd.Flags().StringVar(&options, "options", "", "Comma separated option labels")
	cmd.Flags().BoolVar(&q.Other, "other", false, "Offer an \"other\" choice")
	cmd.Flags().BoolVar(&q.Required, "required", false, "Mark the question required")
	cmd.Flags().StringVar(&q.MaxWords, "max-words", "", "Word limit for long answers")
	for _, name := range []string{"section", "id", "title"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

package main

import (
	"portal-workers/internal/common/validation"
	"portal-workers/internal/models"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	var draftPath, section string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a draft record against a question set",
		Long:  "Prints the validation result as JSON. Exits non-zero when the draft is invalid.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, cs, err := loadQuestions(cmd)
			if err != nil {
				return err
			}
			d, err := loadDraft(draftPath)
			if err != nil {
				return err
			}

			var res *validation.ValidationResult
			if section != "" {
				res = cs.ValidateSection(d, models.Section(section))
			} else {
				res = cs.Validate(d)
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Valid {
				return errInvalid
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&draftPath, "draft", "d", "", "Path to draft JSON file (required)")
	cmd.Flags().StringVarP(&section, "section", "s", "", "Validate a single section, e.g. BasicInfo")
	_ = cmd.MarkFlagRequired("draft")
	return cmd
}

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"portal-workers/internal/common/validation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const questionsYAML = `
eventId: hack-2026
questions:
  BasicInfo:
    - id: q-color
      title: Favourite colour
      type: Select All
      formInput: favColor
      options: [Red, Blue]
      other: true
      required: true
  Questionnaire:
    - id: q-why
      title: Why?
      type: Long Answer
      formInput: why
      maxWords: "5"
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCompile(t *testing.T) {
	questions := writeFile(t, "q.yaml", questionsYAML)

	out, err := execute(t, "compile", "-q", questions)
	require.NoError(t, err)
	assert.Contains(t, out, "event hack-2026: 2 fields")
	assert.Contains(t, out, "basicInfo.favColor")
	assert.Contains(t, out, "basicInfo.otherFavColor")

	out, err = execute(t, "compile", "-q", questions, "--json-schema")
	require.NoError(t, err)
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Contains(t, doc, "properties")
}

func TestValidate(t *testing.T) {
	questions := writeFile(t, "q.yaml", questionsYAML)

	t.Run("valid", func(t *testing.T) {
		draft := writeFile(t, "d.json", `{"basicInfo":{"favColor":{"red":true}},"questionnaire":{"why":"one two three four five"}}`)
		out, err := execute(t, "validate", "-q", questions, "-d", draft)
		require.NoError(t, err)

		var res validation.ValidationResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		assert.True(t, res.Valid)
	})

	t.Run("invalid", func(t *testing.T) {
		draft := writeFile(t, "d.json", `{"basicInfo":{"favColor":{"other":true}},"questionnaire":{"why":"one two three four five six"}}`)
		out, err := execute(t, "validate", "-q", questions, "-d", draft)
		assert.ErrorIs(t, err, errInvalid)

		var res validation.ValidationResult
		require.NoError(t, json.Unmarshal([]byte(out), &res))
		codes := map[string]string{}
		for _, e := range res.Errors {
			codes[e.Field] = e.Code
		}
		assert.Equal(t, validation.CodeOtherRequired, codes["basicInfo.otherFavColor"])
		assert.Equal(t, validation.CodeWordLimit, codes["questionnaire.why"])
	})

	t.Run("single section", func(t *testing.T) {
		draft := writeFile(t, "d.json", `{"basicInfo":{"favColor":{"red":true}},"questionnaire":{"why":"one two three four five six"}}`)
		_, err := execute(t, "validate", "-q", questions, "-d", draft, "-s", "BasicInfo")
		assert.NoError(t, err)
	})

	t.Run("missing draft flag", func(t *testing.T) {
		_, err := execute(t, "validate", "-q", questions)
		assert.Error(t, err)
	})
}

func TestReview(t *testing.T) {
	questions := writeFile(t, "q.yaml", questionsYAML)
	draft := writeFile(t, "d.json", `{"basicInfo":{"favColor":{"red":true,"other":true},"otherFavColor":"Teal"}}`)

	out, err := execute(t, "review", "-q", questions, "-d", draft)
	require.NoError(t, err)
	assert.Equal(t, "== BasicInfo ==\nFavourite colour: Red, Teal\n== Questionnaire ==\nWhy?: Not answered\n", out)
}

func TestAddQuestion(t *testing.T) {
	questions := writeFile(t, "q.yaml", questionsYAML)

	out, err := execute(t, "add-question", "-q", questions,
		"--section", "Skills", "--id", "q-lang", "--title", "Languages",
		"--type", "Select All", "--form-input", "languages", "--options", "Go, Rust ,", "--other")
	require.NoError(t, err)
	assert.Equal(t, "added q-lang to Skills (1 questions)\n", out)

	out, err = execute(t, "compile", "-q", questions)
	require.NoError(t, err)
	assert.Contains(t, out, "skills.languages")
	assert.Contains(t, out, "skills.otherLanguages")

	t.Run("duplicate id is not written", func(t *testing.T) {
		before, err := os.ReadFile(questions)
		require.NoError(t, err)

		_, err = execute(t, "add-question", "-q", questions, "--section", "Skills", "--id", "q-why", "--title", "Again")
		assert.ErrorContains(t, err, `duplicate id "q-why"`)

		after, err := os.ReadFile(questions)
		require.NoError(t, err)
		assert.Equal(t, before, after)
	})
}

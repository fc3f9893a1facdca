package registry

import (
	"testing"

	"portal-workers/internal/form/fieldpath"
	"portal-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRequired(t *testing.T) {
	tests := []struct {
		name  string
		field Field
		group bool
		want  bool
	}{
		{name: "override true wins over optional group", field: Field{RequiredOverride: boolPtr(true)}, group: false, want: true},
		{name: "override false wins over required group", field: Field{RequiredOverride: boolPtr(false)}, group: true, want: false},
		{name: "inherit required", field: Field{RequiredFromGroup: true}, group: true, want: true},
		{name: "inherit optional", field: Field{RequiredFromGroup: true}, group: false, want: false},
		{name: "neither is optional", field: Field{}, group: true, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveRequired(tt.field, tt.group))
		})
	}
}

func TestEffectiveInput(t *testing.T) {
	tests := []struct {
		name        string
		section     models.Section
		question    models.QuestionDefinition
		wantSection models.Section
		wantInput   string
		wantOK      bool
	}{
		{
			name:        "plain question",
			section:     models.SectionQuestionnaire,
			question:    models.QuestionDefinition{Type: models.QuestionTypeShortAnswer, FormInput: "why"},
			wantSection: models.SectionQuestionnaire,
			wantInput:   "why",
			wantOK:      true,
		},
		{
			name:        "plain question without input",
			section:     models.SectionQuestionnaire,
			question:    models.QuestionDefinition{Type: models.QuestionTypeShortAnswer},
			wantSection: models.SectionQuestionnaire,
		},
		{
			name:        "school resolves through registry",
			section:     models.SectionQuestionnaire,
			question:    models.QuestionDefinition{Type: models.QuestionTypeSchool},
			wantSection: models.SectionBasicInfo,
			wantInput:   "school",
			wantOK:      true,
		},
		{
			name:        "explicit input on a fixed question",
			section:     models.SectionBasicInfo,
			question:    models.QuestionDefinition{Type: models.QuestionTypeCountry, FormInput: "country"},
			wantSection: models.SectionBasicInfo,
			wantInput:   "country",
			wantOK:      true,
		},
		{
			name:        "fan-out without input",
			section:     models.SectionSkills,
			question:    models.QuestionDefinition{Type: models.QuestionTypePortfolio},
			wantSection: models.SectionSkills,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sec, input, ok := EffectiveInput(tt.section, tt.question)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantSection, sec)
			assert.Equal(t, tt.wantInput, input)
		})
	}
}

func TestPaths(t *testing.T) {
	q := models.QuestionDefinition{Type: models.QuestionTypeMajor}
	main, ok := MainPath(models.SectionBasicInfo, q)
	require.True(t, ok)
	assert.Equal(t, fieldpath.FieldPath("basicInfo.major"), main)

	other, ok := OtherPath(models.SectionBasicInfo, q)
	require.True(t, ok)
	assert.Equal(t, fieldpath.FieldPath("basicInfo.otherMajor"), other)

	e, ok := Lookup(models.QuestionTypePortfolio)
	require.True(t, ok)
	assert.True(t, IsFanOut(models.QuestionTypePortfolio))
	assert.False(t, IsFanOut(models.QuestionTypeSchool))
	assert.Equal(t, []fieldpath.FieldPath{
		"skills.resume", "skills.github", "skills.linkedin", "skills.portfolio",
	}, FanOutPaths(e))
	assert.Equal(t, models.QuestionTypeUpload, FieldType(e.Fields[0], models.QuestionTypePortfolio))
}

func TestMajorLabel(t *testing.T) {
	label, ok := MajorLabel("computerScience", nil)
	require.True(t, ok)
	assert.Equal(t, "Computer Science", label)

	label, ok = MajorLabel("marineBiology", []string{"Marine Biology", "Geology"})
	require.True(t, ok)
	assert.Equal(t, "Marine Biology", label)

	_, ok = MajorLabel("alchemy", nil)
	assert.False(t, ok)

	assert.Len(t, MajorOrder, len(MajorLabels))
}

package registry

import "portal-workers/internal/models"

// MajorLabels maps stored major keys to display labels.
var MajorLabels = map[string]string{
	"computerScience":       "Computer Science",
	"computerEngineering":   "Computer Engineering",
	"electricalEngineering": "Electrical Engineering",
	"mechanicalEngineering": "Mechanical Engineering",
	"softwareEngineering":   "Software Engineering",
	"dataScience":           "Data Science",
	"mathematics":           "Mathematics",
	"statistics":            "Statistics",
	"physics":               "Physics",
	"biology":               "Biology",
	"chemistry":             "Chemistry",
	"cognitiveSystems":      "Cognitive Systems",
	"business":              "Business",
	"commerce":              "Commerce",
	"economics":             "Economics",
	"design":                "Design",
	"humanities":            "Humanities",
	"socialSciences":        "Social Sciences",
	"fineArts":              "Fine Arts",
	"healthSciences":        "Health Sciences",
	"undecided":             "Undecided",
}

// MajorOrder fixes the display order of MajorLabels.
var MajorOrder = []string{
	"computerScience",
	"computerEngineering",
	"electricalEngineering",
	"mechanicalEngineering",
	"softwareEngineering",
	"dataScience",
	"mathematics",
	"statistics",
	"physics",
	"biology",
	"chemistry",
	"cognitiveSystems",
	"business",
	"commerce",
	"economics",
	"design",
	"humanities",
	"socialSciences",
	"fineArts",
	"healthSciences",
	"undecided",
}

// MajorLabel resolves a stored major key, falling back to the question's own
// options when the key is not in the static table.
func MajorLabel(key string, options []string) (string, bool) {
	if label, ok := MajorLabels[key]; ok {
		return label, true
	}
	for _, opt := range options {
		if models.OptionKey(opt) == key {
			return opt, true
		}
	}
	return "", false
}

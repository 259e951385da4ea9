// Package selfreport extracts structured stress, sleepiness, and sharpness
// ratings from the freetext comments attached to cognitive test results.
package selfreport

import (
	"regexp"
	"strconv"
	"strings"
)

// Rating patterns tolerate the misspellings and variants seen in real
// comment data, e.g. "sleapiness: 6/10" or "Subjective sharpness 8 / 10".
var (
	stressRE     = regexp.MustCompile(`(?i)stress[:\s]*(\d+\.?\d*)\s*/\s*10`)
	sleepinessRE = regexp.MustCompile(`(?i)(?:sleep(?:iness)?|sleapiness)[:\s]*(\d+\.?\d*)\s*/\s*10`)
	sharpnessRE  = regexp.MustCompile(`(?i)(?:subjective\s+)?sharpness[:\s]*(\d+\.?\d*)\s*/\s*10`)
	ratingLineRE = regexp.MustCompile(`(?im)^.*(?:stress|sleep(?:iness)?|sleapiness|sharpness)[:\s]*\d+\.?\d*\s*/\s*10.*$`)
)

const maxNoteLen = 200

// Report holds the ratings parsed out of one comment. Nil means the rating
// was not mentioned.
type Report struct {
	Stress      *float64 `json:"stress"`
	Sleepiness  *float64 `json:"sleepiness"`
	Sharpness   *float64 `json:"sharpness"`
	ContextNote string   `json:"context_note"`
}

// Parse extracts ratings and the remaining freetext from a single comment.
func Parse(text string) Report {
	if strings.TrimSpace(text) == "" {
		return Report{}
	}
	return Report{
		Stress:      extract(stressRE, text),
		Sleepiness:  extract(sleepinessRE, text),
		Sharpness:   extract(sharpnessRE, text),
		ContextNote: contextNote(text),
	}
}

func extract(re *regexp.Regexp, text string) *float64 {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return nil
	}
	return &v
}

// contextNote strips the rating lines and joins the remaining non-empty
// lines, truncating long notes.
func contextNote(text string) string {
	cleaned := ratingLineRE.ReplaceAllString(text, "")
	var lines []string
	for _, ln := range strings.Split(strings.TrimSpace(cleaned), "\n") {
		if ln = strings.TrimSpace(ln); ln != "" {
			lines = append(lines, ln)
		}
	}
	note := strings.Join(lines, " ")
	if len(note) > maxNoteLen {
		note = note[:maxNoteLen] + "..."
	}
	return note
}

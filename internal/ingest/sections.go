package ingest

import (
	"regexp"
	"strconv"
	"strings"
)

// GeneralSection names text that precedes every section header.
const GeneralSection = "General"

var sectionHeader = regexp.MustCompile(`(?m)^[ \t]*SECTION[ \t]+(\d+)[ \t]*:[ \t]*([^\n]*?)[ \t]*$`)

// Section is one "SECTION N: TITLE" block of a policy document.
type Section struct {
	Number  int    `json:"section_number"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Start   int    `json:"start"`
}

// ExtractSections finds section headers and returns each section with the
// text that runs until the next header.
func ExtractSections(text string) []Section {
	matches := sectionHeader.FindAllStringSubmatchIndex(text, -1)
	sections := make([]Section, 0, len(matches))
	for i, m := range matches {
		num, err := strconv.Atoi(text[m[2]:m[3]])
		if err != nil {
			continue
		}
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		sections = append(sections, Section{
			Number:  num,
			Title:   strings.TrimSpace(text[m[4]:m[5]]),
			Content: strings.TrimSpace(text[m[1]:end]),
			Start:   m[0],
		})
	}
	return sections
}

// sectionAt returns the title of the last section starting at or before offset.
func sectionAt(sections []Section, offset int) string {
	name := GeneralSection
	for _, s := range sections {
		if s.Start > offset {
			break
		}
		name = s.Title
		if name == "" {
			name = "Section " + strconv.Itoa(s.Number)
		}
	}
	return name
}

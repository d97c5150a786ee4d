package analysis

import (
	"strings"

	"github.com/medreport-explainer/internal/domain"
)

// IntroductionTitle names the section holding text that precedes the first header.
const IntroductionTitle = "Introduction"

// minSectionSpan is the noise threshold: sections whose source span is this short or
// shorter are dropped.
const minSectionSpan = 10

var sectionHeaders = []string{
	"findings",
	"impression",
	"conclusion",
	"interpretation",
	"technique",
	"exam",
	"history",
	"clinical indication",
	"result",
	"results",
	"reference range",
	"comments",
	"plan",
	"assessment",
	"diagnosis",
	"discharge diagnoses",
	"discharge medications",
	"hospital course",
	"gross description",
	"microscopic description",
}

type sectionBuilder struct {
	title  string
	header string
	lines  []string
}

func (b *sectionBuilder) section() (domain.Section, bool) {
	content := strings.TrimSpace(strings.Join(b.lines, "\n"))
	if content == "" {
		return domain.Section{}, false
	}
	if len(b.header)+len(content) <= minSectionSpan {
		return domain.Section{}, false
	}
	return domain.Section{Title: b.title, Content: content}, true
}

// SegmentText splits text into titled sections in a single ordered pass. A trimmed line
// opens a new section when it equals a known header word or starts with "<header>:",
// compared case-insensitively; text after the colon becomes the first content line.
// Lines before the first header form the Introduction section.
//
// Sections with no content, or whose header line plus content spans at most ten
// characters, are dropped as noise.
func SegmentText(text string) []domain.Section {
	var sections []domain.Section
	current := &sectionBuilder{title: IntroductionTitle}

	flush := func() {
		if s, ok := current.section(); ok {
			sections = append(sections, s)
		}
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		trimmed := strings.TrimSpace(line)

		header, rest, ok := matchHeader(trimmed)
		if !ok {
			current.lines = append(current.lines, line)
			continue
		}

		flush()
		current = &sectionBuilder{title: capitalize(header), header: header}
		if rest != "" {
			current.lines = append(current.lines, rest)
		}
	}
	flush()

	return sections
}

func matchHeader(trimmed string) (header, rest string, ok bool) {
	for _, h := range sectionHeaders {
		if len(trimmed) < len(h) || !strings.EqualFold(trimmed[:len(h)], h) {
			continue
		}
		tail := trimmed[len(h):]
		if tail == "" {
			return h, "", true
		}
		if tail[0] == ':' {
			return h, strings.TrimSpace(tail[1:]), true
		}
	}
	return "", "", false
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

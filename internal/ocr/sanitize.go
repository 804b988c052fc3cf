package ocr

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	conversationalPrefixes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^Sure,\s*`),
		regexp.MustCompile(`(?i)^Here\s+is\s+(?:the\s+)?(?:extracted\s+)?(?:text\s+)?(?:from\s+the\s+(?:images?|document|pdf))?[:\s]*`),
		regexp.MustCompile(`(?i)^Here's\s+(?:the\s+)?(?:extracted\s+)?(?:text\s+)?(?:from\s+the\s+(?:images?|document|pdf))?[:\s]*`),
		regexp.MustCompile(`(?i)^Below\s+is\s+(?:the\s+)?(?:extracted\s+)?(?:text\s+)?[:\s]*`),
	}
	leadingDashRule = regexp.MustCompile(`^\s*-{3,}\s*`)
	leadingStarRule = regexp.MustCompile(`^\s*\*{3,}\s*`)
	boldOnlyLine    = regexp.MustCompile(`^\s*\*\*.+\*\*\s*$`)
)

// Sanitize strips conversational wrappers, horizontal rules, bold-only
// heading lines and code fences that vision models add despite
// instructions, then NFC-normalizes the result and drops replacement
// characters.
func Sanitize(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}

	for _, re := range conversationalPrefixes {
		if loc := re.FindStringIndex(s); loc != nil {
			s = strings.TrimSpace(s[loc[1]:])
		}
	}

	for {
		prev := s
		s = strings.TrimSpace(leadingDashRule.ReplaceAllString(s, ""))
		s = strings.TrimSpace(leadingStarRule.ReplaceAllString(s, ""))
		if s == prev {
			break
		}
	}

	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "---" || trimmed == "***" || boldOnlyLine.MatchString(line) {
			continue
		}
		kept = append(kept, line)
	}
	s = strings.Join(kept, "\n")

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx == -1 {
			s = strings.TrimSpace(strings.TrimLeft(s, "`"))
		} else {
			s = strings.TrimSpace(s[idx+1:])
			s = strings.TrimSpace(strings.TrimSuffix(s, "```"))
		}
	}

	s = norm.NFC.String(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "\uFFFD", "")
	s = strings.ToValidUTF8(s, "")
	return strings.TrimSpace(s)
}

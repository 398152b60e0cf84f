package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// priceKeywords trigger the price-bolding pass when present in the user
// message.
var priceKeywords = []string{"价格", "预算", "多少钱", "人均", "消费"}

// pricePattern matches currency-like fragments. Alternatives are ordered
// longest-context first so "人均200元" is captured whole rather than as a bare
// "200元".
var pricePattern = regexp.MustCompile(`人均\s*\d+(?:\s*元)?|预算\s*\d+(?:\s*元)?|¥\s*\d+|￥\s*\d+|RMB\s*\d+|\d+\s*元`)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	numberedItem = regexp.MustCompile(`^[1-5]\.`)
)

// Format rewrites a raw upstream reply into a more readable form. The stages
// are pure string transforms applied in a fixed order: price bolding (only
// when the user asked about prices), list spacing, paragraph tightening,
// heading spacing. Later stages rely on the blank lines earlier stages insert.
func Format(raw, userMsg string) string {
	if raw == "" {
		return raw
	}
	formatted := raw
	if mentionsPrice(userMsg) {
		formatted = boldPrices(formatted)
	}
	formatted = spaceListItems(formatted)
	formatted = tightenParagraphs(formatted)
	formatted = spaceHeadings(formatted)
	return formatted
}

func mentionsPrice(userMsg string) bool {
	lower := strings.ToLower(userMsg)
	for _, kw := range priceKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// boldPrices wraps currency-like fragments of each line in ** markers.
// Fragments already inside markers are left alone so the pass is safe to
// re-apply.
func boldPrices(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = boldPricesInLine(line)
	}
	return strings.Join(lines, "\n")
}

func boldPricesInLine(line string) string {
	matches := pricePattern.FindAllStringIndex(line, -1)
	if len(matches) == 0 {
		return line
	}

	var b strings.Builder
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		b.WriteString(line[last:start])
		if alreadyBold(line, start, end) {
			b.WriteString(line[start:end])
		} else {
			b.WriteString("**")
			b.WriteString(line[start:end])
			b.WriteString("**")
		}
		last = end
	}
	b.WriteString(line[last:])
	return b.String()
}

func alreadyBold(line string, start, end int) bool {
	return start >= 2 && line[start-2:start] == "**" &&
		end+2 <= len(line) && line[end:end+2] == "**"
}

func isListItem(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	if strings.HasPrefix(trimmed, "•") ||
		strings.HasPrefix(trimmed, "-") ||
		strings.HasPrefix(trimmed, "*") {
		return true
	}
	return numberedItem.MatchString(trimmed)
}

// spaceListItems ensures a blank line before the first item of a list run and
// after its last item, without touching item content or order.
func spaceListItems(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		if !isListItem(line) {
			out = append(out, line)
			continue
		}
		firstOfRun := i == 0 || !isListItem(lines[i-1])
		if firstOfRun && len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
			out = append(out, "")
		}
		out = append(out, line)

		lastOfRun := i == len(lines)-1 || !isListItem(lines[i+1])
		if lastOfRun && i < len(lines)-1 && strings.TrimSpace(lines[i+1]) != "" {
			out = append(out, "")
		}
	}
	return strings.Join(out, "\n")
}

// tightenParagraphs collapses runs of three or more newlines to two and
// re-joins each line on the Chinese sentence enders. The rejoin is a faithful
// reconstruction, so content never changes.
func tightenParagraphs(text string) string {
	text = multiNewline.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			lines[i] = rejoinSentences(line)
		}
	}
	return strings.Join(lines, "\n")
}

func rejoinSentences(line string) string {
	var b strings.Builder
	b.Grow(len(line))
	start := 0
	for idx, r := range line {
		switch r {
		case '。', '！', '？':
			end := idx + utf8.RuneLen(r)
			b.WriteString(line[start:end])
			start = end
		}
	}
	b.WriteString(line[start:])
	return b.String()
}

// spaceHeadings ensures each #-style heading line has a blank line on both
// sides.
func spaceHeadings(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		if !strings.HasPrefix(strings.TrimSpace(line), "#") {
			out = append(out, line)
			continue
		}
		if len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
			out = append(out, "")
		}
		out = append(out, line)
		if i < len(lines)-1 && strings.TrimSpace(lines[i+1]) != "" {
			out = append(out, "")
		}
	}
	return strings.Join(out, "\n")
}

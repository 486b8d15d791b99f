package markdown

import (
	"regexp"
	"strings"
)

var (
	headingLine  = regexp.MustCompile(`^#{1,6} `)
	listItemLine = regexp.MustCompile(`^\s*([*+-]|\d+\.) `)
	spaceRun     = regexp.MustCompile(`[ \t]{2,}`)
	emptyLink    = regexp.MustCompile(`(^|[^!\\])\[\]\([^)]*\)`)
)

// postProcess tidies flattened Markdown. Lines inside fenced code blocks are
// left as they are.
func (c *Converter) postProcess(md string) string {
	md = strings.ReplaceAll(md, "\r\n", "\n")
	lines := collapseBlankLines(strings.Split(md, "\n"))
	lines = separateBlocks(lines)
	lines = splitClosingFences(lines)
	lines = mapProse(lines, func(line string) string {
		return emptyLink.ReplaceAllString(line, "$1")
	})
	lines = mapProse(lines, func(line string) string {
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		body := spaceRun.ReplaceAllString(line[indent:], " ")
		return strings.TrimRight(line[:indent]+body, " \t")
	})
	if c.opts.BodyWidth > 0 {
		lines = wrap(lines, c.opts.BodyWidth)
	}
	lines = collapseBlankLines(lines)
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// fenceLen returns the length of the backtick run opening line, or 0 when
// line does not start with a fence.
func fenceLen(line string) int {
	t := strings.TrimSpace(line)
	n := len(t) - len(strings.TrimLeft(t, "`"))
	if n < 3 {
		return 0
	}
	return n
}

// fences follows fenced code blocks line by line. A block only closes on a
// line holding nothing but a backtick run at least as long as its opener.
type fences struct {
	open int
}

// step consumes line and reports whether it opens or closes a block.
func (f *fences) step(line string) bool {
	n := fenceLen(line)
	if n == 0 {
		return false
	}
	t := strings.TrimSpace(line)
	if f.open == 0 {
		if strings.Contains(t[n:], "`") {
			return false
		}
		f.open = n
		return true
	}
	if n >= f.open && n == len(t) {
		f.open = 0
		return true
	}
	return false
}

func (f *fences) inside() bool { return f.open > 0 }

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// mapProse applies fn to every line outside fenced code blocks.
func mapProse(lines []string, fn func(string) string) []string {
	out := make([]string, 0, len(lines))
	var f fences
	for _, line := range lines {
		if f.step(line) {
			out = append(out, strings.TrimRight(line, " \t"))
			continue
		}
		if f.inside() {
			out = append(out, line)
			continue
		}
		out = append(out, fn(line))
	}
	return out
}

// collapseBlankLines turns runs of blank lines outside code into one empty line.
func collapseBlankLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	var f fences
	for _, line := range lines {
		f.step(line)
		if !f.inside() && isBlank(line) {
			if len(out) > 0 && out[len(out)-1] == "" {
				continue
			}
			line = ""
		}
		out = append(out, line)
	}
	return out
}

// separateBlocks puts a blank line around headings and around each run of
// list items when they touch other text.
func separateBlocks(lines []string) []string {
	out := make([]string, 0, len(lines)+8)
	var f fences
	blankBefore := func() {
		if len(out) > 0 && out[len(out)-1] != "" {
			out = append(out, "")
		}
	}
	for i, line := range lines {
		if f.step(line) || f.inside() {
			out = append(out, line)
			continue
		}

		var next string
		if i+1 < len(lines) {
			next = lines[i+1]
		}

		switch {
		case headingLine.MatchString(line):
			blankBefore()
			out = append(out, line)
			if !isBlank(next) {
				out = append(out, "")
			}
		case listItemLine.MatchString(line):
			prev := ""
			if len(out) > 0 {
				prev = out[len(out)-1]
			}
			if prev != "" && !listItemLine.MatchString(prev) && !isIndented(prev) {
				out = append(out, "")
			}
			out = append(out, line)
			if !isBlank(next) && !listItemLine.MatchString(next) && !isIndented(next) {
				out = append(out, "")
			}
		default:
			out = append(out, line)
		}
	}
	return out
}

func isIndented(line string) bool {
	return strings.HasPrefix(line, "  ") || strings.HasPrefix(line, "\t")
}

// splitClosingFences moves a fence glued to the end of a code line onto its
// own line. Only a run exactly as long as the opener counts.
func splitClosingFences(lines []string) []string {
	out := make([]string, 0, len(lines))
	var f fences
	for _, line := range lines {
		if f.step(line) {
			out = append(out, line)
			continue
		}
		if f.inside() {
			if code, ok := gluedFence(line, f.open); ok {
				out = append(out, code, strings.Repeat("`", f.open))
				f.open = 0
				continue
			}
		}
		out = append(out, line)
	}
	return out
}

func gluedFence(line string, n int) (string, bool) {
	t := strings.TrimRight(line, " \t")
	rest, ok := strings.CutSuffix(t, strings.Repeat("`", n))
	if !ok || strings.HasSuffix(rest, "`") {
		return "", false
	}
	code := strings.TrimRight(rest, " \t")
	if strings.TrimSpace(code) == "" {
		return "", false
	}
	return code, true
}

// wrap breaks paragraph lines longer than width at spaces. Headings, list
// items, tables, quotes and code are not wrapped.
func wrap(lines []string, width int) []string {
	out := make([]string, 0, len(lines))
	var f fences
	for _, line := range lines {
		fence := f.step(line)
		trimmed := strings.TrimSpace(line)
		if fence || f.inside() || len(line) <= width || isIndented(line) ||
			headingLine.MatchString(line) || listItemLine.MatchString(line) ||
			strings.HasPrefix(trimmed, "|") || strings.HasPrefix(trimmed, ">") {
			out = append(out, line)
			continue
		}
		var cur strings.Builder
		for _, word := range strings.Fields(line) {
			if cur.Len() > 0 && cur.Len()+1+len(word) > width {
				out = append(out, cur.String())
				cur.Reset()
			}
			if cur.Len() > 0 {
				cur.WriteByte(' ')
			}
			cur.WriteString(word)
		}
		if cur.Len() > 0 {
			out = append(out, cur.String())
		}
	}
	return out
}

package markdown

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Frontmatter is the YAML header written before a document body.
type Frontmatter struct {
	Title  string `yaml:"title"`
	Source string `yaml:"source"`
	Date   string `yaml:"date"`
}

// WithTitle prefixes body with "# title" unless it already starts with a
// level-1 heading.
func WithTitle(title, body string) string {
	body = strings.TrimSpace(body)
	if strings.HasPrefix(body, "# ") {
		return body
	}
	if body == "" {
		return "# " + title
	}
	return "# " + title + "\n\n" + body
}

// Compose builds the final document text: the body with its title heading and,
// when includeFrontmatter is set, a YAML block for title, source and date.
func Compose(title, sourceURL, body string, includeFrontmatter bool, date time.Time) (string, error) {
	doc := WithTitle(title, body)
	if !includeFrontmatter {
		return doc, nil
	}
	fm, err := yaml.Marshal(Frontmatter{
		Title:  title,
		Source: sourceURL,
		Date:   date.Format(time.DateOnly),
	})
	if err != nil {
		return "", fmt.Errorf("marshal frontmatter: %w", err)
	}
	return "---\n" + string(fm) + "---\n\n" + doc, nil
}

// ParseFrontmatter splits a composed document into its frontmatter and body.
// Documents without frontmatter return a nil Frontmatter.
func ParseFrontmatter(doc string) (*Frontmatter, string, error) {
	rest, ok := strings.CutPrefix(doc, "---\n")
	if !ok {
		return nil, doc, nil
	}
	header, body, ok := strings.Cut(rest, "\n---\n")
	if !ok {
		return nil, doc, nil
	}
	var fm Frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return nil, doc, fmt.Errorf("parse frontmatter: %w", err)
	}
	return &fm, strings.TrimLeft(body, "\n"), nil
}

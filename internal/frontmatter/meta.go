package frontmatter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Meta is the typed view of a post's frontmatter.
type Meta struct {
	Title       string   `yaml:"title"`
	Slug        string   `yaml:"slug,omitempty"`
	Date        string   `yaml:"date,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Draft       bool     `yaml:"draft,omitempty"`
	UID         string   `yaml:"uid,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

// dateLayouts are accepted frontmatter date formats, tried in order.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// DecodeMeta parses raw frontmatter into a Meta.
func DecodeMeta(frontmatter []byte) (Meta, error) {
	var m Meta
	if len(frontmatter) == 0 {
		return m, nil
	}
	if err := yaml.Unmarshal(frontmatter, &m); err != nil {
		return Meta{}, fmt.Errorf("decode frontmatter: %w", err)
	}
	return m, nil
}

// ParsedDate returns the post date, or the zero time when no date is set.
func (m Meta) ParsedDate() (time.Time, error) {
	raw := strings.TrimSpace(m.Date)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", m.Date)
}

// EnsureUID ensures fields contains a uid.
//
// It only generates a new uid when the key is missing.
func EnsureUID(fields map[string]any) (uidStr string, changed bool, err error) {
	if fields == nil {
		return "", false, errors.New("fields map is nil")
	}

	if v, ok := fields["uid"]; ok {
		return strings.TrimSpace(fmt.Sprint(v)), false, nil
	}

	uidStr = uuid.NewString()
	fields["uid"] = uidStr
	return uidStr, true, nil
}

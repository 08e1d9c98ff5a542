package frontmatter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplit_NoFrontmatter_ReturnsBodyOnly(t *testing.T) {
	input := []byte("# Title\n\nHello\n")

	fm, body, had, _, err := Split(input)
	require.NoError(t, err)
	require.False(t, had)
	require.Empty(t, fm)
	require.Equal(t, input, body)
}

func TestSplit_YAMLFrontmatter_SplitsFrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\n---\n# Title\n")

	fm, body, had, _, err := Split(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("title: Hello\n"), fm)
	require.Equal(t, []byte("# Title\n"), body)
}

func TestSplit_MissingClosingDelimiter_ReturnsError(t *testing.T) {
	input := []byte("---\ntitle: Hello\n# Title\n")

	_, _, had, _, err := Split(input)
	require.Error(t, err)
	require.False(t, had)
	require.True(t, errors.Is(err, ErrMissingClosingDelimiter))
}

func TestSplit_CRLF_SplitsFrontmatterAndBody(t *testing.T) {
	input := []byte("---\r\ntitle: Hello\r\n---\r\n# Title\r\n")

	fm, body, had, _, err := Split(input)
	require.NoError(t, err)
	require.True(t, had)
	require.Equal(t, []byte("title: Hello\r\n"), fm)
	require.Equal(t, []byte("# Title\r\n"), body)
}

func TestJoin_RoundTripsSplitOutput(t *testing.T) {
	input := []byte("---\ntitle: Hello\n---\nBody text\n")

	fm, body, had, style, err := Split(input)
	require.NoError(t, err)
	require.Equal(t, input, Join(fm, body, had, style))
}

func TestDecodeMeta_TypedFields(t *testing.T) {
	m, err := DecodeMeta([]byte("title: A Post\nslug: a-post\ndate: 2026-03-01\ntags: [go, blog]\ndraft: true\n"))
	require.NoError(t, err)
	require.Equal(t, "A Post", m.Title)
	require.Equal(t, "a-post", m.Slug)
	require.True(t, m.Draft)
	require.Equal(t, []string{"go", "blog"}, m.Tags)

	d, err := m.ParsedDate()
	require.NoError(t, err)
	require.Equal(t, 2026, d.Year())
	require.Equal(t, 3, int(d.Month()))
}

func TestMeta_ParsedDate_Variants(t *testing.T) {
	for _, raw := range []string{"2026-03-01", "2026-03-01T10:30:00", "2026-03-01T10:30:00Z"} {
		m := Meta{Date: raw}
		d, err := m.ParsedDate()
		require.NoError(t, err, raw)
		require.False(t, d.IsZero(), raw)
	}

	m := Meta{Date: "first of march"}
	_, err := m.ParsedDate()
	require.Error(t, err)
}

func TestEnsureUID_GeneratesOnlyWhenMissing(t *testing.T) {
	fields := map[string]any{"title": "x"}

	uid, changed, err := EnsureUID(fields)
	require.NoError(t, err)
	require.True(t, changed)
	require.NotEmpty(t, uid)

	again, changed, err := EnsureUID(fields)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, uid, again)
}

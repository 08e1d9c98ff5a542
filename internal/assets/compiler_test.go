package assets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/blogbuilder/internal/config"
)

func TestCollectClasses(t *testing.T) {
	docs := [][]byte{
		[]byte(`<html><body><div class="wrap muted"><span class="tag-pill">x</span></div></body></html>`),
		[]byte(`<html><body><p class="small">y</p></body></html>`),
	}

	used, err := CollectClasses(docs)
	require.NoError(t, err)

	for _, want := range []string{"wrap", "muted", "tag-pill", "small"} {
		require.Contains(t, used, want)
	}
	require.NotContains(t, used, "pagination")
}

func TestCompile_PurgesUnusedUtilities(t *testing.T) {
	compiler := NewCompiler(config.StylesConfig{})

	css, err := compiler.Compile([][]byte{
		[]byte(`<html><body><div class="wrap"><ul class="post-list"><li>x</li></ul></div></body></html>`),
	})
	require.NoError(t, err)

	out := string(css)
	require.Contains(t, out, ".wrap")
	require.Contains(t, out, ".post-list")
	// Unreferenced utility rules are dropped.
	require.NotContains(t, out, ".tag-cloud")
	require.NotContains(t, out, ".pagination")
	// Element defaults always survive.
	require.Contains(t, out, "body {")
	// Highlight palette always present.
	require.Contains(t, out, ".chroma")
}

func TestCompile_PurgeDisabledKeepsEverything(t *testing.T) {
	off := false
	compiler := NewCompiler(config.StylesConfig{Purge: &off})

	css, err := compiler.Compile(nil)
	require.NoError(t, err)
	require.Contains(t, string(css), ".tag-cloud")
	require.Contains(t, string(css), ".pagination")
}

func TestCompile_CustomCSSAppendedVerbatimAndNeverPurged(t *testing.T) {
	customPath := filepath.Join(t.TempDir(), "custom.css")
	custom := ".u-highlight { background: gold; }\n"
	require.NoError(t, os.WriteFile(customPath, []byte(custom), 0o644))

	compiler := NewCompiler(config.StylesConfig{CustomCSS: customPath})

	// No page references u-highlight, it must still be present.
	css, err := compiler.Compile([][]byte{[]byte(`<html><body></body></html>`)})
	require.NoError(t, err)
	require.Contains(t, string(css), ".u-highlight { background: gold; }")
}

func TestCompile_MissingCustomCSSIsNotFatal(t *testing.T) {
	compiler := NewCompiler(config.StylesConfig{CustomCSS: filepath.Join(t.TempDir(), "absent.css")})
	_, err := compiler.Compile(nil)
	require.NoError(t, err)
}

func TestCompile_MediaQueryPurgedWhenEmpty(t *testing.T) {
	compiler := NewCompiler(config.StylesConfig{})

	// Neither post-list nor site-header used: the @media block should vanish.
	css, err := compiler.Compile([][]byte{[]byte(`<html><body><div class="wrap"></div></body></html>`)})
	require.NoError(t, err)
	require.NotContains(t, string(css), "@media (max-width: 540px)")

	// With site-header used, the media block survives with that rule.
	css, err = compiler.Compile([][]byte{[]byte(`<html><body><header class="site-header wrap"></header></body></html>`)})
	require.NoError(t, err)
	require.Contains(t, string(css), "@media (max-width: 540px)")
}

func TestCompile_Deterministic(t *testing.T) {
	compiler := NewCompiler(config.StylesConfig{})
	docs := [][]byte{[]byte(`<html><body><div class="wrap muted"></div></body></html>`)}

	first, err := compiler.Compile(docs)
	require.NoError(t, err)
	second, err := compiler.Compile(docs)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestParseRules_SelectorClasses(t *testing.T) {
	rules := parseRules(".a { color: red; }\n.b .c { color: blue; }\nbody { margin: 0; }")
	require.Len(t, rules, 3)
	require.Equal(t, []string{"a"}, selectorClasses(rules[0].selector))
	require.Equal(t, []string{"b", "c"}, selectorClasses(rules[1].selector))
	require.Empty(t, selectorClasses(rules[2].selector))
}

func TestRuleUsed_MultiSelector(t *testing.T) {
	used := map[string]struct{}{"a": {}}
	rule := parseRules(".a, .b { color: red; }")[0]
	require.True(t, ruleUsed(rule, used))

	rule = parseRules(".b, .c { color: red; }")[0]
	require.False(t, ruleUsed(rule, used))
}

package assets

import (
	"strings"
)

// cssRule is one top-level rule: a selector with its declaration block, or an
// at-rule wrapping nested rules.
type cssRule struct {
	selector string
	body     string
	nested   []cssRule // populated for block at-rules like @media
	atRule   bool
}

// parseRules splits a stylesheet into top-level rules. This is not a full CSS
// parser: it only needs to handle the flat utility rules and @media blocks of
// the embedded stylesheet, which contain no strings with braces.
func parseRules(css string) []cssRule {
	var rules []cssRule
	rest := css
	for {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			break
		}
		selector := strings.TrimSpace(rest[:open])
		body, remainder, ok := matchBlock(rest[open+1:])
		if !ok {
			break
		}
		rule := cssRule{selector: selector, body: body}
		if strings.HasPrefix(selector, "@") {
			rule.atRule = true
			if strings.ContainsRune(body, '{') {
				rule.nested = parseRules(body)
			}
		}
		rules = append(rules, rule)
		rest = remainder
	}
	return rules
}

// matchBlock consumes a brace-balanced block (opening brace already consumed)
// and returns its contents plus the remainder of the input.
func matchBlock(s string) (body, rest string, ok bool) {
	depth := 1
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i], s[i+1:], true
			}
		}
	}
	return "", "", false
}

// selectorClasses extracts class names referenced by a selector.
func selectorClasses(selector string) []string {
	var classes []string
	for i := 0; i < len(selector); i++ {
		if selector[i] != '.' {
			continue
		}
		j := i + 1
		for j < len(selector) && isClassChar(selector[j]) {
			j++
		}
		if j > i+1 {
			classes = append(classes, selector[i+1:j])
		}
		i = j - 1
	}
	return classes
}

func isClassChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_'
}

// purgeRules drops rules whose selectors only reference classes absent from
// used. Selectors with no class reference (element selectors, at-rules without
// nesting) are always kept.
func purgeRules(rules []cssRule, used map[string]struct{}) string {
	var out strings.Builder
	for _, rule := range rules {
		if rule.atRule && rule.nested != nil {
			inner := purgeRules(rule.nested, used)
			if strings.TrimSpace(inner) == "" {
				continue
			}
			out.WriteString(rule.selector)
			out.WriteString(" {\n")
			out.WriteString(inner)
			out.WriteString("}\n")
			continue
		}
		if !ruleUsed(rule, used) {
			continue
		}
		out.WriteString(rule.selector)
		out.WriteString(" {")
		out.WriteString(rule.body)
		out.WriteString("}\n")
	}
	return out.String()
}

func ruleUsed(rule cssRule, used map[string]struct{}) bool {
	classes := selectorClasses(rule.selector)
	if len(classes) == 0 {
		return true
	}
	// A multi-selector rule survives if any of its selectors is usable.
	for _, sel := range strings.Split(rule.selector, ",") {
		selClasses := selectorClasses(sel)
		if len(selClasses) == 0 {
			return true
		}
		all := true
		for _, class := range selClasses {
			if _, ok := used[class]; !ok {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// Package assets compiles the site stylesheet: base styles, syntax highlight
// palette, utility rules purged to the classes actually used, and the user's
// custom CSS appended verbatim.
package assets

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

// CollectClasses parses rendered HTML documents and returns the set of class
// names present in class attributes.
func CollectClasses(documents [][]byte) (map[string]struct{}, error) {
	used := make(map[string]struct{})
	for _, doc := range documents {
		root, err := html.Parse(bytes.NewReader(doc))
		if err != nil {
			return nil, err
		}
		collectNode(root, used)
	}
	return used, nil
}

func collectNode(n *html.Node, used map[string]struct{}) {
	if n.Type == html.ElementNode {
		for _, attr := range n.Attr {
			if attr.Key != "class" {
				continue
			}
			for _, name := range strings.Fields(attr.Val) {
				used[name] = struct{}{}
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectNode(child, used)
	}
}

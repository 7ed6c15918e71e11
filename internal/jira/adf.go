package jira

import (
	"encoding/json"
	"strings"
)

// adfNode is a node of an Atlassian Document Format tree.
type adfNode struct {
	Type    string    `json:"type"`
	Version int       `json:"version,omitempty"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

// NewDocument renders text as an ADF document, one paragraph per non-blank
// line. It returns nil when text has no content.
func NewDocument(text string) *adfNode {
	var paragraphs []adfNode
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		paragraphs = append(paragraphs, adfNode{
			Type:    "paragraph",
			Content: []adfNode{{Type: "text", Text: line}},
		})
	}
	if len(paragraphs) == 0 {
		return nil
	}
	return &adfNode{Type: "doc", Version: 1, Content: paragraphs}
}

// ExtractText walks an ADF document and joins its text nodes with spaces.
// Plain string values are returned as-is.
func ExtractText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var root adfNode
	if err := json.Unmarshal(raw, &root); err != nil {
		return ""
	}
	var parts []string
	var walk func(n adfNode)
	walk = func(n adfNode) {
		if n.Type == "text" {
			parts = append(parts, n.Text)
		}
		for _, c := range n.Content {
			walk(c)
		}
	}
	walk(root)
	return strings.TrimSpace(strings.Join(parts, " "))
}

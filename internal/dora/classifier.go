package dora

import "strings"

// Classifier decides whether an item (by its text and labels) refers to a
// bug or incident fix. It is deliberately pluggable: the keyword heuristic
// can be swapped for a trained classifier without touching the calculator's
// arithmetic.
type Classifier interface {
	IsIncident(text string, labels []string) bool
}

// KeywordClassifier flags items whose text or labels contain any of a
// case-insensitive keyword set
type KeywordClassifier struct {
	keywords []string
}

// NewKeywordClassifier creates the default bug/incident classifier
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		keywords: []string{"hotfix", "incident", "bug", "fix"},
	}
}

// IsIncident reports whether the text or any label matches the keyword set
func (c *KeywordClassifier) IsIncident(text string, labels []string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	for _, l := range labels {
		lowerLabel := strings.ToLower(l)
		for _, kw := range c.keywords {
			if strings.Contains(lowerLabel, kw) {
				return true
			}
		}
	}
	return false
}

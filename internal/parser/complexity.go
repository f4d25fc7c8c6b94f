// File path: internal/parser/complexity.go
package parser

import "strings"

type complexityTier int

const (
	tierStructured complexityTier = iota
	tierPattern
	tierGeneric
)

var branchKeywords = []string{
	"if ", "else", "for ", "while ", "switch ", "case ", "match ",
	"try", "catch", "except", "rescue", "elif ", "when ",
}

type complexityThresholds struct {
	lowLines, lowKeywords   int
	highLines, highKeywords int
}

// Thresholds differ slightly per tier because pattern-tier blocks tend to
// include trailing blank lines the structured tier excludes.
var tierThresholds = map[complexityTier]complexityThresholds{
	tierStructured: {lowLines: 15, lowKeywords: 3, highLines: 60, highKeywords: 10},
	tierPattern:    {lowLines: 20, lowKeywords: 3, highLines: 70, highKeywords: 12},
	tierGeneric:    {lowLines: 40, lowKeywords: 5, highLines: 150, highKeywords: 20},
}

// classifyComplexity grades a block of code on line count and branching
// keyword occurrences. Both factors must sit under the low bounds for "low"
// and over the high bounds for "high"; everything else is "medium".
func classifyComplexity(content string, tier complexityTier) Complexity {
	th := tierThresholds[tier]
	lines := countLines(content)
	keywords := 0
	lowered := strings.ToLower(content)
	for _, kw := range branchKeywords {
		keywords += strings.Count(lowered, kw)
	}
	switch {
	case lines < th.lowLines && keywords < th.lowKeywords:
		return ComplexityLow
	case lines > th.highLines && keywords > th.highKeywords:
		return ComplexityHigh
	default:
		return ComplexityMedium
	}
}

// Package tokenize wraps bleve's built-in English analyzer (Unicode
// tokenizer + lowercase filter + stop-word filter + Porter2 stemmer) as
// the tokenizer-with-stemming-and-stop-words external collaborator spec
// §1 calls for, shared by the Indexer (C11) and the Content
// Deduplicator (C10) so both operate on the same token stream.
package tokenize

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
)

// englishAnalyzer is built once; IndexMapping's AnalyzerNamed("en")
// resolves bleve's registered English analysis pipeline without
// constructing an index.
var englishAnalyzer analysis.Analyzer

func init() {
	m := bleve.NewIndexMapping()
	englishAnalyzer = m.AnalyzerNamed("en")
}

// Tokens runs text through the English analyzer and returns the distinct
// stemmed, stop-word-filtered terms, bounded at maxTokens (spec §3
// Document invariant).
func Tokens(text string, maxTokens int) []string {
	stream := englishAnalyzer.Analyze([]byte(text))

	seen := make(map[string]struct{})
	tokens := make([]string, 0, len(stream))
	for _, tok := range stream {
		term := string(tok.Term)
		if term == "" {
			continue
		}
		if _, ok := seen[term]; ok {
			continue
		}
		seen[term] = struct{}{}
		tokens = append(tokens, term)
		if maxTokens > 0 && len(tokens) >= maxTokens {
			break
		}
	}
	return tokens
}

// TermFrequencies runs text through the English analyzer and returns a
// term -> frequency map restricted to terms with 3 <= len <= 20 (spec
// §4.10 SimHash step 1).
func TermFrequencies(text string) map[string]int {
	stream := englishAnalyzer.Analyze([]byte(text))

	freq := make(map[string]int)
	for _, tok := range stream {
		term := string(tok.Term)
		if len(term) < 3 || len(term) > 20 {
			continue
		}
		freq[term]++
	}
	return freq
}

package extractor

import "golang.org/x/net/html"

// ExtractionResult holds the extraction outcome.
// DocumentRoot is the original parsed HTML document.
// ContentNode is the extracted meaningful content node (semantic container).
type ExtractionResult struct {
	DocumentRoot *html.Node
	ContentNode  *html.Node
}

// ContentScoreMultiplier weights calculateContentScore's per-element-type
// contribution. Sourced from config so operators can retune extraction
// without a rebuild.
type ContentScoreMultiplier struct {
	NonWhitespaceDivisor float64
	Paragraphs           float64
	Headings             float64
	CodeBlocks           float64
	ListItems            float64
}

// MeaningfulThreshold gates isMeaningful's accept/reject decision.
type MeaningfulThreshold struct {
	MinNonWhitespace    int
	MinHeadings         int
	MinParagraphsOrCode int
	MaxLinkDensity      float64
}

// ExtractParam tunes the Layer 3 weighted-scoring fallback (spec C8
// "extract title, strip chrome, collect body text"): the specificity
// bias for preferring a child container over <body>, the link-density
// penalty threshold, and the scoring weights/thresholds above.
type ExtractParam struct {
	BodySpecificityBias  float64
	LinkDensityThreshold float64
	ScoreMultiplier      ContentScoreMultiplier
	Threshold            MeaningfulThreshold
}

// DefaultExtractParam matches the constants the unweighted fallback used
// before these knobs were exposed through config.
var DefaultExtractParam = ExtractParam{
	BodySpecificityBias:  0.7,
	LinkDensityThreshold: 0.5,
	ScoreMultiplier: ContentScoreMultiplier{
		NonWhitespaceDivisor: 50.0,
		Paragraphs:           5.0,
		Headings:             10.0,
		CodeBlocks:           15.0,
		ListItems:            2.0,
	},
	Threshold: MeaningfulThreshold{
		MinNonWhitespace:    50,
		MinHeadings:         0,
		MinParagraphsOrCode: 1,
		MaxLinkDensity:      0.8,
	},
}

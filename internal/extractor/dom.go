// Package extractor isolates a fetched page's main content from site
// chrome (spec C8 "extract title, strip script/style/nav/footer/header,
// collect body text"): semantic containers first, then known
// documentation-framework selectors, then a weighted text-density
// fallback over a chrome-stripped clone of the DOM.
package extractor

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/crawlgraph/crawlgraph/internal/metadata"
	"github.com/crawlgraph/crawlgraph/pkg/failure"
)

type DomExtractor struct {
	metadataSink    metadata.MetadataSink
	customSelectors []string
	params          ExtractParam
}

func NewDomExtractor(metadataSink metadata.MetadataSink, params ExtractParam, customSelectors ...string) DomExtractor {
	return DomExtractor{
		metadataSink:    metadataSink,
		customSelectors: customSelectors,
		params:          params,
	}
}

// SetExtractParam replaces the active scoring parameters, used when
// config is reloaded.
func (d *DomExtractor) SetExtractParam(params ExtractParam) {
	d.params = params
}

func (d *DomExtractor) Extract(sourceURL url.URL, htmlBytes []byte) (ExtractionResult, failure.ClassifiedError) {
	result, err := d.extract(htmlBytes)
	if err != nil {
		var extractionError *ExtractionError
		errors.As(err, &extractionError)
		d.metadataSink.RecordError(metadata.NewErrorRecord(
			"extractor",
			"DomExtractor.Extract",
			mapExtractionErrorToMetadataCause(extractionError),
			err.Error(),
			metadata.NewAttr(metadata.AttrURL, fmt.Sprintf("%v", sourceURL)),
		))
		return ExtractionResult{}, extractionError
	}
	return result, nil
}

func (d *DomExtractor) extract(htmlBytes []byte) (ExtractionResult, error) {
	doc, err := html.Parse(bytes.NewReader(htmlBytes))
	if err != nil {
		return ExtractionResult{}, &ExtractionError{
			Message: fmt.Sprintf("failed to parse HTML: %v", err),
			Cause:   ErrCauseNotHTML,
		}
	}

	if !isValidHTML(doc) {
		return ExtractionResult{}, &ExtractionError{
			Message: "input is not valid HTML document",
			Cause:   ErrCauseNotHTML,
		}
	}

	// Layer 1: semantic container (main, article, [role="main"])
	if contentNode := extractSemanticContainer(doc); contentNode != nil {
		return ExtractionResult{DocumentRoot: doc, ContentNode: contentNode}, nil
	}

	// Layer 2: known documentation-framework container selectors
	if contentNode := d.extractKnownDocContainer(doc); contentNode != nil {
		return ExtractionResult{DocumentRoot: doc, ContentNode: contentNode}, nil
	}

	// Layer 3: explicit chrome removal + text-density scoring
	if contentNode := d.extractContainerAfterExplicitChromesRemoval(*doc); contentNode != nil {
		return ExtractionResult{DocumentRoot: doc, ContentNode: contentNode}, nil
	}

	return ExtractionResult{}, &ExtractionError{
		Message: "no meaningful content container found",
		Cause:   ErrCauseNoContent,
	}
}

func isValidHTML(doc *html.Node) bool {
	var findHTML func(*html.Node) bool
	findHTML = func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "html" {
			return true
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if findHTML(c) {
				return true
			}
		}
		return false
	}
	return findHTML(doc)
}

// extractSemanticContainer: <main> -> <article> -> [role="main"].
func extractSemanticContainer(doc *html.Node) *html.Node {
	gqDoc := goquery.NewDocumentFromNode(doc)

	if main := gqDoc.Find("main").First(); main.Length() > 0 {
		if node := main.Nodes[0]; isMeaningfulDefault(node) {
			return node
		}
	}
	if article := gqDoc.Find("article").First(); article.Length() > 0 {
		if node := article.Nodes[0]; isMeaningfulDefault(node) {
			return node
		}
	}
	if roleMain := gqDoc.Find("[role='main']").First(); roleMain.Length() > 0 {
		if node := roleMain.Nodes[0]; isMeaningfulDefault(node) {
			return node
		}
	}
	return nil
}

// extractKnownDocContainer tries known documentation-framework selectors,
// merged with any custom selectors configured for this crawl.
func (d *DomExtractor) extractKnownDocContainer(doc *html.Node) *html.Node {
	allSelectors := mergeSelectors(getAllSelectors(), d.customSelectors)
	gqDoc := goquery.NewDocumentFromNode(doc)

	for _, selector := range allSelectors {
		if elem := gqDoc.Find(selector).First(); elem.Length() > 0 {
			if node := elem.Nodes[0]; isMeaningfulDefault(node) {
				return node
			}
		}
	}
	return nil
}

// extractContainerAfterExplicitChromesRemoval: strip chrome, then pick
// the best-scoring container, applying the specificity bias against
// preferring <body> wholesale.
func (d *DomExtractor) extractContainerAfterExplicitChromesRemoval(doc html.Node) *html.Node {
	cleanedDoc := removeExplicitChromes(&doc)
	if cleanedDoc == nil {
		return nil
	}

	contentNode := d.findBestContentContainer(cleanedDoc)
	if contentNode == nil {
		return nil
	}

	if !d.isMeaningful(contentNode) {
		return nil
	}
	return contentNode
}

func removeExplicitChromes(doc *html.Node) *html.Node {
	clonedDoc := deepCloneNode(doc)
	if clonedDoc == nil {
		return nil
	}
	removeChromeElements(clonedDoc)
	removeElementsWithChromeAttributes(clonedDoc)
	return clonedDoc
}

func deepCloneNode(node *html.Node) *html.Node {
	if node == nil {
		return nil
	}
	cloned := &html.Node{
		Type:      node.Type,
		DataAtom:  node.DataAtom,
		Data:      node.Data,
		Namespace: node.Namespace,
	}
	if len(node.Attr) > 0 {
		cloned.Attr = make([]html.Attribute, len(node.Attr))
		copy(cloned.Attr, node.Attr)
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		if clonedChild := deepCloneNode(child); clonedChild != nil {
			cloned.AppendChild(clonedChild)
		}
	}
	return cloned
}

var chromeElementNames = map[string]bool{
	"nav":    true,
	"header": true,
	"footer": true,
	"aside":  true,
}

var chromeAttributeKeywords = []string{
	"nav", "sidebar", "menu", "breadcrumb",
	"search", "footer", "header", "cookie",
	"consent", "version", "language", "theme",
	"edit", "github",
}

func removeChromeElements(root *html.Node) {
	var nodesToRemove []*html.Node
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode && chromeElementNames[n.Data] {
			nodesToRemove = append(nodesToRemove, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(root)
	for _, node := range nodesToRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

func removeElementsWithChromeAttributes(root *html.Node) {
	var nodesToRemove []*html.Node
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode && hasChromeAttribute(n) {
			nodesToRemove = append(nodesToRemove, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(root)
	for _, node := range nodesToRemove {
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
	}
}

func hasChromeAttribute(n *html.Node) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" || attr.Key == "id" {
			lowerValue := strings.ToLower(attr.Val)
			for _, keyword := range chromeAttributeKeywords {
				if strings.Contains(lowerValue, keyword) {
					return true
				}
			}
		}
	}
	return false
}

// findBestContentContainer scores candidates and applies the
// specificity bias: prefers a child container over <body> when the
// child scores at least BodySpecificityBias * bodyScore and is close
// enough to the overall best.
func (d *DomExtractor) findBestContentContainer(doc *html.Node) *html.Node {
	candidates := collectCandidateNodes(doc)
	if len(candidates) == 0 {
		return nil
	}

	scores := make(map[*html.Node]float64)
	var bodyNode *html.Node
	var bodyScore float64

	for _, candidate := range candidates {
		score := d.calculateContentScore(candidate)
		scores[candidate] = score
		if candidate.Data == "body" {
			bodyNode = candidate
			bodyScore = score
		}
	}

	var bestNode *html.Node
	var bestScore float64
	for node, score := range scores {
		if score > bestScore {
			bestScore = score
			bestNode = node
		}
	}

	if bestNode == bodyNode && bodyNode != nil {
		for node, score := range scores {
			if node == bodyNode {
				continue
			}
			if score >= d.params.BodySpecificityBias*bodyScore && score > bestScore*0.9 {
				bestNode = node
				bestScore = score
				break
			}
		}
	}

	return bestNode
}

func collectCandidateNodes(root *html.Node) []*html.Node {
	var candidates []*html.Node
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode {
			switch n.Data {
			case "div", "section", "body":
				candidates = append(candidates, n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(root)
	return candidates
}

type contentStats struct {
	nonWhitespace int
	paragraphs    int
	headings      int
	codeBlocks    int
	listItems     int
	textLength    int
	linkTextLen   int
}

func walkContentStats(node *html.Node) contentStats {
	var stats contentStats
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		switch n.Type {
		case html.TextNode:
			stats.textLength += len(n.Data)
			for _, r := range n.Data {
				if !unicode.IsSpace(r) {
					stats.nonWhitespace++
				}
			}
		case html.ElementNode:
			switch n.Data {
			case "p":
				stats.paragraphs++
			case "h1", "h2", "h3":
				stats.headings++
			case "pre":
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && c.Data == "code" {
						stats.codeBlocks++
						break
					}
				}
			case "code":
				if n.Parent == nil || n.Parent.Data != "pre" {
					stats.codeBlocks++
				}
			case "li":
				stats.listItems++
			case "a":
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						stats.linkTextLen += len(strings.TrimSpace(c.Data))
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return stats
}

// calculateContentScore weights element counts per d.params.ScoreMultiplier
// and penalizes link-dense nodes past d.params.LinkDensityThreshold.
func (d *DomExtractor) calculateContentScore(node *html.Node) float64 {
	stats := walkContentStats(node)
	mult := d.params.ScoreMultiplier

	score := float64(stats.nonWhitespace) / mult.NonWhitespaceDivisor
	score += float64(stats.paragraphs) * mult.Paragraphs
	score += float64(stats.headings) * mult.Headings
	score += float64(stats.codeBlocks) * mult.CodeBlocks
	score += float64(stats.listItems) * mult.ListItems

	if stats.textLength > 0 {
		linkDensity := float64(stats.linkTextLen) / float64(stats.textLength)
		if linkDensity > d.params.LinkDensityThreshold {
			penalty := (linkDensity - d.params.LinkDensityThreshold) * score
			score -= penalty
		}
	}
	return score
}

// isMeaningful rejects nodes that are only navigation links, gated by
// d.params.Threshold.
func (d *DomExtractor) isMeaningful(node *html.Node) bool {
	return isMeaningfulWithThreshold(node, d.params.Threshold)
}

// isMeaningfulDefault is used by the semantic-container and
// known-selector layers, which run before any ExtractParam is
// necessarily wired (e.g. a bare NewDomExtractor in tests).
func isMeaningfulDefault(node *html.Node) bool {
	return isMeaningfulWithThreshold(node, DefaultExtractParam.Threshold)
}

func isMeaningfulWithThreshold(node *html.Node, threshold MeaningfulThreshold) bool {
	if node == nil {
		return false
	}

	var stats struct {
		textLength     int
		nonWhitespace  int
		headings       int
		paragraphs     int
		codeBlocks     int
		links          int
		linkTextLength int
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		switch n.Type {
		case html.TextNode:
			stats.textLength += len(n.Data)
			for _, r := range n.Data {
				if !unicode.IsSpace(r) {
					stats.nonWhitespace++
				}
			}
		case html.ElementNode:
			switch n.Data {
			case "h1", "h2", "h3", "h4", "h5", "h6":
				stats.headings++
			case "p":
				stats.paragraphs++
			case "pre":
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.ElementNode && c.Data == "code" {
						stats.codeBlocks++
						break
					}
				}
			case "code":
				stats.codeBlocks++
			case "a":
				stats.links++
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						stats.linkTextLength += len(strings.TrimSpace(c.Data))
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	if stats.nonWhitespace < threshold.MinNonWhitespace {
		return false
	}

	if stats.textLength > 0 {
		linkDensity := float64(stats.linkTextLength) / float64(stats.textLength)
		if linkDensity > threshold.MaxLinkDensity && stats.links > 2 {
			return false
		}
	}

	hasContent := stats.paragraphs >= threshold.MinParagraphsOrCode || stats.codeBlocks >= threshold.MinParagraphsOrCode
	hasHeadingsWithText := stats.headings > threshold.MinHeadings && stats.nonWhitespace >= 20

	return hasContent || hasHeadingsWithText
}

// ExtractTitle returns the document's <title> text, trimmed, or "" if
// absent (spec C8 "extract title").
func ExtractTitle(doc *html.Node) string {
	gqDoc := goquery.NewDocumentFromNode(doc)
	return strings.TrimSpace(gqDoc.Find("title").First().Text())
}

// ExtractText flattens a content node's visible text, collapsing
// whitespace runs, for the body text the indexer tokenizes.
func ExtractText(node *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return collapseWhitespace(b.String())
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// ExtractLinks collects resolved absolute hrefs from a content node's
// anchor tags, for the link-discovery worker.
func ExtractLinks(base *url.URL, node *html.Node) []string {
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" {
					if resolved, err := base.Parse(attr.Val); err == nil {
						links = append(links, resolved.String())
					}
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)
	return links
}

package store

import (
	"context"
	"strings"

	"github.com/blevesearch/bleve/v2"
	bleveQuery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/crawlgraph/crawlgraph/internal/model"
)

// BleveIndex adapts a blevesearch/bleve/v2 index to the Index contract.
// Title/content are analyzed full-text fields; tokens/domain/outboundLinks
// are keyword fields, per spec §4.11.
type BleveIndex struct {
	idx bleve.Index
}

// NewBleveIndex opens (or creates) a bleve index at path with the
// "web-pages" document schema of spec §4.11.
func NewBleveIndex(path string) (*BleveIndex, error) {
	idx, err := bleve.Open(path)
	if err == nil {
		return &BleveIndex{idx: idx}, nil
	}

	mapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = "keyword"

	docMapping.AddFieldMappingsAt("title", textField)
	docMapping.AddFieldMappingsAt("content", textField)
	docMapping.AddFieldMappingsAt("tokens", keywordField)
	docMapping.AddFieldMappingsAt("domain", keywordField)
	docMapping.AddFieldMappingsAt("outboundLinks", keywordField)
	mapping.AddDocumentMapping("web-page", docMapping)
	mapping.DefaultMapping = docMapping

	idx, err = bleve.New(path, mapping)
	if err != nil {
		return nil, err
	}
	return &BleveIndex{idx: idx}, nil
}

type bleveDoc struct {
	URL              string   `json:"url"`
	Title            string   `json:"title"`
	Content          string   `json:"content"`
	Snippet          string   `json:"snippet"`
	Tokens           []string `json:"tokens"`
	OutboundLinks    []string `json:"outboundLinks"`
	Domain           string   `json:"domain"`
	CrawlDepth       int      `json:"crawlDepth"`
	PageRank         float64  `json:"pageRank"`
	InboundLinkCount int      `json:"inboundLinkCount"`
	ContentLength    int      `json:"contentLength"`
	LastCrawled      int64    `json:"lastCrawled"`
	LastIndexed      int64    `json:"lastIndexed"`
	SimHash          uint64   `json:"simHash"`
}

func toBleveDoc(d model.Document) bleveDoc {
	return bleveDoc{
		URL: d.URL, Title: d.Title, Content: d.Body, Snippet: d.Snippet,
		Tokens: d.Tokens, OutboundLinks: d.OutboundLinks, Domain: d.Domain,
		CrawlDepth: d.CrawlDepth, PageRank: d.PageRank,
		InboundLinkCount: d.InboundLinkCount, ContentLength: d.ContentLength,
		LastCrawled: d.LastCrawled.UnixMilli(), LastIndexed: d.LastIndexed.UnixMilli(),
		SimHash: d.SimHash,
	}
}

func (b *BleveIndex) Index(_ context.Context, doc model.Document) error {
	return b.idx.Index(doc.DocID, toBleveDoc(doc))
}

func (b *BleveIndex) Get(_ context.Context, docID string) (model.Document, bool, error) {
	q := bleve.NewDocIDQuery([]string{docID})
	req := bleve.NewSearchRequestOptions(q, 1, 0, false)
	req.Fields = []string{"*"}

	res, err := b.idx.Search(req)
	if err != nil {
		return model.Document{}, false, err
	}
	if len(res.Hits) == 0 {
		return model.Document{}, false, nil
	}
	return documentFromFields(docID, res.Hits[0].Fields), true, nil
}

func (b *BleveIndex) Delete(_ context.Context, docID string) error {
	return b.idx.Delete(docID)
}

func (b *BleveIndex) DocumentCount(_ context.Context) (int, error) {
	count, err := b.idx.DocCount()
	return int(count), err
}

func (b *BleveIndex) Search(_ context.Context, req SearchRequest) ([]SearchHit, int, error) {
	disjuncts := make([]bleveQuery.Query, 0, len(req.ShouldTerms)+len(req.SynonymTerms))
	for _, term := range req.ShouldTerms {
		disjuncts = append(disjuncts, fieldDisjunct(term, req.TitleBoost, req.TokenBoost, req.ContentBoost)...)
	}
	for _, term := range req.SynonymTerms {
		disjuncts = append(disjuncts, fieldDisjunct(term, req.TitleBoost/2, req.TokenBoost/2, req.ContentBoost/2)...)
	}

	dq := bleve.NewDisjunctionQuery(disjuncts...)

	var topLevel bleveQuery.Query = dq
	if len(req.MustTerms) > 0 {
		conjuncts := []bleveQuery.Query{dq}
		for _, must := range req.MustTerms {
			conjuncts = append(conjuncts, bleve.NewTermQuery(strings.ToLower(must)))
		}
		topLevel = bleve.NewConjunctionQuery(conjuncts...)
	}

	searchReq := bleve.NewSearchRequestOptions(topLevel, req.Size, req.From, false)
	searchReq.Fields = []string{"*"}

	res, err := b.idx.Search(searchReq)
	if err != nil {
		return nil, 0, err
	}

	hits := make([]SearchHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		doc := documentFromFields(h.ID, h.Fields)
		hits = append(hits, SearchHit{DocID: h.ID, Score: h.Score, Document: doc})
	}
	return hits, int(res.Total), nil
}

func fieldDisjunct(term string, titleBoost, tokenBoost, contentBoost float64) []bleveQuery.Query {
	titleQ := bleve.NewMatchQuery(term)
	titleQ.SetField("title")
	titleQ.SetBoost(titleBoost)

	tokenQ := bleve.NewMatchQuery(term)
	tokenQ.SetField("tokens")
	tokenQ.SetBoost(tokenBoost)

	contentQ := bleve.NewMatchQuery(term)
	contentQ.SetField("content")
	contentQ.SetBoost(contentBoost)

	return []bleveQuery.Query{titleQ, tokenQ, contentQ}
}

func (b *BleveIndex) SuggestTitlePrefix(_ context.Context, prefix string, limit int) ([]string, error) {
	q := bleve.NewPrefixQuery(strings.ToLower(prefix))
	q.SetField("title")
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = []string{"title"}

	res, err := b.idx.Search(req)
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	var out []string
	for _, h := range res.Hits {
		title, _ := h.Fields["title"].(string)
		if title == "" {
			continue
		}
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}
		out = append(out, title)
	}
	return out, nil
}

func documentFromFields(docID string, fields map[string]interface{}) model.Document {
	doc := model.Document{DocID: docID}
	if v, ok := fields["url"].(string); ok {
		doc.URL = v
	}
	if v, ok := fields["title"].(string); ok {
		doc.Title = v
	}
	if v, ok := fields["content"].(string); ok {
		doc.Body = v
	}
	if v, ok := fields["snippet"].(string); ok {
		doc.Snippet = v
	}
	if v, ok := fields["domain"].(string); ok {
		doc.Domain = v
	}
	if v, ok := fields["pageRank"].(float64); ok {
		doc.PageRank = v
	}
	return doc
}

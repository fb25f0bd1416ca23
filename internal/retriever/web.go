package retriever

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/httpx"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/common/logger"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/config"
	"github.com/henrisaabtc/FASTAPI-FALLM/internal/schema"
)

// WebRetriever queries a Serper-style google search API. Every result gets
// score 1.0: web search has no comparable relevance scale, ranking is left
// to the engine.
type WebRetriever struct {
	cfg    config.SerperConfig
	client *httpx.Client
}

func NewWebRetriever(cfg config.SerperConfig, client *httpx.Client) *WebRetriever {
	return &WebRetriever{cfg: cfg, client: client}
}

func (r *WebRetriever) Type() string  { return "web" }
func (r *WebRetriever) Label() string { return "web search" }

func (r *WebRetriever) Retrieve(ctx context.Context, queries []string) ([]schema.SearchResult, error) {
	return batch(ctx, r, queries, 0)
}

type serperSearchResponse struct {
	AnswerBox struct {
		Answer             string   `json:"answer"`
		Snippet            string   `json:"snippet"`
		SnippetHighlighted []string `json:"snippetHighlighted"`
		Title              string   `json:"title"`
	} `json:"answerBox"`
	KnowledgeGraph struct {
		Title       string `json:"title"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"knowledgeGraph"`
	Organic []struct {
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
		Link    string `json:"link"`
	} `json:"organic"`
}

type serperPlacesResponse struct {
	Places []map[string]interface{} `json:"places"`
}

// placeFieldBlocklist drops identifiers and coordinates from place entries.
var placeFieldBlocklist = map[string]struct{}{
	"thumbnailUrl": {},
	"cid":          {},
	"placeId":      {},
	"latitude":     {},
	"longitude":    {},
}

func (r *WebRetriever) Search(ctx context.Context, query string, _ int) ([]schema.SearchResult, error) {
	if r.cfg.APIKey == "" {
		return []schema.SearchResult{}, nil
	}

	out := make([]schema.SearchResult, 0, 8)

	var sr serperSearchResponse
	if err := r.post(ctx, r.cfg.SearchURL, query, &sr); err != nil {
		return nil, err
	}

	add := func(document, content, url string) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		meta := map[string]interface{}{"document": document}
		if url != "" {
			meta["url"] = url
		}
		out = append(out, schema.SearchResult{
			Document: schema.Document{
				ID:       document,
				Content:  query + ": " + content,
				Metadata: meta,
			},
			Score: 1.0,
		})
	}

	ab := sr.AnswerBox
	switch {
	case ab.Answer != "":
		add("answerBox", ab.Answer, "")
	case ab.Snippet != "":
		add("answerBox", ab.Snippet, "")
	case len(ab.SnippetHighlighted) > 0:
		add("answerBox", strings.Join(ab.SnippetHighlighted, ", "), "")
	case ab.Title != "":
		add("answerBox", ab.Title, "")
	}

	kg := sr.KnowledgeGraph
	if kg.Description != "" {
		add("knowledgeGraph", kg.Description, "")
	} else if kg.Title != "" {
		add("knowledgeGraph", strings.TrimSpace(kg.Title+" "+kg.Type), "")
	}

	for i, org := range sr.Organic {
		if i >= 3 {
			break
		}
		add(org.Link, org.Title+". "+org.Snippet, org.Link)
	}

	var pr serperPlacesResponse
	if err := r.post(ctx, r.cfg.PlacesURL, query, &pr); err != nil {
		// places are optional enrichment
		logger.Warnf("web retriever: places lookup failed for %q: %v", query, err)
		return out, nil
	}
	for i, place := range pr.Places {
		if i >= 2 {
			break
		}
		add("places", formatPlace(place), "")
	}
	return out, nil
}

func formatPlace(place map[string]interface{}) string {
	keys := make([]string, 0, len(place))
	for k := range place {
		if _, blocked := placeFieldBlocklist[k]; blocked {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", k, place[k]))
	}
	return strings.Join(parts, ", ")
}

func (r *WebRetriever) post(ctx context.Context, url, query string, dst interface{}) error {
	body, err := json.Marshal(map[string]string{
		"q":  query,
		"gl": r.cfg.Country,
		"hl": r.cfg.Language,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("X-API-KEY", r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("serper http status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

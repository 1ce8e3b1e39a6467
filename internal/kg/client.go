package kg

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aletheiafact/ai-task-worker/internal/config"
	"github.com/aletheiafact/ai-task-worker/internal/httpenvelope"
)

// client is the low-level Wikidata-shaped HTTP client: search, batch
// fetch, SPARQL inbound-link counts, and pageviews REST lookups. It never
// interprets results beyond wire decoding; internal/kg's Enricher owns the
// batch pipeline and type filtering.
type client struct {
	baseURL   string
	sparqlURL string
	userAgent string
	envelope  *httpenvelope.Envelope
}

func newClient(cfg config.Config, envelope *httpenvelope.Envelope) *client {
	return &client{
		baseURL:   cfg.KGBaseURL,
		sparqlURL: cfg.KGSparqlURL,
		userAgent: cfg.KGUserAgent,
		envelope:  envelope,
	}
}

// search issues wbsearchentities(search, language, limit<=50, type=item).
func (c *client) search(ctx context.Context, name, language string, limit int) ([]searchHit, error) {
	q := url.Values{
		"action":   {"wbsearchentities"},
		"search":   {name},
		"language": {language},
		"limit":    {strconv.Itoa(limit)},
		"format":   {"json"},
		"type":     {"item"},
	}
	var parsed searchResponse
	if err := c.get(ctx, q, &parsed); err != nil {
		return nil, err
	}
	return parsed.Search, nil
}

// batchFetch issues wbgetentities(ids=id1|id2|...|idN, props=claims|labels|
// descriptions, languages) with N <= 50.
func (c *client) batchFetch(ctx context.Context, ids []string, language string) (map[string]rawEntity, error) {
	if len(ids) == 0 {
		return map[string]rawEntity{}, nil
	}
	q := url.Values{
		"action":    {"wbgetentities"},
		"ids":       {strings.Join(ids, "|")},
		"props":     {"claims|labels|descriptions|sitelinks"},
		"languages": {language},
		"format":    {"json"},
	}
	var parsed getEntitiesResponse
	if err := c.get(ctx, q, &parsed); err != nil {
		return nil, err
	}
	return parsed.Entities, nil
}

func (c *client) get(ctx context.Context, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)

	_, body, err := c.envelope.Do(req, httpenvelope.ClassifyHTTPStatus)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// inboundLinkCount counts statements that reference id as their object, a
// rough centrality signal. Advisory: callers treat an error as zero.
func (c *client) inboundLinkCount(ctx context.Context, id string) (int64, error) {
	query := fmt.Sprintf(`SELECT (COUNT(?s) AS ?count) WHERE { ?s ?p wd:%s }`, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sparqlURL+"?"+url.Values{
		"query":  {query},
		"format": {"json"},
	}.Encode(), nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/sparql-results+json")

	_, body, err := c.envelope.Do(req, httpenvelope.ClassifyHTTPStatus)
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Results struct {
			Bindings []struct {
				Count struct {
					Value string `json:"value"`
				} `json:"count"`
			} `json:"bindings"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, err
	}
	if len(parsed.Results.Bindings) == 0 {
		return 0, nil
	}
	return strconv.ParseInt(parsed.Results.Bindings[0].Count.Value, 10, 64)
}

// pageviews sums the last 30 daily view counts for article on project's
// Wikipedia, via the Wikimedia REST pageviews API. Advisory: callers treat
// an error as zero.
func (c *client) pageviews(ctx context.Context, project, article string) (int64, error) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	path := fmt.Sprintf(
		"https://wikimedia.org/api/rest_v1/metrics/pageviews/per-article/%s/all-access/user/%s/daily/%s/%s",
		project, url.PathEscape(article), start.Format("20060102"), end.Format("20060102"),
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	_, body, err := c.envelope.Do(req, httpenvelope.ClassifyHTTPStatus)
	if err != nil {
		return 0, err
	}

	var parsed struct {
		Items []struct {
			Views int64 `json:"views"`
		} `json:"items"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, err
	}
	var total int64
	for _, it := range parsed.Items {
		total += it.Views
	}
	return total, nil
}

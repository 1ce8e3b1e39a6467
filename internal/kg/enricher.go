package kg

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/aletheiafact/ai-task-worker/internal/config"
	"github.com/aletheiafact/ai-task-worker/internal/domain"
	"github.com/aletheiafact/ai-task-worker/internal/httpenvelope"
)

const (
	searchResultLimit = 5
	batchFetchSize    = 50
	signalTimeout     = 5 * time.Second
	defaultLanguage   = "en"
)

// Enricher implements domain.KGEnricher against a Wikidata-shaped service,
// batching lookup-by-name resolution across a whole set of mentions (§4.3).
type Enricher struct {
	client  *client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New builds an Enricher. The per-request politeness delay is enforced by
// a token-bucket limiter refilling at cfg.KGPoliteness intervals.
func New(cfg config.Config, envelope *httpenvelope.Envelope, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.KGPoliteness
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &Enricher{
		client:  newClient(cfg, envelope),
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger,
	}
}

// EnrichMentions implements the batch pipeline (spec §4.3):
//  1. launch M concurrent, politeness-paced searches; collect the top-K
//     candidate IDs from each into a set S;
//  2. partition S into chunks of <=50 IDs and batch-fetch each chunk into
//     a map E: id -> entity;
//  3. for each mention, walk its candidate IDs in search order and pick
//     the first whose instance-of lies in allowedInstanceOf;
//  4. mentions with no matching candidate resolve to nil, never an error.
func (e *Enricher) EnrichMentions(ctx context.Context, mentions []domain.Mention, allowedInstanceOf []string) ([]*domain.KGEntity, error) {
	if len(allowedInstanceOf) == 0 {
		allowedInstanceOf = AllowedInstanceOf
	}
	candidateIDs := e.searchAll(ctx, mentions)

	idSet := map[string]struct{}{}
	for _, ids := range candidateIDs {
		for _, id := range ids {
			idSet[id] = struct{}{}
		}
	}
	allIDs := make([]string, 0, len(idSet))
	for id := range idSet {
		allIDs = append(allIDs, id)
	}

	entities, err := e.batchFetchAll(ctx, allIDs)
	if err != nil {
		return nil, err
	}

	allowed := map[string]struct{}{}
	for _, t := range allowedInstanceOf {
		allowed[t] = struct{}{}
	}

	results := make([]*domain.KGEntity, len(mentions))
	for i := range mentions {
		results[i] = e.selectMatch(ctx, candidateIDs[i], entities, allowed)
	}
	return results, nil
}

// searchAll issues one politeness-paced search per mention and returns,
// per mention index, its ordered candidate ID list.
func (e *Enricher) searchAll(ctx context.Context, mentions []domain.Mention) [][]string {
	out := make([][]string, len(mentions))
	var wg sync.WaitGroup
	for i, m := range mentions {
		wg.Add(1)
		go func(i int, m domain.Mention) {
			defer wg.Done()
			if err := e.limiter.Wait(ctx); err != nil {
				return
			}
			query := m.Name
			hits, err := e.client.search(ctx, query, defaultLanguage, searchResultLimit)
			if err != nil || len(hits) == 0 {
				if m.MentionedAs != "" && m.MentionedAs != m.Name {
					if err := e.limiter.Wait(ctx); err != nil {
						return
					}
					hits, err = e.client.search(ctx, m.MentionedAs, defaultLanguage, searchResultLimit)
				}
				if err != nil {
					e.logger.WarnContext(ctx, "wikidata search failed", "name", m.Name, "error", err)
					return
				}
			}
			ids := make([]string, 0, len(hits))
			for _, h := range hits {
				ids = append(ids, h.ID)
			}
			out[i] = ids
		}(i, m)
	}
	wg.Wait()
	return out
}

// batchFetchAll partitions ids into chunks of <=batchFetchSize and issues
// one fetch per chunk, merging results into a single map.
func (e *Enricher) batchFetchAll(ctx context.Context, ids []string) (map[string]rawEntity, error) {
	merged := map[string]rawEntity{}
	for start := 0; start < len(ids); start += batchFetchSize {
		end := start + batchFetchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk, err := e.client.batchFetch(ctx, ids[start:end], defaultLanguage)
		if err != nil {
			return nil, err
		}
		for id, ent := range chunk {
			merged[id] = ent
		}
	}
	return merged, nil
}

// selectMatch walks a mention's candidate IDs in search order and returns
// the first whose instance-of lies in allowed, enriched with supplementary
// signals. Returns nil when no candidate matches.
func (e *Enricher) selectMatch(ctx context.Context, candidateIDs []string, entities map[string]rawEntity, allowed map[string]struct{}) *domain.KGEntity {
	for _, id := range candidateIDs {
		raw, ok := entities[id]
		if !ok {
			continue
		}
		instanceOf := entityIDsForProp(raw, propInstanceOf)
		if !anyAllowed(instanceOf, allowed) {
			continue
		}
		return e.buildEntity(ctx, raw, instanceOf)
	}
	return nil
}

func anyAllowed(instanceOf []string, allowed map[string]struct{}) bool {
	for _, t := range instanceOf {
		if _, ok := allowed[t]; ok {
			return true
		}
	}
	return false
}

// FetchByID implements the fetch-by-id pathway (spec §4.3 pathway 2): the
// ID is already resolved upstream, so fetch and extract signals directly
// without any instance-of filtering.
func (e *Enricher) FetchByID(ctx context.Context, id string) (*domain.KGEntity, error) {
	entities, err := e.client.batchFetch(ctx, []string{id}, defaultLanguage)
	if err != nil {
		return nil, err
	}
	raw, ok := entities[id]
	if !ok {
		return nil, nil
	}
	return e.buildEntity(ctx, raw, entityIDsForProp(raw, propInstanceOf)), nil
}

// buildEntity assembles a domain.KGEntity from a raw wire entity and
// fetches the two supplementary signals (inbound links, pageviews)
// concurrently. Both are advisory: any failure degrades to 0 rather than
// failing the whole lookup.
func (e *Enricher) buildEntity(ctx context.Context, raw rawEntity, instanceOf []string) *domain.KGEntity {
	entity := &domain.KGEntity{
		ID:          raw.ID,
		Label:       pickLabel(raw.Labels, defaultLanguage),
		Description: pickLabel(raw.Descriptions, defaultLanguage),
		Aliases:     pickAliases(raw.Aliases, defaultLanguage),
		Sitelinks:   sitelinksMap(raw.Sitelinks),
		Statements:  raw.rawStatementIDs(),
		Occupations: entityIDsForProp(raw, propOccupation),
		Positions:   entityIDsForProp(raw, propPosition),
		Awards:      entityIDsForProp(raw, propAward),
		InstanceOf:  instanceOf,
	}

	signalCtx, cancel := context.WithTimeout(ctx, signalTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		n, err := e.client.inboundLinkCount(gctx, raw.ID)
		if err != nil {
			e.logger.WarnContext(ctx, "wikidata inbound link lookup failed", "id", raw.ID, "error", err)
			return nil
		}
		entity.InboundLinks = n
		return nil
	})
	g.Go(func() error {
		article, ok := raw.Sitelinks["enwiki"]
		if !ok {
			return nil
		}
		n, err := e.client.pageviews(gctx, "en.wikipedia", article.Title)
		if err != nil {
			e.logger.WarnContext(ctx, "wikidata pageviews lookup failed", "id", raw.ID, "error", err)
			return nil
		}
		entity.Pageviews = n
		return nil
	})
	_ = g.Wait()

	return entity
}

func (raw rawEntity) rawStatementIDs() map[string][]string {
	out := make(map[string][]string, len(raw.Claims))
	for prop := range raw.Claims {
		out[prop] = entityIDsForProp(raw, prop)
	}
	return out
}

package processor

import (
	"errors"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// fakeGateway is a hand-rolled domain.LLMGateway test double: canned
// responses keyed by call count rather than a generated mock, matching
// the package's preference for small purpose-built fakes over broad
// mocking frameworks for port interfaces.
type fakeGateway struct {
	supportsModel   bool
	generateContent string
	generateErr     error
	embeddingResult domain.EmbeddingResult
	embeddingErr    error

	generateCalls int
	lastPrompt    string
}

func (g *fakeGateway) SupportsModel(string) bool { return g.supportsModel }

func (g *fakeGateway) CreateEmbedding(_ domain.Context, model, _ string) (domain.EmbeddingResult, error) {
	if g.embeddingErr != nil {
		return domain.EmbeddingResult{}, g.embeddingErr
	}
	if g.embeddingResult.Model == "" {
		g.embeddingResult.Model = model
	}
	return g.embeddingResult, nil
}

func (g *fakeGateway) ChatCompletion(_ domain.Context, model string, _ []domain.ChatMessage, _ int) (domain.ChatResult, error) {
	return domain.ChatResult{Content: g.generateContent, Model: model}, g.generateErr
}

func (g *fakeGateway) Generate(_ domain.Context, model, prompt string, _ int) (domain.ChatResult, error) {
	g.generateCalls++
	g.lastPrompt = prompt
	if g.generateErr != nil {
		return domain.ChatResult{}, g.generateErr
	}
	return domain.ChatResult{Content: g.generateContent, Model: model}, nil
}

// fakeEnricher resolves EnrichMentions/FetchByID from fixed maps keyed by
// mention name / KG ID, so tests can assert exactly what a processor fed
// into the enrichment pipeline.
type fakeEnricher struct {
	byName map[string]*domain.KGEntity
	byID   map[string]*domain.KGEntity
	err    error

	lastMentions []domain.Mention
}

func (e *fakeEnricher) EnrichMentions(_ domain.Context, mentions []domain.Mention, _ []string) ([]*domain.KGEntity, error) {
	e.lastMentions = mentions
	if e.err != nil {
		return nil, e.err
	}
	out := make([]*domain.KGEntity, len(mentions))
	for i, m := range mentions {
		out[i] = e.byName[m.Name]
	}
	return out, nil
}

func (e *fakeEnricher) FetchByID(_ domain.Context, id string) (*domain.KGEntity, error) {
	if e.err != nil {
		return nil, e.err
	}
	entity, ok := e.byID[id]
	if !ok {
		return nil, nil
	}
	return entity, nil
}

var errFakeEnricherDown = errors.New("enricher unavailable")

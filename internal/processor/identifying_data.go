package processor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// IdentifiedPersonality is one entry of the identifying-data output, with
// its Wikidata enrichment attached (nil when no candidate matched).
type IdentifiedPersonality struct {
	Name        string          `json:"name"`
	MentionedAs string          `json:"mentioned_as"`
	Confidence  float64         `json:"confidence"`
	Context     string          `json:"context"`
	Wikidata    *WikidataSummary `json:"wikidata"`
}

// modelPersonality is the shape requested of the model.
type modelPersonality struct {
	Name        string  `json:"name"`
	MentionedAs string  `json:"mentioned_as"`
	Confidence  float64 `json:"confidence"`
	Context     string  `json:"context"`
}

// IdentifyingData instructs the model to list personalities mentioned in
// the text, then resolves each through the batched KG enrichment pipeline
// (spec §4.5).
type IdentifyingData struct {
	gateway  domain.LLMGateway
	enricher domain.KGEnricher
	logger   *slog.Logger
}

// NewIdentifyingData builds an IdentifyingData processor.
func NewIdentifyingData(gateway domain.LLMGateway, enricher domain.KGEnricher, logger *slog.Logger) *IdentifyingData {
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentifyingData{gateway: gateway, enricher: enricher, logger: logger}
}

func (p *IdentifyingData) CanProcess(task domain.Task) bool {
	return task.Kind == domain.KindIdentifyingData
}

func (p *IdentifyingData) Process(ctx domain.Context, task domain.Task) domain.TaskResult {
	content, err := decodeAndValidate(task, p.gateway)
	if err != nil {
		return domain.Failed(task.ID, err.Error())
	}

	chatResult, err := p.gateway.Generate(ctx, content.Model, identifyingDataPrompt(content.Text), 0)
	if err != nil {
		return failureFromGatewayError(task.ID, "identifying data", err)
	}

	people := parseModelPersonalities(chatResult.Content, p.logger)
	if len(people) == 0 {
		return domain.Succeeded(task.ID, []IdentifiedPersonality{})
	}

	mentions := make([]domain.Mention, len(people))
	for i, person := range people {
		mentions[i] = domain.Mention{Name: person.Name, MentionedAs: person.MentionedAs}
	}

	entities, err := p.enricher.EnrichMentions(ctx, mentions, nil)
	if err != nil {
		p.logger.WarnContext(ctx, "wikidata enrichment failed, continuing with unenriched data", "task_id", task.ID, "error", err)
		entities = make([]*domain.KGEntity, len(people))
	}

	output := make([]IdentifiedPersonality, len(people))
	for i, person := range people {
		output[i] = IdentifiedPersonality{
			Name:        person.Name,
			MentionedAs: person.MentionedAs,
			Confidence:  person.Confidence,
			Context:     person.Context,
			Wikidata:    summarizeEntity(entities[i]),
		}
	}
	return domain.Succeeded(task.ID, output)
}

func identifyingDataPrompt(text string) string {
	return strings.TrimSpace(fmt.Sprintf(`Analyze the following text and identify any personalities (people) mentioned in it.
Return the result as a JSON array with the following structure for each personality found:
[
  {"name": "Full name of the person", "mentioned_as": "How they are mentioned in the text", "confidence": 0.95, "context": "Brief context of how they are mentioned"}
]

Text to analyze: %q

If no personalities are found, return an empty array []. Only return the JSON array, no additional text.`, text))
}

// parseModelPersonalities leniently extracts the model's JSON array,
// falling back to an empty slice (never a fatal error) on a malformed
// response, matching the reference provider's graceful degradation.
func parseModelPersonalities(content string, logger *slog.Logger) []modelPersonality {
	js, ok := extractFirstJSONValue(content)
	if !ok {
		return nil
	}
	var out []modelPersonality
	if err := json.Unmarshal([]byte(js), &out); err != nil {
		logger.Warn("failed to parse identified personalities, treating as empty", "error", err)
		return nil
	}
	return out
}

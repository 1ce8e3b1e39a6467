package processor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// TopicOutput is one resolved topic in the defining-topics output.
type TopicOutput struct {
	Name       string `json:"name"`
	WikidataID string `json:"wikidataId,omitempty"`
	Language   string `json:"language"`
}

type modelTopic struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context"`
}

// DefiningTopics asks the model for a JSON array of topics discussed in
// the text (in Portuguese per spec §4.5) and resolves each by label
// through the batched KG pipeline.
type DefiningTopics struct {
	gateway  domain.LLMGateway
	enricher domain.KGEnricher
	logger   *slog.Logger
}

// NewDefiningTopics builds a DefiningTopics processor.
func NewDefiningTopics(gateway domain.LLMGateway, enricher domain.KGEnricher, logger *slog.Logger) *DefiningTopics {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefiningTopics{gateway: gateway, enricher: enricher, logger: logger}
}

func (p *DefiningTopics) CanProcess(task domain.Task) bool {
	return task.Kind == domain.KindDefiningTopics
}

func (p *DefiningTopics) Process(ctx domain.Context, task domain.Task) domain.TaskResult {
	content, err := decodeAndValidate(task, p.gateway)
	if err != nil {
		return domain.Failed(task.ID, err.Error())
	}

	chatResult, err := p.gateway.Generate(ctx, content.Model, definingTopicsPrompt(content.Text), 0)
	if err != nil {
		return failureFromGatewayError(task.ID, "defining topics", err)
	}

	topics := parseModelTopics(chatResult.Content, p.logger)
	if len(topics) == 0 {
		return domain.Succeeded(task.ID, []TopicOutput{})
	}

	mentions := make([]domain.Mention, len(topics))
	for i, t := range topics {
		mentions[i] = domain.Mention{Name: t.Name}
	}
	entities, err := p.enricher.EnrichMentions(ctx, mentions, nil)
	if err != nil {
		p.logger.WarnContext(ctx, "wikidata enrichment failed, continuing with unenriched data", "task_id", task.ID, "error", err)
		entities = make([]*domain.KGEntity, len(topics))
	}

	output := make([]TopicOutput, len(topics))
	for i, t := range topics {
		wikidataID := ""
		if entities[i] != nil {
			wikidataID = entities[i].ID
		}
		output[i] = TopicOutput{Name: t.Name, WikidataID: wikidataID, Language: "pt"}
	}
	return domain.Succeeded(task.ID, output)
}

func definingTopicsPrompt(text string) string {
	return strings.TrimSpace(fmt.Sprintf(`Analise o texto a seguir e identifique os principais tópicos discutidos.
Retorne o resultado como um array JSON com a seguinte estrutura para cada tópico encontrado:
[
  {"name": "Nome do tópico", "confidence": 0.95, "context": "Breve contexto do tópico no texto"}
]

Texto para analisar: %q

Se nenhum tópico claro for encontrado, retorne um array vazio []. Retorne apenas o array JSON, sem texto adicional.`, text))
}

func parseModelTopics(content string, logger *slog.Logger) []modelTopic {
	js, ok := extractFirstJSONValue(content)
	if !ok {
		return nil
	}
	var out []modelTopic
	if err := json.Unmarshal([]byte(js), &out); err != nil {
		logger.Warn("failed to parse identified topics, treating as empty", "error", err)
		return nil
	}
	return out
}

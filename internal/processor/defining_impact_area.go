package processor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// ImpactAreaOutput is the output shape for a defining-impact-area task.
type ImpactAreaOutput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	WikidataID  string `json:"wikidataId,omitempty"`
	Language    string `json:"language"`
}

// modelImpactArea is the single-object shape requested of the model.
type modelImpactArea struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// DefiningImpactArea asks the model for the single most relevant impact
// area of the text (in Portuguese), unlike the reference provider's list
// form — this processor always returns exactly one area.
type DefiningImpactArea struct {
	gateway  domain.LLMGateway
	enricher domain.KGEnricher
	logger   *slog.Logger
}

// NewDefiningImpactArea builds a DefiningImpactArea processor.
func NewDefiningImpactArea(gateway domain.LLMGateway, enricher domain.KGEnricher, logger *slog.Logger) *DefiningImpactArea {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefiningImpactArea{gateway: gateway, enricher: enricher, logger: logger}
}

func (p *DefiningImpactArea) CanProcess(task domain.Task) bool {
	return task.Kind == domain.KindDefiningImpact
}

func (p *DefiningImpactArea) Process(ctx domain.Context, task domain.Task) domain.TaskResult {
	content, err := decodeAndValidate(task, p.gateway)
	if err != nil {
		return domain.Failed(task.ID, err.Error())
	}

	chatResult, err := p.gateway.Generate(ctx, content.Model, definingImpactAreaPrompt(content.Text), 0)
	if err != nil {
		return failureFromGatewayError(task.ID, "defining impact area", err)
	}

	area, ok := parseModelImpactArea(chatResult.Content, p.logger)
	if !ok {
		return domain.Succeeded(task.ID, ImpactAreaOutput{})
	}

	var wikidataID string
	entities, err := p.enricher.EnrichMentions(ctx, []domain.Mention{{Name: area.Name}}, nil)
	if err != nil {
		p.logger.WarnContext(ctx, "wikidata enrichment failed, continuing with unenriched data", "task_id", task.ID, "error", err)
	} else if len(entities) > 0 && entities[0] != nil {
		wikidataID = entities[0].ID
	}

	return domain.Succeeded(task.ID, ImpactAreaOutput{
		Name:        area.Name,
		Description: area.Description,
		WikidataID:  wikidataID,
		Language:    "pt",
	})
}

func definingImpactAreaPrompt(text string) string {
	return strings.TrimSpace(fmt.Sprintf(`Analise o texto a seguir e identifique a principal área de impacto (ex: saúde, política, economia, meio ambiente).
Retorne o resultado como um único objeto JSON com a seguinte estrutura:
{"name": "Nome da área de impacto", "description": "Breve descrição de como o texto se relaciona a essa área", "confidence": 0.95}

Texto para analisar: %q

Retorne apenas o objeto JSON, sem texto adicional.`, text))
}

func parseModelImpactArea(content string, logger *slog.Logger) (modelImpactArea, bool) {
	js, ok := extractFirstJSONValue(content)
	if !ok {
		return modelImpactArea{}, false
	}
	var out modelImpactArea
	if err := json.Unmarshal([]byte(js), &out); err != nil {
		logger.Warn("failed to parse identified impact area, treating as empty", "error", err)
		return modelImpactArea{}, false
	}
	if out.Name == "" {
		return modelImpactArea{}, false
	}
	return out, true
}

package processor

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

// SeverityOutput is the output shape for a defining-severity task: a
// single value drawn from the closed severity enum.
type SeverityOutput struct {
	Severity string `json:"severity"`
}

// severityLevels is the closed enum the model's free-text response is
// classified into, most severe first so substring scanning prefers the
// more severe level when a response names several.
var severityLevels = []string{
	"critical",
	"high_3", "high_2", "high_1",
	"medium_3", "medium_2", "medium_1",
	"low_3", "low_2", "low_1",
}

const defaultSeverity = "medium_2"

// DefiningSeverity classifies the overall severity of a fact-check given
// its already-resolved personalities, topics, and impact area (spec
// §4.5). Unlike the reference provider's {level, score, reasoning,
// factors} shape, the output here is the single enum value.
type DefiningSeverity struct {
	gateway  domain.LLMGateway
	enricher domain.KGEnricher
	logger   *slog.Logger
}

// NewDefiningSeverity builds a DefiningSeverity processor.
func NewDefiningSeverity(gateway domain.LLMGateway, enricher domain.KGEnricher, logger *slog.Logger) *DefiningSeverity {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefiningSeverity{gateway: gateway, enricher: enricher, logger: logger}
}

func (p *DefiningSeverity) CanProcess(task domain.Task) bool {
	return task.Kind == domain.KindDefiningSeverity
}

func (p *DefiningSeverity) Process(ctx domain.Context, task domain.Task) domain.TaskResult {
	content, err := decodeAndValidate(task, p.gateway)
	if err != nil {
		return domain.Failed(task.ID, err.Error())
	}

	personalityCtx := p.resolvePersonalities(ctx, content.PersonalityWikidataIDs)
	topicCtx := p.resolveTopics(ctx, content.Topics)
	impactCtx := p.resolveImpactArea(ctx, content.ImpactArea)

	prompt := definingSeverityPrompt(content.Text, personalityCtx, topicCtx, impactCtx)
	chatResult, err := p.gateway.Generate(ctx, content.Model, prompt, 0)
	if err != nil {
		return failureFromGatewayError(task.ID, "defining severity", err)
	}

	severity := classifySeverity(chatResult.Content, p.logger)
	return domain.Succeeded(task.ID, SeverityOutput{Severity: severity})
}

// resolvePersonalities fetches each personality's KG entity by its
// already-known ID; on failure or absence of an ID it falls back to the
// name the caller supplied, matching the reference provider's
// defining_severity fallback behavior.
func (p *DefiningSeverity) resolvePersonalities(ctx domain.Context, personalities []domain.SeverityPersonality) []string {
	lines := make([]string, 0, len(personalities))
	for _, person := range personalities {
		if person.WikidataID == "" {
			lines = append(lines, fmt.Sprintf("- %s (source: user_provided)", person.Name))
			continue
		}
		entity, err := p.enricher.FetchByID(ctx, person.WikidataID)
		if err != nil || entity == nil {
			if err != nil {
				p.logger.WarnContext(ctx, "failed to resolve personality wikidata id, falling back to name",
					"wikidata_id", person.WikidataID, "error", err)
			}
			lines = append(lines, fmt.Sprintf("- %s (source: user_provided)", person.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", entity.Label, entity.Description))
	}
	return lines
}

// resolveTopics fetches each topic's KG entity by its already-known ID;
// on failure or absence of an ID it falls back to the name the caller
// supplied, same as resolvePersonalities.
func (p *DefiningSeverity) resolveTopics(ctx domain.Context, topics []domain.SeverityTopic) []string {
	lines := make([]string, 0, len(topics))
	for _, topic := range topics {
		if topic.WikidataID == "" {
			lines = append(lines, fmt.Sprintf("- %s (source: user_provided)", topic.Name))
			continue
		}
		entity, err := p.enricher.FetchByID(ctx, topic.WikidataID)
		if err != nil || entity == nil {
			if err != nil {
				p.logger.WarnContext(ctx, "failed to resolve topic wikidata id, falling back to name",
					"wikidata_id", topic.WikidataID, "error", err)
			}
			lines = append(lines, fmt.Sprintf("- %s (source: user_provided)", topic.Name))
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", entity.Label, entity.Description))
	}
	return lines
}

// resolveImpactArea fetches the impact area's KG entity by its
// already-known ID; on failure or absence of an ID it falls back to the
// name the caller supplied, same as resolvePersonalities.
func (p *DefiningSeverity) resolveImpactArea(ctx domain.Context, area domain.SeverityImpactArea) string {
	if area.Name == "" && area.WikidataID == "" {
		return ""
	}
	if area.WikidataID == "" {
		return fmt.Sprintf("%s (source: user_provided)", area.Name)
	}
	entity, err := p.enricher.FetchByID(ctx, area.WikidataID)
	if err != nil || entity == nil {
		if err != nil {
			p.logger.WarnContext(ctx, "failed to resolve impact area wikidata id, falling back to name",
				"wikidata_id", area.WikidataID, "error", err)
		}
		return fmt.Sprintf("%s (source: user_provided)", area.Name)
	}
	return fmt.Sprintf("%s: %s", entity.Label, entity.Description)
}

func definingSeverityPrompt(text string, personalities, topics []string, impactArea string) string {
	var b strings.Builder
	b.WriteString("Classifique a severidade da seguinte checagem de fatos considerando as pessoas envolvidas, os tópicos e a área de impacto.\n\n")

	if len(personalities) > 0 {
		b.WriteString("Pessoas envolvidas:\n")
		b.WriteString(strings.Join(personalities, "\n"))
		b.WriteString("\n\n")
	}
	if len(topics) > 0 {
		b.WriteString("Tópicos:\n")
		b.WriteString(strings.Join(topics, "\n"))
		b.WriteString("\n\n")
	}
	if impactArea != "" {
		b.WriteString(fmt.Sprintf("Área de impacto: %s\n\n", impactArea))
	}

	b.WriteString(fmt.Sprintf("Texto: %q\n\n", text))
	b.WriteString("Responda com exatamente um dos seguintes níveis de severidade: ")
	b.WriteString(strings.Join(severityLevels, ", "))
	b.WriteString(". Responda apenas com o nível escolhido.")
	return b.String()
}

// classifySeverity returns the most severe level (in severityLevels
// order) that appears anywhere in the model's raw response; where a level
// appears in the text does not matter.
// Defaulting to medium_2 with a warning matches the requirement that an
// unparseable classification never fails the task.
func classifySeverity(content string, logger *slog.Logger) string {
	lower := strings.ToLower(content)
	for _, level := range severityLevels {
		if strings.Contains(lower, level) {
			return level
		}
	}
	logger.Warn("model response did not name a known severity level, defaulting", "default", defaultSeverity)
	return defaultSeverity
}

package processor

import (
	"errors"
	"fmt"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
	"github.com/aletheiafact/ai-task-worker/internal/httpenvelope"
)

// decodeAndValidate decodes task.Content for kind and checks that gateway
// claims support for the resulting model, matching the shared input
// contract (spec §4.5): missing content or model is a fatal validation
// error, as is an unsupported model.
func decodeAndValidate(task domain.Task, gateway domain.LLMGateway) (domain.TaskContent, error) {
	if len(task.Content) == 0 {
		return domain.TaskContent{}, fmt.Errorf("%w: Task content is missing or None", domain.ErrInvalidArgument)
	}
	content, err := domain.DecodeTaskContent(task.Kind, task.Content)
	if err != nil {
		return domain.TaskContent{}, err
	}
	if !gateway.SupportsModel(content.Model) {
		return domain.TaskContent{}, fmt.Errorf("%w: requested model %q is not supported", domain.ErrModelUnsupported, content.Model)
	}
	return content, nil
}

// WikidataSummary is the trimmed-down view of a domain.KGEntity attached
// to a processor's output, mirroring the reference provider's
// {id, label, description, aliases} enrichment shape.
type WikidataSummary struct {
	ID          string   `json:"id"`
	Label       string   `json:"label"`
	Description string   `json:"description"`
	Aliases     []string `json:"aliases"`
}

// summarizeEntity returns nil when entity is nil, so an unmatched mention
// serializes as wikidata: null rather than an empty object.
func summarizeEntity(entity *domain.KGEntity) *WikidataSummary {
	if entity == nil {
		return nil
	}
	return &WikidataSummary{
		ID:          entity.ID,
		Label:       entity.Label,
		Description: entity.Description,
		Aliases:     entity.Aliases,
	}
}

// failureFromGatewayError maps an upstream error to a TaskResult per the
// error-handling taxonomy (spec §7): a retryable envelope error is
// surfaced with the "Retryable error:" prefix so the control plane knows
// to re-emit the task; anything else is a fatal, descriptive failure.
func failureFromGatewayError(taskID, op string, err error) domain.TaskResult {
	var retryable *httpenvelope.RetryableError
	if errors.As(err, &retryable) {
		return domain.RetryableFailed(taskID, retryable.Unwrap())
	}
	return domain.Failed(taskID, fmt.Sprintf("%s failed: %s", op, err.Error()))
}

package domain

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// TaskContent is the decoded, kind-specific view of Task.Content. Each
// processor parses the raw JSON into the variant it understands rather
// than branching at runtime on the shape of an untyped payload.
type TaskContent struct {
	Kind  TaskKind
	Text  string
	Model string

	// Severity-only fields: resolved KG IDs carried in from an upstream
	// stage, rather than free text to look up.
	PersonalityWikidataIDs []SeverityPersonality
	Topics                 []SeverityTopic
	ImpactArea             SeverityImpactArea
}

// SeverityPersonality names one personality already resolved to a KG ID by
// an earlier pipeline stage.
type SeverityPersonality struct {
	Name        string `json:"name"`
	WikidataID  string `json:"wikidataId"`
	MentionedAs string `json:"mentionedAs,omitempty"`
}

// SeverityTopic names one topic already resolved to a KG ID by an earlier
// pipeline stage.
type SeverityTopic struct {
	Name       string `json:"name"`
	WikidataID string `json:"wikidataId"`
	Language   string `json:"language,omitempty"`
}

// SeverityImpactArea names the impact area already resolved to a KG ID by
// an earlier pipeline stage.
type SeverityImpactArea struct {
	Name       string `json:"name"`
	WikidataID string `json:"wikidataId"`
	Language   string `json:"language,omitempty"`
}

// rawContent mirrors the wire shape: either a bare string (legacy,
// text-embedding only) or a mapping carrying at least text and model.
type rawContent struct {
	Text                  string                `json:"text"`
	Model                 string                `json:"model" validate:"required"`
	Personalities         []SeverityPersonality `json:"personalities"`
	PersonalityWikidataID *string               `json:"personalityWikidataId"` // legacy scalar form; rejected
	Topics                []SeverityTopic       `json:"topics"`
	ImpactArea            SeverityImpactArea    `json:"impactArea"`
}

// DefaultEmbeddingModel is used when the legacy bare-string content form is
// decoded for a text-embedding task.
const DefaultEmbeddingModel = "default-embedding-model"

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// DecodeTaskContent parses raw into the TaskContent variant for kind.
// Absence of a required model is a fatal validation error
// (ErrInvalidArgument).
func DecodeTaskContent(kind TaskKind, raw []byte) (TaskContent, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		if kind != KindTextEmbedding {
			return TaskContent{}, fmt.Errorf("%w: bare string content is only valid for %s", ErrInvalidArgument, KindTextEmbedding)
		}
		return TaskContent{Kind: kind, Text: asString, Model: DefaultEmbeddingModel}, nil
	}

	var rc rawContent
	if err := json.Unmarshal(raw, &rc); err != nil {
		return TaskContent{}, fmt.Errorf("%w: content is neither a string nor an object: %v", ErrInvalidArgument, err)
	}
	if err := getValidator().Struct(rc); err != nil {
		return TaskContent{}, fmt.Errorf("%w: Model is required in task content", ErrInvalidArgument)
	}

	tc := TaskContent{Kind: kind, Text: rc.Text, Model: rc.Model}

	if kind == KindDefiningSeverity {
		if rc.PersonalityWikidataID != nil {
			return TaskContent{}, fmt.Errorf("%w: personalityWikidataId scalar form is not accepted, use personalities[]", ErrInvalidArgument)
		}
		tc.PersonalityWikidataIDs = rc.Personalities
		tc.Topics = rc.Topics
		tc.ImpactArea = rc.ImpactArea
	}

	return tc, nil
}

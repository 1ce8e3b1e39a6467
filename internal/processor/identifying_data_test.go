package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

func TestIdentifyingData_CanProcess_OnlyIdentifyingDataKind(t *testing.T) {
	p := NewIdentifyingData(&fakeGateway{}, &fakeEnricher{}, nil)
	assert.True(t, p.CanProcess(domain.Task{Kind: domain.KindIdentifyingData}))
	assert.False(t, p.CanProcess(domain.Task{Kind: domain.KindTextEmbedding}))
}

func TestIdentifyingData_Process_ResolvesEachPersonalityViaEnricher(t *testing.T) {
	gateway := &fakeGateway{
		supportsModel: true,
		generateContent: `[
			{"name": "Alice Example", "mentioned_as": "Alice", "confidence": 0.9, "context": "she said..."},
			{"name": "Unknown Person", "mentioned_as": "someone", "confidence": 0.4, "context": "..."}
		]`,
	}
	enricher := &fakeEnricher{byName: map[string]*domain.KGEntity{
		"Alice Example": {ID: "Q1", Label: "Alice Example", Description: "a person"},
	}}
	p := NewIdentifyingData(gateway, enricher, nil)
	task := domain.Task{ID: "t1", Kind: domain.KindIdentifyingData, Content: []byte(`{"text":"some article","model":"m"}`)}

	result := p.Process(context.Background(), task)

	require.Equal(t, domain.TaskSucceeded, result.Status)
	out, ok := result.Output.([]IdentifiedPersonality)
	require.True(t, ok)
	require.Len(t, out, 2)
	require.NotNil(t, out[0].Wikidata)
	assert.Equal(t, "Q1", out[0].Wikidata.ID)
	assert.Nil(t, out[1].Wikidata)

	require.Len(t, enricher.lastMentions, 2)
	assert.Equal(t, "Alice Example", enricher.lastMentions[0].Name)
	assert.Equal(t, "Alice", enricher.lastMentions[0].MentionedAs)
}

func TestIdentifyingData_Process_MalformedModelResponseDegradesToEmpty(t *testing.T) {
	gateway := &fakeGateway{supportsModel: true, generateContent: "I could not find any structured data."}
	p := NewIdentifyingData(gateway, &fakeEnricher{}, nil)
	task := domain.Task{ID: "t1", Kind: domain.KindIdentifyingData, Content: []byte(`{"text":"x","model":"m"}`)}

	result := p.Process(context.Background(), task)

	require.Equal(t, domain.TaskSucceeded, result.Status)
	out, ok := result.Output.([]IdentifiedPersonality)
	require.True(t, ok)
	assert.Empty(t, out)
}

func TestIdentifyingData_Process_EnrichmentFailureDegradesGracefully(t *testing.T) {
	gateway := &fakeGateway{
		supportsModel:   true,
		generateContent: `[{"name": "Alice Example", "mentioned_as": "Alice", "confidence": 0.9, "context": "c"}]`,
	}
	enricher := &fakeEnricher{err: errFakeEnricherDown}
	p := NewIdentifyingData(gateway, enricher, nil)
	task := domain.Task{ID: "t1", Kind: domain.KindIdentifyingData, Content: []byte(`{"text":"x","model":"m"}`)}

	result := p.Process(context.Background(), task)

	require.Equal(t, domain.TaskSucceeded, result.Status)
	out, ok := result.Output.([]IdentifiedPersonality)
	require.True(t, ok)
	require.Len(t, out, 1)
	assert.Nil(t, out[0].Wikidata)
}

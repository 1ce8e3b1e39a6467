package processor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aletheiafact/ai-task-worker/internal/domain"
)

func TestDefiningSeverity_CanProcess_OnlyDefiningSeverityKind(t *testing.T) {
	p := NewDefiningSeverity(&fakeGateway{}, &fakeEnricher{}, nil)
	assert.True(t, p.CanProcess(domain.Task{Kind: domain.KindDefiningSeverity}))
	assert.False(t, p.CanProcess(domain.Task{Kind: domain.KindDefiningImpact}))
}

func TestDefiningSeverity_Process_ClassifiesHighestPrioritySubstring(t *testing.T) {
	gateway := &fakeGateway{supportsModel: true, generateContent: "A severidade estimada é high_3 neste caso."}
	p := NewDefiningSeverity(gateway, &fakeEnricher{}, nil)
	content := `{"text":"x","model":"m","personalities":[],"topics":[],"impactArea":{}}`
	task := domain.Task{ID: "t1", Kind: domain.KindDefiningSeverity, Content: []byte(content)}

	result := p.Process(context.Background(), task)

	require.Equal(t, domain.TaskSucceeded, result.Status)
	out, ok := result.Output.(SeverityOutput)
	require.True(t, ok)
	assert.Equal(t, "high_3", out.Severity)
}

func TestDefiningSeverity_Process_UnknownResponseDefaultsToMedium2(t *testing.T) {
	gateway := &fakeGateway{supportsModel: true, generateContent: "não sei responder"}
	p := NewDefiningSeverity(gateway, &fakeEnricher{}, nil)
	content := `{"text":"x","model":"m"}`
	task := domain.Task{ID: "t1", Kind: domain.KindDefiningSeverity, Content: []byte(content)}

	result := p.Process(context.Background(), task)

	require.Equal(t, domain.TaskSucceeded, result.Status)
	out, ok := result.Output.(SeverityOutput)
	require.True(t, ok)
	assert.Equal(t, "medium_2", out.Severity)
}

func TestDefiningSeverity_Process_ResolvesPersonalitiesTopicsAndImpactArea(t *testing.T) {
	gateway := &fakeGateway{supportsModel: true, generateContent: "critical"}
	enricher := &fakeEnricher{byID: map[string]*domain.KGEntity{
		"Q1":    {ID: "Q1", Label: "Alice Example", Description: "a politician"},
		"Q2":    {ID: "Q2", Label: "Elections", Description: "a recurring topic"},
		"Q1001": {ID: "Q1001", Label: "Public Health", Description: "impact area"},
	}}
	p := NewDefiningSeverity(gateway, enricher, nil)
	content := `{
		"text":"x","model":"m",
		"personalities":[{"name":"Alice Example","wikidataId":"Q1"}],
		"topics":[{"name":"Elections (provided)","wikidataId":"Q2"}],
		"impactArea":{"name":"Public Health (provided)","wikidataId":"Q1001"}
	}`
	task := domain.Task{ID: "t1", Kind: domain.KindDefiningSeverity, Content: []byte(content)}

	result := p.Process(context.Background(), task)

	require.Equal(t, domain.TaskSucceeded, result.Status)
	require.Equal(t, 1, gateway.generateCalls)
	assert.Contains(t, gateway.lastPrompt, "Alice Example: a politician")
	assert.Contains(t, gateway.lastPrompt, "Elections: a recurring topic")
	assert.Contains(t, gateway.lastPrompt, "Public Health: impact area")
	out, ok := result.Output.(SeverityOutput)
	require.True(t, ok)
	assert.Equal(t, "critical", out.Severity)
}

func TestDefiningSeverity_Process_PersonalityFallsBackWhenFetchFails(t *testing.T) {
	gateway := &fakeGateway{supportsModel: true, generateContent: "low_1"}
	enricher := &fakeEnricher{err: errFakeEnricherDown}
	p := NewDefiningSeverity(gateway, enricher, nil)
	content := `{
		"text":"x","model":"m",
		"personalities":[{"name":"Bob Nobody","wikidataId":"Q999"}],
		"topics":[{"name":"Elections","wikidataId":"Q2"}],
		"impactArea":{"name":"Public Health","wikidataId":"Q1001"}
	}`
	task := domain.Task{ID: "t1", Kind: domain.KindDefiningSeverity, Content: []byte(content)}

	result := p.Process(context.Background(), task)

	require.Equal(t, domain.TaskSucceeded, result.Status)
	assert.Contains(t, gateway.lastPrompt, "Bob Nobody (source: user_provided)")
	assert.Contains(t, gateway.lastPrompt, "Elections (source: user_provided)")
	assert.Contains(t, gateway.lastPrompt, "Public Health (source: user_provided)")
}

func TestDefiningSeverity_Process_WithoutIDsUsesUserProvidedFallback(t *testing.T) {
	gateway := &fakeGateway{supportsModel: true, generateContent: "medium_1"}
	p := NewDefiningSeverity(gateway, &fakeEnricher{}, nil)
	content := `{
		"text":"x","model":"m",
		"personalities":[{"name":"Carol Example"}],
		"topics":[{"name":"Unresolved Topic"}],
		"impactArea":{"name":"Unresolved Impact"}
	}`
	task := domain.Task{ID: "t1", Kind: domain.KindDefiningSeverity, Content: []byte(content)}

	result := p.Process(context.Background(), task)

	require.Equal(t, domain.TaskSucceeded, result.Status)
	assert.Contains(t, gateway.lastPrompt, "Carol Example (source: user_provided)")
	assert.Contains(t, gateway.lastPrompt, "Unresolved Topic (source: user_provided)")
	assert.Contains(t, gateway.lastPrompt, "Unresolved Impact (source: user_provided)")
}

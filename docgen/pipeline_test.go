package docgen

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthonyhu/aidocs/ai/llm"
	"github.com/anthonyhu/aidocs/chat"
	"github.com/anthonyhu/aidocs/internal/metrics"
	"github.com/anthonyhu/aidocs/internal/profile"
	"github.com/anthonyhu/aidocs/store"
	"github.com/anthonyhu/aidocs/store/storetest"
)

type scriptedGenerator struct {
	mu       sync.Mutex
	deltas   []string
	err      error
	requests [][]llm.Message
}

func (g *scriptedGenerator) ChatStream(ctx context.Context, messages []llm.Message) (<-chan string, <-chan *llm.CallStats, <-chan error) {
	g.mu.Lock()
	g.requests = append(g.requests, messages)
	g.mu.Unlock()

	contentCh := make(chan string)
	statsCh := make(chan *llm.CallStats, 1)
	errCh := make(chan error, 1)
	go func() {
		defer close(contentCh)
		defer close(statsCh)
		defer close(errCh)
		for _, d := range g.deltas {
			select {
			case contentCh <- d:
			case <-ctx.Done():
				return
			}
		}
		if g.err != nil {
			errCh <- g.err
			return
		}
		statsCh <- &llm.CallStats{}
	}()
	return contentCh, statsCh, errCh
}

func newTestPipeline(gen Generator) (*Pipeline, *storetest.Driver) {
	driver := storetest.New()
	st := store.New(driver, &profile.Profile{})
	return NewPipeline(st, metrics.NewExporter(), gen, 1), driver
}

func sampleSnapshot() []chat.Message {
	return []chat.Message{
		{Role: chat.RoleSystem, Content: "you are a consultant"},
		{Role: chat.RoleUser, Content: "let's plan the project"},
		{Role: chat.RoleAssistant, Content: "what is the scope?"},
		{Role: chat.RoleUser, Content: ""},
	}
}

func TestFlattenDialogue(t *testing.T) {
	flat := FlattenDialogue(sampleSnapshot())
	// System entries and empty content are excluded; the rest becomes one
	// role-prefixed line each.
	assert.Equal(t, "user: let's plan the project\nassistant: what is the scope?", flat)
}

func TestSynthesizeBuildsSingleSyntheticTurn(t *testing.T) {
	gen := &scriptedGenerator{deltas: []string{"# Title\n", "content"}}
	pipeline, _ := newTestPipeline(gen)

	var streamed []string
	draft, err := pipeline.Synthesize(context.Background(), sampleSnapshot(), "make a document", 9, func(d string) {
		streamed = append(streamed, d)
	})
	require.NoError(t, err)

	assert.Equal(t, "# Title\ncontent", draft.Content)
	assert.Equal(t, int32(9), draft.SourceConversationID)
	assert.Equal(t, "make a document", draft.GeneratePrompt)
	assert.Equal(t, []string{"# Title\n", "content"}, streamed)

	require.Len(t, gen.requests, 1)
	request := gen.requests[0]
	require.Len(t, request, 2)
	assert.Equal(t, "system", request[0].Role)
	assert.Equal(t, "make a document", request[0].Content)
	assert.Equal(t, "user", request[1].Role)
	assert.Equal(t, FlattenDialogue(sampleSnapshot()), request[1].Content)
}

func TestSynthesizeReturnsPartialDraftOnStreamFailure(t *testing.T) {
	gen := &scriptedGenerator{deltas: []string{"partial"}, err: errors.New("boom")}
	pipeline, _ := newTestPipeline(gen)

	draft, err := pipeline.Synthesize(context.Background(), sampleSnapshot(), "prompt", 1, nil)
	require.Error(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, "partial", draft.Content)
}

func TestSaveDraftDerivesTitle(t *testing.T) {
	pipeline, driver := newTestPipeline(&scriptedGenerator{})

	doc, err := pipeline.SaveDraft(context.Background(), &Draft{
		Content:              "# Project Charter\n\nbody text",
		SourceConversationID: 3,
		GeneratePrompt:       "prompt",
		DocTypeName:          "project-charter",
	}, "")
	require.NoError(t, err)

	assert.Equal(t, "Project Charter", doc.Title)
	assert.NotEmpty(t, doc.UID)

	docs := driver.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, int32(3), docs[0].ConversationID)
	assert.Equal(t, "prompt", docs[0].GeneratePrompt)
	assert.Equal(t, "project-charter", docs[0].DocTypeName)
}

func TestSaveDraftKeepsExplicitTitle(t *testing.T) {
	pipeline, _ := newTestPipeline(&scriptedGenerator{})

	doc, err := pipeline.SaveDraft(context.Background(), &Draft{Content: "# Derived\nbody"}, "Chosen Title")
	require.NoError(t, err)
	assert.Equal(t, "Chosen Title", doc.Title)
}

func TestSaveDraftRejectsEmptyDraft(t *testing.T) {
	pipeline, _ := newTestPipeline(&scriptedGenerator{})
	_, err := pipeline.SaveDraft(context.Background(), &Draft{}, "")
	assert.Error(t, err)
}

func TestUpdateDocument(t *testing.T) {
	pipeline, driver := newTestPipeline(&scriptedGenerator{})

	doc, err := pipeline.SaveDraft(context.Background(), &Draft{Content: "v1"}, "Doc")
	require.NoError(t, err)

	updated, err := pipeline.UpdateDocument(context.Background(), doc.ID, "v2")
	require.NoError(t, err)
	assert.Equal(t, "v2", updated.Content)
	assert.Len(t, driver.Documents(), 1)

	_, err = pipeline.UpdateDocument(context.Background(), 999, "v3")
	assert.Error(t, err)
}

func TestDocTypeCatalog(t *testing.T) {
	types := DocTypes()
	require.NotEmpty(t, types)
	for _, dt := range types {
		assert.NotEmpty(t, dt.Name)
		assert.NotEmpty(t, dt.ChatPrompt)
		assert.NotEmpty(t, dt.GeneratePrompt)
	}

	got, ok := GetDocType("research-outline")
	require.True(t, ok)
	assert.Equal(t, "Research Outline", got.Title)

	_, ok = GetDocType("nope")
	assert.False(t, ok)
}

package dispatch

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexion-ai/threadbot/internal/completion"
	"github.com/apexion-ai/threadbot/internal/moderation"
	"github.com/apexion-ai/threadbot/internal/prompt"
	"github.com/apexion-ai/threadbot/internal/provider"
)

type stubBackend struct {
	reply string
	err   error
}

func (s stubBackend) Complete(context.Context, *provider.Request) (string, error) {
	return s.reply, s.err
}
func (stubBackend) Name() string         { return "stub" }
func (stubBackend) DefaultModel() string { return "stub-1" }
func (stubBackend) ContextWindow() int   { return 0 }

type stubGate moderation.Verdict

func (g stubGate) Classify(context.Context, string, string) (moderation.Verdict, error) {
	return moderation.Verdict(g), nil
}

// wordRenderer counts one token per word of message text.
type wordRenderer struct{}

func (wordRenderer) Render(p prompt.Prompt) prompt.Rendered {
	var parts []string
	for _, m := range p.Convo {
		parts = append(parts, m.Text)
	}
	return prompt.TextPrompt(strings.Join(parts, " "))
}
func (wordRenderer) Serialize(m prompt.Message) string { return m.Text }
func (wordRenderer) Stop() []string                    { return nil }

func runPipeline(t *testing.T, backend provider.Backend, gate moderation.Gate) (completion.Outcome, *recorder, *fakeThread, *fakeModLog) {
	t.Helper()
	engine, err := completion.New(completion.Options{
		Backend:   backend,
		Gate:      gate,
		Tokenizer: prompt.TokenizerFunc(func(s string) int { return len(strings.Fields(s)) }),
		Renderer:  wordRenderer{},
		Budget:    prompt.Budget{Ceiling: 100, Reserved: 20},
	})
	require.NoError(t, err)

	history := prompt.Conversation{
		{Author: "alice", Text: strings.Repeat("w ", 20)},
		{Author: "bot", Text: strings.Repeat("w ", 20)},
		{Author: "alice", Text: strings.Repeat("w ", 10)},
	}
	outcome := engine.Generate(context.Background(), history, "u1")

	rec, thread, modlog, d := fixture()
	require.NoError(t, d.Dispatch(context.Background(), "u1", thread, outcome))
	return outcome, rec, thread, modlog
}

func TestPipeline_OK(t *testing.T) {
	outcome, _, thread, modlog := runPipeline(t, stubBackend{reply: "ok"}, stubGate{})

	assert.Equal(t, completion.OK{Reply: "ok"}, outcome)
	assert.Equal(t, []string{"ok"}, thread.sent)
	assert.Empty(t, thread.notices)
	assert.Empty(t, modlog.flagged)
}

func TestPipeline_ContextLength(t *testing.T) {
	err := &provider.RequestError{Provider: "stub", Message: "maximum context length is 4097 tokens", Err: provider.ErrContextLength}

	outcome, rec, thread, _ := runPipeline(t, stubBackend{err: err}, stubGate{})

	assert.Equal(t, completion.TooLong{Detail: "maximum context length is 4097 tokens"}, outcome)
	assert.Empty(t, thread.sent)
	assert.Equal(t, 1, thread.closes)
	assert.Equal(t, []string{"close"}, rec.events)
}

func TestPipeline_Flagged(t *testing.T) {
	outcome, rec, thread, modlog := runPipeline(t, stubBackend{reply: "a violent reply"}, stubGate{Flagged: "violence"})

	assert.Equal(t, completion.Flagged{Reply: "a violent reply", Categories: "violence"}, outcome)
	assert.Equal(t, "from_response:violence", outcome.StatusText())
	assert.Equal(t, []string{"a violent reply"}, thread.sent)
	assert.Equal(t, []string{
		"send m1",
		"modlog flagged https://chat.example/t1/m1",
		"notify warning",
	}, rec.events)
	require.Len(t, modlog.flagged, 1)
	assert.Equal(t, "a violent reply", modlog.flagged[0].Text)
	assert.Equal(t, "from_response:violence", modlog.flagged[0].Categories)
}

func TestPipeline_BlockedWins(t *testing.T) {
	outcome, _, thread, modlog := runPipeline(t, stubBackend{reply: "bad"}, stubGate{Flagged: "violence", Blocked: "hate"})

	assert.Equal(t, completion.StatusModerationBlocked, outcome.Status())
	assert.Empty(t, thread.sent)
	assert.Len(t, modlog.blocked, 1)
	assert.Empty(t, modlog.flagged)
}

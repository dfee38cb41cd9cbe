package stage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthloom/wyrmhall/completion"
	"github.com/hearthloom/wyrmhall/logging"
	"github.com/hearthloom/wyrmhall/pipeline/envelope"
)

func userInputEnvelope(content string) *envelope.MessageEnvelope {
	env := envelope.New("player", content, envelope.StageRef{Name: StageUserInput},
		envelope.WithType("user_input"),
		envelope.WithConversation("conv_1", 3, "player"),
	)
	env.Status = envelope.StatusProcessing
	return env
}

func TestBrokerForwardsCompletionOutput(t *testing.T) {
	var gotPrompt string
	completer := completion.Func(func(ctx context.Context, model, prompt string, options map[string]any) (string, error) {
		gotPrompt = prompt
		return "actor.henry.WAIT()\n", nil
	})
	s := NewBroker(completer, "wyrm-large", 5, logging.Nop())
	env := userInputEnvelope("Henry waits for a moment.")

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusDone, outcome.Final)
	require.Len(t, outcome.Forwards, 1)

	fwd := outcome.Forwards[0]
	assert.Equal(t, DestinationPipeline, fwd.To)
	assert.Equal(t, "interpreted_1", fwd.Env.Stage)
	assert.Equal(t, "actor.henry.WAIT()", fwd.Env.Content)
	assert.Equal(t, "candidate_command", fwd.Env.Type)
	assert.Equal(t, env.CorrelationID, fwd.Env.CorrelationID)
	assert.Equal(t, "conv_1", fwd.Env.ConversationID)
	assert.Contains(t, gotPrompt, "Henry waits for a moment.")
}

// A bounced error re-prompts at the iteration the interpreter asked for.
func TestBrokerRepromptKeepsIteration(t *testing.T) {
	completer := completion.Func(func(ctx context.Context, model, prompt string, options map[string]any) (string, error) {
		assert.Contains(t, prompt, "resolve_error")
		assert.Contains(t, prompt, "npc_not_found")
		return "actor.henry.WAIT()", nil
	})
	s := NewBroker(completer, "wyrm-large", 5, logging.Nop())

	env := envelope.New("interpreter", "actor.henry.ATTACK(target=npc.ghost)",
		envelope.StageRef{Name: StageBrokerError, Iteration: 3})
	env.Status = envelope.StatusProcessing
	envelope.ResolveErrorMeta{
		ErrorReason:    "resolve_error",
		Errors:         []envelope.ErrorEntry{{Code: "npc_not_found", Message: "npc.ghost: npc_not_found", Ref: "npc.ghost"}},
		ErrorIteration: 3,
	}.ApplyTo(env)

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, outcome.Forwards, 1)
	assert.Equal(t, "interpreted_3", outcome.Forwards[0].Env.Stage)
}

func TestBrokerBouncesCompletionFailure(t *testing.T) {
	completer := completion.Func(func(ctx context.Context, model, prompt string, options map[string]any) (string, error) {
		return "", errors.New("backend down")
	})
	s := NewBroker(completer, "wyrm-large", 5, logging.Nop())
	env := userInputEnvelope("Henry waits.")

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusDone, outcome.Final)
	require.Len(t, outcome.Forwards, 1)

	fwd := outcome.Forwards[0]
	assert.Equal(t, "broker_error_1", fwd.Env.Stage)
	meta, ok := envelope.ResolveErrorMetaOf(fwd.Env)
	require.True(t, ok)
	assert.Equal(t, "completion_error", meta.ErrorReason)
	assert.Equal(t, 1, meta.ErrorIteration)
}

func TestBrokerForwardsRawTextAtLimit(t *testing.T) {
	completer := completion.Func(func(ctx context.Context, model, prompt string, options map[string]any) (string, error) {
		return "", errors.New("still down")
	})
	s := NewBroker(completer, "wyrm-large", 5, logging.Nop())

	env := envelope.New("broker", "actor.henry.WAIT()",
		envelope.StageRef{Name: StageBrokerError, Iteration: 5})
	env.Status = envelope.StatusProcessing

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, outcome.Forwards, 1)

	fwd := outcome.Forwards[0]
	assert.Equal(t, "interpreted_5", fwd.Env.Stage)
	assert.True(t, envelope.IsDegraded(fwd.Env))
	meta, _ := envelope.DegradedMetaOf(fwd.Env)
	require.Len(t, meta.Warnings, 1)
	assert.True(t, strings.Contains(meta.Warnings[0], "completion backend unavailable"))
}

func TestBrokerEmptyContentIsTerminal(t *testing.T) {
	s := NewBroker(completion.Echo{}, "wyrm-large", 5, logging.Nop())
	env := userInputEnvelope("   ")

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusError, outcome.Final)
}

func TestBrokerMatch(t *testing.T) {
	s := NewBroker(completion.Echo{}, "wyrm-large", 5, logging.Nop())
	assert.True(t, s.Match(userInputEnvelope("x")))

	bounced := envelope.New("interpreter", "x", envelope.StageRef{Name: StageBrokerError, Iteration: 2})
	assert.True(t, s.Match(bounced))

	interpreted := envelope.New("broker", "x", envelope.StageRef{Name: StageInterpreted, Iteration: 1})
	assert.False(t, s.Match(interpreted))
}

package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthloom/wyrmhall/logging"
	"github.com/hearthloom/wyrmhall/pipeline/envelope"
	"github.com/hearthloom/wyrmhall/world"
)

func seededWorld() *world.MemStore {
	s := world.NewMemStore()
	loc := world.TileCoord{W: 3, H: 4, RX: 1, RY: 2, X: 5, Y: 6}
	s.PutActor(&world.Actor{ID: "henry", Name: "Henry", Location: loc})
	s.PutNPC(&world.NPC{ID: "grenda", Name: "Grenda", Location: loc})
	s.PutItem(&world.Item{ID: "axe", Name: "Hand Axe", Holder: "henry"})
	s.PutTile(&world.Tile{Coord: loc, Terrain: "forest"})
	s.PutRegion(&world.Region{Coord: loc.Region(), Name: "Darkwood"})
	return s
}

func interpretedEnvelope(content string, iteration int) *envelope.MessageEnvelope {
	env := envelope.New("broker", content, envelope.StageRef{Name: StageInterpreted, Iteration: iteration})
	env.Status = envelope.StatusProcessing
	return env
}

func TestInterpreterForwardsValidText(t *testing.T) {
	s := NewInterpreter(seededWorld(), 5, logging.Nop())
	env := interpretedEnvelope(`actor.henry.ATTACK(target=npc.grenda, tool=item.axe)`, 1)

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusDone, outcome.Final)
	require.Len(t, outcome.Forwards, 1)

	fwd := outcome.Forwards[0]
	assert.Equal(t, DestinationOutbound, fwd.To)
	assert.Equal(t, "resolved_1", fwd.Env.Stage)
	assert.Equal(t, env.ID, fwd.Env.ReplyTo)
	assert.Equal(t, env.CorrelationID, fwd.Env.CorrelationID)
	assert.False(t, envelope.IsDegraded(fwd.Env))

	meta := envelope.InterpretMetaOf(fwd.Env)
	assert.Contains(t, meta.Resolved, "actor.henry")
	assert.Contains(t, meta.Resolved, "npc.grenda")
	assert.Contains(t, meta.Resolved, "item.axe")
}

func TestInterpreterBouncesParseFailure(t *testing.T) {
	s := NewInterpreter(seededWorld(), 5, logging.Nop())
	env := interpretedEnvelope(`actor.henry.ATTACK(target=`, 1)

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusDone, outcome.Final)
	require.Len(t, outcome.Forwards, 1)

	fwd := outcome.Forwards[0]
	assert.Equal(t, DestinationPipeline, fwd.To)
	assert.Equal(t, "broker_error_2", fwd.Env.Stage)

	meta, ok := envelope.ResolveErrorMetaOf(fwd.Env)
	require.True(t, ok)
	assert.Equal(t, "parse_error", meta.ErrorReason)
	assert.Equal(t, 2, meta.ErrorIteration)
	assert.NotEmpty(t, meta.Errors)
}

func TestInterpreterRepairsWithNormalizer(t *testing.T) {
	s := NewInterpreter(seededWorld(), 5, logging.Nop())
	env := interpretedEnvelope(`actor.henry.CONFIGURE(config={power: 3,})`, 1)

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, outcome.Forwards, 1)
	assert.Equal(t, "resolved_1", outcome.Forwards[0].Env.Stage)
}

func TestInterpreterBouncesLintFailure(t *testing.T) {
	s := NewInterpreter(seededWorld(), 5, logging.Nop())
	env := interpretedEnvelope(`actor.henry.ATTACK(npc.grenda, tool=item.axe)`, 1)

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, outcome.Forwards, 1)

	meta, ok := envelope.ResolveErrorMetaOf(outcome.Forwards[0].Env)
	require.True(t, ok)
	assert.Equal(t, "validation_error", meta.ErrorReason)
}

func TestInterpreterBouncesResolveFailure(t *testing.T) {
	s := NewInterpreter(seededWorld(), 5, logging.Nop())
	env := interpretedEnvelope(`actor.henry.ATTACK(target=npc.xyzzyplugh, tool=item.axe)`, 2)

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, outcome.Forwards, 1)
	assert.Equal(t, "broker_error_3", outcome.Forwards[0].Env.Stage)

	meta, ok := envelope.ResolveErrorMetaOf(outcome.Forwards[0].Env)
	require.True(t, ok)
	assert.Equal(t, "resolve_error", meta.ErrorReason)
	require.NotEmpty(t, meta.Errors)
	assert.Equal(t, "npc_not_found", meta.Errors[0].Code)
	assert.Equal(t, "npc.xyzzyplugh", meta.Errors[0].Ref)
}

// A close misspelling of a nearby NPC corrects in place and still forwards.
func TestInterpreterAutocorrectsNPCReference(t *testing.T) {
	s := NewInterpreter(seededWorld(), 5, logging.Nop())
	env := interpretedEnvelope(`actor.henry.ATTACK(target=npc.grenada, tool=item.axe)`, 1)

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, outcome.Forwards, 1)

	fwd := outcome.Forwards[0]
	assert.Equal(t, "resolved_1", fwd.Env.Stage)
	assert.Contains(t, fwd.Env.Content, "npc.grenda")
	assert.NotContains(t, fwd.Env.Content, "npc.grenada")

	meta := envelope.InterpretMetaOf(fwd.Env)
	assert.Contains(t, meta.Notes, "npc_autocorrect:grenada->grenda")
	assert.Contains(t, meta.Resolved, "npc.grenda")
}

func TestInterpreterDegradesAtLimit(t *testing.T) {
	s := NewInterpreter(seededWorld(), 5, logging.Nop())
	env := interpretedEnvelope(`actor.henry.ATTACK(target=npc.xyzzyplugh, tool=item.axe)`, 5)

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusDone, outcome.Final)
	require.Len(t, outcome.Forwards, 1)

	fwd := outcome.Forwards[0]
	assert.Equal(t, DestinationOutbound, fwd.To)
	assert.Equal(t, "resolved_5", fwd.Env.Stage)
	require.True(t, envelope.IsDegraded(fwd.Env))

	meta, ok := envelope.DegradedMetaOf(fwd.Env)
	require.True(t, ok)
	assert.NotEmpty(t, meta.Warnings)
	// The unresolvable reference got a representative placeholder binding.
	assert.Contains(t, meta.Resolved, "npc.xyzzyplugh")
}

func TestInterpreterEmptyContentIsTerminal(t *testing.T) {
	s := NewInterpreter(seededWorld(), 5, logging.Nop())
	env := interpretedEnvelope("   \n  ", 1)

	outcome, err := s.Process(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, envelope.StatusError, outcome.Final)
	assert.Empty(t, outcome.Forwards)
}

func TestInterpreterMatch(t *testing.T) {
	s := NewInterpreter(seededWorld(), 5, logging.Nop())
	assert.True(t, s.Match(interpretedEnvelope("x", 1)))
	assert.True(t, s.Match(interpretedEnvelope("x", 0)))

	other := envelope.New("player", "x", envelope.StageRef{Name: StageUserInput})
	assert.False(t, s.Match(other))
}

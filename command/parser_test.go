package command

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// HAPPY PATH TESTS
// =============================================================================

func TestParseAttackCommand(t *testing.T) {
	result := Parse("actor.henry.ATTACK(target=npc.grenda,tool=actor.henry.hands,action_cost=FULL)")

	require.Empty(t, result.Errors)
	require.Len(t, result.Commands, 1)

	node := result.Commands[0]
	assert.Equal(t, "actor.henry", node.Subject)
	assert.Equal(t, "ATTACK", node.Verb)
	require.Len(t, node.Args, 3)

	target, ok := node.Arg("target")
	require.True(t, ok)
	assert.Equal(t, ValueReference, target.Kind)
	assert.Equal(t, "npc.grenda", target.Text)

	tool, ok := node.Arg("tool")
	require.True(t, ok)
	assert.Equal(t, ValueReference, tool.Kind)
	assert.Equal(t, "actor.henry.hands", tool.Text)

	cost, ok := node.Arg("action_cost")
	require.True(t, ok)
	assert.Equal(t, ValueSymbol, cost.Kind)
	assert.Equal(t, "FULL", cost.Text)
}

func TestParseOneCommandPerLine(t *testing.T) {
	text := "actor.henry.WAIT()\n\nnpc.grenda.SPEAK(text=\"hello\")\n"
	result := Parse(text)

	require.Empty(t, result.Errors)
	require.Len(t, result.Commands, 2)
	assert.Equal(t, 1, result.Commands[0].Line)
	assert.Equal(t, 3, result.Commands[1].Line)
	assert.Equal(t, "WAIT", result.Commands[0].Verb)
	assert.Equal(t, "SPEAK", result.Commands[1].Verb)
}

func TestParseTileSubject(t *testing.T) {
	result := Parse("tile.3.4.1.2.5.6.DESCRIBE()")

	require.Empty(t, result.Errors)
	require.Len(t, result.Commands, 1)
	assert.Equal(t, "tile.3.4.1.2.5.6", result.Commands[0].Subject)
	assert.Equal(t, "DESCRIBE", result.Commands[0].Verb)
}

func TestParseSystemVerb(t *testing.T) {
	result := Parse(`SYSTEM.SPAWN_NPC(template="bandit", at=region_tile.1.1.4.2)`)

	require.Empty(t, result.Errors)
	require.Len(t, result.Commands, 1)
	node := result.Commands[0]
	assert.Equal(t, "SYSTEM", node.Subject)
	assert.Equal(t, "SYSTEM.SPAWN_NPC", node.Verb)

	at, ok := node.Arg("at")
	require.True(t, ok)
	assert.Equal(t, ValueReference, at.Kind)
	assert.Equal(t, "region_tile.1.1.4.2", at.Text)
}

func TestParseValueShapes(t *testing.T) {
	result := Parse(`actor.henry.CAST(spell="fire bolt", power=2.5, reach=3, targets=[npc.a, npc.b], shape={form=CONE, width=2})`)

	require.Empty(t, result.Errors)
	node := result.Commands[0]

	spell, _ := node.Arg("spell")
	assert.Equal(t, Value{Kind: ValueString, Text: "fire bolt"}, spell)

	power, _ := node.Arg("power")
	assert.Equal(t, Value{Kind: ValueNumber, Text: "2.5"}, power)

	reach, _ := node.Arg("reach")
	assert.Equal(t, Value{Kind: ValueNumber, Text: "3"}, reach)

	targets, _ := node.Arg("targets")
	require.Equal(t, ValueList, targets.Kind)
	require.Len(t, targets.List, 2)
	assert.Equal(t, "npc.a", targets.List[0].Text)

	shape, _ := node.Arg("shape")
	require.Equal(t, ValueObject, shape.Kind)
	require.Len(t, shape.Object, 2)
	assert.Equal(t, "form", shape.Object[0].Name)
	assert.Equal(t, ValueSymbol, shape.Object[0].Value.Kind)
}

func TestParseNestedObjects(t *testing.T) {
	result := Parse(`actor.henry.MOVE(path={start={x=1, y=2}, waypoints=[{x=3, y=4}]})`)

	require.Empty(t, result.Errors)
	path, ok := result.Commands[0].Arg("path")
	require.True(t, ok)
	require.Equal(t, ValueObject, path.Kind)
	assert.Equal(t, "start", path.Object[0].Name)
	assert.Equal(t, ValueObject, path.Object[0].Value.Kind)
}

func TestParseDeterministic(t *testing.T) {
	text := "actor.henry.ATTACK(target=npc.grenda,tool=actor.henry.hands)\nnpc.grenda.FLEE()"
	first := Parse(text)
	second := Parse(text)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("parse is not deterministic (-first +second):\n%s", diff)
	}
}

func TestParseEmptyInputIsAnError(t *testing.T) {
	for _, text := range []string{"", "   ", "\n   \n\t\n"} {
		result := Parse(text)
		assert.Empty(t, result.Commands)
		require.Len(t, result.Errors, 1, "input %q", text)
		assert.Equal(t, CodeEmptyLine, result.Errors[0].Code)
	}
}

func TestParseBlankLinesBetweenCommandsAreSkipped(t *testing.T) {
	result := Parse("actor.henry.LOOK()\n\n   \nactor.henry.WAIT()")
	require.Empty(t, result.Errors)
	assert.Len(t, result.Commands, 2)
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestParseErrorPositions(t *testing.T) {
	result := Parse("actor.henry.ATTACK(target=)")

	require.Len(t, result.Errors, 1)
	err := result.Errors[0]
	assert.Equal(t, CodeUnexpectedToken, err.Code)
	assert.Equal(t, 1, err.Line)
	assert.Equal(t, 27, err.Column)
}

func TestParseErrorDoesNotHideOtherLines(t *testing.T) {
	text := "actor.henry.attack(target=npc.grenda)\nactor.henry.WAIT()"
	result := Parse(text)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeVerbNotUppercase, result.Errors[0].Code)
	require.Len(t, result.Commands, 1)
	assert.Equal(t, "WAIT", result.Commands[0].Verb)
	assert.Equal(t, 2, result.Commands[0].Line)
}

func TestParseUnknownSubjectKind(t *testing.T) {
	result := Parse("ghost.wisp.MOAN()")

	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeBadSubject, result.Errors[0].Code)
}

func TestParseMissingParen(t *testing.T) {
	result := Parse("actor.henry.WAIT")

	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeMissingParen, result.Errors[0].Code)
}

func TestParseUnterminatedString(t *testing.T) {
	result := Parse(`npc.grenda.SPEAK(text="hello`)

	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeUnterminatedValue, result.Errors[0].Code)
}

func TestParseTrailingInput(t *testing.T) {
	result := Parse("actor.henry.WAIT() extra")

	require.Len(t, result.Errors, 1)
	assert.Equal(t, CodeTrailingInput, result.Errors[0].Code)
}

func TestParseDuplicateArgumentWarns(t *testing.T) {
	result := Parse("actor.henry.ATTACK(target=npc.a, target=npc.b, tool=actor.henry.hands)")

	require.Empty(t, result.Errors)
	require.Len(t, result.Warnings, 1)
	assert.Equal(t, CodeDuplicateArgument, result.Warnings[0].Code)
}

// =============================================================================
// REFERENCE EXTRACTION TESTS
// =============================================================================

func TestReferencesCoverSubjectAndArgs(t *testing.T) {
	result := Parse(`actor.henry.CAST(spell="bolt", targets=[npc.a, npc.b], origin={from=tile.1.1.1.1.2.3}, cost=FULL)`)

	require.Empty(t, result.Errors)
	refs := result.Commands[0].References()
	assert.Equal(t, []string{"actor.henry", "npc.a", "npc.b", "tile.1.1.1.1.2.3"}, refs)
}

func TestReferencesSkipSystemSubject(t *testing.T) {
	result := Parse("SYSTEM.SAVE()")

	require.Empty(t, result.Errors)
	assert.Empty(t, result.Commands[0].References())
}

func TestReferencesDeduplicate(t *testing.T) {
	result := Parse("actor.henry.HEAL(target=actor.henry, tool=item.salve)")

	require.Empty(t, result.Errors)
	refs := result.Commands[0].References()
	assert.Equal(t, []string{"actor.henry", "item.salve"}, refs)
}

// =============================================================================
// RENDER TESTS
// =============================================================================

func TestCommandNodeString(t *testing.T) {
	result := Parse(`actor.henry.ATTACK(target=npc.grenda, tool=actor.henry.hands, note="go \"now\"")`)

	require.Empty(t, result.Errors)
	rendered := result.Commands[0].String()
	reparsed := Parse(rendered)
	require.Empty(t, reparsed.Errors)
	assert.Equal(t, result.Commands, reparsed.Commands)
}

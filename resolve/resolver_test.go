package resolve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthloom/wyrmhall/command"
	"github.com/hearthloom/wyrmhall/world"
)

func seededStore() *world.MemStore {
	s := world.NewMemStore()
	loc := world.TileCoord{W: 3, H: 4, RX: 1, RY: 2, X: 5, Y: 6}
	s.PutActor(&world.Actor{ID: "henry", Name: "Henry", Location: loc})
	s.PutNPC(&world.NPC{ID: "grenda", Name: "Grenda", Location: loc})
	s.PutNPC(&world.NPC{ID: "threk", Name: "Threk", Location: loc})
	s.PutItem(&world.Item{ID: "axe", Name: "Hand Axe", Holder: "henry"})
	s.PutTile(&world.Tile{Coord: loc, Terrain: "forest"})
	s.PutRegion(&world.Region{Coord: loc.Region(), Name: "Darkwood"})
	s.PutPlace(&world.Place{ID: "mill", Name: "Old Mill", Region: loc.Region()})
	return s
}

func mustParse(t *testing.T, text string) []command.CommandNode {
	t.Helper()
	res := command.Parse(text)
	require.Empty(t, res.Errors)
	return res.Commands
}

func TestResolveAllKinds(t *testing.T) {
	r := New(seededStore())
	cmds := mustParse(t, `actor.henry.ATTACK(target=npc.grenda, tool=item.axe, at=tile.3.4.1.2.5.6, near=place.mill, zone=region_tile.3.4.1.2)`)

	result, err := r.Resolve(context.Background(), cmds, false)
	require.NoError(t, err)
	assert.True(t, result.OK())

	require.Contains(t, result.Resolved, "actor.henry")
	assert.Equal(t, "Henry", result.Resolved["actor.henry"].Name)
	require.Contains(t, result.Resolved, "npc.grenda")
	require.Contains(t, result.Resolved, "item.axe")
	require.Contains(t, result.Resolved, "tile.3.4.1.2.5.6")
	assert.Equal(t, "forest", result.Resolved["tile.3.4.1.2.5.6"].Name)
	require.Contains(t, result.Resolved, "place.mill")
	require.Contains(t, result.Resolved, "region_tile.3.4.1.2")
	assert.Equal(t, "Darkwood", result.Resolved["region_tile.3.4.1.2"].Name)
}

func TestResolveTrailingPathKept(t *testing.T) {
	r := New(seededStore())
	cmds := mustParse(t, `actor.henry.USE(tool=actor.henry.hands)`)

	result, err := r.Resolve(context.Background(), cmds, false)
	require.NoError(t, err)
	require.Contains(t, result.Resolved, "actor.henry.hands")
	assert.Equal(t, "hands", result.Resolved["actor.henry.hands"].Path)
}

func TestResolveFailureReasons(t *testing.T) {
	r := New(seededStore())
	cases := []struct {
		text   string
		ref    string
		reason Reason
	}{
		{`actor.nobody.WAIT()`, "actor.nobody", ReasonActorNotFound},
		{`actor.henry.ATTACK(target=npc.ghost, tool=item.axe)`, "npc.ghost", ReasonNPCNotFound},
		{`actor.henry.USE(tool=item.unobtainium)`, "item.unobtainium", ReasonItemNotFound},
		{`actor.henry.GOTO(dest=tile.9.9.9.9.9.9)`, "tile.9.9.9.9.9.9", ReasonWorldTileMissing},
		{`actor.henry.GOTO(dest=region_tile.9.9.9.9)`, "region_tile.9.9.9.9", ReasonRegionNotFoundAtCoords},
		{`actor.henry.GOTO(dest=region_tile.1.2)`, "region_tile.1.2", ReasonRegionTileMissing},
		{`actor.henry.GOTO(dest=place.atlantis)`, "place.atlantis", ReasonPlaceNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.ref, func(t *testing.T) {
			result, err := r.Resolve(context.Background(), mustParse(t, tc.text), false)
			require.NoError(t, err)
			var found bool
			for _, e := range result.Errors {
				if e.Ref == tc.ref {
					found = true
					assert.Equal(t, tc.reason, e.Reason)
				}
			}
			assert.True(t, found, "expected failure for %s", tc.ref)
		})
	}
}

func TestResolvePlaceWithBrokenRegion(t *testing.T) {
	s := seededStore()
	s.PutPlace(&world.Place{ID: "ruin", Name: "Lost Ruin", Region: world.RegionCoord{W: 8, H: 8, RX: 0, RY: 0}})
	r := New(s)

	result, err := r.Resolve(context.Background(), mustParse(t, `actor.henry.GOTO(dest=place.ruin)`), false)
	require.NoError(t, err)
	failures := result.FailuresWithReason(ReasonRegionNotFound)
	require.Len(t, failures, 1)
	assert.Equal(t, "place.ruin", failures[0].Ref)
}

// Every reference appears in exactly one of the two outputs.
func TestResolveSoundness(t *testing.T) {
	r := New(seededStore())
	cmds := mustParse(t, `actor.henry.ATTACK(target=npc.ghost, tool=item.axe)
actor.nobody.GOTO(dest=place.mill)`)

	result, err := r.Resolve(context.Background(), cmds, false)
	require.NoError(t, err)

	seen := make(map[string]int)
	for ref := range result.Resolved {
		seen[ref]++
	}
	for _, e := range result.Errors {
		seen[e.Ref]++
	}
	for _, cmd := range cmds {
		for _, ref := range cmd.References() {
			assert.Equal(t, 1, seen[ref], "ref %s", ref)
		}
	}
}

func TestResolveRepresentativeData(t *testing.T) {
	r := New(seededStore())
	cmds := mustParse(t, `actor.henry.ATTACK(target=npc.ghost, tool=item.axe)`)

	result, err := r.Resolve(context.Background(), cmds, true)
	require.NoError(t, err)
	assert.True(t, result.OK())
	binding, ok := result.Resolved["npc.ghost"]
	require.True(t, ok)
	assert.True(t, binding.Representative)
	assert.Equal(t, "ghost", binding.ID)
}

func TestThreshold(t *testing.T) {
	assert.Equal(t, 1, Threshold(3))
	assert.Equal(t, 1, Threshold(4))
	assert.Equal(t, 2, Threshold(5))
	assert.Equal(t, 2, Threshold(8))
	assert.Equal(t, 3, Threshold(9))
	assert.Equal(t, 3, Threshold(20))
}

func TestSuggestNPC(t *testing.T) {
	store := seededStore()
	a := NewAutocorrector(store)
	region := world.RegionCoord{W: 3, H: 4, RX: 1, RY: 2}

	corr, ok, err := a.SuggestNPC(context.Background(), "grenada", &region)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "grenda", corr.New)
	assert.Equal(t, "npc_autocorrect:grenada->grenda", corr.Note())
}

func TestSuggestNPCRejectsDistantToken(t *testing.T) {
	a := NewAutocorrector(seededStore())

	_, ok, err := a.SuggestNPC(context.Background(), "xyzzyplugh", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSuggestNPCRejectsAmbiguousMatch(t *testing.T) {
	s := world.NewMemStore()
	s.PutNPC(&world.NPC{ID: "brend", Name: "Brend"})
	s.PutNPC(&world.NPC{ID: "brund", Name: "Brund"})
	a := NewAutocorrector(s)

	// "brand" is one edit from both candidates; no winner.
	_, ok, err := a.SuggestNPC(context.Background(), "brand", nil)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSuggestNPCPrefersRegionCandidates(t *testing.T) {
	s := world.NewMemStore()
	near := world.TileCoord{W: 1, H: 1, RX: 0, RY: 0, X: 0, Y: 0}
	far := world.TileCoord{W: 2, H: 2, RX: 0, RY: 0, X: 0, Y: 0}
	s.PutNPC(&world.NPC{ID: "marta", Name: "Marta", Location: near})
	s.PutNPC(&world.NPC{ID: "marla", Name: "Marla", Location: far})
	a := NewAutocorrector(s)

	region := near.Region()
	// Globally "marva" ties between the two; the local roster breaks the tie.
	corr, ok, err := a.SuggestNPC(context.Background(), "marva", &region)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "marta", corr.New)
}

func TestRewriteNPCRef(t *testing.T) {
	in := `actor.henry.ATTACK(target=npc.grenada, tool=item.axe)`
	out := RewriteNPCRef(in, "grenada", "grenda")
	assert.Contains(t, out, "target=npc.grenda")
	assert.NotContains(t, out, "npc.grenada")

	// Trailing property path survives the rewrite.
	assert.Equal(t, "tool=npc.grenda.id", RewriteNPCRef("tool=npc.grenada.id", "grenada", "grenda"))
	// Other NPCs untouched.
	assert.Equal(t, "target=npc.threk", RewriteNPCRef("target=npc.threk", "grenada", "grenda"))
}

// A misspelled NPC reference corrects to the nearby NPC and re-resolves.
func TestAutocorrectEndToEnd(t *testing.T) {
	store := seededStore()
	r := New(store)
	a := NewAutocorrector(store)
	ctx := context.Background()

	text := `actor.henry.ATTACK(target=npc.grenada, tool=item.axe)`
	result, err := r.Resolve(ctx, mustParse(t, text), false)
	require.NoError(t, err)
	failures := result.FailuresWithReason(ReasonNPCNotFound)
	require.Len(t, failures, 1)

	region := world.RegionCoord{W: 3, H: 4, RX: 1, RY: 2}
	corr, ok, err := a.SuggestNPC(ctx, "grenada", &region)
	require.NoError(t, err)
	require.True(t, ok)

	rewritten := RewriteNPCRef(text, corr.Old, corr.New)
	result, err = r.Resolve(ctx, mustParse(t, rewritten), false)
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Contains(t, result.Resolved, "npc.grenda")
	assert.Equal(t, "npc_autocorrect:grenada->grenda", corr.Note())
}

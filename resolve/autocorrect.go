package resolve

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/hearthloom/wyrmhall/world"
)

// Threshold returns the maximum accepted edit distance for a token of the
// given length. Short tokens tolerate only small slips.
func Threshold(tokenLen int) int {
	switch {
	case tokenLen <= 4:
		return 1
	case tokenLen <= 8:
		return 2
	default:
		return 3
	}
}

// Correction is one accepted fuzzy match.
type Correction struct {
	Old string
	New string
}

// AutocorrectNotePrefix marks correction notes in envelope meta.
const AutocorrectNotePrefix = "npc_autocorrect:"

// Note is the audit marker recorded on the envelope when the correction is
// applied.
func (c Correction) Note() string {
	return fmt.Sprintf("%s%s->%s", AutocorrectNotePrefix, c.Old, c.New)
}

// Autocorrector suggests corrections for misspelled NPC references.
// Candidates sharing a region with the command's spatial context win over
// the global roster, and a suggestion is only accepted when no runner-up
// ties it.
type Autocorrector struct {
	store world.Store
}

// NewAutocorrector creates an Autocorrector.
func NewAutocorrector(store world.Store) *Autocorrector {
	return &Autocorrector{store: store}
}

// SuggestNPC finds the closest NPC to the misspelled token. When region is
// non-nil, NPCs in that region are tried first; the full roster is the
// fallback. The second return value is false when no candidate clears the
// distance threshold with a clear margin over the runner-up.
func (a *Autocorrector) SuggestNPC(ctx context.Context, token string, region *world.RegionCoord) (Correction, bool, error) {
	if region != nil {
		local, err := a.store.ListNPCsInRegion(ctx, *region)
		if err != nil {
			return Correction{}, false, err
		}
		if id, ok := pickCandidate(token, local); ok {
			return Correction{Old: token, New: id}, true, nil
		}
	}
	all, err := a.store.ListNPCs(ctx)
	if err != nil {
		return Correction{}, false, err
	}
	id, ok := pickCandidate(token, all)
	if !ok {
		return Correction{}, false, nil
	}
	return Correction{Old: token, New: id}, true, nil
}

type scored struct {
	id   string
	dist int
}

// pickCandidate scores every NPC by the closer of its id and display name,
// then accepts the best only if it clears the threshold and beats the
// runner-up by at least one edit.
func pickCandidate(token string, npcs []*world.NPC) (string, bool) {
	needle := strings.ToLower(token)
	limit := Threshold(len(token))
	var ranked []scored
	for _, npc := range npcs {
		d := levenshtein.ComputeDistance(needle, strings.ToLower(npc.ID))
		if npc.Name != "" {
			if nd := levenshtein.ComputeDistance(needle, strings.ToLower(npc.Name)); nd < d {
				d = nd
			}
		}
		ranked = append(ranked, scored{id: npc.ID, dist: d})
	}
	if len(ranked) == 0 {
		return "", false
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].id < ranked[j].id
	})
	best := ranked[0]
	if best.dist > limit {
		return "", false
	}
	if len(ranked) > 1 && ranked[1].dist-best.dist < 1 {
		return "", false
	}
	return best.id, true
}

// RewriteNPCRef rewrites every occurrence of npc.<oldID> in the command text
// to npc.<newID>, preserving any trailing property path.
func RewriteNPCRef(text, oldID, newID string) string {
	re := regexp.MustCompile(`\bnpc\.` + regexp.QuoteMeta(oldID) + `\b`)
	return re.ReplaceAllString(text, "npc."+newID)
}

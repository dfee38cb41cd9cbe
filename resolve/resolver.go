// Package resolve binds command-language entity references against the live
// world model. Every reference appearing anywhere in a command-node list
// ends up either in the resolved map or in the errors list - never neither.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hearthloom/wyrmhall/command"
	"github.com/hearthloom/wyrmhall/world"
)

// Reason is a typed resolution failure.
type Reason string

const (
	ReasonActorNotFound          Reason = "actor_not_found"
	ReasonNPCNotFound            Reason = "npc_not_found"
	ReasonItemNotFound           Reason = "item_not_found"
	ReasonWorldTileMissing       Reason = "world_tile_missing"
	ReasonRegionTileMissing      Reason = "region_tile_missing"
	ReasonRegionNotFoundAtCoords Reason = "region_not_found_at_coords"
	ReasonRegionNotFound         Reason = "region_not_found"
	ReasonPlaceNotFound          Reason = "place_not_found"
)

// ResolveError is one unresolved reference.
type ResolveError struct {
	Ref    string `json:"ref"`
	Reason Reason `json:"reason"`
	Path   string `json:"path,omitempty"`
}

func (e ResolveError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Ref, e.Reason, e.Path)
	}
	return fmt.Sprintf("%s: %s", e.Ref, e.Reason)
}

// Binding is one resolved reference. Path carries any trailing property
// access beyond the entity itself (e.g. "hands" in actor.henry.hands).
// Representative bindings are placeholders substituted when the refinement
// budget is exhausted; downstream consumers must treat them as best-effort.
type Binding struct {
	Kind           string `json:"kind"`
	ID             string `json:"id"`
	Name           string `json:"name"`
	Path           string `json:"path,omitempty"`
	Representative bool   `json:"representative,omitempty"`
	Entity         any    `json:"entity,omitempty"`
}

// Result maps every reference in the input to a binding or an error.
type Result struct {
	Resolved map[string]Binding
	Errors   []ResolveError
}

// OK reports whether every reference resolved.
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}

// FailuresWithReason returns the errors carrying the given reason.
func (r *Result) FailuresWithReason(reason Reason) []ResolveError {
	var out []ResolveError
	for _, e := range r.Errors {
		if e.Reason == reason {
			out = append(out, e)
		}
	}
	return out
}

// Resolver binds references against a world.Store.
type Resolver struct {
	store world.Store
}

// New creates a Resolver.
func New(store world.Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve resolves every reference in the command list.
// useRepresentativeData substitutes placeholder bindings for failures
// instead of reporting them; it is meant for the final degraded hop only.
// The returned error is infrastructure failure (store unavailable), never a
// mere unresolved reference.
func (r *Resolver) Resolve(ctx context.Context, commands []command.CommandNode, useRepresentativeData bool) (*Result, error) {
	result := &Result{Resolved: make(map[string]Binding)}
	for i := range commands {
		for _, ref := range commands[i].References() {
			if _, done := result.Resolved[ref]; done {
				continue
			}
			if alreadyFailed(result, ref) {
				continue
			}
			binding, resolveErr, err := r.resolveOne(ctx, ref)
			if err != nil {
				return nil, err
			}
			if resolveErr == nil {
				result.Resolved[ref] = *binding
				continue
			}
			if useRepresentativeData {
				result.Resolved[ref] = representativeBinding(ref)
				continue
			}
			result.Errors = append(result.Errors, *resolveErr)
		}
	}
	return result, nil
}

func alreadyFailed(result *Result, ref string) bool {
	for _, e := range result.Errors {
		if e.Ref == ref {
			return true
		}
	}
	return false
}

func (r *Resolver) resolveOne(ctx context.Context, ref string) (*Binding, *ResolveError, error) {
	segments := strings.Split(ref, ".")
	kind := segments[0]
	switch kind {
	case "actor":
		return r.resolveActor(ctx, ref, segments)
	case "npc":
		return r.resolveNPC(ctx, ref, segments)
	case "item":
		return r.resolveItem(ctx, ref, segments)
	case "place":
		return r.resolvePlace(ctx, ref, segments)
	case "tile":
		return r.resolveTile(ctx, ref, segments)
	case "region_tile":
		return r.resolveRegionTile(ctx, ref, segments)
	default:
		// Parser guarantees a known kind; anything else is treated as a
		// missing place so the soundness contract still holds.
		return nil, &ResolveError{Ref: ref, Reason: ReasonPlaceNotFound}, nil
	}
}

func (r *Resolver) resolveActor(ctx context.Context, ref string, segments []string) (*Binding, *ResolveError, error) {
	if len(segments) < 2 {
		return nil, &ResolveError{Ref: ref, Reason: ReasonActorNotFound, Path: "missing id"}, nil
	}
	id := segments[1]
	actor, err := r.store.FindActor(ctx, id)
	if errors.Is(err, world.ErrNotFound) {
		return nil, &ResolveError{Ref: ref, Reason: ReasonActorNotFound}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &Binding{
		Kind:   "actor",
		ID:     actor.ID,
		Name:   actor.Name,
		Path:   strings.Join(segments[2:], "."),
		Entity: actor,
	}, nil, nil
}

func (r *Resolver) resolveNPC(ctx context.Context, ref string, segments []string) (*Binding, *ResolveError, error) {
	if len(segments) < 2 {
		return nil, &ResolveError{Ref: ref, Reason: ReasonNPCNotFound, Path: "missing id"}, nil
	}
	id := segments[1]
	npc, err := r.store.FindNPC(ctx, id)
	if errors.Is(err, world.ErrNotFound) {
		return nil, &ResolveError{Ref: ref, Reason: ReasonNPCNotFound}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &Binding{
		Kind:   "npc",
		ID:     npc.ID,
		Name:   npc.Name,
		Path:   strings.Join(segments[2:], "."),
		Entity: npc,
	}, nil, nil
}

func (r *Resolver) resolveItem(ctx context.Context, ref string, segments []string) (*Binding, *ResolveError, error) {
	if len(segments) < 2 {
		return nil, &ResolveError{Ref: ref, Reason: ReasonItemNotFound, Path: "missing id"}, nil
	}
	id := segments[1]
	item, err := r.store.FindItem(ctx, id)
	if errors.Is(err, world.ErrNotFound) {
		return nil, &ResolveError{Ref: ref, Reason: ReasonItemNotFound}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &Binding{
		Kind:   "item",
		ID:     item.ID,
		Name:   item.Name,
		Path:   strings.Join(segments[2:], "."),
		Entity: item,
	}, nil, nil
}

func (r *Resolver) resolvePlace(ctx context.Context, ref string, segments []string) (*Binding, *ResolveError, error) {
	if len(segments) < 2 {
		return nil, &ResolveError{Ref: ref, Reason: ReasonPlaceNotFound, Path: "missing id"}, nil
	}
	id := segments[1]
	place, err := r.store.FindPlace(ctx, id)
	if errors.Is(err, world.ErrNotFound) {
		return nil, &ResolveError{Ref: ref, Reason: ReasonPlaceNotFound}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	// A place is only usable if its anchoring region still exists.
	if _, err := r.store.LoadRegion(ctx, place.Region); err != nil {
		if errors.Is(err, world.ErrNotFound) {
			return nil, &ResolveError{Ref: ref, Reason: ReasonRegionNotFound, Path: place.Region.String()}, nil
		}
		return nil, nil, err
	}
	return &Binding{
		Kind:   "place",
		ID:     place.ID,
		Name:   place.Name,
		Entity: place,
	}, nil, nil
}

func (r *Resolver) resolveTile(ctx context.Context, ref string, segments []string) (*Binding, *ResolveError, error) {
	coords, ok := parseInts(segments[1:], 6)
	if !ok {
		return nil, &ResolveError{Ref: ref, Reason: ReasonWorldTileMissing, Path: "malformed coordinates"}, nil
	}
	coord := world.TileCoord{W: coords[0], H: coords[1], RX: coords[2], RY: coords[3], X: coords[4], Y: coords[5]}
	tile, err := r.store.LoadTile(ctx, coord)
	if errors.Is(err, world.ErrNotFound) {
		return nil, &ResolveError{Ref: ref, Reason: ReasonWorldTileMissing}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &Binding{
		Kind:   "tile",
		ID:     coord.String(),
		Name:   tile.Terrain,
		Entity: tile,
	}, nil, nil
}

func (r *Resolver) resolveRegionTile(ctx context.Context, ref string, segments []string) (*Binding, *ResolveError, error) {
	coords, ok := parseInts(segments[1:], 4)
	if !ok {
		return nil, &ResolveError{Ref: ref, Reason: ReasonRegionTileMissing, Path: "malformed coordinates"}, nil
	}
	coord := world.RegionCoord{W: coords[0], H: coords[1], RX: coords[2], RY: coords[3]}
	region, err := r.store.LoadRegion(ctx, coord)
	if errors.Is(err, world.ErrNotFound) {
		return nil, &ResolveError{Ref: ref, Reason: ReasonRegionNotFoundAtCoords}, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return &Binding{
		Kind:   "region_tile",
		ID:     coord.String(),
		Name:   region.Name,
		Entity: region,
	}, nil, nil
}

func parseInts(segments []string, want int) ([]int, bool) {
	if len(segments) != want {
		return nil, false
	}
	out := make([]int, want)
	for i, s := range segments {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

// representativeBinding builds the placeholder used for degraded results.
func representativeBinding(ref string) Binding {
	segments := strings.Split(ref, ".")
	id := ref
	if len(segments) > 1 {
		id = segments[1]
	}
	return Binding{
		Kind:           segments[0],
		ID:             id,
		Name:           id,
		Representative: true,
	}
}

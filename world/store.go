package world

import (
	"context"
)

// Store is the entity lookup contract the resolver consumes. Every method
// returns ErrNotFound (possibly wrapped) when the entity does not exist;
// any other error is an infrastructure failure.
type Store interface {
	FindActor(ctx context.Context, id string) (*Actor, error)
	FindNPC(ctx context.Context, id string) (*NPC, error)
	FindItem(ctx context.Context, id string) (*Item, error)
	FindPlace(ctx context.Context, id string) (*Place, error)
	LoadTile(ctx context.Context, coord TileCoord) (*Tile, error)
	LoadRegion(ctx context.Context, coord RegionCoord) (*Region, error)

	// ListNPCs returns the full NPC population, for fuzzy matching.
	ListNPCs(ctx context.Context) ([]*NPC, error)
	// ListNPCsInRegion returns the NPCs in one region cell - the spatial
	// context the autocorrector prefers over the full population.
	ListNPCsInRegion(ctx context.Context, region RegionCoord) ([]*NPC, error)
}

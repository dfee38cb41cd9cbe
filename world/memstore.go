package world

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store for tests and one-shot tooling.
type MemStore struct {
	mu      sync.RWMutex
	actors  map[string]*Actor
	npcs    map[string]*NPC
	items   map[string]*Item
	places  map[string]*Place
	tiles   map[TileCoord]*Tile
	regions map[RegionCoord]*Region
}

var _ Store = (*MemStore)(nil)

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		actors:  make(map[string]*Actor),
		npcs:    make(map[string]*NPC),
		items:   make(map[string]*Item),
		places:  make(map[string]*Place),
		tiles:   make(map[TileCoord]*Tile),
		regions: make(map[RegionCoord]*Region),
	}
}

// PutActor upserts an actor.
func (s *MemStore) PutActor(a *Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actors[a.ID] = a
}

// PutNPC upserts an NPC.
func (s *MemStore) PutNPC(n *NPC) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.npcs[n.ID] = n
}

// PutItem upserts an item.
func (s *MemStore) PutItem(i *Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[i.ID] = i
}

// PutPlace upserts a place.
func (s *MemStore) PutPlace(p *Place) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.places[p.ID] = p
}

// PutTile upserts a tile.
func (s *MemStore) PutTile(t *Tile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiles[t.Coord] = t
}

// PutRegion upserts a region.
func (s *MemStore) PutRegion(r *Region) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.regions[r.Coord] = r
}

// FindActor implements Store.
func (s *MemStore) FindActor(ctx context.Context, id string) (*Actor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.actors[id]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("actor %s: %w", id, ErrNotFound)
}

// FindNPC implements Store.
func (s *MemStore) FindNPC(ctx context.Context, id string) (*NPC, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.npcs[id]; ok {
		return n, nil
	}
	return nil, fmt.Errorf("npc %s: %w", id, ErrNotFound)
}

// FindItem implements Store.
func (s *MemStore) FindItem(ctx context.Context, id string) (*Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i, ok := s.items[id]; ok {
		return i, nil
	}
	return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
}

// FindPlace implements Store.
func (s *MemStore) FindPlace(ctx context.Context, id string) (*Place, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.places[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("place %s: %w", id, ErrNotFound)
}

// LoadTile implements Store.
func (s *MemStore) LoadTile(ctx context.Context, coord TileCoord) (*Tile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.tiles[coord]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("%s: %w", coord, ErrNotFound)
}

// LoadRegion implements Store.
func (s *MemStore) LoadRegion(ctx context.Context, coord RegionCoord) (*Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.regions[coord]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%s: %w", coord, ErrNotFound)
}

// ListNPCs implements Store.
func (s *MemStore) ListNPCs(ctx context.Context) ([]*NPC, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*NPC, 0, len(s.npcs))
	for _, n := range s.npcs {
		out = append(out, n)
	}
	return out, nil
}

// ListNPCsInRegion implements Store.
func (s *MemStore) ListNPCsInRegion(ctx context.Context, region RegionCoord) ([]*NPC, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*NPC
	for _, n := range s.npcs {
		if n.Location.Region() == region {
			out = append(out, n)
		}
	}
	return out, nil
}

// Package world defines the live entity model the resolver binds command
// references against, and the stores that back it. The pipeline core only
// consumes the Store lookup contract; the SQLite implementation here is the
// reference backing for a running game save, and the in-memory
// implementation serves tests and tooling.
package world

import (
	"errors"
	"fmt"
)

// ErrNotFound is the sentinel for all entity lookups.
var ErrNotFound = errors.New("entity not found")

// TileCoord addresses one world tile: world cell, region cell within it,
// tile within the region.
type TileCoord struct {
	W  int `json:"w"`
	H  int `json:"h"`
	RX int `json:"rx"`
	RY int `json:"ry"`
	X  int `json:"x"`
	Y  int `json:"y"`
}

func (c TileCoord) String() string {
	return fmt.Sprintf("tile.%d.%d.%d.%d.%d.%d", c.W, c.H, c.RX, c.RY, c.X, c.Y)
}

// Region returns the region cell containing this tile.
func (c TileCoord) Region() RegionCoord {
	return RegionCoord{W: c.W, H: c.H, RX: c.RX, RY: c.RY}
}

// RegionCoord addresses one region cell.
type RegionCoord struct {
	W  int `json:"w"`
	H  int `json:"h"`
	RX int `json:"rx"`
	RY int `json:"ry"`
}

func (c RegionCoord) String() string {
	return fmt.Sprintf("region_tile.%d.%d.%d.%d", c.W, c.H, c.RX, c.RY)
}

// Actor is a player-controlled character.
type Actor struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Location TileCoord `json:"location"`
}

// NPC is a non-player character.
type NPC struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Location TileCoord `json:"location"`
}

// Tile is one world tile.
type Tile struct {
	Coord   TileCoord `json:"coord"`
	Terrain string    `json:"terrain"`
}

// Region is one region cell with its narrative identity.
type Region struct {
	Coord RegionCoord `json:"coord"`
	Name  string      `json:"name"`
}

// Place is a named location anchored in a region.
type Place struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Region RegionCoord `json:"region"`
}

// Item is a carriable or fixed object.
type Item struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Holder string `json:"holder,omitempty"`
}

package world

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLStore is the SQLite-backed Store for a game save slot.
type SQLStore struct {
	db     *sql.DB
	dbPath string
}

var _ Store = (*SQLStore)(nil)

// OpenSQLStore opens (creating if needed) the entity database at path.
func OpenSQLStore(path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create world database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open world database: %w", err)
	}
	store := &SQLStore{db: db, dbPath: path}
	if err := store.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS actors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		w INTEGER, h INTEGER, rx INTEGER, ry INTEGER, x INTEGER, y INTEGER
	);
	CREATE TABLE IF NOT EXISTS npcs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		w INTEGER, h INTEGER, rx INTEGER, ry INTEGER, x INTEGER, y INTEGER
	);
	CREATE TABLE IF NOT EXISTS items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		holder TEXT
	);
	CREATE TABLE IF NOT EXISTS places (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		w INTEGER, h INTEGER, rx INTEGER, ry INTEGER
	);
	CREATE TABLE IF NOT EXISTS tiles (
		w INTEGER, h INTEGER, rx INTEGER, ry INTEGER, x INTEGER, y INTEGER,
		terrain TEXT NOT NULL,
		PRIMARY KEY (w, h, rx, ry, x, y)
	);
	CREATE TABLE IF NOT EXISTS regions (
		w INTEGER, h INTEGER, rx INTEGER, ry INTEGER,
		name TEXT NOT NULL,
		PRIMARY KEY (w, h, rx, ry)
	);
	CREATE INDEX IF NOT EXISTS idx_npcs_region ON npcs(w, h, rx, ry);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize world schema: %w", err)
	}
	return nil
}

// PutActor upserts an actor.
func (s *SQLStore) PutActor(ctx context.Context, a *Actor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actors (id, name, w, h, rx, ry, x, y) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name,
			w=excluded.w, h=excluded.h, rx=excluded.rx, ry=excluded.ry,
			x=excluded.x, y=excluded.y`,
		a.ID, a.Name, a.Location.W, a.Location.H, a.Location.RX, a.Location.RY, a.Location.X, a.Location.Y)
	return err
}

// PutNPC upserts an NPC.
func (s *SQLStore) PutNPC(ctx context.Context, n *NPC) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO npcs (id, name, w, h, rx, ry, x, y) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name,
			w=excluded.w, h=excluded.h, rx=excluded.rx, ry=excluded.ry,
			x=excluded.x, y=excluded.y`,
		n.ID, n.Name, n.Location.W, n.Location.H, n.Location.RX, n.Location.RY, n.Location.X, n.Location.Y)
	return err
}

// PutItem upserts an item.
func (s *SQLStore) PutItem(ctx context.Context, i *Item) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (id, name, holder) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, holder=excluded.holder`,
		i.ID, i.Name, i.Holder)
	return err
}

// PutPlace upserts a place.
func (s *SQLStore) PutPlace(ctx context.Context, p *Place) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO places (id, name, w, h, rx, ry) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name,
			w=excluded.w, h=excluded.h, rx=excluded.rx, ry=excluded.ry`,
		p.ID, p.Name, p.Region.W, p.Region.H, p.Region.RX, p.Region.RY)
	return err
}

// PutTile upserts a tile.
func (s *SQLStore) PutTile(ctx context.Context, t *Tile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tiles (w, h, rx, ry, x, y, terrain) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(w, h, rx, ry, x, y) DO UPDATE SET terrain=excluded.terrain`,
		t.Coord.W, t.Coord.H, t.Coord.RX, t.Coord.RY, t.Coord.X, t.Coord.Y, t.Terrain)
	return err
}

// PutRegion upserts a region.
func (s *SQLStore) PutRegion(ctx context.Context, r *Region) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO regions (w, h, rx, ry, name) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(w, h, rx, ry) DO UPDATE SET name=excluded.name`,
		r.Coord.W, r.Coord.H, r.Coord.RX, r.Coord.RY, r.Name)
	return err
}

// FindActor implements Store.
func (s *SQLStore) FindActor(ctx context.Context, id string) (*Actor, error) {
	a := &Actor{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, w, h, rx, ry, x, y FROM actors WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Location.W, &a.Location.H, &a.Location.RX, &a.Location.RY, &a.Location.X, &a.Location.Y)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("actor %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find actor %s: %w", id, err)
	}
	return a, nil
}

// FindNPC implements Store.
func (s *SQLStore) FindNPC(ctx context.Context, id string) (*NPC, error) {
	n := &NPC{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, w, h, rx, ry, x, y FROM npcs WHERE id = ?`, id).
		Scan(&n.ID, &n.Name, &n.Location.W, &n.Location.H, &n.Location.RX, &n.Location.RY, &n.Location.X, &n.Location.Y)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("npc %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find npc %s: %w", id, err)
	}
	return n, nil
}

// FindItem implements Store.
func (s *SQLStore) FindItem(ctx context.Context, id string) (*Item, error) {
	i := &Item{}
	var holder sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, holder FROM items WHERE id = ?`, id).
		Scan(&i.ID, &i.Name, &holder)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find item %s: %w", id, err)
	}
	i.Holder = holder.String
	return i, nil
}

// FindPlace implements Store.
func (s *SQLStore) FindPlace(ctx context.Context, id string) (*Place, error) {
	p := &Place{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, w, h, rx, ry FROM places WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Region.W, &p.Region.H, &p.Region.RX, &p.Region.RY)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("place %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("find place %s: %w", id, err)
	}
	return p, nil
}

// LoadTile implements Store.
func (s *SQLStore) LoadTile(ctx context.Context, coord TileCoord) (*Tile, error) {
	t := &Tile{Coord: coord}
	err := s.db.QueryRowContext(ctx,
		`SELECT terrain FROM tiles WHERE w=? AND h=? AND rx=? AND ry=? AND x=? AND y=?`,
		coord.W, coord.H, coord.RX, coord.RY, coord.X, coord.Y).
		Scan(&t.Terrain)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", coord, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", coord, err)
	}
	return t, nil
}

// LoadRegion implements Store.
func (s *SQLStore) LoadRegion(ctx context.Context, coord RegionCoord) (*Region, error) {
	r := &Region{Coord: coord}
	err := s.db.QueryRowContext(ctx,
		`SELECT name FROM regions WHERE w=? AND h=? AND rx=? AND ry=?`,
		coord.W, coord.H, coord.RX, coord.RY).
		Scan(&r.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", coord, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", coord, err)
	}
	return r, nil
}

// ListNPCs implements Store.
func (s *SQLStore) ListNPCs(ctx context.Context) ([]*NPC, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, w, h, rx, ry, x, y FROM npcs ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list npcs: %w", err)
	}
	defer rows.Close()
	return scanNPCs(rows)
}

// ListNPCsInRegion implements Store.
func (s *SQLStore) ListNPCsInRegion(ctx context.Context, region RegionCoord) ([]*NPC, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, w, h, rx, ry, x, y FROM npcs WHERE w=? AND h=? AND rx=? AND ry=? ORDER BY id`,
		region.W, region.H, region.RX, region.RY)
	if err != nil {
		return nil, fmt.Errorf("list npcs in %s: %w", region, err)
	}
	defer rows.Close()
	return scanNPCs(rows)
}

func scanNPCs(rows *sql.Rows) ([]*NPC, error) {
	var out []*NPC
	for rows.Next() {
		n := &NPC{}
		if err := rows.Scan(&n.ID, &n.Name, &n.Location.W, &n.Location.H, &n.Location.RX, &n.Location.RY, &n.Location.X, &n.Location.Y); err != nil {
			return nil, fmt.Errorf("scan npc: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

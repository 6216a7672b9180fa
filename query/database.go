package query

import (
	"cmp"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"math"
	"os"
	"slices"
	"tiledosm/common"
	"tiledosm/index"
	ownIo "tiledosm/io"
	ownOsm "tiledosm/osm"
)

var (
	ErrInvalidZoom = errors.New("Invalid zoom level")
	ErrInvalidTile = errors.New("Invalid tile")
)

type Options struct {
	// MappedIndexes memory-maps index files instead of reading them into memory.
	MappedIndexes bool
}

// Database answers queries on a tile tree created by the importing package. The data is immutable, so a database can
// be used by concurrent goroutines.
type Database struct {
	basePath string
	zoom     uint32
	options  Options
	indices  *index.Cache
}

// Open creates a database for the tile tree in the base path. The zoom level must be the maximum zoom level used to
// build the tree.
func Open(basePath string, zoom uint32, options Options) (*Database, error) {
	if zoom < common.ZoomOffset || zoom%common.ZoomOffset != 0 {
		return nil, errors.Wrapf(ErrInvalidZoom, "Zoom level %d must be even and at least %d", zoom, common.ZoomOffset)
	}

	stat, err := os.Stat(basePath)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to access base path %s", basePath)
	}
	if !stat.IsDir() {
		return nil, errors.Errorf("Base path %s is not a directory", basePath)
	}

	d := &Database{
		basePath: basePath,
		zoom:     zoom,
		options:  options,
	}
	d.indices = index.NewCache(d.loadIndex)

	sigolo.Debugf("Opened database %s with zoom level %d (mapped indices: %t)", basePath, zoom, options.MappedIndexes)
	return d, nil
}

func (d *Database) Zoom() uint32 {
	return d.zoom
}

// Close releases all cached indices.
func (d *Database) Close() error {
	return d.indices.Close()
}

func (d *Database) loadIndex(kind ownOsm.Kind, tile common.Tile) (*index.Index, error) {
	filename := ownIo.IndexFilename(d.basePath, tile, kind)

	_, err := os.Stat(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, errors.Wrapf(err, "Unable to access index file %s", filename)
	}

	if d.options.MappedIndexes {
		return index.OpenMapped(filename)
	}
	return index.Load(filename)
}

func (d *Database) GetNode(id osm.NodeID) (*osm.Node, error) {
	entity, found, err := d.find(ownOsm.KindNode, int64(id))
	if err != nil || !found {
		return nil, err
	}
	return entity.Node, nil
}

func (d *Database) GetWay(id osm.WayID) (*osm.Way, error) {
	entity, found, err := d.find(ownOsm.KindWay, int64(id))
	if err != nil || !found {
		return nil, err
	}
	return entity.Way, nil
}

func (d *Database) GetRelation(id osm.RelationID) (*osm.Relation, error) {
	entity, found, err := d.find(ownOsm.KindRelation, int64(id))
	if err != nil || !found {
		return nil, err
	}
	return entity.Relation, nil
}

// GetEntity looks up an entity of any kind. The boolean is false when the entity doesn't exist.
func (d *Database) GetEntity(kind ownOsm.Kind, id int64) (ownOsm.Entity, bool, error) {
	return d.find(kind, id)
}

func (d *Database) find(kind ownOsm.Kind, id int64) (ownOsm.Entity, bool, error) {
	entity, found, err := d.findBelow(common.RootTile, kind, id)
	if err != nil {
		return ownOsm.Entity{}, false, errors.Wrapf(err, "Unable to find %s/%d", kind, id)
	}
	return entity, found, nil
}

// findBelow descends from the given tile to the leaf tiles using the indices. Ways and relations might be in several
// subtiles, therefore all candidate subtiles are tried in order until the entity has been found.
func (d *Database) findBelow(tile common.Tile, kind ownOsm.Kind, id int64) (ownOsm.Entity, bool, error) {
	if tile.Zoom >= d.zoom {
		return ownIo.FindEntity(ownIo.EntityFilename(d.basePath, tile, kind), id)
	}

	tileIndex, err := d.indices.GetOrLoad(kind, tile)
	if err != nil {
		return ownOsm.Entity{}, false, err
	}
	if tileIndex == nil {
		return ownOsm.Entity{}, false, nil
	}

	mask, ok := tileIndex.TryGetMask(id)
	if !ok {
		return ownOsm.Entity{}, false, nil
	}

	for subtile := range common.SubTilesForMask2(tile, mask) {
		entity, found, err := d.findBelow(subtile, kind, id)
		if err != nil || found {
			return entity, found, err
		}
		sigolo.Tracef("%s/%d not found in candidate tile %s", kind, id, subtile)
	}

	return ownOsm.Entity{}, false, nil
}

func (d *Database) validateTile(tile common.Tile) error {
	if tile.Zoom != d.zoom {
		return errors.Wrapf(ErrInvalidZoom, "Tile %s must be at zoom level %d", tile, d.zoom)
	}
	if !tile.Valid() {
		return errors.Wrapf(ErrInvalidTile, "Tile %s is outside of the world", tile)
	}
	return nil
}

// TilesForBound returns all leaf tiles within the bound that contain any data. The tiles are sorted by row and column.
// Only tiles that have been split during the build are descended into, so the effort depends on the data within the
// bound and not on its size.
func (d *Database) TilesForBound(bound orb.Bound) []common.Tile {
	var tiles []common.Tile
	d.collectTiles(common.RootTile, bound, &tiles)

	slices.SortFunc(tiles, func(a, b common.Tile) int {
		if a.Y != b.Y {
			return cmp.Compare(a.Y, b.Y)
		}
		return cmp.Compare(a.X, b.X)
	})
	return tiles
}

func (d *Database) collectTiles(tile common.Tile, bound orb.Bound, tiles *[]common.Tile) {
	if tile.Zoom >= d.zoom {
		if d.hasData(tile) {
			*tiles = append(*tiles, tile)
		}
		return
	}

	if !d.hasIndex(tile) {
		return
	}

	upperLeft, lowerRight := common.TileRangeForBound(bound, tile.Zoom+common.ZoomOffset)
	for subtile := range common.SubTilesForMask2(tile, math.MaxUint16) {
		if subtile.Within(upperLeft, lowerRight) {
			d.collectTiles(subtile, bound, tiles)
		}
	}
}

// hasIndex returns true for tiles that have been split. Every split writes the node index, even when it's empty.
func (d *Database) hasIndex(tile common.Tile) bool {
	_, err := os.Stat(ownIo.IndexFilename(d.basePath, tile, ownOsm.KindNode))
	return err == nil
}

func (d *Database) hasData(tile common.Tile) bool {
	for _, kind := range ownOsm.Kinds {
		if _, err := os.Stat(ownIo.EntityFilename(d.basePath, tile, kind)); err == nil {
			return true
		}
	}
	return false
}

type tileContent struct {
	nodes     []*osm.Node
	ways      []*osm.Way
	relations []*osm.Relation
}

func (d *Database) readTile(tile common.Tile) (*tileContent, error) {
	content := &tileContent{}
	for _, kind := range ownOsm.Kinds {
		entities, err := ownIo.ReadEntities(ownIo.EntityFilename(d.basePath, tile, kind))
		if err != nil {
			return nil, err
		}

		for _, entity := range entities {
			switch entity.Kind {
			case ownOsm.KindNode:
				content.nodes = append(content.nodes, entity.Node)
			case ownOsm.KindWay:
				content.ways = append(content.ways, entity.Way)
			case ownOsm.KindRelation:
				content.relations = append(content.relations, entity.Relation)
			}
		}
	}

	sigolo.Tracef("Read tile %s: %d nodes, %d ways, %d relations", tile, len(content.nodes), len(content.ways), len(content.relations))
	return content, nil
}

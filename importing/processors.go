package importing

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"tiledosm/common"
	"tiledosm/index"
	ownIo "tiledosm/io"
	ownOsm "tiledosm/osm"
)

type processorStats struct {
	Processed int // Entities of the processors kind read from the input
	Written   int // Entities written into at least one subtile
	Dropped   int // Entities neither written nor indexed
}

// ProcessResult is the outcome of processing all entities of one kind of a tile.
type ProcessResult struct {
	Index *index.Index

	// Occupied contains the subtiles an entity file was created for.
	Occupied common.Mask

	Stats processorStats
}

// maskFunc determines the subtiles an entity belongs to. A false return value drops the entity entirely, so that it's
// not even part of the index.
type maskFunc func(entity ownOsm.Entity) (common.Mask, bool)

// Processor distributes all entities of one kind from a tile into the files of its 16 subtiles and builds the index of
// the tile for that kind.
type Processor struct {
	tile     common.Tile
	kind     ownOsm.Kind
	writers  *tileWriters
	encoder  *ownIo.Encoder
	getMask  maskFunc
	newIndex *index.Index
	stats    processorStats
}

func newProcessor(baseFolder string, tile common.Tile, kind ownOsm.Kind, getMask maskFunc) *Processor {
	return &Processor{
		tile:     tile,
		kind:     kind,
		writers:  newTileWriters(baseFolder, tile, kind),
		encoder:  ownIo.NewEncoder(),
		getMask:  getMask,
		newIndex: index.New(),
	}
}

// Process consumes all entities of the processors kind from the cursor. It stops at the first entity of another kind,
// which stays the current entity of the cursor.
func (p *Processor) Process(cursor *ownOsm.Cursor) (*ProcessResult, error) {
	err := p.processEntities(cursor)

	closeErr := p.writers.close()
	if err != nil {
		return nil, err
	}
	if closeErr != nil {
		return nil, closeErr
	}

	p.newIndex.Trim()

	sigolo.Debugf("Tile %s: Processed %d %s, wrote %d into subtiles %016b, dropped %d", p.tile, p.stats.Processed, p.kind.Plural(), p.stats.Written, p.writers.occupied(), p.stats.Dropped)

	return &ProcessResult{
		Index:    p.newIndex,
		Occupied: p.writers.occupied(),
		Stats:    p.stats,
	}, nil
}

func (p *Processor) processEntities(cursor *ownOsm.Cursor) error {
	for cursor.HasKind(p.kind) {
		entity, _ := cursor.Current()
		p.stats.Processed++

		mask, keep := p.getMask(entity)
		if !keep {
			p.stats.Dropped++
		} else {
			err := p.newIndex.Add(entity.ID(), mask)
			if err != nil {
				return errors.Wrapf(err, "Unable to index %s in tile %s", entity, p.tile)
			}

			if mask != 0 {
				record, err := p.encoder.Encode(entity)
				if err != nil {
					return errors.Wrapf(err, "Unable to encode %s", entity)
				}

				err = p.writers.write(mask, record)
				if err != nil {
					return err
				}
				p.stats.Written++
			}
		}

		err := cursor.Advance()
		if err != nil {
			return errors.Wrapf(err, "Unable to read next entity after %s", entity)
		}
	}
	return nil
}

// NewNodeProcessor creates a processor placing each node into the subtile containing its coordinate. Nodes outside
// of the tile (e.g. with invalid coordinates) are dropped.
func NewNodeProcessor(baseFolder string, tile common.Tile) *Processor {
	return newProcessor(baseFolder, tile, ownOsm.KindNode, func(entity ownOsm.Entity) (common.Mask, bool) {
		node := entity.Node
		subtile := common.WorldToTileIndex(node.Lat, node.Lon, tile.Zoom+common.ZoomOffset)
		if !subtile.Valid() || !subtile.IsDescendantOf(tile) {
			sigolo.Warnf("Node %d at lat=%f lon=%f is not within tile %s, it will be ignored", node.ID, node.Lat, node.Lon, tile)
			return 0, false
		}
		return common.BuildMask2(subtile), true
	})
}

// NewWayProcessor creates a processor placing each way into all subtiles containing at least one of its nodes. The
// node index must be the one of the same tile.
func NewWayProcessor(baseFolder string, tile common.Tile, nodeIndex *index.Index) *Processor {
	return newProcessor(baseFolder, tile, ownOsm.KindWay, func(entity ownOsm.Entity) (common.Mask, bool) {
		var mask common.Mask
		for _, node := range entity.Way.Nodes {
			nodeMask, _ := nodeIndex.TryGetMask(int64(node.ID))
			mask |= nodeMask
		}
		return mask, true
	})
}

// NewRelationProcessor creates a processor placing each relation into all subtiles containing at least one of its
// node or way members. Members being relations are ignored.
func NewRelationProcessor(baseFolder string, tile common.Tile, nodeIndex *index.Index, wayIndex *index.Index) *Processor {
	return newProcessor(baseFolder, tile, ownOsm.KindRelation, func(entity ownOsm.Entity) (common.Mask, bool) {
		var mask common.Mask
		for _, member := range entity.Relation.Members {
			var memberMask common.Mask
			switch member.Type {
			case osm.TypeNode:
				memberMask, _ = nodeIndex.TryGetMask(member.Ref)
			case osm.TypeWay:
				memberMask, _ = wayIndex.TryGetMask(member.Ref)
			}
			mask |= memberMask
		}
		return mask, true
	})
}

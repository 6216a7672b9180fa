package importing

import (
	"github.com/paulmach/osm"
	"testing"
	"tiledosm/common"
	ownIo "tiledosm/io"
	ownOsm "tiledosm/osm"
	"tiledosm/util"
)

func TestProcessors_stopAtOtherKind(t *testing.T) {
	// Arrange
	baseFolder := t.TempDir()
	cursor, err := ownOsm.NewCursor(testSource())
	util.AssertNil(t, err)

	// Act
	nodeResult, err := NewNodeProcessor(baseFolder, common.RootTile).Process(cursor)
	util.AssertNil(t, err)

	// Assert
	entity, ok := cursor.Current()
	util.AssertTrue(t, ok)
	util.AssertEqual(t, "way/10", entity.String())

	util.AssertEqual(t, 4, nodeResult.Stats.Processed)
	util.AssertEqual(t, 3, nodeResult.Stats.Written)
	util.AssertEqual(t, 1, nodeResult.Stats.Dropped)
	util.AssertEqual(t, common.BuildMask2(hamburgTile2)|common.BuildMask2(sydneyTile2), nodeResult.Occupied)
	util.AssertFileExists(t, ownIo.EntityFilename(baseFolder, hamburgTile2, ownOsm.KindNode))
	util.AssertFileNotExists(t, ownIo.EntityFilename(baseFolder, common.NewTile(0, 0, 2), ownOsm.KindNode))
}

func TestRelationProcessor_ignoresRelationMembers(t *testing.T) {
	// Arrange
	baseFolder := t.TempDir()
	tile := hamburgTile2
	cursor, err := ownOsm.NewCursor(ownOsm.NewSliceSource(
		ownOsm.NodeEntity(&osm.Node{ID: 1, Lat: 53.55, Lon: 9.99}),
		ownOsm.RelationEntity(&osm.Relation{ID: 5, Members: osm.Members{
			{Type: osm.TypeNode, Ref: 1},
			{Type: osm.TypeRelation, Ref: 6},
		}}),
		ownOsm.RelationEntity(&osm.Relation{ID: 6, Members: osm.Members{
			{Type: osm.TypeRelation, Ref: 5},
			{Type: osm.TypeNode, Ref: 12345},
		}}),
	))
	util.AssertNil(t, err)

	// Act
	nodeResult, err := NewNodeProcessor(baseFolder, tile).Process(cursor)
	util.AssertNil(t, err)
	wayResult, err := NewWayProcessor(baseFolder, tile, nodeResult.Index).Process(cursor)
	util.AssertNil(t, err)
	relationResult, err := NewRelationProcessor(baseFolder, tile, nodeResult.Index, wayResult.Index).Process(cursor)
	util.AssertNil(t, err)

	// Assert
	util.AssertEqual(t, 0, wayResult.Index.Count())
	util.AssertEqual(t, 2, relationResult.Index.Count())

	mask, ok := relationResult.Index.TryGetMask(5)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, common.BuildMask2(hamburgTile4), mask)

	mask, ok = relationResult.Index.TryGetMask(6)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, common.Mask(0), mask)

	util.AssertEqual(t, 1, relationResult.Stats.Written)
	util.AssertEqual(t, []int64{5}, readIds(t, baseFolder, hamburgTile4, ownOsm.KindRelation))
}

func TestNodeProcessor_dropsNodesOutsideOfTile(t *testing.T) {
	// Arrange
	cursor, err := ownOsm.NewCursor(ownOsm.NewSliceSource(
		ownOsm.NodeEntity(&osm.Node{ID: 1, Lat: -33.87, Lon: 151.21}),
	))
	util.AssertNil(t, err)

	// Act
	result, err := NewNodeProcessor(t.TempDir(), hamburgTile2).Process(cursor)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 1, result.Stats.Dropped)
	util.AssertEqual(t, 0, result.Index.Count())
	util.AssertEqual(t, common.Mask(0), result.Occupied)
}

func TestNodeProcessor_dropsNodesAtThePoles(t *testing.T) {
	// Arrange
	baseFolder := t.TempDir()
	cursor, err := ownOsm.NewCursor(ownOsm.NewSliceSource(
		ownOsm.NodeEntity(&osm.Node{ID: 1, Lat: -90, Lon: 10}),
		ownOsm.NodeEntity(&osm.Node{ID: 2, Lat: 90, Lon: 10}),
		ownOsm.NodeEntity(&osm.Node{ID: 3, Lat: 53.55, Lon: 9.99}),
	))
	util.AssertNil(t, err)

	// Act
	result, err := NewNodeProcessor(baseFolder, common.RootTile).Process(cursor)

	// Assert
	util.AssertNil(t, err)
	util.AssertEqual(t, 2, result.Stats.Dropped)
	util.AssertEqual(t, 1, result.Index.Count())
	_, ok := result.Index.TryGetMask(1)
	util.AssertFalse(t, ok)
	util.AssertEqual(t, common.BuildMask2(hamburgTile2), result.Occupied)
	util.AssertFileNotExists(t, ownIo.EntityFilename(baseFolder, common.NewTile(2, 0, 2), ownOsm.KindNode))
}

package common

import (
	"github.com/paulmach/orb"
	"testing"
	"tiledosm/util"
)

func TestTile_worldToTileIndex(t *testing.T) {
	util.AssertEqual(t, Tile{X: 0, Y: 0, Zoom: 0}, WorldToTileIndex(0, 0, 0))
	util.AssertEqual(t, Tile{X: 1, Y: 1, Zoom: 1}, WorldToTileIndex(0, 0, 1))
	util.AssertEqual(t, Tile{X: 0, Y: 0, Zoom: 1}, WorldToTileIndex(10, -10, 1))

	// London and Monaco, known values of the standard slippy map scheme
	util.AssertEqual(t, Tile{X: 511, Y: 340, Zoom: 10}, WorldToTileIndex(51.5074, -0.1278, 10))
	util.AssertEqual(t, Tile{X: 2132, Y: 1493, Zoom: 12}, WorldToTileIndex(43.7384, 7.4246, 12))
}

func TestTile_localId(t *testing.T) {
	util.AssertEqual(t, uint64(0), Tile{X: 0, Y: 0, Zoom: 0}.LocalId())
	util.AssertEqual(t, uint64(3+2*4), Tile{X: 3, Y: 2, Zoom: 2}.LocalId())
	util.AssertEqual(t, uint64(15), Tile{X: 3, Y: 3, Zoom: 2}.LocalId())
}

func TestTile_valid(t *testing.T) {
	util.AssertTrue(t, Tile{X: 0, Y: 0, Zoom: 0}.Valid())
	util.AssertTrue(t, Tile{X: 3, Y: 3, Zoom: 2}.Valid())
	util.AssertFalse(t, Tile{X: 4, Y: 3, Zoom: 2}.Valid())
	util.AssertFalse(t, Tile{X: 1, Y: 0, Zoom: 0}.Valid())
}

func TestTile_buildMask2(t *testing.T) {
	for zoom := uint32(2); zoom <= 6; zoom += 2 {
		for y := uint32(0); y < 4; y++ {
			for x := uint32(0); x < 4; x++ {
				util.AssertEqual(t, Mask(1<<(y*4+x)), BuildMask2(Tile{X: x, Y: y, Zoom: zoom}))
			}
		}
	}

	// Only the position within the 4x4 block matters
	util.AssertEqual(t, BuildMask2(Tile{X: 1, Y: 2, Zoom: 4}), BuildMask2(Tile{X: 13, Y: 6, Zoom: 4}))
}

func TestTile_subTilesForMask2IsInverseOfBuildMask2(t *testing.T) {
	parent := Tile{X: 3, Y: 1, Zoom: 2}

	for mask := 0; mask < 1<<16; mask++ {
		seen := map[Tile]bool{}
		var combined Mask

		for subtile := range SubTilesForMask2(parent, Mask(mask)) {
			if seen[subtile] {
				t.Fatalf("Duplicate subtile %s for mask %d", subtile, mask)
			}
			seen[subtile] = true

			if !subtile.IsDescendantOf(parent) || subtile.Zoom != parent.Zoom+ZoomOffset {
				t.Fatalf("Subtile %s is no direct subtile of %s", subtile, parent)
			}
			combined |= BuildMask2(subtile)
		}

		if combined != Mask(mask) || len(seen) != Mask(mask).Count() {
			t.Fatalf("Subtiles of mask %d combine to %d (%d tiles)", mask, combined, len(seen))
		}
	}
}

func TestTile_firstSubTileForMask2(t *testing.T) {
	parent := Tile{X: 1, Y: 1, Zoom: 2}

	subtile, ok := FirstSubTileForMask2(parent, 0b0000_0000_0110_0000)
	util.AssertTrue(t, ok)
	util.AssertEqual(t, Tile{X: 5, Y: 5, Zoom: 4}, subtile)

	_, ok = FirstSubTileForMask2(parent, 0)
	util.AssertFalse(t, ok)
}

func TestTile_getSubtilesAt(t *testing.T) {
	parent := Tile{X: 1, Y: 0, Zoom: 1}

	subtiles := GetSubtilesAt(parent, 3)
	util.AssertEqual(t, 16, len(subtiles))

	var mask Mask
	for _, subtile := range subtiles {
		util.AssertTrue(t, subtile.IsDescendantOf(parent))
		util.AssertEqual(t, uint32(3), subtile.Zoom)
		mask |= BuildMask2(subtile)
	}
	util.AssertEqual(t, Mask(0xffff), mask)

	util.AssertEqual(t, []Tile{parent}, GetSubtilesAt(parent, 1))
	util.AssertNil(t, GetSubtilesAt(parent, 0))
}

func TestTile_parent2(t *testing.T) {
	util.AssertEqual(t, Tile{X: 1, Y: 2, Zoom: 2}, Tile{X: 7, Y: 9, Zoom: 4}.Parent2())
	util.AssertTrue(t, Tile{X: 7, Y: 9, Zoom: 4}.IsDescendantOf(Tile{X: 1, Y: 2, Zoom: 2}))
	util.AssertFalse(t, Tile{X: 8, Y: 9, Zoom: 4}.IsDescendantOf(Tile{X: 1, Y: 2, Zoom: 2}))
	util.AssertFalse(t, Tile{X: 1, Y: 2, Zoom: 2}.IsDescendantOf(Tile{X: 7, Y: 9, Zoom: 4}))
}

func TestTile_bound(t *testing.T) {
	bound := Tile{X: 1, Y: 1, Zoom: 1}.Bound()

	util.AssertApprox(t, 0.0, bound.Min.Lon(), 0.000001)
	util.AssertApprox(t, 180.0, bound.Max.Lon(), 0.000001)
	util.AssertApprox(t, 0.0, bound.Max.Lat(), 0.000001)
	util.AssertTrue(t, bound.Min.Lat() < -85)
}

func TestTile_worldToTileIndexOutsideOfMercatorRange(t *testing.T) {
	for _, lat := range []float64{90, -90, 85.1, -85.1} {
		tile := WorldToTileIndex(lat, 10, 2)
		util.AssertFalse(t, tile.Valid())
		util.AssertFalse(t, tile.IsDescendantOf(RootTile))
	}

	util.AssertFalse(t, WorldToTileIndex(0, 180.5, 2).Valid())
	util.AssertEqual(t, Tile{X: 3, Y: 2, Zoom: 2}, WorldToTileIndex(-1, 180, 2))
	util.AssertEqual(t, Tile{X: 0, Y: 1, Zoom: 2}, WorldToTileIndex(1, -180, 2))
}

func TestTile_tileRangeForBound(t *testing.T) {
	upperLeft, lowerRight := TileRangeForBound(orb.Bound{Min: orb.Point{-10, -10}, Max: orb.Point{10, 10}}, 1)
	util.AssertEqual(t, Tile{X: 0, Y: 0, Zoom: 1}, upperLeft)
	util.AssertEqual(t, Tile{X: 1, Y: 1, Zoom: 1}, lowerRight)

	upperLeft, lowerRight = TileRangeForBound(orb.Bound{Min: orb.Point{1, 1}, Max: orb.Point{2, 2}}, 1)
	util.AssertEqual(t, Tile{X: 1, Y: 0, Zoom: 1}, upperLeft)
	util.AssertEqual(t, Tile{X: 1, Y: 0, Zoom: 1}, lowerRight)

	// Poles are clamped onto the border rows
	upperLeft, lowerRight = TileRangeForBound(orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}, 2)
	util.AssertEqual(t, Tile{X: 0, Y: 0, Zoom: 2}, upperLeft)
	util.AssertEqual(t, Tile{X: 3, Y: 3, Zoom: 2}, lowerRight)
}

func TestTile_within(t *testing.T) {
	upperLeft := Tile{X: 2, Y: 3, Zoom: 4}
	lowerRight := Tile{X: 5, Y: 3, Zoom: 4}

	util.AssertTrue(t, Tile{X: 2, Y: 3, Zoom: 4}.Within(upperLeft, lowerRight))
	util.AssertTrue(t, Tile{X: 5, Y: 3, Zoom: 4}.Within(upperLeft, lowerRight))
	util.AssertFalse(t, Tile{X: 6, Y: 3, Zoom: 4}.Within(upperLeft, lowerRight))
	util.AssertFalse(t, Tile{X: 3, Y: 4, Zoom: 4}.Within(upperLeft, lowerRight))
	util.AssertFalse(t, Tile{X: 3, Y: 3, Zoom: 6}.Within(upperLeft, lowerRight))
}

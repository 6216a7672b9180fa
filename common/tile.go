package common

import (
	"fmt"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"iter"
	"math"
	"math/bits"
)

// ZoomOffset is the number of zoom levels a tile is split into at once. Each split produces at most 16 subtiles.
const ZoomOffset = 2

// MaxLatitude is the northern (and negated the southern) border of the web mercator projection.
const MaxLatitude = 85.0511287798066

// SubtileCount is the number of direct descendants of a tile at zoom+ZoomOffset.
const SubtileCount = 16

// Mask contains one bit per direct (zoom+2) subtile. Bit i corresponds to the subtile at column i%4 and row i/4.
type Mask uint16

func (m Mask) Has(bit int) bool {
	return m&(1<<bit) != 0
}

func (m Mask) Count() int {
	return bits.OnesCount16(uint16(m))
}

// Tile is a slippy-map tile. The coordinates must satisfy 0 <= X,Y < 2^Zoom.
type Tile struct {
	X    uint32
	Y    uint32
	Zoom uint32
}

func NewTile(x uint32, y uint32, zoom uint32) Tile {
	return Tile{X: x, Y: y, Zoom: zoom}
}

// RootTile is the single tile at zoom 0 covering the whole world.
var RootTile = Tile{}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.X, t.Y)
}

func (t Tile) Valid() bool {
	return t.Zoom < 32 && uint64(t.X) < uint64(1)<<t.Zoom && uint64(t.Y) < uint64(1)<<t.Zoom
}

// LocalId is unique within a zoom level and used as key for tiles of the same zoom level.
func (t Tile) LocalId() uint64 {
	return uint64(t.X) + uint64(t.Y)<<t.Zoom
}

// IsDescendantOf returns true when this tile is the other tile or lies within it on a deeper zoom level.
func (t Tile) IsDescendantOf(other Tile) bool {
	if t.Zoom < other.Zoom {
		return false
	}
	shift := t.Zoom - other.Zoom
	return t.X>>shift == other.X && t.Y>>shift == other.Y
}

// Parent2 returns the ancestor two zoom levels above this tile, which is the tile this one is a subtile of.
func (t Tile) Parent2() Tile {
	return Tile{X: t.X >> ZoomOffset, Y: t.Y >> ZoomOffset, Zoom: t.Zoom - ZoomOffset}
}

// Bound returns the geographic extent of the tile.
func (t Tile) Bound() orb.Bound {
	return maptile.New(t.X, t.Y, maptile.Zoom(t.Zoom)).Bound()
}

// WorldToTileIndex returns the tile of the given zoom level containing the coordinate. Coordinates outside of the
// web mercator range (e.g. the poles) result in an invalid tile. Longitude 180 belongs to the easternmost column.
func WorldToTileIndex(lat float64, lon float64, zoom uint32) Tile {
	if math.IsNaN(lat) || math.Abs(lat) > MaxLatitude {
		return Tile{X: math.MaxUint32, Y: math.MaxUint32, Zoom: zoom}
	}

	n := math.Pow(2, float64(zoom))
	x, y := tileCoordinates(lat, lon, n)

	if x == n {
		x = n - 1
	}
	if !(x >= 0 && x < n) || !(y >= 0 && y < n) {
		return Tile{X: math.MaxUint32, Y: math.MaxUint32, Zoom: zoom}
	}

	return Tile{X: uint32(math.Floor(x)), Y: uint32(math.Floor(y)), Zoom: zoom}
}

// tileCoordinates returns the unrounded tile coordinates for a zoom level with n tiles per row. The values are NaN or
// infinite for some invalid coordinates.
func tileCoordinates(lat float64, lon float64, n float64) (float64, float64) {
	latRad := lat * math.Pi / 180
	x := (lon + 180) / 360 * n
	y := (1 - math.Log(math.Tan(latRad)+1/math.Cos(latRad))/math.Pi) / 2 * n
	return x, y
}

// SubtileBit returns the bit index of the given tile within the mask of its zoom-2 ancestor.
func SubtileBit(tile Tile) int {
	return int((tile.Y%4)*4 + tile.X%4)
}

// BuildMask2 returns the mask with only the bit of this tile set. This only makes sense for a tile being a direct
// subtile (zoom+2) of the tile the mask belongs to.
func BuildMask2(tile Tile) Mask {
	return 1 << SubtileBit(tile)
}

// SubTilesForMask2 lazily yields all subtiles (at zoom+2) of the given tile which bit is set in the mask. The tiles
// are yielded in ascending bit order.
func SubTilesForMask2(tile Tile, mask Mask) iter.Seq[Tile] {
	return func(yield func(Tile) bool) {
		baseX := tile.X * 4
		baseY := tile.Y * 4
		for bit := 0; bit < SubtileCount; bit++ {
			if !mask.Has(bit) {
				continue
			}
			subtile := Tile{
				X:    baseX + uint32(bit%4),
				Y:    baseY + uint32(bit/4),
				Zoom: tile.Zoom + ZoomOffset,
			}
			if !yield(subtile) {
				return
			}
		}
	}
}

// FirstSubTileForMask2 returns the subtile of the lowest set bit. The boolean is false for an empty mask.
func FirstSubTileForMask2(tile Tile, mask Mask) (Tile, bool) {
	for subtile := range SubTilesForMask2(tile, mask) {
		return subtile, true
	}
	return Tile{}, false
}

// GetSubtilesAt returns all descendants of the tile at the given zoom level. The tile itself is returned when the
// zoom level equals the zoom level of the tile.
func GetSubtilesAt(tile Tile, zoom uint32) []Tile {
	if zoom < tile.Zoom {
		return nil
	}
	if zoom == tile.Zoom {
		return []Tile{tile}
	}

	var tiles []Tile
	for dy := uint32(0); dy < 2; dy++ {
		for dx := uint32(0); dx < 2; dx++ {
			child := Tile{X: tile.X*2 + dx, Y: tile.Y*2 + dy, Zoom: tile.Zoom + 1}
			tiles = append(tiles, GetSubtilesAt(child, zoom)...)
		}
	}
	return tiles
}

// TileRangeForBound returns the upper left and the lower right tile of the given zoom level covering the bounding box.
// Tile rows increase from north to south. Coordinates beyond the web mercator range are clamped onto the border tiles.
func TileRangeForBound(bound orb.Bound, zoom uint32) (Tile, Tile) {
	n := math.Pow(2, float64(zoom))
	minX, minY := tileCoordinates(clampLatitude(bound.Max.Lat()), bound.Min.Lon(), n)
	maxX, maxY := tileCoordinates(clampLatitude(bound.Min.Lat()), bound.Max.Lon(), n)

	upperLeft := Tile{X: clampTileCoordinate(minX, n), Y: clampTileCoordinate(minY, n), Zoom: zoom}
	lowerRight := Tile{X: clampTileCoordinate(maxX, n), Y: clampTileCoordinate(maxY, n), Zoom: zoom}
	return upperLeft, lowerRight
}

// Within returns true when the tile lies within the rectangle spanned by the two tiles of the same zoom level.
func (t Tile) Within(upperLeft Tile, lowerRight Tile) bool {
	return t.Zoom == upperLeft.Zoom &&
		t.X >= upperLeft.X && t.X <= lowerRight.X &&
		t.Y >= upperLeft.Y && t.Y <= lowerRight.Y
}

func clampLatitude(lat float64) float64 {
	return math.Max(-MaxLatitude, math.Min(MaxLatitude, lat))
}

func clampTileCoordinate(c float64, n float64) uint32 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c >= n {
		return uint32(n - 1)
	}
	return uint32(math.Floor(c))
}

package osm

import (
	"github.com/paulmach/osm"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"tiledosm/util"
)

const testOsmXml = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <bounds minlat="53.0" minlon="9.0" maxlat="54.0" maxlon="10.0"/>
  <node id="1" lat="53.5" lon="9.5" version="1"><tag k="amenity" v="bench"/></node>
  <node id="2" lat="53.6" lon="9.6" version="1"/>
  <way id="10" version="2"><nd ref="1"/><nd ref="2"/><tag k="highway" v="residential"/></way>
  <relation id="20" version="1"><member type="way" ref="10" role="outer"/></relation>
</osm>`

func collectIds(t *testing.T, source Source) []string {
	var ids []string
	for source.Scan() {
		ids = append(ids, source.Entity().String())
	}
	util.AssertNil(t, source.Err())
	return ids
}

func TestSliceSource_scanAndReset(t *testing.T) {
	// Arrange
	source := NewSliceSource(
		NodeEntity(&osm.Node{ID: 1}),
		WayEntity(&osm.Way{ID: 2}),
		RelationEntity(&osm.Relation{ID: 3}),
	)

	// Act & Assert
	util.AssertEqual(t, []string{"node/1", "way/2", "relation/3"}, collectIds(t, source))
	util.AssertFalse(t, source.Scan())

	util.AssertNil(t, source.Reset())
	util.AssertEqual(t, []string{"node/1", "way/2", "relation/3"}, collectIds(t, source))
}

func TestChainSource_scan(t *testing.T) {
	// Arrange
	source := NewChainSource(
		NewSliceSource(NodeEntity(&osm.Node{ID: 1}), NodeEntity(&osm.Node{ID: 2})),
		NewSliceSource(),
		NewSliceSource(WayEntity(&osm.Way{ID: 5})),
	)

	// Act & Assert
	util.AssertEqual(t, []string{"node/1", "node/2", "way/5"}, collectIds(t, source))

	util.AssertNil(t, source.Reset())
	util.AssertEqual(t, []string{"node/1", "node/2", "way/5"}, collectIds(t, source))
}

func TestCursor_stopsAtOtherKind(t *testing.T) {
	// Arrange
	source := NewSliceSource(
		NodeEntity(&osm.Node{ID: 1}),
		NodeEntity(&osm.Node{ID: 2}),
		WayEntity(&osm.Way{ID: 3}),
	)
	cursor, err := NewCursor(source)
	util.AssertNil(t, err)

	// Act
	var nodeIds []int64
	for cursor.HasKind(KindNode) {
		entity, _ := cursor.Current()
		nodeIds = append(nodeIds, entity.ID())
		util.AssertNil(t, cursor.Advance())
	}

	// Assert
	util.AssertEqual(t, []int64{1, 2}, nodeIds)
	entity, ok := cursor.Current()
	util.AssertTrue(t, ok)
	util.AssertEqual(t, KindWay, entity.Kind)

	util.AssertNil(t, cursor.Advance())
	_, ok = cursor.Current()
	util.AssertFalse(t, ok)
}

func TestKind_parse(t *testing.T) {
	for _, kind := range Kinds {
		parsed, err := ParseKind(kind.String())
		util.AssertNil(t, err)
		util.AssertEqual(t, kind, parsed)

		parsed, err = ParseKind(kind.Plural())
		util.AssertNil(t, err)
		util.AssertEqual(t, kind, parsed)
	}

	_, err := ParseKind("changeset")
	util.AssertNotNil(t, err)
}

func TestFileSource_readXmlAndReset(t *testing.T) {
	// Arrange
	filename := filepath.Join(t.TempDir(), "input.osm")
	util.Must(t, os.WriteFile(filename, []byte(testOsmXml), 0644))

	source, err := OpenFile(filename, 1)
	util.AssertNil(t, err)
	defer source.Close()

	// Act & Assert
	expected := []string{"node/1", "node/2", "way/10", "relation/20"}
	util.AssertEqual(t, expected, collectIds(t, source))

	util.AssertNil(t, source.Reset())
	util.AssertEqual(t, expected, collectIds(t, source))
}

func TestFileSource_invalidSuffix(t *testing.T) {
	_, err := OpenFile("input.csv", 1)
	util.AssertNotNil(t, err)
}

func TestFileSource_failedResetAndClose(t *testing.T) {
	// Arrange
	filename := filepath.Join(t.TempDir(), "input.osm")
	util.Must(t, os.WriteFile(filename, []byte(testOsmXml), 0644))

	source, err := OpenFile(filename, 1)
	util.Must(t, err)
	util.Must(t, os.Remove(filename))

	// Act
	err = source.Reset()

	// Assert
	util.AssertErrorIs(t, os.ErrNotExist, err)
	util.AssertFalse(t, source.Scan())
	util.AssertNil(t, source.Close())
	util.AssertNil(t, source.Close())
}

func TestStreamSource_resetOnlyBeforeReading(t *testing.T) {
	// Arrange
	source := NewStreamSource(strings.NewReader(testOsmXml), false, 1)
	defer source.Close()

	// Act & Assert
	util.AssertNil(t, source.Reset())
	util.AssertEqual(t, []string{"node/1", "node/2", "way/10", "relation/20"}, collectIds(t, source))
	util.AssertErrorIs(t, ErrNotResettable, source.Reset())
}

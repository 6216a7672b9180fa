package io

import (
	"bytes"
	"encoding/xml"
	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"io"
	ownOsm "tiledosm/osm"
)

const generator = "tiledosm"

// Sink receives the entities of a query result. Nodes are added before ways and ways before relations. Flush is called
// exactly once after the last entity.
type Sink interface {
	AddNode(node *osm.Node) error
	AddWay(way *osm.Way) error
	AddRelation(relation *osm.Relation) error
	Flush() error
}

// AddEntity dispatches the entity to the sink method of its kind.
func AddEntity(sink Sink, entity ownOsm.Entity) error {
	switch entity.Kind {
	case ownOsm.KindNode:
		return sink.AddNode(entity.Node)
	case ownOsm.KindWay:
		return sink.AddWay(entity.Way)
	case ownOsm.KindRelation:
		return sink.AddRelation(entity.Relation)
	}
	return errors.Errorf("Unknown entity kind %d", entity.Kind)
}

// CollectingSink keeps all entities in memory.
type CollectingSink struct {
	OSM     *osm.OSM
	flushed bool
}

func NewCollectingSink() *CollectingSink {
	return &CollectingSink{
		OSM: &osm.OSM{
			Version:   "0.6",
			Generator: generator,
		},
	}
}

func (s *CollectingSink) AddNode(node *osm.Node) error {
	s.OSM.Nodes = append(s.OSM.Nodes, node)
	return nil
}

func (s *CollectingSink) AddWay(way *osm.Way) error {
	s.OSM.Ways = append(s.OSM.Ways, way)
	return nil
}

func (s *CollectingSink) AddRelation(relation *osm.Relation) error {
	s.OSM.Relations = append(s.OSM.Relations, relation)
	return nil
}

func (s *CollectingSink) Flush() error {
	s.flushed = true
	return nil
}

func (s *CollectingSink) Flushed() bool {
	return s.flushed
}

// SetBound sets the bounds element of the output, which is usually the extent of the requested tile.
func (s *CollectingSink) SetBound(bound orb.Bound) {
	s.OSM.Bounds = &osm.Bounds{
		MinLat: bound.Min.Lat(),
		MaxLat: bound.Max.Lat(),
		MinLon: bound.Min.Lon(),
		MaxLon: bound.Max.Lon(),
	}
}

// XmlSink writes an OSM-XML document when flushed.
type XmlSink struct {
	*CollectingSink
	writer io.Writer
}

func NewXmlSink(writer io.Writer) *XmlSink {
	return &XmlSink{
		CollectingSink: NewCollectingSink(),
		writer:         writer,
	}
}

// Flush encodes the whole document before writing it, so that nothing is written when the encoding fails.
func (s *XmlSink) Flush() error {
	buffer := &bytes.Buffer{}
	buffer.WriteString(xml.Header)

	encoder := xml.NewEncoder(buffer)
	encoder.Indent("", "  ")
	err := encoder.Encode(s.OSM)
	if err != nil {
		return errors.Wrap(err, "Unable to encode OSM-XML")
	}
	buffer.WriteString("\n")

	_, err = buffer.WriteTo(s.writer)
	if err != nil {
		return errors.Wrap(err, "Unable to write OSM-XML")
	}
	return s.CollectingSink.Flush()
}

// JsonSink writes an OSM-JSON document when flushed.
type JsonSink struct {
	*CollectingSink
	writer io.Writer
}

func NewJsonSink(writer io.Writer) *JsonSink {
	return &JsonSink{
		CollectingSink: NewCollectingSink(),
		writer:         writer,
	}
}

func (s *JsonSink) Flush() error {
	data, err := s.OSM.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "Unable to marshal OSM-JSON")
	}

	_, err = s.writer.Write(data)
	if err != nil {
		return errors.Wrap(err, "Unable to write OSM-JSON")
	}
	return s.CollectingSink.Flush()
}

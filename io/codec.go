package io

import (
	"bufio"
	"encoding/binary"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"io"
	"math"
	ownOsm "tiledosm/osm"
)

var ErrCorrupt = errors.New("Corrupt entity data")

const maxStringLength = math.MaxUint16

var memberTypes = []osm.Type{osm.TypeNode, osm.TypeWay, osm.TypeRelation}

/*
	Record formats (all numbers little endian):

	Node:     | kind | id | lat | lon | version |  tags  |
	Bytes:    |  1   | 8  |  8  |  8  |    4    |  var.  |

	Way:      | kind | id | version |  tags  | num. nodes |       nodes       |
	Bytes:    |  1   | 8  |    4    |  var.  |     4      | <num. nodes> * 24 |

	Each way node consists of its ID (8 bytes), lat and lon (8 bytes each). The coordinates are the ones of the input
	and might be 0 when the input didn't provide them.

	Relation: | kind | id | version |  tags  | num. members |  members  |
	Bytes:    |  1   | 8  |    4    |  var.  |      4       |   var.    |

	Each member consists of its type (1 byte), ref (8 bytes) and the role string.

	Tags:     | num. tags | key | value | key | value | ...
	Bytes:    |     2     |       strings

	String:   | length | UTF-8 bytes |
	Bytes:    |   2    |   length    |
*/

// Encoder turns entities into binary records. The returned slices are reused by the next call to Encode, so an
// Encoder must not be shared between goroutines.
type Encoder struct {
	data []byte
}

func NewEncoder() *Encoder {
	return &Encoder{data: make([]byte, 0, 1000)}
}

// Append writes the binary record of the entity to the writer.
func Append(w io.Writer, entity ownOsm.Entity) error {
	data, err := NewEncoder().Encode(entity)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func (e *Encoder) Encode(entity ownOsm.Entity) ([]byte, error) {
	e.data = e.data[:0]
	e.data = append(e.data, byte(entity.Kind))

	var err error
	switch entity.Kind {
	case ownOsm.KindNode:
		err = e.encodeNode(entity.Node)
	case ownOsm.KindWay:
		err = e.encodeWay(entity.Way)
	case ownOsm.KindRelation:
		err = e.encodeRelation(entity.Relation)
	default:
		err = errors.Errorf("Unknown entity kind %d", entity.Kind)
	}
	if err != nil {
		return nil, err
	}

	return e.data, nil
}

func (e *Encoder) encodeNode(node *osm.Node) error {
	e.putInt64(int64(node.ID))
	e.putFloat64(node.Lat)
	e.putFloat64(node.Lon)
	e.putInt32(int32(node.Version))
	return e.putTags(node.Tags)
}

func (e *Encoder) encodeWay(way *osm.Way) error {
	e.putInt64(int64(way.ID))
	e.putInt32(int32(way.Version))
	err := e.putTags(way.Tags)
	if err != nil {
		return errors.Wrapf(err, "Unable to encode tags of way %d", way.ID)
	}

	e.data = binary.LittleEndian.AppendUint32(e.data, uint32(len(way.Nodes)))
	for _, node := range way.Nodes {
		e.putInt64(int64(node.ID))
		e.putFloat64(node.Lat)
		e.putFloat64(node.Lon)
	}
	return nil
}

func (e *Encoder) encodeRelation(relation *osm.Relation) error {
	e.putInt64(int64(relation.ID))
	e.putInt32(int32(relation.Version))
	err := e.putTags(relation.Tags)
	if err != nil {
		return errors.Wrapf(err, "Unable to encode tags of relation %d", relation.ID)
	}

	e.data = binary.LittleEndian.AppendUint32(e.data, uint32(len(relation.Members)))
	for _, member := range relation.Members {
		typeIndex := -1
		for i, memberType := range memberTypes {
			if member.Type == memberType {
				typeIndex = i
				break
			}
		}
		if typeIndex == -1 {
			return errors.Errorf("Unsupported member type '%s' in relation %d", member.Type, relation.ID)
		}

		e.data = append(e.data, byte(typeIndex))
		e.putInt64(member.Ref)
		err = e.putString(member.Role)
		if err != nil {
			return errors.Wrapf(err, "Unable to encode member role of relation %d", relation.ID)
		}
	}
	return nil
}

func (e *Encoder) putInt64(v int64) {
	e.data = binary.LittleEndian.AppendUint64(e.data, uint64(v))
}

func (e *Encoder) putInt32(v int32) {
	e.data = binary.LittleEndian.AppendUint32(e.data, uint32(v))
}

func (e *Encoder) putFloat64(v float64) {
	e.data = binary.LittleEndian.AppendUint64(e.data, math.Float64bits(v))
}

func (e *Encoder) putTags(tags osm.Tags) error {
	if len(tags) > math.MaxUint16 {
		return errors.Errorf("Too many tags: %d", len(tags))
	}

	e.data = binary.LittleEndian.AppendUint16(e.data, uint16(len(tags)))
	for _, tag := range tags {
		err := e.putString(tag.Key)
		if err != nil {
			return err
		}
		err = e.putString(tag.Value)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) putString(s string) error {
	if len(s) > maxStringLength {
		return errors.Errorf("String of length %d exceeds maximum length %d", len(s), maxStringLength)
	}
	e.data = binary.LittleEndian.AppendUint16(e.data, uint16(len(s)))
	e.data = append(e.data, s...)
	return nil
}

// Decoder reads binary records sequentially.
type Decoder struct {
	reader  *bufio.Reader
	scratch [8]byte
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: bufio.NewReader(r)}
}

// Decode returns the next entity. At the end of the data io.EOF is returned. Truncated or invalid records result in
// an error wrapping ErrCorrupt.
func (d *Decoder) Decode() (ownOsm.Entity, error) {
	kindByte, err := d.reader.ReadByte()
	if err == io.EOF {
		return ownOsm.Entity{}, io.EOF
	} else if err != nil {
		return ownOsm.Entity{}, errors.Wrap(err, "Unable to read entity kind")
	}

	var entity ownOsm.Entity
	switch ownOsm.Kind(kindByte) {
	case ownOsm.KindNode:
		var node *osm.Node
		node, err = d.decodeNode()
		entity = ownOsm.NodeEntity(node)
	case ownOsm.KindWay:
		var way *osm.Way
		way, err = d.decodeWay()
		entity = ownOsm.WayEntity(way)
	case ownOsm.KindRelation:
		var relation *osm.Relation
		relation, err = d.decodeRelation()
		entity = ownOsm.RelationEntity(relation)
	default:
		return ownOsm.Entity{}, errors.Wrapf(ErrCorrupt, "Unknown entity kind %d", kindByte)
	}

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return ownOsm.Entity{}, errors.Wrapf(ErrCorrupt, "Truncated %s record", ownOsm.Kind(kindByte))
	} else if err != nil {
		return ownOsm.Entity{}, err
	}

	return entity, nil
}

func (d *Decoder) decodeNode() (*osm.Node, error) {
	node := &osm.Node{Visible: true}

	id, err := d.readInt64()
	if err != nil {
		return nil, err
	}
	node.ID = osm.NodeID(id)

	node.Lat, err = d.readFloat64()
	if err != nil {
		return nil, err
	}
	node.Lon, err = d.readFloat64()
	if err != nil {
		return nil, err
	}

	version, err := d.readInt32()
	if err != nil {
		return nil, err
	}
	node.Version = int(version)

	node.Tags, err = d.readTags()
	if err != nil {
		return nil, err
	}

	return node, nil
}

func (d *Decoder) decodeWay() (*osm.Way, error) {
	way := &osm.Way{Visible: true}

	id, err := d.readInt64()
	if err != nil {
		return nil, err
	}
	way.ID = osm.WayID(id)

	version, err := d.readInt32()
	if err != nil {
		return nil, err
	}
	way.Version = int(version)

	way.Tags, err = d.readTags()
	if err != nil {
		return nil, err
	}

	numberOfNodes, err := d.readUint32()
	if err != nil {
		return nil, err
	}

	if numberOfNodes > 0 {
		way.Nodes = make(osm.WayNodes, 0, min(numberOfNodes, 1<<16))
	}
	for i := uint32(0); i < numberOfNodes; i++ {
		nodeId, err := d.readInt64()
		if err != nil {
			return nil, err
		}
		lat, err := d.readFloat64()
		if err != nil {
			return nil, err
		}
		lon, err := d.readFloat64()
		if err != nil {
			return nil, err
		}
		way.Nodes = append(way.Nodes, osm.WayNode{ID: osm.NodeID(nodeId), Lat: lat, Lon: lon})
	}

	return way, nil
}

func (d *Decoder) decodeRelation() (*osm.Relation, error) {
	relation := &osm.Relation{Visible: true}

	id, err := d.readInt64()
	if err != nil {
		return nil, err
	}
	relation.ID = osm.RelationID(id)

	version, err := d.readInt32()
	if err != nil {
		return nil, err
	}
	relation.Version = int(version)

	relation.Tags, err = d.readTags()
	if err != nil {
		return nil, err
	}

	numberOfMembers, err := d.readUint32()
	if err != nil {
		return nil, err
	}

	if numberOfMembers > 0 {
		relation.Members = make(osm.Members, 0, min(numberOfMembers, 1<<16))
	}
	for i := uint32(0); i < numberOfMembers; i++ {
		typeIndex, err := d.reader.ReadByte()
		if err != nil {
			return nil, err
		}
		if int(typeIndex) >= len(memberTypes) {
			return nil, errors.Wrapf(ErrCorrupt, "Unknown member type %d in relation %d", typeIndex, id)
		}

		ref, err := d.readInt64()
		if err != nil {
			return nil, err
		}
		role, err := d.readString()
		if err != nil {
			return nil, err
		}

		relation.Members = append(relation.Members, osm.Member{Type: memberTypes[typeIndex], Ref: ref, Role: role})
	}

	return relation, nil
}

func (d *Decoder) readBytes(n int) ([]byte, error) {
	_, err := io.ReadFull(d.reader, d.scratch[:n])
	if err != nil {
		return nil, err
	}
	return d.scratch[:n], nil
}

func (d *Decoder) readInt64() (int64, error) {
	data, err := d.readBytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(data)), nil
}

func (d *Decoder) readFloat64() (float64, error) {
	data, err := d.readBytes(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(data)), nil
}

func (d *Decoder) readUint32() (uint32, error) {
	data, err := d.readBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (d *Decoder) readInt32() (int32, error) {
	v, err := d.readUint32()
	return int32(v), err
}

func (d *Decoder) readUint16() (uint16, error) {
	data, err := d.readBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

func (d *Decoder) readString() (string, error) {
	length, err := d.readUint16()
	if err != nil {
		return "", err
	}

	data := make([]byte, length)
	_, err = io.ReadFull(d.reader, data)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (d *Decoder) readTags() (osm.Tags, error) {
	numberOfTags, err := d.readUint16()
	if err != nil {
		return nil, err
	}
	if numberOfTags == 0 {
		return nil, nil
	}

	tags := make(osm.Tags, numberOfTags)
	for i := range tags {
		tags[i].Key, err = d.readString()
		if err != nil {
			return nil, err
		}
		tags[i].Value, err = d.readString()
		if err != nil {
			return nil, err
		}
	}
	return tags, nil
}

package osm

import (
	"fmt"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"tiledosm/util"
)

// Kind is an enum for all the three existing object types in OpenStreetMap. The order of the values is the order in
// which they appear in a sorted input stream.
type Kind int

const (
	KindNode Kind = iota
	KindWay
	KindRelation
)

// Kinds contains all kinds in stream order.
var Kinds = []Kind{KindNode, KindWay, KindRelation}

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindWay:
		return "way"
	case KindRelation:
		return "relation"
	}
	panic(fmt.Sprintf("[!UNKNOWN Kind %d]", k))
}

// Plural is used for file names, e.g. "nodes" in "12/2200/1343.nodes.idx".
func (k Kind) Plural() string {
	return k.String() + "s"
}

// ParseKind converts "node", "way" and "relation" (or their plural forms) into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, kind := range Kinds {
		if s == kind.String() || s == kind.Plural() {
			return kind, nil
		}
	}
	return 0, errors.Errorf("Unknown OSM object type '%s'", s)
}

// Entity is a closed union over the three OSM object types. Exactly the field belonging to Kind is set.
type Entity struct {
	Kind     Kind
	Node     *osm.Node
	Way      *osm.Way
	Relation *osm.Relation
}

func NodeEntity(node *osm.Node) Entity {
	return Entity{Kind: KindNode, Node: node}
}

func WayEntity(way *osm.Way) Entity {
	return Entity{Kind: KindWay, Way: way}
}

func RelationEntity(relation *osm.Relation) Entity {
	return Entity{Kind: KindRelation, Relation: relation}
}

// FromObject converts an object of a paulmach/osm scanner into an entity. Changesets, notes and users can't be part of
// a tile and result in an error.
func FromObject(object osm.Object) (Entity, error) {
	switch o := object.(type) {
	case *osm.Node:
		return NodeEntity(o), nil
	case *osm.Way:
		return WayEntity(o), nil
	case *osm.Relation:
		return RelationEntity(o), nil
	}
	return Entity{}, errors.Errorf("Unsupported OSM object %v", object.ObjectID())
}

func (e Entity) ID() int64 {
	switch e.Kind {
	case KindNode:
		return int64(e.Node.ID)
	case KindWay:
		return int64(e.Way.ID)
	case KindRelation:
		return int64(e.Relation.ID)
	}
	util.LogFatalBug("Unknown entity kind %d", e.Kind)
	return 0
}

func (e Entity) String() string {
	return fmt.Sprintf("%s/%d", e.Kind, e.ID())
}

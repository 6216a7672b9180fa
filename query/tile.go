package query

import (
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/pkg/errors"
	"slices"
	"tiledosm/common"
	ownIo "tiledosm/io"
	"time"
)

// GetCompleteTile writes all entities of the tile into the sink. Nodes of the tiles ways which are stored in other
// tiles are added as well, so that every way is complete.
func (d *Database) GetCompleteTile(tile common.Tile, sink ownIo.Sink) error {
	err := d.validateTile(tile)
	if err != nil {
		return err
	}

	queryStartTime := time.Now()

	content, err := d.readTile(tile)
	if err != nil {
		return errors.Wrapf(err, "Unable to read tile %s", tile)
	}

	localNodeIds := nodeIdSet(content.nodes)
	missingNodeIds := map[osm.NodeID]bool{}
	for _, way := range content.ways {
		for _, wayNode := range way.Nodes {
			if !localNodeIds[wayNode.ID] {
				missingNodeIds[wayNode.ID] = true
			}
		}
	}

	resolvedNodes, err := d.resolveNodes(missingNodeIds)
	if err != nil {
		return err
	}

	err = emit(sink, mergeNodes(content.nodes, resolvedNodes), content.ways, content.relations)
	if err != nil {
		return err
	}

	sigolo.Debugf("Created complete tile %s with %d local and %d resolved nodes in %s", tile, len(content.nodes), len(resolvedNodes), time.Since(queryStartTime))
	return nil
}

// GetRoutableTile writes the entities of the tile into the sink while keeping only the parts of the ways within the
// tile. Each way is cut to the part between its first and last node within the tile, extended by one node on each
// side. This keeps the connection to the neighboring tiles. Nodes of this extended part that are stored in other tiles
// are added to the output.
func (d *Database) GetRoutableTile(tile common.Tile, sink ownIo.Sink) error {
	err := d.validateTile(tile)
	if err != nil {
		return err
	}

	queryStartTime := time.Now()

	content, err := d.readTile(tile)
	if err != nil {
		return errors.Wrapf(err, "Unable to read tile %s", tile)
	}

	localNodeIds := nodeIdSet(content.nodes)
	outsideNodeIds := map[osm.NodeID]bool{}
	includedWayIds := map[osm.WayID]bool{}
	var includedWays []*osm.Way

	for _, way := range content.ways {
		first, last := -1, -1
		for i, wayNode := range way.Nodes {
			if localNodeIds[wayNode.ID] {
				if first == -1 {
					first = i
				}
				last = i
			}
		}
		if first == -1 {
			sigolo.Tracef("Way %d has no node in tile %s", way.ID, tile)
			continue
		}

		if first > 0 {
			first--
		}
		if last < len(way.Nodes)-1 {
			last++
		}
		way.Nodes = way.Nodes[first : last+1]

		for _, wayNode := range way.Nodes {
			if !localNodeIds[wayNode.ID] {
				outsideNodeIds[wayNode.ID] = true
			}
		}

		includedWays = append(includedWays, way)
		includedWayIds[way.ID] = true
	}

	resolvedNodes, err := d.resolveNodes(outsideNodeIds)
	if err != nil {
		return err
	}
	nodes := mergeNodes(content.nodes, resolvedNodes)
	includedNodeIds := nodeIdSet(nodes)

	var includedRelations []*osm.Relation
	for _, relation := range content.relations {
		if hasIncludedMember(relation, includedNodeIds, includedWayIds) {
			includedRelations = append(includedRelations, relation)
		}
	}

	err = emit(sink, nodes, includedWays, includedRelations)
	if err != nil {
		return err
	}

	sigolo.Debugf("Created routable tile %s with %d nodes, %d ways and %d relations in %s", tile, len(nodes), len(includedWays), len(includedRelations), time.Since(queryStartTime))
	return nil
}

func hasIncludedMember(relation *osm.Relation, nodeIds map[osm.NodeID]bool, wayIds map[osm.WayID]bool) bool {
	for _, member := range relation.Members {
		switch member.Type {
		case osm.TypeNode:
			if nodeIds[osm.NodeID(member.Ref)] {
				return true
			}
		case osm.TypeWay:
			if wayIds[osm.WayID(member.Ref)] {
				return true
			}
		}
	}
	return false
}

// resolveNodes looks up the given nodes in ascending ID order. Nodes that can't be found are skipped.
func (d *Database) resolveNodes(ids map[osm.NodeID]bool) ([]*osm.Node, error) {
	sortedIds := make([]osm.NodeID, 0, len(ids))
	for id := range ids {
		sortedIds = append(sortedIds, id)
	}
	slices.Sort(sortedIds)

	var nodes []*osm.Node
	for _, id := range sortedIds {
		node, err := d.GetNode(id)
		if err != nil {
			return nil, err
		}
		if node == nil {
			sigolo.Debugf("Node %d referenced in tile does not exist in the database", id)
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

// mergeNodes merges the two node lists, which are both sorted by ID, into one sorted list.
func mergeNodes(a []*osm.Node, b []*osm.Node) []*osm.Node {
	result := make([]*osm.Node, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i].ID <= b[j].ID {
			result = append(result, a[i])
			i++
		} else {
			result = append(result, b[j])
			j++
		}
	}
	result = append(result, a[i:]...)
	return append(result, b[j:]...)
}

func nodeIdSet(nodes []*osm.Node) map[osm.NodeID]bool {
	ids := make(map[osm.NodeID]bool, len(nodes))
	for _, node := range nodes {
		ids[node.ID] = true
	}
	return ids
}

func emit(sink ownIo.Sink, nodes []*osm.Node, ways []*osm.Way, relations []*osm.Relation) error {
	for _, node := range nodes {
		err := sink.AddNode(node)
		if err != nil {
			return errors.Wrapf(err, "Unable to add node %d to output", node.ID)
		}
	}
	for _, way := range ways {
		err := sink.AddWay(way)
		if err != nil {
			return errors.Wrapf(err, "Unable to add way %d to output", way.ID)
		}
	}
	for _, relation := range relations {
		err := sink.AddRelation(relation)
		if err != nil {
			return errors.Wrapf(err, "Unable to add relation %d to output", relation.ID)
		}
	}
	return sink.Flush()
}

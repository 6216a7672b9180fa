package osm

import (
	"github.com/pkg/errors"
)

var ErrNotResettable = errors.New("Source cannot be reset")

// Source is a stream of entities. Sources used to build a tile database must yield all nodes, then all ways and then
// all relations, each group sorted ascending by ID.
type Source interface {
	// Scan moves to the next entity and returns false when the end of the stream or an error has been reached.
	Scan() bool

	// Entity returns the entity the last call to Scan moved to.
	Entity() Entity

	// Err returns the first error that occurred during scanning.
	Err() error

	// Reset moves the source back to its beginning. Sources unable to do that return ErrNotResettable.
	Reset() error

	Close() error
}

// SliceSource is a resettable in-memory source.
type SliceSource struct {
	entities []Entity
	position int
}

func NewSliceSource(entities ...Entity) *SliceSource {
	return &SliceSource{
		entities: entities,
		position: -1,
	}
}

func (s *SliceSource) Scan() bool {
	if s.position+1 >= len(s.entities) {
		s.position = len(s.entities)
		return false
	}
	s.position++
	return true
}

func (s *SliceSource) Entity() Entity {
	return s.entities[s.position]
}

func (s *SliceSource) Err() error {
	return nil
}

func (s *SliceSource) Reset() error {
	s.position = -1
	return nil
}

func (s *SliceSource) Close() error {
	return nil
}

// ChainSource yields the entities of all given sources one after another.
type ChainSource struct {
	sources []Source
	current int
	err     error
}

func NewChainSource(sources ...Source) *ChainSource {
	return &ChainSource{sources: sources}
}

func (c *ChainSource) Scan() bool {
	for c.current < len(c.sources) {
		source := c.sources[c.current]
		if source.Scan() {
			return true
		}
		if err := source.Err(); err != nil {
			c.err = err
			return false
		}
		c.current++
	}
	return false
}

func (c *ChainSource) Entity() Entity {
	return c.sources[c.current].Entity()
}

func (c *ChainSource) Err() error {
	return c.err
}

func (c *ChainSource) Reset() error {
	for _, source := range c.sources {
		if err := source.Reset(); err != nil {
			return err
		}
	}
	c.current = 0
	c.err = nil
	return nil
}

func (c *ChainSource) Close() error {
	var firstErr error
	for _, source := range c.sources {
		if err := source.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Cursor wraps a source and keeps the current entity available without consuming it. This allows a consumer to stop
// at the first entity it's not responsible for and hand the cursor over to the next consumer.
type Cursor struct {
	source  Source
	current Entity
	valid   bool
}

// NewCursor creates a cursor positioned at the first entity of the source.
func NewCursor(source Source) (*Cursor, error) {
	cursor := &Cursor{source: source}
	err := cursor.Advance()
	if err != nil {
		return nil, err
	}
	return cursor, nil
}

// Current returns the entity the cursor is positioned at. The boolean is false when the stream is exhausted.
func (c *Cursor) Current() (Entity, bool) {
	return c.current, c.valid
}

// Advance moves the cursor to the next entity.
func (c *Cursor) Advance() error {
	if c.source.Scan() {
		c.current = c.source.Entity()
		c.valid = true
		return nil
	}

	c.current = Entity{}
	c.valid = false
	return c.source.Err()
}

// HasKind returns true when the cursor is positioned at an entity of the given kind.
func (c *Cursor) HasKind(kind Kind) bool {
	return c.valid && c.current.Kind == kind
}

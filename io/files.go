package io

import (
	"bufio"
	"fmt"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"io"
	"os"
	"path/filepath"
	"tiledosm/common"
	ownOsm "tiledosm/osm"
)

const (
	EntityFileExtension = "osm.bin"
	IndexFileExtension  = "idx"
)

// TileFolder returns the folder containing all files of the tile: "{base}/{zoom}/{x}".
func TileFolder(baseFolder string, tile common.Tile) string {
	return filepath.Join(baseFolder, fmt.Sprintf("%d", tile.Zoom), fmt.Sprintf("%d", tile.X))
}

// TileFilename returns the file name of the tile for the given kind and extension, e.g.
// "{base}/{zoom}/{x}/{y}.nodes.osm.bin".
func TileFilename(baseFolder string, tile common.Tile, kind ownOsm.Kind, extension string) string {
	return filepath.Join(TileFolder(baseFolder, tile), fmt.Sprintf("%d.%s.%s", tile.Y, kind.Plural(), extension))
}

func EntityFilename(baseFolder string, tile common.Tile, kind ownOsm.Kind) string {
	return TileFilename(baseFolder, tile, kind, EntityFileExtension)
}

func IndexFilename(baseFolder string, tile common.Tile, kind ownOsm.Kind) string {
	return TileFilename(baseFolder, tile, kind, IndexFileExtension)
}

// CreateFile creates (or truncates) the file and its folder.
func CreateFile(filename string) (*os.File, error) {
	folder := filepath.Dir(filename)
	if _, err := os.Stat(folder); errors.Is(err, os.ErrNotExist) {
		sigolo.Tracef("Tile folder %s doesn't exist, I'll create it", folder)
		err = os.MkdirAll(folder, os.ModePerm)
		if err != nil {
			return nil, errors.Wrapf(err, "Unable to create tile folder %s", folder)
		}
	} else if err != nil {
		return nil, errors.Wrapf(err, "Unable to get existence status of tile folder %s", folder)
	}

	file, err := os.Create(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to create tile file %s", filename)
	}
	return file, nil
}

// EntityFileWriter appends encoded entities to a buffered file.
type EntityFileWriter struct {
	file   *os.File
	writer *bufio.Writer
	count  int
}

func NewEntityFileWriter(filename string) (*EntityFileWriter, error) {
	file, err := CreateFile(filename)
	if err != nil {
		return nil, err
	}
	return &EntityFileWriter{
		file:   file,
		writer: bufio.NewWriter(file),
	}, nil
}

// Write appends an already encoded entity record.
func (w *EntityFileWriter) Write(record []byte) error {
	_, err := w.writer.Write(record)
	if err != nil {
		return errors.Wrapf(err, "Unable to write to tile file %s", w.file.Name())
	}
	w.count++
	return nil
}

func (w *EntityFileWriter) Count() int {
	return w.count
}

func (w *EntityFileWriter) Close() error {
	err := w.writer.Flush()
	if err != nil {
		return errors.Wrapf(err, "Error flushing writer of tile file %s", w.file.Name())
	}
	err = w.file.Close()
	if err != nil {
		return errors.Wrapf(err, "Error closing tile file %s", w.file.Name())
	}
	return nil
}

// EntityFileSource reads all entities of an entity file. It implements the source interface and can therefore be the
// input of a split step.
type EntityFileSource struct {
	filename string
	file     *os.File
	decoder  *Decoder
	current  ownOsm.Entity
	err      error
}

// OpenEntityFile opens the entity file. A missing file results in an error wrapping os.ErrNotExist.
func OpenEntityFile(filename string) (*EntityFileSource, error) {
	source := &EntityFileSource{filename: filename}
	err := source.open()
	if err != nil {
		return nil, err
	}
	return source, nil
}

func (s *EntityFileSource) open() error {
	file, err := os.Open(s.filename)
	if err != nil {
		return errors.Wrapf(err, "Unable to open entity file %s", s.filename)
	}
	s.file = file
	s.decoder = NewDecoder(file)
	s.err = nil
	return nil
}

func (s *EntityFileSource) Scan() bool {
	if s.file == nil {
		return false
	}

	entity, err := s.decoder.Decode()
	if err == io.EOF {
		return false
	} else if err != nil {
		s.err = errors.Wrapf(err, "Unable to read entity file %s", s.filename)
		return false
	}
	s.current = entity
	return true
}

func (s *EntityFileSource) Entity() ownOsm.Entity {
	return s.current
}

func (s *EntityFileSource) Err() error {
	return s.err
}

func (s *EntityFileSource) Reset() error {
	err := s.Close()
	if err != nil {
		return err
	}
	return s.open()
}

// Close closes the entity file. Closing an already closed source does nothing.
func (s *EntityFileSource) Close() error {
	if s.file == nil {
		return nil
	}

	err := s.file.Close()
	s.file = nil
	s.decoder = nil
	if err != nil {
		return errors.Wrapf(err, "Unable to close entity file %s", s.filename)
	}
	return nil
}

// OpenTileSource returns a source over the node, way and relation files of the tile in this order. Missing files are
// skipped. The boolean is false when the tile has no entity file at all.
func OpenTileSource(baseFolder string, tile common.Tile) (ownOsm.Source, bool, error) {
	var sources []ownOsm.Source
	for _, kind := range ownOsm.Kinds {
		source, err := OpenEntityFile(EntityFilename(baseFolder, tile, kind))
		if errors.Is(err, os.ErrNotExist) {
			continue
		} else if err != nil {
			for _, s := range sources {
				_ = s.Close()
			}
			return nil, false, err
		}
		sources = append(sources, source)
	}

	if len(sources) == 0 {
		return nil, false, nil
	}
	return ownOsm.NewChainSource(sources...), true, nil
}

// ReadEntities reads all entities of the given entity file. A missing file is not an error and results in an empty
// list.
func ReadEntities(filename string) ([]ownOsm.Entity, error) {
	source, err := OpenEntityFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		sigolo.Tracef("Entity file %s does not exist, I'll return an empty list", filename)
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	defer source.Close()

	var entities []ownOsm.Entity
	for source.Scan() {
		entities = append(entities, source.Entity())
	}
	return entities, source.Err()
}

// FindEntity scans the entity file for the entity with the given ID. The boolean is false when the file or the
// entity doesn't exist. Entity files are sorted by ID, so the scan stops at the first larger ID.
func FindEntity(filename string, id int64) (ownOsm.Entity, bool, error) {
	source, err := OpenEntityFile(filename)
	if errors.Is(err, os.ErrNotExist) {
		return ownOsm.Entity{}, false, nil
	} else if err != nil {
		return ownOsm.Entity{}, false, err
	}
	defer source.Close()

	for source.Scan() {
		entity := source.Entity()
		if entity.ID() == id {
			return entity, true, nil
		} else if entity.ID() > id {
			break
		}
	}
	return ownOsm.Entity{}, false, source.Err()
}

// RemoveEntityFiles deletes all entity files of the tile. Missing files are ignored.
func RemoveEntityFiles(baseFolder string, tile common.Tile) error {
	for _, kind := range ownOsm.Kinds {
		filename := EntityFilename(baseFolder, tile, kind)
		err := os.Remove(filename)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return errors.Wrapf(err, "Unable to remove entity file %s", filename)
		}
	}
	return nil
}

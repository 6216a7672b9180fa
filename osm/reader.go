package osm

import (
	"context"
	"github.com/hauke96/sigolo/v2"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"
	"github.com/pkg/errors"
	"io"
	"os"
	"strings"
)

// FileSource reads an .osm or .osm.pbf file. Resetting the source re-opens the file.
type FileSource struct {
	filename string
	procs    int
	file     *os.File
	scanner  osm.Scanner
	current  Entity
	lastKind Kind
	started  bool
	err      error
}

// OpenFile opens the given .osm or .pbf file. The procs parameter determines the number of goroutines decoding PBF
// blocks and is ignored for XML files.
func OpenFile(filename string, procs int) (*FileSource, error) {
	if !strings.HasSuffix(filename, ".osm") && !strings.HasSuffix(filename, ".pbf") {
		return nil, errors.Errorf("Input file %s must be an .osm or .pbf file", filename)
	}
	if procs < 1 {
		procs = 1
	}

	source := &FileSource{
		filename: filename,
		procs:    procs,
	}

	err := source.open()
	if err != nil {
		return nil, err
	}

	return source, nil
}

func (s *FileSource) open() error {
	file, err := os.Open(s.filename)
	if err != nil {
		return errors.Wrapf(err, "Unable to open OSM input file %s", s.filename)
	}

	s.scanner = newScanner(file, strings.HasSuffix(s.filename, ".pbf"), s.procs)
	s.file = file
	s.started = false
	s.err = nil
	return nil
}

func newScanner(reader io.Reader, pbf bool, procs int) osm.Scanner {
	if pbf {
		return osmpbf.New(context.Background(), reader, procs)
	}
	return osmxml.New(context.Background(), reader)
}

// nextEntity moves the scanner to the next node, way or relation. Other objects are skipped.
func nextEntity(scanner osm.Scanner) (Entity, bool) {
	for scanner.Scan() {
		entity, err := FromObject(scanner.Object())
		if err != nil {
			// Bounds, changesets and other non-entity objects are not part of tiles
			sigolo.Tracef("Skip object: %s", err.Error())
			continue
		}
		return entity, true
	}
	return Entity{}, false
}

func (s *FileSource) Scan() bool {
	if s.file == nil {
		return false
	}

	entity, ok := nextEntity(s.scanner)
	if ok {
		s.logPhase(entity.Kind)
		s.current = entity
		return true
	}

	err := s.scanner.Err()
	if err != nil {
		s.err = errors.Wrapf(err, "Unable to read OSM input file %s", s.filename)
	}
	return false
}

func (s *FileSource) logPhase(kind Kind) {
	if s.started && kind == s.lastKind {
		return
	}
	s.started = true
	s.lastKind = kind
	sigolo.Debugf("Start reading %s (%d/3) from %s", kind.Plural(), int(kind)+1, s.filename)
}

func (s *FileSource) Entity() Entity {
	return s.current
}

func (s *FileSource) Err() error {
	return s.err
}

func (s *FileSource) Reset() error {
	err := s.Close()
	if err != nil {
		return err
	}
	return s.open()
}

// Close closes the input file. Closing an already closed source does nothing.
func (s *FileSource) Close() error {
	if s.file == nil {
		return nil
	}

	file := s.file
	s.file = nil

	err := s.scanner.Close()
	if err != nil {
		_ = file.Close()
		return errors.Wrapf(err, "Unable to close OSM scanner")
	}

	err = file.Close()
	if err != nil {
		return errors.Wrapf(err, "Unable to close OSM input file %s", s.filename)
	}
	return nil
}

// StreamSource reads OSM data from a stream like stdin. A stream can't be read twice, therefore it can only be reset
// as long as no entity has been read.
type StreamSource struct {
	scanner osm.Scanner
	current Entity
	started bool
	err     error
}

// NewStreamSource creates a source reading OSM-PBF (pbf=true) or OSM-XML from the reader. The reader is not closed by
// the source.
func NewStreamSource(reader io.Reader, pbf bool, procs int) *StreamSource {
	if procs < 1 {
		procs = 1
	}
	return &StreamSource{
		scanner: newScanner(reader, pbf, procs),
	}
}

func (s *StreamSource) Scan() bool {
	s.started = true

	entity, ok := nextEntity(s.scanner)
	if ok {
		s.current = entity
		return true
	}

	err := s.scanner.Err()
	if err != nil {
		s.err = errors.Wrap(err, "Unable to read OSM input stream")
	}
	return false
}

func (s *StreamSource) Entity() Entity {
	return s.current
}

func (s *StreamSource) Err() error {
	return s.err
}

// Reset does nothing before the first call to Scan. Afterward, it returns ErrNotResettable.
func (s *StreamSource) Reset() error {
	if s.started {
		return errors.Wrap(ErrNotResettable, "Unable to reset OSM input stream")
	}
	return nil
}

func (s *StreamSource) Close() error {
	err := s.scanner.Close()
	if err != nil {
		return errors.Wrap(err, "Unable to close OSM scanner")
	}
	return nil
}

package importing

import (
	"context"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/disk"
	"golang.org/x/sync/errgroup"
	"os"
	"sync"
	"sync/atomic"
	"tiledosm/common"
	"tiledosm/index"
	ownIo "tiledosm/io"
	ownOsm "tiledosm/osm"
	"time"
)

var (
	ErrInvalidPath    = errors.New("Invalid base path")
	ErrInvalidMaxZoom = errors.New("Maximum zoom level must be even and at least 2")
)

type BuildConfig struct {
	// MaxZoom is the zoom level of the leaf tiles. It must be even and at least 2.
	MaxZoom uint32

	// Workers is the number of tiles split concurrently.
	Workers int

	// Tiles with a node file smaller than this are split right away by the worker that created them instead of being
	// scheduled for the next frontier.
	InlineSplitBytes int64

	// IndexWriters is the number of index files written concurrently.
	IndexWriters int
}

func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		MaxZoom:          14,
		Workers:          4,
		InlineSplitBytes: 1024 * 1024,
		IndexWriters:     4,
	}
}

func (c BuildConfig) Validate() error {
	if c.MaxZoom < common.ZoomOffset || c.MaxZoom%common.ZoomOffset != 0 {
		return errors.Wrapf(ErrInvalidMaxZoom, "Invalid maximum zoom level %d", c.MaxZoom)
	}
	return nil
}

type BuildStats struct {
	SplitTiles int64 // Tiles split into subtiles
	LeafTiles  int64 // Tiles at the maximum zoom level
	Indices    int64 // Written index files
	Levels     int   // Number of processed frontiers
	Duration   time.Duration
}

type builder struct {
	basePath    string
	config      BuildConfig
	indexWriter *index.AsyncWriter

	nextFrontier      []common.Tile
	nextFrontierMutex *sync.Mutex

	splitTiles atomic.Int64
	leafTiles  atomic.Int64
}

// Build splits the source into a tree of tiles stored in the base path. The source must contain all nodes, then all
// ways and then all relations, each sorted by ID.
//
// Starting with the root tile, every tile is split into its 16 subtiles (two zoom levels deeper) until the maximum
// zoom level is reached. Each split writes the index files of the tile, which map the entity IDs to the subtiles
// containing them. Only the entity files of the leaf tiles are kept.
func Build(source ownOsm.Source, basePath string, config BuildConfig) (*BuildStats, error) {
	err := config.Validate()
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(basePath)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidPath, "Unable to access base path %s: %s", basePath, err.Error())
	}
	if !stat.IsDir() {
		return nil, errors.Wrapf(ErrInvalidPath, "Base path %s is not a directory", basePath)
	}

	err = source.Reset()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to reset input source")
	}

	if config.Workers < 1 {
		config.Workers = 1
	}

	sigolo.Infof("Start building tiles up to zoom level %d in %s", config.MaxZoom, basePath)
	buildStartTime := time.Now()

	b := &builder{
		basePath:          basePath,
		config:            config,
		indexWriter:       index.NewAsyncWriter(config.IndexWriters),
		nextFrontierMutex: &sync.Mutex{},
	}

	levels, err := b.run(source)

	// Index writes of already split tiles are awaited in any case, so that no goroutine outlives the build.
	writeErr := b.indexWriter.Wait()
	if err != nil {
		return nil, err
	}
	if writeErr != nil {
		return nil, errors.Wrap(writeErr, "Unable to write index file")
	}

	stats := &BuildStats{
		SplitTiles: b.splitTiles.Load(),
		LeafTiles:  b.leafTiles.Load(),
		Indices:    b.indexWriter.Written(),
		Levels:     levels,
		Duration:   time.Since(buildStartTime),
	}
	sigolo.Infof("Finished build in %s: Split %d tiles into %d leaf tiles, wrote %d index files", stats.Duration, stats.SplitTiles, stats.LeafTiles, stats.Indices)

	return stats, nil
}

func (b *builder) run(source ownOsm.Source) (int, error) {
	sigolo.Debugf("Split root tile %s from input", common.RootTile)
	err := b.split(context.Background(), common.RootTile, source)
	if err != nil {
		return 0, err
	}
	b.logDiskUsage(0)

	levels := 1
	for frontier := b.takeFrontier(); len(frontier) > 0; frontier = b.takeFrontier() {
		sigolo.Infof("Split %d tiles of frontier %d", len(frontier), levels)

		group, ctx := errgroup.WithContext(context.Background())
		group.SetLimit(b.config.Workers)
		for _, tile := range frontier {
			group.Go(func() error {
				return b.splitFile(ctx, tile)
			})
		}

		err = group.Wait()
		if err != nil {
			return levels, err
		}

		b.logDiskUsage(levels)
		levels++
	}

	return levels, nil
}

func (b *builder) takeFrontier() []common.Tile {
	b.nextFrontierMutex.Lock()
	defer b.nextFrontierMutex.Unlock()

	frontier := b.nextFrontier
	b.nextFrontier = nil
	return frontier
}

// splitFile splits a tile which entities are stored in its entity files. These files are removed afterward.
func (b *builder) splitFile(ctx context.Context, tile common.Tile) error {
	if ctx.Err() != nil {
		// Another tile failed, the build is aborted anyway.
		return nil
	}

	source, ok, err := ownIo.OpenTileSource(b.basePath, tile)
	if err != nil {
		return err
	}
	if !ok {
		sigolo.Debugf("Tile %s has no entity files, nothing to split", tile)
		return nil
	}

	err = b.split(ctx, tile, source)
	closeErr := source.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}

	return ownIo.RemoveEntityFiles(b.basePath, tile)
}

// split distributes the entities of the tile into its subtiles and schedules the subtiles that need to be split
// further.
func (b *builder) split(ctx context.Context, tile common.Tile, source ownOsm.Source) error {
	cursor, err := ownOsm.NewCursor(source)
	if err != nil {
		return errors.Wrapf(err, "Unable to read first entity of tile %s", tile)
	}

	nodeResult, err := NewNodeProcessor(b.basePath, tile).Process(cursor)
	if err != nil {
		return err
	}
	wayResult, err := NewWayProcessor(b.basePath, tile, nodeResult.Index).Process(cursor)
	if err != nil {
		return err
	}
	relationResult, err := NewRelationProcessor(b.basePath, tile, nodeResult.Index, wayResult.Index).Process(cursor)
	if err != nil {
		return err
	}

	if entity, ok := cursor.Current(); ok {
		return errors.Wrapf(index.ErrUnsorted, "Entity %s of tile %s appears after the relations", entity, tile)
	}

	b.indexWriter.Save(nodeResult.Index, ownIo.IndexFilename(b.basePath, tile, ownOsm.KindNode))
	b.indexWriter.Save(wayResult.Index, ownIo.IndexFilename(b.basePath, tile, ownOsm.KindWay))
	b.indexWriter.Save(relationResult.Index, ownIo.IndexFilename(b.basePath, tile, ownOsm.KindRelation))
	b.splitTiles.Add(1)

	occupied := nodeResult.Occupied | wayResult.Occupied | relationResult.Occupied
	for subtile := range common.SubTilesForMask2(tile, occupied) {
		if subtile.Zoom >= b.config.MaxZoom {
			b.leafTiles.Add(1)
			continue
		}

		if b.isSmall(subtile) {
			sigolo.Tracef("Split small tile %s right away", subtile)
			err = b.splitFile(ctx, subtile)
			if err != nil {
				return err
			}
			continue
		}

		b.nextFrontierMutex.Lock()
		b.nextFrontier = append(b.nextFrontier, subtile)
		b.nextFrontierMutex.Unlock()
	}

	return nil
}

func (b *builder) isSmall(tile common.Tile) bool {
	if b.config.InlineSplitBytes <= 0 {
		return false
	}

	stat, err := os.Stat(ownIo.EntityFilename(b.basePath, tile, ownOsm.KindNode))
	if err != nil {
		// No node file (or no access to it), the regular split will handle this.
		return false
	}
	return stat.Size() < b.config.InlineSplitBytes
}

func (b *builder) logDiskUsage(level int) {
	usage, err := disk.Usage(b.basePath)
	if err != nil {
		sigolo.Debugf("Unable to determine disk usage of %s: %s", b.basePath, err.Error())
		return
	}
	sigolo.Debugf("Disk usage after level %d: %.1f%% used, %d MiB free", level, usage.UsedPercent, usage.Free/1024/1024)
}

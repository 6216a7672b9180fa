package importing

import (
	"github.com/pkg/errors"
	"tiledosm/common"
	ownIo "tiledosm/io"
	ownOsm "tiledosm/osm"
)

// tileWriters holds one entity file writer per subtile (zoom+2) of a tile. Files are only created when the first
// entity is written into them, so subtiles without any entity don't get a file.
type tileWriters struct {
	baseFolder string
	kind       ownOsm.Kind
	subtiles   [common.SubtileCount]common.Tile
	writers    [common.SubtileCount]*ownIo.EntityFileWriter
}

func newTileWriters(baseFolder string, tile common.Tile, kind ownOsm.Kind) *tileWriters {
	w := &tileWriters{
		baseFolder: baseFolder,
		kind:       kind,
	}
	for _, subtile := range common.GetSubtilesAt(tile, tile.Zoom+common.ZoomOffset) {
		w.subtiles[common.SubtileBit(subtile)] = subtile
	}
	return w
}

// write appends the encoded entity to the files of all subtiles in the mask.
func (w *tileWriters) write(mask common.Mask, record []byte) error {
	for bit := 0; bit < common.SubtileCount; bit++ {
		if !mask.Has(bit) {
			continue
		}

		writer := w.writers[bit]
		if writer == nil {
			var err error
			writer, err = ownIo.NewEntityFileWriter(ownIo.EntityFilename(w.baseFolder, w.subtiles[bit], w.kind))
			if err != nil {
				return err
			}
			w.writers[bit] = writer
		}

		err := writer.Write(record)
		if err != nil {
			return err
		}
	}
	return nil
}

// occupied returns the mask of all subtiles a file has been created for.
func (w *tileWriters) occupied() common.Mask {
	var mask common.Mask
	for bit, writer := range w.writers {
		if writer != nil {
			mask |= 1 << bit
		}
	}
	return mask
}

// close flushes and closes all writers. All writers are closed even if one of them fails.
func (w *tileWriters) close() error {
	var firstErr error
	for bit, writer := range w.writers {
		if writer == nil {
			continue
		}
		err := writer.Close()
		if err != nil && firstErr == nil {
			firstErr = errors.Wrapf(err, "Unable to close %s writer of subtile %s", w.kind, w.subtiles[bit])
		}
	}
	return firstErr
}

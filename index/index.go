package index

import (
	"bufio"
	"encoding/binary"
	"github.com/edsrzf/mmap-go"
	"github.com/hauke96/sigolo/v2"
	"github.com/pkg/errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"tiledosm/common"
)

var (
	ErrUnsorted     = errors.New("IDs must be added in strictly ascending order")
	ErrIdOutOfRange = errors.New("ID exceeds the 47 bit range of the index")
	ErrCorrupt      = errors.New("Corrupt index data")
)

const (
	MaxId = 1<<47 - 1

	maskShift = 48
	signBit   = uint64(1) << 47
	idBits    = uint64(MaxId)

	countSize = 8
	wordSize  = 8
)

/*
	Each entry is one 64 bit word:

	Bits:  | 63 ... 48 |  47  | 46 ... 0 |
	Data:  |   mask    | sign |   |id|   |

	The file (or buffer) format is the number of entries as 8 byte unsigned integer followed by all words. Everything is
	little endian.
*/

// Encode packs the ID and mask into one word. IDs outside of [-MaxId, MaxId] result in ErrIdOutOfRange.
func Encode(id int64, mask common.Mask) (uint64, error) {
	magnitude := uint64(id)
	sign := uint64(0)
	if id < 0 {
		magnitude = uint64(-id)
		sign = signBit
	}
	if id < -MaxId || magnitude > idBits {
		return 0, errors.Wrapf(ErrIdOutOfRange, "Unable to encode ID %d", id)
	}
	return uint64(mask)<<maskShift | sign | magnitude, nil
}

func Decode(word uint64) (int64, common.Mask) {
	id := int64(word & idBits)
	if word&signBit != 0 {
		id = -id
	}
	return id, common.Mask(word >> maskShift)
}

// Index maps the IDs of one entity kind within one tile to the mask of subtiles containing the entity. IDs are stored
// in strictly ascending order.
//
// An index is either an in-memory index, which allows adding entries, or a read-only view onto a byte buffer (e.g. a
// memory-mapped file).
type Index struct {
	words []uint64

	view       []byte // Only set for read-only views: the words without the leading count.
	mappedFile mmap.MMap

	dirty atomic.Bool
}

// New creates an empty in-memory index. It counts as dirty until it has been serialized, so that empty indices get
// written as well.
func New() *Index {
	return NewWithCapacity(0)
}

func NewWithCapacity(capacity int) *Index {
	index := &Index{words: make([]uint64, 0, capacity)}
	index.dirty.Store(true)
	return index
}

func (i *Index) Count() int {
	if i.view != nil {
		return len(i.view) / wordSize
	}
	return len(i.words)
}

func (i *Index) word(position int) uint64 {
	if i.view != nil {
		return binary.LittleEndian.Uint64(i.view[position*wordSize:])
	}
	return i.words[position]
}

func (i *Index) idAt(position int) int64 {
	id, _ := Decode(i.word(position))
	return id
}

func (i *Index) isView() bool {
	return i.view != nil || i.mappedFile != nil
}

// Add appends the entry. The ID must be greater than every ID added before.
func (i *Index) Add(id int64, mask common.Mask) error {
	if i.isView() {
		return errors.Errorf("Unable to add ID %d to read-only index", id)
	}

	if len(i.words) > 0 {
		lastId := i.idAt(len(i.words) - 1)
		if id <= lastId {
			return errors.Wrapf(ErrUnsorted, "ID %d added after ID %d", id, lastId)
		}
	}

	word, err := Encode(id, mask)
	if err != nil {
		return err
	}

	i.words = append(i.words, word)
	i.dirty.Store(true)
	return nil
}

// TryGetMask returns the mask of the given ID. The boolean is false when the ID is not part of this index.
func (i *Index) TryGetMask(id int64) (common.Mask, bool) {
	count := i.Count()
	if count == 0 {
		return 0, false
	}

	firstId, firstMask := Decode(i.word(0))
	if id < firstId {
		return 0, false
	} else if id == firstId {
		return firstMask, true
	}

	lastId, lastMask := Decode(i.word(count - 1))
	if id > lastId {
		return 0, false
	} else if id == lastId {
		return lastMask, true
	}

	position := sort.Search(count, func(p int) bool {
		return i.idAt(p) >= id
	})
	foundId, mask := Decode(i.word(position))
	if foundId != id {
		return 0, false
	}
	return mask, true
}

// Trim shrinks the backing storage to the number of entries. This is a no-op for read-only views.
func (i *Index) Trim() {
	if i.isView() || cap(i.words) == len(i.words) {
		return
	}
	words := make([]uint64, len(i.words))
	copy(words, i.words)
	i.words = words
	i.dirty.Store(true)
}

// IsDirty returns true for new indices and when entries were added (or the index was trimmed) since the last
// successful serialization. Loaded indices are not dirty.
func (i *Index) IsDirty() bool {
	return i.dirty.Load()
}

func (i *Index) Serialize(w io.Writer) error {
	buffer := make([]byte, wordSize)

	binary.LittleEndian.PutUint64(buffer, uint64(i.Count()))
	_, err := w.Write(buffer)
	if err != nil {
		return errors.Wrap(err, "Unable to write index entry count")
	}

	if i.view != nil {
		_, err = w.Write(i.view)
		if err != nil {
			return errors.Wrap(err, "Unable to write index entries")
		}
	} else {
		for _, word := range i.words {
			binary.LittleEndian.PutUint64(buffer, word)
			_, err = w.Write(buffer)
			if err != nil {
				return errors.Wrap(err, "Unable to write index entries")
			}
		}
	}

	i.dirty.Store(false)
	return nil
}

// Deserialize reads an index written by Serialize. Truncated data results in ErrCorrupt.
func Deserialize(r io.Reader) (*Index, error) {
	buffer := make([]byte, wordSize)

	_, err := io.ReadFull(r, buffer)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return nil, errors.Wrap(ErrCorrupt, "Index data too short for the entry count")
	} else if err != nil {
		return nil, errors.Wrap(err, "Unable to read index entry count")
	}

	count := binary.LittleEndian.Uint64(buffer)
	if count > MaxId {
		return nil, errors.Wrapf(ErrCorrupt, "Implausible number of index entries %d", count)
	}

	// The count is not trusted for the allocation, the slice grows while reading.
	index := NewWithCapacity(int(min(count, 1<<16)))
	for j := uint64(0); j < count; j++ {
		_, err = io.ReadFull(r, buffer)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(ErrCorrupt, "Index data ends after %d of %d entries", j, count)
		} else if err != nil {
			return nil, errors.Wrap(err, "Unable to read index entries")
		}
		index.words = append(index.words, binary.LittleEndian.Uint64(buffer))
	}

	index.dirty.Store(false)
	return index, nil
}

// DeserializeBytes creates a read-only view onto the serialized index at the beginning of the data. Data after the
// last entry is ignored. The data must not be modified while the index is in use.
func DeserializeBytes(data []byte) (*Index, error) {
	if len(data) < countSize {
		return nil, errors.Wrapf(ErrCorrupt, "Index data of %d bytes too short for the entry count", len(data))
	}

	count := binary.LittleEndian.Uint64(data)
	available := uint64(len(data)-countSize) / wordSize
	if count > available {
		return nil, errors.Wrapf(ErrCorrupt, "Index data contains %d entries but should contain %d", available, count)
	}

	end := countSize + int(count)*wordSize
	return &Index{view: data[countSize:end:end]}, nil
}

// OpenMapped maps the index file into memory. The returned index is read-only and must be closed.
func OpenMapped(filename string) (*Index, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open index file %s", filename)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to get size of index file %s", filename)
	}
	if stat.Size() < countSize {
		return nil, errors.Wrapf(ErrCorrupt, "Index file %s too short", filename)
	}

	mapped, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to map index file %s", filename)
	}

	index, err := DeserializeBytes(mapped)
	if err != nil {
		_ = mapped.Unmap()
		return nil, errors.Wrapf(err, "Unable to read mapped index file %s", filename)
	}
	index.mappedFile = mapped

	sigolo.Tracef("Mapped index file %s with %d entries", filename, index.Count())
	return index, nil
}

// Close releases the memory mapping of mapped indices. It does nothing for other indices.
func (i *Index) Close() error {
	if i.mappedFile == nil {
		return nil
	}
	err := i.mappedFile.Unmap()
	i.mappedFile = nil
	i.view = nil
	return errors.Wrap(err, "Unable to unmap index")
}

// Load reads the index file into memory.
func Load(filename string) (*Index, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to open index file %s", filename)
	}
	defer file.Close()

	index, err := Deserialize(bufio.NewReader(file))
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read index file %s", filename)
	}
	return index, nil
}

// Save writes the index into a temporary file which then replaces the given file. Readers therefore never see a
// partially written index.
func (i *Index) Save(filename string) error {
	err := os.MkdirAll(filepath.Dir(filename), os.ModePerm)
	if err != nil {
		return errors.Wrapf(err, "Unable to create folder for index file %s", filename)
	}

	tmpFilename := filename + ".tmp"
	file, err := os.Create(tmpFilename)
	if err != nil {
		return errors.Wrapf(err, "Unable to create index file %s", tmpFilename)
	}

	writer := bufio.NewWriter(file)
	err = i.Serialize(writer)
	if err == nil {
		err = writer.Flush()
	}
	if err != nil {
		_ = file.Close()
		_ = os.Remove(tmpFilename)
		return errors.Wrapf(err, "Unable to write index file %s", tmpFilename)
	}

	err = file.Close()
	if err != nil {
		return errors.Wrapf(err, "Unable to close index file %s", tmpFilename)
	}

	err = os.Rename(tmpFilename, filename)
	if err != nil {
		return errors.Wrapf(err, "Unable to move index file %s to %s", tmpFilename, filename)
	}

	sigolo.Tracef("Wrote index file %s with %d entries", filename, i.Count())
	return nil
}

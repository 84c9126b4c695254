package bmff

import "math"

const uint32Max = math.MaxUint32

// tableCursor walks a run of fixed-stride big-endian records following a
// box's 4-byte entry_count field — the layout stsz, stco, co64, stts, ctts,
// stsc, stss and elst all share. Each concrete iterator below wraps one
// instead of re-deriving the same count/offset/bounds arithmetic per box.
type tableCursor struct {
	buf    []byte
	count  uint32
	index  uint32
	stride int
	start  int // byte offset within buf where row 0 begins
}

// newTableCursor reads the entry_count from the first 4 bytes of data and
// prepares to walk stride-byte rows starting at start.
func newTableCursor(data []byte, start, stride int) tableCursor {
	if len(data) < 4 {
		return tableCursor{}
	}
	return tableCursor{buf: data, count: be.Uint32(data[0:4]), start: start, stride: stride}
}

// row returns the next fixed-size record, or nil once the declared count is
// exhausted or the data is truncated short of it.
func (c *tableCursor) row() []byte {
	if c.index >= c.count {
		return nil
	}
	offset := c.start + int(c.index)*c.stride
	if offset+c.stride > len(c.buf) {
		return nil
	}
	c.index++
	return c.buf[offset : offset+c.stride]
}

// StszIter iterates over sample sizes in an stsz box.
type StszIter struct {
	cursor     tableCursor
	sampleSize uint32
}

// NewStszIter creates an iterator from stsz box data.
func NewStszIter(data []byte) StszIter {
	if len(data) < 8 {
		return StszIter{}
	}
	return StszIter{
		cursor:     newTableCursor(data[4:], 4, 4),
		sampleSize: be.Uint32(data[0:4]),
	}
}

// Count returns the total number of samples.
func (it *StszIter) Count() uint32 { return it.cursor.count }

// Next returns the next sample size. Returns (0, false) when done.
func (it *StszIter) Next() (uint32, bool) {
	if it.sampleSize != 0 {
		if it.cursor.index >= it.cursor.count {
			return 0, false
		}
		it.cursor.index++
		return it.sampleSize, true
	}
	row := it.cursor.row()
	if row == nil {
		return 0, false
	}
	return be.Uint32(row), true
}

// Co64Iter iterates over uint64 chunk offsets in a co64 box.
type Co64Iter struct {
	cursor tableCursor
}

// NewCo64Iter creates an iterator from co64 box data.
func NewCo64Iter(data []byte) Co64Iter {
	return Co64Iter{cursor: newTableCursor(data, 4, 8)}
}

// Count returns the total number of entries.
func (it *Co64Iter) Count() uint32 { return it.cursor.count }

// Next returns the next chunk offset. Returns (0, false) when done.
func (it *Co64Iter) Next() (uint64, bool) {
	row := it.cursor.row()
	if row == nil {
		return 0, false
	}
	return be.Uint64(row), true
}

// SttsEntry is a time-to-sample entry.
type SttsEntry struct {
	Count    uint32
	Duration uint32
}

// SttsIter iterates over stts entries.
type SttsIter struct {
	cursor tableCursor
}

// NewSttsIter creates an iterator from stts box data.
func NewSttsIter(data []byte) SttsIter {
	return SttsIter{cursor: newTableCursor(data, 4, 8)}
}

// Count returns the total number of entries.
func (it *SttsIter) Count() uint32 { return it.cursor.count }

// Next returns the next entry. Returns false when done.
func (it *SttsIter) Next() (SttsEntry, bool) {
	row := it.cursor.row()
	if row == nil {
		return SttsEntry{}, false
	}
	return SttsEntry{Count: be.Uint32(row[0:4]), Duration: be.Uint32(row[4:8])}, true
}

// CttsEntry is a composition offset entry.
type CttsEntry struct {
	Count  uint32
	Offset int32 // Signed offset (version 1), or unsigned treated as signed (version 0)
}

// CttsIter iterates over ctts entries. The box's version does not change
// the wire layout (both versions store a 4-byte count and a 4-byte offset
// field), only whether the offset is meant to be read as signed; this
// iterator always sign-extends it, matching how readers in practice treat
// version 0 offsets as small non-negative numbers anyway.
type CttsIter struct {
	cursor  tableCursor
	version uint8
}

// NewCttsIter creates an iterator from ctts box data.
// version should be 0 or 1 from the ctts box version field.
func NewCttsIter(data []byte, version uint8) CttsIter {
	return CttsIter{cursor: newTableCursor(data, 4, 8), version: version}
}

// Count returns the total number of entries.
func (it *CttsIter) Count() uint32 { return it.cursor.count }

// Next returns the next entry. Returns false when done.
func (it *CttsIter) Next() (CttsEntry, bool) {
	row := it.cursor.row()
	if row == nil {
		return CttsEntry{}, false
	}
	return CttsEntry{
		Count:  be.Uint32(row[0:4]),
		Offset: int32(be.Uint32(row[4:8])),
	}, true
}

// StscEntry is a sample-to-chunk entry.
type StscEntry struct {
	FirstChunk          uint32
	SamplesPerChunk     uint32
	SampleDescriptionId uint32
}

// StscIter iterates over stsc entries.
type StscIter struct {
	cursor tableCursor
}

// NewStscIter creates an iterator from stsc box data.
func NewStscIter(data []byte) StscIter {
	return StscIter{cursor: newTableCursor(data, 4, 12)}
}

// Count returns the total number of entries.
func (it *StscIter) Count() uint32 { return it.cursor.count }

// Next returns the next entry. Returns false when done.
func (it *StscIter) Next() (StscEntry, bool) {
	row := it.cursor.row()
	if row == nil {
		return StscEntry{}, false
	}
	return StscEntry{
		FirstChunk:          be.Uint32(row[0:4]),
		SamplesPerChunk:     be.Uint32(row[4:8]),
		SampleDescriptionId: be.Uint32(row[8:12]),
	}, true
}

// ElstEntry is an edit list entry.
type ElstEntry struct {
	SegmentDuration uint64
	MediaTime       int64
	MediaRateInt    int16
	MediaRateFrac   int16
}

// ElstIter iterates over elst entries. Version 1 doubles the width of the
// duration and media-time fields (32->64 bit), so the row stride itself
// depends on version rather than just the decode step.
type ElstIter struct {
	cursor  tableCursor
	version uint8
}

// NewElstIter creates an iterator from elst box data with the given version.
func NewElstIter(data []byte, version uint8) ElstIter {
	stride := 12
	if version == 1 {
		stride = 20
	}
	return ElstIter{cursor: newTableCursor(data, 4, stride), version: version}
}

// Count returns the total number of entries.
func (it *ElstIter) Count() uint32 { return it.cursor.count }

// Next returns the next entry. Returns false when done.
func (it *ElstIter) Next() (ElstEntry, bool) {
	row := it.cursor.row()
	if row == nil {
		return ElstEntry{}, false
	}
	if it.version == 1 {
		return ElstEntry{
			SegmentDuration: be.Uint64(row[0:8]),
			MediaTime:       int64(be.Uint64(row[8:16])),
			MediaRateInt:    int16(be.Uint16(row[16:18])),
			MediaRateFrac:   int16(be.Uint16(row[18:20])),
		}, true
	}
	return ElstEntry{
		SegmentDuration: uint64(be.Uint32(row[0:4])),
		MediaTime:       int64(int32(be.Uint32(row[4:8]))),
		MediaRateInt:    int16(be.Uint16(row[8:10])),
		MediaRateFrac:   int16(be.Uint16(row[10:12])),
	}, true
}

// Uint32Iter iterates over uint32 entries (stco, stss).
type Uint32Iter struct {
	cursor tableCursor
}

// NewUint32Iter creates an iterator from box data containing a count + uint32 entries.
func NewUint32Iter(data []byte) Uint32Iter {
	return Uint32Iter{cursor: newTableCursor(data, 4, 4)}
}

// Count returns the total number of entries.
func (it *Uint32Iter) Count() uint32 { return it.cursor.count }

// Next returns the next entry. Returns (0, false) when done.
func (it *Uint32Iter) Next() (uint32, bool) {
	row := it.cursor.row()
	if row == nil {
		return 0, false
	}
	return be.Uint32(row), true
}

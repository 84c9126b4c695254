package bmff

// TfhdFlags are the box flags of a tfhd (Track Fragment Header) box. Each of
// the five low "Present" bits means one more override field is present in
// the box data, in the order the constants are declared; DurationIsEmpty
// and DefaultBaseIsMoof add no field. See ISO/IEC 14496-12 §8.8.7.
type TfhdFlags uint32

const (
	TfhdBaseDataOffsetPresent         TfhdFlags = 0x000001
	TfhdSampleDescriptionIndexPresent TfhdFlags = 0x000002
	TfhdDefaultSampleDurationPresent  TfhdFlags = 0x000008
	TfhdDefaultSampleSizePresent      TfhdFlags = 0x000010
	TfhdDefaultSampleFlagsPresent     TfhdFlags = 0x000020
	TfhdDurationIsEmpty               TfhdFlags = 0x010000
	TfhdDefaultBaseIsMoof             TfhdFlags = 0x020000
)

// Has reports whether every bit in want is set in f.
func (f TfhdFlags) Has(want TfhdFlags) bool { return f&want == want }

// TrunFlags are the box flags of a trun (Track Run) box. The sample
// duration, size, flags and composition-offset bits each add one field to
// every per-sample row; the data-offset and first-sample-flags bits each add
// one field to the box header instead. See ISO/IEC 14496-12 §8.8.8.
type TrunFlags uint32

const (
	TrunDataOffsetPresent                  TrunFlags = 0x000001
	TrunFirstSampleFlagsPresent            TrunFlags = 0x000004
	TrunSampleDurationPresent              TrunFlags = 0x000100
	TrunSampleSizePresent                  TrunFlags = 0x000200
	TrunSampleFlagsPresent                 TrunFlags = 0x000400
	TrunSampleCompositionTimeOffsetPresent TrunFlags = 0x000800
)

// Has reports whether every bit in want is set in f.
func (f TrunFlags) Has(want TrunFlags) bool { return f&want == want }

// rowStride returns the per-sample row width in bytes that this flag
// combination implies: 4 bytes for each of duration/size/flags/composition
// offset that is present.
func (f TrunFlags) rowStride() int {
	n := 0
	for _, bit := range [...]TrunFlags{
		TrunSampleDurationPresent,
		TrunSampleSizePresent,
		TrunSampleFlagsPresent,
		TrunSampleCompositionTimeOffsetPresent,
	} {
		if f.Has(bit) {
			n += 4
		}
	}
	return n
}

// TrunEntry is one sample row in a trun box. Which fields hold meaningful
// data depends on which TrunFlags bits NewTrunIter was given.
type TrunEntry struct {
	Duration              uint32
	Size                  uint32
	Flags                 uint32
	CompositionTimeOffset int32
}

// TrunIter iterates over a trun box's per-sample rows.
type TrunIter struct {
	cursor           tableCursor
	flags            TrunFlags
	dataOffset       int32
	firstSampleFlags uint32
}

// NewTrunIter creates an iterator from trun box data with the given flags
// (the box's own flags field, as returned by Reader.Flags).
func NewTrunIter(data []byte, flags uint32) TrunIter {
	if len(data) < 4 {
		return TrunIter{}
	}
	tf := TrunFlags(flags)
	ptr := 4
	var it TrunIter
	it.flags = tf
	if tf.Has(TrunDataOffsetPresent) {
		if ptr+4 > len(data) {
			return TrunIter{}
		}
		it.dataOffset = int32(be.Uint32(data[ptr:]))
		ptr += 4
	}
	if tf.Has(TrunFirstSampleFlagsPresent) {
		if ptr+4 > len(data) {
			return TrunIter{}
		}
		it.firstSampleFlags = be.Uint32(data[ptr:])
		ptr += 4
	}
	it.cursor = newTableCursor(data, ptr, tf.rowStride())
	return it
}

// Count returns the total number of samples.
func (it *TrunIter) Count() uint32 { return it.cursor.count }

// DataOffset returns the trun data offset.
func (it *TrunIter) DataOffset() int32 { return it.dataOffset }

// FirstSampleFlags returns the first sample flags, if present.
func (it *TrunIter) FirstSampleFlags() uint32 { return it.firstSampleFlags }

// Next returns the next sample entry. Returns false when done.
func (it *TrunIter) Next() (TrunEntry, bool) {
	row := it.cursor.row()
	if row == nil {
		return TrunEntry{}, false
	}
	var e TrunEntry
	p := 0
	if it.flags.Has(TrunSampleDurationPresent) {
		e.Duration = be.Uint32(row[p:])
		p += 4
	}
	if it.flags.Has(TrunSampleSizePresent) {
		e.Size = be.Uint32(row[p:])
		p += 4
	}
	if it.flags.Has(TrunSampleFlagsPresent) {
		e.Flags = be.Uint32(row[p:])
		p += 4
	}
	if it.flags.Has(TrunSampleCompositionTimeOffsetPresent) {
		e.CompositionTimeOffset = int32(be.Uint32(row[p:]))
	}
	return e, true
}

package bmff

import "sync"

// TrackType identifies the media handled by a track, driving hdlr's
// handler-type four-cc and the default handler name string.
type TrackType uint8

const (
	TrackVideo TrackType = iota
	TrackAudio
	TrackSubtitle
)

func (t TrackType) handlerType() BoxType {
	switch t {
	case TrackAudio:
		return BoxType{'s', 'o', 'u', 'n'}
	case TrackSubtitle:
		return BoxType{'s', 'b', 't', 'l'}
	default:
		return BoxType{'v', 'i', 'd', 'e'}
	}
}

func (t TrackType) handlerName() string {
	switch t {
	case TrackAudio:
		return "SoundHandler"
	case TrackSubtitle:
		return "SubtitleHandler"
	default:
		return "VideoHandler"
	}
}

// Sample is one decoded sample's timing and location, as produced by a
// Track's sample-table lookups.
type Sample struct {
	Offset             uint64
	Size               uint32
	DecodeTime         uint64
	PresentationOffset int64
	Sync               bool
	DescriptionIndex   uint32
}

// stblTables holds the raw per-track sample-table box payloads needed to
// answer §4.3 queries. Each table is decoded into a flat slice on first use
// and cached; the boxes themselves are immutable once a file has been
// opened for reading, so the cache never needs invalidating.
type stblTables struct {
	sttsData []byte
	cttsData []byte
	cttsVer  uint8
	stszData []byte
	stscData []byte
	stssData []byte
	stcoData []byte
	co64Data []byte
}

// Track is a read-side view of one trak box's sample table, offering the
// sample_count/sample_offset/sample_size/... operations over a shared,
// lazily built prefix-sum cache.
type Track struct {
	TrackID   uint32
	Type      TrackType
	Timescale uint32
	Duration  uint64
	Language  string
	Entries   []SampleEntry

	tables stblTables

	once          sync.Once
	sampleCount   uint32
	chunkOffsets  []uint64            // one per chunk
	chunkFirstIdx []uint32            // sample index of each chunk's first sample
	sampleSizes   []uint32            // per sample, expanded from stsz
	decodeTimes   []uint64            // cumulative decode time per sample (start time)
	compOffsets   []int64             // per-sample composition offset, defaulted to 0
	syncSamples   map[uint32]struct{} // nil => every sample is sync (no stss)
	descIndex     []uint32            // per sample description index, from stsc runs
	buildErr      error
}

// build materializes the prefix-sum caches from the raw table payloads.
// It runs at most once per Track via sync.Once.
func (t *Track) build() {
	t.once.Do(func() {
		stts := NewSttsIter(t.tables.sttsData)
		var times []uint64
		var cum uint64
		for {
			e, ok := stts.Next()
			if !ok {
				break
			}
			for i := uint32(0); i < e.Count; i++ {
				times = append(times, cum)
				cum += uint64(e.Duration)
			}
		}
		t.decodeTimes = times
		t.sampleCount = uint32(len(times))

		szIter := NewStszIter(t.tables.stszData)
		sizes := make([]uint32, 0, szIter.Count())
		for {
			sz, ok := szIter.Next()
			if !ok {
				break
			}
			sizes = append(sizes, sz)
		}
		t.sampleSizes = sizes

		if len(t.tables.cttsData) > 0 {
			ctts := NewCttsIter(t.tables.cttsData, t.tables.cttsVer)
			offs := make([]int64, 0, t.sampleCount)
			for {
				e, ok := ctts.Next()
				if !ok {
					break
				}
				for i := uint32(0); i < e.Count; i++ {
					offs = append(offs, int64(e.Offset))
				}
			}
			t.compOffsets = offs
		}

		if len(t.tables.stssData) > 0 {
			sync := NewUint32Iter(t.tables.stssData)
			m := make(map[uint32]struct{}, sync.Count())
			for {
				v, ok := sync.Next()
				if !ok {
					break
				}
				m[v-1] = struct{}{} // stss is 1-based
			}
			t.syncSamples = m
		}

		t.buildChunkTables()
	})
}

func (t *Track) buildChunkTables() {
	var offsets []uint64
	if len(t.tables.co64Data) > 0 {
		it := NewCo64Iter(t.tables.co64Data)
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			offsets = append(offsets, v)
		}
	} else {
		it := NewUint32Iter(t.tables.stcoData)
		for {
			v, ok := it.Next()
			if !ok {
				break
			}
			offsets = append(offsets, uint64(v))
		}
	}
	t.chunkOffsets = offsets

	stsc := NewStscIter(t.tables.stscData)
	var runs []StscEntry
	for {
		e, ok := stsc.Next()
		if !ok {
			break
		}
		runs = append(runs, e)
	}

	descIndex := make([]uint32, 0, t.sampleCount)
	firstIdx := make([]uint32, len(offsets))
	sampleIdx := uint32(0)
	for ri, run := range runs {
		var nextChunk uint32
		if ri+1 < len(runs) {
			nextChunk = runs[ri+1].FirstChunk - 1
		} else {
			nextChunk = uint32(len(offsets))
		}
		for chunk := run.FirstChunk - 1; chunk < nextChunk; chunk++ {
			if int(chunk) >= len(firstIdx) {
				break
			}
			firstIdx[chunk] = sampleIdx
			for s := uint32(0); s < run.SamplesPerChunk; s++ {
				descIndex = append(descIndex, run.SampleDescriptionId)
				sampleIdx++
			}
		}
	}
	t.chunkFirstIdx = firstIdx
	t.descIndex = descIndex
}

// SampleCount returns the number of samples in this track.
func (t *Track) SampleCount() uint32 {
	t.build()
	return t.sampleCount
}

// SampleOffset returns the file-absolute byte offset of the nth sample
// (0-based). It combines the sample's chunk (via stsc) with that chunk's
// base offset (via stco/co64) and the cumulative size of prior samples in
// the same chunk.
func (t *Track) SampleOffset(n uint32) (uint64, error) {
	t.build()
	if n >= t.sampleCount {
		return 0, &EntryInStblNotFound{TrackID: t.TrackID, Type: TypeStsz, Index: int(n)}
	}
	chunk := t.chunkForSample(n)
	if chunk < 0 || chunk >= len(t.chunkOffsets) {
		return 0, &EntryInStblNotFound{TrackID: t.TrackID, Type: TypeStco, Index: chunk}
	}
	offset := t.chunkOffsets[chunk]
	for i := t.chunkFirstIdx[chunk]; i < n; i++ {
		offset += uint64(t.sampleSizes[i])
	}
	return offset, nil
}

// chunkForSample returns the index of the chunk containing sample n,
// assuming chunkFirstIdx is sorted ascending (built in chunk order).
func (t *Track) chunkForSample(n uint32) int {
	lo, hi := 0, len(t.chunkFirstIdx)-1
	best := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		if t.chunkFirstIdx[mid] <= n {
			best = mid
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}
	return best
}

// SampleSize returns the size in bytes of the nth sample.
func (t *Track) SampleSize(n uint32) (uint32, error) {
	t.build()
	if n >= uint32(len(t.sampleSizes)) {
		return 0, &EntryInStblNotFound{TrackID: t.TrackID, Type: TypeStsz, Index: int(n)}
	}
	return t.sampleSizes[n], nil
}

// SampleTime returns the nth sample's decode time, in this track's
// timescale units.
func (t *Track) SampleTime(n uint32) (uint64, error) {
	t.build()
	if n >= uint32(len(t.decodeTimes)) {
		return 0, &EntryInStblNotFound{TrackID: t.TrackID, Type: TypeStts, Index: int(n)}
	}
	return t.decodeTimes[n], nil
}

// RenderingOffset returns the nth sample's composition time offset
// (presentation time minus decode time), or 0 if the track has no ctts.
func (t *Track) RenderingOffset(n uint32) (int64, error) {
	t.build()
	if n >= t.sampleCount {
		return 0, &EntryInStblNotFound{TrackID: t.TrackID, Type: TypeCtts, Index: int(n)}
	}
	if t.compOffsets == nil {
		return 0, nil
	}
	if n >= uint32(len(t.compOffsets)) {
		return 0, &EntryInStblNotFound{TrackID: t.TrackID, Type: TypeCtts, Index: int(n)}
	}
	return t.compOffsets[n], nil
}

// IsSync reports whether the nth sample is a sync (random-access) sample.
// A track with no stss box has every sample sync, per §4.3.
func (t *Track) IsSync(n uint32) bool {
	t.build()
	if t.syncSamples == nil {
		return true
	}
	_, ok := t.syncSamples[n]
	return ok
}

// DescriptionIndex returns the 1-based stsd entry index describing the nth
// sample, as assigned by the stsc run covering its chunk.
func (t *Track) DescriptionIndex(n uint32) (uint32, error) {
	t.build()
	if n >= uint32(len(t.descIndex)) {
		return 0, &EntryInStblNotFound{TrackID: t.TrackID, Type: TypeStsc, Index: int(n)}
	}
	return t.descIndex[n], nil
}

package bmff

import "io"

// WriteSample is the payload and timing metadata for one sample appended
// via FileWriter.WriteSample.
type WriteSample struct {
	Data             []byte
	Duration         uint32 // in the track's own timescale
	RenderingOffset  int32  // composition time offset, in the track's own timescale
	Sync             bool
	DescriptionIndex uint32 // 1-based; 0 means "the single entry AddTrack installed"
}

// trackWriter accumulates one track's samples and sample-table run lists as
// WriteSample calls stream in, per §4.4: it never interleaves with other
// tracks' bytes and never backtracks to revise an already-written chunk.
// See §9: no interleaving is performed between tracks; callers wanting
// interleaved output must call WriteSample across tracks themselves.
type trackWriter struct {
	trackID   uint32
	trackType TrackType
	timescale uint32
	language  string
	entries   []SampleEntry

	chunkOffsets []uint64
	stsc         []StscEntry
	stsz         []uint32
	stts         []SttsEntry
	ctts         []CttsEntry
	hasCtts      bool
	stss         []uint32
	hasStss      bool

	sampleCount       uint32
	curChunkCount     uint32
	curChunkDescIndex uint32
	chunkOpen         bool

	duration uint64 // in this track's own timescale

	editOffsetUs   uint64
	editDurationUs uint64
	hasEditList    bool
}

func newTrackWriter(trackID uint32, cfg TrackConfig) (*trackWriter, error) {
	tw := &trackWriter{
		trackID:   trackID,
		timescale: cfg.Timescale,
		language:  cfg.Language,
	}
	switch {
	case cfg.Media.Avc != nil:
		tw.trackType = TrackVideo
		tw.entries = []SampleEntry{avcSampleEntryFromOptions(cfg.Media.Avc)}
	case cfg.Media.Hevc != nil:
		tw.trackType = TrackVideo
		tw.entries = []SampleEntry{hevcSampleEntryFromOptions(cfg.Media.Hevc)}
	case cfg.Media.Vp9 != nil:
		tw.trackType = TrackVideo
		tw.entries = []SampleEntry{vp9SampleEntryFromOptions(cfg.Media.Vp9)}
	case cfg.Media.Aac != nil:
		tw.trackType = TrackAudio
		tw.entries = []SampleEntry{aacSampleEntryFromOptions(cfg.Media.Aac)}
	case cfg.Media.Opus != nil:
		tw.trackType = TrackAudio
		tw.entries = []SampleEntry{opusSampleEntryFromOptions(cfg.Media.Opus)}
	default:
		return nil, &InvalidData{Detail: "track config carries no media options"}
	}
	return tw, nil
}

// writeSample writes sample.Data at the writer's current stream position
// and folds its timing into the run-length tables, returning the track's
// new total duration in its own timescale.
//
// TODO interleaving: FileWriter.WriteSample writes straight through to the
// stream, so a caller alternating between tracks gets one contiguous chunk
// per call rather than the time-interleaved layout streaming clients want.
func (tw *trackWriter) writeSample(w io.Writer, sample WriteSample) (uint64, error) {
	descIdx := sample.DescriptionIndex
	if descIdx == 0 {
		descIdx = 1
	}

	offset, err := streamOffset(w)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(sample.Data); err != nil {
		return 0, &IoError{Cause: err}
	}

	// The open chunk continues only if this track's previous sample ends
	// exactly where this one starts (no other track wrote in between).
	contiguous := false
	if tw.chunkOpen {
		end := tw.chunkOffsets[len(tw.chunkOffsets)-1]
		for _, s := range tw.stsz[len(tw.stsz)-int(tw.curChunkCount):] {
			end += uint64(s)
		}
		contiguous = end == offset
	}
	if !contiguous || descIdx != tw.curChunkDescIndex {
		tw.closeChunk()
		tw.chunkOffsets = append(tw.chunkOffsets, offset)
		tw.curChunkDescIndex = descIdx
		tw.curChunkCount = 0
		tw.chunkOpen = true
	}
	tw.curChunkCount++

	tw.stsz = append(tw.stsz, uint32(len(sample.Data)))

	if n := len(tw.stts); n > 0 && tw.stts[n-1].Duration == sample.Duration {
		tw.stts[n-1].Count++
	} else {
		tw.stts = append(tw.stts, SttsEntry{Count: 1, Duration: sample.Duration})
	}

	if sample.RenderingOffset != 0 {
		tw.hasCtts = true
	}
	if n := len(tw.ctts); n > 0 && tw.ctts[n-1].Offset == sample.RenderingOffset {
		tw.ctts[n-1].Count++
	} else {
		tw.ctts = append(tw.ctts, CttsEntry{Count: 1, Offset: sample.RenderingOffset})
	}

	if sample.Sync {
		tw.stss = append(tw.stss, tw.sampleCount+1)
	} else {
		tw.hasStss = true
	}

	tw.sampleCount++
	tw.duration += uint64(sample.Duration)
	return tw.duration, nil
}

// closeChunk emits an stsc run for the chunk that was open, merging it into
// the previous run when both samples-per-chunk and description index match.
func (tw *trackWriter) closeChunk() {
	if !tw.chunkOpen {
		return
	}
	chunkIndex := uint32(len(tw.chunkOffsets))
	if n := len(tw.stsc); n > 0 &&
		tw.stsc[n-1].SamplesPerChunk == tw.curChunkCount &&
		tw.stsc[n-1].SampleDescriptionId == tw.curChunkDescIndex {
		return // this run already covers the new chunk implicitly; nothing to add
	}
	tw.stsc = append(tw.stsc, StscEntry{
		FirstChunk:          chunkIndex, // 1-based; chunkIndex is len(chunkOffsets) BEFORE appending the new one, so this is correct for the chunk about to close
		SamplesPerChunk:     tw.curChunkCount,
		SampleDescriptionId: tw.curChunkDescIndex,
	})
}

// updateEditList records an elst request; the actual box is only built
// during writeEnd, once the movie's overall duration is known for clamping.
func (tw *trackWriter) updateEditList(offsetUs, durationUs uint64) {
	tw.hasEditList = true
	tw.editOffsetUs = offsetUs
	tw.editDurationUs = durationUs
}

// writeEnd closes the last open chunk and renders this track's trak box.
func (tw *trackWriter) writeEnd(w *Writer, movieTimescale uint32, movieDuration uint64) {
	tw.closeChunkFinal()

	flags := uint32(0x000007) // track_enabled | track_in_movie | track_in_preview
	trackDurationInMovieTimescale := convertTimescale(tw.duration, tw.timescale, movieTimescale)
	width, height := tw.dims()

	w.Grow(tw.estimateSize())
	w.StartBox(TypeTrak)
	w.WriteTkhd(flags, tw.trackID, trackDurationInMovieTimescale, width, height)

	if tw.hasEditList {
		segDur := convertTimescale(tw.editDurationUs, 1_000_000, movieTimescale)
		if movieDuration < segDur {
			segDur = movieDuration
		}
		mediaTime := int64(convertTimescale(tw.editOffsetUs, 1_000_000, tw.timescale))
		w.StartBox(TypeEdts)
		w.WriteElst([]ElstEntry{{
			SegmentDuration: segDur,
			MediaTime:       mediaTime,
			MediaRateInt:    1,
			MediaRateFrac:   0,
		}})
		w.EndBox()
	}

	w.StartBox(TypeMdia)
	w.WriteMdhd(tw.timescale, tw.duration, PackLanguage(languageOrDefault(tw.language)))
	w.WriteHdlr(tw.trackType.handlerType(), tw.trackType.handlerName())

	w.StartBox(TypeMinf)
	switch tw.trackType {
	case TrackAudio:
		w.WriteSmhd()
	default:
		w.WriteVmhd()
	}
	w.StartBox(TypeDinf)
	w.WriteDref()
	w.EndBox()

	w.StartBox(TypeStbl)
	WriteStsd(w, tw.entries)
	w.WriteStts(tw.stts)
	if tw.hasCtts {
		w.WriteCtts(tw.ctts)
	}
	if tw.hasStss {
		w.WriteStss(tw.stss)
	}
	w.WriteStsc(tw.stsc)
	sampleSize, fixed := uniformSampleSize(tw.stsz)
	if fixed {
		w.WriteStsz(sampleSize, uint32(len(tw.stsz)), nil)
	} else {
		w.WriteStsz(0, uint32(len(tw.stsz)), tw.stsz)
	}
	if needsCo64(tw.chunkOffsets) {
		w.WriteCo64(tw.chunkOffsets)
	} else {
		offsets32 := make([]uint32, len(tw.chunkOffsets))
		for i, o := range tw.chunkOffsets {
			offsets32[i] = uint32(o)
		}
		w.WriteStco(offsets32)
	}
	w.EndBox() // stbl
	w.EndBox() // minf
	w.EndBox() // mdia
	w.EndBox() // trak
}

// dims returns this track's pixel dimensions as tkhd's 16.16 fixed-point
// width/height, or (0, 0) for a non-visual track.
func (tw *trackWriter) dims() (uint32, uint32) {
	if len(tw.entries) == 0 {
		return 0, 0
	}
	switch e := tw.entries[0].(type) {
	case *AvcSampleEntry:
		return uint32(NewFixedPointU1616(int(e.Width))), uint32(NewFixedPointU1616(int(e.Height)))
	case *HevcSampleEntry:
		return uint32(NewFixedPointU1616(int(e.Width))), uint32(NewFixedPointU1616(int(e.Height)))
	case *Vp9SampleEntry:
		return uint32(NewFixedPointU1616(int(e.Width))), uint32(NewFixedPointU1616(int(e.Height)))
	}
	return 0, 0
}

func (tw *trackWriter) closeChunkFinal() {
	if tw.chunkOpen {
		tw.closeChunk()
		tw.chunkOpen = false
	}
}

// estimateSize returns a generous upper bound on this track's encoded trak
// box, used only to size Writer.Grow calls ahead of a variable-length run.
func (tw *trackWriter) estimateSize() int {
	n := 1024
	for _, e := range tw.entries {
		n += e.Size()
	}
	n += len(tw.stsz) * 4
	n += len(tw.stts) * 8
	n += len(tw.ctts) * 8
	n += len(tw.stss) * 4
	n += len(tw.stsc) * 12
	n += len(tw.chunkOffsets) * 8
	return n
}

func uniformSampleSize(sizes []uint32) (uint32, bool) {
	if len(sizes) == 0 {
		return 0, false
	}
	first := sizes[0]
	for _, s := range sizes[1:] {
		if s != first {
			return 0, false
		}
	}
	return first, true
}

func needsCo64(offsets []uint64) bool {
	for _, o := range offsets {
		if o > uint32Max {
			return true
		}
	}
	return false
}

func languageOrDefault(lang string) string {
	if len(lang) != 3 {
		return "und"
	}
	return lang
}

// convertTimescale rescales a duration from one timescale to another,
// rounding down like the reference writer's integer arithmetic.
func convertTimescale(v uint64, from, to uint32) uint64 {
	if from == 0 || from == to {
		return v
	}
	return v * uint64(to) / uint64(from)
}

package bmff

import "io"

// FileReader is the result of ReadHeader: the moov-derived track table plus
// any moof-derived fragment samples, per §4.6. It does not hold mdat's
// payload — samples are read on demand from the source via ReadSample.
type FileReader struct {
	source io.ReadSeeker

	MajorBrand       BoxType
	MinorVersion     uint32
	CompatibleBrands [][4]byte

	tracks     map[uint32]*Track
	trackOrder []uint32

	trex map[uint32]trexDefaults

	// fragSamples holds trun-derived samples appended after a track's moov
	// sample list, in the order their moof boxes appeared in the stream.
	fragSamples map[uint32][]Sample

	Segments []SidxEntry // entries from the first top-level sidx, if any
	Emsgs    [][]byte    // raw emsg boxes (including header), in stream order
}

type trexDefaults struct {
	sampleDescIdx uint32
	sampleDur     uint32
	sampleSize    uint32
	sampleFlags   uint32
}

// topLevelBox describes one box found while walking a stream's top level,
// without its payload read into memory.
type topLevelBox struct {
	Type       BoxType
	Offset     int64 // byte offset from the start of the stream
	Size       int64 // total size including header
	HeaderSize int   // 8, or 16 when the box uses the extended largesize field
}

func (b topLevelBox) dataSize() int64 { return b.Size - int64(b.HeaderSize) }

// scanTopLevel walks source's top-level box headers from the current
// position to EOF, calling visit once per box without reading its payload.
// visit is free to pull the payload via readBoxBody/readBoxFull using the
// topLevelBox it was given; scanTopLevel reseeks to the next box boundary
// by offset afterward rather than assuming the stream is still positioned
// where the header scan left it.
func scanTopLevel(source io.ReadSeeker, visit func(topLevelBox) error) error {
	var hdr [16]byte

	pos, err := source.Seek(0, io.SeekCurrent)
	if err != nil {
		return &IoError{Cause: err}
	}

	for {
		boxStart := pos

		n, err := io.ReadFull(source, hdr[:8])
		if err != nil {
			if err == io.EOF || (err == io.ErrUnexpectedEOF && n == 0) {
				return nil
			}
			return &IoError{Cause: err}
		}

		size := int64(be.Uint32(hdr[:4]))
		var t BoxType
		copy(t[:], hdr[4:8])
		headerSize := 8

		if size == 1 {
			if _, err := io.ReadFull(source, hdr[8:16]); err != nil {
				return &IoError{Cause: err}
			}
			size = int64(be.Uint64(hdr[8:16]))
			headerSize = 16
		}

		if size == 0 {
			end, err := source.Seek(0, io.SeekEnd)
			if err != nil {
				return &IoError{Cause: err}
			}
			size = end - boxStart
			if _, err := source.Seek(boxStart+int64(headerSize), io.SeekStart); err != nil {
				return &IoError{Cause: err}
			}
		}

		// visit's error (a domain error or an already-wrapped IoError) is
		// returned verbatim; only the walk's own I/O failures get wrapped here.
		b := topLevelBox{Type: t, Offset: boxStart, Size: size, HeaderSize: headerSize}
		if err := visit(b); err != nil {
			return err
		}

		pos = boxStart + size
		if _, err := source.Seek(pos, io.SeekStart); err != nil {
			return &IoError{Cause: err}
		}
	}
}

// readBoxBody reads b's payload (excluding its header) from source into buf,
// which must be exactly b.dataSize() bytes long, then restores source's
// position so a caller mid-walk is undisturbed.
func readBoxBody(source io.ReadSeeker, b topLevelBox, buf []byte) error {
	saved, err := source.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := source.Seek(b.Offset+int64(b.HeaderSize), io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(source, buf); err != nil {
		return err
	}
	_, err = source.Seek(saved, io.SeekStart)
	return err
}

// readBoxFull reads b including its header from source into buf, which must
// be exactly b.Size bytes long, then restores source's position.
func readBoxFull(source io.ReadSeeker, b topLevelBox, buf []byte) error {
	saved, err := source.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if _, err := source.Seek(b.Offset, io.SeekStart); err != nil {
		return err
	}
	if _, err := io.ReadFull(source, buf); err != nil {
		return err
	}
	_, err = source.Seek(saved, io.SeekStart)
	return err
}

// ReadHeader scans source's top-level boxes until moov (and any trailing
// moof/mdat fragment pairs) are consumed, without reading mdat's contents.
func ReadHeader(source io.ReadSeeker, size int64) (*FileReader, error) {
	fr := &FileReader{
		source:      source,
		tracks:      make(map[uint32]*Track),
		trex:        make(map[uint32]trexDefaults),
		fragSamples: make(map[uint32][]Sample),
	}

	sawMoov := false
	var pendingMoof []topLevelBox

	walkErr := scanTopLevel(source, func(b topLevelBox) error {
		switch b.Type {
		case TypeFtyp:
			buf := make([]byte, b.dataSize())
			if err := readBoxBody(source, b, buf); err != nil {
				return &IoError{Cause: err}
			}
			info := ReadFtyp(buf)
			fr.MajorBrand = info.MajorBrand
			fr.MinorVersion = info.MinorVersion
			fr.CompatibleBrands = info.Compatible

		case TypeMoov:
			buf := make([]byte, b.dataSize())
			if err := readBoxBody(source, b, buf); err != nil {
				return &IoError{Cause: err}
			}
			if err := fr.parseMoov(buf); err != nil {
				return err
			}
			sawMoov = true

		case TypeSidx:
			buf := make([]byte, b.Size)
			if err := readBoxFull(source, b, buf); err != nil {
				return &IoError{Cause: err}
			}
			r := NewReader(buf)
			if r.Next() {
				_, _, _, _, entries := r.ReadSidx()
				if fr.Segments == nil {
					fr.Segments = entries
				}
			}

		case TypeMoof:
			pendingMoof = append(pendingMoof, b)

		case TypeEmsg:
			buf := make([]byte, b.Size)
			if err := readBoxFull(source, b, buf); err != nil {
				return &IoError{Cause: err}
			}
			fr.Emsgs = append(fr.Emsgs, buf)

		case TypeMdat:
			// Contents are never read; scanTopLevel has already skipped them.

		default:
			// Unrecognized or uninteresting top-level box: skipped by the walk.
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	if !sawMoov {
		return nil, &BoxNotFound{Type: TypeMoov}
	}

	for _, moof := range pendingMoof {
		buf := make([]byte, moof.dataSize())
		if err := readBoxBody(source, moof, buf); err != nil {
			return nil, &IoError{Cause: err}
		}
		if err := fr.parseMoof(buf, moof.Offset); err != nil {
			return nil, err
		}
	}

	return fr, nil
}

func (fr *FileReader) parseMoov(buf []byte) error {
	r := NewReader(buf)
	for r.Next() {
		switch r.Type() {
		case TypeTrak:
			t, err := fr.parseTrak(r.Data())
			if err != nil {
				return err
			}
			if _, exists := fr.tracks[t.TrackID]; !exists {
				fr.trackOrder = append(fr.trackOrder, t.TrackID)
			}
			fr.tracks[t.TrackID] = t

		case TypeMvex:
			mr := NewReader(r.Data())
			for mr.Next() {
				if mr.Type() == TypeTrex {
					trackID, descIdx, dur, size, flags := mr.ReadTrex()
					fr.trex[trackID] = trexDefaults{
						sampleDescIdx: descIdx,
						sampleDur:     dur,
						sampleSize:    size,
						sampleFlags:   flags,
					}
				}
			}
		}
	}
	return nil
}

func (fr *FileReader) parseTrak(data []byte) (*Track, error) {
	r := NewReader(data)
	t := &Track{Type: TrackVideo}

	for r.Next() {
		switch r.Type() {
		case TypeTkhd:
			trackID, _, _, _ := r.ReadTkhd()
			t.TrackID = trackID

		case TypeMdia:
			mr := NewReader(r.Data())
			for mr.Next() {
				switch mr.Type() {
				case TypeMdhd:
					timescale, duration, language := mr.ReadMdhd()
					t.Timescale = timescale
					t.Duration = duration
					t.Language = UnpackLanguage(language)

				case TypeHdlr:
					handler := mr.ReadHdlr()
					t.Type = trackTypeFromHandler(handler)

				case TypeMinf:
					if err := fr.parseMinf(t, mr.Data()); err != nil {
						return nil, err
					}
				}
			}
		}
	}
	if t.TrackID == 0 {
		return nil, &InvalidData{Detail: "trak missing tkhd"}
	}
	return t, nil
}

func trackTypeFromHandler(h [4]byte) TrackType {
	switch h {
	case [4]byte{'s', 'o', 'u', 'n'}:
		return TrackAudio
	case [4]byte{'s', 'b', 't', 'l'}:
		return TrackSubtitle
	default:
		return TrackVideo
	}
}

func (fr *FileReader) parseMinf(t *Track, data []byte) error {
	r := NewReader(data)
	for r.Next() {
		if r.Type() != TypeStbl {
			continue
		}
		sr := NewReader(r.Data())
		for sr.Next() {
			switch sr.Type() {
			case TypeStsd:
				entries, err := ReadStsd(&sr)
				if err != nil {
					return err
				}
				t.Entries = entries
			case TypeStts:
				t.tables.sttsData = sr.Data()
			case TypeCtts:
				t.tables.cttsData = sr.Data()
				t.tables.cttsVer = sr.Version()
			case TypeStsz:
				t.tables.stszData = sr.Data()
			case TypeStsc:
				t.tables.stscData = sr.Data()
			case TypeStss:
				t.tables.stssData = sr.Data()
			case TypeStco:
				t.tables.stcoData = sr.Data()
			case TypeCo64:
				t.tables.co64Data = sr.Data()
			}
		}
	}
	return nil
}

// parseMoof decodes one moof box's traf children into fragment samples,
// honoring tfhd default overrides and tfdt's base decode time, per §4.6.
func (fr *FileReader) parseMoof(data []byte, moofOffset int64) error {
	r := NewReader(data)
	for r.Next() {
		if r.Type() != TypeTraf {
			continue
		}
		if err := fr.parseTraf(r.Data(), moofOffset); err != nil {
			return err
		}
	}
	return nil
}

func (fr *FileReader) parseTraf(data []byte, moofOffset int64) error {
	r := NewReader(data)

	var trackID uint32
	var tfhdFlags TfhdFlags
	var baseDataOffset = moofOffset
	var defaults trexDefaults
	var baseDecodeTime uint64
	var descIdx, dur, size, flags = defaults.sampleDescIdx, defaults.sampleDur, defaults.sampleSize, defaults.sampleFlags

	for r.Next() {
		switch r.Type() {
		case TypeTfhd:
			trackID = r.ReadTfhd()
			tfhdFlags = TfhdFlags(r.Flags())
			defaults = fr.trex[trackID]
			descIdx, dur, size, flags = defaults.sampleDescIdx, defaults.sampleDur, defaults.sampleSize, defaults.sampleFlags
			d := r.Data()
			ptr := 4
			if tfhdFlags.Has(TfhdBaseDataOffsetPresent) {
				baseDataOffset = int64(be.Uint64(d[ptr:]))
				ptr += 8
			}
			if tfhdFlags.Has(TfhdSampleDescriptionIndexPresent) {
				descIdx = be.Uint32(d[ptr:])
				ptr += 4
			}
			if tfhdFlags.Has(TfhdDefaultSampleDurationPresent) {
				dur = be.Uint32(d[ptr:])
				ptr += 4
			}
			if tfhdFlags.Has(TfhdDefaultSampleSizePresent) {
				size = be.Uint32(d[ptr:])
				ptr += 4
			}
			if tfhdFlags.Has(TfhdDefaultSampleFlagsPresent) {
				flags = be.Uint32(d[ptr:])
				ptr += 4
			}

		case TypeTfdt:
			baseDecodeTime = r.ReadTfdt()

		case TypeTrun:
			trunFlags := TrunFlags(r.Flags())
			it := NewTrunIter(r.Data(), r.Flags())
			dataOffset := baseDataOffset
			if trunFlags.Has(TrunDataOffsetPresent) {
				dataOffset = moofOffset + int64(it.DataOffset())
			}
			decodeTime := baseDecodeTime
			offset := uint64(dataOffset)
			first := true
			for {
				e, ok := it.Next()
				if !ok {
					break
				}
				sampleDur := dur
				if trunFlags.Has(TrunSampleDurationPresent) {
					sampleDur = e.Duration
				}
				sampleSize := size
				if trunFlags.Has(TrunSampleSizePresent) {
					sampleSize = e.Size
				}
				sampleFlags := flags
				if first && trunFlags.Has(TrunFirstSampleFlagsPresent) {
					sampleFlags = it.FirstSampleFlags()
				} else if trunFlags.Has(TrunSampleFlagsPresent) {
					sampleFlags = e.Flags
				}
				var compOffset int64
				if trunFlags.Has(TrunSampleCompositionTimeOffsetPresent) {
					compOffset = int64(e.CompositionTimeOffset)
				}

				fr.fragSamples[trackID] = append(fr.fragSamples[trackID], Sample{
					Offset:             offset,
					Size:               sampleSize,
					DecodeTime:         decodeTime,
					PresentationOffset: compOffset,
					Sync:               sampleFlags&sampleDependsOnNoneFlag == 0,
					DescriptionIndex:   descIdx,
				})

				offset += uint64(sampleSize)
				decodeTime += uint64(sampleDur)
				first = false
			}
		}
	}
	return nil
}

// sampleDependsOnNoneFlag is bit 16 of a trun/tfhd sample_flags field
// (sample_is_difference_sample); when clear the sample is a sync sample.
const sampleDependsOnNoneFlag = 1 << 16

// Tracks returns every track discovered by ReadHeader, keyed by track ID.
func (fr *FileReader) Tracks() map[uint32]*Track {
	return fr.tracks
}

// TrackIDs returns track IDs in the order their trak boxes appeared in moov.
func (fr *FileReader) TrackIDs() []uint32 {
	out := make([]uint32, len(fr.trackOrder))
	copy(out, fr.trackOrder)
	return out
}

// ReadSample returns the nth sample (0-based) of track_id, reading its bytes
// from source. Samples from moov's sample table are indexed first, followed
// by any moof-derived fragment samples in stream order. Returns io.EOF once
// n exceeds the track's total sample count.
func (fr *FileReader) ReadSample(trackID uint32, n int) (*Sample, []byte, error) {
	t, ok := fr.tracks[trackID]
	if !ok {
		return nil, nil, &TrakNotFound{TrackID: trackID}
	}

	moovCount := int(t.SampleCount())
	var sample Sample
	if n < moovCount {
		offset, err := t.SampleOffset(uint32(n))
		if err != nil {
			return nil, nil, err
		}
		size, err := t.SampleSize(uint32(n))
		if err != nil {
			return nil, nil, err
		}
		decodeTime, err := t.SampleTime(uint32(n))
		if err != nil {
			return nil, nil, err
		}
		renderOffset, err := t.RenderingOffset(uint32(n))
		if err != nil {
			return nil, nil, err
		}
		descIdx, err := t.DescriptionIndex(uint32(n))
		if err != nil {
			return nil, nil, err
		}
		sample = Sample{
			Offset:             offset,
			Size:               size,
			DecodeTime:         decodeTime,
			PresentationOffset: renderOffset,
			Sync:               t.IsSync(uint32(n)),
			DescriptionIndex:   descIdx,
		}
	} else {
		frags := fr.fragSamples[trackID]
		idx := n - moovCount
		if idx >= len(frags) {
			return nil, nil, io.EOF
		}
		sample = frags[idx]
	}

	data := make([]byte, sample.Size)
	if _, err := fr.source.Seek(int64(sample.Offset), io.SeekStart); err != nil {
		return nil, nil, &IoError{Cause: err}
	}
	if _, err := io.ReadFull(fr.source, data); err != nil {
		return nil, nil, &IoError{Cause: err}
	}
	return &sample, data, nil
}

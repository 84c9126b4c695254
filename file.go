package bmff

import "io"

// streamOffset returns w's current position via Seek(0, io.SeekCurrent).
func streamOffset(w io.Writer) (uint64, error) {
	s, ok := w.(io.Seeker)
	if !ok {
		return 0, &InvalidData{Detail: "writer does not support seeking"}
	}
	pos, err := s.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, &IoError{Cause: err}
	}
	return uint64(pos), nil
}

// fileWriterState is FileWriter's lifecycle, per §4.5: Opened -> MdatOpen -> Finalized.
type fileWriterState uint8

const (
	stateOpened fileWriterState = iota
	stateMdatOpen
	stateFinalized
)

// FileWriter assembles a progressive (non-fragmented) MP4 file onto an
// io.WriteSeeker: ftyp, a single mdat holding every track's sample bytes
// back to back in whatever order WriteSample was called (see the
// trackWriter doc comment — no cross-track interleaving is performed here),
// and a moov built once every track is done.
type FileWriter struct {
	w io.WriteSeeker

	state     fileWriterState
	mdatPos   uint64
	timescale uint32
	duration  uint64 // in movie timescale

	tracks   map[uint32]*trackWriter
	trackIDs []uint32 // insertion order, for track_ids() and a stable moov.trak order
}

// WriteStart emits ftyp and opens a placeholder mdat, per §4.5.
func WriteStart(w io.WriteSeeker, config WriterConfig) (*FileWriter, error) {
	buf := make([]byte, 8+4+4+4*len(config.CompatibleBrands))
	bw := NewWriter(buf)
	compat := make([][4]byte, len(config.CompatibleBrands))
	for i, b := range config.CompatibleBrands {
		compat[i] = NewBoxType(b)
	}
	bw.WriteFtyp(NewBoxType(config.MajorBrand), config.MinorVersion, compat)
	if _, err := w.Write(bw.Bytes()); err != nil {
		return nil, &IoError{Cause: err}
	}

	mdatPos, err := streamOffset(w)
	if err != nil {
		return nil, err
	}
	var placeholder [16]byte
	be.PutUint32(placeholder[0:4], boxHeaderSize)
	copy(placeholder[4:8], TypeMdat[:])
	be.PutUint32(placeholder[8:12], boxHeaderSize)
	copy(placeholder[12:16], TypeWide[:])
	if _, err := w.Write(placeholder[:]); err != nil {
		return nil, &IoError{Cause: err}
	}

	return &FileWriter{
		w:         w,
		state:     stateMdatOpen,
		mdatPos:   mdatPos,
		timescale: config.Timescale,
		tracks:    make(map[uint32]*trackWriter),
	}, nil
}

// boxHeaderSize is the size in bytes of a standard (non-extended) box header.
const boxHeaderSize = 8

// AddTrack creates a track writer and returns its assigned track ID, per §4.5.
func (fw *FileWriter) AddTrack(config TrackConfig) (uint32, error) {
	trackID := config.TrackID
	if trackID == 0 {
		for _, id := range fw.trackIDs {
			if id > trackID {
				trackID = id
			}
		}
		trackID++
	}
	if _, exists := fw.tracks[trackID]; exists {
		return 0, &InvalidData{Detail: "track_id already exists"}
	}
	tw, err := newTrackWriter(trackID, config)
	if err != nil {
		return 0, err
	}
	fw.tracks[trackID] = tw
	fw.trackIDs = append(fw.trackIDs, trackID)
	return trackID, nil
}

// WriteSample appends one sample to track_id's mdat run and sample tables.
func (fw *FileWriter) WriteSample(trackID uint32, sample WriteSample) error {
	if trackID == 0 {
		return &TrakNotFound{TrackID: trackID}
	}
	tw, ok := fw.tracks[trackID]
	if !ok {
		return &TrakNotFound{TrackID: trackID}
	}
	trackDuration, err := tw.writeSample(fw.w, sample)
	if err != nil {
		return err
	}
	movieDuration := convertTimescale(trackDuration, tw.timescale, fw.timescale)
	if movieDuration > fw.duration {
		fw.duration = movieDuration
	}
	return nil
}

// UpdateEditList inserts a one-entry elst for track_id, clamped to the
// movie duration known when WriteEnd runs, per §4.4.
func (fw *FileWriter) UpdateEditList(trackID uint32, offsetUs, durationUs uint64) error {
	tw, ok := fw.tracks[trackID]
	if !ok {
		return &TrakNotFound{TrackID: trackID}
	}
	tw.updateEditList(offsetUs, durationUs)
	return nil
}

// TrackIDs returns the IDs of every track added so far, in AddTrack order.
func (fw *FileWriter) TrackIDs() []uint32 {
	out := make([]uint32, len(fw.trackIDs))
	copy(out, fw.trackIDs)
	return out
}

// WriteEnd finalizes every track, rewrites the mdat size, and serializes
// moov, per §4.5.
func (fw *FileWriter) WriteEnd() error {
	if err := fw.updateMdatSize(); err != nil {
		return err
	}

	mw := NewWriter(make([]byte, 4096))
	mw.StartBox(TypeMoov)
	mw.WriteMvhd(fw.timescale, fw.duration, uint32(len(fw.tracks))+1)
	for _, id := range fw.trackIDs {
		fw.tracks[id].writeEnd(&mw, fw.timescale, fw.duration)
	}
	mw.EndBox()

	if _, err := fw.w.Write(mw.Bytes()); err != nil {
		return &IoError{Cause: err}
	}
	fw.state = stateFinalized
	return nil
}

// updateMdatSize seeks back to the reserved mdat header and writes its
// final size, upgrading to a largesize box in place when needed, per §4.5.
func (fw *FileWriter) updateMdatSize() error {
	mdatEnd, err := streamOffset(fw.w)
	if err != nil {
		return err
	}
	mdatSize := mdatEnd - fw.mdatPos

	if mdatSize > uint32Max {
		if _, err := fw.w.Seek(int64(fw.mdatPos), io.SeekStart); err != nil {
			return &IoError{Cause: err}
		}
		var hdr [4]byte
		be.PutUint32(hdr[:], 1) // size == 1 signals a 64-bit largesize follows
		if _, err := fw.w.Write(hdr[:]); err != nil {
			return &IoError{Cause: err}
		}
		if _, err := fw.w.Seek(int64(fw.mdatPos+8), io.SeekStart); err != nil {
			return &IoError{Cause: err}
		}
		var size [8]byte
		be.PutUint64(size[:], mdatSize)
		if _, err := fw.w.Write(size[:]); err != nil {
			return &IoError{Cause: err}
		}
	} else {
		if _, err := fw.w.Seek(int64(fw.mdatPos), io.SeekStart); err != nil {
			return &IoError{Cause: err}
		}
		var hdr [4]byte
		be.PutUint32(hdr[:], uint32(mdatSize))
		if _, err := fw.w.Write(hdr[:]); err != nil {
			return &IoError{Cause: err}
		}
	}

	if _, err := fw.w.Seek(int64(mdatEnd), io.SeekStart); err != nil {
		return &IoError{Cause: err}
	}
	return nil
}

package bmff

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// memWriteSeeker is a minimal in-memory io.WriteSeeker standing in for a
// file handle in round-trip tests.
type memWriteSeeker struct {
	buf []byte
	pos int64
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	}
	m.pos = newPos
	return newPos, nil
}

func TestFileWriterReaderRoundTripAudioTrack(t *testing.T) {
	mw := &memWriteSeeker{}

	fw, err := WriteStart(mw, DefaultWriterConfig())
	require.NoError(t, err)

	trackID, err := fw.AddTrack(TrackConfig{
		Timescale: 48000,
		Language:  "eng",
		Media: MediaConfig{
			Aac: &AacOptions{
				Bitrate:  128000,
				Profile:  AacLowComplexity,
				FreqIdx:  Freq48000,
				ChanConf: ChanStereo,
			},
		},
	})
	require.NoError(t, err)
	require.Equal(t, uint32(1), trackID)

	samples := [][]byte{
		{0x01, 0x02, 0x03},
		{0x04, 0x05, 0x06, 0x07},
		{0x08, 0x09},
	}
	for i, data := range samples {
		err := fw.WriteSample(trackID, WriteSample{
			Data:     data,
			Duration: 1024,
			Sync:     i == 0,
		})
		require.NoError(t, err)
	}

	require.NoError(t, fw.WriteEnd())

	source := &memReadSeeker{buf: mw.buf}
	fr, err := ReadHeader(source, int64(len(mw.buf)))
	require.NoError(t, err)
	require.Equal(t, NewBoxType("isom"), fr.MajorBrand)

	tr, ok := fr.Tracks()[trackID]
	require.True(t, ok)
	require.Equal(t, uint32(3), tr.SampleCount())
	require.Equal(t, "eng", tr.Language)
	require.Equal(t, TrackAudio, tr.Type)

	for i, want := range samples {
		_, got, err := fr.ReadSample(trackID, i)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	require.True(t, tr.IsSync(0))
	require.False(t, tr.IsSync(1))

	_, _, err = fr.ReadSample(trackID, len(samples))
	require.ErrorIs(t, err, io.EOF)
}

// memReadSeeker is a minimal in-memory io.ReadSeeker reading back the bytes
// a memWriteSeeker produced.
type memReadSeeker struct {
	buf []byte
	pos int64
}

func (m *memReadSeeker) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *memReadSeeker) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = m.pos + offset
	case io.SeekEnd:
		newPos = int64(len(m.buf)) + offset
	}
	m.pos = newPos
	return newPos, nil
}

package bmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func boxData(t *testing.T, raw []byte) []byte {
	t.Helper()
	r := NewReader(raw)
	require.True(t, r.Next())
	return r.Data()
}

func TestTrackSampleQueries(t *testing.T) {
	w := NewWriter(make([]byte, 256))
	w.WriteStts([]SttsEntry{{Count: 3, Duration: 1000}})
	stts := boxData(t, w.Bytes())

	w = NewWriter(make([]byte, 256))
	w.WriteStsz(0, 3, []uint32{100, 200, 300})
	stsz := boxData(t, w.Bytes())

	w = NewWriter(make([]byte, 256))
	w.WriteStsc([]StscEntry{{FirstChunk: 1, SamplesPerChunk: 2, SampleDescriptionId: 1}, {FirstChunk: 2, SamplesPerChunk: 1, SampleDescriptionId: 1}})
	stsc := boxData(t, w.Bytes())

	w = NewWriter(make([]byte, 256))
	w.WriteStco([]uint32{1000, 2000})
	stco := boxData(t, w.Bytes())

	w = NewWriter(make([]byte, 256))
	w.WriteStss([]uint32{1, 3})
	stss := boxData(t, w.Bytes())

	tr := &Track{
		TrackID: 1,
		tables: stblTables{
			sttsData: stts,
			stszData: stsz,
			stscData: stsc,
			stcoData: stco,
			stssData: stss,
		},
	}

	require.Equal(t, uint32(3), tr.SampleCount())

	off0, err := tr.SampleOffset(0)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), off0)

	off1, err := tr.SampleOffset(1)
	require.NoError(t, err)
	require.Equal(t, uint64(1100), off1) // second sample of chunk 1: base + size of sample 0

	off2, err := tr.SampleOffset(2)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), off2) // first sample of chunk 2

	size1, err := tr.SampleSize(1)
	require.NoError(t, err)
	require.Equal(t, uint32(200), size1)

	time2, err := tr.SampleTime(2)
	require.NoError(t, err)
	require.Equal(t, uint64(2000), time2)

	require.True(t, tr.IsSync(0))
	require.False(t, tr.IsSync(1))
	require.True(t, tr.IsSync(2))

	descIdx, err := tr.DescriptionIndex(2)
	require.NoError(t, err)
	require.Equal(t, uint32(1), descIdx)

	_, err = tr.SampleSize(3)
	require.Error(t, err)
	var notFound *EntryInStblNotFound
	require.ErrorAs(t, err, &notFound)
}

func TestTrackNoStssMeansEverySampleSync(t *testing.T) {
	w := NewWriter(make([]byte, 64))
	w.WriteStts([]SttsEntry{{Count: 1, Duration: 1000}})
	stts := boxData(t, w.Bytes())

	w = NewWriter(make([]byte, 64))
	w.WriteStsz(188, 1, nil)
	stsz := boxData(t, w.Bytes())

	w = NewWriter(make([]byte, 64))
	w.WriteStsc([]StscEntry{{FirstChunk: 1, SamplesPerChunk: 1, SampleDescriptionId: 1}})
	stsc := boxData(t, w.Bytes())

	w = NewWriter(make([]byte, 64))
	w.WriteStco([]uint32{500})
	stco := boxData(t, w.Bytes())

	tr := &Track{
		tables: stblTables{sttsData: stts, stszData: stsz, stscData: stsc, stcoData: stco},
	}
	require.True(t, tr.IsSync(0))

	renderOffset, err := tr.RenderingOffset(0)
	require.NoError(t, err)
	require.Equal(t, int64(0), renderOffset)
}

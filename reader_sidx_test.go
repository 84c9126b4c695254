package bmff

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSidxRoundTripPreservesSAPType(t *testing.T) {
	entries := []SidxEntry{
		{ReferenceType: false, ReferencedSize: 1000, SubsegDuration: 48000, StartsWithSAP: true, SAPType: 1},
		{ReferenceType: false, ReferencedSize: 2000, SubsegDuration: 48000, StartsWithSAP: true, SAPType: 6},
	}

	w := NewWriter(make([]byte, 128))
	w.WriteSidx(1, 48000, 0, 0, entries)

	r := NewReader(w.Bytes())
	require.True(t, r.Next())
	require.Equal(t, TypeSidx, r.Type())

	trackID, timescale, earliestPTS, firstOffset, got := r.ReadSidx()
	require.Equal(t, uint32(1), trackID)
	require.Equal(t, uint32(48000), timescale)
	require.Equal(t, uint64(0), earliestPTS)
	require.Equal(t, uint64(0), firstOffset)
	require.Equal(t, entries, got)
}

func TestSidxSAPTypeUsesTopThreeBits(t *testing.T) {
	// sapField = StartsWithSAP(bit31) | SAPType(bits 30-28) | SAP_delta_time(bits 27-0).
	// A naive "sap & 0x7" read would pick up the low 3 bits of SAP_delta_time
	// instead of the SAP type; (sap>>28)&0x7 is the correct extraction.
	w := NewWriter(make([]byte, 64))
	w.WriteSidx(7, 1000, 0, 0, []SidxEntry{
		{SAPType: 3, ReferencedSize: 500, SubsegDuration: 1000},
	})

	r := NewReader(w.Bytes())
	require.True(t, r.Next())
	_, _, _, _, entries := r.ReadSidx()
	require.Len(t, entries, 1)
	require.Equal(t, uint8(3), entries[0].SAPType)
}

func TestReadUuidTypeSeparatesUsertypeAndPayload(t *testing.T) {
	var usertype [16]byte
	for i := range usertype {
		usertype[i] = byte(i + 1)
	}
	payload := []byte{0xde, 0xad, 0xbe, 0xef}

	w := NewWriter(make([]byte, 64))
	w.StartBox(TypeUuid)
	w.putBytes(usertype[:])
	w.putBytes(payload)
	w.EndBox()

	r := NewReader(w.Bytes())
	require.True(t, r.Next())
	gotType, gotPayload := r.ReadUuidType()
	require.Equal(t, usertype, gotType)
	require.Equal(t, payload, gotPayload)
}

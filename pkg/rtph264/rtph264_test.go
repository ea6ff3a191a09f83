package rtph264

import (
	"bytes"
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/require"
)

func uint16Ptr(v uint16) *uint16 {
	return &v
}

func uint32Ptr(v uint32) *uint32 {
	return &v
}

var cases = []struct {
	name string
	au   [][]byte
	pts  int64
	pkts []*rtp.Packet
}{
	{
		"single",
		[][]byte{{0x05, 0x01, 0x02, 0x03}},
		0,
		[]*rtp.Packet{
			{
				Header: rtp.Header{
					Version:        2,
					Marker:         true,
					PayloadType:    96,
					SequenceNumber: 17645,
					Timestamp:      2289526357,
					SSRC:           0x9dbb7812,
				},
				Payload: []byte{0x05, 0x01, 0x02, 0x03},
			},
		},
	},
	{
		"aggregated",
		[][]byte{
			{0x07, 0x01},
			{0x08, 0x02},
			{0x05, 0x03},
		},
		40000,
		[]*rtp.Packet{
			{
				Header: rtp.Header{
					Version:        2,
					Marker:         true,
					PayloadType:    96,
					SequenceNumber: 17645,
					Timestamp:      2289526357 + 3600,
					SSRC:           0x9dbb7812,
				},
				Payload: []byte{
					0x18, 0x00, 0x02, 0x07, 0x01, 0x00, 0x02, 0x08,
					0x02, 0x00, 0x02, 0x05, 0x03,
				},
			},
		},
	},
	{
		"fragmented",
		[][]byte{
			append([]byte{0x65}, bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 500)...),
		},
		0,
		[]*rtp.Packet{
			{
				Header: rtp.Header{
					Version:        2,
					Marker:         false,
					PayloadType:    96,
					SequenceNumber: 17645,
					Timestamp:      2289526357,
					SSRC:           0x9dbb7812,
				},
				Payload: append([]byte{0x7c, 0x85}, bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 365)[:1458]...),
			},
			{
				Header: rtp.Header{
					Version:        2,
					Marker:         true,
					PayloadType:    96,
					SequenceNumber: 17646,
					Timestamp:      2289526357,
					SSRC:           0x9dbb7812,
				},
				Payload: append([]byte{0x7c, 0x45}, bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04}, 500)[1458:]...),
			},
		},
	},
}

func newTestEncoder(t *testing.T) *Encoder {
	e := &Encoder{
		PayloadType:           96,
		SSRC:                  uint32Ptr(0x9dbb7812),
		InitialSequenceNumber: uint16Ptr(0x44ed),
		InitialTimestamp:      uint32Ptr(2289526357),
	}
	err := e.Init()
	require.NoError(t, err)
	return e
}

func TestEncode(t *testing.T) {
	for _, ca := range cases {
		t.Run(ca.name, func(t *testing.T) {
			e := newTestEncoder(t)

			pkts, err := e.Encode(ca.au, ca.pts)
			require.NoError(t, err)
			require.Equal(t, ca.pkts, pkts)
		})
	}
}

func TestDecode(t *testing.T) {
	for _, ca := range cases {
		t.Run(ca.name, func(t *testing.T) {
			d := &Decoder{}
			err := d.Init()
			require.NoError(t, err)

			var au [][]byte

			for i, pkt := range ca.pkts {
				au, err = d.Decode(pkt)
				if i != len(ca.pkts)-1 {
					require.Equal(t, ErrMorePacketsNeeded, err)
				} else {
					require.NoError(t, err)
				}
			}

			require.Equal(t, ca.au, au)
		})
	}
}

func TestEncodeRandomInitialState(t *testing.T) {
	e := &Encoder{
		PayloadType: 96,
	}
	err := e.Init()
	require.NoError(t, err)
	require.NotNil(t, e.SSRC)
	require.NotNil(t, e.InitialSequenceNumber)
	require.NotNil(t, e.InitialTimestamp)
}

func TestEncodeErrors(t *testing.T) {
	e := newTestEncoder(t)

	_, err := e.Encode(nil, 0)
	require.EqualError(t, err, "access unit is empty")

	_, err = e.Encode([][]byte{{}}, 0)
	require.EqualError(t, err, "NALU is empty")
}

func TestDecodeMissingFragment(t *testing.T) {
	d := &Decoder{}
	err := d.Init()
	require.NoError(t, err)

	pkts := cases[2].pkts

	_, err = d.Decode(pkts[0])
	require.Equal(t, ErrMorePacketsNeeded, err)

	last := *pkts[1]
	last.SequenceNumber++

	_, err = d.Decode(&last)
	require.EqualError(t, err, "discarding frame since a RTP packet is missing")
}

func FuzzDecoder(f *testing.F) {
	f.Fuzz(func(_ *testing.T, a []byte, b []byte) {
		d := &Decoder{}
		d.Init() //nolint:errcheck

		d.Decode(&rtp.Packet{ //nolint:errcheck
			Header: rtp.Header{
				Version:        2,
				Marker:         false,
				PayloadType:    96,
				SequenceNumber: 17645,
				SSRC:           0x9dbb7812,
			},
			Payload: a,
		})

		d.Decode(&rtp.Packet{ //nolint:errcheck
			Header: rtp.Header{
				Version:        2,
				Marker:         true,
				PayloadType:    96,
				SequenceNumber: 17646,
				SSRC:           0x9dbb7812,
			},
			Payload: b,
		})
	})
}

func TestTimestamp(t *testing.T) {
	for _, ca := range []struct {
		name  string
		ptsUs int64
		ts    uint32
	}{
		{"zero", 0, 2289526357},
		{"frame", 40000, 2289526357 + 3600},
		{"sub-tick", 5, 2289526357},
		{"large", 1000000000000000, 1249838677},
	} {
		t.Run(ca.name, func(t *testing.T) {
			require.Equal(t, ca.ts, timestamp(2289526357, ca.ptsUs))
		})
	}
}

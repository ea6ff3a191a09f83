package format

import (
	"testing"

	psdp "github.com/pion/sdp/v3"
	"github.com/stretchr/testify/require"
)

var casesFormat = []struct {
	name   string
	md     *psdp.MediaDescription
	format Format
}{
	{
		"video h264",
		&psdp.MediaDescription{
			MediaName: psdp.MediaName{
				Media:   "video",
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{"96"},
			},
			Attributes: []psdp.Attribute{
				{
					Key:   "rtpmap",
					Value: "96 H264/90000",
				},
				{
					Key: "fmtp",
					Value: "96 packetization-mode=1; " +
						"profile-level-id=64000C; sprop-parameter-sets=Z2QADKw7ULBLQgAAAwACAAADAD0I,aO48sA==",
				},
			},
		},
		&H264{
			PayloadTyp: 96,
			SPS: []byte{
				0x67, 0x64, 0x00, 0x0c, 0xac, 0x3b, 0x50, 0xb0,
				0x4b, 0x42, 0x00, 0x00, 0x03, 0x00, 0x02, 0x00,
				0x00, 0x03, 0x00, 0x3d, 0x08,
			},
			PPS: []byte{
				0x68, 0xee, 0x3c, 0xb0,
			},
			PacketizationMode: 1,
		},
	},
	{
		"audio lpcm 16",
		&psdp.MediaDescription{
			MediaName: psdp.MediaName{
				Media:   "audio",
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{"97"},
			},
			Attributes: []psdp.Attribute{
				{
					Key:   "rtpmap",
					Value: "97 L16/44100/2",
				},
			},
		},
		&LPCM{
			PayloadTyp:   97,
			BitDepth:     16,
			SampleRate:   44100,
			ChannelCount: 2,
		},
	},
	{
		"audio lpcm 24",
		&psdp.MediaDescription{
			MediaName: psdp.MediaName{
				Media:   "audio",
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{"98"},
			},
			Attributes: []psdp.Attribute{
				{
					Key:   "rtpmap",
					Value: "98 L24/48000/1",
				},
			},
		},
		&LPCM{
			PayloadTyp:   98,
			BitDepth:     24,
			SampleRate:   48000,
			ChannelCount: 1,
		},
	},
	{
		"video mpegts",
		&psdp.MediaDescription{
			MediaName: psdp.MediaName{
				Media:   "video",
				Protos:  []string{"RTP", "AVP"},
				Formats: []string{"33"},
			},
			Attributes: []psdp.Attribute{
				{
					Key:   "rtpmap",
					Value: "33 MP2T/90000",
				},
			},
		},
		&MPEGTS{},
	},
}

func TestUnmarshal(t *testing.T) {
	for _, ca := range casesFormat {
		t.Run(ca.name, func(t *testing.T) {
			f, err := Unmarshal(ca.md, ca.md.MediaName.Formats[0])
			require.NoError(t, err)
			require.Equal(t, ca.format, f)
		})
	}
}

func TestMarshal(t *testing.T) {
	for _, ca := range casesFormat {
		t.Run(ca.name, func(t *testing.T) {
			md := Marshal(ca.format)
			f, err := Unmarshal(md, md.MediaName.Formats[0])
			require.NoError(t, err)
			require.Equal(t, ca.format, f)
		})
	}
}

func TestUnmarshalStaticLPCM(t *testing.T) {
	f, err := Unmarshal(&psdp.MediaDescription{
		MediaName: psdp.MediaName{
			Media:   "audio",
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{"10"},
		},
	}, "10")
	require.NoError(t, err)
	require.Equal(t, &LPCM{
		PayloadTyp:   10,
		BitDepth:     16,
		SampleRate:   44100,
		ChannelCount: 2,
	}, f)
	require.Equal(t, 4, f.(*LPCM).SampleSize())

	f, err = Unmarshal(&psdp.MediaDescription{
		MediaName: psdp.MediaName{
			Media:   "audio",
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{"11"},
		},
		Attributes: []psdp.Attribute{
			{
				Key:   "rtpmap",
				Value: "11 L16/44100/1",
			},
		},
	}, "11")
	require.NoError(t, err)
	require.Equal(t, &LPCM{
		PayloadTyp:   11,
		BitDepth:     16,
		SampleRate:   44100,
		ChannelCount: 1,
	}, f)
}

func TestUnmarshalErrors(t *testing.T) {
	for _, ca := range []struct {
		name string
		md   *psdp.MediaDescription
		pt   string
		err  string
	}{
		{
			"invalid payload type",
			&psdp.MediaDescription{},
			"aa",
			"invalid payload type (aa)",
		},
		{
			"unsupported",
			&psdp.MediaDescription{
				Attributes: []psdp.Attribute{
					{
						Key:   "rtpmap",
						Value: "96 VP8/90000",
					},
				},
			},
			"96",
			"unsupported format (payload type 96, rtpmap 'VP8/90000')",
		},
		{
			"lpcm invalid sample rate",
			&psdp.MediaDescription{
				Attributes: []psdp.Attribute{
					{
						Key:   "rtpmap",
						Value: "96 L16/0/2",
					},
				},
			},
			"96",
			"invalid sample rate: '0'",
		},
		{
			"lpcm invalid channel count",
			&psdp.MediaDescription{
				Attributes: []psdp.Attribute{
					{
						Key:   "rtpmap",
						Value: "96 L16/44100/x",
					},
				},
			},
			"96",
			"invalid channel count: 'x'",
		},
		{
			"h264 invalid sprop-parameter-sets",
			&psdp.MediaDescription{
				Attributes: []psdp.Attribute{
					{
						Key:   "rtpmap",
						Value: "96 H264/90000",
					},
					{
						Key:   "fmtp",
						Value: "96 sprop-parameter-sets=Z2QADKw7ULBLQgAAAwACAAADAD0I",
					},
				},
			},
			"96",
			"invalid sprop-parameter-sets (Z2QADKw7ULBLQgAAAwACAAADAD0I)",
		},
		{
			"h264 invalid packetization mode",
			&psdp.MediaDescription{
				Attributes: []psdp.Attribute{
					{
						Key:   "rtpmap",
						Value: "96 H264/90000",
					},
					{
						Key:   "fmtp",
						Value: "96 packetization-mode=aa",
					},
				},
			},
			"96",
			"invalid packetization-mode (aa)",
		},
	} {
		t.Run(ca.name, func(t *testing.T) {
			_, err := Unmarshal(ca.md, ca.pt)
			require.EqualError(t, err, ca.err)
		})
	}
}

func TestSession(t *testing.T) {
	formats := []Format{
		&H264{
			PayloadTyp:        96,
			PacketizationMode: 1,
		},
		&LPCM{
			PayloadTyp:   97,
			BitDepth:     16,
			SampleRate:   44100,
			ChannelCount: 2,
		},
	}

	buf, err := MarshalSession(formats)
	require.NoError(t, err)

	dec, err := ParseSession(buf)
	require.NoError(t, err)
	require.Equal(t, formats, dec)
}

func TestAttributes(t *testing.T) {
	h264 := &H264{
		PayloadTyp:        96,
		SPS:               []byte{0x01, 0x02},
		PPS:               []byte{0x03, 0x04},
		PacketizationMode: 1,
	}
	require.Equal(t, "H264", h264.Codec())
	require.Equal(t, 90000, h264.ClockRate())

	sps, pps := h264.SafeParams()
	require.Equal(t, []byte{0x01, 0x02}, sps)
	require.Equal(t, []byte{0x03, 0x04}, pps)

	h264.SafeSetParams([]byte{0x07, 0x08}, []byte{0x09, 0x0A})

	sps, pps = h264.SafeParams()
	require.Equal(t, []byte{0x07, 0x08}, sps)
	require.Equal(t, []byte{0x09, 0x0A}, pps)

	lpcm := &LPCM{
		PayloadTyp:   96,
		BitDepth:     24,
		SampleRate:   44100,
		ChannelCount: 2,
	}
	require.Equal(t, "LPCM", lpcm.Codec())
	require.Equal(t, 44100, lpcm.ClockRate())
	require.Equal(t, uint8(96), lpcm.PayloadType())
	require.Equal(t, 6, lpcm.SampleSize())

	mpegts := &MPEGTS{}
	require.Equal(t, "MPEG-TS", mpegts.Codec())
	require.Equal(t, 90000, mpegts.ClockRate())
	require.Equal(t, uint8(33), mpegts.PayloadType())
}

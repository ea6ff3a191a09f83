package format

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"
)

func encodeFMTP(fmtp map[string]string) string {
	keys := make([]string, 0, len(fmtp))
	for key := range fmtp {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = key + "=" + fmtp[key]
	}

	return strings.Join(parts, "; ")
}

// Marshal encodes a format into a media description.
func Marshal(f Format) *psdp.MediaDescription {
	pt := strconv.FormatUint(uint64(f.PayloadType()), 10)

	md := &psdp.MediaDescription{
		MediaName: psdp.MediaName{
			Media:   f.MediaType(),
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{pt},
		},
	}

	if rtpMap := f.RTPMap(); rtpMap != "" {
		md.Attributes = append(md.Attributes, psdp.Attribute{
			Key:   "rtpmap",
			Value: pt + " " + rtpMap,
		})
	}

	if fmtp := f.FMTP(); len(fmtp) != 0 {
		md.Attributes = append(md.Attributes, psdp.Attribute{
			Key:   "fmtp",
			Value: pt + " " + encodeFMTP(fmtp),
		})
	}

	return md
}

// MarshalSession encodes formats into a session description, one media per format.
func MarshalSession(formats []Format) ([]byte, error) {
	sd := &psdp.SessionDescription{
		Origin: psdp.Origin{
			Username:       "-",
			NetworkType:    "IN",
			AddressType:    "IP4",
			UnicastAddress: "127.0.0.1",
		},
		SessionName: "codecpump",
		TimeDescriptions: []psdp.TimeDescription{
			{Timing: psdp.Timing{}},
		},
	}

	for _, f := range formats {
		sd.MediaDescriptions = append(sd.MediaDescriptions, Marshal(f))
	}

	return sd.Marshal()
}

// ParseSession decodes the first format of every media of a session description.
func ParseSession(buf []byte) ([]Format, error) {
	var sd psdp.SessionDescription
	err := sd.Unmarshal(buf)
	if err != nil {
		return nil, err
	}

	formats := make([]Format, 0, len(sd.MediaDescriptions))

	for i, md := range sd.MediaDescriptions {
		if len(md.MediaName.Formats) == 0 {
			return nil, fmt.Errorf("media %d has no formats", i)
		}

		f, err := Unmarshal(md, md.MediaName.Formats[0])
		if err != nil {
			return nil, fmt.Errorf("media %d: %w", i, err)
		}

		formats = append(formats, f)
	}

	return formats, nil
}

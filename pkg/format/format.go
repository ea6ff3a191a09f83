// Package format contains format descriptors of the streams driven through engines.
package format

import (
	"fmt"
	"strconv"
	"strings"

	psdp "github.com/pion/sdp/v3"
)

// mediaParams are the parameters of a payload type of a media description.
type mediaParams struct {
	payloadType uint8

	// rtpmap attribute, without payload type.
	rtpMap string

	// encoding name (lower case), clock rate and encoding parameters of rtpMap.
	encoding       string
	clockRate      string
	encodingParams string

	fmtp map[string]string
}

// payloadAttribute returns the value of the first attribute with the given key
// that refers to payloadType.
func payloadAttribute(md *psdp.MediaDescription, key string, payloadType uint8) string {
	for _, attr := range md.Attributes {
		if attr.Key != key {
			continue
		}

		pt, val, ok := strings.Cut(strings.TrimSpace(attr.Value), " ")
		if !ok {
			continue
		}

		v, err := strconv.ParseUint(pt, 10, 8)
		if err == nil && uint8(v) == payloadType {
			return strings.TrimSpace(val)
		}
	}
	return ""
}

func parseFMTP(v string) map[string]string {
	if v == "" {
		return nil
	}

	ret := make(map[string]string)

	for _, kv := range strings.Split(v, ";") {
		key, val, ok := strings.Cut(strings.TrimSpace(kv), "=")
		if ok && key != "" {
			ret[strings.ToLower(key)] = val
		}
	}

	return ret
}

func parseMediaParams(md *psdp.MediaDescription, payloadTypeStr string) (*mediaParams, error) {
	tmp, err := strconv.ParseUint(payloadTypeStr, 10, 8)
	if err != nil {
		return nil, fmt.Errorf("invalid payload type (%s)", payloadTypeStr)
	}

	p := &mediaParams{
		payloadType: uint8(tmp),
	}

	p.rtpMap = payloadAttribute(md, "rtpmap", p.payloadType)
	if p.rtpMap != "" {
		parts := strings.SplitN(p.rtpMap, "/", 3)
		p.encoding = strings.ToLower(parts[0])
		if len(parts) >= 2 {
			p.clockRate = parts[1]
		}
		if len(parts) == 3 {
			p.encodingParams = parts[2]
		}
	}

	p.fmtp = parseFMTP(payloadAttribute(md, "fmtp", p.payloadType))

	return p, nil
}

func isDynamicPayloadType(v uint8) bool {
	return v >= 96 && v <= 127
}

// Format is a stream format.
// It is applied to engines through Configure() and reported back as output format.
type Format interface {
	unmarshal(p *mediaParams) error

	// Codec returns the codec name.
	Codec() string

	// MediaType returns the media type ("video" or "audio").
	MediaType() string

	// ClockRate returns the clock rate.
	ClockRate() int

	// PayloadType returns the payload type.
	PayloadType() uint8

	// RTPMap returns the rtpmap attribute.
	RTPMap() string

	// FMTP returns the fmtp attribute.
	FMTP() map[string]string
}

// Unmarshal decodes a format from a media description.
func Unmarshal(md *psdp.MediaDescription, payloadTypeStr string) (Format, error) {
	p, err := parseMediaParams(md, payloadTypeStr)
	if err != nil {
		return nil, err
	}

	var forma Format

	switch {
	case p.encoding == "h264" && p.clockRate == "90000" && isDynamicPayloadType(p.payloadType):
		forma = &H264{}

	case (p.encoding == "l8" || p.encoding == "l16" || p.encoding == "l24") && isDynamicPayloadType(p.payloadType):
		forma = &LPCM{}

	// static L16 payload types
	case p.payloadType == 10 || p.payloadType == 11:
		forma = &LPCM{}

	case p.payloadType == 33:
		forma = &MPEGTS{}

	default:
		return nil, fmt.Errorf("unsupported format (payload type %d, rtpmap '%s')", p.payloadType, p.rtpMap)
	}

	err = forma.unmarshal(p)
	if err != nil {
		return nil, err
	}

	return forma, nil
}

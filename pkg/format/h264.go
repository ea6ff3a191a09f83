package format

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// H264 is the format of H264 streams.
// Specification: https://datatracker.ietf.org/doc/html/rfc6184
type H264 struct {
	PayloadTyp        uint8
	SPS               []byte
	PPS               []byte
	PacketizationMode int

	mutex sync.RWMutex
}

// decodeParameterSets decodes a sprop-parameter-sets value.
// Only the first two sets (SPS and PPS) are kept.
func decodeParameterSets(v string) ([]byte, []byte, error) {
	spsEnc, rest, ok := strings.Cut(v, ",")
	if !ok {
		return nil, nil, fmt.Errorf("invalid sprop-parameter-sets (%v)", v)
	}
	ppsEnc, _, _ := strings.Cut(rest, ",")

	sps, err := base64.StdEncoding.DecodeString(spsEnc)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid sprop-parameter-sets (%v)", v)
	}

	pps, err := base64.StdEncoding.DecodeString(ppsEnc)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid sprop-parameter-sets (%v)", v)
	}

	// parameters are sometimes shipped with an Annex-B start code
	startCode := []byte{0, 0, 0, 1}
	return bytes.TrimPrefix(sps, startCode), bytes.TrimPrefix(pps, startCode), nil
}

func (f *H264) unmarshal(p *mediaParams) error {
	f.PayloadTyp = p.payloadType

	if v, ok := p.fmtp["packetization-mode"]; ok {
		mode, err := strconv.Atoi(v)
		if err != nil || mode < 0 || mode > 2 {
			return fmt.Errorf("invalid packetization-mode (%v)", v)
		}
		f.PacketizationMode = mode
	}

	if v, ok := p.fmtp["sprop-parameter-sets"]; ok {
		sps, pps, err := decodeParameterSets(v)
		if err != nil {
			return err
		}
		f.SPS, f.PPS = sps, pps
	}

	return nil
}

// Codec implements Format.
func (f *H264) Codec() string {
	return "H264"
}

// MediaType implements Format.
func (f *H264) MediaType() string {
	return "video"
}

// ClockRate implements Format.
func (f *H264) ClockRate() int {
	return 90000
}

// PayloadType implements Format.
func (f *H264) PayloadType() uint8 {
	return f.PayloadTyp
}

// RTPMap implements Format.
func (f *H264) RTPMap() string {
	return "H264/90000"
}

// FMTP implements Format.
func (f *H264) FMTP() map[string]string {
	sps, pps := f.SafeParams()
	fmtp := make(map[string]string)

	if f.PacketizationMode != 0 {
		fmtp["packetization-mode"] = strconv.Itoa(f.PacketizationMode)
	}

	if sps != nil && pps != nil {
		fmtp["sprop-parameter-sets"] = base64.StdEncoding.EncodeToString(sps) + "," +
			base64.StdEncoding.EncodeToString(pps)
	}

	// profile_idc, constraint flags and level_idc
	if len(sps) >= 4 {
		fmtp["profile-level-id"] = strings.ToUpper(hex.EncodeToString(sps[1:4]))
	}

	return fmtp
}

// SafeSetParams sets the codec parameters.
// Decoders call it when parameters are found in band.
func (f *H264) SafeSetParams(sps []byte, pps []byte) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.SPS = sps
	f.PPS = pps
}

// SafeParams returns the codec parameters.
func (f *H264) SafeParams() ([]byte, []byte) {
	f.mutex.RLock()
	defer f.mutex.RUnlock()
	return f.SPS, f.PPS
}

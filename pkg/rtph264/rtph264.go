// Package rtph264 contains a RTP/H264 encoder and decoder.
// Specification: https://datatracker.ietf.org/doc/html/rfc6184
package rtph264

import (
	"crypto/rand"
)

const (
	rtpVersion            = 2
	rtpClockRate          = 90000
	defaultPayloadMaxSize = 1460 // 1500 (UDP MTU) - 20 (IP header) - 8 (UDP header) - 12 (RTP header)
)

func randUint32() (uint32, error) {
	var b [4]byte
	_, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), nil
}

// timestamp converts a presentation timestamp in microseconds into a RTP timestamp.
func timestamp(initial uint32, ptsUs int64) uint32 {
	// seconds and remainder are converted separately to avoid overflows
	secs := ptsUs / 1000000
	rem := ptsUs % 1000000
	return initial + uint32(secs*rtpClockRate+rem*rtpClockRate/1000000)
}

// Package processor contains processors that can be hosted by a codec.Codec.
//
// Packetizers and protectors exchange RTP packets wrapped into frames,
// one output unit for each input unit.
package processor

import (
	"fmt"

	"github.com/bluenviron/codecpump/pkg/format"
)

func errUnsupportedFormat(f format.Format) error {
	return fmt.Errorf("unsupported format: %s", f.Codec())
}

package codec

import (
	"bytes"

	"framecast/pkg/models"
)

// H.264 NAL unit types the splitter cares about.
const (
	NALUnitTypeIDR = 5
	NALUnitTypeSPS = 7
	NALUnitTypePPS = 8
	NALUnitTypeAUD = 9
)

// Annex-B start codes.
var (
	StartCode4 = []byte{0x00, 0x00, 0x00, 0x01}
	StartCode3 = []byte{0x00, 0x00, 0x01}
)

// AccessUnitSplitter cuts a raw Annex-B H.264 byte stream into access
// units. The encoder is configured to emit an access unit delimiter (AUD)
// NAL in front of every frame, so a packet spans one AUD up to the byte
// before the next. A packet is flagged as a keyframe when it contains an
// IDR slice.
type AccessUnitSplitter struct {
	buf []byte
}

// Push appends stream bytes and returns every access unit completed so
// far. The returned packets own their buffers; the splitter keeps only the
// trailing incomplete unit.
func (s *AccessUnitSplitter) Push(data []byte) []models.EncoderPacket {
	s.buf = append(s.buf, data...)

	var packets []models.EncoderPacket
	for {
		first := indexAUD(s.buf, 0)
		if first < 0 {
			break
		}
		next := indexAUD(s.buf, first+len(StartCode3))
		if next < 0 {
			// Drop garbage before the first AUD, keep the open unit.
			if first > 0 {
				s.buf = append([]byte(nil), s.buf[first:]...)
			}
			break
		}
		unit := append([]byte(nil), s.buf[first:next]...)
		s.buf = s.buf[next:]
		packets = append(packets, models.EncoderPacket{
			Data:     unit,
			Keyframe: ContainsIDR(unit),
		})
	}
	return packets
}

// ContainsIDR reports whether the Annex-B data contains an IDR slice NAL.
func ContainsIDR(data []byte) bool {
	for offset := 0; ; {
		start, codeLen := nextStartCode(data, offset)
		if start < 0 {
			return false
		}
		nalStart := start + codeLen
		if nalStart >= len(data) {
			return false
		}
		if data[nalStart]&0x1F == NALUnitTypeIDR {
			return true
		}
		offset = nalStart
	}
}

// indexAUD returns the offset of the start code beginning an AUD NAL at or
// after from, or -1.
func indexAUD(data []byte, from int) int {
	for offset := from; ; {
		start, codeLen := nextStartCode(data, offset)
		if start < 0 {
			return -1
		}
		nalStart := start + codeLen
		if nalStart >= len(data) {
			return -1
		}
		if data[nalStart]&0x1F == NALUnitTypeAUD {
			return start
		}
		offset = nalStart
	}
}

// nextStartCode locates the next 3- or 4-byte start code at or after
// offset, returning its position and length, or (-1, 0).
func nextStartCode(data []byte, offset int) (int, int) {
	i := bytes.Index(data[offset:], StartCode3)
	if i < 0 {
		return -1, 0
	}
	pos := offset + i
	// A 3-byte match preceded by a zero is really a 4-byte code.
	if pos > 0 && data[pos-1] == 0x00 {
		return pos - 1, 4
	}
	return pos, 3
}

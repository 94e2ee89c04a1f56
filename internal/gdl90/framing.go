package gdl90

import "fmt"

// Async HDLC-style framing used on the wire: every message is followed by a
// CRC-CCITT (low byte first), then 0x7E/0x7D are byte-stuffed and the result
// is wrapped in 0x7E flags.
const (
	flagByte   = 0x7E
	escapeByte = 0x7D
	escapeXor  = 0x20
)

// Frame wraps one unframed message (message ID + payload).
func Frame(message []byte) []byte {
	crc := checksum(message)
	out := make([]byte, 0, 2*len(message)+6)
	out = append(out, flagByte)
	out = stuff(out, message)
	out = stuff(out, []byte{byte(crc), byte(crc >> 8)})
	return append(out, flagByte)
}

// Unframe reverses Frame. It returns the message without its CRC, whether the
// CRC matched, and an error when the frame is structurally broken.
func Unframe(frame []byte) (msg []byte, crcOK bool, err error) {
	if len(frame) < 4 {
		return nil, false, fmt.Errorf("frame too short: %d", len(frame))
	}
	if frame[0] != flagByte || frame[len(frame)-1] != flagByte {
		return nil, false, fmt.Errorf("missing start/end flags")
	}
	raw, err := unstuff(frame[1 : len(frame)-1])
	if err != nil {
		return nil, false, err
	}
	if len(raw) < 3 {
		return nil, false, fmt.Errorf("unescaped payload too short: %d", len(raw))
	}
	n := len(raw) - 2
	got := uint16(raw[n]) | uint16(raw[n+1])<<8
	return raw[:n], got == checksum(raw[:n]), nil
}

func stuff(dst, src []byte) []byte {
	for _, b := range src {
		if b == flagByte || b == escapeByte {
			dst = append(dst, escapeByte, b^escapeXor)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

func unstuff(body []byte) ([]byte, error) {
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		b := body[i]
		if b != escapeByte {
			out = append(out, b)
			continue
		}
		if i+1 >= len(body) {
			return nil, fmt.Errorf("truncated escape at end of frame")
		}
		i++
		out = append(out, body[i]^escapeXor)
	}
	return out, nil
}

// checksum is the GDL90 CRC: polynomial 0x1021, zero init, with the data byte
// folded in after the table lookup.
func checksum(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc = crcTable[crc>>8] ^ crc<<8 ^ uint16(b)
	}
	return crc
}

var crcTable = makeCRCTable(0x1021)

func makeCRCTable(poly uint16) (t [256]uint16) {
	for i := range t {
		c := uint16(i) << 8
		for range 8 {
			if c&0x8000 != 0 {
				c = c<<1 ^ poly
			} else {
				c <<= 1
			}
		}
		t[i] = c
	}
	return t
}

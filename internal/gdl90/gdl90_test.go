package gdl90

import "testing"

func TestFrame_StartEndFlags(t *testing.T) {
	got := Frame([]byte{0x00, 0x01})
	if len(got) < 2 {
		t.Fatalf("frame too short: %d", len(got))
	}
	if got[0] != flagByte {
		t.Fatalf("missing start flag: 0x%02x", got[0])
	}
	if got[len(got)-1] != flagByte {
		t.Fatalf("missing end flag: 0x%02x", got[len(got)-1])
	}
}

func TestFrame_EscapesControlBytes(t *testing.T) {
	// Force both bytes that must be escaped.
	got := Frame([]byte{0x00, flagByte, escapeByte})
	for i := 1; i < len(got)-1; i++ {
		if got[i] == flagByte {
			t.Fatalf("unescaped flag byte found at %d", i)
		}
	}
}

func TestUnframe_RoundTrip(t *testing.T) {
	in := []byte{0x65, flagByte, 0x01, escapeByte, 0xFF}
	msg, crcOK, err := Unframe(Frame(in))
	if err != nil {
		t.Fatalf("Unframe: %v", err)
	}
	if !crcOK {
		t.Fatalf("crc not ok")
	}
	if string(msg) != string(in) {
		t.Fatalf("payload mismatch: got % X want % X", msg, in)
	}
}

func TestUnframe_Errors(t *testing.T) {
	cases := map[string][]byte{
		"short":     {flagByte, 0x00, flagByte},
		"no flags":  {0x00, 0x01, 0x02, 0x03},
		"truncated": {flagByte, 0x00, 0x01, escapeByte, flagByte},
	}
	for name, frame := range cases {
		if _, _, err := Unframe(frame); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}

	bad := Frame([]byte{0x00, 0x01})
	bad[1] ^= 0x01
	if _, crcOK, err := Unframe(bad); err != nil || crcOK {
		t.Fatalf("expected crc failure without error, got crcOK=%v err=%v", crcOK, err)
	}
}

func TestFrame_ICDHeartbeatExample(t *testing.T) {
	// Worked heartbeat example from the GDL 90 ICD (560-1058-00).
	got := Frame([]byte{0x00, 0x81, 0x41, 0xDB, 0xD0, 0x08, 0x02})
	want := []byte{0x7E, 0x00, 0x81, 0x41, 0xDB, 0xD0, 0x08, 0x02, 0xB3, 0x8B, 0x7E}
	if string(got) != string(want) {
		t.Fatalf("frame=% X want % X", got, want)
	}
}

func TestFrame_EscapesCRCBytes(t *testing.T) {
	// Find a message whose CRC contains a flag or escape byte and check the
	// round trip still holds.
	for i := 0; i < 256; i++ {
		msg := []byte{0x00, byte(i)}
		crc := checksum(msg)
		lo, hi := byte(crc), byte(crc>>8)
		if lo != flagByte && lo != escapeByte && hi != flagByte && hi != escapeByte {
			continue
		}
		got, crcOK, err := Unframe(Frame(msg))
		if err != nil || !crcOK || string(got) != string(msg) {
			t.Fatalf("msg % X: got % X crcOK=%v err=%v", msg, got, crcOK, err)
		}
		return
	}
	t.Skip("no CRC with a control byte in the search range")
}

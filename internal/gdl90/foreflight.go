package gdl90

import "strings"

const (
	defaultShortName = "Omega"
	defaultLongName  = "Omega-AHRS"
)

// ForeFlightIDFrame builds the ForeFlight ID message (0x65/0x00) that names
// the device in the app. The serial number is reported as unknown and no
// capability bits are set since no ownship reports are sent.
func ForeFlightIDFrame(shortName string, longName string) []byte {
	msg := make([]byte, 39)
	msg[0] = msgForeFlight
	msg[1] = ffSubID
	msg[2] = 0x01 // version
	for i := 3; i < 11; i++ {
		msg[i] = 0xFF
	}
	copy(msg[11:19], idName(shortName, defaultShortName, 8))
	copy(msg[19:35], idName(longName, defaultLongName, 16))
	return Frame(msg)
}

func idName(s, def string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		s = def
	}
	if len(s) > max {
		s = s[:max]
	}
	return s
}

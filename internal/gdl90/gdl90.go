// Package gdl90 encodes filter output as GDL90 messages understood by EFB
// apps: the standard and Stratux heartbeats, the ForeFlight ID and AHRS
// messages, and the Stratux "LE" AHRS report.
package gdl90

import "time"

// Message IDs.
const (
	msgHeartbeat        = 0x00
	msgStratuxHeartbeat = 0xCC
	msgForeFlight       = 0x65
	msgLevil            = 0x4C

	ffSubID   = 0x00
	ffSubAHRS = 0x01
)

// HeartbeatFrame builds the standard heartbeat (0x00) for the current time.
func HeartbeatFrame(gpsValid bool, maintenanceRequired bool) []byte {
	return HeartbeatFrameAt(time.Now(), gpsValid, maintenanceRequired)
}

// HeartbeatFrameAt is HeartbeatFrame with an explicit timestamp.
//
// Status byte 1: bit0 UAT initialized, bit4 address talkback, bit6
// maintenance required, bit7 UTC OK (tied to gpsValid here). The 17-bit
// seconds-since-0000Z timestamp puts its high bit in byte 2 bit7.
func HeartbeatFrameAt(now time.Time, gpsValid bool, maintenanceRequired bool) []byte {
	status1 := byte(0x11)
	if gpsValid {
		status1 |= 0x80
	}
	if maintenanceRequired {
		status1 |= 0x40
	}

	utc := now.UTC()
	secs := uint32(utc.Hour()*3600 + utc.Minute()*60 + utc.Second())

	return Frame([]byte{
		msgHeartbeat,
		status1,
		byte((secs>>16)<<7) | 0x01,
		byte(secs),
		byte(secs >> 8),
		0x00, 0x00, // uplink/basic+long message counts
	})
}

// StratuxHeartbeatFrame builds the Stratux heartbeat (0xCC): bit0 AHRS valid,
// bit1 GPS valid, protocol version 1 in bits 2..7.
func StratuxHeartbeatFrame(gpsValid bool, ahrsValid bool) []byte {
	status := byte(1 << 2)
	if ahrsValid {
		status |= 0x01
	}
	if gpsValid {
		status |= 0x02
	}
	return Frame([]byte{msgStratuxHeartbeat, status})
}

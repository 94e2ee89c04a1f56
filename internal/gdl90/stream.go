package gdl90

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"omega-ahrs/internal/ahrs"
)

// Sender transmits one framed GDL90 message.
type Sender interface {
	Send(frame []byte) error
}

// StreamConfig controls message rates of a Stream.
type StreamConfig struct {
	// AHRSInterval is the minimum spacing of AHRS reports. Stratux sends them
	// at 5 Hz.
	AHRSInterval time.Duration
	// HeartbeatInterval is the spacing of the heartbeat group (standard,
	// Stratux and ForeFlight ID messages).
	HeartbeatInterval time.Duration
	ShortName         string
	LongName          string
}

// Stream turns filter snapshots into a rate-limited GDL90 message stream.
// It implements the snapshot sink used by the simulation runner.
type Stream struct {
	mu     sync.Mutex
	sender Sender
	cfg    StreamConfig
	now    func() time.Time

	lastAHRS      time.Time
	lastHeartbeat time.Time
	sent          uint64
	errors        uint64
}

func NewStream(sender Sender, cfg StreamConfig) *Stream {
	if cfg.AHRSInterval <= 0 {
		cfg.AHRSInterval = 200 * time.Millisecond
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = time.Second
	}
	return &Stream{sender: sender, cfg: cfg, now: time.Now}
}

// PublishSnapshot sends whatever messages are due at the current time.
// Send errors are logged and counted; they never stop the caller.
func (s *Stream) PublishSnapshot(snap ahrs.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.lastHeartbeat.IsZero() || now.Sub(s.lastHeartbeat) >= s.cfg.HeartbeatInterval {
		s.lastHeartbeat = now
		s.send(HeartbeatFrameAt(now, false, false))
		s.send(StratuxHeartbeatFrame(false, snap.Valid))
		s.send(ForeFlightIDFrame(s.cfg.ShortName, s.cfg.LongName))
	}
	if s.lastAHRS.IsZero() || now.Sub(s.lastAHRS) >= s.cfg.AHRSInterval {
		s.lastAHRS = now
		att := AttitudeFromSnapshot(snap)
		s.send(AHRSGDL90LEFrame(att))
		s.send(ForeFlightAHRSFrame(att))
	}
}

// Stats returns the number of frames sent and send errors so far.
func (s *Stream) Stats() (sent, errs uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent, s.errors
}

func (s *Stream) send(frame []byte) {
	if err := s.sender.Send(frame); err != nil {
		s.errors++
		// First error, then every 100th.
		if s.errors == 1 || s.errors%100 == 0 {
			log.WithError(err).WithField("errors", s.errors).Warn("gdl90 send failed")
		}
		return
	}
	s.sent++
}

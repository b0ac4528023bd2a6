package core

import (
	"github.com/rs/zerolog"
)

// FrameEncoder compresses an RGB frame to a binary wire format (JPEG).
// The encoder itself is an out-of-scope external collaborator (spec
// §1); this is its only seam into the core. Implementations are
// expected to reuse an output buffer across calls on the same caller
// (spec §4.9, §9 "thread-local compression buffers").
type FrameEncoder interface {
	Encode(frame Frame, quality int) ([]byte, error)
}

// defaultJPEGQuality is used when the configured jpegQuality is absent
// or outside [1,100].
const defaultJPEGQuality = 75

// FrameEgress compresses and fans out frames for one session. A
// FrameEgress is meant to be owned by the goroutine that calls
// SendFrame repeatedly (typically the session's own thread), so its
// encoder's output buffer is only ever touched by one caller at a time
// — the Go analogue of the original's thread-local buffer.
type FrameEgress struct {
	SessionID   string
	Session     Session
	Encoder     FrameEncoder
	Broadcaster *Broadcaster
	Config      ConfigProvider
	Log         *zerolog.Logger
}

// NewFrameEgress builds a FrameEgress for one session.
func NewFrameEgress(sessionID string, session Session, encoder FrameEncoder, broadcaster *Broadcaster, cfg ConfigProvider, log *zerolog.Logger) *FrameEgress {
	return &FrameEgress{
		SessionID:   sessionID,
		Session:     session,
		Encoder:     encoder,
		Broadcaster: broadcaster,
		Config:      cfg,
		Log:         log,
	}
}

// SendFrame pulls the latest frame from the session, compresses it, and
// fans the resulting bytes out to every viewer of the session. A
// zero-dimension frame (no current buffer) is skipped.
func (e *FrameEgress) SendFrame() {
	frame := e.Session.Frames().Frame()
	if frame.Width == 0 || frame.Height == 0 {
		return
	}

	quality := defaultJPEGQuality
	if e.Config != nil {
		if q := e.Config.Snapshot().JPEGQuality; q >= 1 && q <= 100 {
			quality = q
		}
	}

	data, err := e.Encoder.Encode(frame, quality)
	if err != nil {
		if e.Log != nil {
			e.Log.Warn().Err(err).Str("emu_id", e.SessionID).Msg("frame encode failed")
		}
		return
	}

	e.Broadcaster.SessionBinary(e.SessionID, data)
}

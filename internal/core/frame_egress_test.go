package core

import (
	"errors"
	"testing"
)

var errEncodeFailed = errors.New("encode failed")

// stubEncoder records the frame and quality it was asked to encode and
// returns a fixed payload, so tests can assert on what SendFrame fans
// out without pulling in a real JPEG encoder.
type stubEncoder struct {
	lastFrame   Frame
	lastQuality int
	payload     []byte
	err         error
}

func (e *stubEncoder) Encode(frame Frame, quality int) ([]byte, error) {
	e.lastFrame = frame
	e.lastQuality = quality
	if e.err != nil {
		return nil, e.err
	}
	return e.payload, nil
}

func TestSendFrameSkipsZeroDimensionFrames(t *testing.T) {
	session := newFakeSession("emu1")
	encoder := &stubEncoder{payload: []byte("jpeg")}
	users := NewUserRegistry()
	broadcaster := NewBroadcaster(users, nil)

	egress := NewFrameEgress("emu1", session, encoder, broadcaster, defaultTestConfig(), nil)
	egress.SendFrame()

	if encoder.lastFrame.Width != 0 {
		t.Fatal("expected Encode not to be called for a zero-dimension frame")
	}
}

func TestSendFrameBroadcastsEncodedBytesToSessionViewers(t *testing.T) {
	session := newFakeSession("emu1")
	session.frames.frame = Frame{Width: 4, Height: 4, RGB: make([]byte, 4*4*3)}

	encoder := &stubEncoder{payload: []byte("jpeg-bytes")}
	users := NewUserRegistry()
	broadcaster := NewBroadcaster(users, nil)

	viewer := newFakeHandle("viewer")
	u := users.OnConnect(viewer, "127.0.0.1")
	u.setConnectedEmu("emu1")

	cfg := defaultTestConfig()
	egress := NewFrameEgress("emu1", session, encoder, broadcaster, cfg, nil)
	egress.SendFrame()

	if encoder.lastQuality != cfg.cfg.JPEGQuality {
		t.Fatalf("expected quality %d, got %d", cfg.cfg.JPEGQuality, encoder.lastQuality)
	}
	msgs := viewer.binary
	if len(msgs) != 1 || string(msgs[0]) != "jpeg-bytes" {
		t.Fatalf("expected the viewer to receive the encoded frame, got %v", msgs)
	}
}

func TestSendFrameSkipsEncodeErrors(t *testing.T) {
	session := newFakeSession("emu1")
	session.frames.frame = Frame{Width: 2, Height: 2, RGB: make([]byte, 2*2*3)}

	encoder := &stubEncoder{err: errEncodeFailed}
	users := NewUserRegistry()
	broadcaster := NewBroadcaster(users, nil)

	viewer := newFakeHandle("viewer")
	u := users.OnConnect(viewer, "127.0.0.1")
	u.setConnectedEmu("emu1")

	egress := NewFrameEgress("emu1", session, encoder, broadcaster, defaultTestConfig(), nil)
	egress.SendFrame()

	if len(viewer.binary) != 0 {
		t.Fatal("expected no binary frame to be sent when encoding fails")
	}
}

// Package frame provides the default FrameEncoder implementation:
// stdlib JPEG compression of the row-major RGB buffers core.Frame
// carries. The encoder is named in spec.md §1 as an out-of-scope
// external collaborator, specified only at core.FrameEncoder's
// interface; no pack example ships a third-party JPEG codec, so this
// stays on the standard library deliberately (see DESIGN.md).
package frame

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"github.com/vovakirdan/letsplay-server/internal/core"
)

// Encoder compresses frames to JPEG. It is not safe for concurrent use:
// callers are expected to own one Encoder per session/goroutine, the Go
// analogue of the original's thread-local compression buffer (spec §9).
type Encoder struct {
	buf bytes.Buffer
}

// New returns a fresh, unshared Encoder.
func New() *Encoder { return &Encoder{} }

// Encode implements core.FrameEncoder.
func (e *Encoder) Encode(frame core.Frame, quality int) ([]byte, error) {
	if frame.Width <= 0 || frame.Height <= 0 {
		return nil, fmt.Errorf("frame: zero-dimension frame")
	}
	if want := frame.Width * frame.Height * 3; len(frame.RGB) < want {
		return nil, fmt.Errorf("frame: RGB buffer too short: have %d want %d", len(frame.RGB), want)
	}

	img := image.NewRGBA(image.Rect(0, 0, frame.Width, frame.Height))
	for y := 0; y < frame.Height; y++ {
		rowStart := y * frame.Width * 3
		for x := 0; x < frame.Width; x++ {
			i := rowStart + x*3
			o := img.PixOffset(x, y)
			img.Pix[o+0] = frame.RGB[i+0]
			img.Pix[o+1] = frame.RGB[i+1]
			img.Pix[o+2] = frame.RGB[i+2]
			img.Pix[o+3] = 0xff
		}
	}

	e.buf.Reset()
	if err := jpeg.Encode(&e.buf, img, &jpeg.Options{Quality: clampQuality(quality)}); err != nil {
		return nil, err
	}

	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}

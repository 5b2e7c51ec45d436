package recorder

import (
	"bytes"
	"fmt"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"layeh.com/gopus"

	"github.com/MrWong99/miniexplorer/pkg/audio"
)

const (
	opusFrameMs = 20

	// Ogg Opus granule positions always count 48 kHz samples.
	opusGranuleRate = 48000
	opusGranuleStep = opusGranuleRate * opusFrameMs / 1000

	opusMaxPacket = 4000
)

// opusRates lists the input rates libopus accepts.
var opusRates = map[int]bool{8000: true, 12000: true, 16000: true, 24000: true, 48000: true}

// opusEncoder encodes each complete 20 ms frame as it arrives and writes it
// to an in-memory Ogg stream.
type opusEncoder struct {
	rate      int
	frameSize int
	enc       *gopus.Encoder

	buf     bytes.Buffer
	ogg     *oggwriter.OggWriter
	pending []int16
	seq     uint16
	ts      uint32
	samples int
}

func newOpusEncoder(rate int) (*opusEncoder, error) {
	if !opusRates[rate] {
		return nil, fmt.Errorf("opus: unsupported sample rate %d", rate)
	}
	enc, err := gopus.NewEncoder(rate, 1, gopus.Voip)
	if err != nil {
		return nil, fmt.Errorf("opus: create encoder: %w", err)
	}
	return &opusEncoder{
		rate:      rate,
		frameSize: rate * opusFrameMs / 1000,
		enc:       enc,
	}, nil
}

func (e *opusEncoder) begin() error {
	ogg, err := oggwriter.NewWith(&e.buf, uint32(e.rate), 1)
	if err != nil {
		return fmt.Errorf("opus: open ogg stream: %w", err)
	}
	e.ogg = ogg
	return nil
}

func (e *opusEncoder) write(frame audio.AudioFrame) error {
	if e.ogg == nil {
		return fmt.Errorf("opus: write before begin")
	}
	e.pending = append(e.pending, audio.Quantize16(frame.Samples)...)
	for len(e.pending) >= e.frameSize {
		if err := e.encodeFrame(e.pending[:e.frameSize]); err != nil {
			return err
		}
		e.pending = e.pending[e.frameSize:]
	}
	return nil
}

func (e *opusEncoder) encodeFrame(pcm []int16) error {
	packet, err := e.enc.Encode(pcm, e.frameSize, opusMaxPacket)
	if err != nil {
		return fmt.Errorf("opus: encode: %w", err)
	}
	err = e.ogg.WriteRTP(&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    111,
			SequenceNumber: e.seq,
			Timestamp:      e.ts,
		},
		Payload: packet,
	})
	if err != nil {
		return fmt.Errorf("opus: write ogg page: %w", err)
	}
	e.seq++
	e.ts += opusGranuleStep
	e.samples += e.frameSize
	return nil
}

func (e *opusEncoder) finish() (Clip, error) {
	if e.ogg == nil {
		return Clip{}, fmt.Errorf("opus: finish before begin")
	}
	// Pad the tail to a whole frame with silence.
	if len(e.pending) > 0 {
		tail := make([]int16, e.frameSize)
		copy(tail, e.pending)
		e.pending = nil
		if err := e.encodeFrame(tail); err != nil {
			return Clip{}, err
		}
	}
	if err := e.ogg.Close(); err != nil {
		return Clip{}, fmt.Errorf("opus: close ogg stream: %w", err)
	}
	e.ogg = nil

	data := make([]byte, e.buf.Len())
	copy(data, e.buf.Bytes())
	return Clip{
		Data:       data,
		MIMEType:   "audio/ogg; codecs=opus",
		SampleRate: e.rate,
		Duration:   time.Duration(e.samples) * time.Second / time.Duration(e.rate),
	}, nil
}

func (e *opusEncoder) reset() {
	e.buf.Reset()
	e.ogg = nil
	e.pending = nil
	e.seq = 0
	e.ts = 0
	e.samples = 0
}

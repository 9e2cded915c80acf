package capture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/hraban/opus"
)

// Encoding finalizes buffered PCM chunks into a single tagged blob. The
// recorder walks an ordered preference list and picks the first encoding the
// runtime supports, degrading rather than failing outright.
type Encoding interface {
	MIMEType() string
	Supported() bool
	Encode(chunks [][]byte) ([]byte, error)
}

// DefaultEncodings is the ordered preference chain: Opus first, plain WAV
// as the universally-supported last resort.
func DefaultEncodings(sampleRate int) []Encoding {
	return []Encoding{
		NewOpusEncoding(sampleRate),
		NewWAVEncoding(sampleRate),
	}
}

func negotiateEncoding(encodings []Encoding) Encoding {
	for _, e := range encodings {
		if e.Supported() {
			return e
		}
	}
	return nil
}

// OpusEncoding encodes PCM16LE mono into a length-prefixed Opus packet
// stream in 20ms frames.
type OpusEncoding struct {
	sampleRate int

	once sync.Once
	enc  *opus.Encoder
	err  error
}

// NewOpusEncoding constructs the preferred encoding. Support is probed
// lazily on first use; Opus requires an 8/12/16/24/48kHz rate.
func NewOpusEncoding(sampleRate int) *OpusEncoding {
	return &OpusEncoding{sampleRate: sampleRate}
}

func (o *OpusEncoding) init() {
	o.once.Do(func() {
		o.enc, o.err = opus.NewEncoder(o.sampleRate, 1, opus.AppVoIP)
	})
}

func (o *OpusEncoding) MIMEType() string { return "audio/opus" }

func (o *OpusEncoding) Supported() bool {
	switch o.sampleRate {
	case 8000, 12000, 16000, 24000, 48000:
	default:
		return false
	}
	o.init()
	return o.err == nil
}

func (o *OpusEncoding) Encode(chunks [][]byte) ([]byte, error) {
	o.init()
	if o.err != nil {
		return nil, fmt.Errorf("opus encoder unavailable: %w", o.err)
	}

	// Gather all chunks into one int16 buffer, then cut 20ms frames.
	var total int
	for _, c := range chunks {
		total += len(c) / 2
	}
	pcm := make([]int16, 0, total)
	for _, c := range chunks {
		for i := 0; i+1 < len(c); i += 2 {
			pcm = append(pcm, int16(binary.LittleEndian.Uint16(c[i:i+2])))
		}
	}

	frameSamples := o.sampleRate / 50 // 20ms
	var out bytes.Buffer
	packet := make([]byte, 4000)
	for off := 0; off < len(pcm); off += frameSamples {
		frame := make([]int16, frameSamples)
		copy(frame, pcm[off:min(off+frameSamples, len(pcm))])
		n, err := o.enc.Encode(frame, packet)
		if err != nil {
			return nil, fmt.Errorf("opus encode: %w", err)
		}
		var lenHdr [2]byte
		binary.BigEndian.PutUint16(lenHdr[:], uint16(n))
		out.Write(lenHdr[:])
		out.Write(packet[:n])
	}
	return out.Bytes(), nil
}

// WAVEncoding wraps raw PCM16LE mono in a RIFF/WAVE header. It is always
// supported and closes the degradation chain.
type WAVEncoding struct {
	sampleRate int
}

func NewWAVEncoding(sampleRate int) *WAVEncoding {
	return &WAVEncoding{sampleRate: sampleRate}
}

func (w *WAVEncoding) MIMEType() string { return "audio/wav" }

func (w *WAVEncoding) Supported() bool { return w.sampleRate > 0 }

func (w *WAVEncoding) Encode(chunks [][]byte) ([]byte, error) {
	var dataLen int
	for _, c := range chunks {
		dataLen += len(c)
	}
	var out bytes.Buffer
	out.Grow(44 + dataLen)
	writeWAVHeader(&out, w.sampleRate, dataLen)
	for _, c := range chunks {
		out.Write(c)
	}
	return out.Bytes(), nil
}

// WrapPCMInWAV builds a complete WAV file around one PCM16LE mono buffer.
func WrapPCMInWAV(pcm []byte, sampleRate int) []byte {
	var out bytes.Buffer
	out.Grow(44 + len(pcm))
	writeWAVHeader(&out, sampleRate, len(pcm))
	out.Write(pcm)
	return out.Bytes()
}

func writeWAVHeader(out *bytes.Buffer, sampleRate, dataLen int) {
	byteRate := sampleRate * 2 // mono, 16-bit
	out.WriteString("RIFF")
	binary.Write(out, binary.LittleEndian, uint32(36+dataLen))
	out.WriteString("WAVE")
	out.WriteString("fmt ")
	binary.Write(out, binary.LittleEndian, uint32(16))
	binary.Write(out, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(out, binary.LittleEndian, uint16(1)) // mono
	binary.Write(out, binary.LittleEndian, uint32(sampleRate))
	binary.Write(out, binary.LittleEndian, uint32(byteRate))
	binary.Write(out, binary.LittleEndian, uint16(2))  // block align
	binary.Write(out, binary.LittleEndian, uint16(16)) // bits per sample
	out.WriteString("data")
	binary.Write(out, binary.LittleEndian, uint32(dataLen))
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

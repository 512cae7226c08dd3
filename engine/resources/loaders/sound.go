package loaders

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"

	"github.com/spaghettifunk/anima-rc/engine/resources"
)

// SoundLoader reads .ogg, .mp3 and .wav files. With DecodeWhole set, ogg and
// mp3 are decoded to PCM at load time; otherwise the file bytes are kept for
// the mixer to stream. WAV is always converted to PCM.
type SoundLoader struct {
	noOptions
	DecodeWhole bool
}

func (sl *SoundLoader) Load(req *Request) (resources.Payload, error) {
	data, err := readFile(req.Path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("sound file is empty")
	}
	switch req.Ext {
	case ".ogg":
		return sl.loadOgg(data)
	case ".mp3":
		return sl.loadMP3(data)
	case ".wav":
		return decodeWAV(data)
	}
	return nil, fmt.Errorf("unsupported sound extension %q", req.Ext)
}

func (sl *SoundLoader) Unload(p resources.Payload, deps Dependencies) {
	if s, ok := p.(*resources.Sound); ok {
		s.Data = nil
	}
}

func (sl *SoundLoader) loadOgg(data []byte) (*resources.Sound, error) {
	if !sl.DecodeWhole {
		frames, format, err := oggvorbis.GetLength(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		return &resources.Sound{
			Format:   resources.SoundFormatOgg,
			Data:     data,
			Len:      int(frames),
			Freq:     format.SampleRate,
			Channels: format.Channels,
			Stereo:   format.Channels > 1,
		}, nil
	}

	samples, format, err := oggvorbis.ReadAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if format.Channels < 1 {
		return nil, errors.New("ogg stream has no channels")
	}
	out := outChannels(format.Channels)
	frames := len(samples) / format.Channels
	pcm := make([]byte, 0, frames*out*2)
	for i := 0; i < frames; i++ {
		frame := samples[i*format.Channels : (i+1)*format.Channels]
		for c := 0; c < out; c++ {
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(floatToS16(frame[c])))
		}
	}
	return &resources.Sound{
		Format:   resources.SoundFormatPCM,
		Data:     pcm,
		Len:      frames,
		Freq:     format.SampleRate,
		Channels: format.Channels,
		Stereo:   format.Channels > 1,
	}, nil
}

// loadMP3 relies on go-mp3 always producing 16-bit stereo.
func (sl *SoundLoader) loadMP3(data []byte) (*resources.Sound, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	const frameSize = 4
	s := &resources.Sound{
		Format:   resources.SoundFormatMP3,
		Data:     data,
		Len:      int(dec.Length() / frameSize),
		Freq:     dec.SampleRate(),
		Channels: 2,
		Stereo:   true,
	}
	if !sl.DecodeWhole {
		return s, nil
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, err
	}
	s.Format = resources.SoundFormatPCM
	s.Data = pcm
	s.Len = len(pcm) / frameSize
	return s, nil
}

func outChannels(ch int) int {
	if ch > 1 {
		return 2
	}
	return 1
}

func floatToS16(f float32) int16 {
	v := math.Round(float64(f) * 32767)
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xfffe
)

type wavFormat struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
}

var ErrBadWAV = errors.New("malformed wav file")

// decodeWAV converts a RIFF/WAVE file to 8-bit unsigned (8-bit sources) or
// 16-bit signed PCM, keeping at most two channels.
func decodeWAV(data []byte) (*resources.Sound, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: not a RIFF/WAVE file", ErrBadWAV)
	}
	var (
		fmtChunk *wavFormat
		body     []byte
	)
	for pos := 12; pos+8 <= len(data); {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		pos += 8
		if size < 0 || size > len(data)-pos {
			if id != "data" {
				return nil, fmt.Errorf("%w: chunk %q overruns file", ErrBadWAV, id)
			}
			// streamed writers leave the data size unset
			size = len(data) - pos
		}
		chunk := data[pos : pos+size]
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrBadWAV)
			}
			f := &wavFormat{}
			binary.Read(bytes.NewReader(chunk), binary.LittleEndian, f)
			if f.AudioFormat == wavFormatExtensible && size >= 26 {
				f.AudioFormat = binary.LittleEndian.Uint16(chunk[24:26])
			}
			fmtChunk = f
		case "data":
			body = chunk
		}
		pos += size + size&1
	}
	if fmtChunk == nil || body == nil {
		return nil, fmt.Errorf("%w: missing fmt or data chunk", ErrBadWAV)
	}

	f := fmtChunk
	if f.Channels == 0 || f.SampleRate == 0 {
		return nil, fmt.Errorf("%w: %d channels at %d Hz", ErrBadWAV, f.Channels, f.SampleRate)
	}
	width := int(f.BitsPerSample+7) / 8
	switch {
	case f.AudioFormat == wavFormatPCM && width >= 1 && width <= 4:
	case f.AudioFormat == wavFormatFloat && width == 4:
	default:
		return nil, fmt.Errorf("%w: unsupported encoding %d/%d bits", ErrBadWAV, f.AudioFormat, f.BitsPerSample)
	}

	srcCh := int(f.Channels)
	out := outChannels(srcCh)
	stride := width * srcCh
	frames := len(body) / stride
	is8bit := f.AudioFormat == wavFormatPCM && width == 1

	var pcm []byte
	if is8bit {
		pcm = make([]byte, 0, frames*out)
	} else {
		pcm = make([]byte, 0, frames*out*2)
	}
	for i := 0; i < frames; i++ {
		frame := body[i*stride : (i+1)*stride]
		for c := 0; c < out; c++ {
			s := frame[c*width : (c+1)*width]
			if is8bit {
				pcm = append(pcm, s[0])
				continue
			}
			pcm = binary.LittleEndian.AppendUint16(pcm, uint16(wavSampleToS16(s, f.AudioFormat)))
		}
	}

	return &resources.Sound{
		Format:   resources.SoundFormatPCM,
		Data:     pcm,
		Len:      frames,
		Freq:     int(f.SampleRate),
		Channels: srcCh,
		Stereo:   srcCh > 1,
		Is8Bit:   is8bit,
	}, nil
}

func wavSampleToS16(s []byte, format uint16) int16 {
	if format == wavFormatFloat {
		return floatToS16(math.Float32frombits(binary.LittleEndian.Uint32(s)))
	}
	// keep the two most significant bytes
	switch len(s) {
	case 2:
		return int16(binary.LittleEndian.Uint16(s))
	case 3:
		return int16(uint16(s[1]) | uint16(s[2])<<8)
	default:
		return int16(uint16(s[2]) | uint16(s[3])<<8)
	}
}

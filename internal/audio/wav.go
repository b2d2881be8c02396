package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// WAVHeader represents the canonical 44-byte header of a PCM WAV file.
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 = PCM, 3 = IEEE float
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32 // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16 // NumChannels * BitsPerSample / 8
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

const (
	wavFormatPCM       = 1
	wavFormatIEEEFloat = 3
)

// EncodeWAV encodes mono float64 samples in [-1, 1] as a 16-bit PCM WAV
// file. Samples outside the valid range are clipped.
func EncodeWAV(samples []float64, sampleRate int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	dataSize := uint32(len(samples) * 2)
	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   wavFormatPCM,
		NumChannels:   1,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	pcm := make([]int16, len(samples))
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		pcm[i] = int16(math.Round(s * 32767))
	}

	if err := binary.Write(buf, binary.LittleEndian, pcm); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeWAV decodes a WAV file into mono float64 samples in [-1, 1] and the
// file's sample rate. 16-bit PCM and 32-bit IEEE float data are supported;
// multi-channel content is downmixed by averaging.
func DecodeWAV(data []byte) ([]float64, int, error) {
	if len(data) < 44 {
		return nil, 0, fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, 0, fmt.Errorf("invalid WAV file: missing RIFF/WAVE header")
	}

	var (
		audioFormat   uint16
		numChannels   uint16
		sampleRate    uint32
		bitsPerSample uint16
		raw           []byte
		haveFmt       bool
	)

	// Walk the chunk list rather than assuming the canonical 44-byte layout;
	// files written by other tools carry LIST/fact chunks before data.
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		if body+chunkSize > len(data) {
			chunkSize = len(data) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, 0, fmt.Errorf("invalid WAV file: fmt chunk too short (%d bytes)", chunkSize)
			}
			audioFormat = binary.LittleEndian.Uint16(data[body : body+2])
			numChannels = binary.LittleEndian.Uint16(data[body+2 : body+4])
			sampleRate = binary.LittleEndian.Uint32(data[body+4 : body+8])
			bitsPerSample = binary.LittleEndian.Uint16(data[body+14 : body+16])
			haveFmt = true
		case "data":
			raw = data[body : body+chunkSize]
		}

		// Chunks are word-aligned.
		offset = body + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}

		if haveFmt && raw != nil {
			break
		}
	}

	if !haveFmt {
		return nil, 0, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if raw == nil {
		return nil, 0, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	if numChannels == 0 {
		return nil, 0, fmt.Errorf("invalid WAV file: zero channels")
	}

	var perChannel func(frame []byte, ch int) float64
	var bytesPerSample int

	switch {
	case audioFormat == wavFormatPCM && bitsPerSample == 16:
		bytesPerSample = 2
		perChannel = func(frame []byte, ch int) float64 {
			v := int16(binary.LittleEndian.Uint16(frame[ch*2 : ch*2+2]))
			return float64(v) / 32768
		}
	case audioFormat == wavFormatIEEEFloat && bitsPerSample == 32:
		bytesPerSample = 4
		perChannel = func(frame []byte, ch int) float64 {
			bits := binary.LittleEndian.Uint32(frame[ch*4 : ch*4+4])
			return float64(math.Float32frombits(bits))
		}
	default:
		return nil, 0, fmt.Errorf("unsupported WAV encoding: format=%d bits=%d", audioFormat, bitsPerSample)
	}

	frameSize := bytesPerSample * int(numChannels)
	numFrames := len(raw) / frameSize
	if numFrames == 0 {
		return nil, 0, fmt.Errorf("no audio data found")
	}

	samples := make([]float64, numFrames)
	for i := 0; i < numFrames; i++ {
		frame := raw[i*frameSize : (i+1)*frameSize]
		var sum float64
		for ch := 0; ch < int(numChannels); ch++ {
			sum += perChannel(frame, ch)
		}
		samples[i] = sum / float64(numChannels)
	}

	return samples, int(sampleRate), nil
}

// WAVInfo holds basic metadata extracted from a WAV file.
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
}

// GetWAVInfo extracts basic metadata from a WAV file.
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	samples, rate, err := DecodeWAV(data)
	if err != nil {
		return nil, err
	}

	info := &WAVInfo{
		SampleRate: uint32(rate),
		Duration:   float64(len(samples)) / float64(rate),
	}

	if len(data) >= 36 {
		info.Channels = binary.LittleEndian.Uint16(data[22:24])
		info.BitsPerSample = binary.LittleEndian.Uint16(data[34:36])
	}

	info.DataSize = uint32(len(samples)) * uint32(info.BitsPerSample/8) * uint32(info.Channels)

	return info, nil
}

package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// DeviceSource captures live audio from a PortAudio input device. The
// PortAudio callback only converts samples and hands them off; buffering
// and load shedding happen downstream.
type DeviceSource struct {
	sampleRate int
	chunkSize  int
	deviceName string // empty selects the default input device
	logger     *slog.Logger
}

// NewDeviceSource creates a live capture source. deviceName is matched as
// a case-insensitive substring of the PortAudio device name; empty selects
// the default input device.
func NewDeviceSource(sampleRate, chunkSize int, deviceName string, logger *slog.Logger) (*DeviceSource, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}

	return &DeviceSource{
		sampleRate: sampleRate,
		chunkSize:  chunkSize,
		deviceName: deviceName,
		logger:     logger,
	}, nil
}

// SampleRate returns the configured capture rate.
func (s *DeviceSource) SampleRate() int {
	return s.sampleRate
}

// Chunks opens the input device and starts streaming. The channel closes
// after ctx is cancelled and the stream has shut down.
func (s *DeviceSource) Chunks(ctx context.Context) (<-chan []float64, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	device, err := s.findDevice()
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	// A small channel buffer absorbs scheduling jitter between the audio
	// callback and the intake goroutine.
	ch := make(chan []float64, 8)

	params := portaudio.LowLatencyParameters(device, nil)
	params.Input.Channels = 1
	params.SampleRate = float64(s.sampleRate)
	params.FramesPerBuffer = s.chunkSize

	stream, err := portaudio.OpenStream(params, func(in []float32) {
		chunk := make([]float64, len(in))
		for i, v := range in {
			chunk[i] = float64(v)
		}

		select {
		case ch <- chunk:
		default:
			// The intake side is stalled; dropping here keeps the audio
			// callback within its real-time bound.
		}
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream: %w", err)
	}

	s.logger.Info("Capture started",
		slog.String("device", device.Name),
		slog.Int("sample_rate", s.sampleRate),
		slog.Int("chunk_size", s.chunkSize),
	)

	go func() {
		<-ctx.Done()

		if err := stream.Stop(); err != nil {
			s.logger.Warn("Error stopping input stream", slog.String("error", err.Error()))
		}
		if err := stream.Close(); err != nil {
			s.logger.Warn("Error closing input stream", slog.String("error", err.Error()))
		}
		if err := portaudio.Terminate(); err != nil {
			s.logger.Warn("Error terminating portaudio", slog.String("error", err.Error()))
		}

		close(ch)
		s.logger.Info("Capture stopped", slog.String("device", device.Name))
	}()

	return ch, nil
}

func (s *DeviceSource) findDevice() (*portaudio.DeviceInfo, error) {
	if s.deviceName == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	want := strings.ToLower(s.deviceName)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), want) {
			return d, nil
		}
	}

	return nil, fmt.Errorf("no input device matching %q", s.deviceName)
}

// InputDevice describes one capture-capable device for CLI listings.
type InputDevice struct {
	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// ListInputDevices enumerates available input devices.
func ListInputDevices() ([]InputDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	defaultIn, _ := portaudio.DefaultInputDevice()

	var out []InputDevice
	for _, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		out = append(out, InputDevice{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         defaultIn != nil && d.Name == defaultIn.Name,
		})
	}

	return out, nil
}

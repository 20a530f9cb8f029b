// Package video acquires frames from a local camera through GStreamer.
package video

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/petems/instant-replay/internal/frame"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

// ErrNoFrame is a transient read failure: no sample arrived in time.
var ErrNoFrame = errors.New("no frame available")

const (
	defaultReadTimeout = 500 * time.Millisecond
	openTimeout        = 5 * time.Second
	sinkMaxBuffers     = 2
	fallbackFPS        = 30.0
	// matches max-buffers on the appsink, with headroom
	maxQueuedSamples = 4
)

type Config struct {
	DeviceIndex int
	// FallbackFPS is used when the device does not report a frame rate
	FallbackFPS float64
	ReadTimeout time.Duration
	Logger      zerolog.Logger
}

// Camera is a frame source backed by a GStreamer capture pipeline:
//
//	<platform camera src> → videoconvert → RGB capsfilter → appsink
type Camera struct {
	cfg      Config
	log      zerolog.Logger
	pipeline *gst.Pipeline
	sink     *app.Sink

	width  int
	height int
	fps    float64

	seq     atomic.Uint64
	pending *frame.Frame

	closeOnce sync.Once
	closeErr  error
}

// sourceElement returns the platform camera element for a device index.
func sourceElement(index int) string {
	switch runtime.GOOS {
	case "darwin":
		return fmt.Sprintf("avfvideosrc device-index=%d", index)
	case "windows":
		return fmt.Sprintf("ksvideosrc device-index=%d", index)
	default:
		return fmt.Sprintf("v4l2src device=/dev/video%d", index)
	}
}

func pipelineDescription(index int) string {
	return sourceElement(index) +
		" ! videoconvert ! video/x-raw,format=RGB" +
		fmt.Sprintf(" ! appsink name=sink max-buffers=%d drop=true sync=false", sinkMaxBuffers)
}

// Open starts the capture pipeline and waits for the first frame, which
// carries the negotiated resolution and rate. Any failure here means the
// device could not be opened.
func Open(cfg Config) (*Camera, error) {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.FallbackFPS <= 0 {
		cfg.FallbackFPS = fallbackFPS
	}

	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	desc := pipelineDescription(cfg.DeviceIndex)
	pipeline, err := gst.NewPipelineFromString(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to create capture pipeline for camera %d: %w", cfg.DeviceIndex, err)
	}

	elem, err := pipeline.GetElementByName("sink")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to find appsink: %w", err)
	}

	c := &Camera{
		cfg:      cfg,
		log:      cfg.Logger,
		pipeline: pipeline,
		sink:     app.SinkFromElement(elem),
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to start camera %d: %w", cfg.DeviceIndex, err)
	}

	sample := c.sink.TryPullSample(openTimeout)
	if sample == nil {
		err := c.busError()
		c.Close()
		if err != nil {
			return nil, fmt.Errorf("could not open camera %d: %w", cfg.DeviceIndex, err)
		}
		return nil, fmt.Errorf("could not open camera %d: no frames within %s", cfg.DeviceIndex, openTimeout)
	}

	c.readCaps(sample)
	first, err := c.toFrame(sample)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("could not open camera %d: %w", cfg.DeviceIndex, err)
	}
	c.pending = &first

	c.log.Info().
		Int("device", cfg.DeviceIndex).
		Int("width", c.width).
		Int("height", c.height).
		Float64("fps", c.fps).
		Msg("Camera opened")

	return c, nil
}

// readCaps extracts width, height and frame rate from the first sample.
func (c *Camera) readCaps(sample *gst.Sample) {
	c.fps = c.cfg.FallbackFPS

	caps := sample.GetCaps()
	if caps == nil || caps.GetSize() == 0 {
		c.log.Warn().Msg("Camera did not report caps")
		return
	}
	st := caps.GetStructureAt(0)
	if v, err := st.GetValue("width"); err == nil {
		if w, ok := v.(int); ok {
			c.width = w
		}
	}
	if v, err := st.GetValue("height"); err == nil {
		if h, ok := v.(int); ok {
			c.height = h
		}
	}

	type fraction interface {
		Num() int
		Denom() int
	}
	if v, err := st.GetValue("framerate"); err == nil {
		if fr, ok := v.(fraction); ok && fr.Num() > 0 && fr.Denom() > 0 {
			c.fps = float64(fr.Num()) / float64(fr.Denom())
			return
		}
	}
	c.log.Warn().Float64("fps", c.fps).Msg("Camera did not report FPS, using fallback")
}

func (c *Camera) toFrame(sample *gst.Sample) (frame.Frame, error) {
	buffer := sample.GetBuffer()
	if buffer == nil {
		return frame.Frame{}, ErrNoFrame
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return frame.Frame{}, ErrNoFrame
	}

	// Copy frame data (GStreamer will reuse buffer)
	pixels := make([]byte, len(data))
	copy(pixels, data)
	buffer.Unmap()

	return frame.Frame{
		Seq:       c.seq.Add(1),
		Timestamp: time.Now(),
		Width:     c.width,
		Height:    c.height,
		Data:      pixels,
	}, nil
}

// Read blocks for at most the read timeout. It returns ErrNoFrame when
// nothing arrived and frame.ErrEndOfStream once the pipeline has ended.
func (c *Camera) Read(ctx context.Context) (frame.Frame, error) {
	if err := ctx.Err(); err != nil {
		return frame.Frame{}, err
	}
	if c.pending != nil {
		f := *c.pending
		c.pending = nil
		return f, nil
	}

	sample := c.sink.TryPullSample(c.cfg.ReadTimeout)
	if sample == nil {
		if c.sink.IsEOS() {
			return frame.Frame{}, frame.ErrEndOfStream
		}
		if err := c.busError(); err != nil {
			return frame.Frame{}, err
		}
		return frame.Frame{}, ErrNoFrame
	}
	return c.toFrame(sample)
}

// Flush drops frames queued in the appsink while nobody was reading, so the
// next Read returns a frame acquired after the call.
func (c *Camera) Flush() {
	c.pending = nil
	for i := 0; i < maxQueuedSamples; i++ {
		if c.sink.TryPullSample(0) == nil {
			return
		}
	}
}

func (c *Camera) FPS() float64 { return c.fps }

func (c *Camera) Size() (int, int) { return c.width, c.height }

// busError drains pending bus messages and returns the first error.
func (c *Camera) busError() error {
	bus := c.pipeline.GetPipelineBus()
	for {
		msg := bus.TimedPop(0)
		if msg == nil {
			return nil
		}
		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			c.log.Error().
				Str("error", gerr.Error()).
				Str("debug", gerr.DebugString()).
				Int("device", c.cfg.DeviceIndex).
				Msg("Capture pipeline error")
			return fmt.Errorf("pipeline error: %s", gerr.Error())
		case gst.MessageEOS:
			return frame.ErrEndOfStream
		}
	}
}

// Close stops the pipeline and releases the device. Safe to call twice.
func (c *Camera) Close() error {
	c.closeOnce.Do(func() {
		if err := c.pipeline.SetState(gst.StateNull); err != nil {
			c.closeErr = fmt.Errorf("failed to set capture pipeline to NULL: %w", err)
		}
		c.log.Debug().Int("device", c.cfg.DeviceIndex).Msg("Camera closed")
	})
	return c.closeErr
}

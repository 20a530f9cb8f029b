// Package display shows frames with overlay text in a GStreamer video window.
package display

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/petems/instant-replay/internal/frame"
	"github.com/rs/zerolog"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"
)

type Config struct {
	Width  int
	Height int
	FPS    float64
	// FontDesc is a Pango font description, e.g. "Sans Bold 28"
	FontDesc string
	Logger   zerolog.Logger
}

// Window pushes frames into:
//
//	appsrc → videoconvert → textoverlay → videoconvert → autovideosink
type Window struct {
	log      zerolog.Logger
	pipeline *gst.Pipeline
	src      *app.Source
	overlay  *gst.Element

	mu          sync.Mutex
	lastOverlay string
	width       int
	height      int

	closed    chan struct{}
	closeOnce sync.Once
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

func pipelineDescription(fontDesc string) string {
	return "appsrc name=src is-live=true format=time do-timestamp=true" +
		" ! videoconvert" +
		fmt.Sprintf(" ! textoverlay name=overlay valignment=top halignment=center shaded-background=true font-desc=%q", fontDesc) +
		" ! videoconvert ! autovideosink sync=false"
}

func rawCaps(width, height int, fps float64) string {
	rate := int(fps + 0.5)
	if rate <= 0 {
		rate = 30
	}
	return fmt.Sprintf("video/x-raw,format=RGB,width=%d,height=%d,framerate=%d/1", width, height, rate)
}

// Open creates the window pipeline. The window appears with the first frame.
func Open(cfg Config) (*Window, error) {
	if cfg.FontDesc == "" {
		cfg.FontDesc = "Sans Bold 28"
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipelineFromString(pipelineDescription(cfg.FontDesc))
	if err != nil {
		return nil, fmt.Errorf("failed to create display pipeline: %w", err)
	}

	srcElem, overlay, err := namedElements(pipeline)
	if err != nil {
		return nil, err
	}

	w := &Window{
		log:      cfg.Logger,
		pipeline: pipeline,
		src:      app.SrcFromElement(srcElem),
		overlay:  overlay,
		width:    cfg.Width,
		height:   cfg.Height,
		closed:   make(chan struct{}),
		stop:     make(chan struct{}),
	}
	w.src.SetCaps(gst.NewCapsFromString(rawCaps(cfg.Width, cfg.Height, cfg.FPS)))

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, fmt.Errorf("failed to start display: %w", err)
	}

	w.wg.Add(1)
	go w.watchBus()

	return w, nil
}

// namedElements finds the appsrc and textoverlay. On failure the pipeline is
// set to NULL so it releases what parsing allocated.
func namedElements(pipeline *gst.Pipeline) (src, overlay *gst.Element, err error) {
	src, err = pipeline.GetElementByName("src")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, nil, fmt.Errorf("failed to find appsrc: %w", err)
	}
	overlay, err = pipeline.GetElementByName("overlay")
	if err != nil {
		pipeline.SetState(gst.StateNull)
		return nil, nil, fmt.Errorf("failed to find textoverlay: %w", err)
	}
	return src, overlay, nil
}

// Render shows f with overlay text. Frames whose size differs from the
// negotiated caps renegotiate them first.
func (w *Window) Render(f frame.Frame, overlay string) error {
	select {
	case <-w.closed:
		return fmt.Errorf("display closed")
	default:
	}

	w.mu.Lock()
	if f.Width > 0 && f.Height > 0 && (f.Width != w.width || f.Height != w.height) {
		w.width, w.height = f.Width, f.Height
		w.src.SetCaps(gst.NewCapsFromString(rawCaps(f.Width, f.Height, 0)))
	}
	if overlay != w.lastOverlay {
		w.overlay.SetProperty("text", overlay)
		w.lastOverlay = overlay
	}
	w.mu.Unlock()

	if ret := w.src.PushBuffer(gst.NewBufferFromBytes(f.Data)); ret != gst.FlowOK {
		return fmt.Errorf("push frame %d: flow %v", f.Seq, ret)
	}
	return nil
}

// Closed is closed when the user closes the window or the pipeline fails.
func (w *Window) Closed() <-chan struct{} {
	return w.closed
}

func (w *Window) markClosed() {
	w.closeOnce.Do(func() { close(w.closed) })
}

func (w *Window) watchBus() {
	defer w.wg.Done()
	bus := w.pipeline.GetPipelineBus()

	for {
		select {
		case <-w.stop:
			return
		default:
		}

		// Poll for messages with short timeout for responsive shutdown
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageError:
			gerr := msg.ParseError()
			if isWindowClosed(gerr.Error()) {
				w.log.Info().Msg("Display window closed by user")
			} else {
				w.log.Error().Str("error", gerr.Error()).Str("debug", gerr.DebugString()).Msg("Display pipeline error")
			}
			w.markClosed()
			return
		case gst.MessageEOS:
			w.markClosed()
			return
		}
	}
}

func isWindowClosed(msg string) bool {
	return strings.Contains(strings.ToLower(msg), "window was closed")
}

// Close stops the bus watcher and tears the pipeline down. Safe to call twice.
func (w *Window) Close() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stop)
		w.wg.Wait()
		w.markClosed()
		if serr := w.pipeline.SetState(gst.StateNull); serr != nil {
			err = fmt.Errorf("failed to set display pipeline to NULL: %w", serr)
		}
	})
	return err
}

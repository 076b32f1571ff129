// Package dashboard renders the live vehicle state on an 800x600 surface and
// presents each frame to a set of sinks (terminal, snapshot file, mqtt...).
package dashboard

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"os/signal"
	"syscall"

	"github.com/cyrilix/robocar-drivesim/pkg/can"
	"github.com/disintegration/imaging"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

const (
	DefaultWidth    = 800
	DefaultHeight   = 600
	DefaultFontSize = 36.
	DefaultCaption  = "Vehicle Control Dashboard"

	marginX     = 20
	marginY     = 20
	lineSpacing = 40
)

var ErrClosed = errors.New("dashboard closed")

// Frame is what a Sink receives on each Render, it must not be retained
// after Present returns.
type Frame struct {
	Seq     uint64
	Caption string
	Speed   float64
	Signals can.ActuationSignals
	Lines   []string
	Image   *image.NRGBA
}

type Sink interface {
	Present(frame *Frame) error
	Close() error
}

type Option func(d *Dashboard)

func WithSize(width, height int) Option {
	return func(d *Dashboard) {
		d.width = width
		d.height = height
	}
}

func WithFontSize(size float64) Option {
	return func(d *Dashboard) {
		d.fontSize = size
	}
}

func WithCaption(caption string) Option {
	return func(d *Dashboard) {
		d.caption = caption
	}
}

func WithSinks(sinks ...Sink) Option {
	return func(d *Dashboard) {
		d.sinks = append(d.sinks, sinks...)
	}
}

// WithQuitSignals turns the given os signals into a close request, SIGINT
// and SIGTERM when none are given.
func WithQuitSignals(sig ...os.Signal) Option {
	return func(d *Dashboard) {
		if len(sig) == 0 {
			sig = []os.Signal{os.Interrupt, syscall.SIGTERM}
		}
		d.quitSignals = sig
	}
}

/* Dashboard is the display session, open from Open to Close */
type Dashboard struct {
	width, height int
	fontSize      float64
	caption       string
	quitSignals   []os.Signal

	canvas *image.NRGBA
	face   font.Face
	sinks  []Sink
	seq    uint64

	quit           chan os.Signal
	closeRequested bool
	closed         bool

	log *zap.SugaredLogger
}

func Open(opts ...Option) (*Dashboard, error) {
	d := &Dashboard{
		width:    DefaultWidth,
		height:   DefaultHeight,
		fontSize: DefaultFontSize,
		caption:  DefaultCaption,
		quit:     make(chan os.Signal, 1),
		log:      zap.S().With("part", "dashboard"),
	}
	for _, o := range opts {
		o(d)
	}
	if d.width <= 0 || d.height <= 0 {
		return nil, fmt.Errorf("invalid dashboard size %dx%d", d.width, d.height)
	}

	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("unable to parse dashboard font: %w", err)
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    d.fontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to load dashboard font: %w", err)
	}
	d.face = face
	d.canvas = imaging.New(d.width, d.height, color.White)

	if len(d.quitSignals) > 0 {
		signal.Notify(d.quit, d.quitSignals...)
	}
	d.log.Infof("open dashboard '%v' %dx%d", d.caption, d.width, d.height)
	return d, nil
}

// FormatLines returns the four dashboard lines in display order.
func FormatLines(speed float64, signals can.ActuationSignals) []string {
	return []string{
		fmt.Sprintf("Speed: %.2f m/s", speed),
		fmt.Sprintf("Throttle: %.2f", signals.Throttle),
		fmt.Sprintf("Steering: %.2f", signals.Steering),
		fmt.Sprintf("Brake: %.2f", signals.Brake),
	}
}

// Render clears the previous frame, draws the vehicle state and presents it.
func (d *Dashboard) Render(speed float64, signals can.ActuationSignals) error {
	if d.closed {
		return ErrClosed
	}

	draw.Draw(d.canvas, d.canvas.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	lines := FormatLines(speed, signals)
	drawer := font.Drawer{
		Dst:  d.canvas,
		Src:  image.NewUniform(color.Black),
		Face: d.face,
	}
	ascent := d.face.Metrics().Ascent
	for i, line := range lines {
		drawer.Dot = fixed.Point26_6{
			X: fixed.I(marginX),
			Y: fixed.I(marginY+i*lineSpacing) + ascent,
		}
		drawer.DrawString(line)
	}

	d.seq++
	frame := Frame{
		Seq:     d.seq,
		Caption: d.caption,
		Speed:   speed,
		Signals: signals,
		Lines:   lines,
		Image:   d.canvas,
	}
	var err error
	for _, s := range d.sinks {
		err = multierr.Append(err, s.Present(&frame))
	}
	if err != nil {
		return fmt.Errorf("unable to present frame %d: %w", frame.Seq, err)
	}
	return nil
}

// RequestClose emulates a window close event.
func (d *Dashboard) RequestClose() {
	select {
	case d.quit <- os.Interrupt:
	default:
	}
}

// CloseRequested polls pending events without blocking.
func (d *Dashboard) CloseRequested() bool {
	if d.closeRequested {
		return true
	}
	select {
	case sig := <-d.quit:
		d.log.Infof("close requested (%v)", sig)
		d.closeRequested = true
	default:
	}
	return d.closeRequested
}

// Close releases the surface and the sinks, only the first call has an effect.
func (d *Dashboard) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	d.log.Info("close dashboard")

	signal.Stop(d.quit)
	var err error
	for _, s := range d.sinks {
		err = multierr.Append(err, s.Close())
	}
	err = multierr.Append(err, d.face.Close())
	d.canvas = nil
	return err
}

package dashboard

import (
	"fmt"
	"io"
	"strings"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
)

const clearScreen = "\033[H\033[2J"

// WriterSink prints the dashboard lines, typically on a terminal.
type WriterSink struct {
	w     io.Writer
	clear bool
}

func NewWriterSink(w io.Writer, clear bool) *WriterSink {
	return &WriterSink{w: w, clear: clear}
}

func (s *WriterSink) Present(frame *Frame) error {
	var b strings.Builder
	if s.clear {
		b.WriteString(clearScreen)
	}
	for _, l := range frame.Lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(s.w, b.String()); err != nil {
		return fmt.Errorf("unable to write dashboard lines: %w", err)
	}
	return nil
}

func (s *WriterSink) Close() error {
	return nil
}

// SnapshotSink saves one frame out of every to path, the image format is
// deduced from the file extension.
type SnapshotSink struct {
	path  string
	every uint64
}

func NewSnapshotSink(path string, every int) *SnapshotSink {
	if every < 1 {
		every = 1
	}
	return &SnapshotSink{path: path, every: uint64(every)}
}

func (s *SnapshotSink) Present(frame *Frame) error {
	if frame.Seq%s.every != 0 {
		return nil
	}
	zap.S().Debugf("save dashboard frame %d to %v", frame.Seq, s.path)
	if err := imaging.Save(frame.Image, s.path); err != nil {
		return fmt.Errorf("unable to save dashboard snapshot to %v: %w", s.path, err)
	}
	return nil
}

func (s *SnapshotSink) Close() error {
	return nil
}

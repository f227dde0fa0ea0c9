package ingest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/normalize"
)

// maxLineBytes bounds one JSON event line.
const maxLineBytes = 1 << 20

// Record is one item read from a source: an event, or the error that
// prevented decoding it.
type Record struct {
	Event normalize.Event
	Err   error
	// Origin locates the record for logs, e.g. "events.jsonl:12".
	Origin string
}

// Source produces records. Stream sends every record to out and returns
// when the source is exhausted or ctx is done. Sends block while the
// queue is full, which pauses consumption of the underlying source.
// Stream must not close out.
type Source interface {
	Name() string
	Stream(ctx context.Context, out chan<- Record) error
}

func send(ctx context.Context, out chan<- Record, rec Record) error {
	select {
	case out <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReaderSource decodes JSON lines from a reader.
type ReaderSource struct {
	name string
	r    io.Reader
}

// NewReaderSource reads newline-delimited JSON events from r.
func NewReaderSource(name string, r io.Reader) *ReaderSource {
	return &ReaderSource{name: name, r: r}
}

// Name implements Source.
func (s *ReaderSource) Name() string { return s.name }

// Stream implements Source. Blank lines are skipped; undecodable or
// oversized lines are sent as records carrying the error.
func (s *ReaderSource) Stream(ctx context.Context, out chan<- Record) error {
	return streamLines(ctx, s.name, s.r, out)
}

func streamLines(ctx context.Context, name string, r io.Reader, out chan<- Record) error {
	reader := bufio.NewReaderSize(r, 64*1024)

	line := 0
	for {
		data, tooLong, err := readLine(reader)
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read %s: %w", name, err)
		}
		eof := err != nil
		if eof && len(data) == 0 && !tooLong {
			return nil
		}
		line++

		rec := Record{Origin: fmt.Sprintf("%s:%d", name, line)}
		if tooLong {
			rec.Err = sferrors.MalformedInput(fmt.Sprintf("event line exceeds %d bytes", maxLineBytes))
		} else {
			data = bytes.TrimSpace(data)
			if len(data) == 0 {
				if eof {
					return nil
				}
				continue
			}
			rec.Event, rec.Err = normalize.DecodeEvent(data)
		}
		if err := send(ctx, out, rec); err != nil {
			return err
		}
		if eof {
			return nil
		}
	}
}

// readLine returns the next line including its newline. Lines longer than
// maxLineBytes are consumed to the newline and reported as tooLong without
// their content.
func readLine(r *bufio.Reader) (data []byte, tooLong bool, err error) {
	for {
		var chunk []byte
		chunk, err = r.ReadSlice('\n')
		if !tooLong {
			if len(data)+len(chunk) > maxLineBytes+1 {
				tooLong = true
				data = nil
			} else {
				data = append(data, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return data, tooLong, err
	}
}

// FileSource reads JSONL event files in order.
type FileSource struct {
	paths []string
}

// NewFileSource reads each path in turn. "-" reads standard input.
func NewFileSource(paths ...string) *FileSource {
	return &FileSource{paths: paths}
}

// Name implements Source.
func (s *FileSource) Name() string {
	if len(s.paths) == 1 {
		return filepath.Base(s.paths[0])
	}
	return fmt.Sprintf("%d files", len(s.paths))
}

// Stream implements Source. A file that cannot be read does not stop the
// remaining files; the errors are joined and returned at the end.
func (s *FileSource) Stream(ctx context.Context, out chan<- Record) error {
	var errs []error
	for _, path := range s.paths {
		if err := streamFile(ctx, path, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func streamFile(ctx context.Context, path string, out chan<- Record) error {
	if path == "-" {
		return streamLines(ctx, "stdin", os.Stdin, out)
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open event file: %w", err)
	}
	defer f.Close()
	return streamLines(ctx, filepath.Base(path), f, out)
}

// SliceSource replays already decoded events.
type SliceSource struct {
	name   string
	events []normalize.Event
}

// NewSliceSource returns a source over events.
func NewSliceSource(name string, events []normalize.Event) *SliceSource {
	return &SliceSource{name: name, events: events}
}

// Name implements Source.
func (s *SliceSource) Name() string { return s.name }

// Stream implements Source.
func (s *SliceSource) Stream(ctx context.Context, out chan<- Record) error {
	for i, ev := range s.events {
		rec := Record{Event: ev, Origin: fmt.Sprintf("%s:%d", s.name, i+1)}
		if err := send(ctx, out, rec); err != nil {
			return err
		}
	}
	return nil
}

// RawSource decodes events submitted as individual JSON documents, e.g.
// over RPC.
type RawSource struct {
	name   string
	events [][]byte
}

// NewRawSource returns a source decoding each element of events.
func NewRawSource(name string, events [][]byte) *RawSource {
	return &RawSource{name: name, events: events}
}

// Name implements Source.
func (s *RawSource) Name() string { return s.name }

// Stream implements Source.
func (s *RawSource) Stream(ctx context.Context, out chan<- Record) error {
	for i, data := range s.events {
		ev, err := normalize.DecodeEvent(data)
		rec := Record{Event: ev, Err: err, Origin: fmt.Sprintf("%s:%d", s.name, i+1)}
		if err := send(ctx, out, rec); err != nil {
			return err
		}
	}
	return nil
}

package transcript

import (
	"io"
	"sync"
	"time"
)

// Writer multiplexes several streams into one io.Writer.
// A single goroutine owns the underlying writer; stream writers may be used
// from different goroutines.
type Writer struct {
	chunks chan Chunk
	done   chan struct{}
	once   sync.Once
	now    func() time.Time
}

// NewWriter starts the goroutine writing to w. Call Close when done.
func NewWriter(w io.Writer) *Writer {
	tw := &Writer{
		chunks: make(chan Chunk, 100),
		done:   make(chan struct{}),
		now:    time.Now,
	}

	go func() {
		defer close(tw.done)
		for chunk := range tw.chunks {
			_, _ = w.Write(Format(chunk))
		}
	}()

	return tw
}

// StreamWriter returns an io.Writer that records every Write as one chunk
// of the named stream.
func (tw *Writer) StreamWriter(stream string) io.Writer {
	return &streamWriter{stream: stream, tw: tw}
}

// Close flushes pending chunks. Stream writers must not be used afterwards.
func (tw *Writer) Close() {
	tw.once.Do(func() {
		close(tw.chunks)
	})
	<-tw.done
}

type streamWriter struct {
	stream string
	tw     *Writer
}

func (sw *streamWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	sw.tw.chunks <- Chunk{
		Stream:    sw.stream,
		Timestamp: sw.tw.now().UTC(),
		Data:      append([]byte(nil), p...),
	}
	return len(p), nil
}

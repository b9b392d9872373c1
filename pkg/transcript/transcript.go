package transcript

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Chunk is one piece of output of a single stream
type Chunk struct {
	Stream    string
	Timestamp time.Time
	Data      []byte
}

// Format returns the encoded form of chunk.
func Format(chunk Chunk) []byte {
	header := fmt.Appendf(nil, "%s %s %d: ", chunk.Stream, chunk.Timestamp.UTC().Format(timeLayout), len(chunk.Data))
	result := append(header, chunk.Data...)
	return append(result, '\n')
}

// Read parses all chunks from r.
func Read(r io.Reader) ([]Chunk, error) {
	br := bufio.NewReader(r)
	var chunks []Chunk
	for {
		chunk, err := readChunk(br)
		if errors.Is(err, io.EOF) {
			return chunks, nil
		}
		if err != nil {
			return chunks, fmt.Errorf("chunk %d: %w", len(chunks)+1, err)
		}
		chunks = append(chunks, chunk)
	}
}

func readChunk(br *bufio.Reader) (Chunk, error) {
	var chunk Chunk

	stream, err := br.ReadString(' ')
	if err != nil {
		if errors.Is(err, io.EOF) && stream == "" {
			return chunk, io.EOF
		}
		return chunk, fmt.Errorf("reading stream: %w", io.ErrUnexpectedEOF)
	}
	chunk.Stream = stream[:len(stream)-1]

	ts, err := br.ReadString(' ')
	if err != nil {
		return chunk, fmt.Errorf("reading timestamp: %w", io.ErrUnexpectedEOF)
	}
	chunk.Timestamp, err = time.Parse(timeLayout, ts[:len(ts)-1])
	if err != nil {
		return chunk, fmt.Errorf("parsing timestamp: %w", err)
	}

	lengthStr, err := br.ReadString(':')
	if err != nil {
		return chunk, fmt.Errorf("reading length: %w", io.ErrUnexpectedEOF)
	}
	length, err := strconv.Atoi(lengthStr[:len(lengthStr)-1])
	if err != nil || length < 0 {
		return chunk, fmt.Errorf("parsing length %q", lengthStr)
	}

	if b, err := br.ReadByte(); err != nil || b != ' ' {
		return chunk, fmt.Errorf("expected space after length")
	}

	chunk.Data = make([]byte, length)
	if _, err := io.ReadFull(br, chunk.Data); err != nil {
		return chunk, fmt.Errorf("reading content (%d bytes): %w", length, err)
	}

	if b, err := br.ReadByte(); err != nil || b != '\n' {
		return chunk, fmt.Errorf("expected newline separator")
	}

	return chunk, nil
}

// Streams concatenates the data of each stream, ignoring timestamps.
func Streams(chunks []Chunk) map[string][]byte {
	result := make(map[string][]byte)
	for _, c := range chunks {
		result[c.Stream] = append(result[c.Stream], c.Data...)
	}
	return result
}

package probe

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Marker terminates every probe line. A fixed UUID, so it does not show up
// in ordinary log output by accident.
const Marker = "353887f6-a130-11eb-aad1-54b203047ebd"

// PanicPayload is emitted by a child whose expected panic was caught.
const PanicPayload = "p"

// ErrMalformed reports a line that ends with Marker but cannot be split.
var ErrMalformed = errors.New("malformed probe")

// Probe is one decoded line
type Probe struct {
	Prefix  string
	Payload string
}

// Encode returns the line fragment carrying payload.
func Encode(payload string) string {
	return payload + "_" + strconv.Itoa(len(payload)) + Marker
}

// Decode splits a line into prefix and payload.
// ok is false if the line is not a probe at all.
func Decode(line string) (p Probe, ok bool, err error) {
	body, found := strings.CutSuffix(line, Marker)
	if !found {
		return Probe{}, false, nil
	}

	sep := strings.LastIndexByte(body, '_')
	if sep < 0 {
		return Probe{}, true, fmt.Errorf("%w: no length separator in %q", ErrMalformed, line)
	}

	length, err := strconv.ParseUint(body[sep+1:], 10, 0)
	if err != nil {
		return Probe{}, true, fmt.Errorf("%w: length %q: %w", ErrMalformed, body[sep+1:], err)
	}

	body = body[:sep]
	if length > uint64(len(body)) {
		return Probe{}, true, fmt.Errorf("%w: length %d exceeds line (%d bytes)", ErrMalformed, length, len(body))
	}

	start := len(body) - int(length)
	return Probe{Prefix: body[:start], Payload: body[start:]}, true, nil
}

// Fprintln writes payload as a probe on a line of its own.
func Fprintln(w io.Writer, payload string) error {
	_, err := io.WriteString(w, Encode(payload)+"\n")
	return err
}

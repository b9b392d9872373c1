// Package transcript records the streams of an isolated child process into
// one file, so a failed run can be inspected after the fact.
//
// # Format
//
// Each chunk is written as:
//
//	stream timestamp length: content\n
//
// Where:
//
//   - stream: name of the source stream, for example stdout or stderr.
//   - timestamp: UTC time the chunk was read, 2006-01-02T15:04:05.000000000Z.
//   - length: byte length of content.
//   - content: exactly length bytes, usually one line including its newline.
//   - \n: a separator, always written.
//
// Because the length is authoritative, content may contain anything,
// including text that looks like another chunk header.
//
// # Example
//
//	stdout 2025-01-07T12:00:00.000000000Z 16: === RUN   TestX\n\n
//	stderr 2025-01-07T12:00:00.100000000Z 6: boom!\n\n
package transcript

// Package probe defines the side channel a child test process uses to send
// structured signals to its supervisor through an ordinary stderr stream.
//
// # Format
//
// A probe is appended to the end of a text line:
//
//	payload _ length marker
//
// Where:
//
//   - payload: the signal, any bytes except a newline. May be empty.
//   - _: literal underscore.
//   - length: decimal byte length of payload.
//   - marker: the fixed token [Marker].
//
// Everything on the line before the payload is the prefix. It is ordinary
// log text that happened to be written on the same line before the probe.
//
// # Examples
//
//	$_1353887f6-a130-11eb-aad1-54b203047ebd
//
//	- payload is "$", prefix is empty
//
//	working...0_1353887f6-a130-11eb-aad1-54b203047ebd
//
//	- payload is "0", prefix is "working..."
//
//	a_b_3353887f6-a130-11eb-aad1-54b203047ebd
//
//	- payload is "a_b". The length, not the underscore position, decides
//	  where the payload starts.
//
// A line that does not end with the marker is not a probe. A line that ends
// with the marker but carries a broken length is a protocol violation: only
// this module writes the marker.
package probe

// Package itm decodes the ITM trace byte stream.
package itm

// The ITM (Instrumentation Trace Macrocell) multiplexes up to 32 stimulus
// ports over one byte stream. Each packet starts with a single header byte:
// bits [7:3] name the source stimulus port, bits [2:0] encode the payload
// size (1, 2 or 4 bytes). This package extracts the payload stream of one
// selected stimulus port and discards everything else.
//
// The decoder never gives up on the stream: an exhausted pipe is retried
// after a short pause, and other I/O errors are reported and absorbed.
//
// Producer: on-chip ITM, relayed by a debug probe
// Consumer: itmdump collector

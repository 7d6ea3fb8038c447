// Package modem provides the acoustic codec adapter used for data-over-sound
// challenges. It converts normalized capture audio into the modem's 8-bit
// input domain, feeds it through a pluggable decoding engine, and ships a
// Goertzel-based FSK reference engine with an encoder for the venue side.
package modem

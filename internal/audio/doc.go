// Package audio implements the capture pipeline feeding the acoustic codec.
// It defines the Source abstraction over live PCM input, frames samples into
// fixed-size buffers, and delivers them on a bounded channel with lossy
// backpressure.
package audio

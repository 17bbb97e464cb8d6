// Package record is the composite recording engine: it tiles every
// participant's video into one canvas on a fixed cadence, mixes all
// audio into a single track and feeds both through an incremental
// encoder, producing exactly one artifact per session.
//
// Decoded media reaches the engine through the source interfaces below.
// Decoders are platform primitives and live behind them, the same way
// connection objects live behind the rtc package.
package record

import "image"

// VideoSource supplies the most recent decoded frame of one
// participant. Frame returns nil when no video is available (camera
// off, or nothing decoded yet); the participant still occupies a
// labeled cell.
type VideoSource interface {
	ID() string
	Label() string
	Frame() *image.RGBA
}

// AudioSource supplies mono signed 16-bit PCM. ReadPCM fills dst with
// whatever is available now and returns the number of samples written;
// a silent source returns 0.
type AudioSource interface {
	ID() string
	ReadPCM(dst []int16) int
}

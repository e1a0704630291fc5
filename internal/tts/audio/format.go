// Package audio provides WAV decoding, format validation and the ordered,
// gapless concatenation used to stitch per-chunk speech into one file.
package audio

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-audio/wav"
)

// Constants for supported bit depths.
const (
	bitDepth8  = 8
	bitDepth16 = 16
	bitDepth24 = 24
	bitDepth32 = 32

	// silentSample8 is the zero level of unsigned 8-bit PCM.
	silentSample8 = 128
)

// Constants for format validation limits.
const (
	maxSampleRate = 192000
	maxChannels   = 8
)

// wavFormatPCM is the WAVE format tag of uncompressed integer PCM.
const wavFormatPCM = 1

// Error formats.
const (
	errFmtSampleRateRange = "%w: sample rate must be between 1 and %d Hz"
	errFmtBitDepthValues  = "%w: bit depth must be 8, 16, 24, or 32"
	errFmtChannelsRange   = "%w: channels must be between 1 and %d"
)

// Common errors for the audio package.
var (
	ErrInvalidFormat     = errors.New("invalid audio format")
	ErrUnsupportedFormat = errors.New("unsupported audio file")
	ErrFormatMismatch    = errors.New("audio format mismatch")
	ErrNoAudio           = errors.New("no audio to merge")
)

// Format describes the PCM layout of a WAV file.
type Format struct {
	SampleRate int `json:"sampleRate"`
	Channels   int `json:"channels"`
	BitDepth   int `json:"bitDepth"`
}

// String renders the format for logs and errors.
func (f Format) String() string {
	return fmt.Sprintf("%d Hz/%d ch/%d bit", f.SampleRate, f.Channels, f.BitDepth)
}

// Validate checks the format is within reasonable bounds.
func (f Format) Validate() error {
	if f.SampleRate <= 0 || f.SampleRate > maxSampleRate {
		return fmt.Errorf(errFmtSampleRateRange, ErrInvalidFormat, maxSampleRate)
	}

	switch f.BitDepth {
	case bitDepth8, bitDepth16, bitDepth24, bitDepth32:
	default:
		return fmt.Errorf(errFmtBitDepthValues, ErrInvalidFormat)
	}

	if f.Channels <= 0 || f.Channels > maxChannels {
		return fmt.Errorf(errFmtChannelsRange, ErrInvalidFormat, maxChannels)
	}

	return nil
}

// FramesFor returns the number of sample frames covering duration d.
func (f Format) FramesFor(d time.Duration) int {
	if d <= 0 {
		return 0
	}

	return int(d * time.Duration(f.SampleRate) / time.Second)
}

// DurationOf returns the playback time of the given number of frames.
func (f Format) DurationOf(frames int) time.Duration {
	if f.SampleRate == 0 {
		return 0
	}

	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

func readFormat(decoder *wav.Decoder, path string) (Format, error) {
	if !decoder.IsValidFile() {
		return Format{}, fmt.Errorf("%w: %s is not a WAV file", ErrUnsupportedFormat, path)
	}

	if decoder.WavAudioFormat != wavFormatPCM {
		return Format{}, fmt.Errorf(
			"%w: %s uses WAVE format tag %d, want PCM",
			ErrUnsupportedFormat, path, decoder.WavAudioFormat,
		)
	}

	format := Format{
		SampleRate: int(decoder.SampleRate),
		Channels:   int(decoder.NumChans),
		BitDepth:   int(decoder.BitDepth),
	}

	err := format.Validate()
	if err != nil {
		return Format{}, fmt.Errorf("%s: %w", path, err)
	}

	return format, nil
}

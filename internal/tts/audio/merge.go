package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	dirPermissions   = 0o750
	tempMergePattern = ".merge-*.wav"
)

// Segment is one entry of a merge: either a WAV file or a stretch of silence
// standing in for audio that could not be produced.
type Segment struct {
	Path    string
	Silence time.Duration
}

// FileSegment returns a segment reading the WAV file at path.
func FileSegment(path string) Segment {
	return Segment{Path: path}
}

// SilenceSegment returns a segment of d silence in the merged format.
func SilenceSegment(d time.Duration) Segment {
	return Segment{Silence: d}
}

// Info describes a merged output file.
type Info struct {
	Path     string        `json:"path"`
	Format   Format        `json:"format"`
	Frames   int           `json:"frames"`
	Duration time.Duration `json:"duration"`
}

// Merge appends the samples of every segment in order, with no gap, crossfade
// or normalization, and writes one PCM WAV file to outputPath. Every file must
// share the format of the first one. The output only appears once the whole
// merge has succeeded; a failure leaves no file behind.
func Merge(segments []Segment, outputPath string) (*Info, error) {
	format, err := mergeFormat(segments)
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(filepath.Dir(outputPath), dirPermissions)
	if err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(outputPath), tempMergePattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create merge file: %w", err)
	}

	tempPath := tempFile.Name()

	frames, err := writeSegments(tempFile, segments, format)

	closeErr := tempFile.Close()
	if err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close merge file: %w", closeErr)
	}

	if err == nil {
		err = os.Rename(tempPath, outputPath)
		if err != nil {
			err = fmt.Errorf("failed to move merged audio into place: %w", err)
		}
	}

	if err != nil {
		_ = os.Remove(tempPath)

		return nil, err
	}

	return &Info{
		Path:     outputPath,
		Format:   format,
		Frames:   frames,
		Duration: format.DurationOf(frames),
	}, nil
}

// mergeFormat reads the format of the first file segment. Silence has no
// format of its own, so a merge without any file has nothing to render.
func mergeFormat(segments []Segment) (Format, error) {
	for _, segment := range segments {
		if segment.Path == "" {
			continue
		}

		return headerFormat(segment.Path)
	}

	return Format{}, ErrNoAudio
}

func writeSegments(file *os.File, segments []Segment, format Format) (int, error) {
	encoder := wav.NewEncoder(file, format.SampleRate, format.BitDepth, format.Channels, wavFormatPCM)

	frames := 0

	for index, segment := range segments {
		buffer, err := segmentBuffer(segment, format)
		if err != nil {
			return 0, fmt.Errorf("segment %d: %w", index, err)
		}

		err = encoder.Write(buffer)
		if err != nil {
			return 0, fmt.Errorf("failed to write segment %d: %w", index, err)
		}

		frames += len(buffer.Data) / format.Channels
	}

	err := encoder.Close()
	if err != nil {
		return 0, fmt.Errorf("failed to finalize WAV header: %w", err)
	}

	return frames, nil
}

func segmentBuffer(segment Segment, format Format) (*goaudio.IntBuffer, error) {
	if segment.Path == "" {
		return silenceBuffer(format, segment.Silence), nil
	}

	buffer, fileFormat, err := Decode(segment.Path)
	if err != nil {
		return nil, err
	}

	if fileFormat != format {
		return nil, fmt.Errorf("%w: %s is %s, want %s", ErrFormatMismatch, segment.Path, fileFormat, format)
	}

	return buffer, nil
}

// silenceBuffer renders d of silence. 8-bit PCM is unsigned and rests at its
// midpoint; every wider depth is signed and rests at zero.
func silenceBuffer(format Format, d time.Duration) *goaudio.IntBuffer {
	data := make([]int, format.FramesFor(d)*format.Channels)

	if format.BitDepth == bitDepth8 {
		for i := range data {
			data[i] = silentSample8
		}
	}

	return &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           data,
		SourceBitDepth: format.BitDepth,
	}
}

func headerFormat(path string) (Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return Format{}, fmt.Errorf("failed to open audio file %s: %w", path, err)
	}
	defer file.Close()

	return readFormat(wav.NewDecoder(file), path)
}

// Decode reads every sample of a PCM WAV file.
func Decode(path string) (*goaudio.IntBuffer, Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("failed to open audio file %s: %w", path, err)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)

	format, err := readFormat(decoder, path)
	if err != nil {
		return nil, Format{}, err
	}

	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, Format{}, fmt.Errorf("%w: failed to read samples of %s: %w", ErrUnsupportedFormat, path, err)
	}

	return buffer, format, nil
}

// Encode writes samples as a PCM WAV file. The number of samples must be a
// multiple of the channel count.
func Encode(path string, samples []int, format Format) error {
	err := format.Validate()
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create audio file %s: %w", path, err)
	}

	encoder := wav.NewEncoder(file, format.SampleRate, format.BitDepth, format.Channels, wavFormatPCM)

	writeErr := encoder.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: format.Channels, SampleRate: format.SampleRate},
		Data:           samples,
		SourceBitDepth: format.BitDepth,
	})
	if writeErr == nil {
		writeErr = encoder.Close()
	}

	closeErr := file.Close()

	if writeErr != nil {
		return fmt.Errorf("failed to encode %s: %w", path, writeErr)
	}

	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", path, closeErr)
	}

	return nil
}

package audio

import "encoding/binary"

const (
	wavHeaderSize   = 44
	fmtChunkSize    = 16
	riffHeaderExtra = 36
	bytesPerSample  = 2
)

// WrapPCM16 builds a complete 16-bit PCM WAV file around interleaved samples.
func WrapPCM16(samples []int16, sampleRate, channels int) []byte {
	dataSize := len(samples) * bytesPerSample
	blockAlign := channels * bytesPerSample

	wav := make([]byte, wavHeaderSize, wavHeaderSize+dataSize)

	copy(wav[0:4], "RIFF")
	binary.LittleEndian.PutUint32(wav[4:8], uint32(riffHeaderExtra+dataSize))
	copy(wav[8:12], "WAVE")

	copy(wav[12:16], "fmt ")
	binary.LittleEndian.PutUint32(wav[16:20], fmtChunkSize)
	binary.LittleEndian.PutUint16(wav[20:22], wavFormatPCM)
	binary.LittleEndian.PutUint16(wav[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(wav[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(wav[28:32], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(wav[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(wav[34:36], bitDepth16)

	copy(wav[36:40], "data")
	binary.LittleEndian.PutUint32(wav[40:44], uint32(dataSize))

	for _, sample := range samples {
		wav = binary.LittleEndian.AppendUint16(wav, uint16(sample))
	}

	return wav
}

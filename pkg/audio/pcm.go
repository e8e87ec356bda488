package audio

import "encoding/binary"

// BytesToPCM interprets little-endian 16-bit sample data. A trailing
// odd byte is ignored.
func BytesToPCM(data []byte) []int16 {
	n := len(data) / 2
	pcm := make([]int16, n)
	for i := 0; i < n; i++ {
		pcm[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return pcm
}

// PCMToBytes serializes samples as little-endian 16-bit data.
func PCMToBytes(pcm []int16) []byte {
	data := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(data[i*2:i*2+2], uint16(s))
	}
	return data
}

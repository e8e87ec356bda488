// Package ulaw implements ITU-T G.711 mu-law companding as used on
// North American telephone lines. Twilio Media Streams carry audio as
// 8-bit mu-law at 8 kHz; everything downstream of the transport works
// on 16-bit linear PCM, so every inbound and outbound frame passes
// through this package.
package ulaw

const (
	// Silence is the mu-law byte for a zero-amplitude sample. Short
	// final frames are padded with it.
	Silence byte = 0xFF

	bias = 0x84
	clip = 32635
)

// DecodeSample expands one mu-law byte to a 16-bit linear PCM sample.
func DecodeSample(u byte) int16 {
	u = ^u
	exponent := (u >> 4) & 0x07
	mantissa := u & 0x0F

	magnitude := ((int32(mantissa)<<1 | 0x21) << (exponent + 2)) - bias
	if u&0x80 != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// EncodeSample compresses one 16-bit linear PCM sample to a mu-law byte.
func EncodeSample(s int16) byte {
	v := int32(s)
	var sign byte
	if v < 0 {
		sign = 0x80
		v = -v
	}
	if v > clip {
		v = clip
	}
	v += bias

	var exponent byte
	for i := byte(7); i >= 1; i-- {
		if v >= 1<<(i+7) {
			exponent = i
			break
		}
	}
	mantissa := byte(v>>(exponent+3)) & 0x0F

	return ^(sign | exponent<<4 | mantissa)
}

// Decode expands a mu-law byte slice to 16-bit linear PCM.
func Decode(data []byte) []int16 {
	pcm := make([]int16, len(data))
	for i, u := range data {
		pcm[i] = DecodeSample(u)
	}
	return pcm
}

// Encode compresses 16-bit linear PCM to mu-law bytes.
func Encode(pcm []int16) []byte {
	data := make([]byte, len(pcm))
	for i, s := range pcm {
		data[i] = EncodeSample(s)
	}
	return data
}

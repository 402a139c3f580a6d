package codec

import (
	"encoding/binary"
	"fmt"
)

// signExtend interprets the low bits of v as a two's-complement value.
func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

// Decode unpacks len(out) samples from data. data must hold at least
// SampleBytes(code, len(out)) bytes; the first sample must sit at the
// start of a packing group.
func Decode(code string, data []byte, out []int32) error {
	need, err := SampleBytes(code, len(out))
	if err != nil {
		return err
	}
	if len(data) < need {
		return fmt.Errorf("format %s: need %d bytes for %d samples, have %d",
			code, need, len(out), len(data))
	}

	switch code {
	case "80":
		for i := range out {
			out[i] = int32(data[i]) - 128
		}
	case "16":
		for i := range out {
			out[i] = int32(int16(binary.LittleEndian.Uint16(data[2*i:])))
		}
	case "61":
		for i := range out {
			out[i] = int32(int16(binary.BigEndian.Uint16(data[2*i:])))
		}
	case "160":
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint16(data[2*i:])) - 32768
		}
	case "24":
		for i := range out {
			v := uint32(data[3*i]) | uint32(data[3*i+1])<<8 | uint32(data[3*i+2])<<16
			out[i] = signExtend(v, 24)
		}
	case "32":
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(data[4*i:]))
		}
	case "212":
		// Two 12-bit samples per 3 bytes: the middle byte carries the high
		// nibbles of both neighbours.
		for i := range out {
			g, k := i/2, i%2
			b := data[3*g:]
			if k == 0 {
				out[i] = signExtend(uint32(b[0])|uint32(b[1]&0x0f)<<8, 12)
			} else {
				out[i] = signExtend(uint32(b[2])|uint32(b[1]&0xf0)<<4, 12)
			}
		}
	case "310":
		// Three 10-bit samples per 4 bytes. The first two live in bits 1-10
		// of each little-endian byte pair; the third is split across the
		// high 5 bits of both pairs.
		for i := range out {
			g, k := i/3, i%3
			b := data[4*g:]
			switch k {
			case 0:
				w := binary.LittleEndian.Uint16(b)
				out[i] = signExtend(uint32(w>>1)&0x3ff, 10)
			case 1:
				w := binary.LittleEndian.Uint16(b[2:])
				out[i] = signExtend(uint32(w>>1)&0x3ff, 10)
			default:
				w0 := binary.LittleEndian.Uint16(b)
				w1 := binary.LittleEndian.Uint16(b[2:])
				out[i] = signExtend(uint32(w0>>11)|uint32(w1>>11)<<5, 10)
			}
		}
	case "311":
		// Three 10-bit samples packed contiguously into the low 30 bits of
		// a little-endian 32-bit word.
		for i := range out {
			g, k := i/3, i%3
			b := data[4*g:]
			var v uint32
			switch k {
			case 0:
				v = uint32(b[0]) | uint32(b[1])<<8
			case 1:
				v = (uint32(b[1]) | uint32(b[2])<<8) >> 2
			default:
				v = (uint32(b[2]) | uint32(b[3])<<8) >> 4
			}
			out[i] = signExtend(v&0x3ff, 10)
		}
	default:
		return fmt.Errorf("unknown dat format %q", code)
	}
	return nil
}

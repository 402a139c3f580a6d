package codec

import (
	"encoding/binary"
	"fmt"
)

// Encode packs samples into the on-disk byte layout of the given format.
// Values are masked to the format's bit width; callers clamp to the
// representable range beforehand. Partial trailing groups are emitted in
// sample granularity, matching SampleBytes.
func Encode(code string, samples []int32) ([]byte, error) {
	need, err := SampleBytes(code, len(samples))
	if err != nil {
		return nil, err
	}
	out := make([]byte, need)

	switch code {
	case "80":
		for i, v := range samples {
			out[i] = byte(v + 128)
		}
	case "16":
		for i, v := range samples {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
		}
	case "61":
		for i, v := range samples {
			binary.BigEndian.PutUint16(out[2*i:], uint16(v))
		}
	case "160":
		for i, v := range samples {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v+32768))
		}
	case "24":
		for i, v := range samples {
			out[3*i] = byte(v)
			out[3*i+1] = byte(v >> 8)
			out[3*i+2] = byte(v >> 16)
		}
	case "32":
		for i, v := range samples {
			binary.LittleEndian.PutUint32(out[4*i:], uint32(v))
		}
	case "212":
		for i, v := range samples {
			g, k := i/2, i%2
			u := uint32(v) & 0xfff
			b := out[3*g:]
			if k == 0 {
				b[0] = byte(u)
				b[1] |= byte(u >> 8)
			} else {
				b[2] = byte(u)
				b[1] |= byte(u>>8) << 4
			}
		}
	case "310":
		for i, v := range samples {
			g, k := i/3, i%3
			u := uint16(v) & 0x3ff
			b := out[4*g:]
			switch k {
			case 0:
				w := binary.LittleEndian.Uint16(b)
				binary.LittleEndian.PutUint16(b, w|u<<1)
			case 1:
				w := binary.LittleEndian.Uint16(b[2:])
				binary.LittleEndian.PutUint16(b[2:], w|u<<1)
			default:
				w0 := binary.LittleEndian.Uint16(b)
				w1 := binary.LittleEndian.Uint16(b[2:])
				binary.LittleEndian.PutUint16(b, w0|(u&0x1f)<<11)
				binary.LittleEndian.PutUint16(b[2:], w1|(u>>5)<<11)
			}
		}
	case "311":
		for i, v := range samples {
			g, k := i/3, i%3
			u := uint32(v) & 0x3ff
			b := out[4*g:]
			switch k {
			case 0:
				b[0] = byte(u)
				b[1] |= byte(u >> 8)
			case 1:
				b[1] |= byte(u << 2)
				b[2] |= byte(u >> 6)
			default:
				b[2] |= byte(u << 4)
				b[3] = byte(u >> 4)
			}
		}
	default:
		return nil, fmt.Errorf("unknown dat format %q", code)
	}
	return out, nil
}

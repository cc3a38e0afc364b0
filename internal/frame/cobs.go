// Package frame implements the BadgeLink wire's byte-stuffing layer:
// consistent overhead byte stuffing (COBS) framing, so an otherwise
// in-band zero byte can serve as the sole frame delimiter.
package frame

// MaxEncodedLen bounds the length of Encode's output for an n-byte
// input, delimiter included: n + ceil((n+253)/254) + 1.
func MaxEncodedLen(n int) int {
	return n + (n+253+253)/254 + 1
}

// Encode byte-stuffs buf so the result contains no zero bytes except a
// single terminating zero. It always allocates a fresh buffer, since
// the output is longer than the input.
func Encode(buf []byte) []byte {
	out := make([]byte, 0, MaxEncodedLen(len(buf)))
	codeIdx := 0
	out = append(out, 0) // placeholder for the first run's length byte
	code := byte(1)

	for _, b := range buf {
		if b == 0 {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0) // placeholder for the next run
			code = 1
			continue
		}
		out = append(out, b)
		code++
		if code == 0xFF {
			out[codeIdx] = code
			codeIdx = len(out)
			out = append(out, 0)
			code = 1
		}
	}
	out[codeIdx] = code
	out = append(out, 0) // frame delimiter
	return out
}

// Decode reverses Encode. framed must include the terminating zero.
// Decoding happens in place: the returned slice aliases framed's
// backing array, since the decoded output is always no longer than
// the input.
//
// Decode never returns an error. A truncated or otherwise malformed
// run is handled by returning whatever prefix could be recovered, since
// the packet layer above discards packets that fail their integrity
// check or schema decode, so a corrupted frame simply fails further up
// the pipeline rather than here.
func Decode(framed []byte) []byte {
	if len(framed) == 0 {
		return nil
	}
	// n excludes the trailing frame delimiter.
	n := len(framed) - 1
	out := framed[:0]
	i := 0
	for i < n {
		code := framed[i]
		if code == 0 {
			// A zero before the delimiter never occurs in a valid
			// frame; stop and return what has been recovered so far.
			break
		}
		i++
		blockLen := int(code) - 1
		if i+blockLen > n {
			break
		}
		copy(out[len(out):len(out)+blockLen], framed[i:i+blockLen])
		out = out[:len(out)+blockLen]
		i += blockLen
		if code < 0xFF && i < n {
			out = append(out, 0)
		}
	}
	return out
}

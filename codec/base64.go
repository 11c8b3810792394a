// File: codec/base64.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package codec implements a text-safe base64 codec over caller-sized buffers.
//
// Encoding is standard padded base64. Decoding is lenient in the way RTSP and
// SDP peers expect: it stops at the first '=' (or at the end of input), ignores
// a trailing partial sextet, and rejects any symbol outside the alphabet.
package codec

import (
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrShortBuffer is returned when the destination cannot hold the output.
var ErrShortBuffer = errors.New("codec: destination buffer too small")

// FormatError reports the first symbol outside the base64 alphabet.
type FormatError struct {
	Offset int
	Symbol byte
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("codec: illegal base64 symbol %q at offset %d", e.Symbol, e.Offset)
}

const invalid = 0xff

var decodeMap = func() [256]byte {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	var m [256]byte
	for i := range m {
		m[i] = invalid
	}
	for i := 0; i < len(alphabet); i++ {
		m[alphabet[i]] = byte(i)
	}
	return m
}()

// EncodedLen returns the length of the padded encoding of n bytes.
func EncodedLen(n int) int {
	return (n + 2) / 3 * 4
}

// EncodeBufferSize returns the destination size EncodeTo requires for n bytes:
// the encoding plus a NUL terminator.
func EncodeBufferSize(n int) int {
	return EncodedLen(n) + 1
}

// EncodeTo writes the encoding of src followed by a NUL byte into dst and
// returns the encoded length, terminator excluded.
func EncodeTo(dst, src []byte) (int, error) {
	if len(dst) < EncodeBufferSize(len(src)) {
		return 0, ErrShortBuffer
	}
	n := EncodedLen(len(src))
	base64.StdEncoding.Encode(dst, src)
	dst[n] = 0
	return n, nil
}

// Encode returns the padded encoding of src.
func Encode(src []byte) string {
	return base64.StdEncoding.EncodeToString(src)
}

// EncodeString returns the padded encoding of s.
func EncodeString(s string) string {
	return Encode([]byte(s))
}

// DecodeTo decodes src into dst and returns the number of bytes written, or
// -1 if src holds a symbol outside the alphabet before the first '='. Output
// beyond len(dst) is dropped.
func DecodeTo(dst, src []byte) int {
	n, _ := decode(dst, src)
	return n
}

// Decode decodes s, returning a *FormatError on an illegal symbol.
func Decode(s string) ([]byte, error) {
	dst := make([]byte, DecodedLen(len(s)))
	n, err := decode(dst, []byte(s))
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// DecodeString decodes s and returns the result as a string. Malformed or
// empty input yields "".
func DecodeString(s string) string {
	b, err := Decode(s)
	if err != nil {
		return ""
	}
	return string(b)
}

// DecodedLen returns the maximum number of bytes n symbols decode to.
func DecodedLen(n int) int {
	return n * 3 / 4
}

func decode(dst, src []byte) (int, error) {
	var acc uint32
	w := 0
	for i, c := range src {
		if c == '=' {
			break
		}
		v := decodeMap[c]
		if v == invalid {
			return -1, &FormatError{Offset: i, Symbol: c}
		}
		acc = acc<<6 | uint32(v)
		// every symbol after the first of a quantum completes one byte
		if k := i & 3; k != 0 && w < len(dst) {
			dst[w] = byte(acc >> (6 - 2*k))
			w++
		}
	}
	return w, nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gatepro

import (
	"fmt"
	"strings"
)

// Escape sequences for control and quoting bytes
var escapeTable = [256]string{
	0x07: `\a`,
	0x08: `\b`,
	0x09: `\t`,
	0x0A: `\n`,
	0x0B: `\v`,
	0x0C: `\f`,
	0x0D: `\r`,
	0x1B: `\e`,
	'"':  `\"`,
	'\'': `\'`,
	'\\': `\\`,
}

// unescapeTable maps the character after a backslash back to its byte
var unescapeTable = map[byte]byte{
	'a':  0x07,
	'b':  0x08,
	't':  0x09,
	'n':  0x0A,
	'v':  0x0B,
	'f':  0x0C,
	'r':  0x0D,
	'e':  0x1B,
	'"':  '"',
	'\'': '\'',
	'\\': '\\',
}

const hexDigits = "0123456789ABCDEF"

// Escape converts raw bytes into their printable form. Control bytes with a
// short C escape use it, any other byte below 32 or above 127 becomes \xHH and
// printable ASCII passes through. Every byte value has a mapping.
func Escape(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data))

	for _, b := range data {
		if esc := escapeTable[b]; esc != "" {
			sb.WriteString(esc)
			continue
		}
		if b < 32 || b > 127 {
			sb.WriteString(`\x`)
			sb.WriteByte(hexDigits[b>>4])
			sb.WriteByte(hexDigits[b&0x0F])
			continue
		}
		sb.WriteByte(b)
	}

	return sb.String()
}

// Unescape is the inverse of Escape.
func Unescape(s string) ([]byte, error) {
	result := make([]byte, 0, len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			result = append(result, c)
			continue
		}

		if i+1 >= len(s) {
			return nil, fmt.Errorf("incomplete escape sequence at offset %d", i)
		}
		next := s[i+1]

		if next == 'x' {
			if i+3 >= len(s) {
				return nil, fmt.Errorf("incomplete hex escape at offset %d", i)
			}
			hi, ok1 := hexValue(s[i+2])
			lo, ok2 := hexValue(s[i+3])
			if !ok1 || !ok2 {
				return nil, fmt.Errorf("invalid hex escape %q at offset %d", s[i:i+4], i)
			}
			result = append(result, hi<<4|lo)
			i += 3
			continue
		}

		b, ok := unescapeTable[next]
		if !ok {
			return nil, fmt.Errorf("unknown escape sequence %q at offset %d", s[i:i+2], i)
		}
		result = append(result, b)
		i++
	}

	return result, nil
}

func hexValue(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	}
	return 0, false
}

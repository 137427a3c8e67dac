package credentials

import (
	"encoding/base64"
	"strings"
)

// Obfuscate hides an API key from casual inspection. It is an encoding,
// not encryption: the standard base64 of the key's Latin-1 bytes, reversed.
// A key with characters outside Latin-1 is returned unchanged.
func Obfuscate(key string) string {
	raw := make([]byte, 0, len(key))
	for _, r := range key {
		if r > 0xFF {
			return key
		}
		raw = append(raw, byte(r))
	}
	return reverse(base64.StdEncoding.EncodeToString(raw))
}

// Deobfuscate reverses Obfuscate. Decoding is forgiving: ASCII whitespace
// is ignored and padding is optional. Input that does not decode is
// returned unchanged.
func Deobfuscate(obscured string) string {
	encoded := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\f', '\r':
			return -1
		}
		return r
	}, reverse(obscured))

	if len(encoded)%4 == 0 {
		encoded = strings.TrimSuffix(encoded, "=")
		encoded = strings.TrimSuffix(encoded, "=")
	}
	if len(encoded)%4 == 1 {
		return obscured
	}

	raw, err := base64.RawStdEncoding.DecodeString(encoded)
	if err != nil {
		return obscured
	}

	var sb strings.Builder
	sb.Grow(len(raw))
	for _, b := range raw {
		sb.WriteRune(rune(b))
	}
	return sb.String()
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

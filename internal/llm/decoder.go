package llm

import (
	"errors"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// textDecoder turns byte chunks into text. A multi-byte character cut by a
// chunk boundary is held back until the rest arrives; invalid sequences
// become U+FFFD and a leading BOM is dropped.
type textDecoder struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

func newTextDecoder() *textDecoder {
	return &textDecoder{
		t:   unicode.UTF8BOM.NewDecoder(),
		dst: make([]byte, 4096),
	}
}

// decode converts p, prefixed by any bytes held from the previous call.
// With final set, held bytes are flushed (as U+FFFD if incomplete).
func (d *textDecoder) decode(p []byte, final bool) string {
	src := p
	if len(d.pending) > 0 {
		src = append(d.pending, p...)
		d.pending = nil
	}

	var out []byte
	for {
		nDst, nSrc, err := d.t.Transform(d.dst, src, final)
		out = append(out, d.dst[:nDst]...)
		src = src[nSrc:]
		if errors.Is(err, transform.ErrShortDst) {
			continue
		}
		// nil or ErrShortSrc: the rest is an incomplete sequence
		break
	}

	if len(src) > 0 {
		d.pending = append([]byte(nil), src...)
	}
	return string(out)
}

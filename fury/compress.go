package fury

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"github.com/graildata/fury/ferrors"
)

// maybeCompress wraps payload in a flate envelope when cfg is set and
// payload is at least cfg.Threshold bytes, mirroring recordioflate's
// flateCompress: a single flate.NewWriter pass at cfg.Level, defaulting to
// flate.DefaultCompression. Either way a one-byte envelope tag is
// prepended (envelopeRaw before an uncompressed payload, envelopeFlate
// before a compressed one) so decode can tell the two apart.
func maybeCompress(cfg *CompressConfig, payload []byte) ([]byte, error) {
	if cfg == nil || len(payload) < cfg.Threshold {
		return append([]byte{envelopeRaw}, payload...), nil
	}
	level := cfg.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	var out bytes.Buffer
	out.WriteByte(envelopeFlate)
	wr, err := flate.NewWriter(&out, level)
	if err != nil {
		return nil, err
	}
	if _, err := wr.Write(payload); err != nil {
		return nil, err
	}
	if err := wr.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

const (
	envelopeRaw byte = iota
	envelopeFlate
)

// decompress reverses maybeCompress, reading the one-byte envelope tag
// maybeCompress prepended.
func decompress(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, ferrors.E(ferrors.Truncation, "fury: empty compression envelope")
	}
	tag, body := framed[0], framed[1:]
	switch tag {
	case envelopeRaw:
		return body, nil
	case envelopeFlate:
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		var out bytes.Buffer
		if _, err := io.Copy(&out, r); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	default:
		return nil, ferrors.E(ferrors.ProtocolMismatch, fmt.Sprintf("fury: unknown compression envelope tag %d", tag))
	}
}

package metastring

import "github.com/graildata/fury/buffer"

// WriteTo serializes ms onto buf per spec.md §4.4's wire format:
// u8(encoding), VarUint32(numBits), then ceil(numBits/8) payload bytes.
func WriteTo(buf *buffer.Buffer, ms MetaString) {
	buf.WriteByte(byte(ms.Encoding))
	buf.WriteVarUint32Small7(uint32(ms.NumBits))
	buf.WriteBytes(ms.Payload)
}

// ReadFrom reads a MetaString written by WriteTo and decodes it back to
// its original string using sc (the special-character pair the writer
// used for LOWER_UPPER_DIGIT_SPECIAL).
func ReadFrom(buf *buffer.Buffer, sc SpecialChars) (string, error) {
	encByte, err := buf.ReadByte()
	if err != nil {
		return "", err
	}
	numBits, err := buf.ReadVarUint32Small7()
	if err != nil {
		return "", err
	}
	payload, err := buf.ReadBytes((int(numBits) + 7) / 8)
	if err != nil {
		return "", err
	}
	return Decode(payload, Encoding(encByte), int(numBits), sc)
}

package keys

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// EncryptionType identifies the cipher/MAC combination of an EncString.
type EncryptionType int

const (
	AesCbc256B64                   EncryptionType = 0
	AesCbc128HmacSha256B64         EncryptionType = 1
	AesCbc256HmacSha256B64         EncryptionType = 2
	Rsa2048OaepSha256B64           EncryptionType = 3
	Rsa2048OaepSha1B64             EncryptionType = 4
	Rsa2048OaepSha256HmacSha256B64 EncryptionType = 5
	Rsa2048OaepSha1HmacSha256B64   EncryptionType = 6
)

func (t EncryptionType) isRSA() bool {
	return t >= Rsa2048OaepSha256B64 && t <= Rsa2048OaepSha1HmacSha256B64
}

// parts is the number of pipe-delimited segments each type carries.
func (t EncryptionType) parts() int {
	switch t {
	case AesCbc256B64:
		return 2
	case AesCbc128HmacSha256B64, AesCbc256HmacSha256B64:
		return 3
	case Rsa2048OaepSha256B64, Rsa2048OaepSha1B64:
		return 1
	case Rsa2048OaepSha256HmacSha256B64, Rsa2048OaepSha1HmacSha256B64:
		return 2
	default:
		return 0
	}
}

// EncString is the serialized envelope "<type>.<iv>|<data>|<mac>".
type EncString struct {
	Type EncryptionType
	IV   []byte
	Data []byte
	MAC  []byte
}

// ParseEncString decodes the wire form. Any structural problem yields ErrUnwrap
// so callers cannot distinguish malformed input from a wrong key.
func ParseEncString(s string) (EncString, error) {
	head, body, ok := strings.Cut(s, ".")
	if !ok {
		return EncString{}, ErrUnwrap
	}
	n, err := strconv.Atoi(head)
	if err != nil {
		return EncString{}, ErrUnwrap
	}
	typ := EncryptionType(n)
	want := typ.parts()
	if want == 0 {
		return EncString{}, ErrUnwrap
	}

	segments := strings.Split(body, "|")
	if len(segments) != want {
		return EncString{}, ErrUnwrap
	}
	decoded := make([][]byte, len(segments))
	for i, seg := range segments {
		b, err := base64.StdEncoding.DecodeString(seg)
		if err != nil || len(b) == 0 {
			return EncString{}, ErrUnwrap
		}
		decoded[i] = b
	}

	enc := EncString{Type: typ}
	switch {
	case typ.isRSA():
		enc.Data = decoded[0]
		if want == 2 {
			enc.MAC = decoded[1]
		}
	default:
		enc.IV = decoded[0]
		enc.Data = decoded[1]
		if want == 3 {
			enc.MAC = decoded[2]
		}
	}
	return enc, nil
}

// String renders the wire form.
func (e EncString) String() string {
	var segs []string
	if !e.Type.isRSA() {
		segs = append(segs, base64.StdEncoding.EncodeToString(e.IV))
	}
	segs = append(segs, base64.StdEncoding.EncodeToString(e.Data))
	if len(e.MAC) > 0 {
		segs = append(segs, base64.StdEncoding.EncodeToString(e.MAC))
	}
	return fmt.Sprintf("%d.%s", int(e.Type), strings.Join(segs, "|"))
}

// IsZero reports whether e holds no ciphertext.
func (e EncString) IsZero() bool { return len(e.Data) == 0 }

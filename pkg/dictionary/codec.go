package dictionary

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"

	"github.com/spokdb/spok/pkg/spokerr"
	"github.com/spokdb/spok/pkg/term"
)

// kindByte discriminates the five allocated term shapes within the
// str2id/id2str key space. Inline terms (integer, decimal, datetime)
// never reach this codec.
type kindByte byte

const (
	kindURI          kindByte = 0x01
	kindBlank        kindByte = 0x02
	kindLiteralPlain kindByte = 0x03
	kindLiteralTyped kindByte = 0x04
	kindLiteralLang  kindByte = 0x05
)

// maxTermBytes bounds the encoded size of a single term. Terms larger
// than this are rejected before touching the store, per the
// term_too_large validation error.
const maxTermBytes = 16 * 1024

// encodeTermKey renders t into the canonical byte string used both as
// the str2id lookup key and, unmodified, as the payload mirrored into
// id2str. Two terms that are RDF-equal always encode identically,
// which is what makes str2id a correct reverse index.
func encodeTermKey(t term.Term) ([]byte, error) {
	switch v := t.(type) {
	case term.IRI:
		return encodeURI(v)
	case term.BlankNode:
		return encodeBlank(v)
	case term.Literal:
		return encodeLiteral(v)
	default:
		return nil, spokerr.New(spokerr.Unknown, "unrecognised term type")
	}
}

func encodeURI(v term.IRI) ([]byte, error) {
	if err := validateURI(v.Value); err != nil {
		return nil, err
	}
	nfc := norm.NFC.String(v.Value)
	return withSizeCheck(append([]byte{byte(kindURI)}, nfc...))
}

func encodeBlank(v term.BlankNode) ([]byte, error) {
	if err := validateUTF8(v.Label); err != nil {
		return nil, err
	}
	nfc := norm.NFC.String(v.Label)
	return withSizeCheck(append([]byte{byte(kindBlank)}, nfc...))
}

func encodeLiteral(v term.Literal) ([]byte, error) {
	if err := validateUTF8(v.Lexical); err != nil {
		return nil, err
	}
	lexical := norm.NFC.String(v.Lexical)

	switch {
	case v.Language != "":
		lang := norm.NFC.String(v.Language)
		out := make([]byte, 0, 1+1+len(lang)+len(lexical))
		out = append(out, byte(kindLiteralLang))
		out, err := appendLenPrefixed8(out, lang)
		if err != nil {
			return nil, err
		}
		out = append(out, lexical...)
		return withSizeCheck(out)
	case v.Datatype != nil:
		if err := validateURI(v.Datatype.Value); err != nil {
			return nil, err
		}
		dt := norm.NFC.String(v.Datatype.Value)
		out := make([]byte, 0, 1+2+len(dt)+len(lexical))
		out = append(out, byte(kindLiteralTyped))
		out = appendLenPrefixed(out, dt)
		out = append(out, lexical...)
		return withSizeCheck(out)
	default:
		out := append([]byte{byte(kindLiteralPlain)}, lexical...)
		return withSizeCheck(out)
	}
}

// appendLenPrefixed writes a 2-byte length-prefixed field, used for the
// datatype IRI of a typed literal (kindLiteralTyped).
func appendLenPrefixed(out []byte, s string) []byte {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	out = append(out, lenBuf[:]...)
	return append(out, s...)
}

// appendLenPrefixed8 writes a 1-byte length-prefixed field, used for
// the language tag of a language-tagged literal (kindLiteralLang):
// language tags never approach 256 bytes, so a full 2-byte prefix
// would waste a byte on every such literal.
func appendLenPrefixed8(out []byte, s string) ([]byte, error) {
	if len(s) > 0xff {
		return nil, spokerr.New(spokerr.TermTooLarge, "language tag exceeds 255 bytes")
	}
	out = append(out, byte(len(s)))
	return append(out, s...), nil
}

func withSizeCheck(b []byte) ([]byte, error) {
	if len(b) > maxTermBytes {
		return nil, spokerr.New(spokerr.TermTooLarge, "term exceeds maximum encoded size")
	}
	return b, nil
}

func validateURI(s string) error {
	if err := validateUTF8(s); err != nil {
		return err
	}
	for i := 0; i < len(s); i++ {
		if s[i] == 0 {
			return spokerr.New(spokerr.NullByteInURI, "uri contains a null byte")
		}
	}
	return nil
}

func validateUTF8(s string) error {
	if !utf8.ValidString(s) {
		return spokerr.New(spokerr.InvalidUTF8, "term is not valid UTF-8")
	}
	return nil
}

// decodeTermValue is the inverse of encodeTermKey: it reconstructs a
// term.Term from the bytes stored (identically) as a str2id key and
// as an id2str value.
func decodeTermValue(b []byte) (term.Term, error) {
	if len(b) == 0 {
		return nil, spokerr.New(spokerr.CorruptID, "empty term payload")
	}
	kind := kindByte(b[0])
	rest := b[1:]

	switch kind {
	case kindURI:
		return term.NewIRI(string(rest)), nil
	case kindBlank:
		return term.NewBlankNode(string(rest)), nil
	case kindLiteralPlain:
		return term.NewLiteral(string(rest)), nil
	case kindLiteralTyped:
		dt, lexical, err := splitLenPrefixed(rest)
		if err != nil {
			return nil, err
		}
		return term.NewTypedLiteral(lexical, term.NewIRI(dt)), nil
	case kindLiteralLang:
		lang, lexical, err := splitLenPrefixed8(rest)
		if err != nil {
			return nil, err
		}
		return term.NewLangLiteral(lexical, lang), nil
	default:
		return nil, spokerr.New(spokerr.CorruptID, "unrecognised term kind byte")
	}
}

// splitLenPrefixed is the inverse of appendLenPrefixed (2-byte prefix).
func splitLenPrefixed(b []byte) (head, tail string, err error) {
	if len(b) < 2 {
		return "", "", spokerr.New(spokerr.CorruptID, "truncated length-prefixed field")
	}
	n := int(binary.BigEndian.Uint16(b))
	if len(b) < 2+n {
		return "", "", spokerr.New(spokerr.CorruptID, "length-prefixed field overruns payload")
	}
	return string(b[2 : 2+n]), string(b[2+n:]), nil
}

// splitLenPrefixed8 is the inverse of appendLenPrefixed8 (1-byte prefix).
func splitLenPrefixed8(b []byte) (head, tail string, err error) {
	if len(b) < 1 {
		return "", "", spokerr.New(spokerr.CorruptID, "truncated length-prefixed field")
	}
	n := int(b[0])
	if len(b) < 1+n {
		return "", "", spokerr.New(spokerr.CorruptID, "length-prefixed field overruns payload")
	}
	return string(b[1 : 1+n]), string(b[1+n:]), nil
}

func idKeyBytes(id uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], id)
	return buf[:]
}

func idFromKeyBytes(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, spokerr.New(spokerr.CorruptID, "id2str key is not 8 bytes")
	}
	return binary.BigEndian.Uint64(b), nil
}

// frameValue appends an 8-byte xxh3 checksum of payload, so a torn
// write or a flipped bit in id2str is caught on read instead of
// silently decoding into the wrong term.
func frameValue(payload []byte) []byte {
	sum := xxh3.Hash(payload)
	var sumBuf [8]byte
	binary.BigEndian.PutUint64(sumBuf[:], sum)
	return append(append([]byte{}, payload...), sumBuf[:]...)
}

// unframeValue verifies and strips the checksum appended by
// frameValue.
func unframeValue(framed []byte) ([]byte, error) {
	if len(framed) < 8 {
		return nil, spokerr.New(spokerr.CorruptID, "id2str value shorter than checksum width")
	}
	payload := framed[:len(framed)-8]
	want := binary.BigEndian.Uint64(framed[len(framed)-8:])
	if xxh3.Hash(payload) != want {
		return nil, spokerr.New(spokerr.CorruptID, "id2str checksum mismatch")
	}
	return payload, nil
}

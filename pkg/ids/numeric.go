package ids

import (
	"math"
	"time"

	"github.com/spokdb/spok/pkg/spokerr"
)

const (
	// intBound is 2^59; valid integers lie in [-intBound, intBound).
	intBound = int64(1) << 59

	signBit60 = uint64(1) << 59
	wrap60    = uint64(1) << 60

	decimalMantissaBits = 48
	decimalExpBits      = 11
	decimalExpMask      = (uint64(1) << decimalExpBits) - 1
	decimalMantMask     = (uint64(1) << decimalMantissaBits) - 1
	decimalLowBitsLost  = 52 - decimalMantissaBits // low bits of an IEEE754 mantissa that must be zero to fit

	dateTimeBound = uint64(1) << 60
)

// EncodeInteger inline-encodes n as tag 4 if it fits in [-2^59, 2^59).
// Out-of-range integers must fall through to dictionary allocation as
// a typed literal.
func EncodeInteger(n int64) (uint64, error) {
	if n < -intBound || n >= intBound {
		return 0, spokerr.New(spokerr.OutOfRange, "integer outside [-2^59, 2^59)")
	}
	payload := uint64(n) & valMask
	return EncodeID(TagInteger, payload), nil
}

// DecodeInteger recovers the int64 packed by EncodeInteger.
func DecodeInteger(id uint64) (int64, error) {
	tag, payload := DecodeID(id)
	if tag != TagInteger {
		return 0, spokerr.New(spokerr.NotAnInteger, "id is not tag 4")
	}
	if payload&signBit60 != 0 {
		return int64(payload) - int64(wrap60), nil
	}
	return int64(payload), nil
}

// EncodeDecimal inline-encodes v as tag 5 using v's IEEE754 double
// bit pattern: sign(1) | biased exponent(11) | mantissa(48). Since
// the sign and exponent fields are taken directly from a float64,
// they are always within [0, 2^11-1]; the only way v fails to fit is
// a mantissa whose low 4 bits are non-zero, which would be lost by
// truncating to 48 bits. Such values, and any decimal literal that
// never reaches this codec as a float64 at all, fall through to
// dictionary allocation. v == 0 (either sign) is stored as the
// all-zero payload, matching IEEE754's own zero encoding.
func EncodeDecimal(v float64) (uint64, error) {
	if v == 0 {
		return EncodeID(TagDecimal, 0), nil
	}
	bits := math.Float64bits(v)
	mantissa := bits & ((uint64(1) << 52) - 1)
	if mantissa&((uint64(1)<<decimalLowBitsLost)-1) != 0 {
		return 0, spokerr.New(spokerr.OutOfRange, "decimal mantissa does not fit in 48 bits")
	}
	sign := bits >> 63
	exp := (bits >> 52) & decimalExpMask
	mant48 := mantissa >> decimalLowBitsLost
	payload := sign<<59 | exp<<decimalMantissaBits | mant48
	return EncodeID(TagDecimal, payload), nil
}

// DecodeDecimal recovers the float64 packed by EncodeDecimal.
func DecodeDecimal(id uint64) (float64, error) {
	tag, payload := DecodeID(id)
	if tag != TagDecimal {
		return 0, spokerr.New(spokerr.NotADecimal, "id is not tag 5")
	}
	if payload == 0 {
		return 0, nil
	}
	sign := (payload >> 59) & 0x1
	exp := (payload >> decimalMantissaBits) & decimalExpMask
	mant48 := payload & decimalMantMask
	bits := sign<<63 | exp<<52 | mant48<<decimalLowBitsLost
	return math.Float64frombits(bits), nil
}

// EncodeDateTime inline-encodes t as tag 6, storing UTC-normalised
// Unix milliseconds. Sub-millisecond precision is lost. Dates before
// 1970 fall through to dictionary allocation.
func EncodeDateTime(t time.Time) (uint64, error) {
	ms := t.UTC().UnixMilli()
	if ms < 0 {
		return 0, spokerr.New(spokerr.OutOfRange, "datetime precedes the Unix epoch")
	}
	payload := uint64(ms)
	if payload >= dateTimeBound {
		return 0, spokerr.New(spokerr.OutOfRange, "datetime exceeds 2^60 milliseconds since epoch")
	}
	return EncodeID(TagDateTime, payload), nil
}

// DecodeDateTime recovers the UTC time.Time packed by EncodeDateTime,
// at millisecond precision.
func DecodeDateTime(id uint64) (time.Time, error) {
	tag, payload := DecodeID(id)
	if tag != TagDateTime {
		return time.Time{}, spokerr.New(spokerr.NotADateTime, "id is not tag 6")
	}
	return time.UnixMilli(int64(payload)).UTC(), nil
}

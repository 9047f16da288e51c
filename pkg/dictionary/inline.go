package dictionary

import (
	"strconv"
	"time"

	"github.com/spokdb/spok/pkg/ids"
	"github.com/spokdb/spok/pkg/spokerr"
	"github.com/spokdb/spok/pkg/term"
)

// inlineEncode attempts to pack a typed literal directly into a 64-bit
// ID, bypassing the dictionary entirely. It returns ok=false for
// anything that is not a recognised inline shape or that does not fit
// the codec's range, in which case the caller falls through to normal
// dictionary allocation.
func inlineEncode(t term.Term) (uint64, bool) {
	lit, ok := t.(term.Literal)
	if !ok || lit.Datatype == nil {
		return 0, false
	}

	switch lit.Datatype.Value {
	case term.XSDInteger.Value:
		n, err := strconv.ParseInt(lit.Lexical, 10, 64)
		if err != nil {
			return 0, false
		}
		id, err := ids.EncodeInteger(n)
		if err != nil {
			return 0, false
		}
		return id, true

	case term.XSDDecimal.Value:
		v, err := strconv.ParseFloat(lit.Lexical, 64)
		if err != nil {
			return 0, false
		}
		id, err := ids.EncodeDecimal(v)
		if err != nil {
			return 0, false
		}
		return id, true

	case term.XSDDateTime.Value:
		tm, err := time.Parse(time.RFC3339Nano, lit.Lexical)
		if err != nil {
			return 0, false
		}
		id, err := ids.EncodeDateTime(tm)
		if err != nil {
			return 0, false
		}
		return id, true

	default:
		return 0, false
	}
}

// inlineDecode is the inverse of inlineEncode. The lexical form it
// produces is the canonical rendering of the packed value, which need
// not match the original literal's lexical form byte-for-byte (e.g.
// "007" round-trips to "7") since inline literals trade exact lexical
// preservation for skipping dictionary allocation altogether.
func inlineDecode(id uint64) (term.Term, error) {
	tag, _ := ids.DecodeID(id)
	switch tag {
	case ids.TagInteger:
		n, err := ids.DecodeInteger(id)
		if err != nil {
			return nil, err
		}
		return term.NewTypedLiteral(strconv.FormatInt(n, 10), term.XSDInteger), nil

	case ids.TagDecimal:
		v, err := ids.DecodeDecimal(id)
		if err != nil {
			return nil, err
		}
		return term.NewTypedLiteral(strconv.FormatFloat(v, 'g', -1, 64), term.XSDDecimal), nil

	case ids.TagDateTime:
		tm, err := ids.DecodeDateTime(id)
		if err != nil {
			return nil, err
		}
		return term.NewTypedLiteral(tm.Format(time.RFC3339Nano), term.XSDDateTime), nil

	default:
		return nil, spokerr.New(spokerr.CorruptID, "id is not an inline tag")
	}
}

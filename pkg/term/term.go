// Package term defines the RDF term model the storage core encodes:
// IRIs, blank nodes, and literals. It carries no storage logic of its
// own — see pkg/dictionary for the term <-> ID mapping.
package term

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind identifies which of the three RDF term shapes a Term is.
type Kind byte

const (
	KindIRI Kind = iota + 1
	KindBlankNode
	KindLiteral
)

// Term is one of IRI, BlankNode, or Literal.
type Term interface {
	Kind() Kind
	String() string
	Equal(other Term) bool
}

// IRI is a named node identified by a URI string.
type IRI struct {
	Value string
}

func NewIRI(uri string) IRI { return IRI{Value: uri} }

func (i IRI) Kind() Kind      { return KindIRI }
func (i IRI) String() string  { return fmt.Sprintf("<%s>", i.Value) }
func (i IRI) Equal(o Term) bool {
	other, ok := o.(IRI)
	return ok && other.Value == i.Value
}

// BlankNode is a locally-scoped node identifier.
type BlankNode struct {
	Label string
}

func NewBlankNode(label string) BlankNode { return BlankNode{Label: label} }

// NewAnonymousBlankNode mints a fresh blank node with a UUID label,
// for callers that do not track their own blank-node labels.
func NewAnonymousBlankNode() BlankNode {
	return BlankNode{Label: uuid.NewString()}
}

func (b BlankNode) Kind() Kind     { return KindBlankNode }
func (b BlankNode) String() string { return "_:" + b.Label }
func (b BlankNode) Equal(o Term) bool {
	other, ok := o.(BlankNode)
	return ok && other.Label == b.Label
}

// Literal is a lexical form with an optional datatype IRI or an
// optional language tag (never both).
type Literal struct {
	Lexical  string
	Datatype *IRI
	Language string
}

func NewLiteral(lexical string) Literal {
	return Literal{Lexical: lexical}
}

func NewTypedLiteral(lexical string, datatype IRI) Literal {
	return Literal{Lexical: lexical, Datatype: &datatype}
}

func NewLangLiteral(lexical, lang string) Literal {
	return Literal{Lexical: lexical, Language: lang}
}

func (l Literal) Kind() Kind { return KindLiteral }

func (l Literal) String() string {
	switch {
	case l.Language != "":
		return fmt.Sprintf("%q@%s", l.Lexical, l.Language)
	case l.Datatype != nil:
		return fmt.Sprintf("%q^^%s", l.Lexical, l.Datatype.String())
	default:
		return fmt.Sprintf("%q", l.Lexical)
	}
}

func (l Literal) Equal(o Term) bool {
	other, ok := o.(Literal)
	if !ok || other.Lexical != l.Lexical || other.Language != l.Language {
		return false
	}
	if l.Datatype == nil || other.Datatype == nil {
		return l.Datatype == other.Datatype
	}
	return l.Datatype.Value == other.Datatype.Value
}

// Triple is an ordered (subject, predicate, object) of terms.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

func NewTriple(s, p, o Term) Triple { return Triple{Subject: s, Predicate: p, Object: o} }

func (t Triple) String() string {
	return fmt.Sprintf("%s %s %s .", t.Subject, t.Predicate, t.Object)
}

// Well-known XSD datatypes recognised by the dictionary's inline
// numeric/temporal codecs.
var (
	XSDInteger  = NewIRI("http://www.w3.org/2001/XMLSchema#integer")
	XSDDecimal  = NewIRI("http://www.w3.org/2001/XMLSchema#decimal")
	XSDDateTime = NewIRI("http://www.w3.org/2001/XMLSchema#dateTime")
)

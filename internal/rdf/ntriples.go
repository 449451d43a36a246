// Package rdf reads and writes case facts as RDF N-Triples.
package rdf

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Namespace is the IRI prefix for COACH resources.
const Namespace = "http://coach.example/ns#"

// TermKind distinguishes IRIs, blank nodes and literals.
type TermKind int

const (
	IRI TermKind = iota
	Blank
	Literal
)

// Term is one node of a triple.
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
	Lang     string
}

// NewIRI returns an IRI term.
func NewIRI(iri string) Term { return Term{Kind: IRI, Value: iri} }

// NewLiteral returns a plain string literal.
func NewLiteral(s string) Term { return Term{Kind: Literal, Value: s} }

// NewBlank returns a blank node with the given label.
func NewBlank(label string) Term { return Term{Kind: Blank, Value: label} }

// Local returns an IRI in the COACH namespace.
func Local(name string) Term { return NewIRI(Namespace + name) }

// Triple is a single statement.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// String renders the term in N-Triples syntax.
func (t Term) String() string {
	switch t.Kind {
	case IRI:
		return "<" + escapeIRI(t.Value) + ">"
	case Blank:
		return "_:" + t.Value
	}
	s := `"` + escapeLiteral(t.Value) + `"`
	if t.Lang != "" {
		return s + "@" + t.Lang
	}
	if t.Datatype != "" {
		return s + "^^<" + escapeIRI(t.Datatype) + ">"
	}
	return s
}

func (tr Triple) String() string {
	return tr.Subject.String() + " " + tr.Predicate.String() + " " + tr.Object.String() + " ."
}

// Encode writes triples, one per line.
func Encode(w io.Writer, triples []Triple) error {
	bw := bufio.NewWriter(w)
	for _, tr := range triples {
		if _, err := bw.WriteString(tr.String() + "\n"); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Marshal renders triples as an N-Triples document.
func Marshal(triples []Triple) string {
	var sb strings.Builder
	_ = Encode(&sb, triples)
	return sb.String()
}

// Sort orders triples by their rendering so exports are stable.
func Sort(triples []Triple) {
	sort.Slice(triples, func(i, j int) bool {
		return triples[i].String() < triples[j].String()
	})
}

// SyntaxError reports a malformed line.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// Decode parses an N-Triples document. Blank lines and comments are skipped.
func Decode(r io.Reader) ([]Triple, error) {
	var triples []Triple
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	for lineNo := 1; sc.Scan(); lineNo++ {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		tr, err := parseLine(line)
		if err != nil {
			return nil, &SyntaxError{Line: lineNo, Msg: err.Error()}
		}
		triples = append(triples, tr)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return triples, nil
}

// Unmarshal parses an N-Triples document held in a string.
func Unmarshal(doc string) ([]Triple, error) {
	return Decode(strings.NewReader(doc))
}

func parseLine(line string) (Triple, error) {
	p := &lineParser{s: line}

	subj, err := p.term()
	if err != nil {
		return Triple{}, err
	}
	if subj.Kind == Literal {
		return Triple{}, fmt.Errorf("subject cannot be a literal")
	}
	pred, err := p.term()
	if err != nil {
		return Triple{}, err
	}
	if pred.Kind != IRI {
		return Triple{}, fmt.Errorf("predicate must be an IRI")
	}
	obj, err := p.term()
	if err != nil {
		return Triple{}, err
	}

	p.skipSpace()
	if p.pos >= len(p.s) || p.s[p.pos] != '.' {
		return Triple{}, fmt.Errorf("expected '.' at column %d", p.pos+1)
	}
	p.pos++
	p.skipSpace()
	if p.pos < len(p.s) && p.s[p.pos] != '#' {
		return Triple{}, fmt.Errorf("unexpected text after '.'")
	}
	return Triple{Subject: subj, Predicate: pred, Object: obj}, nil
}

type lineParser struct {
	s   string
	pos int
}

func (p *lineParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *lineParser) term() (Term, error) {
	p.skipSpace()
	if p.pos >= len(p.s) {
		return Term{}, fmt.Errorf("unexpected end of line")
	}
	switch p.s[p.pos] {
	case '<':
		iri, err := p.iri()
		return NewIRI(iri), err
	case '_':
		return p.blank()
	case '"':
		return p.literal()
	}
	return Term{}, fmt.Errorf("unexpected %q at column %d", p.s[p.pos], p.pos+1)
}

func (p *lineParser) iri() (string, error) {
	end := strings.IndexByte(p.s[p.pos:], '>')
	if end < 0 {
		return "", fmt.Errorf("unterminated IRI")
	}
	raw := p.s[p.pos+1 : p.pos+end]
	p.pos += end + 1
	if strings.ContainsAny(raw, " <\"{}|^`") {
		return "", fmt.Errorf("invalid character in IRI %q", raw)
	}
	return unescape(raw)
}

func (p *lineParser) blank() (Term, error) {
	if !strings.HasPrefix(p.s[p.pos:], "_:") {
		return Term{}, fmt.Errorf("malformed blank node")
	}
	start := p.pos + 2
	end := start
	for end < len(p.s) && p.s[end] != ' ' && p.s[end] != '\t' {
		end++
	}
	label := strings.TrimSuffix(p.s[start:end], ".")
	if label == "" {
		return Term{}, fmt.Errorf("empty blank node label")
	}
	p.pos = start + len(label)
	return NewBlank(label), nil
}

func (p *lineParser) literal() (Term, error) {
	i := p.pos + 1
	for ; i < len(p.s); i++ {
		if p.s[i] == '\\' {
			i++
			continue
		}
		if p.s[i] == '"' {
			break
		}
	}
	if i >= len(p.s) {
		return Term{}, fmt.Errorf("unterminated literal")
	}
	value, err := unescape(p.s[p.pos+1 : i])
	if err != nil {
		return Term{}, err
	}
	p.pos = i + 1
	t := NewLiteral(value)

	switch {
	case strings.HasPrefix(p.s[p.pos:], "^^<"):
		p.pos += 2
		dt, err := p.iri()
		if err != nil {
			return Term{}, err
		}
		t.Datatype = dt
	case strings.HasPrefix(p.s[p.pos:], "@"):
		start := p.pos + 1
		end := start
		for end < len(p.s) && (isAlnum(p.s[end]) || p.s[end] == '-') {
			end++
		}
		if end == start {
			return Term{}, fmt.Errorf("empty language tag")
		}
		t.Lang = p.s[start:end]
		p.pos = end
	}
	return t, nil
}

func isAlnum(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

func escapeIRI(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r <= 0x20 || strings.ContainsRune("<>\"{}|^`\\", r) {
			fmt.Fprintf(&sb, `\u%04X`, r)
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func unescape(s string) (string, error) {
	if !strings.Contains(s, `\`) {
		return s, nil
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			sb.WriteByte(c)
			continue
		}
		i++
		if i >= len(s) {
			return "", fmt.Errorf("dangling escape")
		}
		switch s[i] {
		case 't':
			sb.WriteByte('\t')
		case 'n':
			sb.WriteByte('\n')
		case 'r':
			sb.WriteByte('\r')
		case 'b':
			sb.WriteByte('\b')
		case 'f':
			sb.WriteByte('\f')
		case '"', '\'', '\\':
			sb.WriteByte(s[i])
		case 'u', 'U':
			n := 4
			if s[i] == 'U' {
				n = 8
			}
			if i+1+n > len(s) {
				return "", fmt.Errorf("short unicode escape")
			}
			code, err := strconv.ParseUint(s[i+1:i+1+n], 16, 32)
			if err != nil {
				return "", fmt.Errorf("bad unicode escape %q", s[i+1:i+1+n])
			}
			sb.WriteRune(rune(code))
			i += n
		default:
			return "", fmt.Errorf("unknown escape \\%c", s[i])
		}
	}
	return sb.String(), nil
}

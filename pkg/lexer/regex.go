package lexer

import (
	"errors"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Rule order groups. Lower groups are tried first, so literals win over identifiers.
const (
	orderTrivia     = 10
	orderLiteral    = 20
	orderDefinition = 30
	orderOperator   = 40
	orderDelimiter  = 50
	orderOverride   = 90
)

// maxDeriveRounds bounds the derive pipeline; a draft that is still changing is a loop.
const maxDeriveRounds = 16

// draft is the immutable intermediate form of a token inside the derive pipeline.
type draft struct {
	Type    TokenType
	Lexeme  string
	Literal string
	Count   int
	Rest    string // input following the lexeme
	Err     string // lex error message, the token is dropped
}

// deriveFunc re-derives the type and/or literal of a draft from its raw match.
type deriveFunc func(d draft) draft

type tokenRule struct {
	Type    TokenType
	Pattern *regexp.Regexp
	Order   int
	Unary   bool // only tried where a leading sign is allowed
	Derive  []deriveFunc
}

// Token rules, sorted by Order at init
var tokenRules = []tokenRule{
	{Type: EOL, Pattern: regexp.MustCompile(`^\n`), Order: orderTrivia},
	{Type: COMMENT, Pattern: regexp.MustCompile(`^;[^\n]*`), Order: orderTrivia, Derive: []deriveFunc{commentText}},
	{Type: STRING, Pattern: regexp.MustCompile(`^"([^"\\\n]|\\.)*"`), Order: orderTrivia, Derive: []deriveFunc{unquote}},
	{Type: DIRECTIVE, Pattern: regexp.MustCompile(`^\.[A-Za-z]+`), Order: orderTrivia, Derive: []deriveFunc{lowerName(".")}},

	{Type: U8, Pattern: regexp.MustCompile(`^'(\\.|[^'\\\n])'`), Order: orderLiteral, Derive: []deriveFunc{charValue}},
	{Type: U64, Pattern: regexp.MustCompile(`^\$[0-9A-Fa-f]+`), Order: orderLiteral, Derive: []deriveFunc{hexValue, narrow}},
	{Type: I64, Pattern: regexp.MustCompile(`^[+-][0-9]+(\.[0-9]+)?([eE][+-]?[0-9]+)?`), Order: orderLiteral + 1, Unary: true, Derive: []deriveFunc{numberValue, narrow}},
	{Type: U64, Pattern: regexp.MustCompile(`^[0-9]+(\.[0-9]+)?([eE][+-]?[0-9]+)?`), Order: orderLiteral + 2, Derive: []deriveFunc{numberValue, narrow}},

	{Type: CONST, Pattern: regexp.MustCompile(`^::[A-Za-z_][A-Za-z0-9_.]*`), Order: orderDefinition, Derive: []deriveFunc{lowerName("::")}},
	{Type: LABEL, Pattern: regexp.MustCompile(`^:[A-Za-z_][A-Za-z0-9_.]*`), Order: orderDefinition + 1, Derive: []deriveFunc{lowerName(":"), labelForm}},
	{Type: PORT_CALL, Pattern: regexp.MustCompile(`^#[A-Za-z0-9_]+:[A-Za-z_][A-Za-z0-9_]*`), Order: orderDefinition + 2, Derive: []deriveFunc{lowerName("#")}},
	{Type: PORT, Pattern: regexp.MustCompile(`^#[A-Za-z0-9_]+`), Order: orderDefinition + 3, Derive: []deriveFunc{lowerName("#")}},
	{Type: INDIRECT, Pattern: regexp.MustCompile(`^@+`), Order: orderDefinition + 4, Derive: []deriveFunc{indirectCount}},

	{Type: ARITH, Pattern: regexp.MustCompile(`^(<<|>>|[-+*/%])`), Order: orderOperator},
	{Type: COMPARE, Pattern: regexp.MustCompile(`^(==|!=|<=|>=|<|>)`), Order: orderOperator + 1},
	{Type: LOGIC, Pattern: regexp.MustCompile(`^[&|^!]`), Order: orderOperator + 2},
	{Type: ASSIGN, Pattern: regexp.MustCompile(`^=`), Order: orderOperator + 3},

	{Type: COMMA, Pattern: regexp.MustCompile(`^,`), Order: orderDelimiter},
	{Type: LPAREN, Pattern: regexp.MustCompile(`^\(`), Order: orderDelimiter},
	{Type: RPAREN, Pattern: regexp.MustCompile(`^\)`), Order: orderDelimiter},
	{Type: LBRACKET, Pattern: regexp.MustCompile(`^\[`), Order: orderDelimiter},
	{Type: RBRACKET, Pattern: regexp.MustCompile(`^\]`), Order: orderDelimiter},
	{Type: LBRACE, Pattern: regexp.MustCompile(`^\{`), Order: orderDelimiter},
	{Type: RBRACE, Pattern: regexp.MustCompile(`^\}`), Order: orderDelimiter},

	{Type: ID, Pattern: regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]*`), Order: orderOverride},
}

var whitespaceRegex = regexp.MustCompile(`^[ \t\r]+`)

func init() {
	slices.SortStableFunc(tokenRules, func(a, b tokenRule) int { return a.Order - b.Order })
}

// MatchToken matches the first token at the start of s, as if s began a line
func MatchToken(s string) (TokenType, string, bool) {
	if s == "" {
		return EOF, "", false
	} else if match := whitespaceRegex.FindString(s); match != "" {
		return EOF, match, true
	}

	d, ok := matchRule(s, true)
	if !ok {
		return ILLEGAL, string(s[0]), false
	}
	if d.Err != "" {
		return ILLEGAL, d.Lexeme, false
	}

	return d.Type, d.Lexeme, true
}

// matchRule runs the rule table over s and derives the winning draft
func matchRule(s string, unary bool) (draft, bool) {
	for _, r := range tokenRules {
		if r.Unary && !unary {
			continue
		}

		match := r.Pattern.FindString(s)
		if match == "" {
			continue
		}

		d := draft{Type: r.Type, Lexeme: match, Literal: match, Rest: s[len(match):]}
		return derive(d, r.Derive), true
	}

	return draft{}, false
}

// derive applies the rule's steps until the draft stops changing.
// Coming back to a type already visited is a loop.
func derive(d draft, steps []deriveFunc) draft {
	if len(steps) == 0 {
		return d
	}

	seen := map[TokenType]bool{d.Type: true}
	for range maxDeriveRounds {
		next := d
		for _, step := range steps {
			next = step(next)
			if next.Err != "" {
				return next
			}
		}

		if next == d {
			return d
		}

		if next.Type != d.Type {
			if seen[next.Type] {
				next.Err = "recursive type loop"
				return next
			}
			seen[next.Type] = true
		}

		d = next
	}

	d.Err = "recursive type loop"
	return d
}

func commentText(d draft) draft {
	d.Literal = strings.TrimSpace(strings.TrimPrefix(d.Lexeme, ";"))
	return d
}

func unquote(d draft) draft {
	s, err := strconv.Unquote(d.Lexeme)
	if err != nil {
		s = d.Lexeme[1 : len(d.Lexeme)-1]
	}

	d.Literal = s
	return d
}

// lowerName strips the definition prefix and normalises the name
func lowerName(prefix string) deriveFunc {
	return func(d draft) draft {
		d.Literal = strings.ToLower(strings.TrimPrefix(d.Lexeme, prefix))
		return d
	}
}

// labelForm reclassifies a label followed by '(' as a function and by '=' as an assignment
func labelForm(d draft) draft {
	if d.Type != LABEL {
		return d
	}

	if strings.HasPrefix(d.Rest, "(") {
		d.Type = FUNC
		return d
	}

	rest := strings.TrimLeft(d.Rest, " \t")
	if strings.HasPrefix(rest, "=") && !strings.HasPrefix(rest, "==") {
		d.Type = LABEL_ASSIGN
	}

	return d
}

func indirectCount(d draft) draft {
	d.Count = len(d.Lexeme)
	d.Literal = strconv.Itoa(d.Count)
	return d
}

func charValue(d draft) draft {
	body := d.Lexeme[1 : len(d.Lexeme)-1]

	r, _, _, err := strconv.UnquoteChar(body, '\'')
	if err != nil || r > math.MaxUint8 {
		d.Err = "invalid character literal"
		return d
	}

	d.Literal = strconv.Itoa(int(r))
	return d
}

func hexValue(d draft) draft {
	v, err := strconv.ParseUint(d.Lexeme[1:], 16, 64)
	if err != nil {
		d.Err = "value out of bounds"
		return d
	}

	d.Literal = strconv.FormatUint(v, 10)
	return d
}

// numberValue turns decimal, signed and float lexemes into their canonical literal
func numberValue(d draft) draft {
	signed := d.Lexeme[0] == '+' || d.Lexeme[0] == '-'

	var err error
	if signed {
		var v int64
		v, err = strconv.ParseInt(d.Lexeme, 10, 64)
		if err == nil {
			d.Literal = strconv.FormatInt(v, 10)
			return d
		}
	} else {
		var v uint64
		v, err = strconv.ParseUint(d.Lexeme, 10, 64)
		if err == nil {
			d.Literal = strconv.FormatUint(v, 10)
			return d
		}
	}

	if errors.Is(err, strconv.ErrRange) {
		d.Err = "value out of bounds"
		return d
	}

	f, ferr := strconv.ParseFloat(d.Lexeme, 64)
	if ferr != nil {
		d.Err = "value out of bounds"
		return d
	}

	d.Type = FLOAT
	d.Literal = strconv.FormatFloat(f, 'g', -1, 64)
	return d
}

// narrow moves an integer literal one width down when its value still fits
func narrow(d draft) draft {
	switch d.Type {
	case U64, U32, U16:
		v, err := strconv.ParseUint(d.Literal, 10, 64)
		if err != nil {
			return d
		}

		switch {
		case d.Type == U64 && v <= math.MaxUint32:
			d.Type = U32
		case d.Type == U32 && v <= math.MaxUint16:
			d.Type = U16
		case d.Type == U16 && v <= math.MaxUint8:
			d.Type = U8
		}

	case I64, I32, I16:
		v, err := strconv.ParseInt(d.Literal, 10, 64)
		if err != nil {
			return d
		}

		switch {
		case d.Type == I64 && v >= math.MinInt32 && v <= math.MaxInt32:
			d.Type = I32
		case d.Type == I32 && v >= math.MinInt16 && v <= math.MaxInt16:
			d.Type = I16
		case d.Type == I16 && v >= math.MinInt8 && v <= math.MaxInt8:
			d.Type = I8
		}
	}

	return d
}

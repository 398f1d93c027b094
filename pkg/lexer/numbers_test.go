package lexer_test

import (
	"testing"

	"vasm/pkg/diag"
	"vasm/pkg/lexer"
)

func TestNumbers(t *testing.T) {
	tests := []struct {
		input       string
		expected    lexer.TokenType
		literal     string
		description string
	}{
		{"42", lexer.U8, "42", "byte"},
		{"0", lexer.U8, "0", "zero"},
		{"255", lexer.U8, "255", "largest byte"},
		{"256", lexer.U16, "256", "smallest word"},
		{"70000", lexer.U32, "70000", "dword"},
		{"5000000000", lexer.U64, "5000000000", "qword"},
		{"18446744073709551615", lexer.U64, "18446744073709551615", "largest qword"},

		{"$A", lexer.U8, "10", "hex byte"},
		{"$ff", lexer.U8, "255", "lowercase hex"},
		{"$1234", lexer.U16, "4660", "hex word"},
		{"$DEADBEEF", lexer.U32, "3735928559", "hex dword"},

		{"'a'", lexer.U8, "97", "char"},
		{`'\n'`, lexer.U8, "10", "escaped char"},

		{"-5", lexer.I8, "-5", "negative byte"},
		{"+5", lexer.I8, "5", "explicit plus"},
		{"-200", lexer.I16, "-200", "negative word"},
		{"-70000", lexer.I32, "-70000", "negative dword"},
		{"-5000000000", lexer.I64, "-5000000000", "negative qword"},

		{"3.14", lexer.FLOAT, "3.14", "simple float"},
		{"0.5", lexer.FLOAT, "0.5", "float starting with zero"},
		{"1e5", lexer.FLOAT, "100000", "scientific notation"},
		{"-2.5", lexer.FLOAT, "-2.5", "negative float"},
	}

	for _, test := range tests {
		tokenType, lexeme, matched := lexer.MatchToken(test.input)
		if !matched {
			t.Errorf("Failed to match %s (%s)", test.input, test.description)
			continue
		}
		if tokenType != test.expected {
			t.Errorf("Input %s (%s): expected %s, got %s", test.input, test.description, test.expected, tokenType)
		}
		if lexeme != test.input {
			t.Errorf("Input %s (%s): expected lexeme %s, got %s", test.input, test.description, test.input, lexeme)
		}

		tok := lexer.NewLexer(test.input).NextToken()
		if tok.Literal != test.literal {
			t.Errorf("Input %s (%s): expected literal %s, got %s", test.input, test.description, test.literal, tok.Literal)
		}
	}
}

func TestValueOutOfBounds(t *testing.T) {
	tokens, errs := lexer.Tokenize("99999999999999999999 7")

	if len(errs) != 1 {
		t.Fatalf("expected exactly one error, got %v", errs)
	}
	if errs[0].Kind != diag.LexError || errs[0].Message != "value out of bounds" {
		t.Errorf("unexpected error: %+v", errs[0])
	}
	if errs[0].Line != 1 || errs[0].Column != 1 {
		t.Errorf("error position: got %d:%d", errs[0].Line, errs[0].Column)
	}

	if len(tokens) != 2 || tokens[0].Type != lexer.U8 || tokens[0].Literal != "7" || tokens[1].Type != lexer.EOF {
		t.Errorf("lexing should continue past the bad literal, got %v", tokens)
	}

	for _, input := range []string{"$FFFFFFFFFFFFFFFFF", "-99999999999999999999"} {
		if _, errs := lexer.Tokenize(input); diag.Count(errs, diag.LexError) != 1 {
			t.Errorf("%s: expected one lex error, got %v", input, errs)
		}
	}
}

package lexer_test

import (
	"math/rand"
	"strings"
	"testing"

	"vasm/pkg/lexer"
)

// lineCol computes the 1-based line and column of offset in src
func lineCol(src string, offset int) (int, int) {
	line, col := 1, 1
	for i := 0; i < offset; i++ {
		if src[i] == '\n' {
			line++
			col = 1
		} else {
			col++
		}
	}
	return line, col
}

func TestPositionsPointAtFirstCharacter(t *testing.T) {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		var sb strings.Builder
		for w := 0; w < 1+rng.Intn(12); w++ {
			for c := 0; c < 1+rng.Intn(6); c++ {
				sb.WriteByte(alphabet[rng.Intn(len(alphabet))])
			}
			switch rng.Intn(4) {
			case 0:
				sb.WriteByte('\n')
			case 1:
				sb.WriteString("  ")
			default:
				sb.WriteByte(' ')
			}
		}
		src := sb.String()

		tokens, _ := lexer.Tokenize(src)
		for _, tok := range tokens {
			if tok.Type == lexer.EOF {
				continue
			}

			if got := src[tok.Pos.Offset:tok.End]; got != tok.Lexeme {
				t.Fatalf("%q: token %q spans %q", src, tok.Lexeme, got)
			}

			line, col := lineCol(src, tok.Pos.Offset)
			if tok.Pos.Line != line || tok.Pos.Column != col {
				t.Fatalf("%q: token %q at %d:%d, expected %d:%d", src, tok.Lexeme, tok.Pos.Line, tok.Pos.Column, line, col)
			}
		}
	}
}

func TestPositionShift(t *testing.T) {
	base := lexer.Position{Line: 4, Column: 9, Offset: 50}

	first := lexer.Position{Line: 1, Column: 3, Offset: 2}.Shift(base)
	if first.Line != 4 || first.Column != 11 || first.Offset != 52 {
		t.Errorf("first line shift: got %+v", first)
	}

	second := lexer.Position{Line: 2, Column: 3, Offset: 10}.Shift(base)
	if second.Line != 5 || second.Column != 3 || second.Offset != 60 {
		t.Errorf("second line shift: got %+v", second)
	}
}

func TestPositionRelativeRoundTrip(t *testing.T) {
	base := lexer.Position{Line: 3, Column: 5, Offset: 20}
	positions := []lexer.Position{
		{Line: 3, Column: 5, Offset: 20},
		{Line: 3, Column: 9, Offset: 24},
		{Line: 4, Column: 2, Offset: 31},
	}

	for _, p := range positions {
		if got := p.Relative(base).Shift(base); got != p {
			t.Errorf("round trip of %+v gave %+v", p, got)
		}
	}

	if first := positions[0].Relative(base); first.Line != 1 || first.Column != 1 || first.Offset != 0 {
		t.Errorf("base must normalise to 1:1+0, got %+v", first)
	}
}

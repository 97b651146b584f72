package lexer

import (
	"testing"

	"splisp/token"
)

func TestNextToken(t *testing.T) {
	input := `(if (< 2 3) (+ 3 4) 5) ; trailing comment
(lambda (x y) (+ x y))`

	tests := []struct {
		expectedType    token.Type
		expectedLiteral string
	}{
		{token.LPAREN, "("},
		{token.ATOM, "if"},
		{token.LPAREN, "("},
		{token.ATOM, "<"},
		{token.ATOM, "2"},
		{token.ATOM, "3"},
		{token.RPAREN, ")"},
		{token.LPAREN, "("},
		{token.ATOM, "+"},
		{token.ATOM, "3"},
		{token.ATOM, "4"},
		{token.RPAREN, ")"},
		{token.ATOM, "5"},
		{token.RPAREN, ")"},
		{token.LPAREN, "("},
		{token.ATOM, "lambda"},
		{token.LPAREN, "("},
		{token.ATOM, "x"},
		{token.ATOM, "y"},
		{token.RPAREN, ")"},
		{token.LPAREN, "("},
		{token.ATOM, "+"},
		{token.ATOM, "x"},
		{token.ATOM, "y"},
		{token.RPAREN, ")"},
		{token.RPAREN, ")"},
		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q", i, tt.expectedType, tok.Type)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q", i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestNextTokenBooleans(t *testing.T) {
	l := New("#t #f")
	for _, want := range []string{"#t", "#f"} {
		tok := l.NextToken()
		if tok.Type != token.ATOM || tok.Literal != want {
			t.Fatalf("got %+v, want ATOM %q", tok, want)
		}
	}
}

package resources

import "testing"

func TestFilterExpressionBooleanEvaluation(t *testing.T) {
	tags := []string{"name: pod-a", "app: web", "tier: frontend"}

	expr, err := ParseExtendedFilter("web & !db")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !expr.Eval(tags) {
		t.Fatal("expected 'web & !db' to match")
	}

	expr2, err := ParseExtendedFilter("web & db")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if expr2.Eval(tags) {
		t.Fatal("expected 'web & db' to not match")
	}
}

func TestFilterExpressionTrailingOperatorError(t *testing.T) {
	_, err := ParseExtendedFilter("web &")
	var perr *ParseError
	if err == nil {
		t.Fatal("expected an error for trailing operator")
	}
	if pe, ok := err.(*ParseError); ok {
		perr = pe
	} else {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if perr.Kind != ErrExpectedOperator {
		t.Fatalf("expected ErrExpectedOperator, got %v", perr.Kind)
	}
	if perr.Index != 4 {
		t.Fatalf("expected index 4 (the '&'), got %d", perr.Index)
	}
}

func TestFilterExpressionAcceptsWhitespaceAndParens(t *testing.T) {
	expr, err := ParseExtendedFilter("a & (b | !c)")
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if !expr.Eval([]string{"a", "b"}) {
		t.Fatal("expected 'a & (b | !c)' to match tags [a, b]")
	}
	if expr.Eval([]string{"a", "c"}) {
		t.Fatal("expected 'a & (b | !c)' to not match tags [a, c] (b absent, c present so !c is false)")
	}
}

func TestFilterExpressionUnmatchedBracket(t *testing.T) {
	_, err := ParseExtendedFilter("a&(b|c")
	perr, ok := err.(*ParseError)
	if !ok {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if perr.Kind != ErrUnmatchedBracket {
		t.Fatalf("expected ErrUnmatchedBracket, got %v", perr.Kind)
	}
}

package search

import "testing"

func TestParseEmptyCriteriaIsError(t *testing.T) {
	if _, err := Parse(""); err == nil {
		t.Fatal("expected error for empty search criteria")
	}
}

func TestParseUnknownToken(t *testing.T) {
	if _, err := Parse("bogus/x"); err == nil {
		t.Fatal("expected error for unknown token")
	}
}

func TestParseArityUnderflow(t *testing.T) {
	if _, err := Parse("exact/full_name"); err == nil {
		t.Fatal("expected error for missing pattern argument")
	}
}

func TestParseLimitWithoutSortNeedsSortOperator(t *testing.T) {
	_, err := Parse("exact/full_name/james/limit/1")
	if _, ok := err.(NeedSortOperatorError); !ok {
		t.Fatalf("expected NeedSortOperatorError, got %v", err)
	}
}

func TestParseShowAndShowAllMutuallyExclusive(t *testing.T) {
	_, err := Parse("exact/full_name/james/show/id/show_all")
	if err == nil {
		t.Fatal("expected error combining show and show_all")
	}
}

func TestParseSortOffsetLimit(t *testing.T) {
	p, err := Parse("exact/full_name/james/sort/full_name/offset/1/limit/2/show_all")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !p.ShowAll || !p.HasOffset || p.Offset != 1 || !p.HasLimit || p.Limit != 2 {
		t.Fatalf("unexpected parse result: %+v", p)
	}
	if len(p.Sort) != 1 || p.Sort[0] != "full_name" {
		t.Fatalf("unexpected sort keys: %+v", p.Sort)
	}
}

func TestParsePercentDecodesFieldAndPattern(t *testing.T) {
	p, err := Parse("exact/full%5Fname/james%20bond")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Condition == nil {
		t.Fatal("expected a condition")
	}
}

package repository

import "testing"

func TestDayBucketExprByDialect(t *testing.T) {
	if got := dayBucketExprByDialect("sqlite", "referrals.created_at"); got != "date(referrals.created_at)" {
		t.Fatalf("sqlite day expr mismatch: %s", got)
	}
	if got := dayBucketExprByDialect("postgres", "created_at"); got != "to_char(created_at, 'YYYY-MM-DD')" {
		t.Fatalf("postgres day expr mismatch: %s", got)
	}
}

func TestLikeOperatorByDialect(t *testing.T) {
	if got := likeOperatorByDialect("postgres"); got != "ILIKE" {
		t.Fatalf("postgres should use ILIKE, got %s", got)
	}
	if got := likeOperatorByDialect("sqlite"); got != "LIKE" {
		t.Fatalf("sqlite should use LIKE, got %s", got)
	}
}

func TestBuildLikeCondition(t *testing.T) {
	condition, argCount := buildLikeCondition(nil, []string{"plugins.name", " ", "plugins.description"})
	if argCount != 2 {
		t.Fatalf("arg count want 2 got %d", argCount)
	}
	if condition != "(plugins.name LIKE ? OR plugins.description LIKE ?)" {
		t.Fatalf("unexpected condition: %s", condition)
	}
	if empty, n := buildLikeCondition(nil, nil); empty != "" || n != 0 {
		t.Fatalf("expected empty condition")
	}
}

func TestRepeatLikeArgs(t *testing.T) {
	args := repeatLikeArgs("%abc%", 3)
	if len(args) != 3 {
		t.Fatalf("args len want 3 got %d", len(args))
	}
	for idx, arg := range args {
		if arg != "%abc%" {
			t.Fatalf("args[%d] want %%abc%% got %v", idx, arg)
		}
	}
}

func TestPageOffset(t *testing.T) {
	cases := []struct{ page, size, want int }{
		{page: 0, size: 10, want: 0},
		{page: 1, size: 10, want: 0},
		{page: 3, size: 25, want: 50},
	}
	for _, tc := range cases {
		if got := pageOffset(tc.page, tc.size); got != tc.want {
			t.Fatalf("pageOffset(%d,%d) want %d got %d", tc.page, tc.size, tc.want, got)
		}
	}
}

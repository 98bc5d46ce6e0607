package util_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/example/issue-tracker/internal/util"
)

func TestParseID(t *testing.T) {
	id, err := util.ParseID("  6F9619FF-8B86-D011-B42D-00C04FC964FF ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "6f9619ff-8b86-d011-b42d-00c04fc964ff" {
		t.Fatalf("id not canonicalised: %q", id)
	}

	if _, err := util.ParseID(""); !errors.Is(err, util.ErrInvalidID) {
		t.Fatalf("empty id error = %v", err)
	}
	if _, err := util.ParseID("not-a-uuid"); !errors.Is(err, util.ErrInvalidID) {
		t.Fatalf("malformed id error = %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	email, err := util.NormalizeEmail(" Dev@Example.COM ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if email != "dev@example.com" {
		t.Fatalf("email = %q", email)
	}

	cases := []string{"", "no-at-sign", "Display Name <dev@example.com>"}
	for _, c := range cases {
		if _, err := util.NormalizeEmail(c); !errors.Is(err, util.ErrInvalidEmail) {
			t.Fatalf("input %q: error = %v", c, err)
		}
	}
}

func TestRequireNonEmpty(t *testing.T) {
	if err := util.RequireNonEmpty("value"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := util.RequireNonEmpty("   "); !errors.Is(err, util.ErrEmptyField) {
		t.Fatalf("blank value error = %v", err)
	}
}

func TestRequireMaxLen(t *testing.T) {
	if err := util.RequireMaxLen(strings.Repeat("a", 10), 10); err != nil {
		t.Fatalf("unexpected error at limit: %v", err)
	}
	if err := util.RequireMaxLen(strings.Repeat("a", 11), 10); !errors.Is(err, util.ErrTooLong) {
		t.Fatalf("over-limit error = %v", err)
	}
	if err := util.RequireMaxLen(strings.Repeat("a", 1000), 0); err != nil {
		t.Fatalf("zero max should disable the check: %v", err)
	}
}

package validator

import (
	"strings"
	"testing"
)

func newValidator(t *testing.T, max int) *Validator {
	t.Helper()
	v, err := New(Options{PromptMaxLength: max})
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}
	return v
}

func TestValidatePrompt(t *testing.T) {
	t.Parallel()

	v := newValidator(t, 0)
	cases := []struct {
		name  string
		body  string
		valid bool
	}{
		{"ok", `{"prompt":"build a todo app"}`, true},
		{"missing", `{}`, false},
		{"blank", `{"prompt":"   "}`, false},
		{"wrong type", `{"prompt":42}`, false},
		{"extra field", `{"prompt":"x","model":"y"}`, false},
		{"not json", `prompt=x`, false},
	}
	for _, tc := range cases {
		res := v.Validate(KindPrompt, []byte(tc.body))
		if res.Valid != tc.valid {
			t.Errorf("%s: expected valid=%v, got %+v", tc.name, tc.valid, res)
		}
		if !res.Valid && len(res.Errors) == 0 {
			t.Errorf("%s: invalid result must carry errors", tc.name)
		}
	}
}

func TestValidateSync(t *testing.T) {
	t.Parallel()

	v := newValidator(t, 0)
	if res := v.Validate(KindSync, []byte(`{"sessionId":"abc","repoName":"my-ai-project","token":"t"}`)); !res.Valid {
		t.Fatalf("expected valid sync request, got %+v", res)
	}
	if res := v.Validate(KindSync, []byte(`{"sessionId":"abc","repoName":"bad name!"}`)); res.Valid {
		t.Fatalf("expected repo name pattern failure")
	}
	if res := v.Validate(KindSync, nil); res.Valid {
		t.Fatalf("expected failure for empty body")
	}
	if res := v.Validate(Kind("nope"), []byte(`{}`)); res.Valid {
		t.Fatalf("expected failure for unknown kind")
	}
}

func TestCheckPromptLength(t *testing.T) {
	t.Parallel()

	v := newValidator(t, 5)
	if res := v.CheckPrompt("héllo"); !res.Valid {
		t.Fatalf("5 runes must pass: %+v", res)
	}
	if res := v.CheckPrompt(strings.Repeat("x", 6)); res.Valid {
		t.Fatalf("6 runes must fail")
	}
	if res := newValidator(t, 0).CheckPrompt(strings.Repeat("x", 10000)); !res.Valid {
		t.Fatalf("zero limit disables the check")
	}
}

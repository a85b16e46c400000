package helpers

import (
	"errors"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"fenced", "```json\n{\"planId\":\"p\"}\n```", `{"planId":"p"}`},
		{"tilde fence", "~~~\n[1,2]\n~~~", `[1,2]`},
		{"prose around", `Here is the plan: {"tasks":[{"id":1}]} hope it helps`, `{"tasks":[{"id":1}]}`},
		{"braces in strings", `{"text":"a } b { c"}`, `{"text":"a } b { c"}`},
		{"escaped quote", `{"text":"say \"hi\" }"}`, `{"text":"say \"hi\" }"}`},
		{"bom", "\uFEFF{\"x\":true}", `{"x":true}`},
		{"skips broken opener", `[} then {"ok":1}`, `{"ok":1}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestExtractJSONNoValue(t *testing.T) {
	for _, in := range []string{"", "no json here", `{"open": 1`} {
		if _, err := ExtractJSON(in); !errors.Is(err, ErrNoJSON) {
			t.Fatalf("expected ErrNoJSON for %q, got %v", in, err)
		}
	}
}

func TestDecodeJSON(t *testing.T) {
	var out struct {
		Entities []string `json:"entities"`
	}
	if err := DecodeJSON("```json\n{\"entities\":[\"a\",\"b\"]}\n```", &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Entities) != 2 {
		t.Fatalf("unexpected decode result %+v", out)
	}
	if err := DecodeJSON(`{"entities": 5}`, &out); err == nil {
		t.Fatalf("expected type error")
	}
}

package recipes

import (
	"encoding/json"
	"testing"

	"recipebox/apperr"
)

func TestParseRating(t *testing.T) {
	cases := []struct {
		in   json.Number
		want int
		kind apperr.Kind
		ok   bool
	}{
		{in: "4", want: 4, ok: true},
		{in: "4.0", want: 4, ok: true},
		{in: "5e0", want: 5, ok: true},
		{in: "9", want: 9, ok: true},
		{in: "4.5", kind: apperr.KindValidation},
		{in: "", kind: apperr.KindValidation},
		{in: "1e300", kind: apperr.KindValidation},
	}
	for _, c := range cases {
		got, err := parseRating(c.in)
		if c.ok {
			if err != nil || got != c.want {
				t.Errorf("parseRating(%q) = %d, %v; want %d", c.in, got, err, c.want)
			}
			continue
		}
		if apperr.KindOf(err) != c.kind {
			t.Errorf("parseRating(%q): expected validation error, got %v", c.in, err)
		}
	}
}

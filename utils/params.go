package utils

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"recipebox/apperr"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// DecodeJSON reads the request body into dst. Malformed bodies are a
// validation error.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperr.Validation("Invalid request body")
	}
	return nil
}

// QueryInt returns the integer query parameter key, or def when it is
// missing or malformed.
func QueryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(key)))
	if err != nil {
		return def
	}
	return v
}

// SplitCSV splits a comma separated list, trimming entries and dropping
// blank ones.
func SplitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

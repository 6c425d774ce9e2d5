// Package http provides the JSON API server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request
// data: strict JSON body decoding, path ID extraction and the query
// parameter helpers shared by the list endpoints.

package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// maxBodyBytes bounds request bodies; no legitimate payload comes close.
const maxBodyBytes = 1 << 20

// decodeJSON parses the request body into dst, rejecting unknown fields
// and trailing garbage.
func decodeJSON(r *http.Request, dst any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("empty request body")
		case strings.Contains(err.Error(), "unknown field"):
			return fmt.Errorf("request body: %s", err.Error())
		default:
			return fmt.Errorf("malformed JSON body")
		}
	}
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}

// pathID extracts the numeric {id} wildcard from the route pattern.
func pathID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// queryInt parses an optional integer query parameter, returning def when
// absent or unparsable.
func queryInt(q url.Values, name string, def int) int {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// queryInt64 parses an optional int64 query parameter.
func queryInt64(q url.Values, name string) int64 {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// queryBool parses an optional boolean query parameter.
func queryBool(q url.Values, name string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(q.Get(name)))
	return err == nil && v
}

// queryDate parses an optional YYYY-MM-DD query parameter.
func queryDate(q url.Values, name string) (time.Time, error) {
	v := strings.TrimSpace(q.Get(name))
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s date %q, want YYYY-MM-DD", name, v)
	}
	return t, nil
}

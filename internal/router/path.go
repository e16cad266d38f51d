package router

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// call carries the parsed parts of one request into a handler.
type call struct {
	id    int64
	query map[string]string
	body  []byte
}

type handlerFunc func(ctx context.Context, c call) (any, error)

// route matches either an exact path or prefix{id}suffix.
type route struct {
	method string
	prefix string
	suffix string
	withID bool
	handle handlerFunc
}

func exact(method, path string, h handlerFunc) route {
	return route{method: method, prefix: path, handle: h}
}

func withID(method, prefix, suffix string, h handlerFunc) route {
	return route{method: method, prefix: prefix, suffix: suffix, withID: true, handle: h}
}

func (rt route) match(path string) (int64, bool) {
	if !rt.withID {
		return 0, path == rt.prefix
	}
	rest, ok := strings.CutPrefix(path, rt.prefix)
	if !ok {
		return 0, false
	}
	if rest, ok = strings.CutSuffix(rest, rt.suffix); !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// parseQuery flattens a query string, keeping the first value of each key.
// Pairs are split on '&' only. Values are percent-decoded and '+' reads as a
// space; a pair that does not decode is kept as literal text.
func parseQuery(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		k, v = unescape(k), unescape(v)
		if _, seen := out[k]; !seen {
			out[k] = v
		}
	}
	return out
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return strings.ReplaceAll(s, "+", " ")
}

// intParam returns the query value for key as an int, or 0 when absent or
// not a number.
func (c call) intParam(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(c.query[key]))
	if err != nil {
		return 0
	}
	return n
}

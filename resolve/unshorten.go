package resolve

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNoTarget is returned when a shortener page names no target URL.
var ErrNoTarget = errors.New("resolve: shortener page has no target")

// Unshorten fetches a shortened link and returns the URL its page names in
// <title>, falling back to the final redirect location.
func Unshorten(ctx context.Context, g Getter, raw string) (string, error) {
	res, err := g.Get(ctx, raw, "text/html")
	if err != nil {
		return "", err
	}
	if t := strings.TrimSpace(pageTitle(res.Body)); t != "" {
		if u, err := parseHTTP(t); err == nil {
			return u.String(), nil
		}
	}
	if res.FinalURL != "" && res.FinalURL != raw {
		return res.FinalURL, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNoTarget, raw)
}

func pageTitle(body []byte) string {
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) != atom.Title {
				continue
			}
			if z.Next() == html.TextToken {
				return string(z.Text())
			}
			return ""
		}
	}
}

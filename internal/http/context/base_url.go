package context

import (
	"context"
	"net/url"
)

type contextKey string

const keyBaseURL contextKey = "baseURL"

// BaseURL returns the public base url of the server, "/" when none is
// set.
func BaseURL(ctx context.Context) *url.URL {
	rawBaseURL, ok := ctx.Value(keyBaseURL).(string)
	if !ok || rawBaseURL == "" {
		return &url.URL{Path: "/"}
	}

	baseURL, err := url.Parse(rawBaseURL)
	if err != nil {
		return &url.URL{Path: "/"}
	}

	return baseURL
}

func SetBaseURL(ctx context.Context, baseURL string) context.Context {
	return context.WithValue(ctx, keyBaseURL, baseURL)
}

// Package links builds the respondent-facing URLs sent in invitation and
// reminder emails.
package links

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/go-querystring/query"
)

const (
	PathConsent = "/respond/consent"
	PathAnswer  = "/respond/answer"
	PathReject  = "/respond/reject"
)

type params struct {
	Token  string `url:"token"`
	Source string `url:"utm_source,omitempty"`
}

type Builder struct {
	base   *url.URL
	source string
}

// NewBuilder parses the public base URL of the respondent frontend. source
// tags links for attribution and may be empty.
func NewBuilder(baseURL, source string) (*Builder, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q needs scheme and host", baseURL)
	}
	return &Builder{base: u, source: source}, nil
}

func (b *Builder) Consent(token string) string { return b.build(PathConsent, token) }
func (b *Builder) Answer(token string) string  { return b.build(PathAnswer, token) }
func (b *Builder) Reject(token string) string  { return b.build(PathReject, token) }

func (b *Builder) build(path, token string) string {
	v, err := query.Values(params{Token: token, Source: b.source})
	if err != nil {
		// only reachable with a non-struct argument
		panic(err)
	}
	u := *b.base
	u.Path = b.base.Path + path
	u.RawQuery = v.Encode()
	return u.String()
}

package probe

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Default placeholder tokens for the inner and outer identifiers.
const (
	DefaultInnerToken = "{uid}"
	DefaultOuterToken = "{qnum}"
)

var (
	// ErrMissingPlaceholder is returned when a template lacks one of its tokens.
	ErrMissingPlaceholder = errors.New("template is missing a placeholder")
	// ErrInvalidTemplate is returned for malformed templates or token sets.
	ErrInvalidTemplate = errors.New("invalid url template")
)

// Key identifies exactly one candidate URL.
type Key struct {
	Inner int
	Outer int
}

func (k Key) String() string {
	return fmt.Sprintf("outer=%d inner=%d", k.Outer, k.Inner)
}

// Template substitutes a Key into a URL containing two distinct placeholder tokens.
type Template struct {
	raw        string
	innerToken string
	outerToken string
}

// ParseTemplate validates raw against the given tokens. Both tokens must occur
// at least once, must not overlap, and must not contain characters that a
// substituted integer could reintroduce.
func ParseTemplate(raw, innerToken, outerToken string) (Template, error) {
	if err := validateTokens(innerToken, outerToken); err != nil {
		return Template{}, err
	}
	if !strings.Contains(raw, innerToken) {
		return Template{}, fmt.Errorf("%w: %s", ErrMissingPlaceholder, innerToken)
	}
	if !strings.Contains(raw, outerToken) {
		return Template{}, fmt.Errorf("%w: %s", ErrMissingPlaceholder, outerToken)
	}
	t := Template{raw: raw, innerToken: innerToken, outerToken: outerToken}

	sample := t.Expand(Key{Inner: 1, Outer: 1})
	u, err := url.Parse(sample)
	if err != nil {
		return Template{}, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return Template{}, fmt.Errorf("%w: %q is not an absolute url", ErrInvalidTemplate, sample)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Template{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTemplate, u.Scheme)
	}
	return t, nil
}

func validateTokens(innerToken, outerToken string) error {
	if innerToken == "" || outerToken == "" {
		return fmt.Errorf("%w: placeholder tokens must be non-empty", ErrInvalidTemplate)
	}
	if strings.Contains(innerToken, outerToken) || strings.Contains(outerToken, innerToken) {
		return fmt.Errorf("%w: placeholder tokens %q and %q overlap", ErrInvalidTemplate, innerToken, outerToken)
	}
	for _, tok := range []string{innerToken, outerToken} {
		if strings.ContainsAny(tok, "0123456789") {
			return fmt.Errorf("%w: placeholder token %q contains digits", ErrInvalidTemplate, tok)
		}
	}
	return nil
}

// Expand returns the URL for key. It is a pure function of the template and key.
func (t Template) Expand(key Key) string {
	r := strings.NewReplacer(
		t.innerToken, strconv.Itoa(key.Inner),
		t.outerToken, strconv.Itoa(key.Outer),
	)
	return r.Replace(t.raw)
}

// String returns the raw template.
func (t Template) String() string {
	return t.raw
}

// Tokens returns the inner and outer placeholder tokens.
func (t Template) Tokens() (inner, outer string) {
	return t.innerToken, t.outerToken
}

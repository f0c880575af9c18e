package sns

import (
	"fmt"
	"net/url"
	"regexp"
)

// DefaultSigningHostPatterns matches the regional SNS endpoints, including the
// China partition.
var DefaultSigningHostPatterns = []string{
	`^sns\.[a-z0-9\-]+\.amazonaws\.com(\.cn)?$`,
}

// HostPolicy restricts outbound calls made on behalf of a notification
// (certificate download, subscription confirmation) to the signing authority.
type HostPolicy struct {
	patterns []*regexp.Regexp
}

func NewHostPolicy(patterns []string) (*HostPolicy, error) {
	if len(patterns) == 0 {
		patterns = DefaultSigningHostPatterns
	}
	p := &HostPolicy{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, raw := range patterns {
		re, err := regexp.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("compile signing host pattern %q: %w", raw, err)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// Check returns the parsed URL if it is https, carries no credentials, uses the
// default port and names an allow-listed host.
func (p *HostPolicy) Check(rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHostNotAllowed, err)
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q", ErrHostNotAllowed, u.Scheme)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w: userinfo present", ErrHostNotAllowed)
	}
	if port := u.Port(); port != "" && port != "443" {
		return nil, fmt.Errorf("%w: port %q", ErrHostNotAllowed, port)
	}
	host := u.Hostname()
	for _, re := range p.patterns {
		if re.MatchString(host) {
			return u, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrHostNotAllowed, host)
}

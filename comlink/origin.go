package comlink

import "regexp"

// OriginPolicy is the inbound message allow-list an exposer consults:
// exact strings, the wildcard "*", and/or pattern-matching entries.
//
// The zero value permits every origin.
type OriginPolicy struct {
	exact    map[string]bool
	patterns []*regexp.Regexp
	allowAll bool
}

// NewOriginPolicy builds an OriginPolicy from a list of allowed origins.
// Each entry may be an exact origin string, the literal "*" (allow every
// origin), or a pattern matched as an anchored regular expression (see
// Allow). An empty list permits every origin.
func NewOriginPolicy(allowed ...string) *OriginPolicy {
	p := &OriginPolicy{exact: make(map[string]bool)}
	if len(allowed) == 0 {
		p.allowAll = true
		return p
	}
	for _, a := range allowed {
		p.Allow(a)
	}
	return p
}

// Allow adds one more accepted origin entry: "*" enables allow-all,
// otherwise the string is tried as an exact match and, if it looks like a
// pattern (contains any regexp metacharacter), also compiled as one.
func (p *OriginPolicy) Allow(origin string) {
	if origin == "*" {
		p.allowAll = true
		return
	}
	p.exact[origin] = true
	if re, err := regexp.Compile("^" + origin + "$"); err == nil {
		p.patterns = append(p.patterns, re)
	}
}

// Accepts reports whether origin is permitted by this policy.
func (p *OriginPolicy) Accepts(origin string) bool {
	if p == nil || p.allowAll {
		return true
	}
	if p.exact[origin] {
		return true
	}
	for _, re := range p.patterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}

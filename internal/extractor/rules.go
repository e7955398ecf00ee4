package extractor

import "regexp"

// FallbackConfidence is assigned to any rule match. Deliberately below a
// confirmed primary match so pollers can prefer model-backed codes.
const FallbackConfidence = 0.7

// Rule is one deterministic extraction rule. Rules are evaluated in
// priority order; the first match wins.
type Rule struct {
	Name    string
	pattern *regexp.Regexp
	// group is the capture group holding the code (0 = whole match).
	group int
}

// Match returns the code matched by this rule, or "" when the text does
// not match.
func (r *Rule) Match(text string) string {
	m := r.pattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[r.group]
}

// FallbackRules is the ordered ladder the fallback stage walks. Keyword
// proximity ranks first because bare digit groups are a known
// false-positive source (phone numbers, dates); 6-digit codes are the
// overwhelmingly common format so they outrank 4- and 8-digit sweeps.
var FallbackRules = []*Rule{
	{
		Name:    "keyword-adjacent",
		pattern: regexp.MustCompile(`(?i)(?:code|pin|verification|passcode|password|otp)\D{0,20}?(\d{4,8})`),
		group:   1,
	},
	{
		Name:    "bare-6-digit",
		pattern: regexp.MustCompile(`\b(\d{6})\b`),
		group:   1,
	},
	{
		Name:    "bare-4-digit",
		pattern: regexp.MustCompile(`\b(\d{4})\b`),
		group:   1,
	},
	{
		Name:    "bare-8-digit",
		pattern: regexp.MustCompile(`\b(\d{8})\b`),
		group:   1,
	},
}

// ApplyFallbackRules walks the ladder and returns the first match along
// with the name of the rule that produced it. A miss returns "", "".
func ApplyFallbackRules(text string) (code, rule string) {
	for _, r := range FallbackRules {
		if m := r.Match(text); m != "" {
			return m, r.Name
		}
	}
	return "", ""
}

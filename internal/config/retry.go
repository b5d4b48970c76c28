package config

import "strings"

// RetryBackoffMode selects how the delay between retries grows.
type RetryBackoffMode string

const (
	RetryBackoffFixed       RetryBackoffMode = "fixed"       // initial every time
	RetryBackoffLinear      RetryBackoffMode = "linear"      // n * initial
	RetryBackoffExponential RetryBackoffMode = "exponential" // initial * 2^(n-1)
)

var retryBackoffModes = [...]RetryBackoffMode{RetryBackoffFixed, RetryBackoffLinear, RetryBackoffExponential}

// NormalizeRetryBackoff matches raw against the known modes ignoring case and
// surrounding blanks. Unknown input yields "".
func NormalizeRetryBackoff(raw string) RetryBackoffMode {
	raw = strings.TrimSpace(raw)
	for _, m := range retryBackoffModes {
		if strings.EqualFold(raw, string(m)) {
			return m
		}
	}
	return ""
}

package enums

import "fmt"

// RetryPolicy maps to the retry_policy enum in Postgres.
type RetryPolicy string

const (
	RetryPolicyExponential RetryPolicy = "exponential"
	RetryPolicyFixed       RetryPolicy = "fixed"
)

var validRetryPolicies = []RetryPolicy{
	RetryPolicyExponential,
	RetryPolicyFixed,
}

// IsValid reports whether the value matches the canonical retry_policy enum.
func (r RetryPolicy) IsValid() bool {
	for _, candidate := range validRetryPolicies {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRetryPolicy converts raw input into RetryPolicy.
func ParseRetryPolicy(value string) (RetryPolicy, error) {
	for _, candidate := range validRetryPolicies {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid retry policy %q", value)
}

package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIdentifier(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		expectErr bool
	}{
		{"Simple Lowercase", "users", false},
		{"Mixed Case", "SyncLog", false},
		{"Leading Underscore", "_internal", false},
		{"With Digits", "table2", false},
		{"With Dollar", "ora$view", false},
		{"Upper Snake", "EMPLOYEE_AUDIT", false},
		{"Empty", "", true},
		{"Leading Digit", "2fast", true},
		{"Embedded Space", "my table", true},
		{"Semicolon Injection", "x; DROP TABLE users", true},
		{"Quote Injection", `x"y`, true},
		{"Backtick Injection", "x`y", true},
		{"Comment Injection", "x--y", true},
		{"Dotted Name", "schema.table", true},
		{"Too Long", strings.Repeat("a", 129), true},
		{"Exactly Max Length", strings.Repeat("a", 128), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateIdentifier(tc.input)
			if tc.expectErr {
				assert.Error(t, err, "expected rejection for %q", tc.input)
			} else {
				assert.NoError(t, err, "expected acceptance for %q", tc.input)
			}
		})
	}
}

package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestIsValidIPv4 tests strict dotted-quad validation
func TestIsValidIPv4(t *testing.T) {
	testCases := []struct {
		name  string
		ip    string
		valid bool
	}{
		{"plain address", "192.168.1.1", true},
		{"zero group", "10.0.0.1", true},
		{"max groups", "255.255.255.255", true},
		{"all zeros", "0.0.0.0", true},
		{"leading zero", "192.168.01.1", false},
		{"zero-padded max", "192.168.1.001", false},
		{"group too large", "256.1.1.1", false},
		{"three groups", "1.2.3", false},
		{"five groups", "1.2.3.4.5", false},
		{"empty string", "", false},
		{"empty group", "1..2.3", false},
		{"trailing dot", "1.2.3.4.", false},
		{"non-numeric", "a.b.c.d", false},
		{"embedded sign", "1.2.-3.4", false},
		{"ipv6", "::1", false},
		{"whitespace", " 1.2.3.4", false},
		{"html error page", "<html>error</html>", false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, IsValidIPv4(tc.ip))
		})
	}
}

// TestRecordFQDN tests record name rendering under a zone
func TestRecordFQDN(t *testing.T) {
	assert.Equal(t, "example.com", RecordFQDN("@", "example.com"))
	assert.Equal(t, "example.com", RecordFQDN("", "example.com"))
	assert.Equal(t, "dokploy.example.com", RecordFQDN("dokploy", "example.com"))
	assert.Equal(t, "a.b.example.com", RecordFQDN("a.b", "example.com"))
}

// TestTruncate tests rune-safe truncation
func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abc", 2))
	assert.Equal(t, "", Truncate("abc", 0))

	long := strings.Repeat("•", 2000)
	assert.Equal(t, 1024, len([]rune(Truncate(long, 1024))))
}

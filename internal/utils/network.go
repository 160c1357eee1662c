package utils

import "strings"

// IsValidIPv4 checks if a string is a valid dotted-quad IPv4 address.
// Stricter than net.ParseIP: every group must be a plain decimal in
// [0,255] with no leading zero, so an IP-echo service returning an
// error page or a zero-padded value is rejected.
func IsValidIPv4(ip string) bool {
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return false
	}

	for _, part := range parts {
		if part == "" || len(part) > 3 {
			return false
		}
		if len(part) > 1 && part[0] == '0' {
			return false
		}

		n := 0
		for _, c := range part {
			if c < '0' || c > '9' {
				return false
			}
			n = n*10 + int(c-'0')
		}
		if n > 255 {
			return false
		}
	}

	return true
}

// RecordFQDN renders a record name under a zone. The apex record "@"
// maps to the zone itself.
func RecordFQDN(record, zone string) string {
	if record == "" || record == "@" {
		return zone
	}
	return record + "." + zone
}

// Truncate shortens s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

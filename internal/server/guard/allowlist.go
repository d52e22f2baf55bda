package guard

import (
	"fmt"
	"net/netip"
	"strings"
)

// AllowList matches client IPs against addresses and CIDR prefixes. The
// zero value is empty and allows everyone.
type AllowList struct {
	prefixes []netip.Prefix
}

// ParseEntry parses "10.0.0.1", "::1" or "192.168.0.0/16".
func ParseEntry(entry string) (netip.Prefix, error) {
	entry = strings.TrimSpace(entry)
	if strings.Contains(entry, "/") {
		p, err := netip.ParsePrefix(entry)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("invalid CIDR %q: %w", entry, err)
		}
		return p.Masked(), nil
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid IP %q: %w", entry, err)
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// ParseAllowList parses every entry. Invalid entries are skipped and
// returned as errors.
func ParseAllowList(entries []string) (AllowList, []error) {
	var (
		list AllowList
		errs []error
	)
	for _, entry := range entries {
		p, err := ParseEntry(entry)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		list.prefixes = append(list.prefixes, p)
	}
	return list, errs
}

// Empty reports whether the list has no valid entries.
func (a AllowList) Empty() bool {
	return len(a.prefixes) == 0
}

// Allows reports whether ip is listed. An empty list allows everyone; an
// unparsable ip is denied by a non-empty list.
func (a AllowList) Allows(ip string) bool {
	if a.Empty() {
		return true
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range a.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

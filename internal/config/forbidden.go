package config

import "net"

// ForbiddenSet is the immutable-after-construction set of destination IPs
// and CIDR ranges the server role refuses to connect to. It is built once
// at startup from Config.ForbiddenIPs and shared by reference across every
// session thereafter; safe for concurrent reads without a mutex.
type ForbiddenSet struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

// NewForbiddenSet parses each entry as either a literal IP or a CIDR range.
// The first entry that is neither stops parsing: NewForbiddenSet returns a
// nil set and that entry's parse error, so callers can decide whether to
// treat it as fatal.
func NewForbiddenSet(entries []string) (*ForbiddenSet, error) {
	fs := &ForbiddenSet{ips: make(map[string]struct{})}
	for _, e := range entries {
		if ip := net.ParseIP(e); ip != nil {
			fs.ips[ip.String()] = struct{}{}
			continue
		}
		_, ipnet, err := net.ParseCIDR(e)
		if err != nil {
			return nil, err
		}
		fs.nets = append(fs.nets, ipnet)
	}
	return fs, nil
}

// Contains reports whether ip matches a forbidden literal or falls inside a
// forbidden CIDR range.
func (fs *ForbiddenSet) Contains(ip net.IP) bool {
	if fs == nil {
		return false
	}
	if _, ok := fs.ips[ip.String()]; ok {
		return true
	}
	for _, n := range fs.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

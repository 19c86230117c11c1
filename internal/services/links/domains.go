package links

import "strings"

// DomainList is a case-insensitive substring matcher over whole URLs.
// "t.me" matches every Telegram link; "t.me/mychannel" only that channel.
type DomainList struct {
	patterns []string
}

// NewDomainList builds a list, ignoring blank entries
func NewDomainList(patterns []string) *DomainList {
	list := &DomainList{}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			list.patterns = append(list.patterns, p)
		}
	}
	return list
}

// Matches reports whether rawURL contains any pattern
func (d *DomainList) Matches(rawURL string) bool {
	if d == nil {
		return false
	}
	lower := strings.ToLower(rawURL)
	for _, p := range d.patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Len returns the number of patterns
func (d *DomainList) Len() int {
	if d == nil {
		return 0
	}
	return len(d.patterns)
}

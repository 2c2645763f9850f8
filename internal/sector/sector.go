// Package sector routes inbound text to a department by keyword.
package sector

import (
	"strings"

	"github.com/matheus3301/wppdesk/internal/config"
)

// Default is the sector assigned when no keyword matches.
const Default = "General"

// Router holds an ordered keyword dictionary. It is immutable and safe for
// concurrent use.
type Router struct {
	fallback string
	sectors  []config.Sector
}

// New builds a Router. Keywords are lower-cased once here; an empty fallback
// uses Default.
func New(fallback string, sectors []config.Sector) *Router {
	if fallback == "" {
		fallback = Default
	}
	r := &Router{fallback: fallback, sectors: make([]config.Sector, 0, len(sectors))}
	for _, s := range sectors {
		kw := make([]string, 0, len(s.Keywords))
		for _, k := range s.Keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
				kw = append(kw, k)
			}
		}
		r.sectors = append(r.sectors, config.Sector{Name: s.Name, Keywords: kw})
	}
	return r
}

// Route returns the first sector whose keyword occurs in text.
func (r *Router) Route(text string) string {
	text = strings.ToLower(text)
	for _, s := range r.sectors {
		for _, k := range s.Keywords {
			if strings.Contains(text, k) {
				return s.Name
			}
		}
	}
	return r.fallback
}

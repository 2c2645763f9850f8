package poll

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/matheus3301/wppdesk/internal/store"
)

var numberRe = regexp.MustCompile(`\d+`)

// Parse resolves a free-text reply to 1-based option ordinals. Numeric
// tokens in range win; otherwise option texts are matched as
// case-insensitive substrings. Single-choice polls keep the first match.
func Parse(p *store.Poll, text string) []int {
	n := len(p.Options)
	single := p.Type != store.PollMultiple

	var selected []int
	for _, tok := range numberRe.FindAllString(text, -1) {
		v, err := strconv.Atoi(tok)
		if err != nil || v < 1 || v > n {
			continue
		}
		selected = append(selected, v)
		if single {
			break
		}
	}

	if len(selected) == 0 {
		reply := strings.ToLower(strings.TrimSpace(text))
		if reply != "" {
			for i, opt := range p.Options {
				o := strings.ToLower(strings.TrimSpace(opt))
				if o == "" {
					continue
				}
				if strings.Contains(reply, o) || strings.Contains(o, reply) {
					selected = append(selected, i+1)
					if single {
						break
					}
				}
			}
		}
	}

	slices.Sort(selected)
	return slices.Compact(selected)
}

// Labels returns the option texts for ordinals.
func Labels(p *store.Poll, ordinals []int) []string {
	out := make([]string, 0, len(ordinals))
	for _, o := range ordinals {
		if o >= 1 && o <= len(p.Options) {
			out = append(out, p.Options[o-1])
		}
	}
	return out
}

package csv

import (
	"bytes"
	"fmt"
	"io"

	"golang.org/x/text/transform"

	"scriptetl/internal/config"
)

// maxScrubPattern bounds From and To so a pending match or replacement
// always fits the transform reader's buffers.
const maxScrubPattern = 1024

// ScrubRule is a literal byte replacement applied to the raw stream before
// CSV decoding.
type ScrubRule struct {
	From []byte
	To   []byte
}

// likvidaciRule repairs a broken quote common in company names:
//
//	` "v likvidaci""`  ->  ` (v likvidaci)"`
var likvidaciRule = ScrubRule{
	From: []byte(` "v likvidaci""`),
	To:   []byte(` (v likvidaci)"`),
}

// scrubRules reads the "scrub" list of {"from", "to"} objects, preceded by
// the built-in rule when "stream_scrub_likvidaci" is set.
func scrubRules(opt config.Options) ([]ScrubRule, error) {
	var rules []ScrubRule
	if opt.Bool("stream_scrub_likvidaci", false) {
		rules = append(rules, likvidaciRule)
	}
	raw := opt.Any("scrub")
	if raw == nil {
		return rules, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("scrub: want a list, got %T", raw)
	}
	for i, item := range list {
		m, ok := config.AsOptions(item)
		if !ok {
			return nil, fmt.Errorf("scrub[%d]: want an object, got %T", i, item)
		}
		from, _ := m["from"].(string)
		to, _ := m["to"].(string)
		switch {
		case from == "":
			return nil, fmt.Errorf("scrub[%d]: from must not be empty", i)
		case len(from) > maxScrubPattern || len(to) > maxScrubPattern:
			return nil, fmt.Errorf("scrub[%d]: from and to are limited to %d bytes", i, maxScrubPattern)
		}
		rules = append(rules, ScrubRule{From: []byte(from), To: []byte(to)})
	}
	return rules, nil
}

// wrapWithScrub applies rules to r in one streaming pass. Without rules r is
// returned as is. Close goes to r.
func wrapWithScrub(r io.ReadCloser, rules []ScrubRule) io.ReadCloser {
	if len(rules) == 0 {
		return r
	}
	return struct {
		io.Reader
		io.Closer
	}{transform.NewReader(r, newScrubber(rules)), r}
}

// scrubber is a transform.Transformer replacing every rule's From with its
// To. At each position the first matching rule wins and replaced output is
// not scanned again.
type scrubber struct {
	rules []ScrubRule
	first [256]bool // first bytes of all patterns
}

func newScrubber(rules []ScrubRule) *scrubber {
	s := &scrubber{rules: rules}
	for _, r := range rules {
		s.first[r.From[0]] = true
	}
	return s
}

func (s *scrubber) Reset() {}

func (s *scrubber) Transform(dst, src []byte, atEOF bool) (nDst, nSrc int, err error) {
	for nSrc < len(src) {
		c := src[nSrc]
		if s.first[c] {
			rule, more := s.match(src[nSrc:], atEOF)
			if more {
				return nDst, nSrc, transform.ErrShortSrc
			}
			if rule != nil {
				if nDst+len(rule.To) > len(dst) {
					return nDst, nSrc, transform.ErrShortDst
				}
				nDst += copy(dst[nDst:], rule.To)
				nSrc += len(rule.From)
				continue
			}
		}
		if nDst == len(dst) {
			return nDst, nSrc, transform.ErrShortDst
		}
		dst[nDst] = c
		nDst++
		nSrc++
	}
	return nDst, nSrc, nil
}

// match returns the first rule whose pattern starts rest. more is set when
// rest is a proper prefix of some pattern and further input could decide.
func (s *scrubber) match(rest []byte, atEOF bool) (rule *ScrubRule, more bool) {
	for i := range s.rules {
		from := s.rules[i].From
		if bytes.HasPrefix(rest, from) {
			return &s.rules[i], false
		}
		if !atEOF && len(rest) < len(from) && bytes.HasPrefix(from, rest) {
			return nil, true
		}
	}
	return nil, false
}

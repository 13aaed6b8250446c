// Package prefixsink is the thin adaptor between the expander's prefix
// tokens and the radix tree(s) that collect them (component C3).
//
// The radix tree implementation itself is out of scope (spec §1): this
// package only uses it through Insert and Walk, the "small
// insertion/iteration interface" the spec calls for.
package prefixsink

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	radix "github.com/Emeline-1/radix"

	"github.com/Emeline-1/irrexpand/report"
)

// Family identifies an IP address family.
type Family int

const (
	FamilyV4 Family = iota
	FamilyV6
)

func (f Family) String() string {
	if f == FamilyV6 {
		return "ipv6"
	}
	return "ipv4"
}

// Tree is the insertion/iteration interface the sink needs from a
// radix tree, grounded on the teacher's use of
// github.com/Emeline-1/radix (tree.Insert in overlays_processing.go)
// generalized with a Walk method in the shape common to that family of
// radix/patricia-trie packages.
type Tree interface {
	Insert(key string, val interface{})
	Walk(fn func(key string, val interface{}) bool)
}

type radixTree struct{ t *radix.Tree }

func newRadixTree() Tree {
	return radixTree{t: radix.New()}
}

func (r radixTree) Insert(key string, val interface{}) { r.t.Insert(key, val) }
func (r radixTree) Walk(fn func(string, interface{}) bool) { r.t.Walk(fn) }

// Sink collects expanded prefixes into one or two radix trees: a
// primary keyed by the run's configured family, and an optional
// secondary that receives IPv6 prefixes while the primary stays IPv4
// (spec §3, "treex").
type Sink struct {
	family    Family
	primary   Tree
	secondary Tree // nil unless a secondary v6 tree was requested
	maxlen    int  // 0 means unbounded
	rep       report.Sink
}

// New builds a Sink for family, optionally with a secondary IPv6 tree
// (only meaningful when family is FamilyV4), capping accepted prefix
// lengths at maxlen (0 disables the cap).
func New(family Family, withSecondary bool, maxlen int, rep report.Sink) *Sink {
	if rep == nil {
		rep = report.Discard{}
	}
	s := &Sink{family: family, maxlen: maxlen, rep: rep, primary: newRadixTree()}
	if withSecondary && family == FamilyV4 {
		s.secondary = newRadixTree()
	}
	return s
}

func familyOf(ip net.IP) Family {
	if ip.To4() != nil {
		return FamilyV4
	}
	return FamilyV6
}

// parsePrefix splits "addr/len" into its net.IPNet and Family.
func parsePrefix(text string) (*net.IPNet, Family, error) {
	ip, ipnet, err := net.ParseCIDR(text)
	if err != nil {
		return nil, 0, err
	}
	ipnet.IP = ip.Mask(ipnet.Mask)
	return ipnet, familyOf(ip), nil
}

// AddPrefix parses text ("addr/len") and inserts it into the primary
// tree, the secondary tree (IPv6 prefix with a configured secondary),
// or drops it (wrong family without a secondary, or masklen > maxlen).
func (s *Sink) AddPrefix(text string) {
	ipnet, fam, err := parsePrefix(text)
	if err != nil {
		s.rep.Report(report.Notice, "unable to parse prefix %q: %v", text, err)
		return
	}
	l, _ := ipnet.Mask.Size()
	if s.maxlen != 0 && l > s.maxlen {
		s.rep.Report(report.Debug, "ignoring prefix %s: masklen %d > max masklen %d", text, l, s.maxlen)
		return
	}

	switch {
	case fam == s.family:
		s.primary.Insert(radixKey(ipnet), ipnet.String())
	case fam == FamilyV6 && s.secondary != nil:
		s.secondary.Insert(radixKey(ipnet), ipnet.String())
	default:
		s.rep.Report(report.Debug, "ignoring prefix %s with wrong address family", text)
	}
}

// AddPrefixRange parses "prefix^min-max" or "prefix^len" and enumerates
// the range into the appropriate tree.
func (s *Sink) AddPrefixRange(text string) {
	head, rangeSpec, ok := strings.Cut(text, "^")
	if !ok {
		s.rep.Report(report.Notice, "AddPrefixRange called without '^' in %q", text)
		return
	}
	ipnet, fam, err := parsePrefix(head)
	if err != nil {
		s.rep.Report(report.Notice, "unable to parse prefix %q: %v", head, err)
		return
	}

	var tree Tree
	var maxlen int
	switch {
	case fam == s.family:
		tree, maxlen = s.primary, s.maxlen
	case fam == FamilyV6 && s.secondary != nil:
		tree, maxlen = s.secondary, s.maxlen
	default:
		s.rep.Report(report.Debug, "ignoring prefix range %s with wrong address family", text)
		return
	}

	lo, hi, err := parseLengthRange(rangeSpec)
	if err != nil {
		s.rep.Report(report.Notice, "bad length range %q in %q: %v", rangeSpec, text, err)
		return
	}
	baseLen, _ := ipnet.Mask.Size()
	if lo < baseLen {
		lo = baseLen
	}

	key := radixKey(ipnet)
	enumerateRange(key, baseLen, lo, hi, func(extended string) {
		l := len(extended)
		if maxlen != 0 && l > maxlen {
			s.rep.Report(report.Debug, "ignoring prefix %s: masklen %d > max masklen %d",
				prefixFromBits(extended, fam), l, maxlen)
			return
		}
		tree.Insert(extended, prefixFromBits(extended, fam))
	})
}

// parseLengthRange parses "min-max" or "len" (meaning min==max==len).
func parseLengthRange(spec string) (lo, hi int, err error) {
	if a, b, ok := strings.Cut(spec, "-"); ok {
		lo, err = strconv.Atoi(a)
		if err != nil {
			return 0, 0, err
		}
		hi, err = strconv.Atoi(b)
		return lo, hi, err
	}
	n, err := strconv.Atoi(spec)
	if err != nil {
		return 0, 0, err
	}
	return n, n, nil
}

// enumerateRange walks every bit extension of key (currently baseLen
// bits) up to each length in [lo, hi], emitting one radix key per
// resulting prefix length.
func enumerateRange(key string, baseLen, lo, hi int, emit func(string)) {
	if hi < baseLen {
		return
	}
	var walk func(cur string)
	walk = func(cur string) {
		if len(cur) >= lo && len(cur) <= hi {
			emit(cur)
		}
		if len(cur) == hi {
			return
		}
		walk(cur + "0")
		walk(cur + "1")
	}
	walk(key)
}

// WalkFamily iterates every prefix held for family fam in ascending
// radix order, the interface downstream (out-of-scope) formatters
// consume.
func (s *Sink) WalkFamily(fam Family, fn func(prefix string)) {
	tree := s.treeFor(fam)
	if tree == nil {
		return
	}
	tree.Walk(func(_ string, val interface{}) bool {
		text, _ := val.(string)
		fn(text)
		return false
	})
}

func (s *Sink) treeFor(fam Family) Tree {
	switch {
	case fam == s.family:
		return s.primary
	case fam == FamilyV6 && s.secondary != nil:
		return s.secondary
	default:
		return nil
	}
}

// HasSecondary reports whether a secondary IPv6 tree is configured.
func (s *Sink) HasSecondary() bool { return s.secondary != nil }

// Family returns the sink's configured primary family.
func (s *Sink) Family() Family { return s.family }

func (f Family) GoString() string { return fmt.Sprintf("Family(%s)", f.String()) }

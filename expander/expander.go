// Package expander implements the expansion driver (component C6): it
// wires the ASN bitset, named sets, prefix sink, protocol codec,
// pipelined I/O loop and source controller together into the two
// expansion phases spec §4.6 describes — macro expansion and, when
// requested, prefix fetching.
//
// Grounded on original_source/bgpq_expander.c's bgpq_expand /
// bgpq_expanded_macro_limit / bgpq_expander_add_as: the depth-cap
// comparison (maxdepth==0 means unbounded, else skip once
// depth+1 >= maxdepth) and the fast-path transitive-expansion rule
// (no maxdepth and an empty stoplist avoids local recursion entirely)
// are ported from there verbatim in meaning, not in code shape — the
// C source's goto-heavy recursive callback becomes a small set of
// named methods here, matching how the teacher structures recursive
// graph/tree walks (overlays_processing.go's generate_walk_radix_tree)
// as closures captured once and reused.
package expander

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Emeline-1/irrexpand/asnset"
	"github.com/Emeline-1/irrexpand/irrproto"
	"github.com/Emeline-1/irrexpand/nameset"
	"github.com/Emeline-1/irrexpand/pipeline"
	"github.com/Emeline-1/irrexpand/prefixsink"
	"github.com/Emeline-1/irrexpand/report"
	"github.com/Emeline-1/irrexpand/sourcectl"
)

// ReadTimeout is the fatal response-wait timeout from spec §4.5/§5 —
// the Go equivalent of the C source's 30 s select() timeout.
const ReadTimeout = 30 * time.Second

// asTrans is the AS_TRANS placeholder ASN (RFC 6793), used both as a
// filterable value and as the sentinel a 32-bit ASN is remapped to
// when the run targets a 16-bit-only IRRd generation.
const asTrans = 23456

// Generation selects how ASN admission treats 32-bit ASNs when the
// caller hasn't opted into asn32 verbatim handling. See DESIGN.md for
// why the zero value is the legacy generation and callers must opt
// into GenerationPrefixList explicitly — this mirrors the C source's
// falsy-default ("!b->maxdepth") idiom, not Go's usual zero-value
// convention.
type Generation int

const (
	GenerationLegacy16Bit Generation = iota
	GenerationPrefixList
)

// Options configures an Expander, matching the core/caller interface
// spec §6 specifies.
type Options struct {
	Family          prefixsink.Family
	SecondaryV6Tree bool

	Sources       string
	SearchDefault bool
	Identify      string

	Pipelining bool

	ASN32            bool
	ExpandAS23456    bool
	ExpandSpecialASN bool
	Generation       Generation

	MaxDepth int // 0 means unbounded, matching the C source's falsy check
	MaxLen   int // 0 means unbounded

	ValidateASNs bool
	WantPrefixes bool

	StopList []string
}

// Expander drives one expansion run over one already-handshaken
// connection.
type Expander struct {
	opts  Options
	conn  net.Conn
	codec *irrproto.Codec
	queue pipeline.Queue
	src   *sourcectl.Controller
	rep   report.Sink

	ASNs     *asnset.Set
	Prefixes *prefixsink.Sink

	already  *nameset.Set
	stoplist *nameset.Set

	edges []Edge

	// submitErr latches the first fatal queue.Submit failure hit while
	// pipelining (spec §7 classifies socket write errors as fatal),
	// since submitMacroPipelined is invoked from token callbacks deep
	// inside PumpReads and has no error return of its own to propagate
	// through. Checked by Expand once pumping settles.
	submitErr error
}

// Edge is one parent-expanded-into-child step of the macro expansion
// call tree; Parent is "" for a top-level object. Consumed by
// diag.ExpansionTree to render the run's expansion shape.
type Edge struct{ Parent, Child string }

func (e *Expander) recordEdge(parent, child string) {
	e.edges = append(e.edges, Edge{Parent: parent, Child: child})
}

// Edges returns every expansion step recorded so far, in the order
// they were first discovered.
func (e *Expander) Edges() []Edge {
	out := make([]Edge, len(e.edges))
	copy(out, e.edges)
	return out
}

// New builds an Expander over conn, which must already be past the
// IRRd handshake (component C8's job, not this package's).
func New(conn net.Conn, opts Options, rep report.Sink) *Expander {
	if rep == nil {
		rep = report.Discard{}
	}
	codec := irrproto.NewCodec(conn, conn)
	stoplist := nameset.New()
	for _, n := range opts.StopList {
		stoplist.Insert(n)
	}

	e := &Expander{
		opts:     opts,
		conn:     conn,
		codec:    codec,
		rep:      rep,
		ASNs:     asnset.New(),
		Prefixes: prefixsink.New(opts.Family, opts.SecondaryV6Tree, opts.MaxLen, rep),
		already:  nameset.New(),
		stoplist: stoplist,
	}
	e.src = sourcectl.New(codec, opts.Sources, opts.SearchDefault, rep)
	return e
}

// Prepare performs the one-time source-controller setup spec §4.7
// requires before any expansion request is issued.
func (e *Expander) Prepare() error { return e.src.Prepare() }

// Run executes a full expansion: Prepare, then Expand over objects
// (AS-set names and/or literal ASNs), then — if the caller wants
// prefix output or ASN validation — FetchPrefixes over routeSets.
func (e *Expander) Run(objects, routeSets []string) error {
	if err := e.Prepare(); err != nil {
		return err
	}
	if err := e.Expand(objects); err != nil {
		return err
	}
	if e.opts.WantPrefixes || e.opts.ValidateASNs {
		if err := e.FetchPrefixes(routeSets); err != nil {
			return err
		}
	}
	return nil
}

// Expand classifies each of the caller's top-level objects (spec
// §4.6's "two kinds of input objects") and either admits it directly
// as an ASN or recursively expands it as an AS-set name, via the
// pipelined or synchronous path according to Options.Pipelining.
func (e *Expander) Expand(objects []string) error {
	for _, obj := range objects {
		switch classifyToken(obj) {
		case classifyASN:
			e.addASNToken(obj)
		case classifyAny:
			// Not expected as a bare top-level object, but harmless.
		case classifyASSet:
			e.recordEdge("", obj)
			if e.opts.Pipelining {
				e.submitMacroPipelined(obj, 0)
				if e.submitErr != nil {
					return e.submitErr
				}
			} else if err := e.expandOneSync(obj, 0); err != nil {
				return err
			}
		default:
			e.rep.Report(report.Notice, "expander: unexpected top-level object %q", obj)
		}
	}
	if e.opts.Pipelining {
		if err := e.queue.PumpReads(e.conn, e.codec, ReadTimeout); err != nil {
			return err
		}
		if e.submitErr != nil {
			return e.submitErr
		}
	}
	return nil
}

func (e *Expander) fastPathEligible() bool {
	return e.opts.MaxDepth <= 0 && e.stoplist.Len() == 0
}

// --- pipelined macro expansion ---

func (e *Expander) submitMacroPipelined(name string, depth int) {
	if e.already.Contains(name) {
		return
	}
	if e.stoplist.Contains(name) {
		return
	}
	e.already.Insert(name)

	var cmd string
	var token func(string)
	if e.fastPathEligible() {
		cmd = irrproto.CmdExpandTransitive(name)
		token = func(tok string) { e.addASNToken(tok) }
	} else {
		cmd = irrproto.CmdExpandOneLevel(name)
		token = func(tok string) { e.dispatchToken(tok, depth, name) }
	}

	req := pipeline.NewRequest(cmd)
	req.Depth = depth
	req.Token = token
	objName := name
	req.Done = func(resp irrproto.Response) {
		if resp.Kind == irrproto.KindMultiple || resp.Kind == irrproto.KindError {
			e.rep.Report(report.Notice, "expander: %s expanding %q: %s", resp.Kind, objName, resp.Rest)
		}
	}
	if err := e.queue.Submit(e.conn, req); err != nil {
		e.rep.Report(report.Fatal, "expander: submitting expansion for %q: %v", name, err)
		if e.submitErr == nil {
			e.submitErr = fmt.Errorf("expander: submitting expansion for %q: %w", name, err)
		}
	}
}

// dispatchToken handles one token from a non-fast-path pipelined
// response: recurse into AS-sets (subject to depth cap and dedup),
// admit ASNs, drop ANY, report anything else.
func (e *Expander) dispatchToken(tok string, depth int, parent string) {
	switch classifyToken(tok) {
	case classifyAny:
		// silent (spec §4.6)
	case classifyASN:
		e.addASNToken(tok)
	case classifyASSet:
		if e.opts.MaxDepth > 0 && depth+1 >= e.opts.MaxDepth {
			return // depth-cap: silent skip
		}
		e.recordEdge(parent, tok)
		e.submitMacroPipelined(tok, depth+1)
	default:
		e.rep.Report(report.Notice, "expander: unexpected token %q", tok)
	}
}

// --- synchronous macro expansion (used when pipelining is off; the
// only path that interacts with sourcectl's fallback retry) ---

func (e *Expander) expandOneSync(name string, depth int) error {
	if e.already.Contains(name) {
		return nil
	}
	if e.stoplist.Contains(name) {
		return nil
	}
	e.already.Insert(name)

	fastPath := e.fastPathEligible()
	var cmd string
	var children []string
	var onToken func(string)
	if fastPath {
		cmd = irrproto.CmdExpandTransitive(name)
		onToken = func(tok string) { e.addASNToken(tok) }
	} else {
		cmd = irrproto.CmdExpandOneLevel(name)
		onToken = func(tok string) {
			switch classifyToken(tok) {
			case classifyAny:
			case classifyASN:
				e.addASNToken(tok)
			case classifyASSet:
				children = append(children, tok)
			default:
				e.rep.Report(report.Notice, "expander: unexpected token %q", tok)
			}
		}
	}

	resp, err := e.syncRequest(cmd, onToken)
	if err != nil {
		return err
	}
	if resp.Kind == irrproto.KindMultiple || resp.Kind == irrproto.KindError {
		e.rep.Report(report.Notice, "expander: %s expanding %q: %s", resp.Kind, name, resp.Rest)
	}

	for _, child := range children {
		if e.opts.MaxDepth > 0 && depth+1 >= e.opts.MaxDepth {
			continue // depth-cap: silent skip
		}
		e.recordEdge(name, child)
		if err := e.expandOneSync(child, depth+1); err != nil {
			return err
		}
	}
	return nil
}

// syncRequest performs one write/read round trip, wrapped in
// sourcectl's source-fallback retry (a no-op when the run has no
// restricted sources or fallback is disabled).
func (e *Expander) syncRequest(cmd string, onToken func(string)) (irrproto.Response, error) {
	attempt := func() (irrproto.Response, error) {
		if err := e.codec.WriteCommand(cmd); err != nil {
			return irrproto.Response{}, fmt.Errorf("expander: writing %q: %w", cmd, err)
		}
		if err := e.conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
			return irrproto.Response{}, fmt.Errorf("expander: setting read deadline: %w", err)
		}
		resp, err := e.codec.ReadResponse(onToken)
		if err != nil {
			return irrproto.Response{}, fmt.Errorf("expander: reading response to %q: %w", cmd, err)
		}
		return resp, nil
	}
	return e.src.RetryOnNotFound(attempt)
}

// --- ASN admission (spec §4.6, C1.add) ---

func (e *Expander) addASNToken(tok string) {
	asn, err := parseASNToken(tok)
	if err != nil {
		e.rep.Report(report.Notice, "expander: unparseable ASN token %q: %v", tok, err)
		return
	}
	e.admitASN(asn)
}

func (e *Expander) admitASN(asn uint32) {
	if asn == 0 {
		return // invalid AS number, rejected unconditionally upstream (bgpq_expander.c: asno<1)
	}
	if !e.opts.ASN32 && e.opts.Generation < GenerationPrefixList && asn > 0xFFFF {
		e.ASNs.Add(asTrans)
		return
	}
	if !e.opts.ExpandSpecialASN && isSpecialASN(asn) {
		return // silent (spec §7)
	}
	if !e.opts.ExpandAS23456 && asn == asTrans {
		return // silent
	}
	e.ASNs.Add(asn)
}

func isSpecialASN(asn uint32) bool {
	return (asn >= 64496 && asn <= 65551) || asn >= 4200000000
}

// parseASNToken parses "AS<n>" or the dotted "AS<hi>.<lo>" form into a
// 32-bit value (hi*65536+lo). Both halves of the dotted form must fit
// in 16 bits.
func parseASNToken(tok string) (uint32, error) {
	if len(tok) < 3 || (tok[0] != 'A' && tok[0] != 'a') || (tok[1] != 'S' && tok[1] != 's') {
		return 0, fmt.Errorf("not an ASN token: %q", tok)
	}
	num := tok[2:]
	if hi, lo, ok := strings.Cut(num, "."); ok {
		hiVal, err := strconv.ParseUint(hi, 10, 32)
		if err != nil || hiVal > 0xFFFF {
			return 0, fmt.Errorf("malformed dotted ASN %q", tok)
		}
		loVal, err := strconv.ParseUint(lo, 10, 32)
		if err != nil || loVal > 0xFFFF {
			return 0, fmt.Errorf("malformed dotted ASN %q", tok)
		}
		return uint32(hiVal)*65536 + uint32(loVal), nil
	}
	v, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("malformed ASN %q: %w", tok, err)
	}
	return uint32(v), nil
}

// --- token classification (spec §4.6) ---

type tokenClass int

const (
	classifyASSet tokenClass = iota
	classifyASN
	classifyAny
	classifyUnexpected
)

func classifyToken(tok string) tokenClass {
	switch {
	case tok == "ANY":
		return classifyAny
	case looksLikeASN(tok):
		return classifyASN
	case strings.ContainsAny(tok, "-:"):
		return classifyASSet
	default:
		return classifyUnexpected
	}
}

func looksLikeASN(tok string) bool {
	if len(tok) < 3 || (tok[0] != 'A' && tok[0] != 'a') || (tok[1] != 'S' && tok[1] != 's') {
		return false
	}
	rest := tok[2:]
	if rest == "" {
		return false
	}
	for _, r := range rest {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}

// --- prefix-fetch phase (spec §4.6) ---

// FetchPrefixes expands each route-set transitively into the prefix
// sink, then iterates the ASN bitset in ascending order issuing
// !gas/!6as per the configured family, applying the self-clearing
// invalidation hook when ValidateASNs is on.
func (e *Expander) FetchPrefixes(routeSets []string) error {
	if e.opts.Pipelining {
		return e.fetchPrefixesPipelined(routeSets)
	}
	return e.fetchPrefixesSynchronous(routeSets)
}

func (e *Expander) addPrefixToken(tok string) {
	if strings.Contains(tok, "^") {
		e.Prefixes.AddPrefixRange(tok)
	} else {
		e.Prefixes.AddPrefix(tok)
	}
}

func (e *Expander) fetchCommandsFor(asn uint32) []string {
	switch e.opts.Family {
	case prefixsink.FamilyV4:
		cmds := []string{irrproto.CmdFetchV4(asn)}
		if e.Prefixes.HasSecondary() {
			cmds = append(cmds, irrproto.CmdFetchV6(asn))
		}
		return cmds
	case prefixsink.FamilyV6:
		return []string{irrproto.CmdFetchV6(asn)}
	default:
		return nil
	}
}

func (e *Expander) maybeInvalidate(asn uint32, resp irrproto.Response) {
	if !e.opts.ValidateASNs {
		return
	}
	if resp.Kind == irrproto.KindNoData || resp.Kind == irrproto.KindNotFound {
		e.ASNs.Clear(asn)
	}
}

func (e *Expander) fetchPrefixesPipelined(routeSets []string) error {
	for _, rs := range routeSets {
		req := pipeline.NewRequest(irrproto.CmdExpandTransitive(rs))
		req.Token = e.addPrefixToken
		if err := e.queue.Submit(e.conn, req); err != nil {
			return err
		}
	}
	if err := e.queue.PumpReads(e.conn, e.codec, ReadTimeout); err != nil {
		return err
	}

	var asns []uint32
	e.ASNs.ForEach(func(a uint32) { asns = append(asns, a) })
	for _, asn := range asns {
		for _, cmd := range e.fetchCommandsFor(asn) {
			req := pipeline.NewRequest(cmd)
			req.Token = e.addPrefixToken
			a := asn
			req.Done = func(resp irrproto.Response) { e.maybeInvalidate(a, resp) }
			if err := e.queue.Submit(e.conn, req); err != nil {
				return err
			}
		}
	}
	return e.queue.PumpReads(e.conn, e.codec, ReadTimeout)
}

func (e *Expander) fetchPrefixesSynchronous(routeSets []string) error {
	for _, rs := range routeSets {
		if _, err := e.syncRequest(irrproto.CmdExpandTransitive(rs), e.addPrefixToken); err != nil {
			return err
		}
	}

	var asns []uint32
	e.ASNs.ForEach(func(a uint32) { asns = append(asns, a) })
	for _, asn := range asns {
		for _, cmd := range e.fetchCommandsFor(asn) {
			resp, err := e.syncRequest(cmd, e.addPrefixToken)
			if err != nil {
				return err
			}
			e.maybeInvalidate(asn, resp)
		}
	}
	return nil
}

// Package config is the ambient CLI/options layer: it turns command
// line flags and caller-supplied input files into an expander.Options
// plus the lists of AS-set/route-set/ASN objects and route-set names
// the driver consumes.
//
// Flag parsing follows the teacher's args.go (flag.NewFlagSet, one
// struct of destinations bound with StringVar/IntVar/BoolVar); reading
// many small input files concurrently is grounded on the teacher's
// repeated pool.Launch_pool(concurrency, files, fn) pattern (readers.go,
// rib.go) — generalized here from warts/RIB files to the
// newline/whitespace-delimited object-list files this tool accepts.
package config

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	pool "github.com/Emeline-1/pool"

	"github.com/Emeline-1/irrexpand/expander"
	"github.com/Emeline-1/irrexpand/prefixsink"
)

// Options bundles the parsed CLI configuration: connection parameters,
// the expander options they map to, and the raw input object/route-set
// lists (before files are loaded).
type Options struct {
	Server string
	Port   string

	Expander expander.Options

	// Objects and RouteSets name AS-sets/ASNs and route-sets supplied
	// directly on the command line.
	Objects   []string
	RouteSets []string

	// ObjectFiles and RouteSetFiles name files to load concurrently and
	// merge into Objects/RouteSets (one whitespace-separated list per
	// line, matching the teacher's "-a" ases-of-interest file format).
	ObjectFiles   []string
	RouteSetFiles []string

	Verbose bool
}

// Default returns the baseline configuration spec §6's external
// interface table implies when a caller doesn't override a field:
// 32-bit ASNs accepted verbatim, modern (prefix-list-capable) IRRd
// generation, both admission filters enabled (i.e. special ranges and
// AS_TRANS rejected), server defaults used as a fallback when sources
// are restricted. See DESIGN.md's Open Question note on why this
// default matters for distinguishing S4 from S5's explicit overrides.
func Default() Options {
	return Options{
		Port: "43",
		Expander: expander.Options{
			Family:        prefixsink.FamilyV4,
			ASN32:         true,
			Generation:    expander.GenerationPrefixList,
			SearchDefault: true,
		},
	}
}

// ParseArgs parses a bgpq3-style argument list into Options, following
// the teacher's flag.NewFlagSet-per-subcommand idiom (args.go). This
// tool has one mode, so one FlagSet suffices.
func ParseArgs(progName string, args []string) (Options, error) {
	opts := Default()

	cmd := flag.NewFlagSet(progName, flag.ContinueOnError)

	var (
		family      string
		objects     string
		objectFiles string
		routeSets   string
		routeFiles  string
		stopList    string
		generation  int
	)

	cmd.StringVar(&opts.Server, "h", "", "IRRd server host")
	cmd.StringVar(&opts.Port, "p", opts.Port, "IRRd server port")
	cmd.StringVar(&family, "f", "4", "Address family: 4 or 6")
	cmd.BoolVar(&opts.Expander.SecondaryV6Tree, "S", false, "Collect IPv6 prefixes alongside an IPv4 primary tree")
	cmd.StringVar(&opts.Expander.Sources, "s", "", "Comma-separated source list restriction")
	cmd.BoolVar(&opts.Expander.SearchDefault, "search-default", opts.Expander.SearchDefault, "Fall back to server default sources on D")
	cmd.StringVar(&opts.Expander.Identify, "n", "", "Identify string sent via !n")
	cmd.BoolVar(&opts.Expander.Pipelining, "pipe", false, "Enable pipelined I/O")
	cmd.BoolVar(&opts.Expander.ASN32, "asn32", opts.Expander.ASN32, "Accept 32-bit ASNs verbatim")
	cmd.BoolVar(&opts.Expander.ExpandAS23456, "expand-as23456", false, "Do not filter AS_TRANS (23456)")
	cmd.BoolVar(&opts.Expander.ExpandSpecialASN, "expand-special-asn", false, "Do not filter documentation/private ASN ranges")
	cmd.IntVar(&generation, "generation", int(opts.Expander.Generation), "IRRd generation: 0=legacy 16-bit, 1=prefix-list capable")
	cmd.IntVar(&opts.Expander.MaxDepth, "maxdepth", 0, "Maximum AS-set recursion depth (0 = unbounded)")
	cmd.IntVar(&opts.Expander.MaxLen, "maxlen", 0, "Drop prefixes longer than this (0 = unbounded)")
	cmd.BoolVar(&opts.Expander.ValidateASNs, "validate", false, "Clear ASNs that answer C/D on prefix fetch")
	cmd.BoolVar(&opts.Expander.WantPrefixes, "prefixes", false, "Run the prefix-fetch phase")
	cmd.StringVar(&stopList, "stop", "", "Comma-separated set names never to expand")
	cmd.StringVar(&objects, "objects", "", "Comma-separated AS-set names and/or ASNs to expand")
	cmd.StringVar(&objectFiles, "a", "", "Comma-separated files of AS-set names/ASNs, one whitespace-separated list per line")
	cmd.StringVar(&routeSets, "route-sets", "", "Comma-separated route-set names")
	cmd.StringVar(&routeFiles, "route-set-files", "", "Comma-separated files of route-set names")
	cmd.BoolVar(&opts.Verbose, "v", false, "Verbose (debug-level) reporting")

	if err := cmd.Parse(args); err != nil {
		return Options{}, err
	}

	switch family {
	case "4":
		opts.Expander.Family = prefixsink.FamilyV4
	case "6":
		opts.Expander.Family = prefixsink.FamilyV6
	default:
		return Options{}, fmt.Errorf("config: invalid -f %q, want 4 or 6", family)
	}
	opts.Expander.Generation = expander.Generation(generation)

	opts.Objects = splitNonEmpty(objects)
	opts.RouteSets = splitNonEmpty(routeSets)
	opts.ObjectFiles = splitNonEmpty(objectFiles)
	opts.RouteSetFiles = splitNonEmpty(routeFiles)
	opts.Expander.StopList = splitNonEmpty(stopList)

	if opts.Server == "" {
		return Options{}, fmt.Errorf("config: -h (IRRd server) is required")
	}
	return opts, nil
}

func splitNonEmpty(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LoadObjectFiles reads every file in opts.ObjectFiles concurrently and
// merges their contents into opts.Objects, grounded on the teacher's
// pool.Launch_pool(concurrency, items, fn) pattern.
func LoadObjectFiles(opts *Options) error {
	merged, err := loadWordFiles(opts.ObjectFiles)
	if err != nil {
		return err
	}
	opts.Objects = append(opts.Objects, merged...)
	return nil
}

// LoadRouteSetFiles is LoadObjectFiles's counterpart for route-set
// name files.
func LoadRouteSetFiles(opts *Options) error {
	merged, err := loadWordFiles(opts.RouteSetFiles)
	if err != nil {
		return err
	}
	opts.RouteSets = append(opts.RouteSets, merged...)
	return nil
}

// loadWordFiles reads every file in files concurrently (one goroutine
// per pool slot, fanned out via pool.Launch_pool) and returns every
// whitespace-separated word found, in file order with each file's words
// kept contiguous.
func loadWordFiles(files []string) ([]string, error) {
	if len(files) == 0 {
		return nil, nil
	}

	var mu sync.Mutex
	wordsByFile := make(map[string][]string, len(files))
	var firstErr error

	readOne := func(path string) {
		words, err := readWords(path)
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		wordsByFile[path] = words
	}

	concurrency := len(files)
	if concurrency > 16 {
		concurrency = 16
	}
	pool.Launch_pool(concurrency, files, readOne)

	if firstErr != nil {
		return nil, firstErr
	}
	var out []string
	for _, path := range files {
		out = append(out, wordsByFile[path]...)
	}
	return out, nil
}

func readWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		words = append(words, strings.Fields(scanner.Text())...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: scanning %s: %w", path, err)
	}
	return words, nil
}

// PortNumber validates opts.Port is numeric, matching the connmgr
// dial's expectations (net.JoinHostPort accepts non-numeric service
// names too, but this tool only ever sees ports).
func PortNumber(opts Options) (int, error) {
	return strconv.Atoi(opts.Port)
}

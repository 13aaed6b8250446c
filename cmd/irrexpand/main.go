// Command irrexpand is a bgpq3-style IRR macro expander: it connects to
// an IRRd server, expands the given AS-sets/ASNs and (optionally)
// route-sets, and prints the resulting ASNs/prefixes plus the
// expansion's call tree and connected components.
//
// Wiring follows the teacher's main.go shape (log.SetFlags(0), a
// single top-level dispatch that parses arguments then calls into the
// packages doing the real work) scaled down to this tool's one mode.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/Emeline-1/irrexpand/config"
	"github.com/Emeline-1/irrexpand/connmgr"
	"github.com/Emeline-1/irrexpand/diag"
	"github.com/Emeline-1/irrexpand/expander"
	"github.com/Emeline-1/irrexpand/prefixsink"
	"github.com/Emeline-1/irrexpand/report"
)

func main() {
	log.SetFlags(0)

	opts, err := config.ParseArgs(os.Args[0], os.Args[1:])
	if err != nil {
		log.Fatalf("irrexpand: %v", err)
	}

	rep := report.Filtered{
		Sink:    report.NewStdLogger(log.New(os.Stderr, "", 0)),
		Verbose: opts.Verbose,
	}

	if err := config.LoadObjectFiles(&opts); err != nil {
		log.Fatalf("irrexpand: %v", err)
	}
	if err := config.LoadRouteSetFiles(&opts); err != nil {
		log.Fatalf("irrexpand: %v", err)
	}

	if err := run(opts, rep); err != nil {
		log.Fatalf("irrexpand: %v", err)
	}
}

func run(opts config.Options, rep report.Sink) error {
	ctx, cancel := context.WithTimeout(context.Background(), connmgr.HandshakeTimeout)
	defer cancel()

	conn, err := connmgr.Dial(ctx, connmgr.Options{
		Server:     opts.Server,
		Port:       opts.Port,
		Identify:   opts.Expander.Identify,
		Pipelining: opts.Expander.Pipelining,
		Report:     rep,
	})
	if err != nil {
		return fmt.Errorf("connecting to %s:%s: %w", opts.Server, opts.Port, err)
	}
	defer conn.Close()

	exp := expander.New(conn, opts.Expander, rep)
	if err := exp.Run(opts.Objects, opts.RouteSets); err != nil {
		return fmt.Errorf("expansion: %w", err)
	}

	printResults(exp, opts)
	return nil
}

func printResults(exp *expander.Expander, opts config.Options) {
	fmt.Println("# ASNs")
	exp.ASNs.ForEach(func(asn uint32) {
		fmt.Printf("AS%d\n", asn)
	})

	if opts.Expander.WantPrefixes {
		fmt.Println("\n# Prefixes")
		exp.Prefixes.WalkFamily(exp.Prefixes.Family(), func(prefix string) {
			fmt.Println(prefix)
		})
		if exp.Prefixes.HasSecondary() {
			other := prefixsink.FamilyV6
			if exp.Prefixes.Family() == prefixsink.FamilyV6 {
				other = prefixsink.FamilyV4
			}
			fmt.Printf("\n# Prefixes (%s)\n", other)
			exp.Prefixes.WalkFamily(other, func(prefix string) {
				fmt.Println(prefix)
			})
		}
	}

	edges := exp.Edges()
	fmt.Println("\n# Expansion tree")
	diag.NewExpansionTree(edges).Fprint(os.Stdout)

	if components := diag.ConnectedComponents(edges); len(components) > 1 {
		fmt.Println("\n# Connected components")
		for i, c := range components {
			fmt.Printf("%d: %v\n", i+1, c)
		}
	}
}

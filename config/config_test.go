package config

import (
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/Emeline-1/irrexpand/expander"
	"github.com/Emeline-1/irrexpand/prefixsink"
)

func TestParseArgsDefaults(t *testing.T) {
	opts, err := ParseArgs("irrexpand", []string{"-h", "rr.example.net", "-objects", "AS-FOO,AS100"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts.Server != "rr.example.net" || opts.Port != "43" {
		t.Fatalf("got server=%q port=%q", opts.Server, opts.Port)
	}
	if opts.Expander.Family != prefixsink.FamilyV4 {
		t.Fatalf("expected default family v4")
	}
	if !opts.Expander.ASN32 || opts.Expander.Generation != expander.GenerationPrefixList {
		t.Fatalf("expected asn32=true, generation=prefix-list by default")
	}
	want := []string{"AS-FOO", "AS100"}
	if len(opts.Objects) != len(want) || opts.Objects[0] != want[0] || opts.Objects[1] != want[1] {
		t.Fatalf("objects = %v, want %v", opts.Objects, want)
	}
}

func TestParseArgsRequiresServer(t *testing.T) {
	if _, err := ParseArgs("irrexpand", []string{"-objects", "AS100"}); err == nil {
		t.Fatalf("expected error when -h is omitted")
	}
}

func TestParseArgsFamilySix(t *testing.T) {
	opts, err := ParseArgs("irrexpand", []string{"-h", "rr.example.net", "-f", "6"})
	if err != nil {
		t.Fatalf("ParseArgs: %v", err)
	}
	if opts.Expander.Family != prefixsink.FamilyV6 {
		t.Fatalf("expected family v6")
	}
}

func TestParseArgsInvalidFamily(t *testing.T) {
	if _, err := ParseArgs("irrexpand", []string{"-h", "rr.example.net", "-f", "5"}); err == nil {
		t.Fatalf("expected error for invalid -f value")
	}
}

func TestLoadObjectFilesMergesConcurrently(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "a.txt")
	f2 := filepath.Join(dir, "b.txt")
	if err := os.WriteFile(f1, []byte("AS-FOO AS100\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f2, []byte("AS-BAR\nAS200\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	opts := Options{ObjectFiles: []string{f1, f2}, Objects: []string{"AS-SEED"}}
	if err := LoadObjectFiles(&opts); err != nil {
		t.Fatalf("LoadObjectFiles: %v", err)
	}

	got := append([]string{}, opts.Objects...)
	sort.Strings(got)
	want := []string{"AS-BAR", "AS-FOO", "AS-SEED", "AS100", "AS200"}
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("objects = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("objects = %v, want %v", got, want)
		}
	}
}

func TestLoadObjectFilesMissingFile(t *testing.T) {
	opts := Options{ObjectFiles: []string{"/nonexistent/path/does-not-exist.txt"}}
	if err := LoadObjectFiles(&opts); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/msg555/ustar/tarfmt"
	"github.com/msg555/ustar/tartree"
)

func cmdList(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file supplying flag defaults")
	raw := fs.Bool("raw", false, "don't coalesce PAX/GNU extension headers")
	strict := fs.Bool("strict", false, "abort on the first structural error instead of reporting it and stopping")
	fs.Parse(args) //nolint:errcheck

	if fs.NArg() != 1 {
		log.Fatal("Usage: ustar list [flags] <input.tar>")
	}
	inPath := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("loading config: ", err)
	}
	if !isFlagPassed(fs, "strict") {
		*strict = cfg.Strict
	}

	in, err := openInput(inPath)
	if err != nil {
		fatal("opening input: ", err)
	}
	defer in.Close()

	opts := tartree.ListOptions{
		Raw:    *raw,
		Strict: *strict,
		Callback: func(entry tartree.ListEntry) error {
			printListEntry(entry)
			return nil
		},
	}
	if err := tartree.List(in, opts); err != nil {
		fatal("list failed: ", err)
	}
}

func printListEntry(entry tartree.ListEntry) {
	if entry.Err != nil {
		fmt.Printf("error: %s\n", entry.Err)
		return
	}
	if entry.Raw != nil {
		fmt.Printf("%s %8d (raw block)\n", string(entry.Raw.Typeflag), entry.Raw.Size)
		return
	}
	h := entry.Header
	suffix := ""
	if h.Type == tarfmt.TypeSymlink {
		suffix = " -> " + h.Link
	}
	fmt.Printf("%-9s %04o %8d %s%s\n", h.Type, h.Mode, h.Size, h.Path, suffix)
}

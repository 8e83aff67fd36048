package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/msg555/ustar/tartree"
)

func cmdRewrite(args []string) {
	fs := flag.NewFlagSet("rewrite", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file supplying flag defaults")
	portable := fs.Bool("portable", false, "reject Windows-unsafe paths")
	fs.Parse(args) //nolint:errcheck

	if fs.NArg() != 2 {
		log.Fatal("Usage: ustar rewrite [flags] <input.tar> <output.tar>")
	}
	inPath, outPath := fs.Arg(0), fs.Arg(1)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("loading config: ", err)
	}
	if !isFlagPassed(fs, "portable") {
		*portable = cfg.Portable
	}

	in, err := openInput(inPath)
	if err != nil {
		fatal("opening input: ", err)
	}
	defer in.Close()

	src, err := tartree.BufferIfNeeded(in)
	if err != nil {
		fatal("buffering input: ", err)
	}

	out, err := openOutput(outPath)
	if err != nil {
		fatal("opening output: ", err)
	}
	defer out.Close()

	summary, err := tartree.Rewrite(src, out, tartree.RewriteOptions{Portable: *portable})
	if err != nil {
		fatal("rewrite failed: ", err)
	}
	fmt.Printf("Rewrote %s to %s: %d entries, %d bytes of file data\n",
		inPath, outPath, summary.EntriesWritten, summary.BytesWritten)
}

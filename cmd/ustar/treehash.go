package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/msg555/ustar/tartree"
)

func cmdTreeHash(args []string) {
	fs := flag.NewFlagSet("treehash", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file supplying flag defaults")
	algorithm := fs.String("algorithm", "git-sha1", "git-sha1|git-sha256")
	skipEmpty := fs.Bool("skip-empty", false, "prune directories with no hashable descendants before hashing")
	fs.Parse(args) //nolint:errcheck

	if fs.NArg() != 1 {
		log.Fatal("Usage: ustar treehash [flags] <input.tar>")
	}
	inPath := fs.Arg(0)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("loading config: ", err)
	}
	if !isFlagPassed(fs, "algorithm") && cfg.Algorithm != "" {
		*algorithm = cfg.Algorithm
	}

	in, err := openInput(inPath)
	if err != nil {
		fatal("opening input: ", err)
	}
	defer in.Close()

	digest, err := tartree.TreeHash(in, tartree.TreeHashOptions{
		Algo:      tartree.HashAlgo(*algorithm),
		SkipEmpty: *skipEmpty,
	})
	if err != nil {
		fatal("treehash failed: ", err)
	}
	fmt.Println(digest)
}

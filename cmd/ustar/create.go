package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/msg555/ustar/tartree"
)

func cmdCreate(args []string) {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file supplying flag defaults")
	portable := fs.Bool("portable", false, "reject Windows-unsafe paths")
	skeletonPath := fs.String("skeleton", "", "replay a skeleton captured by extract -skeleton instead of walking root")
	fs.Parse(args) //nolint:errcheck // flag.ExitOnError already handles failures

	if fs.NArg() != 2 {
		log.Fatal("Usage: ustar create [flags] <root-dir> <output.tar>")
	}
	root, outPath := fs.Arg(0), fs.Arg(1)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("loading config: ", err)
	}
	if !isFlagPassed(fs, "portable") {
		*portable = cfg.Portable
	}

	out, err := openOutput(outPath)
	if err != nil {
		fatal("opening output: ", err)
	}
	defer out.Close()

	opts := tartree.CreateOptions{Portable: *portable}
	if *skeletonPath != "" {
		skel, err := openInput(*skeletonPath)
		if err != nil {
			fatal("opening skeleton: ", err)
		}
		defer skel.Close()
		opts.Skeleton = skel
	}

	if err := tartree.Create(root, out, opts); err != nil {
		fatal("create failed: ", err)
	}
	fmt.Printf("Created %s from %s\n", outPath, root)
}

func isFlagPassed(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

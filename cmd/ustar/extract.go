package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/msg555/ustar/tartree"
)

func cmdExtract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file supplying flag defaults")
	copySymlinks := fs.String("copy-symlinks", "auto", "true|false|auto")
	setPermissions := fs.Bool("set-permissions", false, "reproduce the owner-executable bit under the host umask")
	skeletonOut := fs.String("skeleton", "", "record a skeleton of the input to this path for later replay")
	fs.Parse(args) //nolint:errcheck

	if fs.NArg() != 2 {
		log.Fatal("Usage: ustar extract [flags] <input.tar> <root-dir>")
	}
	inPath, root := fs.Arg(0), fs.Arg(1)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("loading config: ", err)
	}
	if !isFlagPassed(fs, "copy-symlinks") && cfg.CopySymlinks != "" {
		*copySymlinks = cfg.CopySymlinks
	}
	if !isFlagPassed(fs, "set-permissions") {
		*setPermissions = cfg.SetPermissions
	}

	mode, err := parseCopySymlinks(*copySymlinks)
	if err != nil {
		log.Fatal(err)
	}

	in, err := openInput(inPath)
	if err != nil {
		fatal("opening input: ", err)
	}
	defer in.Close()

	opts := tartree.ExtractOptions{
		CopySymlinks:   mode,
		SetPermissions: *setPermissions,
	}
	if *skeletonOut != "" {
		skel, err := openOutput(*skeletonOut)
		if err != nil {
			fatal("opening skeleton output: ", err)
		}
		defer skel.Close()
		opts.Skeleton = skel
	}

	if err := tartree.Extract(in, root, opts); err != nil {
		fatal("extract failed: ", err)
	}
	fmt.Printf("Extracted %s to %s\n", inPath, root)
}

func parseCopySymlinks(s string) (tartree.CopySymlinksMode, error) {
	switch s {
	case "", "auto":
		return tartree.CopySymlinksAuto, nil
	case "true":
		return tartree.CopySymlinksOn, nil
	case "false":
		return tartree.CopySymlinksOff, nil
	default:
		return 0, fmt.Errorf("invalid -copy-symlinks value %q: want true, false, or auto", s)
	}
}

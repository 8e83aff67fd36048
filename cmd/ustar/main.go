// Command ustar is a reference CLI over the tarfmt/tartree library: create,
// extract, list, rewrite, and treehash subcommands exercising the engine's
// five public operations.
package main

import (
	"compress/gzip"
	"io"
	"log"
	"os"
	"strings"

	"github.com/go-errors/errors"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: ustar <create|extract|list|rewrite|treehash> [flags]")
	}

	cmd := os.Args[1]
	args := os.Args[2:]
	switch cmd {
	case "create":
		cmdCreate(args)
	case "extract":
		cmdExtract(args)
	case "list":
		cmdList(args)
	case "rewrite":
		cmdRewrite(args)
	case "treehash":
		cmdTreeHash(args)
	default:
		log.Fatal("Unknown subcommand: ", cmd)
	}
}

// fatal prints a captured stack trace when err is a *errors.Error, matching
// cmd/import_tar.go's fatal-reporting convention.
func fatal(prefix string, err error) {
	if gerr, ok := err.(*errors.Error); ok {
		log.Fatal(prefix, err, "\n", gerr.ErrorStack())
	}
	log.Fatal(prefix, err)
}

// openInput opens path for reading, or stdin for "-", transparently
// decompressing .gz/.tgz sources, mirroring import_tar.go's handling of
// possibly-gzipped tar input.
func openInput(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, 1)
	}
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".gz") || strings.HasSuffix(lower, ".tgz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, errors.Wrap(err, 1)
		}
		return &gzipCloser{gz: gz, f: f}, nil
	}
	return f, nil
}

type gzipCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g *gzipCloser) Close() error {
	gerr := g.gz.Close()
	ferr := g.f.Close()
	if gerr != nil {
		return gerr
	}
	return ferr
}

// openOutput opens path for writing, or stdout for "-".
func openOutput(path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, 1)
	}
	return f, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

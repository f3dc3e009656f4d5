// Command gjc is the GapJunction channel compiler CLI. It compiles a
// channel document into a deployable bundle, and can extract, inspect, and
// re-verify bundles.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/imodoye94/gapjunction-engine-sub001/pkg/config"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	cfg := config.Load()
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})))

	switch args[1] {
	case "compile":
		return runCompile(args[2:], cfg, stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "extract":
		return runExtract(args[2:], stdout, stderr)
	case "inspect":
		return runInspect(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "gjc: unknown command %q\n", args[1])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `usage: gjc <command> [flags]

commands:
  compile   compile a channel document into a bundle
  verify    re-verify a bundle against recorded hashes
  extract   unpack a bundle into a directory
  inspect   print a bundle's manifest and metadata`)
}

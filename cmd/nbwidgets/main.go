// Command nbwidgets adds the missing "state" key to every widget entry in
// metadata.widgets of one or more Jupyter notebooks, or removes
// metadata.widgets entirely with -remove. A timestamped backup is written
// next to each notebook before it is touched.
//
// Usage:
//
//	go run ./cmd/nbwidgets notebook.ipynb other.ipynb
//	go run ./cmd/nbwidgets -remove notebook.ipynb
//	go run ./cmd/nbwidgets notebook.ipynb --remove
//
// The exit status is 1 when any notebook could not be processed.
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/jonboulle/clockwork"

	"github.com/sarida/backend/internal/notebook"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stderr))
}

func run(args []string, stderr io.Writer) int {
	fs := flag.NewFlagSet("nbwidgets", flag.ContinueOnError)
	fs.SetOutput(stderr)
	remove := fs.Bool("remove", false, "remove metadata.widgets instead of adding state")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: nbwidgets [-remove] notebook.ipynb...")
		fs.PrintDefaults()
	}
	paths, err := parseInterspersed(fs, args)
	if err != nil {
		return 2
	}
	if len(paths) == 0 {
		fs.Usage()
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, nil))
	fixer := notebook.NewFixer(*remove, clockwork.NewRealClock(), logger)

	results, ok := fixer.ProcessAll(paths)
	changed := 0
	for _, r := range results {
		if r.Status == notebook.StatusChanged {
			changed++
		}
	}
	logger.Info("done", "notebooks", len(results), "changed", changed, "ok", ok)
	if !ok {
		return 1
	}
	return 0
}

// parseInterspersed lets flags follow notebook paths. Everything after "--"
// is a path.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var paths []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			return paths, nil
		}
		if consumed := len(args) - len(rest); consumed > 0 && args[consumed-1] == "--" {
			return append(paths, rest...), nil
		}
		paths = append(paths, rest[0])
		args = rest[1:]
	}
}

// Command linkcheck opens the configured store, applies pending schema
// migrations, and reports every linked record grouped under its base,
// flagging links whose base no longer resolves.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"linkcore/internal/core"
	"linkcore/internal/linking"
	"linkcore/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("linkcheck", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var strict bool
	fs.BoolVar(&strict, "strict", false, "exit non-zero when broken links are found")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx := context.Background()
	svc, err := core.OpenServiceFromEnv(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}
	defer func() { _ = svc.Close() }()

	broken, err := report(ctx, svc, stdout)
	if err != nil {
		fmt.Fprintf(stderr, "link check failed: %v\n", err)
		return 1
	}
	if broken > 0 && strict {
		return 1
	}
	return 0
}

// report prints the derived index and returns the number of broken links.
func report(ctx context.Context, svc *core.Service, w io.Writer) (int, error) {
	index, err := svc.DerivedIndex(ctx)
	if err != nil {
		return 0, err
	}

	bases := make([]domain.Identity, 0, len(index))
	for base := range index {
		bases = append(bases, base)
	}
	sort.Slice(bases, func(i, j int) bool { return bases[i] < bases[j] })

	broken := 0
	total := 0
	for _, base := range bases {
		derived := index[base]
		sort.Slice(derived, func(i, j int) bool { return derived[i].Identity < derived[j].Identity })
		fmt.Fprintf(w, "%s (%d derived)\n", base, len(derived))
		for _, d := range derived {
			total++
			mark := "ok"
			if linking.IsBrokenLink(d.Item, svc.Store()) {
				mark = "BROKEN"
				broken++
			}
			fmt.Fprintf(w, "  %-6s %s\n", mark, d.Identity)
		}
	}
	fmt.Fprintf(w, "%d linked records under %d bases, %d broken\n", total, len(bases), broken)
	return broken, nil
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"retasm/pkg/asm"
	"retasm/pkg/avr"
	"retasm/pkg/luapeep"
	"retasm/pkg/thumb"
	"retasm/pkg/utils"
)

type options struct {
	arch         string
	out          string
	base         int64
	noPeephole   bool
	noStackCheck bool
	rules        string
	listing      bool
	jobs         int
}

func main() {
	err := newRootCmd(os.Stdout, os.Stderr).Execute()
	glog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, "retasm:", err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "retasm [flags] file...",
		Short: "Assemble Thumb or AVR source into raw binaries",
		Long: `Retasm assembles each source file into a flat little-endian binary
written next to the input with a .bin extension.

Labels are resolved over repeated passes until every address is stable,
after which the peephole optimizer rewrites the code until it converges.
Several files are assembled concurrently.
`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			// glog reads its settings from the Go flag set.
			return flag.CommandLine.Parse(nil)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, args, stdout, stderr)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&opts.arch, "arch", "thumb", "target architecture: thumb or avr")
	fl.StringVarP(&opts.out, "out", "o", "", "output path (single input only)")
	fl.Int64Var(&opts.base, "base", 0, "load address of the first word")
	fl.BoolVar(&opts.noPeephole, "no-peephole", false, "disable the peephole optimizer")
	fl.BoolVar(&opts.noStackCheck, "no-stackcheck", false, "disable stack balance checking")
	fl.StringVar(&opts.rules, "rules", "", "Lua file with extra peephole rules")
	fl.BoolVar(&opts.listing, "listing", false, "write an annotated .lst next to each output")
	fl.IntVarP(&opts.jobs, "jobs", "j", 0, "files assembled at once (0 means no limit)")
	fl.AddGoFlagSet(flag.CommandLine)
	return cmd
}

// parseArch returns the target named by name.
func parseArch(name string) (asm.Processor, error) {
	switch strings.ToLower(name) {
	case "thumb", "arm", "armv6m":
		return thumb.New(), nil
	case "avr":
		return avr.New(), nil
	default:
		return nil, errors.Errorf("unknown architecture %q", name)
	}
}

type result struct {
	path   string
	output string
	size   int
	conv   asm.Convergence
	err    error
}

func run(opts *options, inputs []string, stdout, stderr io.Writer) error {
	if opts.out != "" && len(inputs) > 1 {
		return errors.New("--out needs exactly one input file")
	}

	proc, err := parseArch(opts.arch)
	if err != nil {
		return err
	}
	if opts.rules != "" {
		lp, err := luapeep.NewFromFile(proc, opts.rules)
		if err != nil {
			return err
		}
		defer lp.Close()
		proc = lp
	}

	results := make([]result, len(inputs))
	var g errgroup.Group
	if opts.jobs > 0 {
		g.SetLimit(opts.jobs)
	}
	for i, path := range inputs {
		i, path := i, path
		g.Go(func() error {
			results[i] = assembleFile(proc, path, opts)
			return results[i].err
		})
	}
	waitErr := g.Wait()

	colour := isTerminal(stderr)
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			printError(stderr, r.path, r.err, colour)
			continue
		}
		fmt.Fprintf(stdout, "assembled %d bytes -> %s\n", r.size, r.output)
		if r.conv.Pass > 0 {
			glog.V(1).Infof("%s: %d peephole passes, %d removed, %d updated, converged=%v",
				r.path, r.conv.Pass, r.conv.Removed, r.conv.Updated, r.conv.Converged())
		}
	}
	if waitErr != nil {
		return errors.Errorf("%d of %d files failed", failed, len(inputs))
	}
	return nil
}

func assembleFile(proc asm.Processor, path string, opts *options) result {
	r := result{path: path, output: utils.OutputPath(path, opts.out)}

	src, err := os.ReadFile(path)
	if err != nil {
		r.err = errors.Wrap(err, "reading source")
		return r
	}

	f := asm.NewFile(proc)
	f.BaseOffset = opts.base
	f.DisablePeephole = opts.noPeephole
	f.CheckStack = !opts.noStackCheck
	if err := f.Emit(string(src)); err != nil {
		r.err = err
		return r
	}

	code := f.Bytes()
	if err := os.WriteFile(r.output, code, 0o644); err != nil {
		r.err = errors.Wrapf(err, "writing %s", r.output)
		return r
	}
	if opts.listing {
		lst := utils.ListingPath(r.output)
		if err := os.WriteFile(lst, []byte(f.Listing(false, true)), 0o644); err != nil {
			r.err = errors.Wrapf(err, "writing %s", lst)
			return r
		}
	}
	r.size = len(code)
	r.conv = f.Convergence()
	return r
}

const (
	red   = "\x1b[31m"
	bold  = "\x1b[1m"
	reset = "\x1b[0m"
)

func printError(w io.Writer, path string, err error, colour bool) {
	paint := func(c, s string) string {
		if !colour {
			return s
		}
		return c + s + reset
	}

	var diags asm.Errors
	if !errors.As(err, &diags) {
		fmt.Fprintf(w, "%s: %s %v\n", paint(bold, path), paint(red, "error:"), err)
		return
	}
	for _, d := range diags {
		loc := fmt.Sprintf("%s:%d", path, d.LineNo)
		if d.Scope != "" {
			loc += " (" + d.Scope + ")"
		}
		fmt.Fprintf(w, "%s: %s %s\n", paint(bold, loc), paint(red, "error:"), d.CoreMsg)
		if line := strings.TrimSpace(d.Line); line != "" {
			fmt.Fprintf(w, "    %s\n", line)
		}
		if d.Hints != "" {
			fmt.Fprint(w, d.Hints)
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var exportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write a JSON snapshot of records and blocks",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		if len(args) == 0 || args[0] == "-" {
			return a.svc.Export(ctx, os.Stdout)
		}
		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("create %s: %w", args[0], err)
		}
		if err := a.svc.Export(ctx, f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("close %s: %w", args[0], err)
		}
		fmt.Fprintf(os.Stderr, "Exported ledger to %s\n", args[0])
		return nil
	}),
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the ledger with a verified snapshot",
	Long: `import reads a snapshot written by "qldb export", verifies its hash
chain and every block, and only then replaces the ledger's contents. A
snapshot that fails verification leaves the ledger untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		r, closeFn, err := openInput(args[0])
		if err != nil {
			return err
		}
		defer closeFn()

		sum, err := a.svc.Import(ctx, r)
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(sum)
		}
		fmt.Printf("Imported %d records and %d blocks, tail %s\n", sum.Records, sum.Blocks, sum.Tail)
		return nil
	}),
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, func() { f.Close() }, nil
}

func readInput(path string) ([]byte, error) {
	r, closeFn, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return b, nil
}

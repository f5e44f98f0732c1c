package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/qldb/internal/ledger"
	"github.com/jmerrifield20/qldb/internal/service"
	"github.com/spf13/cobra"
)

var addCmd = &cobra.Command{
	Use:   "add <id> <json>",
	Short: "Append a record to the ledger",
	Example: `  qldb add user-1 '{"name":"alice","balance":10}'`,
	Args: cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		rec, err := a.svc.Add(ctx, args[0], json.RawMessage(args[1]))
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(rec)
		}
		fmt.Printf("Added ID: %s\n", rec.ID)
		fmt.Printf("Hash:     %s\n", rec.Hash)
		return nil
	}),
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show the latest record for an id",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		rec, err := a.svc.Get(ctx, args[0])
		if errors.Is(err, service.ErrNotFound) && !jsonOutput() {
			fmt.Printf("No entry found for ID: %s\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(rec)
		}
		printRecord(rec)
		return nil
	}),
}

var historyCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show every version of an id, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		recs, err := a.svc.History(ctx, args[0])
		if errors.Is(err, service.ErrNotFound) && !jsonOutput() {
			fmt.Printf("No history found for ID: %s\n", args[0])
			return nil
		}
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(recs)
		}
		return printRecordTable(recs)
	}),
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every record in append order",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		recs, err := a.svc.List(ctx)
		if err != nil {
			return err
		}
		if jsonOutput() {
			if recs == nil {
				recs = []ledger.Record{}
			}
			return printJSON(recs)
		}
		if len(recs) == 0 {
			fmt.Println("Ledger is empty")
			return nil
		}
		return printRecordTable(recs)
	}),
}

func printRecord(rec ledger.Record) {
	fmt.Printf("ID:        %s\n", rec.ID)
	fmt.Printf("Data:      %s\n", rec.Data)
	fmt.Printf("Timestamp: %s\n", formatTimestamp(rec.Timestamp))
	fmt.Printf("PrevHash:  %s\n", rec.PrevHash)
	fmt.Printf("Hash:      %s\n", rec.Hash)
}

func printRecordTable(recs []ledger.Record) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tHASH\tDATA")
	for _, r := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, formatTimestamp(r.Timestamp), shortHash(r.Hash), r.Data)
	}
	return w.Flush()
}

func formatTimestamp(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

func shortHash(h string) string {
	if len(h) <= 16 {
		return h
	}
	return h[:16]
}

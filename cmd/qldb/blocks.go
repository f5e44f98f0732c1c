package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/jmerrifield20/qldb/internal/ledger"
	"github.com/jmerrifield20/qldb/internal/service"
	"github.com/spf13/cobra"
)

var buildBlockCmd = &cobra.Command{
	Use:   "build-block",
	Short: "Seal the next window of unsealed records into a block",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		blk, err := a.svc.SealBlock(ctx)
		if errors.Is(err, service.ErrInsufficientRecords) && !jsonOutput() {
			fmt.Printf("At least %d unsealed entries are required\n", a.svc.BlockSize())
			return nil
		}
		if err != nil {
			return err
		}
		if jsonOutput() {
			return printJSON(blk)
		}
		fmt.Printf("Block created with Merkle Root: %s\n", blk.MerkleRoot)
		return nil
	}),
}

var listBlocksCmd = &cobra.Command{
	Use:   "list-blocks",
	Short: "List sealed blocks",
	Args:  cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		blocks, err := a.svc.Blocks(ctx)
		if err != nil {
			return err
		}
		if jsonOutput() {
			if blocks == nil {
				blocks = []ledger.Block{}
			}
			return printJSON(blocks)
		}
		if len(blocks) == 0 {
			fmt.Println("No blocks found")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "BLOCK\tTIMESTAMP\tENTRIES\tMERKLE ROOT")
		for i, b := range blocks {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", i, formatTimestamp(b.Timestamp), len(b.Entries), b.MerkleRoot)
		}
		return w.Flush()
	}),
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the hash chain and every sealed block",
	Long: `verify recomputes every record hash, checks each record's link to its
predecessor and rebuilds the Merkle root of every sealed block. It exits
non-zero when any check fails.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(ctx context.Context, a *app, _ []string) error {
		chain, err := a.svc.VerifyChain(ctx)
		if err != nil {
			return err
		}
		blocks, err := a.svc.VerifyBlocks(ctx)
		if err != nil {
			return err
		}

		if jsonOutput() {
			if err := printJSON(map[string]any{
				"valid":  chain.Valid && blocks.Valid,
				"chain":  chain,
				"blocks": blocks,
			}); err != nil {
				return err
			}
		} else {
			printReport("Chain", "records", chain)
			printReport("Blocks", "blocks", blocks)
		}
		if !chain.Valid || !blocks.Valid {
			return ledger.ErrIntegrity
		}
		return nil
	}),
}

func printReport(label, unit string, r service.Report) {
	if r.Valid {
		fmt.Printf("%s valid (%d %s checked)\n", label, r.Checked, unit)
		return
	}
	fmt.Printf("%s INVALID: %s\n", label, r.Error)
}

var proveCmd = &cobra.Command{
	Use:   "prove <block> <record-hash>",
	Short: "Print an inclusion proof for a record in a sealed block",
	Long: `prove prints the Merkle inclusion proof of a record hash in the given
block, together with the block's root. The proof can be checked later with
"qldb verify-proof" without access to the ledger.`,
	Args: cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 0 {
			return fmt.Errorf("invalid block index %q", args[0])
		}
		res, err := a.svc.Prove(ctx, n, args[1])
		if err != nil {
			return err
		}
		// Proofs are only useful as JSON.
		return printJSON(res)
	}),
}

var verifyProofCmd = &cobra.Command{
	Use:   "verify-proof <proof-file> [root]",
	Short: "Check an inclusion proof against a Merkle root",
	Long: `verify-proof reads a proof produced by "qldb prove" (or a bare
{"leaf_hash","path"} object) and checks it against root. When root is
omitted the merkle_root stored in the proof file is used. Use "-" to read
the proof from stdin. It needs no ledger and exits non-zero when the proof
does not verify.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := readInput(args[0])
		if err != nil {
			return err
		}
		proof, root, err := parseProofFile(raw)
		if err != nil {
			return err
		}
		if len(args) == 2 {
			root = args[1]
		}
		if root == "" {
			return errors.New("no merkle root given and none in the proof file")
		}

		valid := ledger.VerifyProof(proof, root)
		if jsonOutput() {
			if err := printJSON(map[string]bool{"valid": valid}); err != nil {
				return err
			}
		} else if valid {
			fmt.Println("Proof valid")
		} else {
			fmt.Println("Proof INVALID")
		}
		if !valid {
			return errors.New("proof does not verify")
		}
		return nil
	},
}

// parseProofFile accepts either a ProofResult or a bare MerkleProof.
func parseProofFile(raw []byte) (ledger.MerkleProof, string, error) {
	var res service.ProofResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return ledger.MerkleProof{}, "", fmt.Errorf("decode proof: %w", err)
	}
	if res.Proof.LeafHash != "" {
		return res.Proof, res.Root, nil
	}
	var bare ledger.MerkleProof
	if err := json.Unmarshal(raw, &bare); err != nil {
		return ledger.MerkleProof{}, "", fmt.Errorf("decode proof: %w", err)
	}
	if bare.LeafHash == "" {
		return ledger.MerkleProof{}, "", errors.New("decode proof: missing leaf_hash")
	}
	return bare, "", nil
}

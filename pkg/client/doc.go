// Package client is the Go SDK for a qldb server's HTTP API.
//
// Reads are public:
//
//	c, err := client.New("http://localhost:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rec, err := c.Get(ctx, "user-1")
//
// Writes need an admin token when the server has an admin secret. Give the
// client the secret and it exchanges it for a token on first use, refreshing
// the token shortly before it expires:
//
//	c, _ := client.New(base, client.WithAdminSecret(os.Getenv("QLDB_SERVER_ADMIN_SECRET")))
//	rec, err := c.Add(ctx, "user-1", json.RawMessage(`{"balance":10}`))
//
// # Inclusion proofs
//
// Prove fetches a record's Merkle proof from a sealed block. The proof can
// be checked offline against a root the caller already trusts:
//
//	res, _ := c.Prove(ctx, 0, rec.Hash)
//	ok := client.VerifyProofLocal(res.Proof, trustedRoot)
package client

package ledger_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"testing/quick"

	"github.com/jmerrifield20/qldb/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

func TestCanonicalJSON_sortsKeysAndKeepsNumbers(t *testing.T) {
	got, err := ledger.CanonicalJSON([]byte(`{"b": [1, 2.50, {"z": true, "a": null}], "a": "<x>"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<x>","b":[1,2.50,{"a":null,"z":true}]}`, string(got))
}

func TestCanonicalJSON_rejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"empty":    "",
		"blank":    "   ",
		"syntax":   `{"a":`,
		"trailing": `{"a":1} {"b":2}`,
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ledger.CanonicalJSON([]byte(in))
			assert.Error(t, err)
		})
	}

	_, err := ledger.CanonicalJSON(nil)
	assert.ErrorIs(t, err, ledger.ErrEmptyData)
}

func TestComputeHash_preimageLayout(t *testing.T) {
	h, err := ledger.ComputeHash("a", json.RawMessage(`{"k":"v"}`), 1700000000, ledger.GenesisPrevHash)
	require.NoError(t, err)

	want := sha(`{"data":{"k":"v"},"id":"a","prevhash":"0","timestamp":1700000000}`)
	assert.Equal(t, want, h)
	assert.Len(t, h, 64)
}

func TestCanonicalJSON_lineSeparatorsStayRaw(t *testing.T) {
	got, err := ledger.CanonicalJSON([]byte(`{"t":"x\u2028y","u":"\u2029"}`))
	require.NoError(t, err)
	assert.Equal(t, "{\"t\":\"x\u2028y\",\"u\":\"\u2029\"}", string(got))

	// An escaped backslash followed by u2028 is literal text, not an escape.
	got, err = ledger.CanonicalJSON([]byte(`{"t":"x\\u2028y"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"t":"x\\u2028y"}`, string(got))
}

func TestComputeHash_lineSeparatorPinned(t *testing.T) {
	const want = "91f6e8c34c04a6d077fafecfa032f5d254125d54260e4678b9591bfec5678384"

	raw, err := ledger.ComputeHash("a", json.RawMessage("{\"t\":\"x\u2028y\"}"), 1700000000, ledger.GenesisPrevHash)
	require.NoError(t, err)
	assert.Equal(t, want, raw)

	escaped, err := ledger.ComputeHash("a", json.RawMessage(`{"t":"x\u2028y"}`), 1700000000, ledger.GenesisPrevHash)
	require.NoError(t, err)
	assert.Equal(t, want, escaped)

	assert.Equal(t, sha("{\"data\":{\"t\":\"x\u2028y\"},\"id\":\"a\",\"prevhash\":\"0\",\"timestamp\":1700000000}"), raw)
}

func TestComputeHash_lineSeparatorInID(t *testing.T) {
	h, err := ledger.ComputeHash("a\u2029b", json.RawMessage(`1`), 5, "0")
	require.NoError(t, err)
	assert.Equal(t, sha("{\"data\":1,\"id\":\"a\u2029b\",\"prevhash\":\"0\",\"timestamp\":5}"), h)
}

func TestComputeHash_ignoresFormatting(t *testing.T) {
	a, err := ledger.ComputeHash("id", json.RawMessage(`{"x":1,"y":{"b":2,"a":1}}`), 10, "0")
	require.NoError(t, err)
	b, err := ledger.ComputeHash("id", json.RawMessage("{ \"y\": {\"a\":1, \"b\":2},\n \"x\": 1 }"), 10, "0")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestComputeHash_deterministic(t *testing.T) {
	f := func(id, prev, payload string, ts int64) bool {
		data, err := json.Marshal(map[string]string{"payload": payload})
		if err != nil {
			return false
		}
		h1, err1 := ledger.ComputeHash(id, data, ts, prev)
		h2, err2 := ledger.ComputeHash(id, data, ts, prev)
		return err1 == nil && err2 == nil && h1 == h2
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatalf("determinism property failed: %v", err)
	}
}

func TestComputeHash_sensitiveToEveryField(t *testing.T) {
	base := json.RawMessage(`{"amount":100,"meta":{"owner":"alice"}}`)
	ref, err := ledger.ComputeHash("acct-1", base, 1700000000, "abc")
	require.NoError(t, err)

	variants := map[string]func() (string, error){
		"id": func() (string, error) {
			return ledger.ComputeHash("acct-2", base, 1700000000, "abc")
		},
		"data value": func() (string, error) {
			return ledger.ComputeHash("acct-1", json.RawMessage(`{"amount":101,"meta":{"owner":"alice"}}`), 1700000000, "abc")
		},
		"nested data key": func() (string, error) {
			return ledger.ComputeHash("acct-1", json.RawMessage(`{"amount":100,"meta":{"owner":"bob"}}`), 1700000000, "abc")
		},
		"number literal": func() (string, error) {
			return ledger.ComputeHash("acct-1", json.RawMessage(`{"amount":100.0,"meta":{"owner":"alice"}}`), 1700000000, "abc")
		},
		"timestamp": func() (string, error) {
			return ledger.ComputeHash("acct-1", base, 1700000001, "abc")
		},
		"prevhash": func() (string, error) {
			return ledger.ComputeHash("acct-1", base, 1700000000, "abd")
		},
	}
	for name, fn := range variants {
		t.Run(name, func(t *testing.T) {
			h, err := fn()
			require.NoError(t, err)
			assert.NotEqual(t, ref, h)
		})
	}
}

func TestNewRecordAt_linksAndHashes(t *testing.T) {
	first, err := ledger.NewRecordAt("a", json.RawMessage(`{"n": 1}`), ledger.GenesisPrevHash, 100)
	require.NoError(t, err)
	assert.Equal(t, "0", first.PrevHash)
	assert.Equal(t, `{"n":1}`, string(first.Data))

	second, err := ledger.NewRecordAt("b", json.RawMessage(`{"n":2}`), first.Hash, 101)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.PrevHash)

	recomputed, err := second.ComputeHash()
	require.NoError(t, err)
	assert.Equal(t, second.Hash, recomputed)
}

func TestNewRecord_invalidData(t *testing.T) {
	_, err := ledger.NewRecord("a", json.RawMessage(`not json`), ledger.GenesisPrevHash)
	assert.Error(t, err)
}

func TestRecord_jsonKeys(t *testing.T) {
	r, err := ledger.NewRecordAt("a", json.RawMessage(`{"k":"v"}`), "0", 5)
	require.NoError(t, err)

	b, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.ElementsMatch(t, []string{"id", "data", "timestamp", "prevhash", "hash"}, keys(m))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

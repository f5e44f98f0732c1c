package ledger_test

import (
	"testing"

	"github.com/jmerrifield20/qldb/internal/ledger"
	"github.com/stretchr/testify/assert"
)

// Fixed roots over the leaves sha256("a"), sha256("b"), ... so other
// implementations can check their trees against the same values.
const (
	rootAB    = "62af5c3cb8da3e4f25061e829ebeea5c7513c54949115b1acc225930a90154da"
	rootABC   = "0bdf27bf7ec894ca7cadfe491ec1a3ece840f117989e8c5e9bd7086467bf6c38"
	rootABCDE = "3615e586768e706351e326736e446554c49123d0e24c169d3ecf9b791a82636b"
)

func leaves(names ...string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = sha(n)
	}
	return out
}

func TestBuildRoot_empty(t *testing.T) {
	assert.Equal(t, ledger.EmptyRoot, ledger.BuildRoot(nil))
	assert.Equal(t, ledger.EmptyRoot, ledger.BuildRoot([]string{}))
}

func TestBuildRoot_singleLeafIsRoot(t *testing.T) {
	l := leaves("a")
	assert.Equal(t, l[0], ledger.BuildRoot(l))
}

func TestBuildRoot_twoLeaves(t *testing.T) {
	l := leaves("a", "b")
	assert.Equal(t, sha(l[0]+l[1]), ledger.BuildRoot(l))
	assert.Equal(t, rootAB, ledger.BuildRoot(l))
}

func TestBuildRoot_threeLeavesDuplicatesLast(t *testing.T) {
	l := leaves("a", "b", "c")
	a, b, c := l[0], l[1], l[2]

	want := sha(sha(a+b) + sha(c+c))
	assert.Equal(t, want, ledger.BuildRoot(l))
	assert.Equal(t, rootABC, want)
}

func TestBuildRoot_fiveLeavesPadsEveryOddLevel(t *testing.T) {
	l := leaves("a", "b", "c", "d", "e")
	a, b, c, d, e := l[0], l[1], l[2], l[3], l[4]

	// level 1: ab, cd, ee  -> odd, pad with ee
	ab, cd, ee := sha(a+b), sha(c+d), sha(e+e)
	// level 2: abcd, eeee
	abcd, eeee := sha(ab+cd), sha(ee+ee)
	want := sha(abcd + eeee)

	assert.Equal(t, want, ledger.BuildRoot(l))
	assert.Equal(t, rootABCDE, want)
}

func TestBuildRoot_orderSensitive(t *testing.T) {
	l := leaves("a", "b", "c", "d")
	swapped := []string{l[1], l[0], l[2], l[3]}
	assert.NotEqual(t, ledger.BuildRoot(l), ledger.BuildRoot(swapped))

	same := leaves("x", "x")
	assert.Equal(t, ledger.BuildRoot(same), ledger.BuildRoot([]string{same[1], same[0]}))
}

func TestBuildRoot_doesNotMutateInput(t *testing.T) {
	l := make([]string, 3, 8)
	copy(l, leaves("a", "b", "c"))
	before := append([]string(nil), l...)

	ledger.BuildRoot(l)
	assert.Equal(t, before, l)
	assert.Empty(t, l[:4][3], "padding must not leak into caller's backing array")
}

func TestBuildRoot_deterministic(t *testing.T) {
	l := leaves("1", "2", "3", "4", "5", "6", "7")
	assert.Equal(t, ledger.BuildRoot(l), ledger.BuildRoot(l))
}

func TestComputeMerkleRoot_usesRecordHashes(t *testing.T) {
	recs := chain(t, 3)
	want := ledger.BuildRoot([]string{recs[0].Hash, recs[1].Hash, recs[2].Hash})
	assert.Equal(t, want, ledger.ComputeMerkleRoot(recs))
}

package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	watched  = "0xAbC0000000000000000000000000000000000001"
	stranger = "0x9990000000000000000000000000000000000009"
	other    = "0x7770000000000000000000000000000000000007"
)

func TestRecent_ReturnsMatchesInDescendingBlockOrder(t *testing.T) {
	chain := newMockChain()
	chain.head = 100

	// Three blocks in the window touch the watched address; the rest only
	// carry unrelated transfers.
	for n := uint64(91); n <= 100; n++ {
		chain.blocks[n] = &Block{
			Number:       n,
			Transactions: []RawTransaction{txTo(hashFor(n, 0), stranger, other, 1)},
		}
	}
	chain.blocks[98].Transactions = append(chain.blocks[98].Transactions, txTo(hashFor(98, 1), stranger, watched, 5))
	chain.blocks[95].Transactions = append(chain.blocks[95].Transactions, txTo(hashFor(95, 1), watched, other, 7))
	chain.blocks[91].Transactions = append(chain.blocks[91].Transactions, txTo(hashFor(91, 1), stranger, watched, 9))

	// Outside the window: must never be read.
	chain.blocks[90] = &Block{Number: 90, Transactions: []RawTransaction{txTo(hashFor(90, 0), stranger, watched, 1)}}

	f := NewFetcher(chain, DefaultRecentBlockWindow, nil, discardLogger())
	activity := f.Recent(context.Background(), watched)

	assert.Empty(t, activity.Warning)
	assert.Equal(t, uint64(100), activity.HeadBlock)
	require.Len(t, activity.Transactions, 3)
	assert.Equal(t, hashFor(98, 1), activity.Transactions[0].Hash)
	assert.Equal(t, uint64(98), activity.Transactions[0].BlockNumber)
	assert.Equal(t, hashFor(95, 1), activity.Transactions[1].Hash)
	assert.Equal(t, hashFor(91, 1), activity.Transactions[2].Hash)
}

func TestRecent_MatchesAddressCaseInsensitively(t *testing.T) {
	chain := newMockChain()
	chain.head = 5
	chain.blocks[5] = &Block{
		Number: 5,
		Transactions: []RawTransaction{
			txTo(hashFor(5, 0), "0xabc0000000000000000000000000000000000001", other, 1),
		},
	}

	f := NewFetcher(chain, 10, nil, discardLogger())
	activity := f.Recent(context.Background(), watched)

	require.Len(t, activity.Transactions, 1)
	assert.Equal(t, "0.000000000000000001", activity.Transactions[0].ValueEther)
	require.NotNil(t, activity.Transactions[0].BlockTimestamp)
}

func TestRecent_ContractCreationHasNilRecipient(t *testing.T) {
	chain := newMockChain()
	chain.head = 3
	chain.blocks[3] = &Block{
		Number: 3,
		Transactions: []RawTransaction{
			{Hash: hashFor(3, 0), From: watched, To: nil, Value: ether(0)},
		},
	}

	f := NewFetcher(chain, 10, nil, discardLogger())
	activity := f.Recent(context.Background(), watched)

	require.Len(t, activity.Transactions, 1)
	assert.Nil(t, activity.Transactions[0].To)
	assert.Equal(t, "0.0", activity.Transactions[0].ValueEther)
}

func TestRecent_SingleBlockErrorDegradesToEmpty(t *testing.T) {
	chain := newMockChain()
	chain.head = 50
	chain.blocks[50] = &Block{Number: 50, Transactions: []RawTransaction{txTo(hashFor(50, 0), stranger, watched, 1)}}
	chain.blockErrs[45] = errors.New("upstream timeout")

	f := NewFetcher(chain, 10, nil, discardLogger())
	activity := f.Recent(context.Background(), watched)

	assert.NotNil(t, activity.Transactions)
	assert.Empty(t, activity.Transactions)
	assert.Contains(t, activity.Warning, "block 45")
	assert.Contains(t, activity.Warning, "upstream timeout")
}

func TestRecent_HeadErrorDegradesToEmpty(t *testing.T) {
	chain := newMockChain()
	chain.headErr = errors.New("connection refused")

	f := NewFetcher(chain, 10, nil, discardLogger())
	activity := f.Recent(context.Background(), watched)

	assert.Empty(t, activity.Transactions)
	assert.Contains(t, activity.Warning, "connection refused")
}

func TestRecent_WindowClampedAtGenesis(t *testing.T) {
	chain := newMockChain()
	chain.head = 2
	chain.blocks[0] = &Block{Number: 0, Transactions: []RawTransaction{txTo(hashFor(0, 0), stranger, watched, 1)}}
	chain.blocks[2] = &Block{Number: 2, Transactions: []RawTransaction{txTo(hashFor(2, 0), watched, other, 1)}}

	f := NewFetcher(chain, 10, nil, discardLogger())
	activity := f.Recent(context.Background(), watched)

	assert.Empty(t, activity.Warning)
	require.Len(t, activity.Transactions, 2)
	assert.Equal(t, uint64(2), activity.Transactions[0].BlockNumber)
	assert.Equal(t, uint64(0), activity.Transactions[1].BlockNumber)
}

func TestRecent_CustomWindow(t *testing.T) {
	chain := newMockChain()
	chain.head = 20
	chain.blocks[18] = &Block{Number: 18, Transactions: []RawTransaction{txTo(hashFor(18, 0), stranger, watched, 1)}}
	chain.blocks[17] = &Block{Number: 17, Transactions: []RawTransaction{txTo(hashFor(17, 0), stranger, watched, 1)}}

	f := NewFetcher(chain, 3, nil, discardLogger())
	activity := f.Recent(context.Background(), watched)

	require.Len(t, activity.Transactions, 1)
	assert.Equal(t, uint64(18), activity.Transactions[0].BlockNumber)
}

func TestNewFetcher_DefaultsWindow(t *testing.T) {
	f := NewFetcher(newMockChain(), 0, nil, discardLogger())
	assert.Equal(t, DefaultRecentBlockWindow, f.window)
}

package adapters

import (
	"context"
	"fmt"
	nethttp "net/http"
	"testing"
	"time"

	"github.com/attestantio/go-eth2-client/api"
	apiv1 "github.com/attestantio/go-eth2-client/api/v1"
	"github.com/attestantio/go-eth2-client/spec/phase0"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
)

const testGenesis = 1_606_824_023

type fakeBeaconNode struct {
	head    phase0.Slot
	headers map[phase0.Slot]*apiv1.BeaconBlockHeader
}

func root(b byte) phase0.Root { return phase0.Root{b} }

// chain builds blocks at the given slots, each pointing at the previous one.
func chain(slots ...phase0.Slot) *fakeBeaconNode {
	n := &fakeBeaconNode{headers: make(map[phase0.Slot]*apiv1.BeaconBlockHeader)}
	parent := root(0xff)
	for _, s := range slots {
		r := root(byte(s))
		n.headers[s] = &apiv1.BeaconBlockHeader{
			Root:      r,
			Canonical: true,
			Header: &phase0.SignedBeaconBlockHeader{Message: &phase0.BeaconBlockHeader{
				Slot:       s,
				ParentRoot: parent,
				StateRoot:  phase0.Root{0xaa, byte(s)},
			}},
		}
		parent = r
		n.head = s
	}
	return n
}

func (n *fakeBeaconNode) BeaconBlockHeader(ctx context.Context, opts *api.BeaconBlockHeaderOpts) (*api.Response[*apiv1.BeaconBlockHeader], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	slot := n.head
	if opts.Block != "head" {
		var s uint64
		if _, err := fmt.Sscanf(opts.Block, "%d", &s); err != nil {
			return nil, &api.Error{StatusCode: nethttp.StatusBadRequest}
		}
		slot = phase0.Slot(s)
	}
	h, ok := n.headers[slot]
	if !ok {
		return nil, &api.Error{StatusCode: nethttp.StatusNotFound}
	}
	return &api.Response[*apiv1.BeaconBlockHeader]{Data: h}, nil
}

func (n *fakeBeaconNode) Genesis(context.Context, *api.GenesisOpts) (*api.Response[*apiv1.Genesis], error) {
	return &api.Response[*apiv1.Genesis]{Data: &apiv1.Genesis{GenesisTime: time.Unix(testGenesis, 0)}}, nil
}

func TestBeaconAdapterProvableHeader(t *testing.T) {
	ctx := context.Background()
	node := chain(10, 11, 14, 15)
	b := newBeaconHTTPAdapter(node, 12)

	head, err := b.GetHeadSlot(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Slot(15), head)

	got, err := b.GetProvableHeader(ctx, "10")
	require.NoError(t, err)
	assert.Equal(t, domain.Slot(10), got.Header.Slot)
	assert.Equal(t, common.Hash{0xaa, 10}, got.Header.StateRoot)
	assert.Equal(t, uint64(testGenesis+11*12), got.RootsTimestamp)

	// slots 12 and 13 are missed
	got, err = b.GetProvableHeader(ctx, "11")
	require.NoError(t, err)
	assert.Equal(t, uint64(testGenesis+14*12), got.RootsTimestamp)

	_, err = b.GetProvableHeader(ctx, "head")
	assert.ErrorIs(t, err, ErrHeaderNotYetProvable)
	_, err = b.GetProvableHeader(ctx, "12")
	assert.ErrorIs(t, err, ErrBlockNotFound)

	node.headers[15].Header.Message.ParentRoot = root(0x01)
	_, err = b.GetProvableHeader(ctx, "14")
	assert.ErrorIs(t, err, ErrHeaderNotCanonical)
	assert.ErrorIs(t, err, ports.ErrNotCanonical)
}

func TestBeaconAdapterAsRootOracle(t *testing.T) {
	ctx := context.Background()
	node := chain(10, 11, 14)
	b := newBeaconHTTPAdapter(node, 12)

	r, err := b.GetBeaconBlockRoot(ctx, testGenesis+11*12)
	require.NoError(t, err)
	assert.Equal(t, common.Hash(root(10)), r)

	r, err = b.GetBeaconBlockRoot(ctx, testGenesis+14*12)
	require.NoError(t, err)
	assert.Equal(t, common.Hash(root(11)), r)

	for name, ts := range map[string]uint64{
		"before genesis": testGenesis - 12,
		"genesis":        testGenesis,
		"off boundary":   testGenesis + 11*12 + 1,
		"missed slot":    testGenesis + 12*12,
		"ahead of head":  testGenesis + 20*12,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := b.GetBeaconBlockRoot(ctx, ts)
			var notFound *domain.RootNotFoundError
			require.ErrorAs(t, err, &notFound)
			assert.Equal(t, ts, notFound.Timestamp)
		})
	}

	// slot 12 is the oldest one still in the ring
	b = newBeaconHTTPAdapter(chain(10, 11, 12, 11+HistoryBufferLength), 12)
	r, err = b.GetBeaconBlockRoot(ctx, testGenesis+12*12)
	require.NoError(t, err)
	assert.Equal(t, common.Hash(root(11)), r)
	_, err = b.GetBeaconBlockRoot(ctx, testGenesis+11*12)
	assert.ErrorIs(t, err, domain.ErrRootNotFound)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = b.GetBeaconBlockRoot(cancelled, testGenesis+12*12)
	assert.ErrorIs(t, err, context.Canceled)
}

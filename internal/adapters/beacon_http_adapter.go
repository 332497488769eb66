package adapters

import (
	"context"
	"fmt"
	nethttp "net/http"
	"sync"
	"time"

	eth2client "github.com/attestantio/go-eth2-client"
	"github.com/attestantio/go-eth2-client/api"
	eth2http "github.com/attestantio/go-eth2-client/http"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Marketen/exitbus-verifier/internal/application/domain"
	"github.com/Marketen/exitbus-verifier/internal/application/ports"
	"github.com/Marketen/exitbus-verifier/internal/logger"
)

var (
	ErrBlockNotFound        = fmt.Errorf("block %w", ports.ErrNotFound)
	ErrHeaderNotYetProvable = fmt.Errorf("next block %w, root not yet published", ports.ErrNotFound)
	ErrHeaderNotCanonical   = fmt.Errorf("%w: not an ancestor of the next block", ports.ErrNotCanonical)
)

// maxChildSearch bounds the run of missed slots scanned after a header.
const maxChildSearch = 64

var (
	_ ports.BeaconChainAdapter    = (*BeaconHTTPAdapter)(nil)
	_ ports.BeaconBlockRootOracle = (*BeaconHTTPAdapter)(nil)
)

// beaconClient is the subset of go-eth2-client the adapter uses.
type beaconClient interface {
	eth2client.BeaconBlockHeadersProvider
	eth2client.GenesisProvider
}

// BeaconHTTPAdapter implements ports.BeaconChainAdapter using go-eth2-client. It
// also serves as a root oracle by reading parent roots from the beacon node, for
// deployments without an execution node.
type BeaconHTTPAdapter struct {
	client         beaconClient
	secondsPerSlot uint64
	log            *logger.Logger

	mu      sync.Mutex
	genesis uint64
}

// NewBeaconHTTPAdapter is the constructor used from main.go.
func NewBeaconHTTPAdapter(endpoint string, secondsPerSlot uint64) (*BeaconHTTPAdapter, error) {
	customHTTPClient := &nethttp.Client{
		Timeout: 2000 * time.Second, // global upper bound; per-request timeout below
	}

	client, err := eth2http.New(
		context.Background(),
		eth2http.WithAddress(endpoint),
		eth2http.WithHTTPClient(customHTTPClient),
		// This is the per-request timeout used by go-eth2-client.
		eth2http.WithTimeout(20*time.Second),
		// Silence go-eth2-client logs unless they are warnings+.
		eth2http.WithLogLevel(zerolog.WarnLevel),
	)
	if err != nil {
		return nil, errors.Wrap(err, "connect beacon node")
	}

	return newBeaconHTTPAdapter(client.(*eth2http.Service), secondsPerSlot), nil
}

func newBeaconHTTPAdapter(client beaconClient, secondsPerSlot uint64) *BeaconHTTPAdapter {
	return &BeaconHTTPAdapter{
		client:         client,
		secondsPerSlot: secondsPerSlot,
		log:            logger.With("beacon"),
	}
}

func isNotFound(err error) bool {
	var apiErr *api.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == nethttp.StatusNotFound
}

func (b *BeaconHTTPAdapter) genesisTime(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.genesis != 0 {
		return b.genesis, nil
	}
	resp, err := b.client.Genesis(ctx, &api.GenesisOpts{})
	if err != nil {
		return 0, errors.Wrap(err, "fetch genesis")
	}
	b.genesis = uint64(resp.Data.GenesisTime.Unix())
	return b.genesis, nil
}

// header fetches the header at blockID along with its root.
func (b *BeaconHTTPAdapter) header(ctx context.Context, blockID string) (domain.BeaconBlockHeader, common.Hash, error) {
	resp, err := b.client.BeaconBlockHeader(ctx, &api.BeaconBlockHeaderOpts{Block: blockID})
	if err != nil {
		if isNotFound(err) {
			return domain.BeaconBlockHeader{}, common.Hash{}, errors.Wrapf(ErrBlockNotFound, "block %s", blockID)
		}
		return domain.BeaconBlockHeader{}, common.Hash{}, errors.Wrapf(err, "fetch header %s", blockID)
	}
	if resp == nil || resp.Data == nil || resp.Data.Header == nil || resp.Data.Header.Message == nil {
		return domain.BeaconBlockHeader{}, common.Hash{}, errors.Wrapf(ErrBlockNotFound, "block %s: empty response", blockID)
	}

	msg := resp.Data.Header.Message
	return domain.BeaconBlockHeader{
		Slot:          domain.Slot(msg.Slot),
		ProposerIndex: domain.ValidatorIndex(msg.ProposerIndex),
		ParentRoot:    common.Hash(msg.ParentRoot),
		StateRoot:     common.Hash(msg.StateRoot),
		BodyRoot:      common.Hash(msg.BodyRoot),
	}, common.Hash(resp.Data.Root), nil
}

// GetHeadSlot returns the slot of the current head.
func (b *BeaconHTTPAdapter) GetHeadSlot(ctx context.Context) (domain.Slot, error) {
	h, _, err := b.header(ctx, "head")
	if err != nil {
		return 0, err
	}
	return h.Slot, nil
}

// GetProvableHeader returns the header at blockID and the timestamp of the first
// later block, whose execution payload publishes the header's root.
func (b *BeaconHTTPAdapter) GetProvableHeader(ctx context.Context, blockID string) (domain.ProvableBeaconBlockHeader, error) {
	h, root, err := b.header(ctx, blockID)
	if err != nil {
		return domain.ProvableBeaconBlockHeader{}, err
	}
	head, err := b.GetHeadSlot(ctx)
	if err != nil {
		return domain.ProvableBeaconBlockHeader{}, err
	}
	genesis, err := b.genesisTime(ctx)
	if err != nil {
		return domain.ProvableBeaconBlockHeader{}, err
	}

	for slot := h.Slot + 1; slot <= head && slot <= h.Slot+maxChildSearch; slot++ {
		child, _, err := b.header(ctx, fmt.Sprintf("%d", slot))
		if errors.Is(err, ErrBlockNotFound) {
			b.log.Debug("Slot %d missed, looking further", slot)
			continue
		}
		if err != nil {
			return domain.ProvableBeaconBlockHeader{}, err
		}
		if child.ParentRoot != root {
			return domain.ProvableBeaconBlockHeader{}, errors.Wrapf(ErrHeaderNotCanonical, "slot %d", h.Slot)
		}
		return domain.ProvableBeaconBlockHeader{
			Header:         h,
			RootsTimestamp: genesis + uint64(slot)*b.secondsPerSlot,
		}, nil
	}
	return domain.ProvableBeaconBlockHeader{}, errors.Wrapf(ErrHeaderNotYetProvable, "slot %d, head %d", h.Slot, head)
}

// GetBeaconBlockRoot answers like the beacon roots contract would: the parent
// root of the block proposed at timestamp.
func (b *BeaconHTTPAdapter) GetBeaconBlockRoot(ctx context.Context, timestamp uint64) (common.Hash, error) {
	notFound := func(cause error) (common.Hash, error) {
		if ctx.Err() != nil {
			return common.Hash{}, ctx.Err()
		}
		return common.Hash{}, &domain.RootNotFoundError{Timestamp: timestamp, Cause: cause}
	}

	genesis, err := b.genesisTime(ctx)
	if err != nil {
		return notFound(err)
	}
	if timestamp <= genesis || (timestamp-genesis)%b.secondsPerSlot != 0 {
		return notFound(errors.New("timestamp is not a slot boundary after genesis"))
	}
	slot := domain.Slot((timestamp - genesis) / b.secondsPerSlot)

	head, err := b.GetHeadSlot(ctx)
	if err != nil {
		return notFound(err)
	}
	if slot > head || head-slot >= HistoryBufferLength {
		return notFound(errors.Errorf("slot %d outside history window of head %d", slot, head))
	}

	h, _, err := b.header(ctx, fmt.Sprintf("%d", slot))
	if err != nil {
		return notFound(err)
	}
	return h.ParentRoot, nil
}

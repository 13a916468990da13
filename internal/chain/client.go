package chain

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

const (
	orderFilledABIJSON = `[{"anonymous":false,"inputs":[{"indexed":true,"internalType":"bytes32","name":"orderHash","type":"bytes32"},{"indexed":true,"internalType":"address","name":"maker","type":"address"},{"indexed":true,"internalType":"address","name":"taker","type":"address"},{"indexed":false,"internalType":"uint256","name":"makerAssetId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"takerAssetId","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"makerAmountFilled","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"takerAmountFilled","type":"uint256"},{"indexed":false,"internalType":"uint256","name":"fee","type":"uint256"}],"name":"OrderFilled","type":"event"}]`
)

var (
	orderFilledABI   abi.ABI
	orderFilledTopic common.Hash
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(orderFilledABIJSON))
	if err != nil {
		panic("failed to parse OrderFilled ABI: " + err.Error())
	}
	orderFilledABI = parsed
	orderFilledTopic = parsed.Events["OrderFilled"].ID
}

// FillEvent is a decoded OrderFilled log from the exchange contract.
type FillEvent struct {
	OrderHash         common.Hash
	Maker             common.Address
	Taker             common.Address
	MakerAssetID      *big.Int
	TakerAssetID      *big.Int
	MakerAmountFilled *big.Int
	TakerAmountFilled *big.Int
	Fee               *big.Int
	BlockNumber       uint64
}

// Options parameterise the chain client.
type Options struct {
	RPCURL          string
	ExchangeAddress string
	Timeout         time.Duration
}

// Client provides read-only access to the exchange chain via Ethereum RPC.
type Client struct {
	opts      Options
	logger    zerolog.Logger
	exchange  common.Address
	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewClient builds a chain client. The RPC connection is dialed lazily.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	return &Client{
		opts:     opts,
		logger:   logger.With().Str("component", "chain_client").Logger(),
		exchange: common.HexToAddress(opts.ExchangeAddress),
	}
}

// CurrentHeight returns the latest block number.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}
	return client.BlockNumber(ctx)
}

// BalanceAt returns the native balance of addr at the given height.
func (c *Client) BalanceAt(ctx context.Context, addr common.Address, height uint64) (*big.Int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}
	return client.BalanceAt(ctx, addr, new(big.Int).SetUint64(height))
}

// TransactionCount returns the latest nonce of addr.
func (c *Client) TransactionCount(ctx context.Context, addr common.Address) (uint64, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return 0, err
	}
	return client.NonceAt(ctx, addr, nil)
}

// BlockTimestamp resolves the timestamp of the block at height.
func (c *Client) BlockTimestamp(ctx context.Context, height uint64) (time.Time, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return time.Time{}, err
	}

	header, err := client.HeaderByNumber(ctx, new(big.Int).SetUint64(height))
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

// FillsInRange fetches OrderFilled events for [from, to]. The caller is
// responsible for keeping the range within the provider limit. Malformed
// logs are skipped, not fatal.
func (c *Client) FillsInRange(ctx context.Context, from, to uint64) ([]FillEvent, error) {
	if c.opts.RPCURL == "" {
		return nil, errors.New("chain rpc url not configured")
	}
	if c.opts.ExchangeAddress == "" {
		return nil, errors.New("exchange contract address not configured")
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return nil, err
	}

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{c.exchange},
		Topics:    [][]common.Hash{{orderFilledTopic}},
	}

	logs, err := client.FilterLogs(ctx, query)
	if err != nil {
		return nil, err
	}

	events := make([]FillEvent, 0, len(logs))
	for _, lg := range logs {
		event, decodeErr := ParseFillLog(lg)
		if decodeErr != nil {
			c.logger.Warn().Err(decodeErr).
				Str("tx", lg.TxHash.Hex()).
				Uint64("block", lg.BlockNumber).
				Msg("skipping undecodable fill log")
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// ParseFillLog decodes a raw log into a FillEvent.
func ParseFillLog(lg types.Log) (FillEvent, error) {
	if len(lg.Topics) != 4 {
		return FillEvent{}, errors.New("unexpected topic count for OrderFilled log")
	}

	values, err := orderFilledABI.Unpack("OrderFilled", lg.Data)
	if err != nil {
		return FillEvent{}, err
	}
	if len(values) != 5 {
		return FillEvent{}, errors.New("unexpected field count in OrderFilled data")
	}

	fields := make([]*big.Int, 5)
	for i, v := range values {
		n, ok := v.(*big.Int)
		if !ok {
			return FillEvent{}, errors.New("unexpected field type in OrderFilled data")
		}
		fields[i] = n
	}

	return FillEvent{
		OrderHash:         lg.Topics[1],
		Maker:             common.BytesToAddress(lg.Topics[2].Bytes()),
		Taker:             common.BytesToAddress(lg.Topics[3].Bytes()),
		MakerAssetID:      fields[0],
		TakerAssetID:      fields[1],
		MakerAmountFilled: fields[2],
		TakerAmountFilled: fields[3],
		Fee:               fields[4],
		BlockNumber:       lg.BlockNumber,
	}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := c.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (c *Client) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.opts.RPCURL == "" {
		return nil, errors.New("chain rpc url not configured")
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

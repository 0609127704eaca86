package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	aggregatorABIJSON = `[
{"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
{"inputs":[],"name":"latestRoundData","outputs":[{"internalType":"uint80","name":"roundId","type":"uint80"},{"internalType":"int256","name":"answer","type":"int256"},{"internalType":"uint256","name":"startedAt","type":"uint256"},{"internalType":"uint256","name":"updatedAt","type":"uint256"},{"internalType":"uint80","name":"answeredInRound","type":"uint80"}],"stateMutability":"view","type":"function"}
]`
)

var (
	aggregatorABI abi.ABI
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABIJSON))
	if err != nil {
		panic("failed to parse aggregator ABI: " + err.Error())
	}
	aggregatorABI = parsed
}

// ChainlinkOptions parameterise the on-chain fetcher.
type ChainlinkOptions struct {
	RPCURL  string
	Feeds   map[string]string
	Timeout time.Duration
}

// Chainlink reads USD prices from Chainlink aggregator contracts.
type Chainlink struct {
	opts      ChainlinkOptions
	logger    zerolog.Logger
	client    *ethclient.Client
	clientMux sync.Mutex

	decimalsMux sync.Mutex
	decimals    map[common.Address]uint8
}

// NewChainlink builds a new Chainlink price fetcher.
func NewChainlink(opts ChainlinkOptions, logger zerolog.Logger) *Chainlink {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Chainlink{
		opts:     opts,
		logger:   logger.With().Str("component", "chainlink_fetcher").Logger(),
		decimals: make(map[common.Address]uint8),
	}
}

// GetPrice reads latestRoundData for the token's feed.
func (c *Chainlink) GetPrice(ctx context.Context, token string) (Quote, error) {
	if c.opts.RPCURL == "" {
		return Quote{}, &FetchError{Token: token, Message: "ethereum rpc url not configured"}
	}
	feed, ok := c.opts.Feeds[token]
	if !ok || !common.IsHexAddress(feed) {
		return Quote{}, &FetchError{Token: token, Message: "no chainlink feed configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	client, err := c.getClient(ctx)
	if err != nil {
		return Quote{}, &FetchError{Token: token, Message: "dial rpc", Err: err}
	}

	addr := common.HexToAddress(feed)
	places, err := c.feedDecimals(ctx, client, addr)
	if err != nil {
		return Quote{}, &FetchError{Token: token, Message: "read decimals", Err: err}
	}

	outputs, err := c.call(ctx, client, addr, "latestRoundData")
	if err != nil {
		return Quote{}, &FetchError{Token: token, Message: "read latestRoundData", Err: err}
	}
	if len(outputs) != 5 {
		return Quote{}, &FetchError{Token: token, Message: "unexpected latestRoundData response"}
	}

	answer, ok := outputs[1].(*big.Int)
	if !ok {
		return Quote{}, &FetchError{Token: token, Message: "failed to decode answer"}
	}
	updatedAt, ok := outputs[3].(*big.Int)
	if !ok {
		return Quote{}, &FetchError{Token: token, Message: "failed to decode updatedAt"}
	}
	if answer.Sign() <= 0 {
		return Quote{}, &FetchError{Token: token, Message: fmt.Sprintf("non-positive answer %s", answer.String())}
	}

	price := decimal.NewFromBigInt(answer, -int32(places))
	return Quote{Token: token, Price: price, Timestamp: time.Unix(updatedAt.Int64(), 0).UTC()}, nil
}

// GetPrices fetches every token concurrently; failures are reported per token.
func (c *Chainlink) GetPrices(ctx context.Context, tokens []string) []Result {
	return fetchAll(ctx, tokens, c.opts.Timeout, c.GetPrice)
}

func (c *Chainlink) feedDecimals(ctx context.Context, client *ethclient.Client, addr common.Address) (uint8, error) {
	c.decimalsMux.Lock()
	places, ok := c.decimals[addr]
	c.decimalsMux.Unlock()
	if ok {
		return places, nil
	}

	outputs, err := c.call(ctx, client, addr, "decimals")
	if err != nil {
		return 0, err
	}
	if len(outputs) != 1 {
		return 0, errors.New("unexpected decimals response")
	}
	places, ok = outputs[0].(uint8)
	if !ok {
		return 0, errors.New("failed to decode decimals output")
	}

	c.decimalsMux.Lock()
	c.decimals[addr] = places
	c.decimalsMux.Unlock()
	return places, nil
}

func (c *Chainlink) call(ctx context.Context, client *ethclient.Client, addr common.Address, method string) ([]interface{}, error) {
	payload, err := aggregatorABI.Pack(method)
	if err != nil {
		return nil, err
	}
	res, err := client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: payload}, nil)
	if err != nil {
		return nil, err
	}
	return aggregatorABI.Unpack(method, res)
}

func (c *Chainlink) getClient(ctx context.Context) (*ethclient.Client, error) {
	c.clientMux.Lock()
	defer c.clientMux.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	client, err := ethclient.DialContext(ctx, c.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	c.client = client
	return client, nil
}

var _ PriceFetcher = (*Chainlink)(nil)

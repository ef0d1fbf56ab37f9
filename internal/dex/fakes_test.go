package dex

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"pairScope/internal/model"
)

var errNoResponse = errors.New("execution reverted")

// fakeCaller answers eth_call by contract address and method name.
type fakeCaller struct {
	responses map[common.Address]map[string][]byte
	pairs     map[string]common.Address
	created   map[string]uint64
	calls     int
	lastBlock *big.Int
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		responses: make(map[common.Address]map[string][]byte),
		pairs:     make(map[string]common.Address),
		created:   make(map[string]uint64),
	}
}

func (f *fakeCaller) set(t *testing.T, contract common.Address, parsed abi.ABI, method string, outputs ...interface{}) {
	t.Helper()
	data, err := parsed.Methods[method].Outputs.Pack(outputs...)
	if err != nil {
		t.Fatalf("pack %s: %v", method, err)
	}
	if f.responses[contract] == nil {
		f.responses[contract] = make(map[string][]byte)
	}
	f.responses[contract][method] = data
}

func (f *fakeCaller) setPair(tokenA, tokenB common.Address, stable bool, pair common.Address) {
	f.pairs[fmt.Sprintf("%s:%s:%t", tokenA.Hex(), tokenB.Hex(), stable)] = pair
}

// setPairCreated makes getPair return the zero address for blocks before
// block, as the factory does before createPair runs.
func (f *fakeCaller) setPairCreated(tokenA, tokenB common.Address, stable bool, pair common.Address, block uint64) {
	f.setPair(tokenA, tokenB, stable, pair)
	f.created[fmt.Sprintf("%s:%s:%t", tokenA.Hex(), tokenB.Hex(), stable)] = block
}

func (f *fakeCaller) CallContract(_ context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	f.calls++
	f.lastBlock = blockNumber
	if msg.To == nil || len(msg.Data) < 4 {
		return nil, errNoResponse
	}

	factoryABI, _ := FactoryABI()
	getPair := factoryABI.Methods["getPair"]
	if string(msg.Data[:4]) == string(getPair.ID) {
		args, err := getPair.Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%s:%s:%t", args[0].(common.Address).Hex(), args[1].(common.Address).Hex(), args[2].(bool))
		if created, ok := f.created[key]; ok && blockNumber != nil && blockNumber.Uint64() < created {
			return getPair.Outputs.Pack(common.Address{})
		}
		return getPair.Outputs.Pack(f.pairs[key])
	}

	name, ok := methodName(msg.Data[:4])
	if !ok {
		return nil, errNoResponse
	}
	data, ok := f.responses[*msg.To][name]
	if !ok {
		return nil, errNoResponse
	}
	return data, nil
}

func methodName(selector []byte) (string, bool) {
	pairABI, _ := PairABI()
	erc20ABI, _ := erc20ABIStringInstance()
	for _, parsed := range []abi.ABI{pairABI, erc20ABI} {
		if method, err := parsed.MethodById(selector); err == nil {
			return method.Name, true
		}
	}
	return "", false
}

func registerToken(t *testing.T, caller *fakeCaller, token common.Address, decimals uint8, symbol string) {
	t.Helper()
	erc20ABI, err := erc20ABIStringInstance()
	if err != nil {
		t.Fatalf("erc20 abi: %v", err)
	}
	caller.set(t, token, erc20ABI, "decimals", decimals)
	caller.set(t, token, erc20ABI, "symbol", symbol)
	caller.set(t, token, erc20ABI, "name", symbol+" token")
}

func registerPair(t *testing.T, caller *fakeCaller, pair, token0, token1 common.Address, stable bool) {
	t.Helper()
	pairABI, err := PairABI()
	if err != nil {
		t.Fatalf("pair abi: %v", err)
	}
	caller.set(t, pair, pairABI, "token0", token0)
	caller.set(t, pair, pairABI, "token1", token1)
	caller.set(t, pair, pairABI, "stable", stable)
}

func buildLogRecord(pair common.Address, topic0 common.Hash, data []byte, indexed []common.Hash) model.LogRecord {
	topics := make([]string, 0, len(indexed)+1)
	topics = append(topics, topic0.Hex())
	for _, topic := range indexed {
		topics = append(topics, topic.Hex())
	}

	return model.LogRecord{
		ChainID:     56,
		BlockNumber: 12345,
		BlockHash:   "0xabc",
		TxHash:      "0xdef",
		LogIndex:    1,
		Address:     pair.Hex(),
		Topics:      topics,
		Data:        hexutil.Encode(data),
		Timestamp:   1700000000,
	}
}

func topicFromAddress(addr common.Address) common.Hash {
	return common.BytesToHash(addr.Bytes())
}

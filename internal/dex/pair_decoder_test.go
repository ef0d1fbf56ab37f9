package dex

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"pairScope/internal/model"
)

var (
	testPair   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testToken0 = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	testToken1 = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
)

func cachedContext() DecodeContext {
	cache := NewPairMetaCache()
	cache.Set(testPair, model.PairMeta{
		Token0:    model.AddressKey(testToken0),
		Token1:    model.AddressKey(testToken1),
		Stable:    true,
		Decimals0: 18,
		Decimals1: 6,
	})
	return DecodeContext{PairMetaCache: cache, Logger: zap.NewNop()}
}

func TestPairDecoderSwap(t *testing.T) {
	pairABI, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewPairDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	sender := common.HexToAddress("0x2222222222222222222222222222222222222222")
	to := common.HexToAddress("0x3333333333333333333333333333333333333333")

	data, err := pairABI.Events["Swap"].Inputs.NonIndexed().Pack(
		big.NewInt(1000),
		big.NewInt(0),
		big.NewInt(0),
		big.NewInt(1990),
	)
	if err != nil {
		t.Fatalf("pack swap: %v", err)
	}

	logRecord := buildLogRecord(testPair, pairABI.Events["Swap"].ID, data, []common.Hash{
		topicFromAddress(sender),
		topicFromAddress(to),
	})

	if !decoder.CanDecode(logRecord.Topics[0]) {
		t.Fatalf("expected swap topic to be decodable")
	}

	event, err := decoder.Decode(logRecord, cachedContext())
	if err != nil {
		t.Fatalf("decode swap: %v", err)
	}

	swap, ok := event.Decoded.(model.SwapEventData)
	if !ok {
		t.Fatalf("decoded type mismatch")
	}
	if swap.Amount0In != "1000" || swap.Amount1In != "0" || swap.Amount0Out != "0" || swap.Amount1Out != "1990" {
		t.Fatalf("amounts mismatch: %+v", swap)
	}
	if swap.Sender != sender.Hex() || swap.To != to.Hex() {
		t.Fatalf("address mismatch: %+v", swap)
	}
	if !event.Pair.Stable || event.Pair.Decimals1 != 6 {
		t.Fatalf("pair meta mismatch: %+v", event.Pair)
	}
	if event.EventName != model.EventSwap || event.Raw == nil {
		t.Fatalf("event envelope mismatch: %+v", event)
	}
}

func TestPairDecoderSyncMintBurn(t *testing.T) {
	pairABI, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}

	decoder, err := NewPairDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	ctx := cachedContext()

	sender := common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	to := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")

	syncData, err := pairABI.Events["Sync"].Inputs.NonIndexed().Pack(big.NewInt(5000), big.NewInt(7000))
	if err != nil {
		t.Fatalf("pack sync: %v", err)
	}
	syncEvent, err := decoder.Decode(buildLogRecord(testPair, pairABI.Events["Sync"].ID, syncData, nil), ctx)
	if err != nil {
		t.Fatalf("decode sync: %v", err)
	}
	sync, ok := syncEvent.Decoded.(model.SyncEventData)
	if !ok {
		t.Fatalf("sync type mismatch")
	}
	if sync.Reserve0 != "5000" || sync.Reserve1 != "7000" {
		t.Fatalf("sync reserves mismatch: %+v", sync)
	}

	v2Topic := crypto.Keccak256Hash([]byte("Sync(uint112,uint112)"))
	v2Event, err := decoder.Decode(buildLogRecord(testPair, v2Topic, syncData, nil), ctx)
	if err != nil {
		t.Fatalf("decode v2 sync: %v", err)
	}
	if v2Event.EventName != model.EventSync {
		t.Fatalf("v2 sync name mismatch: %s", v2Event.EventName)
	}

	mintData, err := pairABI.Events["Mint"].Inputs.NonIndexed().Pack(big.NewInt(100), big.NewInt(200))
	if err != nil {
		t.Fatalf("pack mint: %v", err)
	}
	mintEvent, err := decoder.Decode(buildLogRecord(testPair, pairABI.Events["Mint"].ID, mintData, []common.Hash{
		topicFromAddress(sender),
	}), ctx)
	if err != nil {
		t.Fatalf("decode mint: %v", err)
	}
	mint, ok := mintEvent.Decoded.(model.MintEventData)
	if !ok {
		t.Fatalf("mint type mismatch")
	}
	if mint.Sender != sender.Hex() || mint.Amount0 != "100" || mint.Amount1 != "200" {
		t.Fatalf("mint mismatch: %+v", mint)
	}

	burnData, err := pairABI.Events["Burn"].Inputs.NonIndexed().Pack(big.NewInt(300), big.NewInt(400))
	if err != nil {
		t.Fatalf("pack burn: %v", err)
	}
	burnEvent, err := decoder.Decode(buildLogRecord(testPair, pairABI.Events["Burn"].ID, burnData, []common.Hash{
		topicFromAddress(sender),
		topicFromAddress(to),
	}), ctx)
	if err != nil {
		t.Fatalf("decode burn: %v", err)
	}
	burn, ok := burnEvent.Decoded.(model.BurnEventData)
	if !ok {
		t.Fatalf("burn type mismatch")
	}
	if burn.To != to.Hex() || burn.Amount0 != "300" || burn.Amount1 != "400" {
		t.Fatalf("burn mismatch: %+v", burn)
	}
}

func TestPairDecoderRejectsBadInput(t *testing.T) {
	pairABI, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewPairDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	swapMissingTopic := buildLogRecord(testPair, pairABI.Events["Swap"].ID, nil, nil)
	if _, err := decoder.Decode(swapMissingTopic, cachedContext()); err == nil {
		t.Fatalf("expected error for missing indexed topics")
	}

	if decoder.CanDecode("0x1234") {
		t.Fatalf("unexpected decodable topic")
	}

	syncData, _ := pairABI.Events["Sync"].Inputs.NonIndexed().Pack(big.NewInt(1), big.NewInt(2))
	unknownPair := buildLogRecord(common.HexToAddress("0x4444444444444444444444444444444444444444"), pairABI.Events["Sync"].ID, syncData, nil)
	if _, err := decoder.Decode(unknownPair, cachedContext()); err == nil {
		t.Fatalf("expected error for unknown pair without chain client")
	}

	if _, err := NewPairDecoder(DecoderConfig{Topic0Map: map[string]string{"0x01": "collect"}}); err == nil {
		t.Fatalf("expected error for unsupported alias")
	}
}

func TestPairDecoderTopicAlias(t *testing.T) {
	alias := "0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000"
	decoder, err := NewPairDecoder(DecoderConfig{Topic0Map: map[string]string{alias: " SYNC "}})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}
	if !decoder.CanDecode(alias) {
		t.Fatalf("alias not registered")
	}
}

func TestPairDecoderFetchesMetaFromChain(t *testing.T) {
	pairABI, err := PairABI()
	if err != nil {
		t.Fatalf("abi parse: %v", err)
	}
	decoder, err := NewPairDecoder(DecoderConfig{})
	if err != nil {
		t.Fatalf("decoder: %v", err)
	}

	caller := newFakeCaller()
	registerPair(t, caller, testPair, testToken0, testToken1, false)
	registerToken(t, caller, testToken0, 18, "WBNB")
	registerToken(t, caller, testToken1, 6, "USDX")

	ctx := DecodeContext{
		Chain:          caller,
		PairMetaCache:  NewPairMetaCache(),
		TokenMetaCache: NewTokenMetaCache(),
		Logger:         zap.NewNop(),
	}

	syncData, _ := pairABI.Events["Sync"].Inputs.NonIndexed().Pack(big.NewInt(1), big.NewInt(2))
	record := buildLogRecord(testPair, pairABI.Events["Sync"].ID, syncData, nil)

	event, err := decoder.Decode(record, ctx)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.Pair.Token0 != model.AddressKey(testToken0) || event.Pair.Symbol1 != "USDX" || event.Pair.Decimals1 != 6 {
		t.Fatalf("pair meta mismatch: %+v", event.Pair)
	}

	calls := caller.calls
	if _, err := decoder.Decode(record, ctx); err != nil {
		t.Fatalf("decode again: %v", err)
	}
	if caller.calls != calls {
		t.Fatalf("expected cached pair meta, got %d extra calls", caller.calls-calls)
	}
}

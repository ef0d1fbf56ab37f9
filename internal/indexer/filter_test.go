package indexer

import (
	"reflect"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"pairScope/internal/dex"
)

func TestParsePairAddresses(t *testing.T) {
	got, err := ParsePairAddresses([]string{
		" 0x483653bcf3a10d9a1c334ce16a19471a614f4385",
		"",
		"0x483653BCF3A10D9A1C334CE16A19471A614F4385",
		"0x58f876857a02d6762e0101bb5c46a8c1ed44dc16",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []common.Address{
		common.HexToAddress("0x483653bcf3a10d9a1c334ce16a19471a614f4385"),
		common.HexToAddress("0x58f876857a02d6762e0101bb5c46a8c1ed44dc16"),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("pairs mismatch: %v != %v", got, want)
	}

	_, err = ParsePairAddresses([]string{"0x483653bcf3a10d9a1c334ce16a19471a614f4385", "nope"})
	if err == nil || !strings.Contains(err.Error(), `#2 "nope"`) {
		t.Fatalf("expected error naming the bad entry, got %v", err)
	}
}

func TestParsePairTopics(t *testing.T) {
	pairABI, err := dex.PairABI()
	if err != nil {
		t.Fatalf("pair abi: %v", err)
	}
	swap := pairABI.Events["Swap"].ID

	topics, err := ParsePairTopics([]string{"", "Sync", swap.Hex()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []common.Hash{pairABI.Events["Sync"].ID, swap}
	if !reflect.DeepEqual(topics, want) {
		t.Fatalf("topics mismatch: %v != %v", topics, want)
	}

	if _, err := ParsePairTopics([]string{"0x1234"}); err == nil || !strings.Contains(err.Error(), "2 bytes") {
		t.Fatalf("expected length error, got %v", err)
	}
	if _, err := ParsePairTopics([]string{"Transfer"}); err == nil {
		t.Fatalf("expected error for an event the pair does not emit")
	}
}

func TestDefaultTopicsCoverPairEvents(t *testing.T) {
	topics, err := defaultTopics()
	if err != nil {
		t.Fatalf("default topics: %v", err)
	}
	if len(topics) != 5 {
		t.Fatalf("expected Swap, Sync, Mint, Burn and the v2 Sync, got %d", len(topics))
	}
}

func TestBlockBatches(t *testing.T) {
	got, err := blockBatches(36000000, 36000004, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []blockRange{
		{From: 36000000, To: 36000001},
		{From: 36000002, To: 36000003},
		{From: 36000004, To: 36000004},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("batches mismatch: %+v != %+v", got, want)
	}

	got, err = blockBatches(7, 7, 500)
	if err != nil || !reflect.DeepEqual(got, []blockRange{{From: 7, To: 7}}) {
		t.Fatalf("single block: %+v err=%v", got, err)
	}

	got, err = blockBatches(0, ^uint64(0)-1, ^uint64(0)/2+1)
	if err != nil || len(got) != 2 || got[1].To != ^uint64(0)-1 {
		t.Fatalf("wide range: %+v err=%v", got, err)
	}

	if _, err := blockBatches(10, 9, 1); err == nil {
		t.Fatalf("expected error for reversed range")
	}
	if _, err := blockBatches(1, 10, 0); err == nil {
		t.Fatalf("expected error for zero batch size")
	}
}

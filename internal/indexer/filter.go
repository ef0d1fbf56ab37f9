package indexer

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"pairScope/internal/dex"
)

// ParsePairAddresses parses the pair contracts to watch. Blank entries are
// dropped and repeats collapse into one filter address.
func ParsePairAddresses(inputs []string) ([]common.Address, error) {
	seen := make(map[common.Address]struct{}, len(inputs))
	pairs := make([]common.Address, 0, len(inputs))
	for i, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if !common.IsHexAddress(input) {
			return nil, fmt.Errorf("pair address #%d %q is not a hex address", i+1, input)
		}
		addr := common.HexToAddress(input)
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}
		pairs = append(pairs, addr)
	}
	return pairs, nil
}

// ParsePairTopics parses topic0 filters. An entry is a 32-byte hash or the
// name of a pair event such as Swap or Sync.
func ParsePairTopics(inputs []string) ([]common.Hash, error) {
	pairABI, err := dex.PairABI()
	if err != nil {
		return nil, fmt.Errorf("pair abi: %w", err)
	}

	topics := make([]common.Hash, 0, len(inputs))
	for _, input := range inputs {
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if event, ok := pairABI.Events[input]; ok {
			topics = append(topics, event.ID)
			continue
		}
		data, err := hexutil.Decode(input)
		if err != nil {
			return nil, fmt.Errorf("topic0 %q is neither a pair event nor a hash: %w", input, err)
		}
		if len(data) != common.HashLength {
			return nil, fmt.Errorf("topic0 %q is %d bytes, want %d", input, len(data), common.HashLength)
		}
		topics = append(topics, common.BytesToHash(data))
	}
	return topics, nil
}

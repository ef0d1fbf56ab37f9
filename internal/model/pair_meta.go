package model

// PairMeta captures immutable pair metadata resolved at decode time.
type PairMeta struct {
	Token0    string `json:"token0"`
	Token1    string `json:"token1"`
	Stable    bool   `json:"stable"`
	Decimals0 uint8  `json:"decimals0"`
	Decimals1 uint8  `json:"decimals1"`
	Symbol0   string `json:"symbol0,omitempty"`
	Symbol1   string `json:"symbol1,omitempty"`
}

// Complete reports whether both token addresses are known.
func (m PairMeta) Complete() bool {
	return m.Token0 != "" && m.Token1 != ""
}

// TokenMeta captures ERC20 metadata.
type TokenMeta struct {
	Address  string `json:"address"`
	Decimals uint8  `json:"decimals"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
}

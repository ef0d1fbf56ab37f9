package model

// ReplayPosition is the last event applied by the price replay. Events are
// ordered by block and log index; the timestamp is kept for operators.
type ReplayPosition struct {
	Timestamp   uint64 `json:"last_processed_ts"`
	BlockNumber uint64 `json:"last_block"`
	LogIndex    uint64 `json:"last_log_index"`
}

// Covers reports whether the event at (block, logIndex) was already applied.
func (p ReplayPosition) Covers(block, logIndex uint64) bool {
	if block != p.BlockNumber {
		return block < p.BlockNumber
	}
	return logIndex <= p.LogIndex
}

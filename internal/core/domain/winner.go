package domain

// WinnerRecord is appended once per resolved round and never mutated.
type WinnerRecord struct {
	RoundSeq     uint64
	Winner       string
	PayoutAmount uint64
	RandomValue  uint64
	ResolvedAt   int64
}

package types

// CensusProof proves that Key is a member of the roster of Round committed
// to by Root.
type CensusProof struct {
	Round    RoundID  `json:"round"`
	Root     HexBytes `json:"root"`
	Key      HexBytes `json:"key"`
	Value    HexBytes `json:"value"`
	Siblings HexBytes `json:"siblings"`
}

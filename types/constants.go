package types

const (
	// NumDimensions is the number of rating dimensions.
	NumDimensions = 5
	// MinScore and MaxScore bound a plaintext rating score.
	MinScore = 1
	MaxScore = 10
	// WeightTotal is the sum the five plaintext weights are expected to add
	// up to, weights are percentages.
	WeightTotal = 100
	// CensusTreeMaxLevels is the maximum number of levels in a round roster
	// merkle tree.
	CensusTreeMaxLevels = 160
	// CensusKeyMaxLen is the maximum length of a roster key in bytes.
	CensusKeyMaxLen = CensusTreeMaxLevels / 8
)

package types

import "fmt"

// Dimension is one of the fixed rating dimensions.
type Dimension int

const (
	CodeQuality Dimension = iota
	Communication
	Contribution
	Collaboration
	Creativity
)

// Dimensions lists every dimension in its canonical order. Handles and
// plaintext vectors are always laid out in this order.
var Dimensions = [NumDimensions]Dimension{
	CodeQuality, Communication, Contribution, Collaboration, Creativity,
}

var dimensionNames = [NumDimensions]string{
	"codeQuality", "communication", "contribution", "collaboration", "creativity",
}

func (d Dimension) String() string {
	if d < 0 || int(d) >= NumDimensions {
		return fmt.Sprintf("dimension(%d)", int(d))
	}
	return dimensionNames[d]
}

// Scores is a plaintext rating, one score per dimension.
type Scores [NumDimensions]uint64

// Weights is a plaintext weight vector, one percentage per dimension.
type Weights [NumDimensions]uint64

// ValidateScores checks that every score lies in [MinScore, MaxScore]. The
// engine cannot inspect confidential values, so this runs on the client
// before encryption.
func ValidateScores(s Scores) error {
	for i, v := range s {
		if v < MinScore || v > MaxScore {
			return fmt.Errorf("score for %s out of range: %d", Dimension(i), v)
		}
	}
	return nil
}

// ValidateWeights checks that the weights add up to WeightTotal. Like
// ValidateScores it runs on the client before encryption.
func ValidateWeights(w Weights) error {
	var total uint64
	for _, v := range w {
		total += v
	}
	if total != WeightTotal {
		return fmt.Errorf("weights add up to %d, expected %d", total, WeightTotal)
	}
	return nil
}

package reliability

import "github.com/hdds-team/hdds-sub002/internal/hddserr"

// FragmentRange describes one fragment's slice of an original payload,
// as recomputed by RecomputeFragments (spec §4.4 "NACK_FRAG handling":
// "the writer replays the indicated fragments from history (recomputing
// fragmentation from the original payload using the agreed fragment
// size)").
type FragmentRange struct {
	FragmentNum uint32 // 1-based
	Start       int
	End         int // exclusive
}

// RecomputeFragments slices payload into fragments of fragmentSize bytes
// (the last fragment may be shorter) and returns only the ranges named
// in wantedFragNums, in ascending fragment-number order.
func RecomputeFragments(payload []byte, fragmentSize int, wantedFragNums []uint32) ([]FragmentRange, error) {
	if fragmentSize <= 0 {
		return nil, hddserr.Wrap(hddserr.Config, "reliability: fragment size must be positive, got %d", fragmentSize)
	}
	total := len(payload)
	numFragments := (total + fragmentSize - 1) / fragmentSize
	if numFragments == 0 {
		numFragments = 1
	}

	wanted := make(map[uint32]struct{}, len(wantedFragNums))
	for _, f := range wantedFragNums {
		wanted[f] = struct{}{}
	}

	out := make([]FragmentRange, 0, len(wantedFragNums))
	for i := 0; i < numFragments; i++ {
		fragNum := uint32(i + 1)
		if _, ok := wanted[fragNum]; !ok {
			continue
		}
		start := i * fragmentSize
		end := start + fragmentSize
		if end > total {
			end = total
		}
		out = append(out, FragmentRange{FragmentNum: fragNum, Start: start, End: end})
	}
	return out, nil
}

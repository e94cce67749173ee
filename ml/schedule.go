package ml

// Learning-rate tier boundaries, in absolute epochs.
const (
	firstDecayEpoch  = 20
	secondDecayEpoch = 40
)

// Schedule returns the learning rate for epoch. The tiers are keyed to the
// absolute epoch index, so a resumed run lands in the tier of its epoch
// number regardless of how many epochs it has trained itself.
func Schedule(epoch int, base float64) float64 {
	switch {
	case epoch < firstDecayEpoch:
		return base
	case epoch < secondDecayEpoch:
		return base / 10
	default:
		return base / 100
	}
}

package quota

import (
	"fmt"

	"github.com/agjmills/clientvault/internal/apperror"
)

// Band is a coarse usage level relative to a user's limit.
type Band int

const (
	BandNormal Band = iota // below 90%
	BandHigh               // 90% up to 100%
	BandFull               // 100% or more
)

func (b Band) String() string {
	switch b {
	case BandHigh:
		return "high"
	case BandFull:
		return "full"
	default:
		return "normal"
	}
}

// Classify places usage into a band. A limit of zero or less is unlimited
// and always normal.
func Classify(usedKB, limitKB int64) Band {
	if limitKB <= 0 {
		return BandNormal
	}
	switch {
	case usedKB >= limitKB:
		return BandFull
	case usedKB*100 >= limitKB*90:
		return BandHigh
	default:
		return BandNormal
	}
}

// Percent is usage as a whole percentage, capped at 100. Unlimited is 0.
func Percent(usedKB, limitKB int64) int {
	if limitKB <= 0 {
		return 0
	}
	p := usedKB * 100 / limitKB
	if p > 100 {
		p = 100
	}
	return int(p)
}

// Admit rejects a write of sizeKB when it would bring usage to or past the
// limit. Limits of zero or less never reject.
func Admit(usedKB, limitKB, sizeKB int64) error {
	if limitKB > 0 && sizeKB >= limitKB-usedKB {
		return apperror.QuotaExceeded(fmt.Sprintf(
			"storage limit reached: %d KB used of %d KB, upload needs %d KB", usedKB, limitKB, sizeKB))
	}
	return nil
}

package returns

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

// ParseQuantity converts a quantity typed by the user. Anything that is not
// a non-negative integer becomes 0; the upper cap is applied by the row.
func ParseQuantity(raw string) int {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 0)
	if errors.Is(err, strconv.ErrRange) && n > 0 {
		return math.MaxInt
	}
	if err != nil || n < 0 {
		return 0
	}
	return int(n)
}

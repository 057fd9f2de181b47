// Package format provides human-readable formatting for byte sizes.
package format

import (
	"fmt"
	"math"
	"strconv"
)

// sizeUnits are the base-1024 unit labels, smallest first.
var sizeUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

const sizeBase = 1024

// FileSize returns a human-readable base-1024 size string with up to
// two decimal places, trailing zeros trimmed (e.g. "1.5 KB", "2.25 MB").
// Zero is rendered as "0 Bytes".
func FileSize(bytes int64) string {
	if bytes == 0 {
		return "0 Bytes"
	}

	exp := int(math.Floor(math.Log(float64(bytes)) / math.Log(sizeBase)))
	if exp < 0 {
		exp = 0
	}

	if exp >= len(sizeUnits) {
		exp = len(sizeUnits) - 1
	}

	value := float64(bytes) / math.Pow(sizeBase, float64(exp))
	rounded := math.Round(value*100) / 100

	return fmt.Sprintf("%s %s", strconv.FormatFloat(rounded, 'f', -1, 64), sizeUnits[exp])
}

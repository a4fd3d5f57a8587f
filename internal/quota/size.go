// Package quota tracks per-user storage usage in kilobytes and raises
// notifications when a user moves into a higher usage band.
package quota

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/agjmills/clientvault/internal/apperror"
)

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?|\.\d+)\s*(B|KB|MB|GB|TB)?$`)

var kbPerUnit = map[string]float64{
	"B":  1.0 / 1024,
	"":   1,
	"KB": 1,
	"MB": 1024,
	"GB": 1024 * 1024,
	"TB": 1024 * 1024 * 1024,
}

// MaxSizeKB is the largest size either parser accepts, 1 EB. Anything
// larger is treated as unparseable so sums of sizes cannot overflow int64.
const MaxSizeKB int64 = 1 << 50

// ParseSizeToKB converts a stored human-readable size such as "12.3 MB" to
// kilobytes. A bare number is read as KB. Unparseable or out-of-range input
// yields 0. Results are rounded to the nearest KB, so the same string always
// maps to the same value on create and delete.
func ParseSizeToKB(s string) int64 {
	kb, ok := parseKB(s)
	if !ok {
		return 0
	}
	return kb
}

// ParseLimit reads an administrator-supplied limit such as "5 GB". Unlike
// ParseSizeToKB it rejects input it cannot parse.
func ParseLimit(s string) (int64, error) {
	kb, ok := parseKB(s)
	if !ok {
		return 0, apperror.InvalidInput(fmt.Sprintf("invalid storage limit %q", s))
	}
	return kb, nil
}

func parseKB(s string) (int64, bool) {
	m := sizePattern.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(s)))
	if m == nil {
		return 0, false
	}
	val, err := strconv.ParseFloat(m[1], 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false
	}
	kb := math.Round(val * kbPerUnit[m[2]])
	if kb > float64(MaxSizeKB) {
		return 0, false
	}
	return int64(kb), true
}

// FormatSize renders a byte count the way sizes are stored on records.
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit && exp < 3; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGT"[exp])
}

// BytesToKB rounds a byte count to kilobytes consistently with ParseSizeToKB.
// Counts past MaxSizeKB clamp to it.
func BytesToKB(bytes int64) int64 {
	if bytes/1024 >= MaxSizeKB {
		return MaxSizeKB
	}
	return ParseSizeToKB(FormatSize(bytes))
}

package config

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseByteSize parses human byte-size strings like "10MiB" or "1MB".
// Decimal suffixes (KB/MB/GB) are powers of 1000, binary (KiB/MiB/GiB)
// powers of 1024. A bare number is bytes.
func ParseByteSize(s string) (int64, error) {
	in := strings.ToUpper(strings.TrimSpace(s))
	if in == "" {
		return 0, fmt.Errorf("empty size")
	}

	mult := int64(1)
	num := in
	for _, u := range []struct {
		suffix string
		mult   int64
	}{
		{"KIB", 1 << 10}, {"MIB", 1 << 20}, {"GIB", 1 << 30},
		{"KB", 1000}, {"MB", 1000 * 1000}, {"GB", 1000 * 1000 * 1000},
		{"B", 1},
	} {
		if strings.HasSuffix(in, u.suffix) {
			mult = u.mult
			num = strings.TrimSpace(strings.TrimSuffix(in, u.suffix))
			break
		}
	}

	n, err := strconv.ParseInt(num, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	if mult > 1 && n > (1<<63-1)/mult {
		return 0, fmt.Errorf("size overflow %q", s)
	}
	return n * mult, nil
}

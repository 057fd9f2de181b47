package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 Bytes"},
		{"bytes", 512, "512 Bytes"},
		{"one kb", 1024, "1 KB"},
		{"fractional kb", 1536, "1.5 KB"},
		{"two decimals", 2304, "2.25 KB"},
		{"just under a kb", 1023, "1023 Bytes"},
		{"megabytes", 5 * 1024 * 1024, "5 MB"},
		{"gigabytes", 3 * 1024 * 1024 * 1024, "3 GB"},
		{"terabytes", 2 * 1024 * 1024 * 1024 * 1024, "2 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FileSize(tt.bytes))
		})
	}
}

func TestFileSizeRoundsToTwoDecimals(t *testing.T) {
	// 1234567 / 1024^2 = 1.17737... -> "1.18 MB"
	assert.Equal(t, "1.18 MB", FileSize(1234567))
}

package convert_test

import (
	"testing"

	"github.com/open-edge-platform/release-packager/internal/utils/convert"
)

func TestBytesToKiB(t *testing.T) {
	tests := []struct {
		in, want int64
	}{
		{0, 0},
		{-5, 0},
		{1, 1},
		{1024, 1},
		{1025, 2},
		{10 * 1024, 10},
	}
	for _, tt := range tests {
		if got := convert.BytesToKiB(tt.in); got != tt.want {
			t.Errorf("BytesToKiB(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

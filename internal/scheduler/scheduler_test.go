package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronSpec(t *testing.T) {
	tests := []struct {
		at   string
		want string
	}{
		{"09:30", "30 9 * * 1-5"},
		{"15:30", "30 15 * * 1-5"},
		{"00:00", "0 0 * * 1-5"},
		{"23:59", "59 23 * * 1-5"},
	}

	for _, tt := range tests {
		got, err := cronSpec(tt.at)
		require.NoError(t, err, tt.at)
		assert.Equal(t, tt.want, got)
	}
}

func TestCronSpecRejectsMalformedTimes(t *testing.T) {
	for _, at := range []string{"", "9", "24:00", "12:60", "ab:cd", "12:30:00"} {
		_, err := cronSpec(at)
		assert.Error(t, err, at)
	}
}

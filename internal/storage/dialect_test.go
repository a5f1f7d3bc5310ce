package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	tests := []struct {
		name   string
		driver string
		query  string
		want   string
	}{
		{"sqlite untouched", "sqlite", "a = ? AND b = ?", "a = ? AND b = ?"},
		{"postgres numbered", "postgres", "a = ? AND b = ?", "a = $1 AND b = $2"},
		{"no placeholders", "postgres", "SELECT 1", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := lookupDialect(tt.driver)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.rebind(tt.query))
		})
	}
}

func TestDBTime_Scan(t *testing.T) {
	want := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	for _, src := range []any{want.Unix(), want, []byte("2024-01-02T03:04:05Z"), "2024-01-02 03:04:05"} {
		var ts dbTime
		require.NoError(t, ts.Scan(src))
		assert.True(t, ts.Equal(want), "source %T", src)
	}

	var ts dbTime
	assert.Error(t, ts.Scan(3.5))
	assert.Error(t, ts.Scan("yesterday"))
}

package cli

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerodha-stream/internal/config"
)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2024-06-03", time.Date(2024, 6, 3, 0, 0, 0, 0, time.Local)},
		{"2024-06-03 09:15:00", time.Date(2024, 6, 3, 9, 15, 0, 0, time.Local)},
		{"2024-06-03T09:15:00Z", time.Date(2024, 6, 3, 9, 15, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := parseDate(tt.in)
		require.NoError(t, err, "input %q", tt.in)
		assert.True(t, got.Equal(tt.want), "input %q: got %v want %v", tt.in, got, tt.want)
	}

	_, err := parseDate("03/06/2024")
	assert.Error(t, err)
}

func TestRootCommandWiring(t *testing.T) {
	cfg := config.Default()
	root := NewRootCmd(cfg, zerolog.Nop())

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["stream"])
	assert.True(t, names["backfill"])
	assert.True(t, names["version"])
	assert.True(t, names["config"])
}

func TestBackfillRequiresRegisteredSymbol(t *testing.T) {
	cfg := config.Default()
	root := NewRootCmd(cfg, zerolog.Nop())
	root.SetArgs([]string{"backfill", "-s", "UNREGISTERED", "--from", "2024-06-01", "--to", "2024-06-02"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestBackfillRejectsInvertedRange(t *testing.T) {
	cfg := config.Default()
	cfg.Feed.Symbols = map[string]uint32{"SBIN": 779521}
	root := NewRootCmd(cfg, zerolog.Nop())
	root.SetArgs([]string{"backfill", "-s", "SBIN", "--from", "2024-06-02", "--to", "2024-06-01"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--to must be after --from")
}

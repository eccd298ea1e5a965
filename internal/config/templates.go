package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Zerodha Stream Configuration

[feed]
# Maximum number of ticks buffered between the feed and the pipeline.
# When full, new ticks are dropped (freshness over completeness).
queue_size = 10000
# Divisor applied to scaled-integer prices (paise convention).
price_scale_divisor = 100.0
# Heuristically detect scaled-integer prices by magnitude/integrality.
# Disable for feeds that always deliver decimal units.
price_scale_auto = true

# Symbols to subscribe at stream start, mapped to instrument tokens.
# [feed.symbols]
# SBIN = 779521
# RELIANCE = 738561

[aggregation]
# Bar granularities in seconds built from the tick stream.
intervals_seconds = [60, 300]

[backfill]
# Maximum attempts per historical request.
max_retries = 3
# Base retry delay (exponential backoff).
base_delay = "1s"
# Pause between chunk requests.
chunk_pause = "350ms"
# Override per-interval default chunk sizing (0 = use defaults).
chunk_days = 0

[ratelimit]
# Upstream API request budget.
rate_per_second = 3.0
burst = 3

[store]
# SQLite database path (empty = default under the config dir).
db_path = ""

[logging]
level = "info"
console = true
file = true

# Standing conditional orders seeded when the stream starts.
# [[orders.gtt]]
# symbol = "SBIN"
# trigger_price = 800.0
# limit_price = 800.5
# quantity = 10
# side = "BUY"
# condition = "GTE"
#
# [[orders.bracket]]
# symbol = "SBIN"
# side = "BUY"
# quantity = 10
# entry_price = 790.0
# stop_loss = 780.0
# target = 810.0
# order_type = "LIMIT"
`

const credentialsTemplate = `# Zerodha Stream Credentials
# Keep this file private (chmod 600).

[zerodha]
api_key = ""
api_secret = ""
access_token = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.WriteFile(path, []byte(configTemplate), 0644)
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	return os.WriteFile(path, []byte(credentialsTemplate), 0600)
}

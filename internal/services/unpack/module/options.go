package module

import (
	"time"

	"histshard/internal/platform/config"
	"histshard/internal/services/unpack/writekit"
)

// Options holds configuration options for the unpack module
type Options struct {
	Window           time.Duration
	BaseDir          string
	OutputBucket     string
	WriteConcurrency int
	Scheme           writekit.Scheme
	LegacyAPIKeys    map[string]string
	DispatchURL      string
	BlobWorkers      int
}

// FromConfig reads the unpack options from config with UNPACK_ prefix
func FromConfig(cfg config.Conf) Options {
	up := cfg.Prefix("UNPACK_")
	return Options{
		Window:           up.MayDuration("WINDOW", 30*time.Minute),
		BaseDir:          up.MustString("BASE_DIR"),
		OutputBucket:     up.MayString("OUTPUT_BUCKET", "train"),
		WriteConcurrency: up.MayInt("WRITE_CONCURRENCY", 50),
		Scheme:           writekit.Scheme(up.MayEnum("WRITE_SCHEME", "fragment", "keyed", "fragment")),
		LegacyAPIKeys:    up.MayPairs("LEGACY_API_KEYS"),
		DispatchURL:      up.MayString("DISPATCH_URL", ""),
		BlobWorkers:      up.MayInt("BLOB_WORKERS", 4),
	}
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"histshard/internal/modkit"
	"histshard/internal/modkit/module"
	"histshard/internal/platform/config"
	"histshard/internal/platform/logger"
	"histshard/internal/platform/store"

	"histshard/internal/services/unpack/domain"
	unpackmod "histshard/internal/services/unpack/module"
)

func main() {
	root := config.New()
	pgCfg := root.Prefix("SERVICE_PGSQL_")

	l := logger.Get()
	st, err := store.Open(context.Background(), store.Config{
		AppName: "histshard-unpack",
		PG: store.PGConfig{
			Enabled:     true,
			URL:         pgCfg.MustString("DBURL"),
			MaxConns:    int32(pgCfg.MayInt("MAX_CONNS", 4)),
			SlowQueryMs: pgCfg.MayInt("SLOW_MS", 500),
			LogSQL:      pgCfg.MayBool("LOG_SQL", false),
		},
	}, store.WithLogger(*l))
	if err != nil {
		l.Panic().Err(err).Msg("store.Open failed")
	}
	defer func() {
		if err := st.Close(context.Background()); err != nil {
			l.Error().Err(err).Msg("failed to close store")
		}
	}()

	var (
		fNotification = flag.String("notification", "", "path to a notification JSON file, or - for stdin")
		fBucket       = flag.String("bucket", "", "source bucket for -keys (alternative to -notification)")
		fKeys         = flag.String("keys", "", "comma separated source keys within -bucket")
	)
	flag.Parse()

	n, err := readNotification(*fNotification, *fBucket, *fKeys)
	if err != nil {
		l.Panic().Err(err).Msg("bad invocation")
	}

	// the external trigger retries on non-zero exit; stop cleanly on signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	deps := modkit.Deps{
		Cfg: root,
		PG:  st.PG,
		Log: *l,
	}

	up := unpackmod.New(deps)
	module.Register(up.Name(), up.Ports())

	ports := up.Ports().(unpackmod.Ports)
	stats, err := ports.Runner.Run(ctx, n)
	if err != nil {
		l.Fatal().Err(err).Msg("unpack run failed")
	}
	l.Info().
		Int("blobs", stats.Blobs).
		Int("records", stats.Records).
		Int("discarded", stats.Discarded).
		Int("files", stats.Files).
		Msg("unpack run succeeded")
}

// readNotification builds the triggering notification from either a
// JSON document or the bucket/keys shorthand
func readNotification(path, bucket, keys string) (domain.Notification, error) {
	var n domain.Notification

	switch {
	case path != "":
		var raw []byte
		var err error
		if path == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(path)
		}
		if err != nil {
			return n, err
		}
		if err := json.Unmarshal(raw, &n); err != nil {
			return n, err
		}
	default:
		for _, k := range strings.Split(keys, ",") {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			n.Records = append(n.Records, domain.BlobRef{Bucket: bucket, Key: k})
		}
	}
	return n, nil
}

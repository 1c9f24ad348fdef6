package session

import (
	"encoding/hex"

	"go.uber.org/zap"

	"github.com/mabhi256/dngc/internal/gcevent"
)

// debugSource wraps an EventSource to log every raw event it delivers
type debugSource struct {
	source EventSource
	log    *zap.Logger
}

func newDebugSource(source EventSource, log *zap.Logger) *debugSource {
	return &debugSource{source: source, log: log.Named("raw")}
}

func (ds *debugSource) Next() (gcevent.RawEvent, error) {
	ev, err := ds.source.Next()
	if err != nil {
		ds.log.Debug("next", zap.Error(err))
		return ev, err
	}

	ds.log.Debug("event",
		zap.Stringer("kind", ev.Kind),
		zap.Uint8("version", ev.Version),
		zap.Int64("timestamp", ev.Timestamp),
		zap.Int("size", len(ev.Payload)),
		zap.String("payload", hex.EncodeToString(ev.Payload)))
	return ev, nil
}

func (ds *debugSource) Stop() error {
	err := ds.source.Stop()
	ds.log.Debug("stop", zap.Error(err))
	return err
}

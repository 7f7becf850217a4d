package db

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"seroest/config"
)

// OpenRemote connects the remote backend named by cfg.Driver. Callers check
// config.RemoteConfigured first.
func OpenRemote(ctx context.Context, cfg config.BackendConfig, log logrus.FieldLogger) (Seedable, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := OpenPostgres(cfg.URL, cfg.Key, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverFirestore:
		s, err := NewFirestoreStore(ctx, cfg.URL, cfg.Key, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown backend driver %q", cfg.Driver)
}

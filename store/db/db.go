// Package db provides the database driver constructor.
package db

import (
	"github.com/pkg/errors"

	"github.com/anthonyhu/aidocs/internal/profile"
	"github.com/anthonyhu/aidocs/store"
	"github.com/anthonyhu/aidocs/store/db/postgres"
	"github.com/anthonyhu/aidocs/store/db/sqlite"
)

// NewDBDriver creates the store driver based on the profile.
func NewDBDriver(profile *profile.Profile) (store.Driver, error) {
	switch profile.Driver {
	case "postgres":
		return postgres.NewDB(profile)
	case "sqlite":
		return sqlite.NewDB(profile)
	default:
		return nil, errors.Errorf("unknown db driver: %s", profile.Driver)
	}
}

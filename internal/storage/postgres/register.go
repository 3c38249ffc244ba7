package postgres

import "nbaload/internal/storage"

func init() {
	// registers the backend factory
	storage.Register("postgres", New)
}

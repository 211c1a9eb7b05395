package run

import (
	"github.com/bornholm/uitester/internal/store"
)

// Repository persists task runs. It implements the history needed by the
// task launcher and the API.
type Repository struct {
	store *store.Store
}

func NewRepository(store *store.Store) *Repository {
	return &Repository{
		store: store,
	}
}

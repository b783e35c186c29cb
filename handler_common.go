package main

import (
	"errors"
	"net/http"

	"opreg/internal/entity"
	"opreg/internal/response"
	"opreg/internal/schema"
	"opreg/internal/validation"
)

// Shared handler instances, lazily rebuilt when the DB changes (tests
// reopen the database).
var (
	registry    *schema.Registry
	entityStore *entity.Store
)

func getRegistry() *schema.Registry {
	if registry == nil || registry.DB != db {
		registry = &schema.Registry{DB: db, NextID: nextID}
	}
	return registry
}

func getEntityStore() *entity.Store {
	if entityStore == nil || entityStore.DB != db {
		entityStore = &entity.Store{DB: db, Registry: getRegistry(), NextID: nextID}
	}
	return entityStore
}

// writeErr maps the error taxonomy onto HTTP statuses: validation 400,
// missing references 404, everything else a storage failure 500.
func writeErr(w http.ResponseWriter, err error) {
	var ve *validation.ValidationErrors
	switch {
	case errors.As(err, &ve):
		response.Err(w, ve.Error(), 400)
	case errors.Is(err, schema.ErrNotFound), errors.Is(err, entity.ErrNotFound):
		response.Err(w, err.Error(), 404)
	default:
		response.Err(w, err.Error(), 500)
	}
}

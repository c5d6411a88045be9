package model

import "github.com/google/uuid"

// ensureID assigns a random UUID when the primary key is still unset.
// IDs are generated in Go so the schema stays portable across postgres, mysql and sqlite.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

package main

import "opreg/internal/models"

// Aliases so root handlers and tests read naturally.
type Category = models.Category
type FieldDefinition = models.FieldDefinition
type Entity = models.Entity

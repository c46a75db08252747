package db

import "github.com/hazyhaar/pkg/idgen"

// NewID returns a 12-character base-36 row identifier.
func NewID() string { return idgen.New() }

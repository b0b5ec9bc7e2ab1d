package sqlc

import (
	"embed"
)

// SqlSchemas holds the migrations of the settlement database.
//
//go:embed migrations/*.up.sql migrations/*.down.sql
var SqlSchemas embed.FS

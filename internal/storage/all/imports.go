// Package all registers every built-in storage backend ("postgres",
// "mssql", "sqlite") with the storage factory through blank imports.
package all

import (
	_ "scriptetl/internal/storage/mssql"
	_ "scriptetl/internal/storage/postgres"
	_ "scriptetl/internal/storage/sqlite"
)

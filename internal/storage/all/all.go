// Package all links every storage backend into the binary.
package all

import (
	_ "sheetcrud/internal/storage/mssql"
	_ "sheetcrud/internal/storage/postgres"
	_ "sheetcrud/internal/storage/sqlite"
)

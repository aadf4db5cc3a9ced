package mssql

import "sheetcrud/internal/storage"

func init() {
	storage.Register("mssql", New)
}

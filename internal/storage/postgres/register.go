package postgres

import "sheetcrud/internal/storage"

func init() {
	storage.Register("postgres", New)
}

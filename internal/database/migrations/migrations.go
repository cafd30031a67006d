// Package migrations содержит SQL миграции схемы, встроенные в бинарник.
package migrations

import "embed"

// Migrations - файлы goose в формате NNNNN_name.sql
//
//go:embed *.sql
var Migrations embed.FS

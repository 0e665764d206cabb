package migrations

import _ "embed"

//go:embed sql/2025030101_create_catalog.up.sql
var createCatalogSQL string

//go:embed sql/2025030101_create_catalog.down.sql
var dropCatalogSQL string

func init() {
	Migrations.MustRegister(sqlMigration(createCatalogSQL, dropCatalogSQL))
}

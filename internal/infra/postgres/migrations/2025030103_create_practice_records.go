package migrations

import _ "embed"

//go:embed sql/2025030103_create_practice_records.up.sql
var createPracticeRecordsSQL string

//go:embed sql/2025030103_create_practice_records.down.sql
var dropPracticeRecordsSQL string

func init() {
	Migrations.MustRegister(sqlMigration(createPracticeRecordsSQL, dropPracticeRecordsSQL))
}

package migrations

import _ "embed"

//go:embed sql/2025030102_create_exam_records.up.sql
var createExamRecordsSQL string

//go:embed sql/2025030102_create_exam_records.down.sql
var dropExamRecordsSQL string

func init() {
	Migrations.MustRegister(sqlMigration(createExamRecordsSQL, dropExamRecordsSQL))
}

// Package migrations embeds SQL migration files for goose.
//
// Migration files follow the naming convention: YYYYMMDDHHMMSS_description.sql
// They cover the metric snapshot table with its views and change trigger, the
// three report generations, and section preferences.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

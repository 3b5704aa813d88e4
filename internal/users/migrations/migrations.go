// Package migrations は users テーブルのスキーマをダイアレクトごとに埋め込みます。
package migrations

import "embed"

// FS には sqlite/ と mysql/ の goose マイグレーションが含まれます。
//
//go:embed sqlite/*.sql mysql/*.sql
var FS embed.FS

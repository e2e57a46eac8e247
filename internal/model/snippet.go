// Package model declares the application's record types on top of orm.
//
// Each constructor resolves an orm.Type for a DB. Call it once at startup
// and share the result: a Type is safe for concurrent use.
package model

import (
	"strings"

	"github.com/rs/xid"

	"github.com/sakif/activerecord/internal/orm"
)

// Snippet columns.
const (
	SnippetName        = "name"
	SnippetCode        = "code"
	SnippetDescription = "description"
	SnippetOwnerToken  = "owner_token"
	SnippetUserID      = "user_id"
	SnippetLineCount   = "line_count"
)

// Snippet is a saved code snippet. Keys are xids generated on insert.
// Deleting a snippet only stamps deleted_at. The owner token that authorizes
// edits never leaves the server; snippets created by a signed-in user also
// record user_id. Every serialized snippet carries a computed line_count.
func Snippet(db *orm.DB) *orm.Type {
	return db.Define(orm.Config{
		Name:        "Snippet",
		NewKey:      func() any { return xid.New().String() },
		SoftDeletes: true,
		Fillable:    []string{SnippetName, SnippetCode, SnippetDescription},
		Hidden:      []string{SnippetOwnerToken},
		Append:      []string{SnippetLineCount},
		Setters: map[string]orm.Setter{
			SnippetName:        trimString,
			SnippetDescription: trimString,
		},
		Getters: map[string]orm.Getter{
			SnippetLineCount: lineCount,
		},
	})
}

func trimString(_ *orm.Model, v any) (any, error) {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s), nil
	}
	return v, nil
}

func lineCount(m *orm.Model, _ any) any {
	code, _ := m.Get(SnippetCode).(string)
	if code == "" {
		return 0
	}
	return strings.Count(strings.TrimRight(code, "\n"), "\n") + 1
}

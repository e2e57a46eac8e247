package orm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/activerecord/internal/apperror"
)

func postType(db *DB) *Type {
	return db.Define(Config{
		Name:        "Post",
		SoftDeletes: true,
		Fillable:    []string{"name", "age"},
	})
}

func TestSave_Insert(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`INSERT INTO "posts" ("age", "created_at", "name", "updated_at") VALUES (?, ?, ?, ?)`).
		WithArgs(1, fixedNow, "a", fixedNow).
		WillReturnResult(sqlmock.NewResult(7, 1))

	m, err := postType(db).Create(context.Background(), map[string]any{"name": "a", "age": 1})
	require.NoError(t, err)

	assert.False(t, m.IsFresh())
	assert.False(t, m.IsDirty())
	assert.Equal(t, int64(7), m.Key())
	assert.Equal(t, map[string]any{
		"id":         int64(7),
		"name":       "a",
		"age":        1,
		"created_at": fixedNow,
		"updated_at": fixedNow,
	}, m.Original())
	assert.Equal(t, m.Original(), m.Props())
}

func TestSave_InsertKeepsCallerTimestamps(t *testing.T) {
	db, mock := newMockDB(t)
	imported := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO "events" ("created_at", "kind", "updated_at") VALUES (?, ?, ?)`).
		WithArgs(imported, "import", fixedNow).
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := db.Define(Config{Name: "Event", Unguarded: true})
	m, err := event.Create(context.Background(), map[string]any{"kind": "import", "created_at": imported})
	require.NoError(t, err)
	assert.Equal(t, imported, m.Get("created_at"))
}

func TestSave_InsertWithoutTimestamps(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`INSERT INTO "tags" ("label") VALUES (?)`).
		WithArgs("go").
		WillReturnResult(sqlmock.NewResult(3, 1))

	tag := db.Define(Config{Name: "Tag", Fillable: []string{"label"}, DisableTimestamps: true})
	m, err := tag.Create(context.Background(), map[string]any{"label": "go"})
	require.NoError(t, err)
	assert.False(t, m.Has("created_at"))
}

func TestSave_InsertDriverError(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`INSERT INTO "tags" ("label") VALUES (?)`).
		WithArgs("go").
		WillReturnError(assert.AnError)

	tag := db.Define(Config{Name: "Tag", Fillable: []string{"label"}, DisableTimestamps: true})
	m, err := tag.New(map[string]any{"label": "go"})
	require.NoError(t, err)

	assert.Equal(t, assert.AnError, m.Save(context.Background()))
	assert.True(t, m.IsFresh(), "a failed insert leaves the model fresh")
}

func TestSave_SecondSaveOnlyStampsUpdatedAt(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	mock.ExpectExec(`INSERT INTO "posts" ("age", "created_at", "name", "updated_at") VALUES (?, ?, ?, ?)`).
		WithArgs(1, fixedNow, "a", fixedNow).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec(`UPDATE "posts" SET "updated_at" = ? WHERE "id" = ?`).
		WithArgs(fixedNow, 7).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m, err := postType(db).Create(ctx, map[string]any{"name": "a", "age": 1})
	require.NoError(t, err)
	require.NoError(t, m.Save(ctx))
}

func TestSave_UpdateWritesOnlyTheDiff(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE "posts" SET "name" = ?, "updated_at" = ? WHERE "id" = ?`).
		WithArgs("b", fixedNow, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := postType(db).NewFromRow(map[string]any{"id": int64(1), "name": "a", "age": int64(1)})
	require.NoError(t, m.Set("name", "b"))
	require.NoError(t, m.Set("age", 1))

	assert.Equal(t, map[string]any{"name": "b"}, m.Dirty(), "int and int64 of equal value are not a change")
	require.NoError(t, m.Save(context.Background()))

	assert.False(t, m.IsDirty())
	assert.Equal(t, "b", m.Original()["name"])
	assert.Equal(t, fixedNow, m.Original()["updated_at"])
}

func TestSave_UpdateWithoutChangesOrTimestampsIsANoop(t *testing.T) {
	db, _ := newMockDB(t)
	tag := db.Define(Config{Name: "Tag", DisableTimestamps: true})

	m := tag.NewFromRow(map[string]any{"id": int64(1), "label": "go"})
	assert.NoError(t, m.Save(context.Background()))
}

func TestSave_UpdateMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE "posts" SET "name" = ?, "updated_at" = ? WHERE "id" = ?`).
		WithArgs("b", fixedNow, 1).
		WillReturnResult(sqlmock.NewResult(0, 0))

	m := postType(db).NewFromRow(map[string]any{"id": int64(1), "name": "a"})
	require.NoError(t, m.Set("name", "b"))

	err := m.Save(context.Background())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	assert.Equal(t, "a", m.Original()["name"])
}

func TestModel_Update(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE "posts" SET "age" = ?, "updated_at" = ? WHERE "id" = ?`).
		WithArgs(30, fixedNow, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := postType(db).NewFromRow(map[string]any{"id": int64(1), "name": "a", "age": int64(29)})
	require.NoError(t, m.Update(context.Background(), map[string]any{"age": 30, "id": 99}))
	assert.Equal(t, int64(1), m.Key())
	assert.Equal(t, 30, m.Get("age"))
}

func TestDestroy_SoftDelete(t *testing.T) {
	db, mock := newMockDB(t)
	ctx := context.Background()
	post := postType(db)

	mock.ExpectExec(`UPDATE "posts" SET "deleted_at" = ?, "updated_at" = ? WHERE "id" = ?`).
		WithArgs(fixedNow, fixedNow, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT * FROM "posts" WHERE "deleted_at" IS NULL AND "id" = ? LIMIT 1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "deleted_at"}))
	mock.ExpectQuery(`SELECT * FROM "posts" WHERE "id" = ? LIMIT 1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "deleted_at"}).AddRow(int64(1), "2026-10-18 09:30:00"))
	mock.ExpectQuery(`SELECT * FROM "posts" WHERE "deleted_at" IS NULL AND "id" = ? LIMIT 1`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "deleted_at"}))

	m := post.NewFromRow(map[string]any{"id": int64(1), "name": "a", "deleted_at": nil})
	assert.False(t, m.Trashed())
	require.NoError(t, m.Destroy(ctx))
	assert.True(t, m.Trashed())
	assert.Equal(t, fixedNow, m.Get("deleted_at"))

	_, err := post.Find(ctx, 1)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	trashed, err := post.WithTrashed().Find(ctx, 1)
	require.NoError(t, err)
	assert.True(t, trashed.Trashed())
	assert.Equal(t, fixedNow, trashed.Get("deleted_at"))

	_, err = post.Find(ctx, 1)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestRestore(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`UPDATE "posts" SET "deleted_at" = ?, "updated_at" = ? WHERE "id" = ?`).
		WithArgs(nil, fixedNow, 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := postType(db).NewFromRow(map[string]any{"id": int64(1), "deleted_at": fixedNow})
	require.True(t, m.Trashed())
	require.NoError(t, m.Restore(context.Background()))
	assert.False(t, m.Trashed())
}

func TestRestore_WithoutSoftDeletes(t *testing.T) {
	db, _ := newMockDB(t)
	m := db.Define(Config{Name: "User"}).NewFromRow(map[string]any{"id": int64(1)})
	assert.ErrorIs(t, m.Restore(context.Background()), apperror.ErrValidation)
}

func TestDestroy_HardDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("deletes by key", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(`DELETE FROM "users" WHERE "id" = ?`).
			WithArgs(5).
			WillReturnResult(sqlmock.NewResult(0, 1))

		m := db.Define(Config{Name: "User"}).NewFromRow(map[string]any{"id": int64(5)})
		require.NoError(t, m.Destroy(ctx))
		assert.True(t, m.IsFresh())
		assert.Empty(t, m.Original())
	})

	t.Run("missing row", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(`DELETE FROM "users" WHERE "id" = ?`).
			WithArgs(5).
			WillReturnResult(sqlmock.NewResult(0, 0))

		m := db.Define(Config{Name: "User"}).NewFromRow(map[string]any{"id": int64(5)})
		assert.ErrorIs(t, m.Destroy(ctx), apperror.ErrNotFound)
	})

	t.Run("fresh model", func(t *testing.T) {
		db, _ := newMockDB(t)
		m, err := db.Define(Config{Name: "User", Unguarded: true}).New(nil)
		require.NoError(t, err)
		assert.ErrorIs(t, m.Destroy(ctx), apperror.ErrValidation)
	})

	t.Run("force delete ignores soft deletes", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectExec(`DELETE FROM "posts" WHERE "id" = ?`).
			WithArgs(2).
			WillReturnResult(sqlmock.NewResult(0, 1))

		m := postType(db).NewFromRow(map[string]any{"id": int64(2)})
		require.NoError(t, m.ForceDelete(ctx))
	})

	t.Run("saving after force delete inserts a new row", func(t *testing.T) {
		db, mock := newMockDB(t)
		stored := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectExec(`DELETE FROM "posts" WHERE "id" = ?`).
			WithArgs(int64(2)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO "posts" ("created_at", "name", "updated_at") VALUES (?, ?, ?)`).
			WithArgs(fixedNow, "a", fixedNow).
			WillReturnResult(sqlmock.NewResult(9, 1))

		m := postType(db).NewFromRow(map[string]any{
			"id": int64(2), "name": "a", "created_at": stored, "updated_at": stored,
		})
		require.NoError(t, m.ForceDelete(ctx))
		assert.Nil(t, m.Key())
		assert.False(t, m.Has("created_at"))
		assert.Equal(t, "a", m.Get("name"))

		require.NoError(t, m.Save(ctx))
		assert.Equal(t, int64(9), m.Key())
	})
}

func TestModel_Query(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`SELECT COUNT(*) FROM "posts" WHERE "deleted_at" IS NULL AND "id" = ?`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(int64(1)))

	m := postType(db).NewFromRow(map[string]any{"id": int64(3)})
	n, err := m.Query().Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func hookedType(db *DB) *Type {
	return db.Define(Config{
		Name:     "Message",
		Fillable: []string{"body", "sent_at", "email"},
		Hidden:   []string{"secret"},
		Append:   []string{"excerpt"},
		Setters: map[string]Setter{
			"email": func(_ *Model, v any) (any, error) {
				s, ok := v.(string)
				if !ok || !strings.Contains(s, "@") {
					return nil, apperror.ValidationFailed("email", "invalid email")
				}
				return strings.ToLower(s), nil
			},
		},
		Getters: map[string]Getter{
			"body": func(_ *Model, v any) any {
				if s, ok := v.(string); ok {
					return strings.TrimSpace(s)
				}
				return v
			},
			"excerpt": func(m *Model, _ any) any {
				body, _ := m.Get("body").(string)
				if len(body) > 5 {
					return body[:5]
				}
				return body
			},
		},
	})
}

func TestHooks_Setters(t *testing.T) {
	db, _ := newMockDB(t)
	msg := hookedType(db)

	m, err := msg.New(map[string]any{"email": "Ada@Example.COM"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", m.Get("email"))

	err = m.Set("email", "nope")
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "email", appErr.Field)
	assert.Equal(t, "ada@example.com", m.Get("email"), "a failed setter keeps the old value")

	_, err = msg.New(map[string]any{"email": 42})
	assert.ErrorIs(t, err, apperror.ErrValidation)
}

func TestHooks_NewFromRowSkipsSetters(t *testing.T) {
	db, _ := newMockDB(t)
	m := hookedType(db).NewFromRow(map[string]any{"id": int64(1), "email": "MIXED@Case.io"})

	assert.Equal(t, "MIXED@Case.io", m.Get("email"))
	assert.False(t, m.IsDirty())
}

func TestGet_CoercesTimestampsBeforeGetters(t *testing.T) {
	db, _ := newMockDB(t)
	var seen any
	typ := db.Define(Config{
		Name: "Message",
		Getters: map[string]Getter{
			"updated_at": func(_ *Model, v any) any {
				seen = v
				return "formatted"
			},
		},
	})

	m := typ.NewFromRow(map[string]any{
		"created_at": "2026-10-18T09:30:00Z",
		"updated_at": "2026-10-18 09:30:00",
		"deleted_at": nil,
		"sent_at":    "2026-10-18T09:30:00Z",
	})

	assert.Equal(t, fixedNow, m.Get("created_at"))
	assert.Equal(t, "formatted", m.Get("updated_at"))
	assert.Equal(t, fixedNow, seen)
	assert.Nil(t, m.Get("deleted_at"))
	assert.Equal(t, "2026-10-18T09:30:00Z", m.Get("sent_at"), "only timestamp columns are coerced")
	assert.Equal(t, "2026-10-18T09:30:00Z", m.Raw("created_at"))
}

func TestGet_NoCoercionWhenTimestampsDisabled(t *testing.T) {
	db, _ := newMockDB(t)
	typ := db.Define(Config{Name: "Tag", DisableTimestamps: true})

	m := typ.NewFromRow(map[string]any{"created_at": "2026-10-18T09:30:00Z"})
	assert.Equal(t, "2026-10-18T09:30:00Z", m.Get("created_at"))
}

func TestToMap_RoundTrip(t *testing.T) {
	db, _ := newMockDB(t)
	row := map[string]any{
		"id":         int64(1),
		"body":       "  hello world  ",
		"secret":     "s3cr3t",
		"created_at": "2026-10-18T09:30:00Z",
		"updated_at": fixedNow,
	}

	m := hookedType(db).NewFromRow(row)
	assert.Equal(t, map[string]any{
		"id":         int64(1),
		"body":       "hello world",
		"created_at": fixedNow,
		"updated_at": fixedNow,
		"excerpt":    "hello",
	}, m.ToMap())

	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id": 1,
		"body": "hello world",
		"created_at": "2026-10-18T09:30:00Z",
		"updated_at": "2026-10-18T09:30:00Z",
		"excerpt": "hello"
	}`, string(raw))
}

func TestSave_InsertWithGeneratedKey(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectExec(`INSERT INTO "notes" ("body", "id") VALUES (?, ?)`).
		WithArgs("hi", "cv37rs3pp9olc6atsptg").
		WillReturnResult(sqlmock.NewResult(1, 1))

	note := db.Define(Config{
		Name:              "Note",
		Fillable:          []string{"body"},
		DisableTimestamps: true,
		NewKey:            func() any { return "cv37rs3pp9olc6atsptg" },
	})
	m, err := note.Create(context.Background(), map[string]any{"body": "hi"})
	require.NoError(t, err)
	assert.Equal(t, "cv37rs3pp9olc6atsptg", m.Key())
}

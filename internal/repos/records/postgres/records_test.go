package postgres

import (
	"testing"

	"github.com/fastprodman/gamegateway/internal/infra/pgtestutil"
	"github.com/fastprodman/gamegateway/internal/repos/records/recordstest"
)

func TestRecords_Contract(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	recordstest.Run(t, New(db))
}

func TestRecords_JSONBColumn(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)

	err := repo.Set(t.Context(), "account:p1", []byte(`{"balance": 100, "currency": "EUR"}`))
	if err != nil {
		t.Fatalf("set: %v", err)
	}

	var balance int64

	err = db.QueryRow(`SELECT (value->>'balance')::bigint FROM records WHERE key = $1`, "account:p1").Scan(&balance)
	if err != nil {
		t.Fatalf("query jsonb: %v", err)
	}

	if balance != 100 {
		t.Fatalf("balance mismatch: want 100, got %d", balance)
	}
}

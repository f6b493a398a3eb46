package mongo_test

import (
	"context"
	"os"
	"strconv"
	"testing"

	"github.com/google/uuid"
	"github.com/septivank/electricity-billing/internal/db"
	"github.com/septivank/electricity-billing/internal/repository/mongo"
	"github.com/septivank/electricity-billing/internal/repository/storetest"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
)

func TestStoreContract(t *testing.T) {
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	transactions, _ := strconv.ParseBool(os.Getenv("TEST_MONGO_TRANSACTIONS"))

	lc := fxtest.NewLifecycle(t)
	client, err := db.NewMongoClient(lc, zap.NewNop(), uri)
	if err != nil {
		t.Fatalf("NewMongoClient failed: %v", err)
	}
	lc.RequireStart()
	defer lc.RequireStop()

	database := "billing_test_" + uuid.NewString()[:8]
	defer client.Database(database).Drop(context.Background())

	store := mongo.New(client, database, transactions)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	if !transactions {
		// without transactions a failed unit keeps its earlier writes
		t.Log("running without transactions; rollback checks are skipped")
		storetest.RunNonTransactional(t, store, "mongo")
		return
	}
	storetest.Run(t, store, "mongo")
}

package persistence

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestMongoDB_Database(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// A disconnected client is enough to verify accessor wiring; audit-store
	// behavior is covered in internal/data/mongo
	client, _ := mongo.Connect(context.TODO(), options.Client().ApplyURI("mongodb://localhost:27017"))
	database := client.Database("transactions_audit")

	mdb := &MongoDB{logger: logger, database: database}

	assert.Equal(t, database, mdb.Database())
	assert.Equal(t, "invalid_records", mdb.Collection("invalid_records").Name())
}

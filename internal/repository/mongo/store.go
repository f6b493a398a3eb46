// Package mongo is the MongoDB ledger store. Meters and billing history
// live in the "meters" and "billing_history" collections.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/septivank/electricity-billing/internal/ledger"
)

// Collection name constants.
const (
	colMeters  = "meters"
	colHistory = "billing_history"
)

var _ ledger.Store = (*Store)(nil)

// Store implements ledger.Store on MongoDB
type Store struct {
	client       *mongo.Client
	meters       *mongo.Collection
	history      *mongo.Collection
	transactions bool
}

// New creates a store on the named database. Without transactions the
// writes of one unit are applied one after another, which standalone
// servers require.
func New(client *mongo.Client, database string, transactions bool) *Store {
	db := client.Database(database)
	return &Store{
		client:       client,
		meters:       db.Collection(colMeters),
		history:      db.Collection(colHistory),
		transactions: transactions,
	}
}

// Migrate creates the unique meter_id index and the history index
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.meters.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "meter_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("billing/mongo: migrate %s indexes: %w", colMeters, err)
	}

	_, err = s.history.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "meter_id", Value: 1}, {Key: "date", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("billing/mongo: migrate %s indexes: %w", colHistory, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) FindMeter(ctx context.Context, meterID string) (*ledger.Meter, error) {
	var doc meterDoc
	err := s.meters.FindOne(ctx, bson.M{"meter_id": meterID}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: %s", ledger.ErrNotFound, meterID)
		}
		return nil, fmt.Errorf("billing/mongo: find meter: %w", err)
	}

	meter := fromMeterDoc(&doc)
	return &meter, nil
}

func (s *Store) ListMeters(ctx context.Context) ([]ledger.Meter, error) {
	cursor, err := s.meters.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("billing/mongo: list meters: %w", err)
	}

	var docs []meterDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("billing/mongo: decode meters: %w", err)
	}

	meters := make([]ledger.Meter, len(docs))
	for i := range docs {
		meters[i] = fromMeterDoc(&docs[i])
	}
	return meters, nil
}

func (s *Store) QueryHistory(ctx context.Context, meterID string) ([]ledger.BillingRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "_id", Value: 1}})
	return s.findRecords(ctx, meterID, opts)
}

func (s *Store) RecentRecords(ctx context.Context, meterID string, limit int) ([]ledger.BillingRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	return s.findRecords(ctx, meterID, opts)
}

func (s *Store) findRecords(ctx context.Context, meterID string, opts *options.FindOptionsBuilder) ([]ledger.BillingRecord, error) {
	cursor, err := s.history.Find(ctx, bson.M{"meter_id": meterID}, opts)
	if err != nil {
		return nil, fmt.Errorf("billing/mongo: query history: %w", err)
	}

	var docs []recordDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("billing/mongo: decode history: %w", err)
	}

	records := make([]ledger.BillingRecord, 0, len(docs))
	for i := range docs {
		rec, err := fromRecordDoc(&docs[i])
		if err != nil {
			return nil, fmt.Errorf("billing/mongo: decode record %s: %w", docs[i].ID, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

// RunInTx runs fn in a multi-document transaction when enabled
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx ledger.Tx) error) error {
	if !s.transactions {
		tx := &mongoTx{store: s, track: true}
		if err := fn(ctx, tx); err != nil {
			if undoErr := tx.undo(context.WithoutCancel(ctx)); undoErr != nil {
				return errors.Join(err, undoErr)
			}
			return err
		}
		return nil
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("billing/mongo: start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx, &mongoTx{store: s})
	})
	return err
}

// mongoTx issues its writes with the session context it is given. Without
// a transaction it tracks its inserts so a failed unit can remove them;
// meter updates are not undone, callers issue them last.
type mongoTx struct {
	store *Store
	track bool

	insertedMeters  []string
	insertedRecords []string
}

func (t *mongoTx) undo(ctx context.Context) error {
	var errs []error
	if len(t.insertedRecords) > 0 {
		if _, err := t.store.history.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": t.insertedRecords}}); err != nil {
			errs = append(errs, fmt.Errorf("billing/mongo: undo billing records: %w", err))
		}
	}
	if len(t.insertedMeters) > 0 {
		if _, err := t.store.meters.DeleteMany(ctx, bson.M{"meter_id": bson.M{"$in": t.insertedMeters}}); err != nil {
			errs = append(errs, fmt.Errorf("billing/mongo: undo meters: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (t *mongoTx) FindMeter(ctx context.Context, meterID string) (*ledger.Meter, error) {
	return t.store.FindMeter(ctx, meterID)
}

func (t *mongoTx) InsertMeter(ctx context.Context, meter *ledger.Meter) error {
	if _, err := t.store.meters.InsertOne(ctx, toMeterDoc(meter)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", ledger.ErrAlreadyExists, meter.MeterID)
		}
		return fmt.Errorf("billing/mongo: insert meter: %w", err)
	}
	if t.track {
		t.insertedMeters = append(t.insertedMeters, meter.MeterID)
	}
	return nil
}

func (t *mongoTx) UpdateMeterReadings(ctx context.Context, meterID string, dayReading, nightReading float64, at time.Time) error {
	res, err := t.store.meters.UpdateOne(ctx,
		bson.M{"meter_id": meterID},
		bson.M{"$set": bson.M{
			"day_reading":   dayReading,
			"night_reading": nightReading,
			"date":          at,
		}},
	)
	if err != nil {
		return fmt.Errorf("billing/mongo: update meter: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrNotFound, meterID)
	}
	return nil
}

func (t *mongoTx) InsertBillingRecord(ctx context.Context, record *ledger.BillingRecord) error {
	if _, err := t.store.history.InsertOne(ctx, toRecordDoc(record)); err != nil {
		return fmt.Errorf("billing/mongo: insert billing record: %w", err)
	}
	if t.track {
		t.insertedRecords = append(t.insertedRecords, record.ID.String())
	}
	return nil
}

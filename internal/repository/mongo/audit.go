package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
)

const auditCollection = "serial_number_audit"

// auditDocument — схема записи аудита в MongoDB
type auditDocument struct {
	ID        string    `bson:"_id"`
	SerialID  int64     `bson:"serial_id"`
	Action    string    `bson:"action"`
	OldValue  string    `bson:"old_value,omitempty"`
	NewValue  string    `bson:"new_value,omitempty"`
	Actor     string    `bson:"actor"`
	Reason    string    `bson:"reason,omitempty"`
	CreatedAt time.Time `bson:"created_at"`
}

// AuditRepository реализует append-only журнал аудита в MongoDB.
// Журнал пишется вне критической секции и best-effort:
// отказ журнала не откатывает уже применённое изменение инвентаря.
type AuditRepository struct {
	collection *mongo.Collection
}

// NewAuditRepository создаёт новый MongoDB журнал аудита
func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{collection: db.Collection(auditCollection)}
}

// EnsureIndexes создаёт индексы журнала. Вызывается при старте приложения.
func (r *AuditRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "serial_id", Value: 1},
			{Key: "created_at", Value: -1},
		},
	})
	return err
}

// Append добавляет одну запись аудита
func (r *AuditRepository) Append(ctx context.Context, entry repository.AuditEntry) error {
	_, err := r.collection.InsertOne(ctx, toDocument(entry))
	return err
}

// AppendBatch добавляет набор записей аудита
func (r *AuditRepository) AppendBatch(ctx context.Context, entries []repository.AuditEntry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		docs = append(docs, toDocument(entry))
	}

	_, err := r.collection.InsertMany(ctx, docs)
	return err
}

// ListBySerial возвращает записи аудита серийного номера, новые первыми
func (r *AuditRepository) ListBySerial(ctx context.Context, serialID int64) ([]repository.AuditEntry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := r.collection.Find(ctx, bson.M{"serial_id": serialID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []auditDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]repository.AuditEntry, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDocument(doc))
	}
	return out, nil
}

func toDocument(entry repository.AuditEntry) auditDocument {
	return auditDocument{
		ID:        entry.ID,
		SerialID:  entry.SerialID,
		Action:    entry.Action,
		OldValue:  entry.OldValue,
		NewValue:  entry.NewValue,
		Actor:     entry.Actor,
		Reason:    entry.Reason,
		CreatedAt: entry.CreatedAt,
	}
}

func fromDocument(doc auditDocument) repository.AuditEntry {
	return repository.AuditEntry{
		ID:        doc.ID,
		SerialID:  doc.SerialID,
		Action:    doc.Action,
		OldValue:  doc.OldValue,
		NewValue:  doc.NewValue,
		Actor:     doc.Actor,
		Reason:    doc.Reason,
		CreatedAt: doc.CreatedAt,
	}
}

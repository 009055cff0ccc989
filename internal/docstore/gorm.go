package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
	"github.com/lib/pq"           // PostgreSQL driver
	"github.com/mattn/go-sqlite3" // SQLite driver
)

// documentRow stores one document as a JSON payload
type documentRow struct {
	ID         uint   `gorm:"primary_key"`
	Collection string `gorm:"type:varchar(512);not null;unique_index:idx_documents_path"`
	DocID      string `gorm:"column:doc_id;type:varchar(128);not null;unique_index:idx_documents_path"`
	Payload    string `gorm:"type:text;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName sets the table name for documentRow
func (documentRow) TableName() string {
	return "documents"
}

// GormStore is a Store backed by a relational database through gorm.
// Supported dialects are "sqlite3" and "postgres".
type GormStore struct {
	db       *gorm.DB
	newID    func() string
	lockRows bool
}

// OpenGorm opens the database and migrates the documents table
func OpenGorm(driver, dsn string) (*GormStore, error) {
	db, err := gorm.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}
	if driver == "sqlite3" {
		// sqlite allows a single writer; ":memory:" databases are per connection
		db.DB().SetMaxOpenConns(1)
	}
	store, err := NewGormStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewGormStore wraps an open connection and migrates the documents table
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&documentRow{}).Error; err != nil {
		return nil, fmt.Errorf("migrate documents: %w", err)
	}
	return &GormStore{
		db:       db,
		newID:    uuid.NewString,
		lockRows: supportsRowLocks(db.Dialect().GetName()),
	}, nil
}

// Close closes the database connection
func (s *GormStore) Close() error {
	return s.db.Close()
}

// Create adds a document and returns its generated id
func (s *GormStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	payload, err := encodePayload(fields)
	if err != nil {
		return "", err
	}
	row := documentRow{Collection: collection, DocID: s.newID(), Payload: payload}
	if err := s.db.Create(&row).Error; err != nil {
		return "", fmt.Errorf("create %s: %w", collection, err)
	}
	return row.DocID, nil
}

// Update merges fields into an existing document
func (s *GormStore) Update(ctx context.Context, collection, id string, fields Fields) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.modify(collection, id, false, func(doc Fields) {
		for k, v := range fields {
			doc[k] = v
		}
	})
}

// Delete removes a document if it exists
func (s *GormStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Where("collection = ? AND doc_id = ?", collection, id).Delete(&documentRow{}).Error
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, err)
	}
	return nil
}

// GetAll returns the collection's documents in creation order
func (s *GormStore) GetAll(ctx context.Context, collection string) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []documentRow
	if err := s.db.Where("collection = ?", collection).Order("id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		fields, err := decodePayload(row.Payload)
		if err != nil {
			return nil, fmt.Errorf("%s/%s: %w", collection, row.DocID, err)
		}
		docs = append(docs, Document{ID: row.DocID, Fields: fields})
	}
	return docs, nil
}

// GetOne returns the fields of a single document
func (s *GormStore) GetOne(ctx context.Context, collection, id string) (Fields, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var row documentRow
	err := s.db.Where("collection = ? AND doc_id = ?", collection, id).First(&row).Error
	if gorm.IsRecordNotFoundError(err) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return decodePayload(row.Payload)
}

// ArrayUnion appends missing values to an array field, creating the document
func (s *GormStore) ArrayUnion(ctx context.Context, collection, id, field string, values ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.modify(collection, id, true, func(doc Fields) {
		doc[field] = unionValues(doc[field], values)
	})
}

// modify applies fn to a document inside a transaction. On postgres the row
// is read FOR UPDATE so concurrent read-modify-writes of one document
// serialize. An insert that loses a race with another upsert is retried as
// an update of the winner's row.
func (s *GormStore) modify(collection, id string, upsert bool, fn func(Fields)) error {
	err := s.modifyOnce(collection, id, upsert, fn)
	if upsert && isUniqueViolation(err) {
		return s.modifyOnce(collection, id, false, fn)
	}
	return err
}

func (s *GormStore) modifyOnce(collection, id string, upsert bool, fn func(Fields)) error {
	tx := s.db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin: %w", tx.Error)
	}

	query := tx
	if s.lockRows {
		query = tx.Set("gorm:query_option", "FOR UPDATE")
	}

	var row documentRow
	err := query.Where("collection = ? AND doc_id = ?", collection, id).First(&row).Error
	switch {
	case gorm.IsRecordNotFoundError(err) && upsert:
		doc := Fields{}
		fn(doc)
		payload, err := encodePayload(doc)
		if err != nil {
			tx.Rollback()
			return err
		}
		row = documentRow{Collection: collection, DocID: id, Payload: payload}
		if err := tx.Create(&row).Error; err != nil {
			tx.Rollback()
			return fmt.Errorf("create %s/%s: %w", collection, id, err)
		}
		return tx.Commit().Error
	case gorm.IsRecordNotFoundError(err):
		tx.Rollback()
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	case err != nil:
		tx.Rollback()
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}

	doc, err := decodePayload(row.Payload)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%s/%s: %w", collection, id, err)
	}
	fn(doc)
	payload, err := encodePayload(doc)
	if err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Model(&row).Update("payload", payload).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("update %s/%s: %w", collection, id, err)
	}
	return tx.Commit().Error
}

// isUniqueViolation reports whether err is a unique index conflict
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

// supportsRowLocks reports whether the dialect accepts SELECT ... FOR UPDATE
func supportsRowLocks(dialect string) bool {
	return dialect == "postgres"
}

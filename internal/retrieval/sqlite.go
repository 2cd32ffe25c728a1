package retrieval

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"
)

// Compile-time check that SQLiteStore implements VectorStore.
var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore is a VectorStore backed by SQLite. The default DSN is
// ":memory:", keeping the index single-process and non-persistent like
// MemoryStore while exercising the same interface a durable or
// ANN-capable backend would implement.
type SQLiteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT NOT NULL,
	tenant      TEXT NOT NULL,
	doc_type    TEXT NOT NULL DEFAULT '',
	content     TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	metadata    TEXT NOT NULL DEFAULT '{}',
	inserted_at TEXT NOT NULL,
	PRIMARY KEY (tenant, id)
);
CREATE INDEX IF NOT EXISTS idx_documents_tenant ON documents(tenant);
`

// OpenSQLite opens (or creates) the documents table at the given DSN.
// Pass ":memory:" for an in-memory index.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection avoids "database is locked" under concurrent writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// tenantDim returns the established embedding dimension for a tenant,
// or 0 when the partition is empty.
func (s *SQLiteStore) tenantDim(tenant string) (int, error) {
	var blobLen sql.NullInt64
	err := s.db.QueryRow(
		"SELECT length(embedding) FROM documents WHERE tenant = ? LIMIT 1", tenant,
	).Scan(&blobLen)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying tenant dimension: %w", err)
	}
	if !blobLen.Valid {
		return 0, nil
	}
	return int(blobLen.Int64) / 4, nil
}

// Insert stores a document, enforcing the tenant's dimensionality.
func (s *SQLiteStore) Insert(doc Document) error {
	if doc.Tenant == "" {
		return fmt.Errorf("document tenant must not be empty")
	}
	if doc.ID == "" {
		return fmt.Errorf("document id must not be empty")
	}
	if len(doc.Embedding) == 0 {
		return fmt.Errorf("document embedding must not be empty")
	}

	dim, err := s.tenantDim(doc.Tenant)
	if err != nil {
		return err
	}
	if dim != 0 && len(doc.Embedding) != dim {
		return &DimensionMismatchError{Tenant: doc.Tenant, Want: dim, Got: len(doc.Embedding)}
	}

	insertedAt := doc.InsertedAt
	if insertedAt.IsZero() {
		insertedAt = time.Now().UTC()
	}
	metadata, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO documents (id, tenant, doc_type, content, embedding, metadata, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant, id) DO UPDATE SET
			doc_type = excluded.doc_type,
			content = excluded.content,
			embedding = excluded.embedding,
			metadata = excluded.metadata,
			inserted_at = excluded.inserted_at`,
		doc.ID, doc.Tenant, doc.DocType, doc.Content,
		encodeFloat32s(doc.Embedding), string(metadata), insertedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.ID, err)
	}
	return nil
}

// Search performs a brute-force cosine scan over the tenant's partition.
func (s *SQLiteStore) Search(ctx context.Context, tenant string, vector []float32, docType string, limit int) ([]ScoredDocument, error) {
	dim, err := s.tenantDim(tenant)
	if err != nil {
		return nil, err
	}
	if dim == 0 {
		return nil, nil
	}
	if len(vector) != dim {
		return nil, &DimensionMismatchError{Tenant: tenant, Want: dim, Got: len(vector)}
	}

	query := `SELECT id, doc_type, content, embedding, metadata, inserted_at FROM documents WHERE tenant = ?`
	args := []any{tenant}
	if docType != "" {
		query += ` AND doc_type = ?`
		args = append(args, docType)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	var hits []ScoredDocument
	for rows.Next() {
		var doc Document
		var blob []byte
		var metadata, insertedAt string
		if err := rows.Scan(&doc.ID, &doc.DocType, &doc.Content, &blob, &metadata, &insertedAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		embedding, err := decodeFloat32s(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", doc.ID, err)
		}
		doc.Embedding = embedding
		doc.Tenant = tenant
		if err := json.Unmarshal([]byte(metadata), &doc.Metadata); err != nil {
			return nil, fmt.Errorf("parsing metadata for %s: %w", doc.ID, err)
		}
		t, err := time.Parse(time.RFC3339, insertedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing inserted_at for %s: %w", doc.ID, err)
		}
		doc.InsertedAt = t
		hits = append(hits, ScoredDocument{Document: doc, Score: cosine(vector, embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return rankAndTruncate(hits, limit), nil
}

// Delete removes a document by ID from the tenant's partition.
func (s *SQLiteStore) Delete(tenant, id string) error {
	res, err := s.db.Exec("DELETE FROM documents WHERE tenant = ? AND id = ?", tenant, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("document %s not found", id)
	}
	return nil
}

// Clear removes every document under the tenant.
func (s *SQLiteStore) Clear(tenant string) error {
	_, err := s.db.Exec("DELETE FROM documents WHERE tenant = ?", tenant)
	if err != nil {
		return fmt.Errorf("clearing tenant %s: %w", tenant, err)
	}
	return nil
}

// Count returns the number of documents stored for the tenant.
func (s *SQLiteStore) Count(tenant string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM documents WHERE tenant = ?", tenant).Scan(&count)
	return count, err
}

// encodeFloat32s serializes a float32 slice to little-endian bytes.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes little-endian bytes into a float32 slice.
// A length that is not a multiple of 4 indicates data corruption.
func decodeFloat32s(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

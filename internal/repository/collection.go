package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/timmy/itinerary-ingest/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Resource is the untyped view of a collection used by the REST handler.
type Resource interface {
	Name() string
	FindDocs(ctx context.Context, q Query) (interface{}, error)
	GetDoc(ctx context.Context, id string) (interface{}, error)
	CreateDoc(ctx context.Context, body []byte) (interface{}, error)
	UpdateDoc(ctx context.Context, id string, patch []byte, where []Filter) (interface{}, error)
}

// Collection is a gorm-backed document collection.
type Collection[T any, PT interface {
	*T
	domain.Document
}] struct {
	db     *gorm.DB
	name   string
	fields map[string]*schema.Field // json name -> field
}

var schemaCache sync.Map

// NewCollection creates a collection over the table of T.
func NewCollection[T any, PT interface {
	*T
	domain.Document
}](db *gorm.DB, name string) (*Collection[T, PT], error) {
	sch, err := schema.Parse(new(T), &schemaCache, db.NamingStrategy)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema for %s: %w", name, err)
	}

	fields := make(map[string]*schema.Field, len(sch.Fields))
	for _, f := range sch.Fields {
		if f.DBName == "" {
			continue
		}
		jsonName := strings.Split(f.Tag.Get("json"), ",")[0]
		if jsonName == "-" {
			continue
		}
		if jsonName == "" {
			jsonName = f.DBName
		}
		fields[jsonName] = f
	}

	return &Collection[T, PT]{db: db, name: name, fields: fields}, nil
}

// Name returns the collection name.
func (c *Collection[T, PT]) Name() string {
	return c.name
}

// Find returns one page of documents matching q.
func (c *Collection[T, PT]) Find(ctx context.Context, q Query) (*domain.Page[T], error) {
	tx := c.db.WithContext(ctx).Model(new(T))
	for _, f := range q.Filters {
		var err error
		if tx, err = c.applyFilter(tx, f); err != nil {
			return nil, err
		}
	}
	tx = tx.Session(&gorm.Session{})

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count %s: %w", c.name, err)
	}

	order, err := c.orderClause(q.Sort)
	if err != nil {
		return nil, err
	}

	limit := normalizeLimit(q.Limit)
	page := q.Page
	if page < 1 {
		page = 1
	}

	docs := make([]T, 0)
	if err := tx.Order(order).Limit(limit).Offset((page - 1) * limit).Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.name, err)
	}

	return &domain.Page[T]{
		Docs:        docs,
		TotalDocs:   total,
		Limit:       limit,
		Page:        page,
		HasNextPage: int64(page*limit) < total,
	}, nil
}

// Get retrieves a document by ID.
func (c *Collection[T, PT]) Get(ctx context.Context, id string) (PT, error) {
	doc := PT(new(T))
	if err := c.db.WithContext(ctx).First(doc, "id = ?", id).Error; err != nil {
		return nil, c.translate(err, id)
	}
	return doc, nil
}

// Create inserts a document, assigning an ID when absent.
// A uniqueness violation returns domain.ErrConflict.
func (c *Collection[T, PT]) Create(ctx context.Context, doc PT) error {
	if doc.DocumentID() == "" {
		doc.SetDocumentID(uuid.NewString())
	}
	if err := c.db.WithContext(ctx).Create(doc).Error; err != nil {
		return c.translate(err, doc.DocumentID())
	}
	return nil
}

// Update merges a JSON patch into the stored document and writes only the patched columns.
// When where is non-empty the write only happens if the stored document matches
// every filter; otherwise it returns domain.ErrConflict.
func (c *Collection[T, PT]) Update(ctx context.Context, id string, patch []byte, where ...Filter) (PT, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(patch, &keys); err != nil {
		return nil, fmt.Errorf("%w: patch must be a JSON object: %v", domain.ErrInvalidInput, err)
	}

	cols := make([]string, 0, len(keys)+1)
	for key := range keys {
		switch key {
		case "id", "created_at", "updated_at":
			continue
		}
		f, ok := c.fields[key]
		if !ok {
			return nil, fmt.Errorf("%w: unknown field %q on %s", domain.ErrInvalidInput, key, c.name)
		}
		cols = append(cols, f.DBName)
	}

	tx := c.db.WithContext(ctx)
	for _, f := range where {
		var err error
		if tx, err = c.applyFilter(tx, f); err != nil {
			return nil, err
		}
	}

	doc, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(patch, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	doc.SetDocumentID(id)

	cols = append(cols, "updated_at")
	res := tx.Model(doc).Select(cols).Updates(doc)
	if res.Error != nil {
		return nil, c.translate(res.Error, id)
	}
	if len(where) > 0 && res.RowsAffected == 0 {
		return nil, fmt.Errorf("%s %q: precondition failed: %w", c.name, id, domain.ErrConflict)
	}
	return doc, nil
}

// FindDocs implements Resource.
func (c *Collection[T, PT]) FindDocs(ctx context.Context, q Query) (interface{}, error) {
	return c.Find(ctx, q)
}

// GetDoc implements Resource.
func (c *Collection[T, PT]) GetDoc(ctx context.Context, id string) (interface{}, error) {
	return c.Get(ctx, id)
}

// CreateDoc implements Resource.
func (c *Collection[T, PT]) CreateDoc(ctx context.Context, body []byte) (interface{}, error) {
	doc := PT(new(T))
	if err := json.Unmarshal(body, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if err := c.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// UpdateDoc implements Resource.
func (c *Collection[T, PT]) UpdateDoc(ctx context.Context, id string, patch []byte, where []Filter) (interface{}, error) {
	return c.Update(ctx, id, patch, where...)
}

func (c *Collection[T, PT]) applyFilter(tx *gorm.DB, f Filter) (*gorm.DB, error) {
	field, ok := c.fields[f.Field]
	if !ok {
		return nil, fmt.Errorf("%w: unknown field %q on %s", domain.ErrInvalidInput, f.Field, c.name)
	}
	if len(f.Values) == 0 {
		if f.Op == OpIn {
			// empty IN matches nothing
			return tx.Where("1 = 0"), nil
		}
		return nil, fmt.Errorf("%w: missing value for %q", domain.ErrInvalidInput, f.Field)
	}

	values := make([]interface{}, 0, len(f.Values))
	for _, raw := range f.Values {
		v, err := coerce(field, raw)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}

	col := c.db.Statement.Quote(field.DBName)
	switch f.Op {
	case OpIn:
		return tx.Where(col+" IN ?", values), nil
	case OpNe:
		return tx.Where(col+" <> ?", values[0]), nil
	case OpLt:
		return tx.Where(col+" < ?", values[0]), nil
	case OpGt:
		return tx.Where(col+" > ?", values[0]), nil
	default:
		return tx.Where(col+" = ?", values[0]), nil
	}
}

func (c *Collection[T, PT]) orderClause(sort string) (string, error) {
	if sort == "" {
		return "created_at ASC, id ASC", nil
	}
	dir := "ASC"
	name := sort
	if strings.HasPrefix(sort, "-") {
		dir = "DESC"
		name = sort[1:]
	}
	field, ok := c.fields[name]
	if !ok {
		return "", fmt.Errorf("%w: unknown sort field %q on %s", domain.ErrInvalidInput, name, c.name)
	}
	return fmt.Sprintf("%s %s, id ASC", field.DBName, dir), nil
}

func (c *Collection[T, PT]) translate(err error, id string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return fmt.Errorf("%s %q: %w", c.name, id, domain.ErrNotFound)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%s %q: %w", c.name, id, domain.ErrConflict)
	default:
		return fmt.Errorf("%s %q: %w", c.name, id, err)
	}
}

var timeType = reflect.TypeOf(time.Time{})

// coerce converts a query string value to the Go type of the field.
func coerce(field *schema.Field, raw string) (interface{}, error) {
	t := field.FieldType
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == timeType {
		ts, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an RFC3339 time", domain.ErrInvalidInput, raw)
		}
		return ts, nil
	}

	switch t.Kind() {
	case reflect.String:
		return raw, nil
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a bool", domain.ErrInvalidInput, raw)
		}
		return b, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", domain.ErrInvalidInput, raw)
		}
		return n, nil
	case reflect.Float32, reflect.Float64:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidInput, raw)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("%w: field %q is not filterable", domain.ErrInvalidInput, field.DBName)
	}
}

package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"

	"brandhub.dev/demodata/internal/docstore"
	"brandhub.dev/demodata/internal/ids"
)

// Documents stores every collection in a single documents table.
type Documents struct {
	db     *sql.DB
	d      Dialect
	maxOps int
}

var _ docstore.Store = (*Documents)(nil)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// NewDocuments wraps db. maxOps <= 0 uses docstore.DefaultMaxBatchOps.
func NewDocuments(db *sql.DB, d Dialect, maxOps int) *Documents {
	if maxOps <= 0 {
		maxOps = docstore.DefaultMaxBatchOps
	}
	return &Documents{db: db, d: d, maxOps: maxOps}
}

func (s *Documents) MaxBatchOps() int { return s.maxOps }

func (s *Documents) NewRef(collection string) docstore.Ref {
	return docstore.Ref{Collection: collection, ID: ids.New()}
}

// Ping checks connectivity for readiness probes.
func (s *Documents) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Documents) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	if !ref.Valid() {
		return docstore.Snapshot{}, &docstore.Error{Op: "get", Ref: ref, Code: codes.InvalidArgument, Err: docstore.ErrInvalidRef}
	}
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select data from documents where collection = %s and id = %s`, s.d.Bind(1), s.d.Bind(2)),
		ref.Collection, ref.ID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Snapshot{}, &docstore.Error{Op: "get", Ref: ref, Code: codes.NotFound, Err: docstore.ErrNotFound}
	}
	if err != nil {
		return docstore.Snapshot{}, s.wrap("get", ref, err)
	}
	data, err := decode(raw)
	if err != nil {
		return docstore.Snapshot{}, &docstore.Error{Op: "get", Ref: ref, Code: codes.DataLoss, Err: err}
	}
	return docstore.Snapshot{Ref: ref, Data: data}, nil
}

func (s *Documents) Set(ctx context.Context, ref docstore.Ref, data docstore.Document, opts docstore.SetOptions) error {
	return s.set(ctx, s.db, ref, data, opts)
}

func (s *Documents) Add(ctx context.Context, collection string, data docstore.Document) (docstore.Ref, error) {
	ref := s.NewRef(collection)
	if err := s.Set(ctx, ref, data, docstore.SetOptions{}); err != nil {
		return docstore.Ref{}, err
	}
	return ref, nil
}

func (s *Documents) Delete(ctx context.Context, ref docstore.Ref) error {
	return s.delete(ctx, s.db, ref)
}

func (s *Documents) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Snapshot, error) {
	if collection == "" {
		return nil, &docstore.Error{Op: "query", Code: codes.InvalidArgument, Err: docstore.ErrInvalidRef}
	}
	var (
		where = []string{"collection = " + s.d.Bind(1)}
		args  = []any{collection}
	)
	if q.OnlyTagged {
		args = append(args, true)
		where = append(where, "demo_tag = "+s.d.Bind(len(args)))
	}
	if q.StartAfter != "" {
		args = append(args, q.StartAfter)
		where = append(where, "id > "+s.d.Bind(len(args)))
	}
	query := `select id, data from documents where ` + strings.Join(where, " and ") + ` order by id`
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " limit " + s.d.Bind(len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap("query", docstore.Ref{Collection: collection}, err)
	}
	defer rows.Close()

	var res []docstore.Snapshot
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, s.wrap("query", docstore.Ref{Collection: collection}, err)
		}
		data, err := decode(raw)
		if err != nil {
			return nil, &docstore.Error{Op: "query", Ref: docstore.Ref{Collection: collection, ID: id}, Code: codes.DataLoss, Err: err}
		}
		res = append(res, docstore.Snapshot{Ref: docstore.Ref{Collection: collection, ID: id}, Data: data})
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap("query", docstore.Ref{Collection: collection}, err)
	}
	return res, nil
}

func (s *Documents) Batch() docstore.Batch { return &sqlBatch{store: s} }

func (s *Documents) set(ctx context.Context, ex execer, ref docstore.Ref, data docstore.Document, opts docstore.SetOptions) error {
	if !ref.Valid() {
		return &docstore.Error{Op: "set", Ref: ref, Code: codes.InvalidArgument, Err: docstore.ErrInvalidRef}
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return &docstore.Error{Op: "set", Ref: ref, Code: codes.InvalidArgument, Err: err}
	}
	// demo_tag follows data.demoTag when the write carries it; merges without it keep the stored flag
	var tagUpdate any
	if _, ok := data[docstore.TagField]; ok {
		tagUpdate = data.Tagged()
	}
	if _, err := ex.ExecContext(ctx, s.upsertSQL(opts.Merge),
		ref.Collection, ref.ID, string(payload), data.Tagged(), tagUpdate,
	); err != nil {
		return s.wrap("set", ref, err)
	}
	return nil
}

func (s *Documents) delete(ctx context.Context, ex execer, ref docstore.Ref) error {
	if !ref.Valid() {
		return &docstore.Error{Op: "delete", Ref: ref, Code: codes.InvalidArgument, Err: docstore.ErrInvalidRef}
	}
	if _, err := ex.ExecContext(ctx,
		fmt.Sprintf(`delete from documents where collection = %s and id = %s`, s.d.Bind(1), s.d.Bind(2)),
		ref.Collection, ref.ID,
	); err != nil {
		return s.wrap("delete", ref, err)
	}
	return nil
}

func (s *Documents) upsertSQL(merge bool) string {
	b := s.d.Bind
	jsonParam := b(3)
	if s.d.Name == Postgres.Name {
		jsonParam = "cast(" + b(3) + " as jsonb)"
	}
	// both variants reference all five parameters so postgres can infer their types
	dataExpr := "excluded.data"
	tagExpr := "coalesce(" + b(5) + ", excluded.demo_tag)"
	if merge {
		dataExpr = "json_patch(documents.data, excluded.data)"
		if s.d.Name == Postgres.Name {
			dataExpr = "documents.data || excluded.data"
		}
		tagExpr = "coalesce(" + b(5) + ", documents.demo_tag)"
	}
	return fmt.Sprintf(`insert into documents (collection, id, data, demo_tag) values (%s, %s, %s, %s)
		on conflict (collection, id) do update set
			data = %s,
			demo_tag = %s,
			updated_at = current_timestamp`,
		b(1), b(2), jsonParam, b(4), dataExpr, tagExpr)
}

func (s *Documents) wrap(op string, ref docstore.Ref, err error) error {
	code := s.d.Code(err)
	switch {
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return &docstore.Error{Op: op, Ref: ref, Code: code, Err: err}
}

func decode(raw []byte) (docstore.Document, error) {
	var data docstore.Document
	if len(raw) == 0 {
		return docstore.Document{}, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return data, nil
}

type sqlBatch struct {
	store *Documents
	ops   []docstore.Op
}

func (b *sqlBatch) Set(ref docstore.Ref, data docstore.Document, opts docstore.SetOptions) {
	b.ops = append(b.ops, docstore.Op{Kind: docstore.OpSet, Ref: ref, Data: data.Clone(), Opts: opts})
}

func (b *sqlBatch) Delete(ref docstore.Ref) {
	b.ops = append(b.ops, docstore.Op{Kind: docstore.OpDelete, Ref: ref})
}

func (b *sqlBatch) Len() int { return len(b.ops) }

func (b *sqlBatch) Commit(ctx context.Context) error {
	s := b.store
	if len(b.ops) > s.maxOps {
		return &docstore.Error{Op: "commit", Code: codes.InvalidArgument, Err: docstore.ErrBatchTooLarge}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.wrap("commit", docstore.Ref{}, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range b.ops {
		switch op.Kind {
		case docstore.OpSet:
			err = s.set(ctx, tx, op.Ref, op.Data, op.Opts)
		case docstore.OpDelete:
			err = s.delete(ctx, tx, op.Ref)
		}
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return s.wrap("commit", docstore.Ref{}, err)
	}
	b.ops = nil
	return nil
}

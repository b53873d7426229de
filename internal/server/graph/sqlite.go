package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store on an embedded SQLite database. A single
// connection is used, so write transactions are serialized by the pool.
type SQLiteStore struct {
	db  *sql.DB
	geo Geocoder
}

// NewSQLite opens (and creates if needed) the database at dbPath.
// ":memory:" yields a private in-memory database.
func NewSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Verify connectivity
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, pragma := range allPragmas() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	for _, stmt := range allSchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, geo: CoordinateGeocoder{}}, nil
}

// SetGeocoder replaces the geocoder used for distance predicates.
func (s *SQLiteStore) SetGeocoder(g Geocoder) {
	s.geo = g
}

// Close closes the SQLite connection
func (s *SQLiteStore) Close(ctx context.Context) error {
	return s.db.Close()
}

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &sqliteTx{tx: tx, geo: s.geo}, nil
}

type sqliteTx struct {
	tx   *sql.Tx
	geo  Geocoder
	done bool
}

func (t *sqliteTx) CreateNode(ctx context.Context, nodeType string, props map[string]any) (*Node, error) {
	n := &Node{ID: NewID(), Type: nodeType, Props: cloneProps(props)}
	propsJSON, err := json.Marshal(n.Props)
	if err != nil {
		return nil, fmt.Errorf("marshaling properties: %w", err)
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO nodes (id, type, properties) VALUES (?, ?, ?)`,
		n.ID, n.Type, string(propsJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting node: %w", err)
	}
	return n, nil
}

func (t *sqliteTx) CreateRelationship(ctx context.Context, relType, startID, endID string, props map[string]any) (*Relationship, error) {
	for _, id := range []string{startID, endID} {
		if _, err := t.GetNode(ctx, id); err != nil {
			return nil, err
		}
	}

	r := &Relationship{ID: NewID(), Type: relType, StartID: startID, EndID: endID, Props: cloneProps(props)}
	propsJSON, err := json.Marshal(r.Props)
	if err != nil {
		return nil, fmt.Errorf("marshaling properties: %w", err)
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO relationships (id, type, start_id, end_id, properties) VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Type, r.StartID, r.EndID, string(propsJSON),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting relationship: %w", err)
	}
	return r, nil
}

func (t *sqliteTx) GetNode(ctx context.Context, id string) (*Node, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT id, type, properties FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("node", id)
	}
	return n, err
}

func (t *sqliteTx) GetRelationship(ctx context.Context, id string) (*Relationship, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, type, start_id, end_id, properties FROM relationships WHERE id = ?`, id)
	r, err := scanRelationship(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("relationship", id)
	}
	return r, err
}

func (t *sqliteTx) FindNodes(ctx context.Context, preds []Predicate) ([]*Node, error) {
	query := `SELECT id, type, properties FROM nodes`
	var args []any
	if typeName, ok := TypeOf(preds); ok {
		query += ` WHERE type = ?`
		args = append(args, typeName)
	}
	query += ` ORDER BY seq`

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	defer rows.Close()

	var nodes []*Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return Filter(ctx, nodes, preds, t.geo)
}

func (t *sqliteTx) Relationships(ctx context.Context, nodeID, relType string, dir Direction) ([]*Relationship, error) {
	if _, err := t.GetNode(ctx, nodeID); err != nil {
		return nil, err
	}

	query := `SELECT id, type, start_id, end_id, properties FROM relationships WHERE `
	args := []any{}
	switch dir {
	case Outgoing:
		query += `start_id = ?`
		args = append(args, nodeID)
	case Incoming:
		query += `end_id = ?`
		args = append(args, nodeID)
	default:
		query += `(start_id = ? OR end_id = ?)`
		args = append(args, nodeID, nodeID)
	}
	if relType != "" {
		query += ` AND type = ?`
		args = append(args, relType)
	}
	query += ` ORDER BY seq`

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	defer rows.Close()

	var rels []*Relationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, rows.Err()
}

func (t *sqliteTx) SetProperties(ctx context.Context, obj Object, props map[string]any) error {
	table := "nodes"
	var current map[string]any
	if obj.IsRelationship() {
		table = "relationships"
		r, err := t.GetRelationship(ctx, obj.ObjectID())
		if err != nil {
			return err
		}
		current = r.Props
	} else {
		n, err := t.GetNode(ctx, obj.ObjectID())
		if err != nil {
			return err
		}
		current = n.Props
	}
	maps.Copy(current, props)

	propsJSON, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("marshaling properties: %w", err)
	}
	_, err = t.tx.ExecContext(ctx,
		`UPDATE `+table+` SET properties = ? WHERE id = ?`, string(propsJSON), obj.ObjectID())
	if err != nil {
		return fmt.Errorf("updating properties: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteNode(ctx context.Context, id string, cascade bool) error {
	if _, err := t.GetNode(ctx, id); err != nil {
		return err
	}

	var attached int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM relationships WHERE start_id = ? OR end_id = ?`, id, id).Scan(&attached)
	if err != nil {
		return fmt.Errorf("counting relationships: %w", err)
	}
	if attached > 0 {
		if !cascade {
			return ErrHasRelationships
		}
		if _, err := t.tx.ExecContext(ctx,
			`DELETE FROM relationships WHERE start_id = ? OR end_id = ?`, id, id); err != nil {
			return fmt.Errorf("deleting relationships: %w", err)
		}
	}

	if _, err := t.tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}
	return nil
}

func (t *sqliteTx) DeleteRelationship(ctx context.Context, id string) error {
	result, err := t.tx.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting relationship: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound("relationship", id)
	}
	return nil
}

func (t *sqliteTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (*Node, error) {
	var n Node
	var propsStr string
	if err := row.Scan(&n.ID, &n.Type, &propsStr); err != nil {
		return nil, err
	}
	props, err := decodeProps(propsStr)
	if err != nil {
		return nil, err
	}
	n.Props = props
	return &n, nil
}

func scanRelationship(row scanner) (*Relationship, error) {
	var r Relationship
	var propsStr string
	if err := row.Scan(&r.ID, &r.Type, &r.StartID, &r.EndID, &propsStr); err != nil {
		return nil, err
	}
	props, err := decodeProps(propsStr)
	if err != nil {
		return nil, err
	}
	r.Props = props
	return &r, nil
}

func decodeProps(s string) (map[string]any, error) {
	props := make(map[string]any)
	if s == "" {
		return props, nil
	}
	if err := json.Unmarshal([]byte(s), &props); err != nil {
		return nil, fmt.Errorf("unmarshaling properties: %w", err)
	}
	if props == nil {
		props = make(map[string]any)
	}
	return props, nil
}

package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore implements Store on a Neo4j server. Nodes carry the label Node and
// relationships the type REL; the domain type and the JSON encoded property
// map are stored as properties since Neo4j does not support nested maps.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	geo      Geocoder
}

// Neo4jConfig holds Neo4j connection configuration
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// NewNeo4j connects to Neo4j and ensures the id indexes exist.
func NewNeo4j(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	// Verify connectivity
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	database := cfg.Database
	if database == "" {
		database = "neo4j"
	}
	s := &Neo4jStore{driver: driver, database: database, geo: CoordinateGeocoder{}}
	if err := s.ensureIndexes(ctx); err != nil {
		driver.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Neo4jStore) ensureIndexes(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
	defer session.Close(ctx)

	for _, stmt := range []string{
		`CREATE INDEX node_id IF NOT EXISTS FOR (n:Node) ON (n.id)`,
		`CREATE INDEX node_type IF NOT EXISTS FOR (n:Node) ON (n.type)`,
		`CREATE INDEX rel_id IF NOT EXISTS FOR ()-[r:REL]-() ON (r.id)`,
	} {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		})
		if err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}

// SetGeocoder replaces the geocoder used for distance predicates.
func (s *Neo4jStore) SetGeocoder(g Geocoder) {
	s.geo = g
}

// Close closes the Neo4j connection
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Neo4jStore) Begin(ctx context.Context) (Tx, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	tx, err := session.BeginTransaction(ctx)
	if err != nil {
		session.Close(ctx)
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &neo4jTx{session: session, tx: tx, geo: s.geo}, nil
}

type neo4jTx struct {
	session neo4j.SessionWithContext
	tx      neo4j.ExplicitTransaction
	geo     Geocoder
	done    bool
}

func (t *neo4jTx) collect(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := t.tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

func (t *neo4jTx) CreateNode(ctx context.Context, nodeType string, props map[string]any) (*Node, error) {
	n := &Node{ID: NewID(), Type: nodeType, Props: cloneProps(props)}
	propsJSON, err := json.Marshal(n.Props)
	if err != nil {
		return nil, fmt.Errorf("marshaling properties: %w", err)
	}

	_, err = t.collect(ctx, `CREATE (n:Node {id: $id, type: $type, properties: $properties})`, map[string]any{
		"id":         n.ID,
		"type":       n.Type,
		"properties": string(propsJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("creating node: %w", err)
	}
	return n, nil
}

func (t *neo4jTx) CreateRelationship(ctx context.Context, relType, startID, endID string, props map[string]any) (*Relationship, error) {
	r := &Relationship{ID: NewID(), Type: relType, StartID: startID, EndID: endID, Props: cloneProps(props)}
	propsJSON, err := json.Marshal(r.Props)
	if err != nil {
		return nil, fmt.Errorf("marshaling properties: %w", err)
	}

	query := `
		MATCH (s:Node {id: $start_id})
		MATCH (e:Node {id: $end_id})
		CREATE (s)-[r:REL {id: $id, type: $type, properties: $properties}]->(e)
		RETURN r.id AS id
	`
	records, err := t.collect(ctx, query, map[string]any{
		"start_id":   startID,
		"end_id":     endID,
		"id":         r.ID,
		"type":       relType,
		"properties": string(propsJSON),
	})
	if err != nil {
		return nil, fmt.Errorf("creating relationship: %w", err)
	}
	if len(records) == 0 {
		return nil, notFound("node", startID+" or "+endID)
	}
	return r, nil
}

func (t *neo4jTx) GetNode(ctx context.Context, id string) (*Node, error) {
	records, err := t.collect(ctx,
		`MATCH (n:Node {id: $id}) RETURN n.id AS id, n.type AS type, n.properties AS properties`,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("reading node: %w", err)
	}
	if len(records) == 0 {
		return nil, notFound("node", id)
	}
	return recordNode(records[0])
}

const relColumns = `r.id AS id, r.type AS type, r.properties AS properties, startNode(r).id AS start_id, endNode(r).id AS end_id`

func (t *neo4jTx) GetRelationship(ctx context.Context, id string) (*Relationship, error) {
	records, err := t.collect(ctx,
		`MATCH ()-[r:REL {id: $id}]->() RETURN `+relColumns,
		map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("reading relationship: %w", err)
	}
	if len(records) == 0 {
		return nil, notFound("relationship", id)
	}
	return recordRelationship(records[0])
}

func (t *neo4jTx) FindNodes(ctx context.Context, preds []Predicate) ([]*Node, error) {
	query := `MATCH (n:Node) RETURN n.id AS id, n.type AS type, n.properties AS properties`
	params := map[string]any{}
	if typeName, ok := TypeOf(preds); ok {
		query = `MATCH (n:Node {type: $type}) RETURN n.id AS id, n.type AS type, n.properties AS properties`
		params["type"] = typeName
	}

	records, err := t.collect(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("querying nodes: %w", err)
	}
	nodes := make([]*Node, 0, len(records))
	for _, rec := range records {
		n, err := recordNode(rec)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return Filter(ctx, nodes, preds, t.geo)
}

func (t *neo4jTx) Relationships(ctx context.Context, nodeID, relType string, dir Direction) ([]*Relationship, error) {
	if _, err := t.GetNode(ctx, nodeID); err != nil {
		return nil, err
	}

	pattern := `(n:Node {id: $id})-[r:REL]-()`
	switch dir {
	case Outgoing:
		pattern = `(n:Node {id: $id})-[r:REL]->()`
	case Incoming:
		pattern = `(n:Node {id: $id})<-[r:REL]-()`
	}
	query := `MATCH ` + pattern + ` WHERE $type = '' OR r.type = $type RETURN DISTINCT ` + relColumns

	records, err := t.collect(ctx, query, map[string]any{"id": nodeID, "type": relType})
	if err != nil {
		return nil, fmt.Errorf("querying relationships: %w", err)
	}
	rels := make([]*Relationship, 0, len(records))
	for _, rec := range records {
		r, err := recordRelationship(rec)
		if err != nil {
			return nil, err
		}
		rels = append(rels, r)
	}
	return rels, nil
}

func (t *neo4jTx) SetProperties(ctx context.Context, obj Object, props map[string]any) error {
	var current map[string]any
	query := `MATCH (n:Node {id: $id}) SET n.properties = $properties`
	if obj.IsRelationship() {
		r, err := t.GetRelationship(ctx, obj.ObjectID())
		if err != nil {
			return err
		}
		current = r.Props
		query = `MATCH ()-[n:REL {id: $id}]->() SET n.properties = $properties`
	} else {
		n, err := t.GetNode(ctx, obj.ObjectID())
		if err != nil {
			return err
		}
		current = n.Props
	}
	for k, v := range props {
		current[k] = v
	}

	propsJSON, err := json.Marshal(current)
	if err != nil {
		return fmt.Errorf("marshaling properties: %w", err)
	}
	if _, err := t.collect(ctx, query, map[string]any{"id": obj.ObjectID(), "properties": string(propsJSON)}); err != nil {
		return fmt.Errorf("updating properties: %w", err)
	}
	return nil
}

func (t *neo4jTx) DeleteNode(ctx context.Context, id string, cascade bool) error {
	if _, err := t.GetNode(ctx, id); err != nil {
		return err
	}
	if cascade {
		if _, err := t.collect(ctx, `MATCH (n:Node {id: $id}) DETACH DELETE n`, map[string]any{"id": id}); err != nil {
			return fmt.Errorf("deleting node: %w", err)
		}
		return nil
	}

	records, err := t.collect(ctx,
		`MATCH (n:Node {id: $id}) OPTIONAL MATCH (n)-[r:REL]-() RETURN count(r) AS degree`,
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("counting relationships: %w", err)
	}
	if len(records) > 0 {
		if degree, _ := records[0].Get("degree"); degree != nil && degree.(int64) > 0 {
			return ErrHasRelationships
		}
	}
	if _, err := t.collect(ctx, `MATCH (n:Node {id: $id}) DELETE n`, map[string]any{"id": id}); err != nil {
		return fmt.Errorf("deleting node: %w", err)
	}
	return nil
}

func (t *neo4jTx) DeleteRelationship(ctx context.Context, id string) error {
	records, err := t.collect(ctx,
		`MATCH ()-[r:REL {id: $id}]->() DELETE r RETURN count(*) AS deleted`,
		map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("deleting relationship: %w", err)
	}
	if len(records) == 0 {
		return notFound("relationship", id)
	}
	if deleted, _ := records[0].Get("deleted"); deleted == nil || deleted.(int64) == 0 {
		return notFound("relationship", id)
	}
	return nil
}

func (t *neo4jTx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	defer t.session.Close(ctx)
	return t.tx.Commit(ctx)
}

func (t *neo4jTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.session.Close(ctx)
	return t.tx.Rollback(ctx)
}

func recordNode(rec *neo4j.Record) (*Node, error) {
	id, _ := rec.Get("id")
	typ, _ := rec.Get("type")
	propsStr, _ := rec.Get("properties")

	n := &Node{}
	n.ID, _ = id.(string)
	n.Type, _ = typ.(string)
	s, _ := propsStr.(string)
	props, err := decodeProps(s)
	if err != nil {
		return nil, err
	}
	n.Props = props
	return n, nil
}

func recordRelationship(rec *neo4j.Record) (*Relationship, error) {
	id, _ := rec.Get("id")
	typ, _ := rec.Get("type")
	propsStr, _ := rec.Get("properties")
	start, _ := rec.Get("start_id")
	end, _ := rec.Get("end_id")

	r := &Relationship{}
	r.ID, _ = id.(string)
	r.Type, _ = typ.(string)
	r.StartID, _ = start.(string)
	r.EndID, _ = end.(string)
	s, _ := propsStr.(string)
	props, err := decodeProps(s)
	if err != nil {
		return nil, err
	}
	r.Props = props
	return r, nil
}

var (
	_ Store = (*Neo4jStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

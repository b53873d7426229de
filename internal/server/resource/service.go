package resource

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/systemshift/graphrest/internal/server/graph"
	"github.com/systemshift/graphrest/internal/server/mutation"
	"github.com/systemshift/graphrest/internal/server/schema"
	"github.com/systemshift/graphrest/internal/server/search"
)

// Authorizer gates a method on a resource signature.
type Authorizer interface {
	Authorize(ctx context.Context, signature, method string) error
}

// Request is one REST call.
type Request struct {
	Method   string
	Segments []string
	Params   search.Params
	Body     *graph.PropertySet
}

// Result is what a verb produced. Single results render as one object,
// everything else as a list.
type Result struct {
	Status   int
	Objects  []graph.Object
	Single   bool
	View     string
	Location string
	Allow    []string
	NoBody   bool

	Total    int
	Page     int
	PageSize int
}

// Service resolves paths and runs verbs with the executor it was given.
type Service struct {
	registry *schema.Registry
	exec     *mutation.Executor
	builder  *search.Builder
	grants   Authorizer
	table    []Pattern

	baseURI         string
	idProperty      string
	defaultPageSize int
	maxPageSize     int
}

type Option func(*Service)

// WithTable replaces the segment pattern table.
func WithTable(table []Pattern) Option {
	return func(s *Service) { s.table = table }
}

// WithBaseURI prefixes Location headers.
func WithBaseURI(uri string) Option {
	return func(s *Service) { s.baseURI = strings.TrimSuffix(uri, "/") }
}

// WithIDProperty makes Location headers use the value of key instead of the
// object id when the new object has it.
func WithIDProperty(key string) Option {
	return func(s *Service) { s.idProperty = key }
}

// WithPageSize sets the page size used without a pageSize parameter (0 means
// unpaged) and the largest page size accepted (0 means no limit).
func WithPageSize(def, max int) Option {
	return func(s *Service) {
		s.defaultPageSize = def
		s.maxPageSize = max
	}
}

// NewService wires a service. A nil grants allows everything.
func NewService(reg *schema.Registry, exec *mutation.Executor, grants Authorizer, opts ...Option) *Service {
	s := &Service{
		registry: reg,
		exec:     exec,
		builder:  search.NewBuilder(reg),
		grants:   grants,
		table:    DefaultTable(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Get(ctx context.Context, req Request) (*Result, error) {
	req.Method = http.MethodGet
	return s.Handle(ctx, req)
}

func (s *Service) Head(ctx context.Context, req Request) (*Result, error) {
	req.Method = http.MethodHead
	return s.Handle(ctx, req)
}

func (s *Service) Options(ctx context.Context, req Request) (*Result, error) {
	req.Method = http.MethodOptions
	return s.Handle(ctx, req)
}

func (s *Service) Post(ctx context.Context, req Request) (*Result, error) {
	req.Method = http.MethodPost
	return s.Handle(ctx, req)
}

func (s *Service) Put(ctx context.Context, req Request) (*Result, error) {
	req.Method = http.MethodPut
	return s.Handle(ctx, req)
}

func (s *Service) Delete(ctx context.Context, req Request) (*Result, error) {
	req.Method = http.MethodDelete
	return s.Handle(ctx, req)
}

// Handle resolves the path, checks the method and the grant, and runs the verb.
// Path errors surface before any transaction is started.
func (s *Service) Handle(ctx context.Context, req Request) (*Result, error) {
	res, err := s.Resolve(req.Segments)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(req.Method)
	allow := Allowed(res)
	if !slices.Contains(allow, method) {
		return nil, &MethodError{Method: method, Allow: allow}
	}
	if s.grants != nil {
		if err := s.grants.Authorize(ctx, s.Signature(res), method); err != nil {
			return nil, err
		}
	}
	// search fields are checked before any transaction when the collection
	// type is known from the path alone
	if name, ok := s.searchType(res); ok && method != http.MethodPost && method != http.MethodOptions {
		if _, err := s.builder.Build(name, req.Params); err != nil {
			return nil, err
		}
	}

	switch method {
	case http.MethodGet:
		return s.get(ctx, res, req.Params)
	case http.MethodHead:
		out, err := s.get(ctx, res, req.Params)
		if err != nil {
			return nil, err
		}
		out.NoBody = true
		return out, nil
	case http.MethodOptions:
		return &Result{Status: http.StatusOK, Allow: allow, NoBody: true}, nil
	case http.MethodPost:
		return s.post(ctx, res, req.Body)
	case http.MethodPut:
		return s.put(ctx, res, req.Params, req.Body)
	case http.MethodDelete:
		return s.delete(ctx, res, req.Params)
	}
	return nil, &MethodError{Method: method, Allow: allow}
}

// searchType is the type whose properties filter a collection resource.
// Related collections under an untyped id only know it after loading.
func (s *Service) searchType(res Resource) (string, bool) {
	switch r := bare(res).(type) {
	case TypeResource:
		name, err := s.typeName(r)
		return name, err == nil
	case RelatedResource:
		if r.Source.Type.Raw == "" {
			return "", false
		}
		source, err := s.typeName(r.Source.Type)
		if err != nil {
			return "", false
		}
		rc, ok := s.registry.RelationClassForProperty(source, r.Raw)
		return rc.Target, ok
	}
	return "", false
}

// Resolve reduces segments to one resource and checks it against the registry.
func (s *Service) Resolve(segments []string) (Resource, error) {
	res, err := Reduce(s.table, segments)
	if err != nil {
		return nil, err
	}
	if err := s.validate(res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) validate(res Resource) error {
	switch r := res.(type) {
	case ViewedResource:
		return s.validate(r.Inner)
	case TypeResource:
		_, err := s.nodeType(r)
		return err
	case IDResource, RelationshipEndpointResource:
		return nil
	case TypedIDResource:
		return s.validateNode(r)
	case RelatedResource:
		if err := s.validateNode(r.Source); err != nil {
			return err
		}
		if r.Source.Type.Raw == "" {
			// the source type is only known once the node is loaded
			return nil
		}
		source, _ := s.typeName(r.Source.Type)
		rc, ok := s.registry.RelationClassForProperty(source, r.Raw)
		if !ok {
			return notFoundPath(r.Raw, "no relation "+r.Raw+" on "+source)
		}
		if s.isRelationshipType(rc.Target) {
			return notFoundPath(r.Raw, rc.Target+" is a relationship type")
		}
		return nil
	case RelatedNodeResource:
		return s.validate(r.Related)
	case StaticRelationshipResource:
		return s.validateNode(r.Node)
	case TypeRelationshipResource:
		_, err := s.nodeType(r.Type)
		return err
	}
	return illegalPath(res.URIPart(), "incomplete path")
}

func (s *Service) validateNode(r TypedIDResource) error {
	if r.Type.Raw == "" {
		return nil
	}
	_, err := s.nodeType(r.Type)
	return err
}

// nodeType resolves t to a registered node type. Relationship types are not
// addressable as collections.
func (s *Service) nodeType(t TypeResource) (string, error) {
	name, err := s.typeName(t)
	if err != nil {
		return "", err
	}
	if s.isRelationshipType(name) {
		return "", notFoundPath(t.Raw, name+" is a relationship type")
	}
	return name, nil
}

func (s *Service) isRelationshipType(name string) bool {
	t, ok := s.registry.Type(name)
	return ok && t.Kind == schema.KindRelationship
}

func (s *Service) typeName(t TypeResource) (string, error) {
	name, ok := s.registry.ResolveType(t.Raw)
	if !ok {
		return "", notFoundPath(t.Raw, "unknown type")
	}
	return name, nil
}

// Signature is the grant key of a resource: type names in their registered
// form joined by "/", ids as "_id", directions and endpoints literally, views
// left out.
func (s *Service) Signature(res Resource) string {
	switch r := res.(type) {
	case ViewedResource:
		return s.Signature(r.Inner)
	case TypeResource:
		return s.signatureType(r)
	case IDResource:
		return "_id"
	case TypedIDResource:
		if r.Type.Raw == "" {
			return "_id"
		}
		return s.signatureType(r.Type) + "/_id"
	case DirectionResource:
		return r.Direction.String()
	case EndpointResource:
		return string(r.End)
	case RelatedResource:
		return s.Signature(r.Source) + "/" + schema.NormalizeEntityName(r.Raw)
	case RelatedNodeResource:
		return s.Signature(r.Related) + "/_id"
	case StaticRelationshipResource:
		return s.Signature(r.Node) + "/" + r.Direction.String()
	case TypeRelationshipResource:
		return s.signatureType(r.Type) + "/" + r.Direction.String()
	case RelationshipEndpointResource:
		return "_id/" + string(r.End)
	}
	return ""
}

func (s *Service) signatureType(t TypeResource) string {
	if name, ok := s.registry.ResolveType(t.Raw); ok {
		return name
	}
	return schema.NormalizeEntityName(t.Raw)
}

var (
	readMethods       = []string{http.MethodGet, http.MethodHead, http.MethodOptions}
	collectionMethods = []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPost, http.MethodPut, http.MethodDelete}
	objectMethods     = []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete}
)

// Allowed lists the methods a resource supports.
func Allowed(res Resource) []string {
	switch r := res.(type) {
	case ViewedResource:
		return Allowed(r.Inner)
	case TypeResource, RelatedResource:
		return slices.Clone(collectionMethods)
	case IDResource, TypedIDResource, RelatedNodeResource, StaticRelationshipResource, TypeRelationshipResource:
		return slices.Clone(objectMethods)
	}
	return slices.Clone(readMethods)
}

func (s *Service) location(res Resource, obj graph.Object) string {
	id := obj.ObjectID()
	if s.idProperty != "" {
		if v, ok := obj.Property(s.idProperty); ok && v != nil {
			if str := graph.FormatValue(v); str != "" {
				id = str
			}
		}
	}
	return fmt.Sprintf("%s/%s/%s", s.baseURI, res.URIPart(), id)
}

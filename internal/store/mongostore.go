package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/researchflow/researchflow/types"
)

// MongoConfig configures the durable store's connection.
type MongoConfig struct {
	URI      string `yaml:"uri" json:"uri"`
	Database string `yaml:"database" json:"database"`
}

// MongoStore is the durable Store implementation, one collection per
// record kind, matching the original system's Beanie document layout
// (sessions, sources, findings, pipeline_data, reports) translated to
// plain BSON documents.
type MongoStore struct {
	client   *mongo.Client
	sessions *mongo.Collection
	sources  *mongo.Collection
	findings *mongo.Collection
	pipeline *mongo.Collection
	reports  *mongo.Collection
}

// NewMongoStore connects to Mongo and returns a MongoStore. It pings once
// at construction so configuration errors surface immediately rather than
// on the first stage write.
func NewMongoStore(ctx context.Context, cfg MongoConfig) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("store: connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("store: ping mongo: %w", err)
	}

	db := client.Database(cfg.Database)
	return &MongoStore{
		client:   client,
		sessions: db.Collection("sessions"),
		sources:  db.Collection("sources"),
		findings: db.Collection("findings"),
		pipeline: db.Collection("pipeline_data"),
		reports:  db.Collection("reports"),
	}, nil
}

// Close disconnects from Mongo.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) CreateSession(ctx context.Context, session *types.Session) error {
	_, err := s.sessions.InsertOne(ctx, session)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

func (s *MongoStore) GetSession(ctx context.Context, id string) (*types.Session, error) {
	var session types.Session
	err := s.sessions.FindOne(ctx, bson.M{"id": id}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	return &session, nil
}

func (s *MongoStore) UpdateSession(ctx context.Context, session *types.Session) error {
	res, err := s.sessions.ReplaceOne(ctx, bson.M{"id": session.ID}, session)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) AddSources(ctx context.Context, sessionID string, sources []types.Source) error {
	if len(sources) == 0 {
		return nil
	}
	docs := make([]any, 0, len(sources))
	for _, src := range sources {
		if src.URL == "" {
			continue
		}
		src.SessionID = sessionID
		docs = append(docs, src)
	}
	if len(docs) == 0 {
		return nil
	}
	// Dedup by URL within the session: upsert instead of blind insert so a
	// retry (e.g. a retrieve-stage retry) never duplicates a source.
	for _, doc := range docs {
		src := doc.(types.Source)
		filter := bson.M{"session_id": sessionID, "url": src.URL}
		_, err := s.sources.ReplaceOne(ctx, filter, src, options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("store: upsert source: %w", err)
		}
	}
	return nil
}

func (s *MongoStore) GetSources(ctx context.Context, sessionID string) ([]types.Source, error) {
	cur, err := s.sources.Find(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("store: find sources: %w", err)
	}
	defer cur.Close(ctx)

	var out []types.Source
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("store: decode sources: %w", err)
	}
	return out, nil
}

func (s *MongoStore) AddFindings(ctx context.Context, sessionID string, findings []types.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	docs := make([]any, len(findings))
	for i := range findings {
		findings[i].SessionID = sessionID
		docs[i] = findings[i]
	}
	_, err := s.findings.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("store: insert findings: %w", err)
	}
	return nil
}

func (s *MongoStore) GetFindings(ctx context.Context, sessionID string) ([]types.Finding, error) {
	cur, err := s.findings.Find(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("store: find findings: %w", err)
	}
	defer cur.Close(ctx)

	var out []types.Finding
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("store: decode findings: %w", err)
	}
	return out, nil
}

type pipelineDataDoc struct {
	SessionID string   `bson:"session_id"`
	Key       string   `bson:"key"`
	Value     bson.Raw `bson:"value"`
}

func (s *MongoStore) SetPipelineData(ctx context.Context, sessionID, key string, value any) error {
	raw, err := bson.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: marshal pipeline data: %w", err)
	}

	filter := bson.M{"session_id": sessionID, "key": key}
	doc := pipelineDataDoc{SessionID: sessionID, Key: key, Value: bson.Raw(raw)}
	_, err = s.pipeline.ReplaceOne(ctx, filter, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store: set pipeline data: %w", err)
	}
	return nil
}

func (s *MongoStore) GetPipelineData(ctx context.Context, sessionID, key string, dest any) (bool, error) {
	var doc pipelineDataDoc
	err := s.pipeline.FindOne(ctx, bson.M{"session_id": sessionID, "key": key}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: get pipeline data: %w", err)
	}

	if err := bson.Unmarshal(doc.Value, dest); err != nil {
		return false, fmt.Errorf("store: decode pipeline data: %w", err)
	}
	return true, nil
}

func (s *MongoStore) SaveReport(ctx context.Context, report *types.Report) error {
	filter := bson.M{"session_id": report.SessionID}
	_, err := s.reports.ReplaceOne(ctx, filter, report, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("store: save report: %w", err)
	}
	return nil
}

func (s *MongoStore) GetReport(ctx context.Context, sessionID string) (*types.Report, error) {
	var report types.Report
	err := s.reports.FindOne(ctx, bson.M{"session_id": sessionID}).Decode(&report)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: get report: %w", err)
	}
	return &report, nil
}

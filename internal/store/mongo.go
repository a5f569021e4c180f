package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"git.home.luguber.info/inful/pagesmith/internal/model"
)

const (
	pagesCollection    = "pages"
	projectsCollection = "projects"
)

// MongoStore implements Store on MongoDB. SaveAggregate uses a multi-document
// transaction, which requires a replica set or sharded cluster.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to uri and verifies the connection.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := &MongoStore{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(pagesCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "project_id", Value: 1}, {Key: "page_name", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create page index: %w", err)
	}
	return nil
}

func (s *MongoStore) GetPage(ctx context.Context, id string) (*model.Page, error) {
	var p model.Page
	err := s.db.Collection(pagesCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		return nil, mapMongoErr(err, "find page")
	}
	return &p, nil
}

func (s *MongoStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var p model.Project
	err := s.db.Collection(projectsCollection).FindOne(ctx, bson.M{"_id": id}).Decode(&p)
	if err != nil {
		return nil, mapMongoErr(err, "find project")
	}
	return &p, nil
}

func (s *MongoStore) FindPageByName(ctx context.Context, projectID, pageName string) (*model.Page, error) {
	var p model.Page
	opts := options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	err := s.db.Collection(pagesCollection).
		FindOne(ctx, bson.M{"project_id": projectID, "page_name": pageName}, opts).
		Decode(&p)
	if err != nil {
		return nil, mapMongoErr(err, "find page by name")
	}
	return &p, nil
}

func (s *MongoStore) SaveAggregate(ctx context.Context, project *model.Project, page *model.Page) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(context.Background())

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		upsert := options.Replace().SetUpsert(true)
		if project != nil {
			if _, err := s.db.Collection(projectsCollection).ReplaceOne(ctx, bson.M{"_id": project.ID}, project, upsert); err != nil {
				return nil, fmt.Errorf("upsert project: %w", err)
			}
		}
		if page != nil {
			if _, err := s.db.Collection(pagesCollection).ReplaceOne(ctx, bson.M{"_id": page.ID}, page, upsert); err != nil {
				return nil, fmt.Errorf("upsert page: %w", err)
			}
		}
		return nil, nil
	})
	return err
}

func (s *MongoStore) ListProjects(ctx context.Context) ([]*model.Project, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}})
	cursor, err := s.db.Collection(projectsCollection).Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find projects: %w", err)
	}
	out := make([]*model.Project, 0)
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	return out, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func mapMongoErr(err error, op string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

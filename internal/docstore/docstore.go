// Package docstore is the MongoDB document store. Hit recording runs in a
// multi-document transaction, so the server must be a replica set.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/marcel-gle/gb-qr-tracker/internal/model"
	"github.com/marcel-gle/gb-qr-tracker/internal/store"
)

// Store implements store.Store on MongoDB.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to uri and selects database.
func Open(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := options.Client().
		ApplyURI(uri).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(50)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return &Store{
		client: client,
		db:     client.Database(database),
		logger: logger.With("component", "docstore"),
	}, nil
}

// EnsureIndexes creates the secondary and TTL indexes.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ttl := options.Index().SetExpireAfterSeconds(0)
	specs := map[string][]mongo.IndexModel{
		collLinks: {
			{Keys: bson.D{{Key: "campaign_id", Value: 1}}},
		},
		collHits: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: ttl},
			{Keys: bson.D{{Key: "campaign_id", Value: 1}}},
			{Keys: bson.D{{Key: "link_id", Value: 1}, {Key: "ts", Value: -1}}},
		},
		collTestHits: {
			{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: ttl},
		},
		collVisitors: {
			{Keys: bson.D{{Key: "campaign_id", Value: 1}}},
		},
	}
	for coll, models := range specs {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	s.logger.Info("mongo indexes ensured", "database", s.db.Name())
	return nil
}

// GetLink retrieves a link by identifier.
func (s *Store) GetLink(ctx context.Context, id string) (*model.Link, error) {
	var doc linkDoc
	err := s.db.Collection(collLinks).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, classify("get link", err)
	}
	return doc.toModel(), nil
}

// RecordHit applies the hit inside one transaction. Conditional creates
// are upserts with $setOnInsert; UpsertedCount tells whether this call
// created the document.
func (s *Store) RecordHit(ctx context.Context, hit model.Hit, delta store.HitDelta) (bool, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return false, classify("start session", err)
	}
	defer sess.EndSession(context.Background())

	at := delta.At.UTC()
	doc := newHitDoc(hit)
	doc.ID = ""
	hitColl := collHits
	if delta.Synthetic {
		hitColl = collTestHits
	}
	upsert := options.Update().SetUpsert(true)

	var applied bool
	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		applied = false

		res, err := s.db.Collection(hitColl).UpdateOne(sc,
			bson.M{"_id": hit.ID}, bson.M{"$setOnInsert": doc}, upsert)
		if err != nil {
			return nil, err
		}
		if res.UpsertedCount == 0 || delta.Synthetic {
			applied = res.UpsertedCount == 1
			return nil, nil
		}
		applied = true

		if _, err := s.db.Collection(collLinks).UpdateOne(sc,
			bson.M{"_id": delta.LinkID},
			bson.M{"$inc": bson.M{"hit_count": 1}, "$max": bson.M{"last_hit_at": at}},
		); err != nil {
			return nil, err
		}

		if delta.CampaignID != "" {
			inc := bson.M{"totals.hits": 1}
			if delta.IPHash != "" {
				created, err := s.db.Collection(collVisitors).UpdateOne(sc,
					bson.M{"_id": visitorID(delta.CampaignID, delta.IPHash)},
					bson.M{"$setOnInsert": bson.M{
						"campaign_id": delta.CampaignID,
						"ip_hash":     delta.IPHash,
						"first_seen":  at,
					}},
					upsert,
				)
				if err != nil {
					return nil, err
				}
				if created.UpsertedCount == 1 {
					inc["totals.unique_ips"] = 1
				}
			}
			update := bson.M{"$inc": inc, "$max": bson.M{"last_hit_at": at}}
			if hit.CampaignName != "" {
				update["$setOnInsert"] = bson.M{"name": hit.CampaignName}
			}
			if _, err := s.db.Collection(collCampaigns).UpdateOne(sc,
				bson.M{"_id": delta.CampaignID}, update, upsert); err != nil {
				return nil, err
			}
		}

		if delta.BusinessID != "" {
			if _, err := s.db.Collection(collBusinesses).UpdateOne(sc,
				bson.M{"_id": delta.BusinessID},
				bson.M{"$inc": bson.M{"hit_count": 1}, "$max": bson.M{"last_hit_at": at}},
				upsert,
			); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return false, classify("record hit", err)
	}
	return applied, nil
}

// TakenIdentifiers returns identifiers equal to base or prefixed by
// base + "-". The anchored regex uses the _id index.
func (s *Store) TakenIdentifiers(ctx context.Context, base string) ([]string, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"_id": base},
		bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(base+"-")}},
	}}
	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.M{"_id": 1})

	cur, err := s.db.Collection(collLinks).Find(ctx, filter, opts)
	if err != nil {
		return nil, classify("taken identifiers", err)
	}
	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, classify("taken identifiers", err)
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	return ids, nil
}

// CreateLinks inserts every link and bumps campaign link totals in one
// transaction. A duplicate identifier aborts it with store.ErrConflict.
func (s *Store) CreateLinks(ctx context.Context, links []model.Link) error {
	if len(links) == 0 {
		return nil
	}
	docs := make([]any, len(links))
	bumps := make(map[string]int64)
	names := make(map[string]string)
	for i, l := range links {
		docs[i] = newLinkDoc(l)
		if l.CampaignID != "" {
			bumps[l.CampaignID]++
			if _, ok := names[l.CampaignID]; !ok {
				names[l.CampaignID] = l.CampaignName
			}
		}
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return classify("start session", err)
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		if _, err := s.db.Collection(collLinks).InsertMany(sc, docs); err != nil {
			return nil, err
		}
		for id, n := range bumps {
			update := bson.M{"$inc": bson.M{"totals.links": n}}
			if names[id] != "" {
				update["$setOnInsert"] = bson.M{"name": names[id]}
			}
			if _, err := s.db.Collection(collCampaigns).UpdateOne(sc,
				bson.M{"_id": id}, update, options.Update().SetUpsert(true)); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %v", store.ErrConflict, err)
		}
		return classify("create links", err)
	}
	return nil
}

// GetCampaign retrieves campaign totals.
func (s *Store) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	var doc campaignDoc
	if err := s.db.Collection(collCampaigns).FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, classify("get campaign", err)
	}
	return doc.toModel(), nil
}

// GetBusiness retrieves business counters.
func (s *Store) GetBusiness(ctx context.Context, id string) (*model.Business, error) {
	var doc businessDoc
	if err := s.db.Collection(collBusinesses).FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, classify("get business", err)
	}
	return &model.Business{ID: doc.ID, HitCount: doc.HitCount, LastHitAt: doc.LastHitAt}, nil
}

// PurgeExpiredHits deletes expired hits now instead of waiting for the
// TTL monitor.
func (s *Store) PurgeExpiredHits(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for _, coll := range []string{collHits, collTestHits} {
		res, err := s.db.Collection(coll).DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": now.UTC()}})
		if err != nil {
			return total, classify("purge "+coll, err)
		}
		total += res.DeletedCount
	}
	return total, nil
}

// RecountCampaign recomputes totals from links, hits and visitor markers
// and overwrites the stored counters.
func (s *Store) RecountCampaign(ctx context.Context, campaignID string) (model.Totals, error) {
	byCampaign := bson.M{"campaign_id": campaignID}

	var t model.Totals
	var err error
	if t.Links, err = s.db.Collection(collLinks).CountDocuments(ctx, byCampaign); err != nil {
		return model.Totals{}, classify("count links", err)
	}
	targets, err := s.db.Collection(collLinks).Distinct(ctx, "target_id",
		bson.M{"campaign_id": campaignID, "target_id": bson.M{"$nin": bson.A{nil, ""}}})
	if err != nil {
		return model.Totals{}, classify("count targets", err)
	}
	t.Targets = int64(len(targets))
	if t.Hits, err = s.db.Collection(collHits).CountDocuments(ctx, byCampaign); err != nil {
		return model.Totals{}, classify("count hits", err)
	}
	if t.UniqueVisitors, err = s.db.Collection(collVisitors).CountDocuments(ctx, byCampaign); err != nil {
		return model.Totals{}, classify("count visitors", err)
	}

	res, err := s.db.Collection(collCampaigns).UpdateOne(ctx,
		bson.M{"_id": campaignID},
		bson.M{"$set": bson.M{"totals": totalsDoc{
			Targets:        t.Targets,
			Links:          t.Links,
			Hits:           t.Hits,
			UniqueVisitors: t.UniqueVisitors,
		}}},
	)
	if err != nil {
		return model.Totals{}, classify("store totals", err)
	}
	if res.MatchedCount == 0 {
		return model.Totals{}, store.ErrNotFound
	}
	return t, nil
}

// Ping checks connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Database exposes the selected database.
func (s *Store) Database() *mongo.Database {
	return s.db
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w: %v", op, store.ErrConflict, err)
	case mongo.IsTimeout(err), mongo.IsNetworkError(err),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w: %v", op, store.ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

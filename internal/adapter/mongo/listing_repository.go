package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pscheid92/serverlist/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type listingDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Name        string             `bson:"name"`
	IP          string             `bson:"ip"`
	Port        int                `bson:"port"`
	Description string             `bson:"description"`
	Version     string             `bson:"version"`
	OwnerID     string             `bson:"ownerId"`
	OwnerEmail  string             `bson:"ownerEmail"`
	CreatedAt   time.Time          `bson:"createdAt"`
	Votes       int                `bson:"votes"`
	Voters      []string           `bson:"voters"`
	Verified    bool               `bson:"verified"`
}

func toDomainListing(doc listingDoc) domain.Listing {
	voters := doc.Voters
	if voters == nil {
		voters = []string{}
	}
	return domain.Listing{
		ID:          doc.ID.Hex(),
		Name:        doc.Name,
		IP:          doc.IP,
		Port:        doc.Port,
		Description: doc.Description,
		Version:     doc.Version,
		OwnerID:     doc.OwnerID,
		OwnerEmail:  doc.OwnerEmail,
		CreatedAt:   doc.CreatedAt,
		Votes:       doc.Votes,
		Voters:      voters,
		Verified:    doc.Verified,
	}
}

type ListingRepo struct {
	coll *mongo.Collection
}

var _ domain.ListingRepository = (*ListingRepo)(nil)

func NewListingRepo(db *mongo.Database) *ListingRepo {
	return &ListingRepo{coll: db.Collection(serversCollection)}
}

// parseID maps malformed IDs to not-found; they can never name a stored document.
func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, domain.ErrListingNotFound
	}
	return oid, nil
}

func (r *ListingRepo) Create(ctx context.Context, l domain.Listing) (string, error) {
	voters := l.Voters
	if voters == nil {
		voters = []string{}
	}
	doc := listingDoc{
		Name:        l.Name,
		IP:          l.IP,
		Port:        l.Port,
		Description: l.Description,
		Version:     l.Version,
		OwnerID:     l.OwnerID,
		OwnerEmail:  l.OwnerEmail,
		CreatedAt:   l.CreatedAt,
		Votes:       len(voters),
		Voters:      voters,
		Verified:    l.Verified,
	}

	res, err := r.coll.InsertOne(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("failed to insert listing: %w", err)
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return "", fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return oid.Hex(), nil
}

// List returns the full collection in natural order, optionally filtered by owner.
func (r *ListingRepo) List(ctx context.Context, ownerID string) ([]domain.Listing, error) {
	filter := bson.M{}
	if ownerID != "" {
		filter["ownerId"] = ownerID
	}

	cur, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}

	var docs []listingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode listings: %w", err)
	}

	out := make([]domain.Listing, len(docs))
	for i, doc := range docs {
		out[i] = toDomainListing(doc)
	}
	return out, nil
}

func (r *ListingRepo) GetByID(ctx context.Context, id string) (*domain.Listing, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var doc listingDoc
	err = r.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrListingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	l := toDomainListing(doc)
	return &l, nil
}

func (r *ListingRepo) Update(ctx context.Context, id string, patch domain.ListingPatch) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	set := bson.M{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.IP != nil {
		set["ip"] = *patch.IP
	}
	if patch.Port != nil {
		set["port"] = *patch.Port
	}
	if patch.Description != nil {
		set["description"] = *patch.Description
	}
	if patch.Version != nil {
		set["version"] = *patch.Version
	}
	if len(set) == 0 {
		return nil
	}

	return r.updateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
}

func (r *ListingRepo) SetVerified(ctx context.Context, id string, verified bool) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	return r.updateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"verified": verified}})
}

func (r *ListingRepo) updateOne(ctx context.Context, filter, update bson.M) error {
	res, err := r.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

func (r *ListingRepo) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("failed to delete listing: %w", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrListingNotFound
	}
	return nil
}

// AddVoter matches only while uid is absent from voters, so a repeated cast is a no-op.
func (r *ListingRepo) AddVoter(ctx context.Context, id, uid string) (bool, error) {
	oid, err := parseID(id)
	if err != nil {
		return false, nil
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "voters": bson.M{"$ne": uid}},
		bson.M{"$inc": bson.M{"votes": 1}, "$addToSet": bson.M{"voters": uid}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to add voter: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

// RemoveVoter matches only while uid is present in voters.
func (r *ListingRepo) RemoveVoter(ctx context.Context, id, uid string) (bool, error) {
	oid, err := parseID(id)
	if err != nil {
		return false, nil
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": oid, "voters": uid},
		bson.M{"$inc": bson.M{"votes": -1}, "$pull": bson.M{"voters": uid}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to remove voter: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

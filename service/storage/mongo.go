package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"PPGate/data/database"
	"PPGate/tools/errs"
	"PPGate/tools/ids"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	MsgTableName  = "messages"
	UserTableName = "users"
)

// MongoMessages stores one document per message. Seq is the snowflake id and
// encodes the creation time, so sorting by it is creation order.
type MongoMessages struct {
	coll *mongo.Collection
	ids  *ids.Generator
}

var _ database.Table = (*MongoMessages)(nil)

func NewMongoMessages(db *mongo.Database, nodeID int64) *MongoMessages {
	return &MongoMessages{coll: db.Collection(MsgTableName), ids: ids.NewGenerator(nodeID)}
}

func (s *MongoMessages) GetTableName() string          { return MsgTableName }
func (s *MongoMessages) Collection() *mongo.Collection { return s.coll }
func (s *MongoMessages) Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "recipient", Value: 1}, {Key: "seq", Value: 1}}},
	}
}

func (s *MongoMessages) Create(ctx context.Context, sender, recipient, text, attachment string) (*Message, error) {
	seq := s.ids.Next()
	m := &Message{
		ID:         strconv.FormatInt(seq, 10),
		Seq:        seq,
		Sender:     sender,
		Recipient:  recipient,
		Text:       text,
		Attachment: attachment,
		CreatedAt:  s.ids.Time(seq),
	}
	if _, err := s.coll.InsertOne(ctx, m); err != nil {
		return nil, errs.ErrStore.Cause(err, "collection", MsgTableName)
	}
	return m, nil
}

func (s *MongoMessages) Find(ctx context.Context, a, b string) ([]*Message, error) {
	filter := bson.M{
		"sender":    bson.M{"$in": bson.A{a, b}},
		"recipient": bson.M{"$in": bson.A{a, b}},
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, errs.WrapMsg(err, "find messages", "a", a, "b", b)
	}
	defer cur.Close(ctx)
	out := make([]*Message, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode messages")
	}
	return out, nil
}

type MongoUsers struct {
	coll *mongo.Collection
}

var _ database.Table = (*MongoUsers)(nil)

func NewMongoUsers(db *mongo.Database) *MongoUsers {
	return &MongoUsers{coll: db.Collection(UserTableName)}
}

func (s *MongoUsers) GetTableName() string          { return UserTableName }
func (s *MongoUsers) Collection() *mongo.Collection { return s.coll }
func (s *MongoUsers) Indexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
}

func (s *MongoUsers) Create(ctx context.Context, username, passwordHash string) (*User, error) {
	u := &User{ID: ids.GenerateString(), Username: username, PasswordHash: passwordHash, CreatedAt: time.Now()}
	if _, err := s.coll.InsertOne(ctx, u); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, errs.ErrRecordExists.WrapMsg("username taken", "username", username)
		}
		return nil, errs.WrapMsg(err, "insert user")
	}
	return u, nil
}

func (s *MongoUsers) findOne(ctx context.Context, filter bson.M) (*User, error) {
	var u User
	err := s.coll.FindOne(ctx, filter).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errs.ErrRecordNotFound.WrapMsg("user")
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "find user")
	}
	return &u, nil
}

func (s *MongoUsers) FindByUsername(ctx context.Context, username string) (*User, error) {
	return s.findOne(ctx, bson.M{"username": username})
}

func (s *MongoUsers) FindByID(ctx context.Context, id string) (*User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *MongoUsers) List(ctx context.Context) ([]*User, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1, "username": 1}).
		SetSort(bson.D{{Key: "username", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "list users")
	}
	defer cur.Close(ctx)
	out := make([]*User, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, errs.WrapMsg(err, "decode users")
	}
	return out, nil
}

// GridFSObjects stores attachments in a GridFS bucket, keyed by file name.
type GridFSObjects struct {
	bucket *gridfs.Bucket
}

func NewGridFSObjects(db *mongo.Database, bucketName string) (*GridFSObjects, error) {
	opts := options.GridFSBucket()
	if bucketName != "" {
		opts.SetName(bucketName)
	}
	b, err := gridfs.NewBucket(db, opts)
	if err != nil {
		return nil, errs.WrapMsg(err, "open gridfs bucket", "bucket", bucketName)
	}
	return &GridFSObjects{bucket: b}, nil
}

func (g *GridFSObjects) Upload(ctx context.Context, key, contentType string, data []byte) error {
	if !validKey(key) {
		return errs.ErrArgs.WrapMsg("invalid object key", "key", key)
	}
	if dl, ok := ctx.Deadline(); ok {
		_ = g.bucket.SetWriteDeadline(dl)
	}
	opts := options.GridFSUpload().SetMetadata(bson.M{"contentType": contentType})
	if _, err := g.bucket.UploadFromStream(key, bytes.NewReader(data), opts); err != nil {
		return errs.WrapMsg(err, "gridfs upload", "key", key)
	}
	return nil
}

func (g *GridFSObjects) Open(ctx context.Context, key string) (*Object, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = g.bucket.SetReadDeadline(dl)
	}
	ds, err := g.bucket.OpenDownloadStreamByName(key)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, errs.ErrRecordNotFound.WrapMsg("object", "key", key)
	}
	if err != nil {
		return nil, errs.WrapMsg(err, "gridfs open", "key", key)
	}
	defer ds.Close()
	data, err := io.ReadAll(ds)
	if err != nil {
		return nil, errs.WrapMsg(err, "gridfs read", "key", key)
	}
	ct := "application/octet-stream"
	if meta := ds.GetFile().Metadata; meta != nil {
		if v, err := meta.LookupErr("contentType"); err == nil {
			if s, ok := v.StringValueOK(); ok && s != "" {
				ct = s
			}
		}
	}
	return &Object{Key: key, ContentType: ct, Data: data}, nil
}

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/vantageinsurance/knowbase/blobstore"
)

// CurrentName is the blob name a DDBCommitStore virtualizes through
// DynamoDB instead of writing to the underlying store.
const CurrentName = "CURRENT"

// ErrConcurrentModification is returned when another writer committed
// a new version between read and write.
var ErrConcurrentModification = errors.New("s3: concurrent modification of current pointer")

// DDBClient is the subset of the DynamoDB API the commit store uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DDBCommitStore wraps a blobstore.Store and turns writes of the
// CURRENT pointer into conditional DynamoDB puts. S3 has no
// compare-and-swap, so racing archivers could otherwise clobber each
// other's pointer; the version table serializes them. Every other blob
// name passes straight through to the wrapped store.
//
// The table uses base_uri as partition key and version as numeric sort
// key.
type DDBCommitStore struct {
	inner   blobstore.Store
	ddb     DDBClient
	table   string
	baseURI string
}

var _ blobstore.Store = (*DDBCommitStore)(nil)

// NewDDBCommitStore wraps inner with versioned CURRENT handling. The
// baseURI identifies this archive inside the shared version table.
func NewDDBCommitStore(inner blobstore.Store, ddb DDBClient, table, baseURI string) *DDBCommitStore {
	return &DDBCommitStore{inner: inner, ddb: ddb, table: table, baseURI: baseURI}
}

// Open opens a blob. Opening CURRENT resolves the latest committed
// version from DynamoDB.
func (s *DDBCommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	if name != CurrentName {
		return s.inner.Open(ctx, name)
	}
	_, path, err := s.latestVersion(ctx)
	if err != nil {
		return nil, err
	}
	return &staticBlob{data: []byte(path)}, nil
}

// Create is not supported for CURRENT; commits must go through Put so
// they stay atomic.
func (s *DDBCommitStore) Create(ctx context.Context, name string) (blobstore.WritableBlob, error) {
	if name == CurrentName {
		return nil, errors.New("s3: CURRENT must be written with Put")
	}
	return s.inner.Create(ctx, name)
}

// Put stores a blob. Writing CURRENT commits a new version with a
// conditional put; ErrConcurrentModification means another writer won
// the race and the caller should re-read and retry.
func (s *DDBCommitStore) Put(ctx context.Context, name string, data []byte) error {
	if name != CurrentName {
		return s.inner.Put(ctx, name, data)
	}
	return s.commitVersion(ctx, string(data))
}

// Delete removes a blob. Deleting CURRENT removes the latest version
// record, exposing the previous commit.
func (s *DDBCommitStore) Delete(ctx context.Context, name string) error {
	if name != CurrentName {
		return s.inner.Delete(ctx, name)
	}

	version, _, err := s.latestVersion(ctx)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key: map[string]ddbtypes.AttributeValue{
			"base_uri": &ddbtypes.AttributeValueMemberS{Value: s.baseURI},
			"version":  &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(version, 10)},
		},
	})
	return err
}

// List delegates to the wrapped store; the virtual CURRENT blob is not
// listed.
func (s *DDBCommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *DDBCommitStore) latestVersion(ctx context.Context) (int64, string, error) {
	out, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":uri": &ddbtypes.AttributeValueMemberS{Value: s.baseURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return 0, "", err
	}
	if len(out.Items) == 0 {
		return 0, "", blobstore.ErrNotFound
	}

	item := out.Items[0]
	versionAttr, ok := item["version"].(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return 0, "", errors.New("s3: version table item missing numeric version")
	}
	version, err := strconv.ParseInt(versionAttr.Value, 10, 64)
	if err != nil {
		return 0, "", err
	}
	pathAttr, ok := item["manifest_path"].(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return 0, "", errors.New("s3: version table item missing manifest_path")
	}
	return version, pathAttr.Value, nil
}

func (s *DDBCommitStore) commitVersion(ctx context.Context, path string) error {
	latest, _, err := s.latestVersion(ctx)
	if err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		return err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]ddbtypes.AttributeValue{
			"base_uri":      &ddbtypes.AttributeValueMemberS{Value: s.baseURI},
			"version":       &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(latest+1, 10)},
			"manifest_path": &ddbtypes.AttributeValueMemberS{Value: path},
			"committed_at":  &ddbtypes.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		var conditionFailed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return ErrConcurrentModification
		}
		return err
	}
	return nil
}

type staticBlob struct {
	data []byte
}

func (b *staticBlob) ReadAt(_ context.Context, p []byte, off int64) (int, error) {
	if off >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *staticBlob) ReadRange(_ context.Context, off, length int64) (io.ReadCloser, error) {
	if off >= int64(len(b.data)) {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	end := off + length
	if end > int64(len(b.data)) {
		end = int64(len(b.data))
	}
	return io.NopCloser(bytes.NewReader(b.data[off:end])), nil
}

func (b *staticBlob) Size() int64 {
	return int64(len(b.data))
}

func (b *staticBlob) Close() error {
	return nil
}

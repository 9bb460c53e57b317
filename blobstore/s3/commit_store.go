package s3

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"github.com/hupe1980/voyago/blobstore"
)

// ErrConcurrentModification is returned when another writer committed the
// same name first.
var ErrConcurrentModification = errors.New("concurrent modification detected")

// DDBClient is the subset of the DynamoDB API used by CommitStore.
// *dynamodb.Client satisfies it.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

var _ DDBClient = (*dynamodb.Client)(nil)

const versionsDir = "_versions/"

// CommitStore stores every Put as a new immutable S3 object and publishes it
// by writing version N+1 to DynamoDB with a conditional put. Of two writers
// that read the same version only one commit succeeds; the other receives
// ErrConcurrentModification and its object is removed.
//
// Table schema:
//   - Partition key: base_uri (string) - baseURI + blob name
//   - Sort key: version (number) - monotonically increasing per name
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name voyago-commits \
//	  --attribute-definitions AttributeName=base_uri,AttributeType=S AttributeName=version,AttributeType=N \
//	  --key-schema AttributeName=base_uri,KeyType=HASH AttributeName=version,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	objects   *Store
	ddb       DDBClient
	tableName string
	baseURI   string
}

// NewCommitStore creates a new S3+DynamoDB commit store.
// baseURI (e.g. "s3://bucket/prefix/") namespaces the partition keys.
func NewCommitStore(objects *Store, ddb DDBClient, tableName, baseURI string) *CommitStore {
	if !strings.HasSuffix(baseURI, "/") {
		baseURI += "/"
	}
	return &CommitStore{
		objects:   objects,
		ddb:       ddb,
		tableName: tableName,
		baseURI:   baseURI,
	}
}

type commit struct {
	version uint64
	key     string
}

func (s *CommitStore) partition(name string) string {
	return s.baseURI + name
}

func decodeCommit(item map[string]types.AttributeValue) (commit, error) {
	v, ok := item["version"].(*types.AttributeValueMemberN)
	if !ok {
		return commit{}, errors.New("invalid version attribute in DynamoDB")
	}
	k, ok := item["object_key"].(*types.AttributeValueMemberS)
	if !ok {
		return commit{}, errors.New("invalid object_key attribute in DynamoDB")
	}
	version, err := strconv.ParseUint(v.Value, 10, 64)
	if err != nil {
		return commit{}, fmt.Errorf("failed to parse version: %w", err)
	}
	return commit{version: version, key: k.Value}, nil
}

// latest returns the newest commit of name. A zero version means none.
func (s *CommitStore) latest(ctx context.Context, name string) (commit, error) {
	resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("base_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.partition(name)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
		ConsistentRead:   aws.Bool(true),
	})
	if err != nil {
		return commit{}, fmt.Errorf("failed to query DynamoDB: %w", err)
	}
	if len(resp.Items) == 0 {
		return commit{}, nil
	}
	return decodeCommit(resp.Items[0])
}

// history returns every commit of name, oldest first.
func (s *CommitStore) history(ctx context.Context, name string) ([]commit, error) {
	var (
		out   []commit
		start map[string]types.AttributeValue
	)
	for {
		resp, err := s.ddb.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			KeyConditionExpression: aws.String("base_uri = :uri"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":uri": &types.AttributeValueMemberS{Value: s.partition(name)},
			},
			ExclusiveStartKey: start,
			ConsistentRead:    aws.Bool(true),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to query DynamoDB: %w", err)
		}
		for _, item := range resp.Items {
			c, err := decodeCommit(item)
			if err != nil {
				return nil, err
			}
			out = append(out, c)
		}
		if len(resp.LastEvaluatedKey) == 0 {
			break
		}
		start = resp.LastEvaluatedKey
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// Version returns the latest committed version of name, or 0 if it was
// never committed.
func (s *CommitStore) Version(ctx context.Context, name string) (uint64, error) {
	c, err := s.latest(ctx, name)
	return c.version, err
}

// Open opens the latest committed version of name.
func (s *CommitStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	c, err := s.latest(ctx, name)
	if err != nil {
		return nil, err
	}
	if c.version == 0 {
		return nil, blobstore.ErrNotFound
	}
	return s.objects.Open(ctx, c.key)
}

// Put uploads data and commits it as the next version of name.
func (s *CommitStore) Put(ctx context.Context, name string, data []byte) error {
	cur, err := s.latest(ctx, name)
	if err != nil {
		return err
	}
	next := cur.version + 1
	key := fmt.Sprintf("%s%s/%020d-%s", versionsDir, name, next, uuid.NewString())

	if err := s.objects.Put(ctx, key, data); err != nil {
		return err
	}

	_, err = s.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"base_uri":   &types.AttributeValueMemberS{Value: s.partition(name)},
			"version":    &types.AttributeValueMemberN{Value: strconv.FormatUint(next, 10)},
			"object_key": &types.AttributeValueMemberS{Value: key},
		},
		ConditionExpression: aws.String("attribute_not_exists(version)"),
	})
	if err != nil {
		_ = s.objects.Delete(ctx, key)

		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return ErrConcurrentModification
		}
		return fmt.Errorf("failed to commit version to DynamoDB: %w", err)
	}
	return nil
}

// Delete removes every version of name together with its objects.
func (s *CommitStore) Delete(ctx context.Context, name string) error {
	commits, err := s.history(ctx, name)
	if err != nil {
		return err
	}
	for _, c := range commits {
		if _, err := s.ddb.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"base_uri": &types.AttributeValueMemberS{Value: s.partition(name)},
				"version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(c.version, 10)},
			},
		}); err != nil {
			return fmt.Errorf("failed to delete version from DynamoDB: %w", err)
		}
		if err := s.objects.Delete(ctx, c.key); err != nil {
			return err
		}
	}
	return nil
}

// List returns the names that have at least one stored version.
func (s *CommitStore) List(ctx context.Context, prefix string) ([]string, error) {
	keys, err := s.objects.List(ctx, versionsDir+prefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var names []string
	for _, k := range keys {
		k = strings.TrimPrefix(k, versionsDir)
		i := strings.LastIndexByte(k, '/')
		if i <= 0 {
			continue
		}
		name := k[:i]
		if _, ok := seen[name]; !ok {
			seen[name] = struct{}{}
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

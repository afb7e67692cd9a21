// Package dynamodb stores the read index in the single "Commodities" table.
//
// Every entry of a rebuild is written under partition keys prefixed with the
// rebuild's version. Nothing is visible until the version pointer item is
// swapped to the new version, which makes publication atomic for readers.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"commodities/domain/readindex"
	pkgerrors "commodities/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"
)

// DynamoDBAPI is the subset of the DynamoDB client used by this package
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Attribute names of the table and its global secondary indexes. Every
// index uses SK as its sort key; the GSI partition attributes are only
// written when the entry participates in that access path.
const (
	attrPK            = "PK"
	attrSK            = "SK"
	attrCountryPK     = "TypeCountryPK"
	attrCommodityPK   = "TypeCommodityPK"
	attrTypePK        = "TypePK"
	attrVersion       = "Version"
	pointerPK         = "INDEX#CURRENT"
	pointerSK         = 0
	maxBatchWriteSize = 25
)

// BatchConfig controls batch writes and their retries
type BatchConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor int
	ChunkSize     int
}

// DefaultBatchConfig returns the settings used in production
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		MaxRetries:    5,
		InitialDelay:  100 * time.Millisecond,
		BackoffFactor: 2,
		ChunkSize:     maxBatchWriteSize,
	}
}

// indexItem is the stored shape of one index entry
type indexItem struct {
	PK          string            `dynamodbav:"PK"`
	SK          int               `dynamodbav:"SK"`
	CountryPK   string            `dynamodbav:"TypeCountryPK,omitempty"`
	CommodityPK string            `dynamodbav:"TypeCommodityPK,omitempty"`
	TypePK      string            `dynamodbav:"TypePK,omitempty"`
	Version     string            `dynamodbav:"Version"`
	Payload     readindex.Payload `dynamodbav:"Payload"`
}

// pointerItem names the version readers should resolve keys against
type pointerItem struct {
	PK          string `dynamodbav:"PK"`
	SK          int    `dynamodbav:"SK"`
	Version     string `dynamodbav:"Version"`
	Previous    string `dynamodbav:"Previous,omitempty"`
	Entries     int    `dynamodbav:"Entries"`
	PublishedAt string `dynamodbav:"PublishedAt"`
}

func toItem(version string, e readindex.IndexEntry) indexItem {
	item := indexItem{
		PK:      versioned(version, e.Key),
		SK:      e.Sort,
		Version: version,
		Payload: e.Payload,
	}
	if e.ByCountry != nil {
		item.CountryPK = versioned(version, *e.ByCountry)
	}
	if e.ByCommodity != nil {
		item.CommodityPK = versioned(version, *e.ByCommodity)
	}
	if e.ByType {
		item.TypePK = versioned(version, readindex.TypeKey(e.Key.Type))
	}
	return item
}

func (it indexItem) toEntry() (readindex.IndexEntry, error) {
	key, err := unversioned(it.PK)
	if err != nil {
		return readindex.IndexEntry{}, err
	}
	e := readindex.IndexEntry{Key: key, Sort: it.SK, Payload: it.Payload, ByType: it.TypePK != ""}
	if it.CountryPK != "" {
		k, err := unversioned(it.CountryPK)
		if err != nil {
			return readindex.IndexEntry{}, err
		}
		e.ByCountry = &k
	}
	if it.CommodityPK != "" {
		k, err := unversioned(it.CommodityPK)
		if err != nil {
			return readindex.IndexEntry{}, err
		}
		e.ByCommodity = &k
	}
	return e, nil
}

// IndexStore publishes and reads the versioned read index
type IndexStore struct {
	client     DynamoDBAPI
	tableName  string
	batch      BatchConfig
	pointerTTL time.Duration
	logger     *zap.Logger

	mu        sync.Mutex
	version   string
	fetchedAt time.Time
	now       func() time.Time
}

// NewIndexStore creates a DynamoDB-backed index. The resolved version is
// cached for pointerTTL; zero disables caching.
func NewIndexStore(client DynamoDBAPI, tableName string, pointerTTL time.Duration, logger *zap.Logger) *IndexStore {
	return &IndexStore{
		client:     client,
		tableName:  tableName,
		batch:      DefaultBatchConfig(),
		pointerTTL: pointerTTL,
		logger:     logger,
		now:        time.Now,
	}
}

// WithBatchConfig overrides the batch write settings
func (s *IndexStore) WithBatchConfig(cfg BatchConfig) *IndexStore {
	if cfg.ChunkSize <= 0 || cfg.ChunkSize > maxBatchWriteSize {
		cfg.ChunkSize = maxBatchWriteSize
	}
	s.batch = cfg
	return s
}

// Publish implements ports.IndexPublisher. All items are written before
// the pointer moves; a failure leaves the previous version served.
func (s *IndexStore) Publish(ctx context.Context, version string, entries []readindex.IndexEntry) error {
	if version == "" {
		return pkgerrors.NewValidationError("index version is required")
	}
	// same checks the in-memory index applies
	if _, err := readindex.NewSnapshot(version, entries); err != nil {
		return pkgerrors.NewIndexInconsistencyError(err.Error())
	}

	requests := make([]types.WriteRequest, 0, len(entries))
	for _, e := range entries {
		av, err := attributevalue.MarshalMap(toItem(version, e))
		if err != nil {
			return pkgerrors.NewInternalError(fmt.Sprintf("marshal index entry %s", e.Key)).WithCause(err)
		}
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: av}})
	}

	for i := 0; i < len(requests); i += s.batch.ChunkSize {
		end := i + s.batch.ChunkSize
		if end > len(requests) {
			end = len(requests)
		}
		if err := s.writeBatch(ctx, requests[i:end]); err != nil {
			return err
		}
	}

	previous, err := s.swapPointer(ctx, version, len(entries))
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.version = version
	s.fetchedAt = s.now()
	s.mu.Unlock()

	// TODO: delete the items of the superseded version once readers holding
	// a cached pointer to it have expired.
	s.logger.Info("Index version published",
		zap.String("version", version),
		zap.String("previous", previous),
		zap.Int("entries", len(entries)),
	)
	return nil
}

// writeBatch writes one chunk, retrying unprocessed items with backoff
func (s *IndexStore) writeBatch(ctx context.Context, batch []types.WriteRequest) error {
	pending := batch
	delay := s.batch.InitialDelay
	for attempt := 0; ; attempt++ {
		out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.tableName: pending},
		})
		if err != nil {
			return pkgerrors.NewDatabaseError("batch write index entries", err)
		}
		pending = out.UnprocessedItems[s.tableName]
		if len(pending) == 0 {
			return nil
		}
		if attempt >= s.batch.MaxRetries {
			return pkgerrors.NewDatabaseError("batch write index entries",
				fmt.Errorf("%d items unprocessed after %d retries", len(pending), attempt))
		}

		s.logger.Debug("Retrying unprocessed index items",
			zap.Int("attempt", attempt+1),
			zap.Int("unprocessed", len(pending)),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= time.Duration(s.batch.BackoffFactor)
	}
}

// swapPointer moves the version pointer. Republishing the version that is
// already current is rejected as a conflict.
func (s *IndexStore) swapPointer(ctx context.Context, version string, entries int) (string, error) {
	previous, err := s.readPointer(ctx)
	if err != nil {
		return "", err
	}

	item, err := attributevalue.MarshalMap(pointerItem{
		PK:          pointerPK,
		SK:          pointerSK,
		Version:     version,
		Previous:    previous,
		Entries:     entries,
		PublishedAt: s.now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", pkgerrors.NewInternalError("marshal version pointer").WithCause(err)
	}

	cond := expression.Name(attrPK).AttributeNotExists().
		Or(expression.Name(attrVersion).NotEqual(expression.Value(version)))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return "", pkgerrors.NewInternalError("build pointer condition").WithCause(err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(s.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			return "", pkgerrors.NewConflictError(fmt.Sprintf("index version %s is already current", version))
		}
		return "", pkgerrors.NewDatabaseError("update version pointer", err)
	}
	return previous, nil
}

func (s *IndexStore) readPointer(ctx context.Context) (string, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            primaryKey(pointerPK, pointerSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", pkgerrors.NewDatabaseError("read version pointer", err)
	}
	if out.Item == nil {
		return "", nil
	}
	var p pointerItem
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return "", pkgerrors.NewDatabaseError("decode version pointer", err)
	}
	return p.Version, nil
}

// Version implements ports.IndexReader
func (s *IndexStore) Version(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.pointerTTL > 0 && !s.fetchedAt.IsZero() && s.now().Sub(s.fetchedAt) < s.pointerTTL {
		v := s.version
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	v, err := s.readPointer(ctx)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.version = v
	s.fetchedAt = s.now()
	s.mu.Unlock()
	return v, nil
}

// Query implements ports.IndexReader
func (s *IndexStore) Query(ctx context.Context, q readindex.Query) ([]readindex.IndexEntry, error) {
	version, err := s.Version(ctx)
	if err != nil {
		return nil, err
	}
	if version == "" {
		return []readindex.IndexEntry{}, nil
	}

	attr, indexName, err := partitionAttribute(q.Index)
	if err != nil {
		return nil, err
	}
	partition := q.Key
	if q.Index == readindex.IndexType {
		partition = readindex.TypeKey(q.Key.Type)
	}

	keyCond := expression.Key(attr).Equal(expression.Value(versioned(version, partition)))
	if q.Sort != nil {
		keyCond = keyCond.And(expression.Key(attrSK).Equal(expression.Value(*q.Sort)))
	}
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, pkgerrors.NewInternalError("build key condition").WithCause(err)
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(s.tableName),
		IndexName:                 indexName,
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	}

	out := []readindex.IndexEntry{}
	for {
		page, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError(fmt.Sprintf("query %s", q.Index), err)
		}
		var items []indexItem
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, pkgerrors.NewDatabaseError("decode index entries", err)
		}
		for _, it := range items {
			e, err := it.toEntry()
			if err != nil {
				return nil, pkgerrors.NewIndexInconsistencyError(err.Error())
			}
			out = append(out, e)
		}
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = page.LastEvaluatedKey
	}

	// secondary partitions only order by SK; break ties the way the
	// in-memory snapshot does
	readindex.SortEntries(out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Sort < out[j].Sort })
	return out, nil
}

// Get implements ports.IndexReader
func (s *IndexStore) Get(ctx context.Context, key readindex.IndexKey, sortKey int) (readindex.IndexEntry, bool, error) {
	version, err := s.Version(ctx)
	if err != nil || version == "" {
		return readindex.IndexEntry{}, false, err
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       primaryKey(versioned(version, key), sortKey),
	})
	if err != nil {
		return readindex.IndexEntry{}, false, pkgerrors.NewDatabaseError("get index entry", err)
	}
	if out.Item == nil {
		return readindex.IndexEntry{}, false, nil
	}
	var it indexItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return readindex.IndexEntry{}, false, pkgerrors.NewDatabaseError("decode index entry", err)
	}
	e, err := it.toEntry()
	if err != nil {
		return readindex.IndexEntry{}, false, pkgerrors.NewIndexInconsistencyError(err.Error())
	}
	return e, true, nil
}

func partitionAttribute(index readindex.IndexName) (string, *string, error) {
	switch index {
	case readindex.IndexPrimary:
		return attrPK, nil, nil
	case readindex.IndexTypeAndCountry:
		return attrCountryPK, aws.String(string(index)), nil
	case readindex.IndexTypeAndCommodity:
		return attrCommodityPK, aws.String(string(index)), nil
	case readindex.IndexType:
		return attrTypePK, aws.String(string(index)), nil
	}
	return "", nil, pkgerrors.NewValidationError(fmt.Sprintf("unknown index %q", index))
}

func primaryKey(pk string, sk int) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrPK: &types.AttributeValueMemberS{Value: pk},
		attrSK: &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", sk)},
	}
}

package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RebuildResource is the lock resource guarding index rebuilds
const RebuildResource = "index-rebuild"

// ErrLockHeld is returned when another owner holds an unexpired lock
var ErrLockHeld = errors.New("lock already held")

// DistributedLock provides distributed locking using DynamoDB conditional writes
type DistributedLock struct {
	client    DynamoDBAPI
	tableName string
	resource  string
	logger    *zap.Logger
	now       func() time.Time
}

// LockRecord represents a lock record in DynamoDB
type LockRecord struct {
	PK         string `dynamodbav:"PK"`         // LOCK#<resource_name>
	SK         int    `dynamodbav:"SK"`         // always 0
	LockID     string `dynamodbav:"LockID"`     // Unique lock identifier
	Owner      string `dynamodbav:"Owner"`      // Lock owner identifier
	AcquiredAt string `dynamodbav:"AcquiredAt"` // RFC3339 timestamp
	ExpiresAt  int64  `dynamodbav:"ExpiresAt"`  // Unix milliseconds
	TTL        int64  `dynamodbav:"TTL"`        // Unix seconds for DynamoDB TTL
}

// NewDistributedLock creates a lock over resource in tableName
func NewDistributedLock(client DynamoDBAPI, tableName, resource string, logger *zap.Logger) *DistributedLock {
	return &DistributedLock{
		client:    client,
		tableName: tableName,
		resource:  resource,
		logger:    logger,
		now:       time.Now,
	}
}

func lockPK(resource string) string {
	return "LOCK#" + resource
}

// Acquire implements ports.RebuildLock
func (dl *DistributedLock) Acquire(ctx context.Context, owner string, ttl, timeout time.Duration) (func(context.Context) error, error) {
	lock, err := dl.TryAcquireLock(ctx, owner, ttl, timeout)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}

// AcquireLock makes a single attempt at the lock
func (dl *DistributedLock) AcquireLock(ctx context.Context, owner string, ttl time.Duration) (*Lock, error) {
	now := dl.now()
	expiresAt := now.Add(ttl)
	record := LockRecord{
		PK:         lockPK(dl.resource),
		SK:         0,
		LockID:     uuid.NewString(),
		Owner:      owner,
		AcquiredAt: now.UTC().Format(time.RFC3339),
		ExpiresAt:  expiresAt.UnixMilli(),
		TTL:        expiresAt.Unix(),
	}
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return nil, fmt.Errorf("marshal lock record: %w", err)
	}

	cond := expression.Name("PK").AttributeNotExists().
		Or(expression.Name("ExpiresAt").LessThan(expression.Value(now.UnixMilli())))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return nil, fmt.Errorf("build lock condition: %w", err)
	}

	_, err = dl.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(dl.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			dl.logger.Debug("Failed to acquire lock - already held",
				zap.String("resource", dl.resource),
				zap.String("owner", owner),
			)
			return nil, fmt.Errorf("%w: %s", ErrLockHeld, dl.resource)
		}
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}

	dl.logger.Debug("Lock acquired",
		zap.String("resource", dl.resource),
		zap.String("lockID", record.LockID),
		zap.String("owner", owner),
		zap.Duration("ttl", ttl),
	)
	return &Lock{dl: dl, lockID: record.LockID, owner: owner, expiresAt: expiresAt}, nil
}

// TryAcquireLock retries AcquireLock with backoff until timeout
func (dl *DistributedLock) TryAcquireLock(ctx context.Context, owner string, ttl, timeout time.Duration) (*Lock, error) {
	deadline := dl.now().Add(timeout)
	retryInterval := 100 * time.Millisecond

	for {
		lock, err := dl.AcquireLock(ctx, owner, ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockHeld) {
			return nil, err
		}
		if !dl.now().Add(retryInterval).Before(deadline) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryInterval):
			if retryInterval < time.Second {
				retryInterval = time.Duration(float64(retryInterval) * 1.5)
			}
		}
	}
}

// ReleaseLock deletes the lock if it is still ours
func (dl *DistributedLock) ReleaseLock(ctx context.Context, lockID, owner string) error {
	cond := expression.Name("LockID").Equal(expression.Value(lockID)).
		And(expression.Name("Owner").Equal(expression.Value(owner)))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build release condition: %w", err)
	}

	_, err = dl.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(dl.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: lockPK(dl.resource)},
			"SK": &types.AttributeValueMemberN{Value: "0"},
		},
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var conditionalCheckFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionalCheckFailed) {
			dl.logger.Warn("Lock already released or taken over",
				zap.String("resource", dl.resource),
				zap.String("lockID", lockID),
			)
			return nil
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}

	dl.logger.Debug("Lock released",
		zap.String("resource", dl.resource),
		zap.String("lockID", lockID),
	)
	return nil
}

// Lock represents an acquired distributed lock
type Lock struct {
	dl        *DistributedLock
	lockID    string
	owner     string
	expiresAt time.Time
}

// Release releases the lock
func (l *Lock) Release(ctx context.Context) error {
	return l.dl.ReleaseLock(ctx, l.lockID, l.owner)
}

// IsExpired checks if the lock has expired
func (l *Lock) IsExpired() bool {
	return l.dl.now().After(l.expiresAt)
}

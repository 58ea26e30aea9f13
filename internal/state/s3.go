package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3Backend stores one state object per scope in an S3 bucket, with
// optional DynamoDB-based locking via conditional writes. Without a
// DynamoDB table configured, TryLock refuses to pretend: remote state
// needs a real lock, so acquisition fails.
type s3Backend struct {
	bucket    string
	prefix    string
	region    string
	lockTable string
	encrypt   bool
	profile   string

	s3Client *s3.Client
	dbClient *dynamodb.Client
}

func newS3Backend(config map[string]string) (Backend, error) {
	bucket := config["bucket"]
	if bucket == "" {
		return nil, fmt.Errorf("s3 backend requires 'bucket' configuration")
	}

	prefix := config["prefix"]
	if prefix == "" {
		prefix = "quarry"
	}

	region := config["region"]
	if region == "" {
		region = "us-east-1"
	}

	b := &s3Backend{
		bucket:    bucket,
		prefix:    prefix,
		region:    region,
		lockTable: config["lock_table"],
		encrypt:   config["encrypt"] == "true",
		profile:   config["profile"],
	}

	if err := b.initClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize S3 backend: %w", err)
	}
	return b, nil
}

func (b *s3Backend) initClients() error {
	ctx := context.Background()

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(b.region))
	if b.profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(b.profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("unable to load AWS config: %w", err)
	}

	b.s3Client = s3.NewFromConfig(cfg)
	if b.lockTable != "" {
		b.dbClient = dynamodb.NewFromConfig(cfg)
	}
	return nil
}

func (b *s3Backend) objectKey(scope string) string {
	if scope == "" {
		scope = "default"
	}
	return path.Join(b.prefix, scope, "state.json")
}

func (b *s3Backend) Read(ctx context.Context, scope string) (*Snapshot, error) {
	key := b.objectKey(scope)
	result, err := b.s3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, errNotFound
		}
		if strings.Contains(err.Error(), "NoSuchKey") || strings.Contains(err.Error(), "404") {
			return nil, errNotFound
		}
		return nil, fmt.Errorf("failed to read state from s3://%s/%s: %w", b.bucket, key, err)
	}
	defer result.Body.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(result.Body); err != nil {
		return nil, fmt.Errorf("failed to read S3 object body: %w", err)
	}
	content := buf.Bytes()

	if IsEncrypted(content) {
		content, err = DecryptState(content)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt remote state: %w", err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(content, &snap); err != nil {
		return nil, &CorruptError{Scope: scope, Reason: fmt.Sprintf("unparseable remote state: %v", err)}
	}
	return &snap, nil
}

func (b *s3Backend) Write(ctx context.Context, scope string, snap *Snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode state: %w", err)
	}

	raw, err = EncryptState(raw)
	if err != nil {
		return fmt.Errorf("failed to encrypt state: %w", err)
	}

	key := b.objectKey(scope)
	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(raw),
	}
	if b.encrypt {
		input.ServerSideEncryption = s3types.ServerSideEncryptionAes256
	}

	if _, err := b.s3Client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to write state to s3://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}

func (b *s3Backend) TryLock(ctx context.Context, info *LockInfo) error {
	if b.lockTable == "" {
		return fmt.Errorf("s3 backend requires 'lock_table' for locking")
	}

	lockKey := b.objectKey(info.Scope)
	_, err := b.dbClient.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(b.lockTable),
		Item: map[string]dbtypes.AttributeValue{
			"LockID":  &dbtypes.AttributeValueMemberS{Value: lockKey},
			"OwnerID": &dbtypes.AttributeValueMemberS{Value: info.ID},
			"Holder":  &dbtypes.AttributeValueMemberS{Value: info.Holder},
			"Created": &dbtypes.AttributeValueMemberS{Value: info.Created.Format("2006-01-02T15:04:05Z")},
		},
		ConditionExpression: aws.String("attribute_not_exists(LockID)"),
	})
	if err != nil {
		var cond *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &cond) || strings.Contains(err.Error(), "ConditionalCheckFailedException") {
			return fmt.Errorf("lock item %q in table %q: %w", lockKey, b.lockTable, ErrLockHeld)
		}
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	return nil
}

func (b *s3Backend) Unlock(ctx context.Context, scope, lockID string) error {
	if b.lockTable == "" {
		return nil
	}

	lockKey := b.objectKey(scope)
	_, err := b.dbClient.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(b.lockTable),
		Key: map[string]dbtypes.AttributeValue{
			"LockID": &dbtypes.AttributeValueMemberS{Value: lockKey},
		},
		ConditionExpression: aws.String("OwnerID = :owner"),
		ExpressionAttributeValues: map[string]dbtypes.AttributeValue{
			":owner": &dbtypes.AttributeValueMemberS{Value: lockID},
		},
	})
	if err != nil {
		var cond *dbtypes.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return fmt.Errorf("lock for scope %q is held by a different owner", scope)
		}
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

func (b *s3Backend) Delete(ctx context.Context, scope string) error {
	key := b.objectKey(scope)
	_, err := b.s3Client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete state at s3://%s/%s: %w", b.bucket, key, err)
	}
	return nil
}

func (b *s3Backend) Scopes(ctx context.Context) ([]string, error) {
	prefix := b.prefix + "/"
	paginator := s3.NewListObjectsV2Paginator(b.s3Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	})

	seen := make(map[string]bool)
	var scopes []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list state objects: %w", err)
		}
		for _, obj := range page.Contents {
			rest := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			scope, file, ok := strings.Cut(rest, "/")
			if !ok || file != "state.json" || seen[scope] {
				continue
			}
			seen[scope] = true
			scopes = append(scopes, scope)
		}
	}
	sort.Strings(scopes)
	return scopes, nil
}

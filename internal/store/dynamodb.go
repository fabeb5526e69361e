package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"qchat/internal/domain"
)

const (
	skCredentials = "CREDS#"
	// Items linger a day past their credential expiry before DynamoDB TTL
	// reaps them; eviction on read remains authoritative.
	ttlGrace = 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by DynamoStore.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore keeps the credential triple as a single item keyed by session,
// for deployments where the slot must survive the local filesystem.
type DynamoStore struct {
	api        dynamodbAPI
	tableName  string
	sessionKey string
}

// NewDynamoStore creates a DynamoStore for one user session.
func NewDynamoStore(api dynamodbAPI, tableName, sessionKey string) (*DynamoStore, error) {
	if api == nil {
		return nil, errors.New("store: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("store: table name must not be empty")
	}
	if strings.TrimSpace(sessionKey) == "" {
		return nil, errors.New("store: session key must not be empty")
	}
	return &DynamoStore{api: api, tableName: tableName, sessionKey: sessionKey}, nil
}

func sessionPK(sessionKey string) string {
	return "SESSION#" + sessionKey
}

func (s *DynamoStore) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: sessionPK(s.sessionKey)},
		"SK": &types.AttributeValueMemberS{Value: skCredentials},
	}
}

// Load fetches the session's credential item, if any.
func (s *DynamoStore) Load(ctx context.Context) (domain.CredentialTriple, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return domain.CredentialTriple{}, false, fmt.Errorf("store: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return domain.CredentialTriple{}, false, nil
	}

	triple, err := itemToTriple(out.Item)
	if err != nil {
		return domain.CredentialTriple{}, false, fmt.Errorf("store: Load decode: %w", err)
	}
	return triple, true, nil
}

// Save writes or replaces the session's credential item.
func (s *DynamoStore) Save(ctx context.Context, triple domain.CredentialTriple) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      s.tripleItem(triple),
	})
	if err != nil {
		return fmt.Errorf("store: Save: %w", err)
	}
	return nil
}

// Clear removes the session's credential item. Deleting an absent item is a
// no-op in DynamoDB, which matches the store contract.
func (s *DynamoStore) Clear(ctx context.Context) error {
	_, err := s.api.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       s.key(),
	})
	if err != nil {
		return fmt.Errorf("store: Clear: %w", err)
	}
	return nil
}

func (s *DynamoStore) tripleItem(triple domain.CredentialTriple) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK":              &types.AttributeValueMemberS{Value: sessionPK(s.sessionKey)},
		"SK":              &types.AttributeValueMemberS{Value: skCredentials},
		"accessKeyId":     &types.AttributeValueMemberS{Value: triple.AccessKeyID},
		"secretAccessKey": &types.AttributeValueMemberS{Value: triple.SecretAccessKey},
		"sessionToken":    &types.AttributeValueMemberS{Value: triple.SessionToken},
		"expiration":      &types.AttributeValueMemberS{Value: triple.Expiration.UTC().Format(time.RFC3339)},
		"ttl":             &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", triple.Expiration.Add(ttlGrace).Unix())},
	}
}

func itemToTriple(item map[string]types.AttributeValue) (domain.CredentialTriple, error) {
	accessKeyID, err := strAttr(item, "accessKeyId")
	if err != nil {
		return domain.CredentialTriple{}, err
	}
	secretAccessKey, err := strAttr(item, "secretAccessKey")
	if err != nil {
		return domain.CredentialTriple{}, err
	}
	sessionToken, err := strAttr(item, "sessionToken")
	if err != nil {
		return domain.CredentialTriple{}, err
	}
	rawExpiration, err := strAttr(item, "expiration")
	if err != nil {
		return domain.CredentialTriple{}, err
	}
	expiration, err := time.Parse(time.RFC3339, rawExpiration)
	if err != nil {
		return domain.CredentialTriple{}, fmt.Errorf("store: parse expiration %q: %w", rawExpiration, err)
	}
	return domain.CredentialTriple{
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		SessionToken:    sessionToken,
		Expiration:      expiration,
	}, nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("store: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("store: attribute %q is not a string", key)
	}
	return s.Value, nil
}

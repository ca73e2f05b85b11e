package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/wolfman30/messenger-relay/pkg/logging"
)

const turnTTL = 7 * 24 * time.Hour

// ErrTurnNotFound indicates the requested turn id does not exist.
var ErrTurnNotFound = errors.New("relay: turn not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// TurnRecord is the delivery status of one turn. It holds no conversation
// content beyond the reply that was sent.
type TurnRecord struct {
	TurnID          string    `dynamodbav:"turnId" json:"turnId"`
	State           TurnState `dynamodbav:"state" json:"state"`
	OrganizationID  string    `dynamodbav:"organizationId" json:"organizationId"`
	AgentID         string    `dynamodbav:"agentId" json:"agentId"`
	SenderID        string    `dynamodbav:"senderId" json:"senderId"`
	RecipientID     string    `dynamodbav:"recipientId" json:"recipientId"`
	MessageID       string    `dynamodbav:"messageId,omitempty" json:"messageId,omitempty"`
	ConversationKey string    `dynamodbav:"conversationKey,omitempty" json:"conversationKey,omitempty"`
	Reply           string    `dynamodbav:"reply,omitempty" json:"reply,omitempty"`
	ErrorMessage    string    `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt       string    `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt       string    `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt       int64     `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// TurnRecorder persists turn status transitions.
type TurnRecorder interface {
	PutReceived(ctx context.Context, rec *TurnRecord) error
	MarkFinished(ctx context.Context, turnID string, res TurnResult) error
}

// TurnReader looks up a recorded turn.
type TurnReader interface {
	GetTurn(ctx context.Context, turnID string) (*TurnRecord, error)
}

// TurnStore persists turn records to DynamoDB.
type TurnStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ TurnRecorder = (*TurnStore)(nil)
var _ TurnReader = (*TurnStore)(nil)

// NewTurnStore builds a store backed by the provided DynamoDB client.
func NewTurnStore(client dynamoAPI, tableName string, logger *logging.Logger) *TurnStore {
	if client == nil {
		panic("relay: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("relay: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &TurnStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// PutReceived inserts a new turn in the RECEIVED state.
func (s *TurnStore) PutReceived(ctx context.Context, rec *TurnRecord) error {
	if rec == nil {
		return errors.New("relay: turn record cannot be nil")
	}
	if rec.TurnID == "" {
		return errors.New("relay: turnID required")
	}
	now := time.Now().UTC()
	rec.State = StateReceived
	rec.CreatedAt = now.Format(time.RFC3339Nano)
	rec.UpdatedAt = rec.CreatedAt
	if rec.ExpiresAt == 0 {
		rec.ExpiresAt = now.Add(turnTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return fmt.Errorf("relay: failed to marshal turn: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(turnId)"),
	})
	if err != nil {
		return fmt.Errorf("relay: failed to persist turn: %w", err)
	}
	return nil
}

// MarkFinished stores the terminal state of a turn.
func (s *TurnStore) MarkFinished(ctx context.Context, turnID string, res TurnResult) error {
	if turnID == "" {
		return errors.New("relay: turnID required")
	}
	errMsg := ""
	if res.Err != nil {
		errMsg = res.Err.Error()
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"turnId": &types.AttributeValueMemberS{Value: turnID},
		},
		UpdateExpression: aws.String("SET #state = :state, conversationKey = :key, reply = :reply, #error = :error, #updated = :updated"),
		ExpressionAttributeNames: map[string]string{
			"#state":   "state",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":state":   &types.AttributeValueMemberS{Value: string(res.State)},
			":key":     &types.AttributeValueMemberS{Value: res.ConversationKey},
			":reply":   &types.AttributeValueMemberS{Value: res.Reply},
			":error":   &types.AttributeValueMemberS{Value: errMsg},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		ConditionExpression: aws.String("attribute_exists(turnId)"),
	})
	if err != nil {
		return fmt.Errorf("relay: failed to update turn %s: %w", turnID, err)
	}
	return nil
}

// GetTurn fetches a turn by id.
func (s *TurnStore) GetTurn(ctx context.Context, turnID string) (*TurnRecord, error) {
	if turnID == "" {
		return nil, errors.New("relay: turnID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"turnId": &types.AttributeValueMemberS{Value: turnID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("relay: failed to fetch turn: %w", err)
	}
	if out.Item == nil {
		return nil, ErrTurnNotFound
	}

	var rec TurnRecord
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("relay: failed to decode turn: %w", err)
	}
	return &rec, nil
}

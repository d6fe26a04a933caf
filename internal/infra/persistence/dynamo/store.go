// Package dynamo implements the durable backend adapter against DynamoDB (or
// a DynamoDB-compatible local endpoint). It translates documents to and from
// the table item representation and issues the four storage primitives; it
// never decides to fall back — that decision belongs to the facade.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"ordercore/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.DocumentStore = (*Store)(nil)

// api is the subset of the DynamoDB client used by the adapter; tests inject
// a fake.
type api interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// Config holds explicit construction parameters (mostly for tests). For prod
// we rely primarily on environment variables.
type Config struct {
	Region        string
	OrdersTable   string
	EntitiesTable string
	Endpoint      string // optional; if set enables a custom endpoint (e.g. DynamoDB Local)
	// AccessKeyID/SecretAccessKey bypass the default credentials chain.
	// DynamoDB Local accepts any static pair.
	AccessKeyID     string
	SecretAccessKey string
}

// Environment variables:
//
//	ORDERCORE_DYNAMO_ORDERS_TABLE=<table> (default ordercore_orders)
//	ORDERCORE_DYNAMO_ENTITIES_TABLE=<table> (default ordercore_entities)
//	ORDERCORE_DYNAMO_REGION=<region> (default us-east-1)
//	ORDERCORE_DYNAMO_ENDPOINT=<url> (optional, for DynamoDB Local)
//	ORDERCORE_DYNAMO_ACCESS_KEY_ID / ORDERCORE_DYNAMO_SECRET_ACCESS_KEY (optional, static pair for local endpoints)
//	AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY / AWS_SESSION_TOKEN (optional, default chain)

// Store is the DynamoDB-backed document store.
type Store struct {
	client        api
	ordersTable   string
	entitiesTable string
}

// New creates a DynamoDB adapter from Config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.OrdersTable == "" || cfg.EntitiesTable == "" {
		return nil, fmt.Errorf("dynamo table names required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, domain.AdapterError{Op: "configure", Err: err}
	}
	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &Store{client: client, ordersTable: cfg.OrdersTable, entitiesTable: cfg.EntitiesTable}, nil
}

// OpenFromEnv constructs a DynamoDB adapter from process environment.
func OpenFromEnv(ctx context.Context) (*Store, error) {
	cfg := Config{
		OrdersTable:     os.Getenv("ORDERCORE_DYNAMO_ORDERS_TABLE"),
		EntitiesTable:   os.Getenv("ORDERCORE_DYNAMO_ENTITIES_TABLE"),
		Region:          os.Getenv("ORDERCORE_DYNAMO_REGION"),
		Endpoint:        os.Getenv("ORDERCORE_DYNAMO_ENDPOINT"),
		AccessKeyID:     os.Getenv("ORDERCORE_DYNAMO_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("ORDERCORE_DYNAMO_SECRET_ACCESS_KEY"),
	}
	if cfg.OrdersTable == "" {
		cfg.OrdersTable = "ordercore_orders"
	}
	if cfg.EntitiesTable == "" {
		cfg.EntitiesTable = "ordercore_entities"
	}
	return New(ctx, cfg)
}

// NewWithClient wires an explicit client implementation; used by tests.
func NewWithClient(client api, ordersTable, entitiesTable string) *Store {
	return &Store{client: client, ordersTable: ordersTable, entitiesTable: entitiesTable}
}

func (s *Store) tableName(t domain.Table) string {
	if t == domain.TableOrders {
		return s.ordersTable
	}
	return s.entitiesTable
}

// Probe issues one bounded read against each configured table. The facade
// runs it exactly once during initialization; failure permanently downgrades
// the process to the fallback store.
func (s *Store) Probe(ctx context.Context) error {
	for _, table := range []string{s.ordersTable, s.entitiesTable} {
		_, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName: aws.String(table),
			Limit:     aws.Int32(1),
			Select:    types.SelectCount,
		})
		if err != nil {
			return domain.AdapterError{Op: "probe " + table, Err: err}
		}
	}
	return nil
}

// PutItem writes the full document as one item.
func (s *Store) PutItem(ctx context.Context, table domain.Table, doc domain.Document) error {
	id := domain.DocumentID(doc)
	if id == "" {
		return domain.ValidationError{Field: domain.FieldID, Reason: "missing"}
	}
	item, err := marshalDocument(doc)
	if err != nil {
		return domain.AdapterError{Op: "marshal", Err: err}
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName(table)),
		Item:      item,
	})
	if err != nil {
		return domain.AdapterError{Op: "put_item", Err: err}
	}
	return nil
}

// GetItem reads one item by key with a consistent read.
func (s *Store) GetItem(ctx context.Context, table domain.Table, id string) (domain.Document, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName(table)),
		Key:            keyFor(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, domain.AdapterError{Op: "get_item", Err: err}
	}
	if len(out.Item) == 0 {
		return nil, domain.ErrNotFound{ID: id}
	}
	return unmarshalItem(out.Item)
}

// ScanItems pages through the table applying the filter expression remotely.
func (s *Store) ScanItems(ctx context.Context, table domain.Table, filter domain.ScanFilter) ([]domain.Document, error) {
	input := &dynamodb.ScanInput{TableName: aws.String(s.tableName(table))}
	applyScanFilter(input, table, filter)

	var docs []domain.Document
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, domain.AdapterError{Op: "scan", Err: err}
		}
		for _, item := range out.Items {
			doc, err := unmarshalItem(item)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
	return docs, nil
}

// UpdateItem merges top-level delta fields via a SET expression, guarded by
// an existence condition so absent ids surface as not-found rather than
// phantom creates.
func (s *Store) UpdateItem(ctx context.Context, table domain.Table, id string, delta domain.Document) (domain.Document, error) {
	fields := make([]string, 0, len(delta))
	for k := range delta {
		if k == domain.FieldID {
			continue
		}
		fields = append(fields, k)
	}
	if len(fields) == 0 {
		return s.GetItem(ctx, table, id)
	}
	sort.Strings(fields)

	names := map[string]string{"#id": domain.FieldID}
	values := make(map[string]types.AttributeValue, len(fields))
	sets := make([]string, 0, len(fields))
	for i, field := range fields {
		av, err := attributevalue.Marshal(delta[field])
		if err != nil {
			return nil, domain.AdapterError{Op: "marshal", Err: err}
		}
		namePlaceholder := fmt.Sprintf("#f%d", i)
		valuePlaceholder := fmt.Sprintf(":v%d", i)
		names[namePlaceholder] = field
		values[valuePlaceholder] = av
		sets = append(sets, namePlaceholder+" = "+valuePlaceholder)
	}

	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(s.tableName(table)),
		Key:                       keyFor(id),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return nil, domain.ErrNotFound{ID: id}
		}
		return nil, domain.AdapterError{Op: "update_item", Err: err}
	}
	return unmarshalItem(out.Attributes)
}

// DeleteItem removes one item, surfacing not-found via the same existence
// condition.
func (s *Store) DeleteItem(ctx context.Context, table domain.Table, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                aws.String(s.tableName(table)),
		Key:                      keyFor(id),
		ConditionExpression:      aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": domain.FieldID},
	})
	if err != nil {
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return domain.ErrNotFound{ID: id}
		}
		return domain.AdapterError{Op: "delete_item", Err: err}
	}
	return nil
}

func keyFor(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		domain.FieldID: &types.AttributeValueMemberS{Value: id},
	}
}

func applyScanFilter(input *dynamodb.ScanInput, table domain.Table, filter domain.ScanFilter) {
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	var exprs []string
	if filter.Type != "" && table == domain.TableEntities {
		names["#t"] = domain.FieldType
		values[":t"] = &types.AttributeValueMemberS{Value: string(filter.Type)}
		exprs = append(exprs, "#t = :t")
	}
	if filter.BusinessID != "" {
		values[":b"] = &types.AttributeValueMemberS{Value: filter.BusinessID}
		if table == domain.TableOrders {
			names["#l"] = "location"
			names["#b"] = "business_id"
			exprs = append(exprs, "#l.#b = :b")
		} else {
			names["#b"] = "business_id"
			exprs = append(exprs, "#b = :b")
		}
	}
	if len(exprs) == 0 {
		return
	}
	input.FilterExpression = aws.String(strings.Join(exprs, " AND "))
	input.ExpressionAttributeNames = names
	input.ExpressionAttributeValues = values
}

func marshalDocument(doc domain.Document) (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(doc)
}

func unmarshalItem(item map[string]types.AttributeValue) (domain.Document, error) {
	var doc map[string]any
	if err := attributevalue.UnmarshalMap(item, &doc); err != nil {
		return nil, domain.AdapterError{Op: "unmarshal", Err: err}
	}
	return doc, nil
}

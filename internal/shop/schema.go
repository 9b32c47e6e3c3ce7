package shop

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DDL returns the CREATE TABLE statements for a SQL dialect, "sqlite" or
// "postgres". Permanent deletes rely on the ON DELETE CASCADE clauses.
func DDL(dialect string) ([]string, error) {
	var ts, money string
	switch dialect {
	case "sqlite":
		ts, money = "DATETIME", "TEXT"
	case "postgres":
		ts, money = "TIMESTAMPTZ", "NUMERIC(12,2)"
	default:
		return nil, fmt.Errorf("shop: unsupported dialect %q", dialect)
	}

	stamps := fmt.Sprintf(`created_at %[1]s NOT NULL,
	updated_at %[1]s,
	deleted_at %[1]s`, ts)

	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS customers (
	id TEXT PRIMARY KEY,
	%s,
	name TEXT NOT NULL,
	email TEXT NOT NULL
)`, stamps),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS profiles (
	id TEXT PRIMARY KEY REFERENCES customers(id) ON DELETE CASCADE,
	%s,
	bio TEXT NOT NULL
)`, stamps),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	%s,
	customer_id TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
	status TEXT NOT NULL,
	total %s NOT NULL
)`, stamps, money),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS order_lines (
	id TEXT PRIMARY KEY,
	%s,
	order_id TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	sku TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	price %s NOT NULL
)`, stamps, money),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	%s,
	customer_id TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
	text TEXT NOT NULL
)`, stamps),
	}, nil
}

// Tables lists the entity tables in creation order.
var Tables = []string{"customers", "profiles", "orders", "order_lines", "notes"}

// TableCreator is the subset of *dynamodb.Client used by CreateTables.
type TableCreator interface {
	dynamodb.DescribeTableAPIClient
	CreateTable(ctx context.Context, params *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
}

// CreateTables creates the entity tables under prefix and the relationship
// table, then waits until all of them are active. Existing tables are kept.
func CreateTables(ctx context.Context, client TableCreator, prefix, relationshipTable string) error {
	var names []string
	for _, table := range Tables {
		name := prefix + table
		if err := createTable(ctx, client, &dynamodb.CreateTableInput{
			TableName: aws.String(name),
			KeySchema: []types.KeySchemaElement{
				{AttributeName: aws.String("id"), KeyType: types.KeyTypeHash},
			},
			AttributeDefinitions: []types.AttributeDefinition{
				{AttributeName: aws.String("id"), AttributeType: types.ScalarAttributeTypeS},
			},
			BillingMode:         types.BillingModePayPerRequest,
			StreamSpecification: &types.StreamSpecification{StreamEnabled: aws.Bool(true), StreamViewType: types.StreamViewTypeNewAndOldImages},
		}); err != nil {
			return err
		}
		names = append(names, name)
	}

	// Relationship table (pk, child_ref)
	if err := createTable(ctx, client, &dynamodb.CreateTableInput{
		TableName: aws.String(relationshipTable),
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("pk"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("child_ref"), KeyType: types.KeyTypeRange},
		},
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("pk"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("child_ref"), AttributeType: types.ScalarAttributeTypeS},
		},
		BillingMode: types.BillingModePayPerRequest,
	}); err != nil {
		return err
	}
	names = append(names, relationshipTable)

	waiter := dynamodb.NewTableExistsWaiter(client)
	for _, name := range names {
		if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(name)}, 2*time.Minute); err != nil {
			return fmt.Errorf("wait for table %s: %w", name, err)
		}
	}
	return nil
}

func createTable(ctx context.Context, client TableCreator, input *dynamodb.CreateTableInput) error {
	_, err := client.CreateTable(ctx, input)
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return fmt.Errorf("create table %s: %w", *input.TableName, err)
	}
	return nil
}

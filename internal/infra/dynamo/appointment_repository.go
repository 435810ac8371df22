// Package dynamo stores appointments as DynamoDB documents keyed by id.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"appointment_reminder/internal/domain/appointment"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// API is the subset of the DynamoDB client used by the repository.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
}

// item is the stored document. Timestamps are epoch milliseconds; 0 means unset.
type item struct {
	ID              string `dynamodbav:"id"`
	PhoneNumber     string `dynamodbav:"phone_number"`
	AppointmentAt   int64  `dynamodbav:"appointment_at"`
	ReminderAt      int64  `dynamodbav:"reminder_at"`
	AppointmentType string `dynamodbav:"appointment_type"`
	Status          string `dynamodbav:"status"`
	ClaimedAt       int64  `dynamodbav:"claimed_at"`
	DeliveryReceipt string `dynamodbav:"delivery_receipt"`
	LastError       string `dynamodbav:"last_error"`
	CreatedAt       int64  `dynamodbav:"created_at"`
	UpdatedAt       int64  `dynamodbav:"updated_at"`
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms) }

func (it item) toDomain() *appointment.Appointment {
	a := &appointment.Appointment{
		ID:              it.ID,
		PhoneNumber:     it.PhoneNumber,
		AppointmentTime: fromMillis(it.AppointmentAt),
		ReminderTime:    fromMillis(it.ReminderAt),
		AppointmentType: it.AppointmentType,
		Status:          appointment.Status(it.Status),
		CreatedAt:       fromMillis(it.CreatedAt),
		UpdatedAt:       fromMillis(it.UpdatedAt),
	}
	if it.ClaimedAt != 0 {
		a.ClaimedAt.Time, a.ClaimedAt.Valid = fromMillis(it.ClaimedAt), true
	}
	if it.DeliveryReceipt != "" {
		a.DeliveryReceipt.String, a.DeliveryReceipt.Valid = it.DeliveryReceipt, true
	}
	if it.LastError != "" {
		a.LastError.String, a.LastError.Valid = it.LastError, true
	}
	return a
}

type AppointmentRepository struct {
	db        API
	tableName string
}

func NewAppointmentRepository(db API, tableName string) *AppointmentRepository {
	return &AppointmentRepository{db: db, tableName: tableName}
}

// NewClient builds a DynamoDB client for region, pointing at endpoint when set (e.g. DynamoDB Local).
func NewClient(ctx context.Context, region, endpoint string) (*dynamodb.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", appointment.ErrStore, op, err)
}

func idKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"id": &types.AttributeValueMemberS{Value: id}}
}

func millis(t time.Time) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UnixMilli(), 10)}
}

func (r *AppointmentRepository) Insert(ctx context.Context, a *appointment.Appointment) (string, error) {
	now := time.Now()
	it := item{
		ID:              uuid.NewString(),
		PhoneNumber:     a.PhoneNumber,
		AppointmentAt:   a.AppointmentTime.UnixMilli(),
		ReminderAt:      a.ReminderTime.UnixMilli(),
		AppointmentType: a.AppointmentType,
		Status:          string(appointment.StatusScheduled),
		CreatedAt:       now.UnixMilli(),
		UpdatedAt:       now.UnixMilli(),
	}
	av, err := attributevalue.MarshalMap(it)
	if err != nil {
		return "", storeErr("marshalling appointment", err)
	}

	_, err = r.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if err != nil {
		return "", storeErr("putting appointment", err)
	}

	a.ID, a.Status = it.ID, appointment.StatusScheduled
	a.CreatedAt, a.UpdatedAt = fromMillis(it.CreatedAt), fromMillis(it.UpdatedAt)
	return it.ID, nil
}

func (r *AppointmentRepository) GetByID(ctx context.Context, id string) (*appointment.Appointment, error) {
	out, err := r.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            idKey(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr("getting appointment", err)
	}
	if out.Item == nil {
		return nil, appointment.ErrNotFound
	}

	var it item
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, storeErr("unmarshalling appointment", err)
	}
	return it.toDomain(), nil
}

func (r *AppointmentRepository) List(ctx context.Context, filter appointment.ListFilter) ([]*appointment.Appointment, error) {
	in := &dynamodb.ScanInput{TableName: aws.String(r.tableName)}

	var expr string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	if filter.PhoneNumber != "" {
		expr = "phone_number = :phone"
		values[":phone"] = &types.AttributeValueMemberS{Value: filter.PhoneNumber}
	}
	if filter.Status != "" {
		if expr != "" {
			expr += " AND "
		}
		expr += "#st = :st"
		names["#st"] = "status"
		values[":st"] = &types.AttributeValueMemberS{Value: string(filter.Status)}
	}
	if expr != "" {
		in.FilterExpression = aws.String(expr)
		in.ExpressionAttributeValues = values
		if len(names) > 0 {
			in.ExpressionAttributeNames = names
		}
	}

	out, err := r.scanAll(ctx, in)
	if err != nil {
		return nil, storeErr("listing appointments", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DueReminders scans with a filter; fine for the low volumes a single scheduler handles.
// A GSI on (status, reminder_at) would turn this into a Query.
func (r *AppointmentRepository) DueReminders(ctx context.Context, now time.Time) ([]*appointment.Appointment, error) {
	out, err := r.scanAll(ctx, &dynamodb.ScanInput{
		TableName:                aws.String(r.tableName),
		FilterExpression:         aws.String("#st = :scheduled AND reminder_at <= :now"),
		ExpressionAttributeNames: map[string]string{"#st": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":scheduled": &types.AttributeValueMemberS{Value: string(appointment.StatusScheduled)},
			":now":       millis(now),
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, storeErr("listing due reminders", err)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ReminderTime.Before(out[j].ReminderTime)
	})
	return out, nil
}

func (r *AppointmentRepository) scanAll(ctx context.Context, in *dynamodb.ScanInput) ([]*appointment.Appointment, error) {
	out := make([]*appointment.Appointment, 0)
	p := dynamodb.NewScanPaginator(r.db, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		var items []item
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			return nil, err
		}
		for _, it := range items {
			out = append(out, it.toDomain())
		}
	}
	return out, nil
}

// Claim only succeeds while the document is still scheduled.
func (r *AppointmentRepository) Claim(ctx context.Context, id string, claimedAt time.Time) (bool, error) {
	_, err := r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 idKey(id),
		ConditionExpression: aws.String("#st = :scheduled"),
		UpdateExpression:    aws.String("SET #st = :inprogress, claimed_at = :ca, updated_at = :u"),
		ExpressionAttributeNames: map[string]string{
			"#st": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":scheduled":  &types.AttributeValueMemberS{Value: string(appointment.StatusScheduled)},
			":inprogress": &types.AttributeValueMemberS{Value: string(appointment.StatusInProgress)},
			":ca":         millis(claimedAt),
			":u":          millis(time.Now()),
		},
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return false, nil
		}
		return false, storeErr("claiming appointment", err)
	}
	return true, nil
}

func (r *AppointmentRepository) UpdateStatus(ctx context.Context, id string, upd appointment.StatusUpdate) (bool, error) {
	update := "SET #st = :st, updated_at = :u"
	values := map[string]types.AttributeValue{
		":st": &types.AttributeValueMemberS{Value: string(upd.Status)},
		":u":  millis(time.Now()),
	}
	if upd.Receipt != "" {
		update += ", delivery_receipt = :rcpt"
		values[":rcpt"] = &types.AttributeValueMemberS{Value: upd.Receipt}
	}
	if upd.Error != "" {
		update += ", last_error = :le"
		values[":le"] = &types.AttributeValueMemberS{Value: upd.Error}
	}
	condition := "attribute_exists(id)"
	if upd.From != "" {
		condition += " AND #st = :from"
		values[":from"] = &types.AttributeValueMemberS{Value: string(upd.From)}
	}

	_, err := r.db.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       idKey(id),
		ConditionExpression:       aws.String(condition),
		UpdateExpression:          aws.String(update),
		ExpressionAttributeNames:  map[string]string{"#st": "status"},
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var cfe *types.ConditionalCheckFailedException
		if errors.As(err, &cfe) {
			return false, nil
		}
		return false, storeErr("updating appointment status", err)
	}
	return true, nil
}

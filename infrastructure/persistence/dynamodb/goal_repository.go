package dynamodb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goaltrack/application/ports"
	"goaltrack/domain/goal"
	pkgerrors "goaltrack/pkg/errors"
	"goaltrack/pkg/utils"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GoalRepository implements ports.RemoteStore on DynamoDB.
//
// Single-table layout, owner-partitioned:
//
//	PK USER#<owner>  SK GOAL#<uuid>  — the goal document
//	PK USER#<owner>  SK SIG#<sig>    — uniqueness marker for the signature
//
// Creation writes both items in one transaction with a condition on the
// marker, so the same logical goal created from two devices surfaces as
// a CONFLICT error the sync engine classifies as a duplicate skip.
type GoalRepository struct {
	client    *dynamodb.Client
	tableName string
	logger    *zap.Logger
}

// NewGoalRepository creates a new GoalRepository.
func NewGoalRepository(client *dynamodb.Client, tableName string, logger *zap.Logger) *GoalRepository {
	return &GoalRepository{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// goalItem represents the DynamoDB item structure for a goal
type goalItem struct {
	PK                string   `dynamodbav:"PK"`
	SK                string   `dynamodbav:"SK"`
	EntityType        string   `dynamodbav:"EntityType"`
	GoalID            string   `dynamodbav:"GoalID"`
	OwnerID           string   `dynamodbav:"OwnerID"`
	Title             string   `dynamodbav:"Title"`
	Description       string   `dynamodbav:"Description"`
	Timeline          string   `dynamodbav:"Timeline"`
	Progress          int      `dynamodbav:"Progress"`
	Status            string   `dynamodbav:"Status"`
	DueDate           string   `dynamodbav:"DueDate"`
	SubGoals          []string `dynamodbav:"SubGoals"`
	CompletedSubGoals int      `dynamodbav:"CompletedSubGoals"`
	Milestones        string   `dynamodbav:"Milestones"` // JSON-encoded
	Signature         string   `dynamodbav:"Signature"`
	CreatedAt         string   `dynamodbav:"CreatedAt"`
	UpdatedAt         string   `dynamodbav:"UpdatedAt"`
}

// Create persists a goal under the owner's partition, enforcing
// signature uniqueness via a conditional transaction.
func (r *GoalRepository) Create(ctx context.Context, g *goal.Goal, ownerID string) (*ports.RemoteGoal, error) {
	id := uuid.NewString()
	sig := goal.Signature(g)

	milestonesJSON, err := json.Marshal(g.Milestones)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal milestones: %w", err)
	}

	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	item := goalItem{
		PK:                ownerKey(ownerID),
		SK:                fmt.Sprintf("GOAL#%s", id),
		EntityType:        "GOAL",
		GoalID:            id,
		OwnerID:           ownerID,
		Title:             g.Title,
		Description:       g.Description,
		Timeline:          g.Timeline,
		Progress:          g.Progress,
		Status:            string(g.Status),
		DueDate:           g.DueDate,
		SubGoals:          g.SubGoals,
		CompletedSubGoals: g.CompletedSubGoals,
		Milestones:        string(milestonesJSON),
		Signature:         sig,
		CreatedAt:         createdAt.Format(time.RFC3339),
		UpdatedAt:         utils.NowRFC3339(),
	}

	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal goal: %w", err)
	}

	marker, err := attributevalue.MarshalMap(map[string]string{
		"PK":         ownerKey(ownerID),
		"SK":         fmt.Sprintf("SIG#%s", sig),
		"EntityType": "SIGNATURE",
		"GoalID":     id,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signature marker: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Put: &types.Put{
				TableName: aws.String(r.tableName),
				Item:      av,
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                marker,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if err != nil {
		if isConditionalFailure(err) {
			return nil, pkgerrors.NewConflictError("goal with identical content already exists").WithCause(err)
		}
		r.logger.Error("Failed to create remote goal",
			zap.String("ownerID", ownerID),
			zap.Error(err),
		)
		return nil, pkgerrors.NewDatabaseError("create goal", err)
	}

	r.logger.Debug("Remote goal created",
		zap.String("goalID", id),
		zap.String("ownerID", ownerID),
	)
	return itemToRemote(&item), nil
}

// List returns all goals stored remotely for the owner.
func (r *GoalRepository) List(ctx context.Context, ownerID string) ([]*ports.RemoteGoal, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: ownerKey(ownerID)},
			":sk": &types.AttributeValueMemberS{Value: "GOAL#"},
		},
	}

	goals := []*ports.RemoteGoal{}
	paginator := dynamodb.NewQueryPaginator(r.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, pkgerrors.NewDatabaseError("list goals", err)
		}
		for _, raw := range page.Items {
			var item goalItem
			if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
				r.logger.Warn("Failed to unmarshal goal item", zap.Error(err))
				continue
			}
			goals = append(goals, itemToRemote(&item))
		}
	}

	return goals, nil
}

// Update applies a partial patch to a remote goal.
//
// When the patch touches content fields the stored signature no longer
// describes the goal, so the update recomputes it and swaps the SIG#
// marker in the same transaction. Without the swap the old signature
// stays reserved and blocks other devices from ever creating that
// content remotely.
func (r *GoalRepository) Update(ctx context.Context, remoteID string, patch goal.Patch, ownerID string) error {
	contentChanged := patch.Title != nil || patch.Description != nil ||
		patch.Timeline != nil || patch.Milestones != nil

	var item *goalItem
	if contentChanged {
		var err error
		item, err = r.getGoalItem(ctx, ownerID, remoteID)
		if err != nil {
			return err
		}
	}

	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	set := ""

	add := func(attr string, value types.AttributeValue) {
		if set != "" {
			set += ", "
		}
		placeholder := "#" + attr
		names[placeholder] = attr
		values[":"+attr] = value
		set += fmt.Sprintf("%s = :%s", placeholder, attr)
	}

	if patch.Title != nil {
		add("Title", &types.AttributeValueMemberS{Value: *patch.Title})
	}
	if patch.Description != nil {
		add("Description", &types.AttributeValueMemberS{Value: *patch.Description})
	}
	if patch.Timeline != nil {
		add("Timeline", &types.AttributeValueMemberS{Value: *patch.Timeline})
	}
	if patch.Progress != nil {
		add("Progress", &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", *patch.Progress)})
	}
	if patch.Status != nil {
		add("Status", &types.AttributeValueMemberS{Value: string(*patch.Status)})
	}
	if patch.DueDate != nil {
		add("DueDate", &types.AttributeValueMemberS{Value: *patch.DueDate})
	}
	if patch.SubGoals != nil {
		av, err := attributevalue.Marshal(*patch.SubGoals)
		if err != nil {
			return fmt.Errorf("failed to marshal sub-goals: %w", err)
		}
		add("SubGoals", av)
	}
	if patch.CompletedSubGoals != nil {
		add("CompletedSubGoals", &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", *patch.CompletedSubGoals)})
	}
	if patch.Milestones != nil {
		milestonesJSON, err := json.Marshal(*patch.Milestones)
		if err != nil {
			return fmt.Errorf("failed to marshal milestones: %w", err)
		}
		add("Milestones", &types.AttributeValueMemberS{Value: string(milestonesJSON)})
	}
	if set == "" {
		return nil
	}
	add("UpdatedAt", &types.AttributeValueMemberS{Value: utils.NowRFC3339()})

	if contentChanged {
		newSig, err := signatureAfterPatch(item, patch)
		if err != nil {
			return err
		}
		if newSig != item.Signature {
			return r.updateWithSignatureSwap(ctx, remoteID, ownerID, set, names, values, item.Signature, newSig)
		}
	}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       goalKey(ownerID, remoteID),
		UpdateExpression:          aws.String("SET " + set),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ConditionExpression:       aws.String("attribute_exists(PK)"),
	})
	if err != nil {
		if isConditionalFailure(err) {
			return pkgerrors.NewNotFoundError("remote goal")
		}
		return pkgerrors.NewDatabaseError("update goal", err)
	}

	return nil
}

// updateWithSignatureSwap writes the patched goal, deletes the old SIG#
// marker and claims the new one in a single transaction. The put on the
// new marker is conditional, so two goals can never share a signature.
func (r *GoalRepository) updateWithSignatureSwap(ctx context.Context, remoteID, ownerID, set string, names map[string]string, values map[string]types.AttributeValue, oldSig, newSig string) error {
	names["#Signature"] = "Signature"
	values[":Signature"] = &types.AttributeValueMemberS{Value: newSig}
	set += ", #Signature = :Signature"

	marker, err := attributevalue.MarshalMap(map[string]string{
		"PK":         ownerKey(ownerID),
		"SK":         fmt.Sprintf("SIG#%s", newSig),
		"EntityType": "SIGNATURE",
		"GoalID":     remoteID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal signature marker: %w", err)
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: &types.Update{
				TableName:                 aws.String(r.tableName),
				Key:                       goalKey(ownerID, remoteID),
				UpdateExpression:          aws.String("SET " + set),
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
				ConditionExpression:       aws.String("attribute_exists(PK)"),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       sigKey(ownerID, oldSig),
			}},
			{Put: &types.Put{
				TableName:           aws.String(r.tableName),
				Item:                marker,
				ConditionExpression: aws.String("attribute_not_exists(PK)"),
			}},
		},
	})
	if err != nil {
		switch conditionalFailureIndex(err) {
		case 0:
			return pkgerrors.NewNotFoundError("remote goal")
		case 2:
			return pkgerrors.NewConflictError("updated content collides with an existing goal").WithCause(err)
		}
		if isConditionalFailure(err) {
			return pkgerrors.NewNotFoundError("remote goal")
		}
		return pkgerrors.NewDatabaseError("update goal", err)
	}

	r.logger.Debug("Remote signature marker swapped",
		zap.String("goalID", remoteID),
		zap.String("ownerID", ownerID),
	)
	return nil
}

// Delete removes a remote goal and its signature marker, so the same
// content can be recreated later.
func (r *GoalRepository) Delete(ctx context.Context, remoteID string, ownerID string) error {
	// The marker key needs the stored signature, so read the item first.
	item, err := r.getGoalItem(ctx, ownerID, remoteID)
	if err != nil {
		return err
	}

	_, err = r.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       goalKey(ownerID, remoteID),
			}},
			{Delete: &types.Delete{
				TableName: aws.String(r.tableName),
				Key:       sigKey(ownerID, item.Signature),
			}},
		},
	})
	if err != nil {
		return pkgerrors.NewDatabaseError("delete goal", err)
	}

	r.logger.Debug("Remote goal deleted",
		zap.String("goalID", remoteID),
		zap.String("ownerID", ownerID),
	)
	return nil
}

// getGoalItem fetches the stored goal document for the owner.
func (r *GoalRepository) getGoalItem(ctx context.Context, ownerID, remoteID string) (*goalItem, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       goalKey(ownerID, remoteID),
	})
	if err != nil {
		return nil, pkgerrors.NewDatabaseError("get goal", err)
	}
	if out.Item == nil {
		return nil, pkgerrors.NewNotFoundError("remote goal")
	}

	var item goalItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal goal: %w", err)
	}
	return &item, nil
}

// signatureAfterPatch computes the signature the goal will carry once
// the patch lands.
func signatureAfterPatch(item *goalItem, patch goal.Patch) (string, error) {
	var milestones []goal.Milestone
	if item.Milestones != "" {
		if err := json.Unmarshal([]byte(item.Milestones), &milestones); err != nil {
			return "", fmt.Errorf("failed to unmarshal milestones: %w", err)
		}
	}

	g := &goal.Goal{
		Title:       item.Title,
		Description: item.Description,
		Timeline:    item.Timeline,
		Milestones:  milestones,
	}
	g.Apply(patch)
	return goal.Signature(g), nil
}

func ownerKey(ownerID string) string {
	return fmt.Sprintf("USER#%s", ownerID)
}

func goalKey(ownerID, remoteID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: ownerKey(ownerID)},
		"SK": &types.AttributeValueMemberS{Value: fmt.Sprintf("GOAL#%s", remoteID)},
	}
}

func sigKey(ownerID, sig string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: ownerKey(ownerID)},
		"SK": &types.AttributeValueMemberS{Value: fmt.Sprintf("SIG#%s", sig)},
	}
}

func itemToRemote(item *goalItem) *ports.RemoteGoal {
	var milestones []goal.Milestone
	if item.Milestones != "" {
		if err := json.Unmarshal([]byte(item.Milestones), &milestones); err != nil {
			milestones = nil
		}
	}

	createdAt, _ := utils.ParseRFC3339(item.CreatedAt)
	return &ports.RemoteGoal{
		ID:                item.GoalID,
		OwnerID:           item.OwnerID,
		Title:             item.Title,
		Description:       item.Description,
		Timeline:          item.Timeline,
		Progress:          item.Progress,
		Status:            goal.Status(item.Status),
		DueDate:           item.DueDate,
		SubGoals:          item.SubGoals,
		CompletedSubGoals: item.CompletedSubGoals,
		Milestones:        milestones,
		CreatedAt:         createdAt,
	}
}

// isConditionalFailure reports whether the write was rejected by a
// condition expression rather than failing outright.
func isConditionalFailure(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tc *types.TransactionCanceledException
	if errors.As(err, &tc) {
		for _, reason := range tc.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

// conditionalFailureIndex returns the position of the first transaction
// item rejected by its condition expression, -1 when the error is not a
// cancelled transaction.
func conditionalFailureIndex(err error) int {
	var tc *types.TransactionCanceledException
	if errors.As(err, &tc) {
		for i, reason := range tc.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return i
			}
		}
	}
	return -1
}

var _ ports.RemoteStore = (*GoalRepository)(nil)

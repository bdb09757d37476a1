package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	log "github.com/sirupsen/logrus"

	"todo-api/domain"
)

// DefaultPartitionKey is used when no partition is configured.
const DefaultPartitionKey = "todos"

// entityTable is the subset of table operations TableStore needs.
type entityTable interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	GetEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.GetEntityOptions) (aztables.GetEntityResponse, error)
	UpdateEntity(ctx context.Context, entity []byte, options *aztables.UpdateEntityOptions) (aztables.UpdateEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	ListEntities(ctx context.Context, filter string) ([][]byte, error)
}

type azureTable struct {
	*aztables.Client
}

func (t azureTable) ListEntities(ctx context.Context, filter string) ([][]byte, error) {
	pager := t.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	var out [][]byte
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		out = append(out, resp.Entities...)
	}
	return out, nil
}

// Entity represents base table entity keys.
type Entity struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

type todoEntity struct {
	Entity
	Title       *string `json:"Title,omitempty"`
	Description *string `json:"Description,omitempty"`
	IsDone      bool    `json:"IsDone"`
}

// TableStore keeps todos in one partition of an Azure Storage table.
type TableStore struct {
	table     entityTable
	partition string
	logger    *log.Logger
}

// NewTableStore creates a TableStore from a storage connection string.
func NewTableStore(connStr, tableName, partition string, logger *log.Logger) (*TableStore, error) {
	opts := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute,
				RetryDelay:    time.Second,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, fmt.Errorf("table service: %w", err)
	}
	return newTableStore(azureTable{svc.NewClient(tableName)}, partition, logger), nil
}

func newTableStore(table entityTable, partition string, logger *log.Logger) *TableStore {
	if partition == "" {
		partition = DefaultPartitionKey
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &TableStore{table: table, partition: partition, logger: logger}
}

func (s *TableStore) GetAll(ctx context.Context) []domain.Todo {
	filter := "PartitionKey eq '" + escapeODataString(s.partition) + "'"
	rows, err := s.table.ListEntities(ctx, filter)
	if err != nil {
		s.logError(ctx, err, "", "list todos failed")
		return []domain.Todo{}
	}
	todos := make([]domain.Todo, 0, len(rows))
	for _, row := range rows {
		t, err := decodeTodoEntity(row)
		if err != nil {
			s.logError(ctx, err, "", "skipping corrupt todo entity")
			continue
		}
		todos = append(todos, t)
	}
	return todos
}

func (s *TableStore) GetByID(ctx context.Context, id string) (domain.Todo, bool) {
	if id == "" {
		return domain.Todo{}, false
	}
	resp, err := s.table.GetEntity(ctx, s.partition, id, nil)
	if err != nil {
		if !hasStatus(err, http.StatusNotFound) {
			s.logError(ctx, err, id, "get todo failed")
		}
		return domain.Todo{}, false
	}
	t, err := decodeTodoEntity(resp.Value)
	if err != nil {
		s.logError(ctx, err, id, "corrupt todo entity")
		return domain.Todo{}, false
	}
	return t, true
}

// Insert adds the entity; the table rejects an existing row key with 409,
// which makes the uniqueness check atomic on the server side.
func (s *TableStore) Insert(ctx context.Context, todo *domain.Todo) bool {
	if todo == nil || todo.ID == "" {
		return false
	}
	payload, err := json.Marshal(s.toEntity(*todo))
	if err != nil {
		s.logError(ctx, err, todo.ID, "encode todo failed")
		return false
	}
	if _, err := s.table.AddEntity(ctx, payload, nil); err != nil {
		if !hasStatus(err, http.StatusConflict) {
			s.logError(ctx, err, todo.ID, "insert todo failed")
		}
		return false
	}
	return true
}

// Update replaces the entity guarded by the ETag read just before, retrying
// when a concurrent writer changed it first.
func (s *TableStore) Update(ctx context.Context, id string, title, description, done *string) bool {
	if id == "" {
		return false
	}
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		resp, err := s.table.GetEntity(ctx, s.partition, id, nil)
		if err != nil {
			if !hasStatus(err, http.StatusNotFound) {
				s.logError(ctx, err, id, "get todo for update failed")
			}
			return false
		}
		current, err := decodeTodoEntity(resp.Value)
		if err != nil {
			s.logError(ctx, err, id, "corrupt todo entity")
			return false
		}
		payload, err := json.Marshal(s.toEntity(current.WithChanges(title, description, done)))
		if err != nil {
			s.logError(ctx, err, id, "encode todo failed")
			return false
		}
		etag := resp.ETag
		_, err = s.table.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &etag, UpdateMode: aztables.UpdateModeReplace})
		switch {
		case err == nil:
			return true
		case hasStatus(err, http.StatusPreconditionFailed):
			continue
		case hasStatus(err, http.StatusNotFound):
			return false
		default:
			s.logError(ctx, err, id, "update todo failed")
			return false
		}
	}
	s.logger.WithFields(log.Fields{"todo_id": id, "request_id": domain.RequestIDFromContext(ctx)}).Warn("update todo gave up after repeated conflicts")
	return false
}

func (s *TableStore) DeleteByID(ctx context.Context, id string) bool {
	if id == "" {
		return false
	}
	et := azcore.ETagAny
	if _, err := s.table.DeleteEntity(ctx, s.partition, id, &aztables.DeleteEntityOptions{IfMatch: &et}); err != nil {
		if !hasStatus(err, http.StatusNotFound) {
			s.logError(ctx, err, id, "delete todo failed")
		}
		return false
	}
	return true
}

func (s *TableStore) DeleteAll(ctx context.Context) {
	for _, t := range s.GetAll(ctx) {
		s.DeleteByID(ctx, t.ID)
	}
}

func (s *TableStore) toEntity(t domain.Todo) todoEntity {
	return todoEntity{
		Entity:      Entity{PartitionKey: s.partition, RowKey: t.ID},
		Title:       t.Title,
		Description: t.Description,
		IsDone:      t.Done,
	}
}

func (s *TableStore) logError(ctx context.Context, err error, id, msg string) {
	fields := log.Fields{"request_id": domain.RequestIDFromContext(ctx), "backend": "table"}
	if id != "" {
		fields["todo_id"] = id
	}
	s.logger.WithError(err).WithFields(fields).Error(msg)
}

func decodeTodoEntity(data []byte) (domain.Todo, error) {
	var ent todoEntity
	if err := json.Unmarshal(data, &ent); err != nil {
		return domain.Todo{}, err
	}
	if ent.RowKey == "" {
		return domain.Todo{}, errors.New("todo entity without row key")
	}
	return domain.Todo{
		ID:          ent.RowKey,
		Title:       ent.Title,
		Description: ent.Description,
		Done:        ent.IsDone,
	}, nil
}

func hasStatus(err error, status int) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == status
}

func escapeODataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

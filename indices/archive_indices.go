package indices

import (
	"context"
	"fmt"
	"time"

	"shopfloor/domain"
	"shopfloor/domain/transfer"
	"shopfloor/event"
	"shopfloor/persistence"

	"github.com/fundwit/go-commons/types"
	"github.com/jinzhu/gorm"
	"github.com/sirupsen/logrus"
)

const (
	ArchiveIndexEventHandlerName = "archiveIndexer"
	DefaultIndexName             = "completed-work-orders"

	retryBatchSize = 200
	indexTimeout   = 10 * time.Second
)

// DocumentIndexer stores one document under an id, implemented by es.Client.
type DocumentIndexer interface {
	Index(ctx context.Context, index string, id string, doc interface{}) error
}

// ArchiveDocument is the searchable form of an archived work order.
type ArchiveDocument struct {
	domain.CompletedWorkOrderDetail
	Key       string   `json:"key"`
	Operators []string `json:"operators"`
}

// ArchiveIndexer mirrors archived work orders into the search index.
type ArchiveIndexer struct {
	ds        *persistence.DataSourceManager
	indexer   DocumentIndexer
	IndexName string
}

func NewArchiveIndexer(ds *persistence.DataSourceManager, indexer DocumentIndexer, indexName string) *ArchiveIndexer {
	if indexName == "" {
		indexName = DefaultIndexName
	}
	return &ArchiveIndexer{ds: ds, indexer: indexer, IndexName: indexName}
}

// Handle indexes the archive named by an ARCHIVED event and marks the event synced.
func (x *ArchiveIndexer) Handle(e *event.EventRecord) *event.EventHandleResult {
	if e.SourceType != domain.KindCompletedWorkOrder || e.EventCategory != event.EventCategoryArchived {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
	defer cancel()
	if err := x.index(ctx, e); err != nil {
		return &event.EventHandleResult{
			Message:           fmt.Sprintf("index archive %d of %s: %v", e.SourceId, e.SourceKey, err),
			HandlerIdentifier: ArchiveIndexEventHandlerName,
		}
	}
	return &event.EventHandleResult{Success: true, HandlerIdentifier: ArchiveIndexEventHandlerName,
		Message: fmt.Sprintf("archive %s indexed", e.SourceKey)}
}

func (x *ArchiveIndexer) index(ctx context.Context, e *event.EventRecord) error {
	db := x.ds.GormDB(ctx)
	detail, err := transfer.Archived(db, e.SourceId)
	if err != nil {
		return err
	}
	if err := x.indexer.Index(ctx, x.IndexName, detail.ID.String(), NewArchiveDocument(detail)); err != nil {
		return err
	}
	return event.MarkSynced(db, e.ID)
}

// RetryUnsynced indexes archives whose ARCHIVED event is not yet synced, oldest first.
func (x *ArchiveIndexer) RetryUnsynced(ctx context.Context) (int, error) {
	var records []event.EventRecord
	err := x.ds.Read(ctx, func(db *gorm.DB) error {
		var err error
		records, err = event.LoadUnsynced(db, domain.KindCompletedWorkOrder, event.EventCategoryArchived, retryBatchSize)
		return err
	})
	if err != nil {
		return 0, err
	}
	failed := BatchActionError{}
	indexed := 0
	for i := range records {
		if err := ctx.Err(); err != nil {
			return indexed, err
		}
		if err := x.index(ctx, &records[i]); err != nil {
			failed[records[i].SourceId] = err
			logrus.Warnf("retry index archive %d %s: %v", records[i].SourceId, records[i].SourceKey, err)
			continue
		}
		indexed++
	}
	if len(failed) > 0 {
		return indexed, failed
	}
	return indexed, nil
}

func NewArchiveDocument(detail *domain.CompletedWorkOrderDetail) *ArchiveDocument {
	operators := domain.NewStringSet()
	for _, p := range detail.Processes {
		operators = operators.Add(p.Operators...)
	}
	return &ArchiveDocument{CompletedWorkOrderDetail: *detail, Key: detail.Key().String(), Operators: operators}
}

type BatchActionError map[types.ID]error

func (e BatchActionError) Error() string {
	return fmt.Sprintf("%v", map[types.ID]error(e))
}

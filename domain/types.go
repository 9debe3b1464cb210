package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusPaused     Status = "paused"
	StatusCancelled  Status = "cancelled"
)

type OrderSource string

const (
	OrderSourceERP             OrderSource = "erp"
	OrderSourceMES             OrderSource = "mes"
	OrderSourceERPCompanyOrder OrderSource = "erp_company_order"
)

type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "pending"
	ApprovalApproved  ApprovalStatus = "approved"
	ApprovalRejected  ApprovalStatus = "rejected"
	ApprovalCancelled ApprovalStatus = "cancelled"
)

type OnsiteEventType string

const (
	OnsiteStart    OnsiteEventType = "start"
	OnsitePause    OnsiteEventType = "pause"
	OnsiteResume   OnsiteEventType = "resume"
	OnsiteComplete OnsiteEventType = "complete"
)

type CompletionMethod string

const (
	CompletionByProcess CompletionMethod = "process"
	CompletionByReport  CompletionMethod = "report"
	CompletionByBoth    CompletionMethod = "both"
	CompletionNone      CompletionMethod = "none"
)

// entity kinds used in audit events and entity scoped logs
const (
	KindCompanyOrder       = "company_order"
	KindWorkOrder          = "work_order"
	KindWorkOrderProcess   = "work_order_process"
	KindFillWork           = "fill_work"
	KindOnsiteReport       = "onsite_report"
	KindCompletedWorkOrder = "completed_work_order"
	KindAllocation         = "allocation"
)

// StringSet is a sorted set of strings stored as a JSON array.
type StringSet []string

func NewStringSet(items ...string) StringSet {
	seen := map[string]bool{}
	r := StringSet{}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		r = append(r, item)
	}
	sort.Strings(r)
	return r
}

func (s StringSet) Add(items ...string) StringSet {
	return NewStringSet(append(append([]string{}, s...), items...)...)
}

func (s StringSet) Value() (driver.Value, error) {
	if s == nil {
		s = StringSet{}
	}
	jsonBytes, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(jsonBytes), nil
}

func (s *StringSet) Scan(v interface{}) error {
	jsonString, ok := v.(string)
	if !ok {
		jsonByte, ok := v.([]byte)
		if !ok {
			return fmt.Errorf("type is neither string nor []byte: %T %v", v, v)
		}
		jsonString = string(jsonByte)
	}
	return json.Unmarshal([]byte(jsonString), s)
}

package fillwork

import (
	"strings"
	"time"

	"shopfloor/bizerror"
	"shopfloor/common"
)

const (
	DefaultNormalHoursCap = 8.0
	DefaultMaxReportHours = 12.0
)

// Submission is a fill-work report as entered by an operator.
type Submission struct {
	CompanyCode string `json:"companyCode"`
	CompanyName string `json:"companyName"`
	Operator    string `json:"operator"`
	OrderNumber string `json:"orderNumber"`
	ProductID   string `json:"productId"`
	ProcessName string `json:"processName"`

	WorkDate   string `json:"workDate"`
	StartTime  string `json:"startTime"`
	EndTime    string `json:"endTime"`
	HasBreak   bool   `json:"hasBreak"`
	BreakStart string `json:"breakStart"`
	BreakEnd   string `json:"breakEnd"`

	WorkQuantity   int64  `json:"workQuantity"`
	DefectQuantity int64  `json:"defectQuantity"`
	Equipment      string `json:"equipment"`
	Remarks        string `json:"remarks"`
	AbnormalNotes  string `json:"abnormalNotes"`
}

type Limits struct {
	NormalHoursCap float64
	MaxReportHours float64
}

// Measured holds the time figures derived from a valid submission.
type Measured struct {
	WorkDate      time.Time
	StartAt       time.Time
	EndAt         time.Time
	Duration      time.Duration
	Break         time.Duration
	WorkHours     float64
	OvertimeHours float64
	BreakHours    float64
}

// IsSMT tells whether the process belongs to the SMT family, which requires an equipment.
func IsSMT(processName string) bool {
	return strings.Contains(strings.ToUpper(processName), "SMT")
}

// Validate checks the submission rule by rule and stops at the first violation.
func Validate(s *Submission, now time.Time, loc *time.Location, limits Limits) (*Measured, error) {
	if loc == nil {
		loc = time.Local
	}
	if limits.NormalHoursCap <= 0 {
		limits.NormalHoursCap = DefaultNormalHoursCap
	}
	if limits.MaxReportHours <= 0 {
		limits.MaxReportHours = DefaultMaxReportHours
	}

	required := []struct{ field, value string }{
		{"operator", s.Operator},
		{"company", s.CompanyCode + s.CompanyName},
		{"order_number", s.OrderNumber},
		{"product_id", s.ProductID},
		{"process_name", s.ProcessName},
		{"work_date", s.WorkDate},
		{"start_time", s.StartTime},
		{"end_time", s.EndTime},
	}
	if IsSMT(s.ProcessName) {
		required = append(required, struct{ field, value string }{"equipment", s.Equipment})
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, bizerror.NewValidationError(bizerror.MissingRequired, r.field, "%s is required", r.field)
		}
	}
	if s.HasBreak && (strings.TrimSpace(s.BreakStart) == "" || strings.TrimSpace(s.BreakEnd) == "") {
		return nil, bizerror.NewValidationError(bizerror.MissingRequired, "break_start", "break start and end are required")
	}

	if s.WorkQuantity < 0 {
		return nil, bizerror.NewValidationError(bizerror.NegativeQuantity, "work_quantity", "work quantity %d is negative", s.WorkQuantity)
	}
	if s.DefectQuantity < 0 {
		return nil, bizerror.NewValidationError(bizerror.NegativeQuantity, "defect_quantity", "defect quantity %d is negative", s.DefectQuantity)
	}

	workDate, ok := common.ParseLenientDate(s.WorkDate, loc)
	if !ok {
		return nil, bizerror.NewValidationError(bizerror.InvalidTime, "work_date", "invalid work date %q", s.WorkDate)
	}
	if workDate.After(common.DateOf(now.In(loc))) {
		return nil, bizerror.NewValidationError(bizerror.FutureDate, "work_date", "work date %s is in the future", s.WorkDate)
	}

	startAt, endAt, err := Window(workDate, s.StartTime, s.EndTime, loc)
	if err != nil {
		return nil, err
	}
	duration := endAt.Sub(startAt)
	if duration <= 0 {
		return nil, bizerror.NewValidationError(bizerror.InvalidTime, "end_time", "end time %s must differ from start time %s",
			s.EndTime, s.StartTime)
	}
	if duration.Hours() > limits.MaxReportHours {
		return nil, bizerror.NewValidationError(bizerror.DurationExceeded, "end_time", "reported %.2f hours, at most %.0f hours allowed",
			duration.Hours(), limits.MaxReportHours)
	}

	var breakDuration time.Duration
	if s.HasBreak {
		if breakDuration, err = BreakDuration(startAt, endAt, s.BreakStart, s.BreakEnd); err != nil {
			return nil, err
		}
	}

	m := &Measured{WorkDate: workDate, StartAt: startAt, EndAt: endAt, Duration: duration, Break: breakDuration}
	m.WorkHours, m.OvertimeHours, m.BreakHours = DerivedHours(duration, breakDuration, limits.NormalHoursCap)
	return m, nil
}

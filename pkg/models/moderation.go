package models

// ReportReason is the closed set of moderation reasons.
type ReportReason string

const (
	ReasonSpam          ReportReason = "spam"
	ReasonHarassment    ReportReason = "harassment"
	ReasonInappropriate ReportReason = "inappropriate_content"
	ReasonFakeProfile   ReportReason = "fake_profile"
	ReasonScam          ReportReason = "scam"
	ReasonUnderage      ReportReason = "underage"
	ReasonOther         ReportReason = "other"
)

var reportReasons = map[ReportReason]struct{}{
	ReasonSpam:          {},
	ReasonHarassment:    {},
	ReasonInappropriate: {},
	ReasonFakeProfile:   {},
	ReasonScam:          {},
	ReasonUnderage:      {},
	ReasonOther:         {},
}

func (r ReportReason) Valid() bool {
	_, ok := reportReasons[r]
	return ok
}

type Report struct {
	ID         string       `json:"id"`
	ReporterID string       `json:"reporter_id"`
	TargetID   string       `json:"target_id"`
	Reason     ReportReason `json:"reason"`
	Details    string       `json:"details,omitempty"`
	CreatedTS  int64        `json:"created_ts"`
}

type AppealStatus string

const (
	AppealOpen     AppealStatus = "open"
	AppealResolved AppealStatus = "resolved"
)

// Appeal is a free text appeal against a moderation action. At most one
// open appeal exists per (UserID, ActionID).
type Appeal struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	ActionID  string       `json:"action_id"`
	Reason    string       `json:"reason"`
	Details   string       `json:"details"`
	Status    AppealStatus `json:"status"`
	CreatedTS int64        `json:"created_ts"`
}

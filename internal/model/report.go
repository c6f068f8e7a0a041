package model

const (
	ReportOpen     = "open"
	ReportResolved = "resolved"
)

// Report 用户举报记录
type Report struct {
	UUIDBase
	ReporterID string `gorm:"type:varchar(36);not null;index" json:"reporterId"`
	TargetID   string `gorm:"type:varchar(36);not null;index" json:"targetId"`
	Reason     string `gorm:"size:1000;not null" json:"reason"`
	Status     string `gorm:"type:varchar(16);not null;default:'open'" json:"status"`
}

func (Report) TableName() string {
	return "reports"
}

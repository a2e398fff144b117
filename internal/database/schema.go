package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RunQueued    string = "QUEUED"
	RunTraining  string = "TRAINING"
	RunCompleted string = "COMPLETED"
	RunFailed    string = "FAILED"
)

type Sweep struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	Name     string `gorm:"not null"`
	RemoteId string `gorm:"size:64;not null"`
	Method   string `gorm:"size:20;not null"`
	Metric   string `gorm:"size:64"`
	Trials   int

	CorpusSource string
	CreationTime time.Time

	Runs []TrialRun `gorm:"foreignKey:SweepId;constraint:OnDelete:CASCADE"`
}

type TrialRun struct {
	Id uuid.UUID `gorm:"type:uuid;primaryKey"`

	SweepId uuid.UUID `gorm:"type:uuid;not null;index"`
	Sweep   *Sweep    `gorm:"foreignKey:SweepId"`

	RemoteId string `gorm:"size:64"`
	RunName  string
	Status   string `gorm:"size:20;not null"`

	Params  datatypes.JSON `gorm:"type:jsonb"`
	Metrics datatypes.JSON `gorm:"type:jsonb"`
	Report  string
	Error   string

	CreationTime   time.Time
	CompletionTime sql.NullTime
}

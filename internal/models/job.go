package models

import (
	"time"

	"github.com/uptrace/bun"
)

type JobStatus string

const (
	JobStatusCreated   JobStatus = "created"
	JobStatusPaid      JobStatus = "paid"
	JobStatusPrinting  JobStatus = "printing"
	JobStatusDone      JobStatus = "done"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusExpired   JobStatus = "expired"
)

// AllJobStatuses lists every status the lattice knows about.
var AllJobStatuses = []JobStatus{
	JobStatusCreated,
	JobStatusPaid,
	JobStatusPrinting,
	JobStatusDone,
	JobStatusFailed,
	JobStatusCancelled,
	JobStatusExpired,
}

func (s JobStatus) Valid() bool {
	for _, v := range AllJobStatuses {
		if v == s {
			return true
		}
	}
	return false
}

type PrintJob struct {
	bun.BaseModel `bun:"table:print_jobs,alias:j"`

	ID         string    `json:"id" bun:"id,pk"`
	UserID     string    `json:"user_id" bun:"user_id"`
	FileURL    string    `json:"file_url" bun:"file_url"`
	FileName   *string   `json:"file_name" bun:"file_name"`
	TotalPages int       `json:"total_pages" bun:"total_pages"`
	Color      bool      `json:"color" bun:"color"`
	Duplex     bool      `json:"duplex" bun:"duplex"`
	Copies     int       `json:"copies" bun:"copies"`
	PrinterID  *string   `json:"printer_id" bun:"printer_id"`
	Status     JobStatus `json:"status" bun:"status"`
	CreatedAt  time.Time `json:"created_at" bun:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" bun:"updated_at"`
}

// Clone returns a deep copy so stores never hand out shared pointers.
func (j *PrintJob) Clone() *PrintJob {
	c := *j
	if j.FileName != nil {
		v := *j.FileName
		c.FileName = &v
	}
	if j.PrinterID != nil {
		v := *j.PrinterID
		c.PrinterID = &v
	}
	return &c
}

// PrintedSides is the number of page sides the printer will produce.
func (j *PrintJob) PrintedSides() int {
	return j.TotalPages * j.Copies
}

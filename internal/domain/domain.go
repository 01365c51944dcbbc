package domain

import "math"

// Job lifecycle statuses.
const (
	StatusPendingApproval = "pending_approval"
	StatusOpen            = "open"
	StatusInProgress      = "in_progress"
	StatusDelivered       = "delivered"
	StatusCompleted       = "completed"
)

// Notification event tags.
const (
	NotifyApplicationReceived = "application_received"
	NotifyApplicationApproved = "application_approved"
	NotifyWorkDelivered       = "work_delivered"
	NotifyJobCompleted        = "job_completed"
)

// PlatformFeePercent is deducted from a job budget before crediting the worker.
const PlatformFeePercent = 3

// MaxSkills caps an agent's skill list.
const MaxSkills = 10

type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Agent names are unique case-insensitively. BalanceCents holds virtual
// credits in minor units and is never persisted negative.
type Agent struct {
	Name             string  `json:"name"`
	Bio              string  `json:"bio,omitempty"`
	PortfolioURL     string  `json:"portfolio_url,omitempty"`
	Skills           []Skill `json:"skills,omitempty"`
	TwitterHandle    *string `json:"twitter_handle,omitempty"`
	Verified         bool    `json:"verified"`
	VerificationCode string  `json:"verification_code,omitempty"`
	BalanceCents     int64   `json:"balance_cents"`
	SecretHash       string  `json:"-"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	UpdatedAt        string  `json:"updated_at" format:"date-time"`
}

type Job struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	PostedBy       string   `json:"posted_by"`
	BudgetCents    int64    `json:"budget_cents"`
	Status         string   `json:"status" enum:"pending_approval,open,in_progress,delivered,completed"`
	ApprovalCode   *string  `json:"approval_code,omitempty"`
	AssignedTo     *string  `json:"assigned_to,omitempty"`
	ApplicantCount int      `json:"applicant_count"`
	CommentCount   int      `json:"comment_count"`
	CreatedAt      string   `json:"created_at" format:"date-time"`
	CompletedAt    *string  `json:"completed_at,omitempty" format:"date-time"`
}

// Application is unique per (job, applicant).
type Application struct {
	JobID     string `json:"job_id"`
	Applicant string `json:"applicant"`
	Message   string `json:"message,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Delivery is 1:1 with a job; resubmission overwrites.
type Delivery struct {
	JobID       string   `json:"job_id"`
	DeliveredBy string   `json:"delivered_by"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
}

type Comment struct {
	ID            string `json:"id"`
	JobID         string `json:"job_id"`
	Author        string `json:"author"`
	Body          string `json:"body"`
	IsApplication bool   `json:"is_application,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
}

type Notification struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Type      string `json:"type"`
	JobID     string `json:"job_id,omitempty"`
	JobTitle  string `json:"job_title,omitempty"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Stats struct {
	OpenJobs      int `json:"open_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	Agents        int `json:"agents"`
}

// Cents converts a decimal credit amount to minor units.
func Cents(credits float64) int64 {
	return int64(math.Round(credits * 100))
}

// Credits converts minor units back to a decimal credit amount.
func Credits(cents int64) float64 {
	return float64(cents) / 100
}

// FeeCents returns the platform fee for a budget, rounded half up.
func FeeCents(budgetCents int64) int64 {
	return (budgetCents*PlatformFeePercent + 50) / 100
}

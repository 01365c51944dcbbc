package server

import (
	"fmt"

	"clawwork/internal/domain"
)

// Request payloads

type RegisterAgentRequest struct {
	Name string `json:"name" minLength:"1" maxLength:"64"`
	Bio  string `json:"bio,omitempty" maxLength:"2000"`
}

type UpdateProfileRequest struct {
	Bio          *string        `json:"bio,omitempty" maxLength:"2000"`
	PortfolioURL *string        `json:"portfolio_url,omitempty" maxLength:"500"`
	Skills       []domain.Skill `json:"skills,omitempty" maxItems:"10"`
}

type VerifyAgentRequest struct {
	PostURL string `json:"post_url" minLength:"1"`
}

type PostJobRequest struct {
	Title       string   `json:"title" minLength:"1" maxLength:"200"`
	Description string   `json:"description,omitempty" maxLength:"10000"`
	Tags        []string `json:"tags,omitempty" maxItems:"20"`
	Budget      float64  `json:"budget,omitempty" minimum:"0"`
}

type ApplyRequest struct {
	Message string `json:"message,omitempty" maxLength:"2000"`
}

type AssignRequest struct {
	Assignee string `json:"assignee" minLength:"1"`
}

type DeliverRequest struct {
	Content     string   `json:"content" minLength:"1"`
	Attachments []string `json:"attachments,omitempty" maxItems:"20"`
}

type ApproveJobRequest struct {
	PostURL string `json:"post_url" minLength:"1"`
}

type AddCommentRequest struct {
	Body string `json:"body" minLength:"1" maxLength:"5000"`
}

type MarkReadRequest struct {
	IDs []string `json:"ids,omitempty"`
}

// Response payloads

// envelope is the uniform success wrapper.
type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Message string `json:"message,omitempty"`
}

func ok[T any](data T) envelope[T] {
	return envelope[T]{Success: true, Data: data}
}

type AgentResponse struct {
	Name             string         `json:"name"`
	Bio              string         `json:"bio,omitempty"`
	PortfolioURL     string         `json:"portfolio_url,omitempty"`
	Skills           []domain.Skill `json:"skills,omitempty"`
	TwitterHandle    *string        `json:"twitter_handle,omitempty"`
	Verified         bool           `json:"verified"`
	VerificationCode string         `json:"verification_code,omitempty"`
	Balance          float64        `json:"balance"`
	CreatedAt        string         `json:"created_at"`
	UpdatedAt        string         `json:"updated_at"`
}

func agentResponse(a domain.Agent) AgentResponse {
	return AgentResponse{
		Name:             a.Name,
		Bio:              a.Bio,
		PortfolioURL:     a.PortfolioURL,
		Skills:           a.Skills,
		TwitterHandle:    a.TwitterHandle,
		Verified:         a.Verified,
		VerificationCode: a.VerificationCode,
		Balance:          domain.Credits(a.BalanceCents),
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

// publicAgentResponse strips fields only the agent itself should see.
func publicAgentResponse(a domain.Agent) AgentResponse {
	r := agentResponse(a)
	r.VerificationCode = ""
	return r
}

type JobResponse struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	PostedBy       string   `json:"posted_by"`
	Budget         float64  `json:"budget"`
	Status         string   `json:"status"`
	ApprovalCode   *string  `json:"approval_code,omitempty"`
	AssignedTo     *string  `json:"assigned_to,omitempty"`
	ApplicantCount int      `json:"applicant_count"`
	CommentCount   int      `json:"comment_count"`
	CreatedAt      string   `json:"created_at"`
	CompletedAt    *string  `json:"completed_at,omitempty"`
}

// jobResponse hides the approval code unless the caller is entitled to it.
func jobResponse(j domain.Job, includeApproval bool) JobResponse {
	r := JobResponse{
		ID:             j.ID,
		Title:          j.Title,
		Description:    j.Description,
		Tags:           j.Tags,
		PostedBy:       j.PostedBy,
		Budget:         domain.Credits(j.BudgetCents),
		Status:         j.Status,
		AssignedTo:     j.AssignedTo,
		ApplicantCount: j.ApplicantCount,
		CommentCount:   j.CommentCount,
		CreatedAt:      j.CreatedAt,
		CompletedAt:    j.CompletedAt,
	}
	if includeApproval {
		r.ApprovalCode = j.ApprovalCode
	}
	return r
}

func mapJobs(jobs []domain.Job, includeApproval bool) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, jobResponse(j, includeApproval))
	}
	return out
}

type ApplicationResponse struct {
	JobID     string `json:"job_id"`
	Applicant string `json:"applicant"`
	Message   string `json:"message,omitempty"`
	CreatedAt string `json:"created_at"`
}

func mapApplications(apps []domain.Application) []ApplicationResponse {
	out := make([]ApplicationResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, ApplicationResponse(a))
	}
	return out
}

type DeliveryResponse struct {
	JobID       string   `json:"job_id"`
	DeliveredBy string   `json:"delivered_by"`
	Content     string   `json:"content"`
	Attachments []string `json:"attachments,omitempty"`
	CreatedAt   string   `json:"created_at"`
}

type CommentResponse struct {
	ID            string `json:"id"`
	JobID         string `json:"job_id"`
	Author        string `json:"author"`
	Body          string `json:"body"`
	IsApplication bool   `json:"is_application,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func mapComments(comments []domain.Comment) []CommentResponse {
	out := make([]CommentResponse, 0, len(comments))
	for _, c := range comments {
		out = append(out, CommentResponse(c))
	}
	return out
}

type NotificationResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	JobID     string `json:"job_id,omitempty"`
	JobTitle  string `json:"job_title,omitempty"`
	Message   string `json:"message"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

func mapNotifications(items []domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, NotificationResponse{
			ID:        n.ID,
			Type:      n.Type,
			JobID:     n.JobID,
			JobTitle:  n.JobTitle,
			Message:   n.Message,
			Read:      n.Read,
			CreatedAt: n.CreatedAt,
		})
	}
	return out
}

// RegisterData is returned once at registration; the secret is never shown again.
type RegisterData struct {
	Agent            AgentResponse `json:"agent"`
	Secret           string        `json:"secret"`
	VerificationCode string        `json:"verification_code"`
	Instructions     string        `json:"instructions"`
}

type ClaimData struct {
	Name             string `json:"name"`
	Verified         bool   `json:"verified"`
	VerificationCode string `json:"verification_code,omitempty"`
	Instructions     string `json:"instructions,omitempty"`
}

type BalanceData struct {
	Name    string  `json:"name"`
	Balance float64 `json:"balance"`
}

type PendingApprovalData struct {
	Job          JobResponse `json:"job"`
	ApprovalCode string      `json:"approval_code"`
	Instructions string      `json:"instructions"`
}

// SessionData carries a signed token exchanged for the agent secret.
type SessionData struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

type MarkReadData struct {
	Updated int `json:"updated"`
}

type StatsResponse struct {
	OpenJobs      int `json:"open_jobs"`
	CompletedJobs int `json:"completed_jobs"`
	Agents        int `json:"agents"`
}

func verificationInstructions(code string) string {
	return fmt.Sprintf("Post a public tweet containing the code %s, then call verify with the tweet URL.", code)
}

func approvalInstructions(code string) string {
	return fmt.Sprintf("Post a public tweet containing the code %s from the account that owns this agent, then call approve with the tweet URL.", code)
}

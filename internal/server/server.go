// Package server exposes the marketplace over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"clawwork/internal/domain"
	"clawwork/internal/engine"
	"clawwork/internal/ledger"
	"clawwork/internal/notify"
	"clawwork/internal/store"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   *engine.Engine
	Ledger   *ledger.Ledger
	Store    store.Store
	Notify   *notify.Notifier
	BasePath string
	Auth     AuthConfig
	Log      zerolog.Logger
	Version  string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_status"`
	Message string         `json:"message" example:"job is open, must be delivered"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error side of the response envelope.
type apiError struct {
	status  int
	Success bool         `json:"success"`
	Body    apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Clawwork API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			// Schema validation failures surface as validation_error.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(requestLogger(cfg.Log))
	router.Use(newAuthMiddleware(cfg.Auth, cfg.Ledger))

	hcfg := huma.DefaultConfig("Clawwork API", cfg.Version)
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerHealth(group, cfg.Version)
	registerStats(group, cfg.Engine)
	registerAgents(group, cfg)
	registerJobs(group, cfg)
	registerNotifications(group, cfg)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var se huma.StatusError
	if errors.As(err, &se) {
		return se
	}
	var ise *engine.InvalidStatusError
	if errors.As(err, &ise) {
		return newAPIError(http.StatusBadRequest, "invalid_status", err.Error(), map[string]any{
			"current":  ise.Current,
			"required": ise.Required,
		})
	}
	var ve *engine.VerificationError
	if errors.As(err, &ve) {
		return newAPIError(http.StatusBadRequest, "verification_failed", err.Error(), ve.Details)
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrForbidden):
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, engine.ErrAlreadyApplied):
		return newAPIError(http.StatusBadRequest, "already_applied", err.Error(), nil)
	case errors.Is(err, ledger.ErrAlreadyVerified):
		return newAPIError(http.StatusBadRequest, "already_verified", err.Error(), nil)
	case errors.Is(err, ledger.ErrNameTaken):
		return newAPIError(http.StatusBadRequest, "agent_exists", err.Error(), nil)
	case errors.Is(err, ledger.ErrInsufficientBalance):
		return newAPIError(http.StatusBadRequest, "insufficient_balance", err.Error(), nil)
	case errors.Is(err, ledger.ErrInvalidSecret):
		return newAPIError(http.StatusUnauthorized, "unauthorized", "invalid credentials", nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	if strings.Contains(lowered, "required") || strings.Contains(lowered, "invalid") ||
		strings.Contains(lowered, "must") || strings.Contains(lowered, "malformed") {
		return newAPIError(http.StatusBadRequest, "validation_error", msg, nil)
	}
	return newAPIError(http.StatusInternalServerError, "server_error", "internal error", map[string]any{"error": msg})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation_error"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusInternalServerError:
		return "server_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerHealth(api huma.API, version string) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body envelope[map[string]string] `json:"body"`
	}, error) {
		return &struct {
			Body envelope[map[string]string] `json:"body"`
		}{Body: ok(map[string]string{"status": "ok", "version": version})}, nil
	})
}

func registerStats(api huma.API, e *engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Marketplace stats",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body envelope[StatsResponse] `json:"body"`
	}, error) {
		s, err := e.Stats(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[StatsResponse] `json:"body"`
		}{Body: ok(StatsResponse(s))}, nil
	})
}

func registerAgents(api huma.API, cfg Config) {
	e := cfg.Engine
	led := cfg.Ledger

	huma.Register(api, huma.Operation{
		OperationID:   "register-agent",
		Method:        http.MethodPost,
		Path:          "/agents/register",
		Summary:       "Register agent",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RegisterAgentRequest `json:"body"`
	}) (*struct {
		Body envelope[RegisterData] `json:"body"`
	}, error) {
		a, secret, err := led.Register(ctx, input.Body.Name, input.Body.Bio)
		if err != nil {
			return nil, handleError(err)
		}
		data := RegisterData{
			Agent:            agentResponse(a),
			Secret:           secret,
			VerificationCode: a.VerificationCode,
			Instructions:     verificationInstructions(a.VerificationCode),
		}
		out := ok(data)
		out.Message = "Save the secret now. It cannot be retrieved again."
		return &struct {
			Body envelope[RegisterData] `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-session",
		Method:        http.MethodPost,
		Path:          "/agents/session",
		Summary:       "Exchange credentials for a session token",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body envelope[SessionData] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		token, err := IssueSessionToken(cfg.Auth.JWTSecret, name, sessionTTL, time.Now())
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[SessionData] `json:"body"`
		}{Body: ok(SessionData{Token: token, ExpiresIn: int64(sessionTTL.Seconds())})}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/agents/me",
		Summary:     "Current agent profile",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body envelope[AgentResponse] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := cfg.Store.GetAgent(ctx, name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[AgentResponse] `json:"body"`
		}{Body: ok(agentResponse(a))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-profile",
		Method:      http.MethodPut,
		Path:        "/agents/me/profile",
		Summary:     "Update agent profile",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body UpdateProfileRequest `json:"body"`
	}) (*struct {
		Body envelope[AgentResponse] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := led.UpdateProfile(ctx, name, ledger.ProfileUpdate{
			Bio:          input.Body.Bio,
			PortfolioURL: input.Body.PortfolioURL,
			Skills:       input.Body.Skills,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[AgentResponse] `json:"body"`
		}{Body: ok(agentResponse(a))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent",
		Method:      http.MethodGet,
		Path:        "/agents/{name}",
		Summary:     "Public agent profile",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body envelope[AgentResponse] `json:"body"`
	}, error) {
		a, err := cfg.Store.GetAgent(ctx, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[AgentResponse] `json:"body"`
		}{Body: ok(publicAgentResponse(a))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent-balance",
		Method:      http.MethodGet,
		Path:        "/agents/{name}/balance",
		Summary:     "Agent balance",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body envelope[BalanceData] `json:"body"`
	}, error) {
		a, err := cfg.Store.GetAgent(ctx, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[BalanceData] `json:"body"`
		}{Body: ok(BalanceData{Name: a.Name, Balance: domain.Credits(a.BalanceCents)})}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-agent-claim",
		Method:      http.MethodGet,
		Path:        "/agents/{name}/claim",
		Summary:     "Claim page data",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body envelope[ClaimData] `json:"body"`
	}, error) {
		a, err := cfg.Store.GetAgent(ctx, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		data := ClaimData{Name: a.Name, Verified: a.Verified}
		if !a.Verified {
			data.VerificationCode = a.VerificationCode
			data.Instructions = verificationInstructions(a.VerificationCode)
		}
		return &struct {
			Body envelope[ClaimData] `json:"body"`
		}{Body: ok(data)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-pending-approvals",
		Method:      http.MethodGet,
		Path:        "/agents/{name}/pending-approvals",
		Summary:     "Jobs awaiting an approval tweet",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string `path:"name"`
	}) (*struct {
		Body envelope[[]PendingApprovalData] `json:"body"`
	}, error) {
		if _, err := cfg.Store.GetAgent(ctx, input.Name); err != nil {
			return nil, handleError(err)
		}
		jobs, err := e.PendingApprovals(ctx, input.Name)
		if err != nil {
			return nil, handleError(err)
		}
		data := make([]PendingApprovalData, 0, len(jobs))
		for _, j := range jobs {
			code := ""
			if j.ApprovalCode != nil {
				code = *j.ApprovalCode
			}
			data = append(data, PendingApprovalData{
				Job:          jobResponse(j, true),
				ApprovalCode: code,
				Instructions: approvalInstructions(code),
			})
		}
		return &struct {
			Body envelope[[]PendingApprovalData] `json:"body"`
		}{Body: ok(data)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-agent",
		Method:      http.MethodPost,
		Path:        "/agents/{name}/verify",
		Summary:     "Verify agent ownership via tweet",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name string             `path:"name"`
		Body VerifyAgentRequest `json:"body"`
	}) (*struct {
		Body envelope[AgentResponse] `json:"body"`
	}, error) {
		a, err := e.VerifyAgent(ctx, input.Name, input.Body.PostURL)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[AgentResponse] `json:"body"`
		}{Body: ok(agentResponse(a))}, nil
	})
}

func registerJobs(api huma.API, cfg Config) {
	e := cfg.Engine

	huma.Register(api, huma.Operation{
		OperationID:   "post-job",
		Method:        http.MethodPost,
		Path:          "/jobs",
		Summary:       "Post a job",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body PostJobRequest `json:"body"`
	}) (*struct {
		Body envelope[JobResponse] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.PostJob(ctx, engine.JobPostOptions{
			Poster:      name,
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Tags:        input.Body.Tags,
			BudgetCents: domain.Cents(input.Body.Budget),
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := ok(jobResponse(j, true))
		if j.Status == domain.StatusPendingApproval && j.ApprovalCode != nil {
			out.Message = approvalInstructions(*j.ApprovalCode)
		}
		return &struct {
			Body envelope[JobResponse] `json:"body"`
		}{Body: out}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-jobs",
		Method:      http.MethodGet,
		Path:        "/jobs",
		Summary:     "List jobs",
	}, func(ctx context.Context, input *struct {
		Query  string `query:"q"`
		Status string `query:"status"`
		Limit  int    `query:"limit" default:"50" minimum:"1" maximum:"200"`
	}) (*struct {
		Body envelope[[]JobResponse] `json:"body"`
	}, error) {
		jobs, err := e.Store.ListJobs(ctx, store.JobFilters{
			Query:  input.Query,
			Status: input.Status,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		// Gated jobs are invisible until approved.
		visible := jobs[:0]
		for _, j := range jobs {
			if j.Status != domain.StatusPendingApproval {
				visible = append(visible, j)
			}
		}
		return &struct {
			Body envelope[[]JobResponse] `json:"body"`
		}{Body: ok(mapJobs(visible, false))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}",
		Summary:     "Get job",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body envelope[JobResponse] `json:"body"`
	}, error) {
		j, err := e.Store.GetJob(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		identity, _ := identityFromContext(ctx)
		poster := identity != "" && strings.EqualFold(identity, j.PostedBy)
		return &struct {
			Body envelope[JobResponse] `json:"body"`
		}{Body: ok(jobResponse(j, poster))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "apply-to-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{id}/apply",
		Summary:     "Apply to a job",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string       `path:"id"`
		Body ApplyRequest `json:"body"`
	}) (*struct {
		Body envelope[JobResponse] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.Apply(ctx, input.ID, name, input.Body.Message)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[JobResponse] `json:"body"`
		}{Body: ok(jobResponse(j, false))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-applications",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}/applications",
		Summary:     "List job applications",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body envelope[[]ApplicationResponse] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.Store.GetJob(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if !strings.EqualFold(j.PostedBy, name) {
			return nil, handleError(engine.ErrForbidden)
		}
		apps, err := e.Store.ListApplications(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[[]ApplicationResponse] `json:"body"`
		}{Body: ok(mapApplications(apps))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "select-applicant",
		Method:      http.MethodPost,
		Path:        "/jobs/{id}/select/{applicant}",
		Summary:     "Select an applicant",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID        string `path:"id"`
		Applicant string `path:"applicant"`
	}) (*struct {
		Body envelope[JobResponse] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.Select(ctx, input.ID, name, input.Applicant)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[JobResponse] `json:"body"`
		}{Body: ok(jobResponse(j, true))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{id}/assign",
		Summary:     "Assign a worker directly",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string        `path:"id"`
		Body AssignRequest `json:"body"`
	}) (*struct {
		Body envelope[JobResponse] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.Assign(ctx, input.ID, name, input.Body.Assignee)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[JobResponse] `json:"body"`
		}{Body: ok(jobResponse(j, true))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "deliver-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{id}/deliver",
		Summary:     "Deliver work",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string         `path:"id"`
		Body DeliverRequest `json:"body"`
	}) (*struct {
		Body envelope[JobResponse] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.Deliver(ctx, input.ID, name, input.Body.Content, input.Body.Attachments)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[JobResponse] `json:"body"`
		}{Body: ok(jobResponse(j, false))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-job-delivery",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}/delivery",
		Summary:     "Get delivered work",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body envelope[DeliveryResponse] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.DeliveryFor(ctx, input.ID, name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[DeliveryResponse] `json:"body"`
		}{Body: ok(DeliveryResponse(d))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{id}/complete",
		Summary:     "Accept delivered work and pay out",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body envelope[JobResponse] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		j, err := e.Complete(ctx, input.ID, name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[JobResponse] `json:"body"`
		}{Body: ok(jobResponse(j, false))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-job",
		Method:      http.MethodPost,
		Path:        "/jobs/{id}/approve",
		Summary:     "Approve a gated paid job via tweet",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body ApproveJobRequest `json:"body"`
	}) (*struct {
		Body envelope[JobResponse] `json:"body"`
	}, error) {
		// Anonymous approval is allowed; the tweet itself proves ownership.
		identity, _ := identityFromContext(ctx)
		j, err := e.ApproveJob(ctx, input.ID, identity, input.Body.PostURL)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[JobResponse] `json:"body"`
		}{Body: ok(jobResponse(j, false))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-comments",
		Method:      http.MethodGet,
		Path:        "/jobs/{id}/comments",
		Summary:     "List job comments",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body envelope[[]CommentResponse] `json:"body"`
	}, error) {
		if _, err := e.Store.GetJob(ctx, input.ID); err != nil {
			return nil, handleError(err)
		}
		comments, err := e.Store.ListComments(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[[]CommentResponse] `json:"body"`
		}{Body: ok(mapComments(comments))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-comment",
		Method:        http.MethodPost,
		Path:          "/jobs/{id}/comments",
		Summary:       "Comment on a job",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID   string            `path:"id"`
		Body AddCommentRequest `json:"body"`
	}) (*struct {
		Body envelope[CommentResponse] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.AddComment(ctx, input.ID, name, input.Body.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[CommentResponse] `json:"body"`
		}{Body: ok(CommentResponse(c))}, nil
	})
}

func registerNotifications(api huma.API, cfg Config) {
	n := cfg.Notify

	huma.Register(api, huma.Operation{
		OperationID: "list-notifications",
		Method:      http.MethodGet,
		Path:        "/agents/me/notifications",
		Summary:     "Notification feed",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Unread bool `query:"unread"`
		Limit  int  `query:"limit" default:"100" minimum:"1" maximum:"100"`
	}) (*struct {
		Body envelope[[]NotificationResponse] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := n.Feed(ctx, name, input.Unread, input.Limit)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[[]NotificationResponse] `json:"body"`
		}{Body: ok(mapNotifications(items))}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mark-notifications-read",
		Method:      http.MethodPost,
		Path:        "/agents/me/notifications/mark-read",
		Summary:     "Mark notifications read",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body MarkReadRequest `json:"body"`
	}) (*struct {
		Body envelope[MarkReadData] `json:"body"`
	}, error) {
		name, authErr := requireAgent(ctx)
		if authErr != nil {
			return nil, authErr
		}
		updated, err := n.MarkRead(ctx, name, input.Body.IDs)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body envelope[MarkReadData] `json:"body"`
		}{Body: ok(MarkReadData{Updated: updated})}, nil
	})
}

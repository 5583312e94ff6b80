package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Bluenode2024/POCBE/internal/domain"
	"github.com/Bluenode2024/POCBE/internal/engine"
	"github.com/Bluenode2024/POCBE/internal/repo"
)

func registerValidators(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "register-validator",
		Method:      http.MethodPost,
		Path:        "/validators",
		Summary:     "Register a user as validator",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body RegisterValidatorRequest `json:"body"`
	}) (*struct {
		Body domain.Validator `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		identity := strings.TrimSpace(input.Body.Identity)
		if identity == "" {
			identity = userID
		}
		v, err := e.RegisterValidator(ctx, engine.RegisterValidatorOptions{
			Identity: identity,
			StakeRef: input.Body.StakeRef,
			ActorID:  userID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Validator `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-validators",
		Method:      http.MethodGet,
		Path:        "/validators",
		Summary:     "List validators",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ValidatorList `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListValidators(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidatorList `json:"body"`
		}{Body: ValidatorList{Items: items}}, nil
	})
}

func registerValidations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "create-validation",
		Method:      http.MethodPost,
		Path:        "/validations",
		Summary:     "Assign a validator to a task",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateValidationRequest `json:"body"`
	}) (*struct {
		Body domain.Validation `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.TaskID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "task_id is required", nil)
		}
		v, err := e.CreateValidation(ctx, input.Body.TaskID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Validation `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-validations",
		Method:      http.MethodGet,
		Path:        "/validations",
		Summary:     "List validations",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, input *struct {
		Status      string `query:"status"`
		TaskID      string `query:"task_id"`
		ValidatorID string `query:"validator_id"`
		Limit       int    `query:"limit"`
	}) (*struct {
		Body ValidationList `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.ListValidations(ctx, repo.ValidationFilters{
			Status:      input.Status,
			TaskID:      input.TaskID,
			ValidatorID: input.ValidatorID,
			Limit:       normalizeLimit(input.Limit),
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidationList `json:"body"`
		}{Body: ValidationList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-validation",
		Method:      http.MethodGet,
		Path:        "/validations/{id}",
		Summary:     "Get validation",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Validation `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		v, err := e.GetValidation(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Validation `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "confirm-validation",
		Method:      http.MethodPatch,
		Path:        "/validations/{id}/confirm",
		Summary:     "Confirm a pending validation as its assigned validator",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                   `path:"id"`
		Body ConfirmValidationRequest `json:"body"`
	}) (*struct {
		Body domain.Validation `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.ConfirmValidation(ctx, engine.ConfirmOptions{
			ValidationID: input.ID,
			UserID:       userID,
			Comment:      input.Body.Comment,
			RewardRef:    input.Body.RewardRef,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Validation `json:"body"`
		}{Body: v}, nil
	})
}

func registerDisputes(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "file-dispute",
		Method:      http.MethodPost,
		Path:        "/disputes",
		Summary:     "Dispute a validation",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body FileDisputeRequest `json:"body"`
	}) (*struct {
		Body domain.Dispute `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if strings.TrimSpace(input.Body.ValidationID) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "validation_id is required", nil)
		}
		d, err := e.FileDispute(ctx, engine.FileDisputeOptions{
			ValidationID: input.Body.ValidationID,
			UserID:       userID,
			Comment:      input.Body.Comment,
			AdminID:      input.Body.AdminID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dispute `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-dispute",
		Method:      http.MethodGet,
		Path:        "/disputes/{id}",
		Summary:     "Get dispute",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body domain.Dispute `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		d, err := e.GetDispute(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dispute `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resolve-dispute",
		Method:      http.MethodPatch,
		Path:        "/disputes/{id}/resolve",
		Summary:     "Approve or reject a dispute",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string                `path:"id"`
		Body ResolveDisputeRequest `json:"body"`
	}) (*struct {
		Body domain.Dispute `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.ResolveDispute(ctx, engine.ResolveDisputeOptions{
			DisputeID: input.ID,
			UserID:    userID,
			Approve:   input.Body.Approve,
			Comment:   input.Body.Comment,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Dispute `json:"body"`
		}{Body: d}, nil
	})
}

func registerAdmin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-disputed-validations",
		Method:      http.MethodGet,
		Path:        "/admin/validations/disputed",
		Summary:     "List reported validations",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body ValidationList `json:"body"`
	}, error) {
		if _, err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListDisputed(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ValidationList `json:"body"`
		}{Body: ValidationList{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-timers",
		Method:      http.MethodGet,
		Path:        "/admin/timers",
		Summary:     "Armed validation deadlines",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TimerList `json:"body"`
	}, error) {
		if _, err := requireAdmin(ctx, e); err != nil {
			return nil, handleError(err)
		}
		armed := e.ArmedTimers()
		items := make([]TimerItem, 0, len(armed))
		for _, t := range armed {
			items = append(items, TimerItem{
				ValidationID: t.ValidationID,
				Kind:         string(t.Kind),
				Deadline:     t.Deadline.UTC().Format(time.RFC3339),
			})
		}
		return &struct {
			Body TimerList `json:"body"`
		}{Body: TimerList{Items: items}}, nil
	})
}

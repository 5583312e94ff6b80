package server

import "github.com/Bluenode2024/POCBE/internal/domain"

type WhoAmIResponse struct {
	UserID        string `json:"user_id"`
	Source        string `json:"source"`
	WalletAddress string `json:"wallet_address,omitempty"`
	Approved      bool   `json:"approved"`
	Admin         bool   `json:"admin"`
	ValidatorID   string `json:"validator_id,omitempty"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type RegisterValidatorRequest struct {
	// Identity is a wallet address or a user id. Defaults to the caller.
	Identity string `json:"identity,omitempty"`
	StakeRef string `json:"stake_ref,omitempty"`
}

type CreateValidationRequest struct {
	TaskID string `json:"task_id"`
}

type ConfirmValidationRequest struct {
	Comment   string `json:"comment,omitempty"`
	RewardRef string `json:"reward_ref,omitempty"`
}

type FileDisputeRequest struct {
	ValidationID string `json:"validation_id"`
	Comment      string `json:"comment"`
	AdminID      string `json:"admin_id,omitempty"`
}

type ResolveDisputeRequest struct {
	Approve bool   `json:"approve"`
	Comment string `json:"comment,omitempty"`
}

type ValidatorList struct {
	Items []domain.Validator `json:"items"`
}

type ValidationList struct {
	Items []domain.Validation `json:"items"`
}

type TimerList struct {
	Items []TimerItem `json:"items"`
}

type TimerItem struct {
	ValidationID string `json:"validation_id"`
	Kind         string `json:"kind" enum:"pending,validating"`
	Deadline     string `json:"deadline" format:"date-time"`
}

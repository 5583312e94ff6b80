package domain

// Validation statuses as stored.
const (
	ValidationPending    = "pending"
	ValidationValidating = "validating"
	ValidationSuccess    = "success"
	ValidationReported   = "reported"
)

// Dispute statuses as stored.
const (
	DisputePending  = "pending"
	DisputeApproved = "approved"
	DisputeRejected = "rejected"
)

type User struct {
	ID            string  `json:"id"`
	Name          string  `json:"name,omitempty"`
	WalletAddress string  `json:"wallet_address"`
	ApprovedAt    *string `json:"approved_at,omitempty" format:"date-time"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type Admin struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Project struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	LeaderID  string `json:"leader_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type ProjectMember struct {
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Task is the unit of submitted work a validation reviews.
type Task struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Validator struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	StakeRef  string `json:"stake_ref,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Validation tracks one validator's review of a task. CreatedAt is the time the
// row entered its current state; confirm and reassignment rewrite it.
type Validation struct {
	ID          string `json:"id"`
	ValidatorID string `json:"validator_id"`
	TaskID      string `json:"task_id"`
	Status      string `json:"status" enum:"pending,validating,success,reported"`
	Comment     string `json:"comment,omitempty"`
	RewardRef   string `json:"reward_ref,omitempty"`
	CreatedAt   string `json:"created_at" format:"date-time"`
}

type Dispute struct {
	ID              string  `json:"id"`
	UserID          string  `json:"user_id"`
	ValidationID    string  `json:"validation_id"`
	Comment         string  `json:"comment"`
	Status          string  `json:"status" enum:"pending,approved,rejected"`
	AdminID         *string `json:"admin_id,omitempty"`
	ResponseComment string  `json:"response_comment,omitempty"`
	ResolvedBy      *string `json:"resolved_by,omitempty"`
	ResolvedAt      *string `json:"resolved_at,omitempty" format:"date-time"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

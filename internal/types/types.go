// Package types holds the shared entities, enums, error kinds, and plugin
// contracts used across Obra. Entities reference each other by numeric id
// only; the object graph lives in the StateManager, never in pointers.
package types

import "time"

// ProjectStatus enumerates the lifecycle states of a project.
type ProjectStatus string

const (
	ProjectActive    ProjectStatus = "active"
	ProjectPaused    ProjectStatus = "paused"
	ProjectCompleted ProjectStatus = "completed"
	ProjectArchived  ProjectStatus = "archived"
)

// WorkItemKind discriminates the work hierarchy.
type WorkItemKind string

const (
	KindEpic    WorkItemKind = "epic"
	KindStory   WorkItemKind = "story"
	KindTask    WorkItemKind = "task"
	KindSubtask WorkItemKind = "subtask"
)

// WorkItemStatus enumerates work-item states.
type WorkItemStatus string

const (
	StatusPending    WorkItemStatus = "pending"
	StatusReady      WorkItemStatus = "ready"
	StatusInProgress WorkItemStatus = "in_progress"
	StatusBlocked    WorkItemStatus = "blocked"
	StatusCompleted  WorkItemStatus = "completed"
	StatusFailed     WorkItemStatus = "failed"
	StatusEscalated  WorkItemStatus = "escalated"
)

// Terminal reports whether the status admits no further transitions
// without an explicit reopen.
func (s WorkItemStatus) Terminal() bool {
	return s == StatusCompleted
}

// DocumentationStatus tracks the follow-up documentation state of an item.
type DocumentationStatus string

const (
	DocPending DocumentationStatus = "pending"
	DocUpdated DocumentationStatus = "updated"
	DocSkipped DocumentationStatus = "skipped"
)

// Action is the Decision Engine's verdict for one iteration.
type Action string

const (
	ActionAccept   Action = "accept"
	ActionRetry    Action = "retry"
	ActionClarify  Action = "clarify"
	ActionEscalate Action = "escalate"
	ActionStop     Action = "stop"
)

// ValidAction reports whether s names a known action.
func ValidAction(s string) bool {
	switch Action(s) {
	case ActionAccept, ActionRetry, ActionClarify, ActionEscalate, ActionStop:
		return true
	}
	return false
}

// Severity grades a breakpoint event.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Resolution is the human's answer to a breakpoint.
type Resolution string

const (
	ResolutionContinue Resolution = "continue"
	ResolutionRetry    Resolution = "retry"
	ResolutionCancel   Resolution = "cancel"
	ResolutionModify   Resolution = "modify"
)

// ChangeKind classifies an observed workspace mutation.
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// Project is a working directory plus a configuration profile.
type Project struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	WorkDir     string        `json:"workdir"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	Deleted     bool          `json:"deleted"`
}

// WorkItem is the unifying entity covering epic/story/task/subtask.
type WorkItem struct {
	ID          int64          `json:"id"`
	ProjectID   int64          `json:"project_id"`
	ParentID    *int64         `json:"parent_id,omitempty"`
	EpicID      *int64         `json:"epic_id,omitempty"`
	StoryID     *int64         `json:"story_id,omitempty"`
	Kind        WorkItemKind   `json:"kind"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Status      WorkItemStatus `json:"status"`
	Priority    int            `json:"priority"`

	// DependencyIDs is ordered; duplicates are tolerated on input and
	// deduplicated by the resolver.
	DependencyIDs []int64 `json:"dependency_ids,omitempty"`

	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
	Executor   string `json:"executor,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	Result     string `json:"result,omitempty"`

	// Metadata is an opaque user-supplied container, validated only for
	// JSON-serializability on ingress.
	Metadata map[string]any `json:"metadata,omitempty"`

	RequiresADR       bool                `json:"requires_adr"`
	HasArchChanges    bool                `json:"has_architectural_changes"`
	ChangesSummary    string              `json:"changes_summary,omitempty"`
	DocumentationNote DocumentationStatus `json:"documentation_status"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Deleted     bool       `json:"deleted"`
}

// Milestone is a zero-duration project checkpoint tied to epic completion.
type Milestone struct {
	ID              int64          `json:"id"`
	ProjectID       int64          `json:"project_id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	TargetDate      *time.Time     `json:"target_date,omitempty"`
	RequiredEpicIDs []int64        `json:"required_epic_ids"`
	Achieved        bool           `json:"achieved"`
	AchievedAt      *time.Time     `json:"achieved_at,omitempty"`
	Version         string         `json:"version,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Interaction is the immutable record of one iteration.
type Interaction struct {
	ID              int64    `json:"id"`
	WorkItemID      int64    `json:"work_item_id"`
	Iteration       int      `json:"iteration"`
	Prompt          string   `json:"prompt"`
	Response        string   `json:"response"`
	ValidatorOK     bool     `json:"validator_ok"`
	ValidatorIssues []string `json:"validator_issues,omitempty"`
	QualityScore    float64  `json:"quality_score"`
	ConfidenceScore float64  `json:"confidence_score"`

	// ConfidenceDetail is the per-component decomposition behind the
	// confidence score, kept for calibration analysis.
	ConfidenceDetail map[string]float64 `json:"confidence_detail,omitempty"`

	Decision        Action        `json:"decision"`
	ErrorKind       ErrorKind     `json:"error_kind,omitempty"`
	Duration        time.Duration `json:"duration"`
	PromptTokens    int           `json:"prompt_tokens"`
	ResponseTokens  int           `json:"response_tokens"`
	EstimatedTokens int           `json:"estimated_tokens"`
	StartedAt       time.Time     `json:"started_at"`
	CompletedAt     time.Time     `json:"completed_at"`
}

// Checkpoint is a whole-project snapshot for manual rollback.
type Checkpoint struct {
	ID        int64     `json:"id"`
	ProjectID int64     `json:"project_id"`
	Reason    string    `json:"reason"`
	Payload   []byte    `json:"payload"`
	CreatedAt time.Time `json:"created_at"`
}

// BreakpointEvent is a human-intervention request. While unresolved, the
// owning work-item stays escalated and its driver is suspended.
type BreakpointEvent struct {
	ID         int64          `json:"id"`
	WorkItemID int64          `json:"work_item_id"`
	Severity   Severity       `json:"severity"`
	Reason     string         `json:"reason"`
	Context    map[string]any `json:"context,omitempty"`
	OpenedAt   time.Time      `json:"opened_at"`
	ResolvedAt *time.Time     `json:"resolved_at,omitempty"`
	Resolution Resolution     `json:"resolution,omitempty"`
	Feedback   string         `json:"feedback,omitempty"`
}

// Resolved reports whether a human has answered this breakpoint.
func (b *BreakpointEvent) Resolved() bool { return b.ResolvedAt != nil }

// FileChange is an audit record of a workspace filesystem mutation
// observed during an iteration.
type FileChange struct {
	ID            int64      `json:"id"`
	WorkItemID    int64      `json:"work_item_id"`
	InteractionID int64      `json:"interaction_id"`
	Path          string     `json:"path"`
	Kind          ChangeKind `json:"kind"`
	ContentHash   string     `json:"content_hash,omitempty"`
	Size          int64      `json:"size"`
	ObservedAt    time.Time  `json:"observed_at"`
}

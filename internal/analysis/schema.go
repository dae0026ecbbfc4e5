// Package analysis holds the structured response schemas the LLM must fill
// for email analysis and thread replies, with their defaults and validation.
package analysis

import "strings"

// SpamFlag is the strict 0/1 spam marker
type SpamFlag int

const (
	NotSpam    SpamFlag = 0
	MarkedSpam SpamFlag = 1
)

// Response is the full analysis result. Every leaf has a default, see Default.
type Response struct {
	SpamCheck      SpamFlag `json:"spam_check"`
	Summary        string   `json:"summary"`
	Priority       string   `json:"priority"`
	Category       string   `json:"category"`
	Sentiment      string   `json:"sentiment"`
	ActionRequired bool     `json:"action_required"`
	TaskTitle      string   `json:"task_title"`
	TaskPriority   string   `json:"task_priority"`
	Department     string   `json:"department"`
	DeadlineHours  *float64 `json:"deadline_hours"`
	Deadline       *string  `json:"deadline"`
	SLADeadline    *string  `json:"sla_deadline"`
	KeyPoints      []string `json:"key_points"`

	Classification         Classification         `json:"classification"`
	ProcessingRequirements ProcessingRequirements `json:"processing_requirements"`
	ContentAnalysis        ContentAnalysis        `json:"content_analysis"`
	MetadataAnalysis       MetadataAnalysis       `json:"metadata_analysis"`
	ActionRecommendations  ActionRecommendations  `json:"action_recommendations"`
}

type Classification struct {
	PrimaryType   string   `json:"primary_type"`
	SecondaryType string   `json:"secondary_type"`
	Urgency       string   `json:"urgency"`
	Confidence    float64  `json:"confidence"`
	Tags          []string `json:"tags"`
}

type ProcessingRequirements struct {
	EscalationRequired  bool       `json:"escalation_required"`
	Escalation          Escalation `json:"escalation"`
	ApprovalDepartments []string   `json:"approval_departments"`
	SLAHours            int        `json:"sla_hours"`
	LegalRisks          LegalRisks `json:"legal_risks"`
}

type Escalation struct {
	Level       string   `json:"level"`
	Reason      string   `json:"reason"`
	NotifyRoles []string `json:"notify_roles"`
}

// LegalRisks.RiskLevel is one of none, low, medium, high
type LegalRisks struct {
	RiskLevel          string   `json:"risk_level"`
	Description        string   `json:"description"`
	RiskFactors        []string `json:"risk_factors"`
	RecommendedActions []string `json:"recommended_actions"`
}

type ContentAnalysis struct {
	Contacts       Contacts     `json:"contacts"`
	Regulatory     Regulatory   `json:"regulatory"`
	Requirements   Requirements `json:"requirements"`
	FormalityLevel string       `json:"formality_level"`
	Language       string       `json:"language"`
}

type Contacts struct {
	Names         []string `json:"names"`
	Phones        []string `json:"phones"`
	Emails        []string `json:"emails"`
	Organizations []string `json:"organizations"`
}

type Regulatory struct {
	References         []string `json:"references"`
	ComplianceRequired bool     `json:"compliance_required"`
}

type Requirements struct {
	CoreRequest        string   `json:"core_request"`
	RequestedDocuments []string `json:"requested_documents"`
	DeadlineMentioned  *string  `json:"deadline_mentioned"`
}

type MetadataAnalysis struct {
	IsReply                 bool   `json:"is_reply"`
	HasAttachmentsMentioned bool   `json:"has_attachments_mentioned"`
	ThreadPosition          string `json:"thread_position"`
	SenderType              string `json:"sender_type"`
}

type ActionRecommendations struct {
	ImmediateActions  []string `json:"immediate_actions"`
	FollowUpActions   []string `json:"follow_up_actions"`
	SuggestedResponse string   `json:"suggested_response"`
}

// Defaults shared with task fan-out
const (
	DefaultTaskTitle   = "Задача по обработке письма"
	DefaultDepartment  = "general"
	DefaultSummary     = "Не удалось автоматически проанализировать письмо. Требуется ручная проверка."
	DefaultCoreRequest = "Требуется уточнение запроса"
	RiskLevelNone      = "none"
	RiskLevelHigh      = "high"
)

// Default returns the fully populated fallback response. It requests manual
// follow-up so an unparseable completion still produces a task.
func Default() Response {
	return Response{
		SpamCheck:      NotSpam,
		Summary:        DefaultSummary,
		Priority:       "medium",
		Category:       "general",
		Sentiment:      "neutral",
		ActionRequired: true,
		TaskTitle:      DefaultTaskTitle,
		TaskPriority:   "medium",
		Department:     DefaultDepartment,
		KeyPoints:      []string{},
		Classification: Classification{
			PrimaryType:   "general_inquiry",
			SecondaryType: "not_determined",
			Urgency:       "normal",
			Confidence:    0,
			Tags:          []string{},
		},
		ProcessingRequirements: ProcessingRequirements{
			EscalationRequired: false,
			Escalation: Escalation{
				Level:       RiskLevelNone,
				Reason:      "",
				NotifyRoles: []string{},
			},
			ApprovalDepartments: []string{},
			SLAHours:            24,
			LegalRisks: LegalRisks{
				RiskLevel:          RiskLevelNone,
				Description:        "",
				RiskFactors:        []string{},
				RecommendedActions: []string{},
			},
		},
		ContentAnalysis: ContentAnalysis{
			Contacts: Contacts{
				Names:         []string{},
				Phones:        []string{},
				Emails:        []string{},
				Organizations: []string{},
			},
			Regulatory: Regulatory{
				References:         []string{},
				ComplianceRequired: false,
			},
			Requirements: Requirements{
				CoreRequest:        DefaultCoreRequest,
				RequestedDocuments: []string{},
			},
			FormalityLevel: "neutral",
			Language:       "ru",
		},
		MetadataAnalysis: MetadataAnalysis{
			ThreadPosition: "unknown",
			SenderType:     "unknown",
		},
		ActionRecommendations: ActionRecommendations{
			ImmediateActions:  []string{"Проверить письмо вручную"},
			FollowUpActions:   []string{},
			SuggestedResponse: "",
		},
	}
}

// Spam returns the canonical minimal response stored for spam. Extracted
// fields are discarded and nothing is actionable.
func Spam() Response {
	r := Default()
	r.SpamCheck = MarkedSpam
	r.Summary = "Письмо классифицировано как спам"
	r.Priority = "low"
	r.Category = "spam"
	r.ActionRequired = false
	r.TaskTitle = "Спам"
	r.TaskPriority = "low"
	r.Classification.PrimaryType = "spam"
	r.ContentAnalysis.Requirements.CoreRequest = ""
	r.ActionRecommendations.ImmediateActions = []string{}
	return r
}

// IsSpam reports whether the response is flagged as spam
func (r Response) IsSpam() bool {
	return r.SpamCheck == MarkedSpam
}

// RiskLevel returns the normalised legal risk level; blank counts as none
func (r Response) RiskLevel() string {
	lvl := strings.ToLower(strings.TrimSpace(r.ProcessingRequirements.LegalRisks.RiskLevel))
	if lvl == "" {
		return RiskLevelNone
	}
	return lvl
}

// HasLegalRisk reports whether a risk review task is warranted
func (r Response) HasLegalRisk() bool {
	return r.RiskLevel() != RiskLevelNone
}

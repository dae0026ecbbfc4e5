package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"triage/internal/analysis"
	"triage/internal/apperr"
	"triage/internal/models"
	"triage/internal/staff"
	"triage/internal/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Fan-out task timing
const (
	FollowUpDue   = 72 * time.Hour
	EscalationDue = 24 * time.Hour
	RiskDue       = 48 * time.Hour
	ApprovalDue   = 24 * time.Hour

	// DefaultClaimLease bounds how long a crashed worker can block a generation
	DefaultClaimLease = 5 * time.Minute

	LegalDepartment = "legal"
)

// Archive reasons recorded in task metadata
const (
	ReasonSpam             = "spam"
	ReasonNoAction         = "no_action_required"
	ReasonGenerationFailed = "generation_failed"
)

// Skip reasons of FanoutResult
const (
	SkipAlreadyProcessed = "already_processed"
	SkipClaimed          = "claimed_by_another_worker"
)

// FanoutOptions controls one fan-out run
type FanoutOptions struct {
	// Force re-runs fan-out on a generation already stamped tasks_created
	Force bool
}

// FanoutResult describes what a fan-out run did
type FanoutResult struct {
	GenerationID  int64          `json:"generation_id"`
	Skipped       bool           `json:"skipped"`
	SkipReason    string         `json:"skip_reason,omitempty"`
	Archived      bool           `json:"archived"`
	ArchiveReason string         `json:"archive_reason,omitempty"`
	Tasks         []*models.Task `json:"tasks"`
}

// TaskIDs returns the ids of the created tasks in creation order
func (r *FanoutResult) TaskIDs() []int64 {
	ids := make([]int64, len(r.Tasks))
	for i, t := range r.Tasks {
		ids[i] = t.ID
	}
	return ids
}

// FanoutEngine turns one analysis generation into tasks
type FanoutEngine struct {
	store    Store
	selector StaffSelector
	tracker  Tracker
	notifier Notifier
	lease    time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

// NewFanoutEngine creates the engine. tracker and notifier may be nil.
func NewFanoutEngine(store Store, selector StaffSelector, tracker Tracker, notifier Notifier, logger zerolog.Logger) *FanoutEngine {
	return &FanoutEngine{
		store:    store,
		selector: selector,
		tracker:  tracker,
		notifier: notifier,
		lease:    DefaultClaimLease,
		now:      time.Now,
		logger:   logger.With().Str("job", "fanout").Logger(),
	}
}

// Run creates tasks for generationID. The generation is reloaded and claimed
// first so two workers never fan out the same generation at once. A failure
// part way leaves the generation unstamped; a retry may duplicate tasks that
// were already created.
func (e *FanoutEngine) Run(ctx context.Context, generationID int64, opts FanoutOptions) (*FanoutResult, error) {
	log := e.logger.With().Int64("generation_id", generationID).Logger()
	result := &FanoutResult{GenerationID: generationID, Tasks: []*models.Task{}}

	gen, err := e.store.GetGeneration(ctx, generationID)
	if err != nil {
		return nil, err
	}
	if gen.Type != models.GenerationAnalysis {
		return nil, apperr.InvalidState("generation %d is a %s, not an analysis", gen.ID, gen.Type)
	}
	if gen.EmailID == nil {
		return nil, apperr.InvalidState("analysis generation %d has no email", gen.ID)
	}
	if gen.TasksCreated() && !opts.Force {
		log.Info().Msg("Tasks already created, skipping")
		result.Skipped, result.SkipReason = true, SkipAlreadyProcessed
		return result, nil
	}

	token := uuid.NewString()
	claimed, err := e.store.ClaimGenerationForFanout(ctx, gen.ID, token, e.now(), e.lease, opts.Force)
	if err != nil {
		return nil, err
	}
	if !claimed {
		log.Info().Msg("Generation claimed elsewhere or already processed, skipping")
		result.Skipped, result.SkipReason = true, SkipClaimed
		return result, nil
	}
	stamped := false
	defer func() {
		if stamped {
			return
		}
		if err := e.store.ReleaseFanoutClaim(context.Background(), gen.ID, token); err != nil {
			log.Warn().Err(err).Msg("Failed to release fan-out claim")
		}
	}()

	email, err := e.store.GetEmail(ctx, *gen.EmailID)
	if err != nil {
		return nil, err
	}

	resp, issues, err := analysis.Decode(gen.Response)
	if err != nil {
		log.Warn().Err(err).Msg("Stored analysis unreadable, using fallback analysis")
	}
	for _, is := range issues {
		log.Warn().Str("field", is.Field).Str("issue", is.Message).Msg("Analysis data quality issue")
	}

	b := &taskBuilder{
		engine: e,
		gen:    gen,
		email:  email,
		resp:   resp,
		now:    e.now(),
		log:    log,
	}

	if reason := archiveReason(gen, resp); reason != "" {
		if err := b.archive(ctx, reason); err != nil {
			return nil, err
		}
		result.Archived, result.ArchiveReason = true, reason
		log.Info().Str("reason", reason).Msg("Email archived without tasks")
	} else if err := b.fanout(ctx); err != nil {
		return nil, err
	}
	result.Tasks = b.tasks

	ids := result.TaskIDs()
	patch := models.JSONMap{
		"tasks_created":        true,
		"created_tasks_count":  len(ids),
		"created_tasks_ids":    ids,
		"tasks_created_at":     b.now.UTC().Format(time.RFC3339),
		"fanout_claim":         nil,
		"fanout_claimed_until": nil,
	}
	if result.Archived {
		patch["archive_reason"] = result.ArchiveReason
	}
	if err := e.store.MergeGenerationMetadata(ctx, gen.ID, patch); err != nil {
		return nil, err
	}
	stamped = true

	if err := track(e.tracker, EventTaskFanout, len(ids), map[string]interface{}{
		"generation_id": gen.ID,
		"archived":      result.Archived,
		"forced":        opts.Force,
	}); err != nil {
		log.Warn().Err(err).Msg("Failed to track fan-out")
	}
	e.notifyExecutors(ctx, b.tasks, log)

	log.Info().Int("tasks", len(ids)).Bool("archived", result.Archived).Msg("Fan-out completed")
	return result, nil
}

// Batch fans out up to limit unprocessed analyses. With a dispatcher each
// generation is enqueued; without one they run inline and failures are logged
// and skipped. It returns how many generations were dispatched or processed.
func (e *FanoutEngine) Batch(ctx context.Context, limit int, force bool, dispatcher Dispatcher) (int, error) {
	ids, err := e.store.ListUnprocessedAnalyses(ctx, limit, force)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return done, ctx.Err()
		}
		if dispatcher != nil {
			if _, err := dispatcher.EnqueueFanout(ctx, id, force); err != nil {
				return done, fmt.Errorf("failed to enqueue fan-out for generation %d: %w", id, err)
			}
			done++
			continue
		}
		if _, err := e.Run(ctx, id, FanoutOptions{Force: force}); err != nil {
			e.logger.Error().Err(err).Int64("generation_id", id).Msg("Fan-out failed")
			continue
		}
		done++
	}

	e.logger.Info().Int("candidates", len(ids)).Int("done", done).Bool("force", force).Msg("Batch fan-out finished")
	return done, nil
}

func archiveReason(gen *models.Generation, resp analysis.Response) string {
	switch {
	case resp.IsSpam() || gen.IsSpam:
		return ReasonSpam
	case gen.Status != models.GenerationSuccess:
		return ReasonGenerationFailed
	case !resp.ActionRequired:
		return ReasonNoAction
	}
	return ""
}

// notifyExecutors mails the executors of escalation and legal risk tasks
func (e *FanoutEngine) notifyExecutors(ctx context.Context, tasks []*models.Task, log zerolog.Logger) {
	if e.notifier == nil {
		return
	}
	for _, t := range tasks {
		if t.ExecutorID == nil || !notifiable(t) {
			continue
		}
		user, err := e.store.GetUser(ctx, *t.ExecutorID)
		if err != nil {
			log.Warn().Err(err).Int64("task_id", t.ID).Msg("Cannot load executor for notification")
			continue
		}
		if user.Email == nil || *user.Email == "" {
			continue
		}
		if err := e.notifier.NotifyTask(ctx, t, user); err != nil {
			log.Warn().Err(err).Int64("task_id", t.ID).Msg("Task notification failed")
		}
	}
}

func notifiable(t *models.Task) bool {
	kind, _ := t.Metadata["analysis_type"].(string)
	return kind == string(models.AnalysisEscalation) || kind == string(models.AnalysisRiskAnalysis)
}

// taskBuilder accumulates the tasks of one fan-out run
type taskBuilder struct {
	engine *FanoutEngine
	gen    *models.Generation
	email  *models.Email
	resp   analysis.Response
	now    time.Time
	log    zerolog.Logger
	tasks  []*models.Task
}

func (b *taskBuilder) create(ctx context.Context, t *models.Task, kind models.AnalysisType, extra models.JSONMap) (*models.Task, error) {
	t.ThreadID = b.email.ThreadID
	if t.Status == "" {
		t.Status = models.TaskNew
	}
	t.Metadata = models.JSONMap{
		"generation_id": b.gen.ID,
		"email_id":      b.email.ID,
		"analysis_type": string(kind),
	}
	for k, v := range extra {
		t.Metadata[k] = v
	}
	if err := b.engine.store.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	b.tasks = append(b.tasks, t)
	return t, nil
}

func (b *taskBuilder) archive(ctx context.Context, reason string) error {
	content := "Письмо не требует действий и перенесено в архив."
	switch reason {
	case ReasonSpam:
		content = "Письмо классифицировано как спам и перенесено в архив."
	case ReasonGenerationFailed:
		content = fmt.Sprintf("Анализ письма завершился со статусом %s, письмо перенесено в архив.", b.gen.Status)
	}
	if reason == ReasonNoAction && b.resp.Summary != "" {
		content += "\n\nКраткое содержание:\n" + b.resp.Summary
	}

	_, err := b.create(ctx, &models.Task{
		Title:    utils.Truncate("Архив: "+utils.NormalizeSubject(b.email.Subject), models.MaxTitleLength),
		Content:  content,
		Status:   models.TaskArchived,
		Priority: models.PriorityLow,
	}, models.AnalysisArchived, models.JSONMap{"reason": reason})
	return err
}

func (b *taskBuilder) fanout(ctx context.Context) error {
	main, err := b.mainTask(ctx)
	if err != nil {
		return err
	}
	if err := b.followUps(ctx, main); err != nil {
		return err
	}
	if b.resp.ProcessingRequirements.EscalationRequired {
		if err := b.escalation(ctx, main); err != nil {
			return err
		}
	}
	if b.resp.HasLegalRisk() {
		if err := b.risk(ctx); err != nil {
			return err
		}
	}
	return b.approvals(ctx, main)
}

func (b *taskBuilder) department() string {
	if d := strings.TrimSpace(b.resp.Department); d != "" {
		return d
	}
	return analysis.DefaultDepartment
}

func (b *taskBuilder) mainTask(ctx context.Context) (*models.Task, error) {
	title := strings.TrimSpace(b.resp.TaskTitle)
	if title == "" {
		title = analysis.DefaultTaskTitle
	}

	executor, err := b.engine.selector.SelectLeastLoaded(ctx, b.department())
	if err != nil {
		return nil, err
	}

	extra := models.JSONMap{
		"department":   b.department(),
		"primary_type": b.resp.Classification.PrimaryType,
		"urgency":      b.resp.Classification.Urgency,
	}
	if b.resp.DeadlineHours != nil {
		extra["deadline_hours"] = *b.resp.DeadlineHours
	}

	return b.create(ctx, &models.Task{
		Title:      utils.Truncate(title, models.MaxTitleLength),
		Content:    mainContent(b.resp),
		Priority:   models.ParsePriority(strings.ToLower(strings.TrimSpace(b.resp.TaskPriority))),
		ExecutorID: executor,
		DueDate:    b.mainDueDate(),
	}, models.AnalysisMainTask, extra)
}

// mainDueDate prefers deadline_hours, then the legacy deadline fields. Out of
// range or unparseable values are logged and ignored, never clamped.
func (b *taskBuilder) mainDueDate() *time.Time {
	if h := b.resp.DeadlineHours; h != nil {
		if analysis.SaneDeadlineHours(*h) {
			due := b.now.Add(time.Duration(*h) * time.Hour)
			return &due
		}
		b.log.Warn().Float64("deadline_hours", *h).Msg("deadline_hours out of range, ignored")
	}

	for _, raw := range []*string{b.resp.Deadline, b.resp.SLADeadline} {
		if raw == nil || strings.TrimSpace(*raw) == "" {
			continue
		}
		if due, ok := parseDeadline(*raw); ok {
			return &due
		}
		b.log.Warn().Str("deadline", *raw).Msg("Legacy deadline could not be parsed, ignored")
	}
	return nil
}

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseDeadline(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range deadlineLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func mainContent(r analysis.Response) string {
	var sections []string
	add := func(title, body string) {
		if body = strings.TrimSpace(body); body != "" {
			sections = append(sections, title+":\n"+body)
		}
	}
	add("Краткое содержание", r.Summary)
	add("Основной запрос", r.ContentAnalysis.Requirements.CoreRequest)
	add("Ключевые моменты", dashList(r.KeyPoints))
	add("Рекомендуемый ответ", r.ActionRecommendations.SuggestedResponse)
	add("Немедленные действия", dashList(r.ActionRecommendations.ImmediateActions))
	return strings.Join(sections, "\n\n")
}

func dashList(items []string) string {
	var lines []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			lines = append(lines, "- "+it)
		}
	}
	return strings.Join(lines, "\n")
}

func (b *taskBuilder) due(d time.Duration) *time.Time {
	t := b.now.Add(d)
	return &t
}

func (b *taskBuilder) followUps(ctx context.Context, main *models.Task) error {
	for i, action := range b.resp.ActionRecommendations.FollowUpActions {
		action = strings.TrimSpace(action)
		if action == "" {
			continue
		}
		_, err := b.create(ctx, &models.Task{
			Title:      utils.Truncate("Контроль: "+action, models.MaxTitleLength),
			Content:    action + "\n\nОсновная задача: " + main.Title,
			Priority:   models.PriorityMedium,
			ExecutorID: main.ExecutorID,
			DueDate:    b.due(FollowUpDue),
		}, models.AnalysisFollowUp, models.JSONMap{
			"parent_task_id":  main.ID,
			"follow_up_index": i,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (b *taskBuilder) escalation(ctx context.Context, main *models.Task) error {
	esc := b.resp.ProcessingRequirements.Escalation
	executor, err := b.engine.selector.SelectByRole(ctx, b.department(), []models.Role{models.RoleManager}, staff.ByID)
	if err != nil {
		return err
	}

	content := "Требуется эскалация по задаче: " + main.Title
	if esc.Reason != "" {
		content += "\n\nПричина:\n" + esc.Reason
	}

	_, err = b.create(ctx, &models.Task{
		Title:      utils.Truncate(fmt.Sprintf("Эскалация (уровень %s): %s", esc.Level, main.Title), models.MaxTitleLength),
		Content:    content,
		Priority:   models.PriorityUrgent,
		ExecutorID: executor,
		DueDate:    b.due(EscalationDue),
	}, models.AnalysisEscalation, models.JSONMap{
		"parent_task_id":   main.ID,
		"escalation_level": esc.Level,
		"notify_roles":     esc.NotifyRoles,
	})
	return err
}

func (b *taskBuilder) risk(ctx context.Context) error {
	risks := b.resp.ProcessingRequirements.LegalRisks
	level := b.resp.RiskLevel()
	priority := models.PriorityHigh
	if level == analysis.RiskLevelHigh {
		priority = models.PriorityUrgent
	}

	executor, err := b.engine.selector.SelectByRole(ctx, LegalDepartment,
		[]models.Role{models.RoleManager, models.RoleSpecialist}, staff.LongestIdle)
	if err != nil {
		return err
	}

	var sections []string
	if risks.Description != "" {
		sections = append(sections, "Описание:\n"+risks.Description)
	}
	if l := dashList(risks.RiskFactors); l != "" {
		sections = append(sections, "Факторы риска:\n"+l)
	}
	if l := dashList(risks.RecommendedActions); l != "" {
		sections = append(sections, "Рекомендуемые действия:\n"+l)
	}
	if len(sections) == 0 {
		sections = append(sections, "Оценить юридические риски письма.")
	}

	_, err = b.create(ctx, &models.Task{
		Title:      utils.Truncate(fmt.Sprintf("Юридический риск (%s): %s", level, utils.NormalizeSubject(b.email.Subject)), models.MaxTitleLength),
		Content:    strings.Join(sections, "\n\n"),
		Priority:   priority,
		ExecutorID: executor,
		DueDate:    b.due(RiskDue),
	}, models.AnalysisRiskAnalysis, models.JSONMap{"risk_level": level})
	return err
}

func (b *taskBuilder) approvals(ctx context.Context, main *models.Task) error {
	seen := map[string]bool{}
	for _, dept := range b.resp.ProcessingRequirements.ApprovalDepartments {
		dept = strings.TrimSpace(dept)
		if dept == "" || seen[dept] {
			continue
		}
		seen[dept] = true

		executor, err := b.engine.selector.SelectByRole(ctx, dept,
			[]models.Role{models.RoleManager, models.RoleSpecialist}, staff.LeastLoaded)
		if err != nil {
			return err
		}

		_, err = b.create(ctx, &models.Task{
			Title:      utils.Truncate(fmt.Sprintf("Согласование (%s): %s", dept, main.Title), models.MaxTitleLength),
			Content:    "Требуется согласование отдела " + dept + " по задаче: " + main.Title,
			Priority:   models.PriorityHigh,
			ExecutorID: executor,
			DueDate:    b.due(ApprovalDue),
		}, models.AnalysisApproval, models.JSONMap{
			"parent_task_id":      main.ID,
			"approval_department": dept,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

package treatment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/immunotrack/immunotrack/internal/domain/identity"
	"github.com/immunotrack/immunotrack/internal/domain/inventory"
	"github.com/immunotrack/immunotrack/internal/platform/db"
	"github.com/immunotrack/immunotrack/internal/platform/lock"
	"github.com/immunotrack/immunotrack/internal/platform/queue"
)

// EventKindTreatmentApplied is the queue kind for treatment-applied signals.
const EventKindTreatmentApplied = "treatment.applied"

// Service runs the treatment pipeline: classify incoming events, compute
// dosage, and persist the record plus log entry. It also serves the
// read-side views.
type Service struct {
	records    RecordRepository
	logs       LogRepository
	usages     inventory.UsageRepository
	users      identity.UserRepository
	locks      lock.Manager
	dispatcher *queue.Dispatcher
	pool       *pgxpool.Pool
	defaultOrg string
	logger     zerolog.Logger
}

func NewService(
	records RecordRepository,
	logs LogRepository,
	usages inventory.UsageRepository,
	users identity.UserRepository,
	locks lock.Manager,
	dispatcher *queue.Dispatcher,
	pool *pgxpool.Pool,
	defaultOrg string,
	logger zerolog.Logger,
) *Service {
	if defaultOrg == "" {
		defaultOrg = "default"
	}
	s := &Service{
		records:    records,
		logs:       logs,
		usages:     usages,
		users:      users,
		locks:      locks,
		dispatcher: dispatcher,
		pool:       pool,
		defaultOrg: defaultOrg,
		logger:     logger.With().Str("component", "treatment").Logger(),
	}
	if dispatcher != nil {
		dispatcher.Register(EventKindTreatmentApplied, s.handleTreatmentApplied)
	}
	return s
}

// EnqueueTreatmentApplied validates the event and hands it to the dispatcher.
// The returned id identifies the queued event, not a persisted row.
func (s *Service) EnqueueTreatmentApplied(evt *TreatmentAppliedEvent) (string, error) {
	if evt == nil {
		return "", fmt.Errorf("event is required")
	}
	if evt.PatientID == uuid.Nil {
		return "", fmt.Errorf("patient_id is required")
	}
	if evt.AppliedAt.IsZero() {
		evt.AppliedAt = time.Now().UTC()
	}
	return s.dispatcher.Enqueue(EventKindTreatmentApplied, evt)
}

// QueueStatus exposes the dispatcher snapshot for the observability endpoint.
func (s *Service) QueueStatus() queue.Snapshot {
	return s.dispatcher.Status()
}

func (s *Service) handleTreatmentApplied(ctx context.Context, qe *queue.Event) error {
	evt, ok := qe.Payload.(*TreatmentAppliedEvent)
	if !ok {
		// Malformed payloads cannot succeed on retry.
		s.logger.Error().Str("event_id", qe.ID).Msg("treatment event has unexpected payload type")
		return nil
	}

	orgID, err := s.resolveOrg(ctx, evt)
	if err != nil {
		return fmt.Errorf("resolve organization: %w", err)
	}

	if s.pool != nil {
		orgCtx, release, err := db.WithOrgConn(ctx, s.pool, orgID)
		if err != nil {
			return fmt.Errorf("bind organization %s: %w", orgID, err)
		}
		defer release()
		ctx = orgCtx
	}

	key := DedupKey(evt.PatientID, orgID)
	acquired, err := s.locks.TryAcquire(ctx, key)
	if err != nil {
		return fmt.Errorf("acquire dedup lock: %w", err)
	}
	if !acquired {
		s.logger.Info().
			Str("event_id", qe.ID).
			Str("patient_id", evt.PatientID.String()).
			Str("org_id", orgID).
			Msg("duplicate treatment event dropped")
		return nil
	}

	if !Qualifies(evt) {
		// Enrollment-only signals carry no clinical content. Release the
		// lock so a real event that follows immediately is not dropped.
		s.releaseLock(ctx, key)
		s.logger.Debug().
			Str("event_id", qe.ID).
			Str("patient_id", evt.PatientID.String()).
			Msg("treatment event skipped, nothing to log")
		return nil
	}

	classification := Classify(evt)
	dosage := Calculate(classification)

	s.enrichFromUsage(ctx, evt)

	if err := s.persist(ctx, evt, orgID, classification, dosage); err != nil {
		// Release so the retried attempt is not dropped as a duplicate.
		s.releaseLock(ctx, key)
		return fmt.Errorf("persist treatment: %w", err)
	}

	// The lock stays held on success. Its expiry window is what absorbs
	// duplicate deliveries of the same clinical event.
	s.logger.Info().
		Str("event_id", qe.ID).
		Str("patient_id", evt.PatientID.String()).
		Str("org_id", orgID).
		Str("family", string(classification.Family)).
		Str("subtype", dosage.ReportSubtype).
		Float64("ml_per_allergen", dosage.MLPerAllergen).
		Msg("treatment event processed")
	return nil
}

// resolveOrg picks the event's organization, falling back to the applying
// user's home organization and finally to the default.
func (s *Service) resolveOrg(ctx context.Context, evt *TreatmentAppliedEvent) (string, error) {
	if evt.OrganizationID != "" {
		return evt.OrganizationID, nil
	}
	if evt.AppliedBy != nil && s.users != nil {
		orgID, err := s.users.OrganizationForUser(ctx, *evt.AppliedBy)
		if err != nil {
			return "", err
		}
		if orgID != "" {
			return orgID, nil
		}
	}
	return s.defaultOrg, nil
}

func (s *Service) releaseLock(ctx context.Context, key string) {
	if err := s.locks.Release(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("dedup lock release failed")
	}
}

// enrichFromUsage backfills product and reaction data from the referenced
// inventory usage. Lookup failures are logged and ignored; the event still
// persists with what it carries.
func (s *Service) enrichFromUsage(ctx context.Context, evt *TreatmentAppliedEvent) {
	if evt.UsageID == nil || s.usages == nil {
		return
	}
	usage, err := s.usages.GetByID(ctx, *evt.UsageID)
	if err != nil {
		s.logger.Warn().Err(err).Str("usage_id", evt.UsageID.String()).Msg("usage lookup failed")
		return
	}
	if usage == nil {
		s.logger.Warn().Str("usage_id", evt.UsageID.String()).Msg("usage not found")
		return
	}
	if len(evt.Items) == 0 && usage.ProductID != nil {
		evt.Items = []EventItem{{ProductID: *usage.ProductID}}
	}
	if !evt.ReactionOccurred && usage.ReactionOccurred {
		evt.ReactionOccurred = true
		if evt.ReactionDescription == "" && usage.ReactionDescription != nil {
			evt.ReactionDescription = *usage.ReactionDescription
		}
	}
}

// persist upserts the record and appends the log entry. With an org-scoped
// connection on the context the two writes share a transaction; in tests,
// where repositories are in-memory, they run back to back.
func (s *Service) persist(ctx context.Context, evt *TreatmentAppliedEvent, orgID string, c Classification, d Dosage) error {
	write := func(ctx context.Context) error {
		rec, err := s.upsertRecord(ctx, evt, orgID, c)
		if err != nil {
			return err
		}
		return s.appendLogEntry(ctx, rec, evt, c, d)
	}

	if db.ConnFromContext(ctx) == nil {
		return write(ctx)
	}

	txCtx, tx, err := db.WithTx(ctx)
	if err != nil {
		return err
	}
	if err := write(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// upsertRecord creates the patient's record on first contact. Later events
// only advance lastAppliedDate and the edit stamps; family, dates of origin,
// allergens, and status are fixed at creation. The log keeps the per-event
// classification, and the consolidated view unions log-entry allergens in.
func (s *Service) upsertRecord(ctx context.Context, evt *TreatmentAppliedEvent, orgID string, c Classification) (*TreatmentRecord, error) {
	now := time.Now().UTC()
	appliedAt := evt.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = now
	}

	rec, err := s.records.GetByPatientOrg(ctx, evt.PatientID, orgID)
	if err != nil {
		return nil, err
	}

	if rec == nil {
		rec = &TreatmentRecord{
			ID:                uuid.New(),
			PatientID:         evt.PatientID,
			OrganizationID:    orgID,
			TreatmentFamily:   c.Family,
			StartDate:         appliedAt,
			OriginalStartDate: appliedAt,
			LastAppliedDate:   appliedAt,
			LastEditedAt:      now,
			LastEditedBy:      evt.AppliedBy,
			Allergens:         c.Allergens,
			Status:            "active",
		}
		if err := s.records.Create(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}

	if appliedAt.After(rec.LastAppliedDate) {
		rec.LastAppliedDate = appliedAt
	}
	rec.LastEditedAt = now
	rec.LastEditedBy = evt.AppliedBy
	if err := s.records.Update(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) appendLogEntry(ctx context.Context, rec *TreatmentRecord, evt *TreatmentAppliedEvent, c Classification, d Dosage) error {
	entry := &TreatmentLogEntry{
		ID:              uuid.New(),
		RecordID:        rec.ID,
		AppliedAt:       evt.AppliedAt,
		TreatmentFamily: c.Family,
		Subtype:         d.ReportSubtype,
		DoseCount:       c.DoseCount,
		UnitCount:       c.UnitCount,
		VialNumbers:     c.VialNumbers,
		Allergens:       c.Allergens,
		Observations:    c.Observations,
		AppliedBy:       evt.AppliedBy,
	}
	if len(evt.Items) > 0 && evt.Items[0].ProductID != "" {
		pid := evt.Items[0].ProductID
		entry.ProductID = &pid
	}
	if evt.ReactionOccurred {
		entry.ReactionOccurred = true
		if evt.ReactionDescription != "" {
			desc := evt.ReactionDescription
			entry.ReactionDescription = &desc
		}
	}
	return s.logs.Create(ctx, entry)
}

// ConsolidatedView aggregates a patient's record with its full log history.
// Returns (nil, nil) when the patient has no record in the organization.
func (s *Service) ConsolidatedView(ctx context.Context, patientID uuid.UUID, orgID string) (*ConsolidatedView, error) {
	if orgID == "" {
		orgID = s.defaultOrg
	}
	rec, err := s.records.GetByPatientOrg(ctx, patientID, orgID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	entries, err := s.logs.ListByRecord(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	view := &ConsolidatedView{Record: rec}
	allergens := map[string]bool{}
	reactions := map[string]bool{}
	for _, a := range rec.Allergens {
		allergens[a] = true
	}

	now := time.Now().UTC()
	for _, e := range entries {
		appliedAt := e.AppliedAt
		if appliedAt.IsZero() {
			appliedAt = now
		}
		ev := LogEntryView{
			ID:          e.ID,
			AppliedAt:   appliedAt,
			Family:      e.TreatmentFamily,
			Subtype:     e.Subtype,
			DoseCount:   e.DoseCount,
			UnitCount:   e.UnitCount,
			VialNumbers: e.VialNumbers,
			Allergens:   e.Allergens,
			HadReaction: e.ReactionOccurred,
		}
		if e.ReactionDescription != nil {
			ev.Reaction = *e.ReactionDescription
		}
		view.Entries = append(view.Entries, ev)

		for _, a := range e.Allergens {
			allergens[a] = true
		}
		if e.ReactionDescription != nil && *e.ReactionDescription != "" {
			reactions[*e.ReactionDescription] = true
		}
	}

	view.Allergens = sortedKeys(allergens)
	view.Reactions = sortedKeys(reactions)
	return view, nil
}

// LastTreatment builds the form prefill from the patient's most recent log
// entry. Read only, no side effects. Returns (nil, nil) when the patient has
// no record or no entries yet.
func (s *Service) LastTreatment(ctx context.Context, patientID uuid.UUID, orgID string) (*Prefill, error) {
	if orgID == "" {
		orgID = s.defaultOrg
	}
	rec, err := s.records.GetByPatientOrg(ctx, patientID, orgID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}

	latest, err := s.logs.LatestByRecord(ctx, rec.ID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, nil
	}

	return &Prefill{
		Family:       latest.TreatmentFamily,
		Subtype:      latest.Subtype,
		UnitCount:    latest.UnitCount,
		DoseCount:    latest.DoseCount,
		Allergens:    latest.Allergens,
		VialNumbers:  latest.VialNumbers,
		Observations: latest.Observations,
	}, nil
}

// TreatmentLog returns a page of the patient's log entries, newest first.
func (s *Service) TreatmentLog(ctx context.Context, patientID uuid.UUID, orgID string, limit, offset int) ([]*TreatmentLogEntry, int, error) {
	if orgID == "" {
		orgID = s.defaultOrg
	}
	rec, err := s.records.GetByPatientOrg(ctx, patientID, orgID)
	if err != nil {
		return nil, 0, err
	}
	if rec == nil {
		return nil, 0, nil
	}
	return s.logs.ListByRecordPage(ctx, rec.ID, limit, offset)
}

// UpdateReactionOnUsage corrects the reaction fields on an inventory usage
// after the fact.
func (s *Service) UpdateReactionOnUsage(ctx context.Context, usageID uuid.UUID, occurred bool, description *string) error {
	if s.usages == nil {
		return fmt.Errorf("inventory is not configured")
	}
	return s.usages.UpdateReaction(ctx, usageID, occurred, description)
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

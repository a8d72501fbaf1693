package postgresadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"electsys/contexts/enrollment/election-engine/domain/entities"
	domainerrors "electsys/contexts/enrollment/election-engine/domain/errors"
	"electsys/contexts/enrollment/election-engine/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"

	// phaseRowID pins the election phase to a single shared row.
	phaseRowID = 1
)

type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Migrate creates or updates the module's tables.
func (r *Repository) Migrate() error {
	return r.db.AutoMigrate(
		&electionModel{},
		&courseModel{},
		&courseSlotModel{},
		&studentModel{},
		&messageModel{},
		&outboxModel{},
		&phaseModel{},
	)
}

// EnsurePhase seeds the singleton phase row when none exists yet, so a fresh
// database starts in the configured state without clobbering a phase already
// flipped by another process.
func (r *Repository) EnsurePhase(ctx context.Context, open bool) error {
	row := phaseModel{ID: phaseRowID, Open: open, UpdatedAt: time.Now().UTC()}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("election_repo_ensure_phase_failed", create.Error)
	}
	return nil
}

// PhaseOpen reads the shared phase row. A missing row reads as closed so an
// unseeded database fails safe.
func (r *Repository) PhaseOpen(ctx context.Context) (bool, error) {
	var row phaseModel
	err := r.db.WithContext(ctx).
		Where("id = ?", phaseRowID).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, r.logError("election_repo_phase_read_failed", err)
	}
	return row.Open, nil
}

func (r *Repository) OpenPhase(ctx context.Context) error {
	return r.setPhase(ctx, true)
}

func (r *Repository) ClosePhase(ctx context.Context) error {
	return r.setPhase(ctx, false)
}

func (r *Repository) setPhase(ctx context.Context, open bool) error {
	row := phaseModel{ID: phaseRowID, Open: open, UpdatedAt: time.Now().UTC()}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"open":       open,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("election_repo_phase_write_failed", create.Error, "open", open)
	}
	return nil
}

func (r *Repository) SaveElection(ctx context.Context, election entities.Election) error {
	row := electionModelFromEntity(election)
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"willingpoint": row.Willingpoint,
			"status":       row.Status,
			"updated_at":   row.UpdatedAt,
		}),
	}).Create(&row)
	if create.Error != nil {
		if isUniqueViolation(create.Error) {
			// The (student_id, course_id) unique index backs the one-record-
			// per-pair invariant against racy duplicate enrollments.
			return domainerrors.ErrDuplicateElection
		}
		return r.logError("election_repo_save_failed", create.Error,
			"election_id", strings.TrimSpace(election.ElectionID),
			"student_id", strings.TrimSpace(election.StudentID),
			"course_id", strings.TrimSpace(election.CourseID),
		)
	}
	return nil
}

func (r *Repository) DeleteElection(ctx context.Context, electionID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(electionID)).
		Delete(&electionModel{})
	if result.Error != nil {
		return r.logError("election_repo_delete_failed", result.Error,
			"election_id", strings.TrimSpace(electionID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrElectionNotFound
	}
	return nil
}

func (r *Repository) GetElectionByPair(
	ctx context.Context,
	studentID string,
	courseID string,
) (entities.Election, bool, error) {
	var row electionModel
	err := r.db.WithContext(ctx).
		Where("student_id = ?", strings.TrimSpace(studentID)).
		Where("course_id = ?", strings.TrimSpace(courseID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Election{}, false, nil
		}
		return entities.Election{}, false, r.logError("election_repo_get_by_pair_failed", err,
			"student_id", strings.TrimSpace(studentID),
			"course_id", strings.TrimSpace(courseID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListElectionsByStudent(
	ctx context.Context,
	studentID string,
	statuses ...entities.ElectionStatus,
) ([]entities.Election, error) {
	tx := r.db.WithContext(ctx).Model(&electionModel{}).
		Where("student_id = ?", strings.TrimSpace(studentID))
	tx = filterStatuses(tx, statuses)

	var rows []electionModel
	if err := tx.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_by_student_failed", err,
			"student_id", strings.TrimSpace(studentID),
		)
	}
	return toElectionEntities(rows), nil
}

func (r *Repository) ListElectionsByCourse(
	ctx context.Context,
	courseID string,
	statuses ...entities.ElectionStatus,
) ([]entities.Election, error) {
	tx := r.db.WithContext(ctx).Model(&electionModel{}).
		Where("course_id = ?", strings.TrimSpace(courseID))
	tx = filterStatuses(tx, statuses)

	// created_at, id ordering feeds the ballot's deterministic tie-break.
	var rows []electionModel
	if err := tx.Order("created_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_by_course_failed", err,
			"course_id", strings.TrimSpace(courseID),
		)
	}
	return toElectionEntities(rows), nil
}

func (r *Repository) CountElectionsByCourse(
	ctx context.Context,
	courseID string,
	status entities.ElectionStatus,
) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&electionModel{}).
		Where("course_id = ?", strings.TrimSpace(courseID)).
		Where("status = ?", string(status)).
		Count(&count).
		Error
	if err != nil {
		return 0, r.logError("election_repo_count_by_course_failed", err,
			"course_id", strings.TrimSpace(courseID),
			"status", string(status),
		)
	}
	return int(count), nil
}

func (r *Repository) GetCourse(ctx context.Context, courseID string) (entities.Course, error) {
	var row courseModel
	err := r.db.WithContext(ctx).
		Preload("Slots").
		Where("id = ?", strings.TrimSpace(courseID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Course{}, domainerrors.ErrCourseNotFound
		}
		return entities.Course{}, r.logError("election_repo_get_course_failed", err,
			"course_id", strings.TrimSpace(courseID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) ListCourses(ctx context.Context) ([]entities.Course, error) {
	var rows []courseModel
	if err := r.db.WithContext(ctx).
		Preload("Slots").
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_courses_failed", err)
	}
	items := make([]entities.Course, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) GetStudent(ctx context.Context, studentID string) (entities.Student, error) {
	var row studentModel
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(studentID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.Student{}, domainerrors.ErrStudentNotFound
		}
		return entities.Student{}, r.logError("election_repo_get_student_failed", err,
			"student_id", strings.TrimSpace(studentID),
		)
	}
	return entities.Student{
		StudentID:   row.ID,
		CurCredit:   row.CurCredit,
		CreditLimit: row.CreditLimit,
	}, nil
}

func (r *Repository) SaveStudent(ctx context.Context, student entities.Student) error {
	row := studentModel{
		ID:          strings.TrimSpace(student.StudentID),
		CurCredit:   student.CurCredit,
		CreditLimit: student.CreditLimit,
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"cur_credit":   row.CurCredit,
			"credit_limit": row.CreditLimit,
		}),
	}).Create(&row)
	if create.Error != nil {
		return r.logError("election_repo_save_student_failed", create.Error,
			"student_id", row.ID,
		)
	}
	return nil
}

func (r *Repository) ListStudentIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&studentModel{}).
		Order("id ASC").
		Pluck("id", &ids).
		Error
	if err != nil {
		return nil, r.logError("election_repo_list_student_ids_failed", err)
	}
	return ids, nil
}

func (r *Repository) AppendMessage(ctx context.Context, message entities.Message) error {
	row := messageModel{
		ID:        strings.TrimSpace(message.MessageID),
		StudentID: strings.TrimSpace(message.StudentID),
		Title:     strings.TrimSpace(message.Title),
		Content:   message.Content,
		Read:      message.Read,
		CreatedAt: message.CreatedAt.UTC(),
	}
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("election_repo_append_message_failed", err,
			"message_id", row.ID,
			"student_id", row.StudentID,
		)
	}
	return nil
}

func (r *Repository) ListMessages(ctx context.Context, studentID string) ([]entities.Message, error) {
	var rows []messageModel
	if err := r.db.WithContext(ctx).
		Where("student_id = ?", strings.TrimSpace(studentID)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_messages_failed", err,
			"student_id", strings.TrimSpace(studentID),
		)
	}
	items := make([]entities.Message, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.Message{
			MessageID: row.ID,
			StudentID: row.StudentID,
			Title:     row.Title,
			Content:   row.Content,
			Read:      row.Read,
			CreatedAt: row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("election_repo_append_outbox_marshal_failed", err,
			"event_id", strings.TrimSpace(envelope.EventID),
			"event_type", strings.TrimSpace(envelope.EventType),
		)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outboxStatusPending,
		CreatedAt:    envelope.OccurredAtUTC.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	create := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "outbox_id"}},
		DoNothing: true,
	}).Create(&row)
	if create.Error != nil {
		return r.logError("election_repo_append_outbox_insert_failed", create.Error,
			"outbox_id", row.OutboxID,
		)
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", outboxStatusPending).
		Order("created_at ASC, outbox_id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("election_repo_list_pending_outbox_failed", err, "limit", limit)
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      append([]byte(nil), row.Payload...),
			CreatedAt:    row.CreatedAt.UTC(),
		})
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", strings.TrimSpace(outboxID)).
		Updates(map[string]any{
			"status":       outboxStatusPublished,
			"published_at": publishedAt.UTC(),
		})
	if result.Error != nil {
		return r.logError("election_repo_mark_outbox_published_failed", result.Error,
			"outbox_id", strings.TrimSpace(outboxID),
		)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", "enrollment/election-engine",
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("election repository operation failed", fields...)
	return err
}

// SystemClock satisfies ports.Clock with wall-clock time.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// UUIDGenerator satisfies ports.IDGenerator with random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

type electionModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	StudentID    string    `gorm:"column:student_id;uniqueIndex:idx_elections_pair"`
	CourseID     string    `gorm:"column:course_id;uniqueIndex:idx_elections_pair"`
	Willingpoint int       `gorm:"column:willingpoint"`
	Credit       int       `gorm:"column:credit"`
	Status       string    `gorm:"column:status;index"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (electionModel) TableName() string {
	return "elections"
}

func electionModelFromEntity(election entities.Election) electionModel {
	row := electionModel{
		ID:           strings.TrimSpace(election.ElectionID),
		StudentID:    strings.TrimSpace(election.StudentID),
		CourseID:     strings.TrimSpace(election.CourseID),
		Willingpoint: election.Willingpoint,
		Credit:       election.Credit,
		Status:       string(election.Status),
		CreatedAt:    election.CreatedAt.UTC(),
		UpdatedAt:    election.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

func (m electionModel) toEntity() entities.Election {
	return entities.Election{
		ElectionID:   m.ID,
		StudentID:    m.StudentID,
		CourseID:     m.CourseID,
		Willingpoint: m.Willingpoint,
		Credit:       m.Credit,
		Status:       entities.ElectionStatus(m.Status),
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
}

type courseModel struct {
	ID       string            `gorm:"column:id;primaryKey"`
	Name     string            `gorm:"column:name"`
	Credit   int               `gorm:"column:credit"`
	Capacity int               `gorm:"column:capacity"`
	Slots    []courseSlotModel `gorm:"foreignKey:CourseID"`
}

func (courseModel) TableName() string {
	return "courses"
}

func (m courseModel) toEntity() entities.Course {
	slots := make([]entities.TimeSlot, 0, len(m.Slots))
	for _, slot := range m.Slots {
		slots = append(slots, entities.TimeSlot{Day: slot.Day, Period: slot.Period})
	}
	return entities.Course{
		CourseID: m.ID,
		Name:     m.Name,
		Credit:   m.Credit,
		Capacity: m.Capacity,
		Slots:    slots,
	}
}

type courseSlotModel struct {
	ID       uint   `gorm:"column:id;primaryKey;autoIncrement"`
	CourseID string `gorm:"column:course_id;index"`
	Day      int    `gorm:"column:day"`
	Period   int    `gorm:"column:period"`
}

func (courseSlotModel) TableName() string {
	return "course_slots"
}

type studentModel struct {
	ID          string `gorm:"column:id;primaryKey"`
	CurCredit   int    `gorm:"column:cur_credit"`
	CreditLimit int    `gorm:"column:credit_limit"`
}

func (studentModel) TableName() string {
	return "students"
}

type messageModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	StudentID string    `gorm:"column:student_id;index"`
	Title     string    `gorm:"column:title"`
	Content   string    `gorm:"column:content"`
	Read      bool      `gorm:"column:read"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (messageModel) TableName() string {
	return "messages"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "election_outbox"
}

type phaseModel struct {
	ID        int       `gorm:"column:id;primaryKey"`
	Open      bool      `gorm:"column:open"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (phaseModel) TableName() string {
	return "election_phase"
}

func filterStatuses(tx *gorm.DB, statuses []entities.ElectionStatus) *gorm.DB {
	if len(statuses) == 0 {
		return tx
	}
	values := make([]string, 0, len(statuses))
	for _, status := range statuses {
		values = append(values, string(status))
	}
	return tx.Where("status IN ?", values)
}

func toElectionEntities(rows []electionModel) []entities.Election {
	items := make([]entities.Election, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.ElectionRepository = (*Repository)(nil)
var _ ports.CourseCatalog = (*Repository)(nil)
var _ ports.StudentDirectory = (*Repository)(nil)
var _ ports.MessageBox = (*Repository)(nil)
var _ ports.OutboxWriter = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.PhaseGate = (*Repository)(nil)
var _ ports.Clock = SystemClock{}
var _ ports.IDGenerator = UUIDGenerator{}

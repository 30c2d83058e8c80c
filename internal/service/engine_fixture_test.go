package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/studio-homework-api/internal/database"
	"github.com/noah-isme/studio-homework-api/internal/dto"
	"github.com/noah-isme/studio-homework-api/internal/models"
	"github.com/noah-isme/studio-homework-api/internal/repository"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []HomeworkEvent
}

func (p *recordingPublisher) Publish(_ context.Context, event HomeworkEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, 0, len(p.events))
	for _, event := range p.events {
		types = append(types, event.Type)
	}
	return types
}

type fixedCodeGenerator struct {
	code  string
	calls int
}

func (g *fixedCodeGenerator) Generate(_ context.Context, _ uint) (TrackingLink, error) {
	g.calls++
	return TrackingLink{Code: g.code, URL: "https://book.test/t?ref=" + g.code}, nil
}

type engineFixture struct {
	db        *gorm.DB
	homework  HomeworkService
	flows     FlowRegistry
	ledger    AttributionLedger
	events    *recordingPublisher
	flowRepo  repository.FlowRepository
	submitRep repository.SubmissionRepository
}

func newEngineFixture(t *testing.T) *engineFixture {
	return newEngineFixtureWithCodes(t, nil)
}

func newEngineFixtureWithCodes(t *testing.T, codes TrackingCodeGenerator) *engineFixture {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.ConnectSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	logger := zerolog.Nop()
	if codes == nil {
		codes = NewTrackingCodeGenerator(NewTemplateBookingURLResolver("https://book.test/t/{teacher_id}"), 10)
	}

	submissions := repository.NewSubmissionRepository(db)
	flowRepo := repository.NewFlowRepository(db)
	uow := repository.NewUnitOfWork(db)
	publisher := &recordingPublisher{}

	flows := NewFlowRegistry(flowRepo, validator.New(), logger)
	catalog := NewHomeworkCatalog(repository.NewHomeworkRepository(db), nil, 0, logger)
	homework := NewHomeworkService(submissions, uow, catalog, flows, codes, publisher, HomeworkServiceConfig{MaxEvidenceLinks: 20, MaxCodeAttempts: 5}, logger)
	ledger := NewAttributionLedger(submissions, repository.NewAttributionEventRepository(db), uow, flows, publisher, logger)

	return &engineFixture{
		db:        db,
		homework:  homework,
		flows:     flows,
		ledger:    ledger,
		events:    publisher,
		flowRepo:  flowRepo,
		submitRep: submissions,
	}
}

// seedHomework creates a module with a "3 posts + 50 comments" homework.
func (f *engineFixture) seedHomework(t *testing.T, title string) models.Homework {
	t.Helper()

	module := models.TrainingModule{Title: "Social Media " + title, Sequence: 1}
	require.NoError(t, f.db.Create(&module).Error)

	homework := models.Homework{ModuleID: module.ID, Title: title, Points: 40}
	homework.SetRequirements([]models.Requirement{
		{Task: "Post reels", Quantity: 3, Metric: "posts"},
		{Task: "Get comments", Quantity: 50, Metric: "comments"},
	})
	homework.SetInstructions([]models.Instruction{{Task: "Post reels", Steps: []string{"film", "edit", "publish"}}})
	require.NoError(t, f.db.Create(&homework).Error)

	return homework
}

func (f *engineFixture) createFlow(t *testing.T, teacherID uint, trigger string, keywords ...string) dto.FlowResponse {
	t.Helper()

	flow, err := f.flows.Create(context.Background(), teacherID, dto.FlowCreateRequest{
		SocialAccountID: fmt.Sprintf("ig-%d", teacherID),
		Name:            "Booking replies",
		TriggerType:     trigger,
		Keywords:        keywords,
		ResponseMessage: "Book here!",
	})
	require.NoError(t, err)
	return flow
}

func (f *engineFixture) loadFlow(t *testing.T, id uint) models.AutomationFlow {
	t.Helper()

	flow, err := f.flowRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return flow
}

func (f *engineFixture) loadSubmission(t *testing.T, id uint) models.HomeworkSubmission {
	t.Helper()

	submission, err := f.submitRep.GetByID(context.Background(), id)
	require.NoError(t, err)
	return submission
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/docforge-api/internal/domain"
)

type fakeGenerator struct {
	briefErr   error
	sectionErr error
	itemErr    error

	mu            sync.Mutex
	sectionBriefs []string
}

func (g *fakeGenerator) GenerateBrief(ctx context.Context, subject json.RawMessage) (string, error) {
	if g.briefErr != nil {
		return "", g.briefErr
	}
	return "brief about " + string(subject), nil
}

func (g *fakeGenerator) GenerateSection(ctx context.Context, subject json.RawMessage, section, brief string) (string, error) {
	g.mu.Lock()
	g.sectionBriefs = append(g.sectionBriefs, brief)
	g.mu.Unlock()
	if g.sectionErr != nil {
		return "", g.sectionErr
	}
	return section + " grounded on: " + brief, nil
}

func (g *fakeGenerator) GenerateItem(ctx context.Context, params json.RawMessage, itemNo int) (string, error) {
	if g.itemErr != nil {
		return "", g.itemErr
	}
	return fmt.Sprintf("item %d from %s", itemNo, params), nil
}

type fakeRenderer struct{}

func (fakeRenderer) Render(title, body string) ([]byte, error) {
	return []byte(title + "\n" + body), nil
}

type fakeArtifactStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeArtifactStore() *fakeArtifactStore {
	return &fakeArtifactStore{objects: make(map[string][]byte)}
}

func (s *fakeArtifactStore) Upload(ctx context.Context, objectKey string, data []byte, contentType string) (domain.Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectKey] = data
	return domain.Artifact{ObjectKey: objectKey, SizeBytes: int64(len(data))}, nil
}

func (s *fakeArtifactStore) Download(ctx context.Context, objectKey string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("object %q not found", objectKey)
	}
	return data, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newPipelineTask(t *testing.T) *domain.DocumentTask {
	t.Helper()
	task, err := domain.NewDocumentTask(domain.TaskKindReportBundle,
		json.RawMessage(`{"name":"Acme Corp"}`), len(ReportBundleStageNames))
	require.NoError(t, err)
	return task
}

func TestExecutors_Stage_Gate(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	artifacts := newFakeArtifactStore()
	exec := NewExecutors(gen, fakeRenderer{}, artifacts, discardLogger()).Stage()

	task := newPipelineTask(t)
	stage := &domain.StageResult{TaskID: task.ID, StageNo: 1, Name: "brief"}

	var reported int64
	artifact, err := exec(context.Background(), task, stage, nil, func(n int64) { reported = n })
	require.NoError(t, err)

	wantKey := fmt.Sprintf("documents/%s/01-brief.docx", task.ID)
	assert.Equal(t, wantKey, artifact.ObjectKey)
	assert.Equal(t, artifact.SizeBytes, reported, "progress reports the rendered size")

	// The raw brief text is stored next to the rendered document.
	briefText, err := artifacts.Download(context.Background(), fmt.Sprintf("documents/%s/brief.txt", task.ID))
	require.NoError(t, err)
	assert.Contains(t, string(briefText), "Acme Corp")
}

func TestExecutors_Stage_SectionGroundedOnBrief(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	artifacts := newFakeArtifactStore()
	factory := NewExecutors(gen, fakeRenderer{}, artifacts, discardLogger())
	exec := factory.Stage()

	task := newPipelineTask(t)

	gateStage := &domain.StageResult{TaskID: task.ID, StageNo: 1, Name: "brief"}
	gateArtifact, err := exec(context.Background(), task, gateStage, nil, func(int64) {})
	require.NoError(t, err)

	sectionStage := &domain.StageResult{TaskID: task.ID, StageNo: 3, Name: "analysis"}
	artifact, err := exec(context.Background(), task, sectionStage, &gateArtifact, func(int64) {})
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("documents/%s/03-analysis.docx", task.ID), artifact.ObjectKey)
	require.Len(t, gen.sectionBriefs, 1)
	assert.Contains(t, gen.sectionBriefs[0], "Acme Corp", "the section sees the gate's brief text")
}

func TestExecutors_Stage_SectionWithoutBriefFails(t *testing.T) {
	t.Parallel()

	exec := NewExecutors(&fakeGenerator{}, fakeRenderer{}, newFakeArtifactStore(), discardLogger()).Stage()

	task := newPipelineTask(t)
	stage := &domain.StageResult{TaskID: task.ID, StageNo: 2, Name: "summary"}

	_, err := exec(context.Background(), task, stage, &domain.Artifact{ObjectKey: "x"}, func(int64) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brief")
}

func TestExecutors_Stage_GenerationErrorPropagates(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{briefErr: errors.New("model unavailable")}
	exec := NewExecutors(gen, fakeRenderer{}, newFakeArtifactStore(), discardLogger()).Stage()

	task := newPipelineTask(t)
	stage := &domain.StageResult{TaskID: task.ID, StageNo: 1, Name: "brief"}

	_, err := exec(context.Background(), task, stage, nil, func(int64) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model unavailable")
}

func TestExecutors_Item(t *testing.T) {
	t.Parallel()

	artifacts := newFakeArtifactStore()
	exec := NewExecutors(&fakeGenerator{}, fakeRenderer{}, artifacts, discardLogger()).Item()

	batch, err := domain.NewBatchTask(json.RawMessage(`{"template":"invoice"}`), 12)
	require.NoError(t, err)

	var reported int64
	artifact, err := exec(context.Background(), batch, 7, func(n int64) { reported = n })
	require.NoError(t, err)

	assert.Equal(t, fmt.Sprintf("batches/%s/item-0007.docx", batch.ID), artifact.ObjectKey)
	assert.Equal(t, artifact.SizeBytes, reported)

	data, err := artifacts.Download(context.Background(), artifact.ObjectKey)
	require.NoError(t, err)
	assert.Contains(t, string(data), "item 7")
}

func TestDocumentTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Brief", documentTitle("brief"))
	assert.Equal(t, "Executive summary", documentTitle("executive_summary"))
	assert.Equal(t, "", documentTitle(""))
}

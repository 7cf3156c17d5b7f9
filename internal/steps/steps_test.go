package steps

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lucasaxm/RegataSimulator/internal/areas"
	"github.com/lucasaxm/RegataSimulator/internal/assets"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/chat/chattest"
	"github.com/lucasaxm/RegataSimulator/internal/compose"
	"github.com/lucasaxm/RegataSimulator/internal/history"
	"github.com/lucasaxm/RegataSimulator/internal/imaging"
	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/lucasaxm/RegataSimulator/internal/routes"
	"github.com/lucasaxm/RegataSimulator/internal/selection"
	"github.com/lucasaxm/RegataSimulator/internal/storage"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	creatorID    = int64(1)
	channelID    = int64(-1001)
	backupChatID = int64(-1002)
)

var now = time.Date(2024, time.March, 10, 15, 0, 0, 0, time.UTC)

type env struct {
	t       *testing.T
	chat    *chattest.Recorder
	store   *storage.MemoryStore
	library *assets.Library
	steps   *Steps
	engine  *workflow.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	root := t.TempDir()
	library, err := assets.New(filepath.Join(root, "templates"), filepath.Join(root, "sources"))
	require.NoError(t, err)
	pipeline, err := compose.New(imaging.NewNative(), filepath.Join(root, "work"), 8)
	require.NoError(t, err)
	t.Cleanup(pipeline.Close)

	store := storage.NewMemory()
	rec := chattest.New()
	st := New(Deps{
		Chat:     rec,
		Store:    store,
		Library:  library,
		Composer: pipeline,
		History:  history.NewRecorder(store, 10, 1),
		Selector: selection.New(rand.New(rand.NewPCG(1, 2))),
	}, Settings{
		ChannelID:       channelID,
		CreatorID:       creatorID,
		BackupChatID:    backupChatID,
		RecentFraction:  0.75,
		TemplateWeight:  30,
		SourceWeight:    10,
		Themes:          selection.DefaultThemes(),
		BackupChunkSize: 1 << 20,
		WorkDir:         filepath.Join(root, "work"),
	})
	st.now = func() time.Time { return now }
	return &env{t: t, chat: rec, store: store, library: library, steps: st, engine: workflow.NewEngine(st.Registry(), 0)}
}

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func halves() []models.Area {
	return []models.Area{
		{Index: 1, SourceSlot: 1, TopLeft: models.Corner{X: 0, Y: 0}, TopRight: models.Corner{X: 50, Y: 0}, BottomRight: models.Corner{X: 50, Y: 100}, BottomLeft: models.Corner{X: 0, Y: 100}},
		{Index: 2, SourceSlot: 2, TopLeft: models.Corner{X: 50, Y: 0}, TopRight: models.Corner{X: 100, Y: 0}, BottomRight: models.Corner{X: 100, Y: 100}, BottomLeft: models.Corner{X: 50, Y: 100}},
	}
}

func (e *env) addTemplate(status models.Status, list []models.Area) models.Template {
	e.t.Helper()
	id := uuid.NewString()
	path, err := e.library.NewTemplatePath(id, ".png")
	require.NoError(e.t, err)
	require.NoError(e.t, os.WriteFile(path, pngBytes(e.t, 100, 100, color.RGBA{A: 0}), 0o644))
	require.NoError(e.t, e.library.WriteAreas(id, list))
	tmpl := models.Template{
		Asset: models.Asset{ID: id, Weight: 30, Status: status, AuthorID: 42,
			Message: &models.MessageRef{ChatID: 500, MessageID: 9, FileID: "orig-" + id}},
		Areas: list,
	}
	require.NoError(e.t, e.store.Templates().Insert(context.Background(), tmpl))
	return tmpl
}

func (e *env) addSource(status models.Status, description string) models.Source {
	e.t.Helper()
	id := uuid.NewString()
	path, err := e.library.NewSourcePath(id, ".png")
	require.NoError(e.t, err)
	require.NoError(e.t, os.WriteFile(path, pngBytes(e.t, 20, 20, color.RGBA{R: 255, A: 255}), 0o644))
	src := models.Source{
		Asset:       models.Asset{ID: id, Weight: 10, Status: status, AuthorID: 42, Message: &models.MessageRef{ChatID: 500, MessageID: 11}},
		Description: description,
	}
	require.NoError(e.t, e.store.Sources().Insert(context.Background(), src))
	return src
}

func (e *env) run(action workflow.Action, wc *workflow.Context) []workflow.Action {
	return e.engine.Run(context.Background(), action, wc)
}

func TestRegistryCoversEveryAction(t *testing.T) {
	reg := newEnv(t).steps.Registry()
	for a := workflow.BuildPongMessage; a <= workflow.SendReport; a++ {
		assert.Contains(t, reg, a, a.String())
	}
	assert.NotContains(t, reg, workflow.None)
}

func TestPing(t *testing.T) {
	e := newEnv(t)
	msg := &chat.Message{ID: 3, ChatID: 77, Text: "/ping", Date: now.Add(-3 * time.Second)}

	trail := e.run(workflow.BuildPongMessage, workflow.NewContext(&chat.Trigger{Message: msg}))

	assert.Equal(t, []workflow.Action{workflow.BuildPongMessage, workflow.SendMessage}, trail)
	call, ok := e.chat.Last("SendText")
	require.True(t, ok)
	assert.Equal(t, chat.Outbound{ChatID: 77, ReplyTo: 3, Text: "pong! (3s)"}, call.Msg)
}

func TestScheduledMemeGoesToChannel(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tmpl := e.addTemplate(models.StatusApproved, halves())
	e.addTemplate(models.StatusReview, halves())
	a := e.addSource(models.StatusApproved, "a")
	b := e.addSource(models.StatusApproved, "b")

	wc := workflow.NewContext(&chat.Trigger{Source: "schedule"})
	trail := e.run(workflow.GetRandomTemplate, wc)

	assert.Equal(t, []workflow.Action{workflow.GetRandomTemplate, workflow.GetRandomSource, workflow.BuildMeme, workflow.SendMeme}, trail)
	call, ok := e.chat.Last("SendPhoto")
	require.True(t, ok)
	assert.Equal(t, channelID, call.ChatID)
	assert.Empty(t, call.Msg.Buttons)
	assert.NoFileExists(t, wc.MemeFile)

	stored, err := e.store.Templates().FindByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 29, stored.Weight)
	for _, src := range []models.Source{a, b} {
		got, err := e.store.Sources().FindByID(ctx, src.ID)
		require.NoError(t, err)
		assert.Equal(t, 9, got.Weight)
	}

	memes, err := e.store.Memes().FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, memes, 1)
	assert.Equal(t, tmpl.ID, memes[0].TemplateID)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, memes[0].SourceIDs)
	assert.Equal(t, channelID, memes[0].Message.ChatID)
	assert.NoError(t, wc.Err)
}

func TestFailedDeliveryIsReported(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	tmpl := e.addTemplate(models.StatusApproved, halves())
	e.addSource(models.StatusApproved, "a")
	e.addSource(models.StatusApproved, "b")
	e.chat.Fail["SendPhoto"] = errors.New("chat not found")

	wc := workflow.NewContext(&chat.Trigger{Source: "schedule"})
	trail := e.run(workflow.GetRandomTemplate, wc)

	assert.Equal(t, workflow.SendMeme, trail[len(trail)-1])
	assert.ErrorContains(t, wc.Err, "chat not found")
	n, err := e.store.Memes().Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	stored, err := e.store.Templates().FindByID(ctx, tmpl.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, stored.Weight)
}

func TestMemeCommandRepliesInChat(t *testing.T) {
	e := newEnv(t)
	e.addTemplate(models.StatusApproved, halves())
	e.addSource(models.StatusApproved, "a")
	e.addSource(models.StatusApproved, "b")

	msg := &chat.Message{ID: 8, ChatID: creatorID, PrivateChat: true, Text: "/meme"}
	e.run(workflow.GetRandomTemplate, workflow.NewContext(&chat.Trigger{Message: msg}))

	call, ok := e.chat.Last("SendPhoto")
	require.True(t, ok)
	assert.Equal(t, creatorID, call.ChatID)
	assert.Equal(t, 8, call.Msg.ReplyTo)
}

func TestGenerationStopsWhenPoolIsTooSmall(t *testing.T) {
	e := newEnv(t)
	e.addTemplate(models.StatusApproved, halves())
	e.addSource(models.StatusApproved, "only one")
	e.addSource(models.StatusReview, "pending")

	trail := e.run(workflow.GetRandomTemplate, workflow.NewContext(&chat.Trigger{Source: "schedule"}))

	assert.Equal(t, []workflow.Action{workflow.GetRandomTemplate, workflow.GetRandomSource}, trail)
	assert.Empty(t, e.chat.Calls)

	trail = e.run(workflow.GetRandomTemplate, workflow.NewContext(nil))
	assert.Len(t, trail, 2)
}

func TestNoApprovedTemplates(t *testing.T) {
	e := newEnv(t)
	e.addTemplate(models.StatusReview, halves())

	trail := e.run(workflow.GetRandomTemplate, workflow.NewContext(&chat.Trigger{Source: "schedule"}))
	assert.Equal(t, []workflow.Action{workflow.GetRandomTemplate}, trail)
	assert.Empty(t, e.chat.Calls)
}

func TestThemedSources(t *testing.T) {
	e := newEnv(t)
	e.steps.now = func() time.Time { return time.Date(2024, time.June, 10, 12, 0, 0, 0, time.UTC) }
	e.addTemplate(models.StatusApproved, halves()[:1])
	themed := e.addSource(models.StatusApproved, "Lucas no celta")
	for i := range 5 {
		e.addSource(models.StatusApproved, strings.Repeat("x", i+1))
	}

	for range 5 {
		wc := workflow.NewContext(nil)
		e.run(workflow.GetRandomTemplate, wc)
		require.Len(t, wc.Sources, 1)
		assert.Equal(t, themed.ID, wc.Sources[0].ID)
	}
}

func submissionMessage(fileID, caption string) *chat.Message {
	return &chat.Message{
		ID: 20, ChatID: 500, Caption: caption,
		From:     &models.Author{ID: 42, Username: "ana"},
		Document: &chat.Document{FileID: fileID, FileName: "x.png", MimeType: "image/png"},
	}
}

func TestCreateTemplatePreview(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addSource(models.StatusApproved, "a")
	e.addSource(models.StatusApproved, "b")
	e.chat.AddFile("doc-1", pngBytes(t, 100, 100, color.RGBA{A: 0}))

	wc := workflow.NewContext(&chat.Trigger{Message: submissionMessage("doc-1", areas.Format(halves()))})
	trail := e.run(workflow.CreateTemplate, wc)

	assert.Equal(t, []workflow.Action{workflow.CreateTemplate, workflow.GetRandomSource, workflow.BuildMeme, workflow.SendMeme}, trail)
	assert.Equal(t, []string{"SendText", "Download", "DeleteMessage", "SendPhoto"}, e.chat.Methods())
	status, _ := e.chat.Last("SendText")
	assert.Equal(t, "Criando template...", status.Msg.Text)

	require.NotNil(t, wc.Template)
	id := wc.Template.ID
	stored, err := e.store.Templates().FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, stored.Status)
	assert.Equal(t, 30, stored.Weight)
	assert.Equal(t, int64(42), stored.AuthorID)
	assert.Equal(t, "doc-1", stored.Message.FileID)
	assert.Equal(t, halves(), stored.Areas)

	onDisk, err := assets.ReadAreas(e.library.TemplateDir(id))
	require.NoError(t, err)
	assert.Equal(t, halves(), onDisk)

	preview, _ := e.chat.Last("SendPhoto")
	assert.Equal(t, int64(500), preview.ChatID)
	assert.Equal(t, 20, preview.Msg.ReplyTo)
	assert.Equal(t, [][]chat.Button{{
		{Text: "✅ Confirmar", Data: routes.CallbackData(id, "template", "confirm")},
		{Text: "❌ Cancelar", Data: routes.CallbackData(id, "template", "cancel")},
	}}, preview.Msg.Buttons)

	// previews leave weights and history alone
	memes, err := e.store.Memes().FindAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, memes)
	sources, err := e.store.Sources().FindAll(ctx)
	require.NoError(t, err)
	for _, s := range sources {
		assert.Equal(t, 10, s.Weight)
	}
	author, err := e.store.Authors().FindByID(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "ana", author.Username)
}

func TestCreateTemplateDownloadFailureCleansUp(t *testing.T) {
	e := newEnv(t)
	wc := workflow.NewContext(&chat.Trigger{Message: submissionMessage("missing", areas.Format(halves()))})
	trail := e.run(workflow.CreateTemplate, wc)

	assert.Equal(t, []workflow.Action{workflow.CreateTemplate}, trail)
	entries, err := os.ReadDir(e.library.TemplatesDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	all, err := e.store.Templates().FindAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreateSourcePreviewKeepsSubmission(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addTemplate(models.StatusApproved, halves())
	other := e.addSource(models.StatusApproved, "other")
	e.chat.AddFile("doc-2", pngBytes(t, 30, 30, color.RGBA{B: 255, A: 255}))

	wc := workflow.NewContext(&chat.Trigger{Message: submissionMessage("doc-2", "Source:  gato bravo ")})
	trail := e.run(workflow.CreateSource, wc)

	assert.Equal(t, []workflow.Action{workflow.CreateSource, workflow.GetRandomTemplate, workflow.GetRandomSource, workflow.BuildMeme, workflow.SendMeme}, trail)
	require.Len(t, wc.Sources, 2)
	assert.Equal(t, "gato bravo", wc.Sources[0].Description)
	assert.Equal(t, other.ID, wc.Sources[1].ID)

	stored, err := e.store.Sources().FindByID(ctx, wc.Sources[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, stored.Status)
	assert.Equal(t, 10, stored.Weight)

	preview, _ := e.chat.Last("SendPhoto")
	assert.Equal(t, routes.CallbackData(stored.ID, "source", "confirm"), preview.Msg.Buttons[0][0].Data)
}

func TestCreateSourceRejections(t *testing.T) {
	t.Run("empty description", func(t *testing.T) {
		e := newEnv(t)
		trail := e.run(workflow.CreateSource, workflow.NewContext(&chat.Trigger{Message: submissionMessage("doc", "source:   ")}))
		assert.Equal(t, []workflow.Action{workflow.CreateSource}, trail)
		call, ok := e.chat.Last("SendText")
		require.True(t, ok)
		assert.Equal(t, "Erro: A descrição não pode estar vazia.", call.Msg.Text)
		assert.Equal(t, 20, call.Msg.ReplyTo)
	})

	t.Run("duplicate description", func(t *testing.T) {
		e := newEnv(t)
		existing := e.addSource(models.StatusApproved, "Lucas C4")
		trail := e.run(workflow.CreateSource, workflow.NewContext(&chat.Trigger{Message: submissionMessage("doc", "source: lucas c4")}))
		assert.Equal(t, []workflow.Action{workflow.CreateSource}, trail)
		assert.Equal(t, []string{"SendPhoto"}, e.chat.Methods())
		call, _ := e.chat.Last("SendPhoto")
		assert.Equal(t, "Erro: Já existe uma source com esta descrição.\nSource existente ID: "+existing.ID+"\nDescrição: Lucas C4", call.Msg.Text)

		all, err := e.store.Sources().FindAll(context.Background())
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func callback(from int64, data string) *chat.Trigger {
	return &chat.Trigger{Callback: &chat.Callback{
		ID:      "cb-1",
		From:    &models.Author{ID: from, FirstName: "Ana"},
		Data:    data,
		Message: &chat.Message{ID: 70, ChatID: 500, Document: &chat.Document{FileID: "preview-photo"}},
	}}
}

func TestConfirmReviewTemplate(t *testing.T) {
	e := newEnv(t)
	tmpl := e.addTemplate(models.StatusReview, halves())

	trail := e.run(workflow.ConfirmReviewTemplate, workflow.NewContext(callback(42, routes.CallbackData(tmpl.ID, "template", "confirm"))))

	assert.Equal(t, []workflow.Action{workflow.ConfirmReviewTemplate}, trail)
	assert.Equal(t, []string{"AnswerCallback", "ClearKeyboard", "SendDocument"}, e.chat.Methods())
	answer, _ := e.chat.Last("AnswerCallback")
	assert.Equal(t, "Template enviado para aprovação.", answer.Text)
	doc, _ := e.chat.Last("SendDocument")
	assert.Equal(t, creatorID, doc.ChatID)
	assert.Equal(t, "orig-"+tmpl.ID, doc.Msg.FileID)
	assert.True(t, doc.Msg.HTML)
	assert.Equal(t, "Template id <code>"+tmpl.ID+"</code> aguardando aprovação.\nEnviado por Ana", doc.Msg.Text)
}

func TestConfirmReviewSourceSendsPreview(t *testing.T) {
	e := newEnv(t)
	src := e.addSource(models.StatusReview, "s")

	e.run(workflow.ConfirmReviewSource, workflow.NewContext(callback(creatorID, routes.CallbackData(src.ID, "source", "confirm"))))

	photo, ok := e.chat.Last("SendPhoto")
	require.True(t, ok)
	assert.Equal(t, "preview-photo", photo.Msg.FileID)
	answer, _ := e.chat.Last("AnswerCallback")
	assert.Equal(t, "Source enviado para aprovação.", answer.Text)
}

func TestReviewButtonsRefuseStrangers(t *testing.T) {
	e := newEnv(t)
	tmpl := e.addTemplate(models.StatusReview, halves())

	e.run(workflow.DeleteReviewTemplate, workflow.NewContext(callback(99, routes.CallbackData(tmpl.ID, "template", "cancel"))))

	assert.Equal(t, []string{"AnswerCallback"}, e.chat.Methods())
	_, err := e.store.Templates().FindByID(context.Background(), tmpl.ID)
	assert.NoError(t, err)
	assert.DirExists(t, e.library.TemplateDir(tmpl.ID))
}

func TestDeleteReviewSource(t *testing.T) {
	e := newEnv(t)
	src := e.addSource(models.StatusReview, "s")

	e.run(workflow.DeleteReviewSource, workflow.NewContext(callback(42, routes.CallbackData(src.ID, "source", "cancel"))))

	assert.Equal(t, []string{"AnswerCallback", "DeleteMessage"}, e.chat.Methods())
	answer, _ := e.chat.Last("AnswerCallback")
	assert.Equal(t, "Source deletado.", answer.Text)
	del, _ := e.chat.Last("DeleteMessage")
	assert.Equal(t, 70, del.MessageID)

	_, err := e.store.Sources().FindByID(context.Background(), src.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoDirExists(t, e.library.SourceDir(src.ID))
}

func TestDeleteApprovedTemplateIsRefused(t *testing.T) {
	e := newEnv(t)
	tmpl := e.addTemplate(models.StatusApproved, halves())

	trail := e.run(workflow.DeleteReviewTemplate, workflow.NewContext(callback(42, routes.CallbackData(tmpl.ID, "template", "cancel"))))
	assert.Equal(t, []workflow.Action{workflow.DeleteReviewTemplate}, trail)
	_, err := e.store.Templates().FindByID(context.Background(), tmpl.ID)
	assert.NoError(t, err)
}

func TestReviewTemplate(t *testing.T) {
	t.Run("approve once", func(t *testing.T) {
		e := newEnv(t)
		tmpl := e.addTemplate(models.StatusReview, halves())
		wc := workflow.NewContext(&chat.Trigger{Source: "admin"})
		wc.Review = &workflow.Review{ID: tmpl.ID, Approved: true}

		trail := e.run(workflow.ReviewTemplate, wc)
		assert.Equal(t, []workflow.Action{workflow.ReviewTemplate, workflow.SendTemplateApprovedMessage, workflow.SendMessage}, trail)
		call, _ := e.chat.Last("SendText")
		assert.Equal(t, chat.Outbound{ChatID: 500, ReplyTo: 9, Text: "✅ Template aprovado!"}, call.Msg)

		stored, err := e.store.Templates().FindByID(context.Background(), tmpl.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, stored.Status)

		wc = workflow.NewContext(&chat.Trigger{Source: "admin"})
		wc.Review = &workflow.Review{ID: tmpl.ID, Approved: false, Reason: "late"}
		trail = e.run(workflow.ReviewTemplate, wc)
		assert.Equal(t, []workflow.Action{workflow.ReviewTemplate}, trail)
		stored, err = e.store.Templates().FindByID(context.Background(), tmpl.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, stored.Status)
	})

	t.Run("reject removes everything", func(t *testing.T) {
		e := newEnv(t)
		tmpl := e.addTemplate(models.StatusReview, halves())
		wc := workflow.NewContext(&chat.Trigger{Source: "admin"})
		wc.Review = &workflow.Review{ID: tmpl.ID, Reason: "feio"}

		trail := e.run(workflow.ReviewTemplate, wc)
		assert.Equal(t, []workflow.Action{workflow.ReviewTemplate, workflow.SendTemplateRejectedMessage, workflow.SendMessage}, trail)
		call, _ := e.chat.Last("SendText")
		assert.Equal(t, "❌ Template recusado.\nMotivo: feio", call.Msg.Text)

		_, err := e.store.Templates().FindByID(context.Background(), tmpl.ID)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.NoDirExists(t, e.library.TemplateDir(tmpl.ID))
	})
}

func TestReviewSource(t *testing.T) {
	e := newEnv(t)
	src := e.addSource(models.StatusReview, "s")
	wc := workflow.NewContext(nil)
	wc.Review = &workflow.Review{ID: src.ID, Approved: true}

	trail := e.run(workflow.ReviewSource, wc)
	assert.Equal(t, []workflow.Action{workflow.ReviewSource, workflow.SendSourceApprovedMessage, workflow.SendMessage}, trail)
	call, _ := e.chat.Last("SendText")
	assert.Equal(t, "✅ Source aprovado!", call.Msg.Text)
	assert.Equal(t, 11, call.Msg.ReplyTo)

	missing := workflow.NewContext(nil)
	missing.Review = &workflow.Review{ID: uuid.NewString()}
	assert.Equal(t, []workflow.Action{workflow.ReviewSource}, e.run(workflow.ReviewSource, missing))
}

func TestBackupChain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.addTemplate(models.StatusApproved, halves())
	e.addTemplate(models.StatusApproved, halves())
	e.addSource(models.StatusApproved, "a")
	require.NoError(t, e.store.Authors().Insert(ctx, models.Author{ID: 42, Username: "ana"}))
	_, err := e.steps.History.Append(ctx, "t", []string{"s"}, nil)
	require.NoError(t, err)

	trail := e.run(workflow.BackupDatabase, workflow.NewContext(&chat.Trigger{Source: "schedule"}))

	assert.Equal(t, []workflow.Action{
		workflow.BackupDatabase, workflow.BackupTemplates, workflow.BackupSources,
		workflow.SendReport, workflow.SendMessage,
	}, trail)

	var captions []string
	for _, c := range e.chat.Calls {
		if c.Method == "SendDocument" {
			assert.Equal(t, backupChatID, c.ChatID)
			captions = append(captions, c.Msg.Text)
		}
	}
	assert.Equal(t, []string{"database backup", "history backup", "templates backup", "sources backup"}, captions)

	report, _ := e.chat.Last("SendText")
	assert.Equal(t, backupChatID, report.ChatID)
	assert.True(t, report.Msg.HTML)
	assert.Contains(t, report.Msg.Text, "• Templates: 2")
	assert.Contains(t, report.Msg.Text, "1. <b>@ana</b>: 2 templates.")

	entries, err := os.ReadDir(e.steps.cfg.WorkDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.Equal(t, "masks", entry.Name())
	}
}

func TestBackupSplitsLargeDirectories(t *testing.T) {
	e := newEnv(t)
	e.steps.cfg.BackupChunkSize = 1
	e.addSource(models.StatusApproved, "a")
	e.addSource(models.StatusApproved, "b")

	trail := e.run(workflow.BackupSources, workflow.NewContext(nil))
	assert.Equal(t, []workflow.Action{workflow.BackupSources, workflow.SendReport, workflow.SendMessage}, trail)

	var captions []string
	for _, c := range e.chat.Calls {
		if c.Method == "SendDocument" {
			captions = append(captions, c.Msg.Text)
		}
	}
	assert.Equal(t, []string{"sources backup (1/2)", "sources backup (2/2)"}, captions)
}

func TestReportRepliesToCommand(t *testing.T) {
	e := newEnv(t)
	msg := &chat.Message{ID: 5, ChatID: creatorID, Text: "/report"}

	e.run(workflow.SendReport, workflow.NewContext(&chat.Trigger{Message: msg}))

	call, ok := e.chat.Last("SendText")
	require.True(t, ok)
	assert.Equal(t, creatorID, call.ChatID)
	assert.Equal(t, 5, call.Msg.ReplyTo)
	assert.True(t, strings.HasPrefix(call.Msg.Text, "<b>📊 Relatório Geral</b>"))
}

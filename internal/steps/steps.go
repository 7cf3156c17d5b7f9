// Package steps holds every workflow step the bot runs and the registry that
// maps actions onto them.
package steps

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lucasaxm/RegataSimulator/internal/assets"
	"github.com/lucasaxm/RegataSimulator/internal/chat"
	"github.com/lucasaxm/RegataSimulator/internal/history"
	"github.com/lucasaxm/RegataSimulator/internal/models"
	"github.com/lucasaxm/RegataSimulator/internal/selection"
	"github.com/lucasaxm/RegataSimulator/internal/storage"
	"github.com/lucasaxm/RegataSimulator/internal/workflow"
)

// Composer renders a meme from a template and one source file per area
type Composer interface {
	Compose(ctx context.Context, templateFile string, list []models.Area, sourceFiles []string, out string) error
}

// Deps are the collaborators the steps talk to
type Deps struct {
	Chat     chat.Client
	Store    storage.Store
	Library  *assets.Library
	Composer Composer
	History  *history.Recorder
	Selector *selection.Selector
}

// Settings are the deployment values the steps need
type Settings struct {
	ChannelID    int64
	CreatorID    int64
	BackupChatID int64

	RecentFraction float64
	TemplateWeight int
	SourceWeight   int
	Themes         []selection.Theme
	Location       *time.Location

	BackupChunkSize int64
	WorkDir         string
}

type Steps struct {
	Deps
	cfg Settings
	now func() time.Time
}

func New(deps Deps, cfg Settings) *Steps {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RecentFraction <= 0 {
		cfg.RecentFraction = 0.75
	}
	return &Steps{Deps: deps, cfg: cfg, now: time.Now}
}

// Registry maps every action to its step
func (s *Steps) Registry() workflow.Registry {
	return workflow.Registry{
		workflow.BuildPongMessage: workflow.StepFunc(s.buildPongMessage),
		workflow.SendMessage:      workflow.StepFunc(s.sendMessage),
		workflow.SendPhoto:        workflow.StepFunc(s.sendPhoto),

		workflow.GetRandomTemplate: workflow.StepFunc(s.getRandomTemplate),
		workflow.GetRandomSource:   workflow.StepFunc(s.getRandomSource),
		workflow.BuildMeme:         workflow.StepFunc(s.buildMeme),
		workflow.SendMeme:          workflow.StepFunc(s.sendMeme),

		workflow.CreateTemplate:              workflow.StepFunc(s.createTemplate),
		workflow.ConfirmReviewTemplate:       workflow.StepFunc(s.confirmReviewTemplate),
		workflow.DeleteReviewTemplate:        workflow.StepFunc(s.deleteReviewTemplate),
		workflow.ReviewTemplate:              workflow.StepFunc(s.reviewTemplate),
		workflow.SendTemplateApprovedMessage: workflow.StepFunc(s.sendTemplateApprovedMessage),
		workflow.SendTemplateRejectedMessage: workflow.StepFunc(s.sendTemplateRejectedMessage),

		workflow.CreateSource:              workflow.StepFunc(s.createSource),
		workflow.ConfirmReviewSource:       workflow.StepFunc(s.confirmReviewSource),
		workflow.DeleteReviewSource:        workflow.StepFunc(s.deleteReviewSource),
		workflow.ReviewSource:              workflow.StepFunc(s.reviewSource),
		workflow.SendSourceApprovedMessage: workflow.StepFunc(s.sendSourceApprovedMessage),
		workflow.SendSourceRejectedMessage: workflow.StepFunc(s.sendSourceRejectedMessage),

		workflow.BackupDatabase:  workflow.StepFunc(s.backupDatabase),
		workflow.BackupTemplates: workflow.StepFunc(s.backupTemplates),
		workflow.BackupSources:   workflow.StepFunc(s.backupSources),
		workflow.SendReport:      workflow.StepFunc(s.sendReport),
	}
}

var errMissing = errors.New("missing workflow context")

// fail logs why the step stopped and ends the run
func fail(wc *workflow.Context, msg string, err error) workflow.Action {
	wc.Log.Error(msg, "error", err)
	wc.Failed(fmt.Errorf("%s: %w", msg, err))
	return workflow.None
}

package buttondown

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/targets"
)

var dateRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// Publisher is the buttondown publish target. It only ever writes drafts.
type Publisher struct {
	client *Client
	logger *slog.Logger
}

// New creates a Publisher.
func New(client *Client, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, logger: logger}
}

func (p *Publisher) Name() string { return models.TargetButtondown }

// Publish updates the draft previousID names, or the draft whose subject
// carries the entry's date, and creates one when neither exists.
func (p *Publisher) Publish(ctx context.Context, e *models.Entry, previousID string, opts targets.Options) targets.Result {
	subject := e.Subject()

	if opts.DryRun {
		res := targets.Preview(p.Name(), e, previousID)
		res.Detail = fmt.Sprintf("%s (%d bytes)", res.Detail, len(e.Body))
		return res
	}

	if previousID == "" {
		id, err := p.findDraft(ctx, e.DateKey())
		if err != nil {
			return targets.Failed(err)
		}
		previousID = id
	}

	if previousID != "" {
		email, err := p.client.UpdateDraft(ctx, previousID, subject, e.Body)
		if err == nil {
			return targets.Result{Status: targets.StatusUpdated, RemoteID: email.ID, Detail: "draft updated"}
		}
		if !IsNotFound(err) {
			return targets.Failed(err)
		}
		p.logger.Warn("buttondown: previous draft gone, creating a new one", slog.String("email", previousID))
	}

	email, err := p.client.CreateDraft(ctx, subject, e.Body)
	if err != nil {
		return targets.Failed(err)
	}
	return targets.Result{Status: targets.StatusCreated, RemoteID: email.ID, Detail: "draft created"}
}

func (p *Publisher) findDraft(ctx context.Context, dateKey string) (string, error) {
	drafts, err := p.client.Drafts(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range drafts {
		if dateRe.FindString(d.Subject) == dateKey {
			return d.ID, nil
		}
	}
	return "", nil
}

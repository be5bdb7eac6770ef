package notion

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/monologue/internal/links"
	"github.com/starford/monologue/internal/models"
	"github.com/starford/monologue/internal/targets"
)

// Publisher is the notion publish target.
type Publisher struct {
	client   *Client
	parentID string
	rewriter *links.Rewriter
	logger   *slog.Logger
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithLogger sets the publisher logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Publisher) { p.logger = l }
}

// WithRewriter sets how returned page URLs are canonicalised.
func WithRewriter(r *links.Rewriter) Option {
	return func(p *Publisher) { p.rewriter = r }
}

// New creates a Publisher that files pages under parentPageID.
func New(client *Client, parentPageID string, opts ...Option) *Publisher {
	p := &Publisher{
		client:   client,
		parentID: parentPageID,
		rewriter: links.NewRewriter(""),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) Name() string { return models.TargetNotion }

// Publish creates a page for e, or replaces the title and content of the page
// previousID points at.
func (p *Publisher) Publish(ctx context.Context, e *models.Entry, previousID string, opts targets.Options) targets.Result {
	blocks := Blocks(e.Body)

	if opts.DryRun {
		res := targets.Preview(p.Name(), e, previousID)
		res.Detail = fmt.Sprintf("%s (%d blocks)", res.Detail, len(blocks))
		return res
	}

	if previousID != "" {
		res, err := p.update(ctx, e, previousID, blocks)
		if err == nil {
			return res
		}
		if !IsNotFound(err) {
			return targets.Failed(err)
		}
		p.logger.Warn("notion: previous page gone, creating a new one",
			slog.String("page", previousID), slog.String("error", err.Error()))
	}

	res, err := p.create(ctx, e, blocks)
	if err != nil {
		return targets.Failed(err)
	}
	return res
}

func (p *Publisher) create(ctx context.Context, e *models.Entry, blocks []Block) (targets.Result, error) {
	first, rest := blocks, []Block(nil)
	if len(blocks) > MaxBatch {
		first, rest = blocks[:MaxBatch], blocks[MaxBatch:]
	}
	page, err := p.client.CreatePage(ctx, p.parentID, e.Subject(), first)
	if err != nil {
		return targets.Result{}, err
	}
	if err := p.client.AppendChildren(ctx, page.ID, rest); err != nil {
		return targets.Result{}, err
	}
	return targets.Result{
		Status:   targets.StatusCreated,
		RemoteID: p.remoteID(page),
		Detail:   fmt.Sprintf("%d blocks", len(blocks)),
	}, nil
}

func (p *Publisher) update(ctx context.Context, e *models.Entry, previousID string, blocks []Block) (targets.Result, error) {
	id, err := PageIDFromURL(previousID)
	if err != nil {
		return targets.Result{}, err
	}
	pageID := id.String()

	if _, err := p.client.UpdateTitle(ctx, pageID, e.Subject()); err != nil {
		return targets.Result{}, err
	}
	children, err := p.client.ChildIDs(ctx, pageID)
	if err != nil {
		return targets.Result{}, err
	}
	for _, child := range children {
		if err := p.client.DeleteBlock(ctx, child); err != nil {
			return targets.Result{}, err
		}
	}
	if err := p.client.AppendChildren(ctx, pageID, blocks); err != nil {
		return targets.Result{}, err
	}
	return targets.Result{
		Status:   targets.StatusUpdated,
		RemoteID: previousID,
		Detail:   fmt.Sprintf("replaced %d blocks with %d", len(children), len(blocks)),
	}, nil
}

func (p *Publisher) remoteID(page Page) string {
	if canon, ok := p.rewriter.Canonicalize(page.URL); ok {
		return canon
	}
	return p.rewriter.CanonicalURL(strings.ReplaceAll(page.ID, "-", ""))
}

package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/blockedby/survey-portal/internal/catalog"
	"github.com/blockedby/survey-portal/internal/metrics"
	"github.com/blockedby/survey-portal/internal/portalapi"
)

var (
	ErrNoStudy      = errors.New("no study selected")
	ErrViewNotFound = errors.New("saved view not found")
)

// transition kinds, used for logging and metrics
const (
	kindBootstrap = "bootstrap"
	kindScope     = "study_scope"
	kindData      = "data"
	kindSave      = "save_view"
	kindDelete    = "delete_view"
	kindExport    = "export"
)

// Backend is the subset of the API client the controller needs.
type Backend interface {
	GetStudies(ctx context.Context) ([]portalapi.Study, error)
	GetFilterOptions(ctx context.Context, studyID int64) (portalapi.FilterOptions, error)
	GetTimeseries(ctx context.Context, studyID int64, questionCode string, filters portalapi.Filters) ([]portalapi.TimePoint, error)
	GetDistribution(ctx context.Context, studyID int64, questionCode, dimension string, filters portalapi.Filters) ([]portalapi.DistributionPoint, error)
	ExportCSV(ctx context.Context, studyID int64, questionCode, dimension string, filters portalapi.Filters, tokens portalapi.TokenProvider) ([]byte, error)
	GetSavedViews(ctx context.Context, studyID int64, tokens portalapi.TokenProvider) ([]portalapi.SavedView, error)
	CreateSavedView(ctx context.Context, payload portalapi.SavedViewPayload, tokens portalapi.TokenProvider) error
	DeleteSavedView(ctx context.Context, viewID int64, tokens portalapi.TokenProvider) error
}

// TransitionRecorder receives the outcome of every transition.
type TransitionRecorder interface {
	ObserveTransition(kind, outcome string)
}

// Options configures a Controller. Zero values are valid.
type Options struct {
	Catalog   *catalog.Catalog
	Tokens    portalapi.TokenProvider
	Publisher Publisher
	Metrics   TransitionRecorder
	Logger    *zerolog.Logger
}

// Download is an exported CSV ready to hand to the user.
type Download struct {
	Filename string
	Content  []byte
}

// Controller owns one dashboard's state and performs the fetches its
// transitions require. It is safe for concurrent use.
//
// Every study-scoped load and data load is tagged with a sequence number; a
// completion is applied only if no newer load of the same kind was issued
// after it, so a slow stale response never overwrites a newer selection.
type Controller struct {
	backend   Backend
	catalog   *catalog.Catalog
	tokens    portalapi.TokenProvider
	publisher Publisher
	metrics   TransitionRecorder
	log       zerolog.Logger

	mu           sync.Mutex
	state        State
	bootstrapped bool
	scopeSeq     uint64
	dataSeq      uint64
	subscribers  map[int]func(State)
	nextSubID    int
}

// NewController creates a controller in its pre-bootstrap state.
func NewController(backend Backend, opts Options) *Controller {
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.Default()
	}
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "dashboard").Logger()
	}

	return &Controller{
		backend:     backend,
		catalog:     cat,
		tokens:      opts.Tokens,
		publisher:   opts.Publisher,
		metrics:     opts.Metrics,
		log:         log,
		state:       NewState(cat),
		subscribers: make(map[int]func(State)),
	}
}

// Catalog returns the question table the controller validates against.
func (c *Controller) Catalog() *catalog.Catalog {
	return c.catalog
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// Subscribe registers fn to be called with a snapshot after every committed
// change. The returned func removes the subscription.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSubID
	c.nextSubID++
	c.subscribers[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subscribers, id)
		c.mu.Unlock()
	}
}

// Bootstrap loads the study list and selects the first study unless one is
// already selected. Once it has succeeded later calls return nil immediately;
// after a failure the next call tries again.
func (c *Controller) Bootstrap(ctx context.Context) error {
	c.mu.Lock()
	if c.bootstrapped {
		c.mu.Unlock()
		return nil
	}
	c.bootstrapped = true
	c.mu.Unlock()

	c.apply(BootstrapStarted{})

	studies, err := c.backend.GetStudies(ctx)
	if err != nil {
		c.mu.Lock()
		c.bootstrapped = false
		c.mu.Unlock()
		c.fail(kindBootstrap, err, BootstrapFailed{Message: err.Error()})
		return err
	}

	prev := c.Snapshot().StudyID
	next := c.apply(StudiesLoaded{Studies: studies})
	c.succeed(kindBootstrap, "studies", len(studies))

	if next.StudyID != 0 && next.StudyID != prev {
		return c.studyChanged(ctx)
	}
	return nil
}

// SelectStudy switches the dashboard to another study. Filter options, saved
// views and chart data are reloaded concurrently.
func (c *Controller) SelectStudy(ctx context.Context, studyID int64) error {
	if studyID < 0 {
		return fmt.Errorf("invalid study id %d", studyID)
	}
	if !c.changes(func(s State) bool { return s.StudyID != studyID }, StudySelected{StudyID: studyID}) {
		return nil
	}
	return c.studyChanged(ctx)
}

// SelectQuestion changes the charted question.
func (c *Controller) SelectQuestion(ctx context.Context, code string) error {
	if !c.catalog.HasQuestion(code) {
		return fmt.Errorf("%w: %q", catalog.ErrUnknownQuestion, code)
	}
	if !c.changes(func(s State) bool { return s.QuestionCode != code }, QuestionSelected{QuestionCode: code}) {
		return nil
	}
	return c.loadData(ctx)
}

// SelectDimension changes the distribution dimension.
func (c *Controller) SelectDimension(ctx context.Context, dimension string) error {
	if !catalog.IsDimension(dimension) {
		return fmt.Errorf("%w: %q", catalog.ErrUnknownDimension, dimension)
	}
	if !c.changes(func(s State) bool { return s.Dimension != dimension }, DimensionSelected{Dimension: dimension}) {
		return nil
	}
	return c.loadData(ctx)
}

// SetFilter replaces one filter value, keeping the other three, and reloads
// the chart data.
func (c *Controller) SetFilter(ctx context.Context, key, value string) error {
	if !catalog.IsDimension(key) {
		return fmt.Errorf("%w: %q", catalog.ErrUnknownFilterKey, key)
	}
	c.apply(FilterChanged{Key: key, Value: value})
	return c.loadData(ctx)
}

// SetViewName stores the saved-view name input.
func (c *Controller) SetViewName(name string) {
	c.apply(ViewNameChanged{Name: name})
}

// SaveView stores the current selection under the name input. It does nothing
// when no study is selected or the trimmed name is empty.
func (c *Controller) SaveView(ctx context.Context) error {
	snap := c.Snapshot()
	name := strings.TrimSpace(snap.ViewName)
	if snap.StudyID == 0 || name == "" {
		return nil
	}

	sel := snap.Selection()
	payload := portalapi.SavedViewPayload{
		StudyID:               sel.StudyID,
		Name:                  name,
		QuestionCode:          sel.QuestionCode,
		DistributionDimension: sel.Dimension,
		Filters:               sel.Filters,
	}

	if err := c.backend.CreateSavedView(ctx, payload, c.tokens); err != nil {
		c.fail(kindSave, err, OperationFailed{Message: err.Error()})
		return err
	}
	c.apply(ViewCreated{})

	if err := c.refreshViews(ctx, sel.StudyID); err != nil {
		c.fail(kindSave, err, OperationFailed{Message: err.Error()})
		return err
	}
	c.succeed(kindSave, "name", name)

	c.publish(ctx, Activity{
		Kind:         ActivityViewSaved,
		StudyID:      sel.StudyID,
		Name:         name,
		QuestionCode: sel.QuestionCode,
		Dimension:    sel.Dimension,
		Filters:      sel.Filters,
	})
	return nil
}

// LoadView applies a saved view's question, dimension and filters. The
// selected study does not change.
func (c *Controller) LoadView(ctx context.Context, view portalapi.SavedView) error {
	if err := c.catalog.ValidateView(view.QuestionCode, view.DistributionDimension, view.Filters); err != nil {
		return fmt.Errorf("load view %d: %w", view.ID, err)
	}
	c.apply(ViewApplied{View: view})
	return c.loadData(ctx)
}

// LoadViewByID applies a view from the current saved-view list.
func (c *Controller) LoadViewByID(ctx context.Context, viewID int64) error {
	view := c.Snapshot().FindView(viewID)
	if view == nil {
		return fmt.Errorf("%w: %d", ErrViewNotFound, viewID)
	}
	return c.LoadView(ctx, *view)
}

// DeleteView removes a saved view and reloads the list. When the deletion
// fails the list is left untouched.
func (c *Controller) DeleteView(ctx context.Context, viewID int64) error {
	studyID := c.Snapshot().StudyID
	if studyID == 0 {
		return ErrNoStudy
	}

	if err := c.backend.DeleteSavedView(ctx, viewID, c.tokens); err != nil {
		c.fail(kindDelete, err, OperationFailed{Message: err.Error()})
		return err
	}

	if err := c.refreshViews(ctx, studyID); err != nil {
		c.fail(kindDelete, err, OperationFailed{Message: err.Error()})
		return err
	}
	c.succeed(kindDelete, "view_id", viewID)

	c.publish(ctx, Activity{Kind: ActivityViewDeleted, StudyID: studyID, ViewID: viewID})
	return nil
}

// Export fetches the CSV of the current selection. Loading and chart state are
// not affected.
func (c *Controller) Export(ctx context.Context) (*Download, error) {
	sel := c.Snapshot().Selection()
	if sel.StudyID == 0 {
		return nil, ErrNoStudy
	}

	content, err := c.backend.ExportCSV(ctx, sel.StudyID, sel.QuestionCode, sel.Dimension, sel.Filters, c.tokens)
	if err != nil {
		c.fail(kindExport, err, OperationFailed{Message: err.Error()})
		return nil, err
	}
	c.apply(ExportCompleted{})
	c.succeed(kindExport, "bytes", len(content))

	c.publish(ctx, Activity{
		Kind:         ActivityExported,
		StudyID:      sel.StudyID,
		QuestionCode: sel.QuestionCode,
		Dimension:    sel.Dimension,
		Filters:      sel.Filters,
	})

	return &Download{
		Filename: ExportFilename(sel),
		Content:  content,
	}, nil
}

// ExportFilename names the CSV download of a selection.
func ExportFilename(sel Selection) string {
	return fmt.Sprintf("study-%d-%s-%s.csv", sel.StudyID, sel.QuestionCode, sel.Dimension)
}

// studyChanged runs the study-scoped load and the data load concurrently.
// They are independent: either may fail without affecting the other.
func (c *Controller) studyChanged(ctx context.Context) error {
	var g errgroup.Group
	var scopeErr, dataErr error
	g.Go(func() error {
		scopeErr = c.loadScope(ctx)
		return nil
	})
	g.Go(func() error {
		dataErr = c.loadData(ctx)
		return nil
	})
	_ = g.Wait()
	return errors.Join(scopeErr, dataErr)
}

// loadScope fetches filter options and saved views of the selected study.
func (c *Controller) loadScope(ctx context.Context) error {
	c.mu.Lock()
	studyID := c.state.StudyID
	if studyID == 0 {
		c.mu.Unlock()
		return nil
	}
	c.scopeSeq++
	seq := c.scopeSeq
	c.mu.Unlock()

	var (
		options portalapi.FilterOptions
		views   []portalapi.SavedView
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		options, err = c.backend.GetFilterOptions(gctx, studyID)
		return err
	})
	g.Go(func() error {
		var err error
		views, err = c.backend.GetSavedViews(gctx, studyID, c.tokens)
		return err
	})

	if err := g.Wait(); err != nil {
		c.commit(kindScope, seq, &c.scopeSeq, ScopeFailed{Message: err.Error()}, err)
		return err
	}
	c.commit(kindScope, seq, &c.scopeSeq, ScopeLoaded{Options: options, Views: views}, nil)
	return nil
}

// loadData fetches timeseries and distribution for a snapshot of the
// selection. Neither result is applied unless both succeed.
func (c *Controller) loadData(ctx context.Context) error {
	c.mu.Lock()
	if c.state.StudyID == 0 {
		c.mu.Unlock()
		return nil
	}
	c.dataSeq++
	seq := c.dataSeq
	sel := c.state.Selection()
	c.state = Reduce(c.state, DataRequested{})
	snapshot, subs := c.state.Clone(), c.subscriberList()
	c.mu.Unlock()
	notify(subs, snapshot)

	var (
		timeseries   []portalapi.TimePoint
		distribution []portalapi.DistributionPoint
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		timeseries, err = c.backend.GetTimeseries(gctx, sel.StudyID, sel.QuestionCode, sel.Filters)
		return err
	})
	g.Go(func() error {
		var err error
		distribution, err = c.backend.GetDistribution(gctx, sel.StudyID, sel.QuestionCode, sel.Dimension, sel.Filters)
		return err
	})

	if err := g.Wait(); err != nil {
		c.commit(kindData, seq, &c.dataSeq, DataFailed{Message: err.Error()}, err)
		return err
	}
	c.commit(kindData, seq, &c.dataSeq, DataLoaded{Timeseries: timeseries, Distribution: distribution}, nil)
	return nil
}

func (c *Controller) refreshViews(ctx context.Context, studyID int64) error {
	views, err := c.backend.GetSavedViews(ctx, studyID, c.tokens)
	if err != nil {
		return err
	}
	c.apply(ViewsRefreshed{StudyID: studyID, Views: views})
	return nil
}

// commit applies e only if seq is still the latest issued sequence of its kind.
func (c *Controller) commit(kind string, seq uint64, latest *uint64, e Event, err error) {
	c.mu.Lock()
	if seq != *latest {
		c.mu.Unlock()
		c.observe(kind, metrics.OutcomeStale)
		c.log.Debug().Str("kind", kind).Uint64("seq", seq).Msg("dropping stale response")
		return
	}
	c.state = Reduce(c.state, e)
	snapshot, subs := c.state.Clone(), c.subscriberList()
	c.mu.Unlock()

	if err != nil {
		c.observe(kind, metrics.OutcomeError)
		c.log.Warn().Err(err).Str("kind", kind).Msg("transition failed")
	} else {
		c.observe(kind, metrics.OutcomeOK)
		c.log.Debug().Str("kind", kind).Uint64("seq", seq).Msg("transition committed")
	}
	notify(subs, snapshot)
}

// changes applies e only when cond holds on the current state.
func (c *Controller) changes(cond func(State) bool, e Event) bool {
	c.mu.Lock()
	if !cond(c.state) {
		c.mu.Unlock()
		return false
	}
	c.state = Reduce(c.state, e)
	snapshot, subs := c.state.Clone(), c.subscriberList()
	c.mu.Unlock()

	notify(subs, snapshot)
	return true
}

func (c *Controller) apply(e Event) State {
	c.mu.Lock()
	c.state = Reduce(c.state, e)
	snapshot, subs := c.state.Clone(), c.subscriberList()
	c.mu.Unlock()

	notify(subs, snapshot)
	return snapshot
}

func (c *Controller) fail(kind string, err error, e Event) {
	c.apply(e)
	c.observe(kind, metrics.OutcomeError)
	c.log.Warn().Err(err).Str("kind", kind).Msg("transition failed")
}

func (c *Controller) succeed(kind, key string, value any) {
	c.observe(kind, metrics.OutcomeOK)
	c.log.Info().Str("kind", kind).Interface(key, value).Msg("transition committed")
}

func (c *Controller) observe(kind, outcome string) {
	if c.metrics != nil {
		c.metrics.ObserveTransition(kind, outcome)
	}
}

func (c *Controller) publish(ctx context.Context, a Activity) {
	if c.publisher == nil {
		return
	}
	a.At = time.Now().UTC()
	if err := c.publisher.PublishActivity(ctx, a); err != nil {
		c.log.Warn().Err(err).Str("activity", a.Kind).Msg("failed to publish activity")
	}
}

// subscriberList must be called with mu held.
func (c *Controller) subscriberList() []func(State) {
	if len(c.subscribers) == 0 {
		return nil
	}
	out := make([]func(State), 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		out = append(out, fn)
	}
	return out
}

func notify(subs []func(State), s State) {
	for _, fn := range subs {
		fn(s)
	}
}

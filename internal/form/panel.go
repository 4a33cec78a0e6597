package form

import (
	"context"
	"sync"

	"meshdash/internal/action"
)

// Activity carries the status line of a panel and runs its actions.
type Activity struct {
	mu     sync.Mutex
	status Status
}

// Status returns the current status.
func (a *Activity) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// SetStatus replaces the current status.
func (a *Activity) SetStatus(s Status) {
	a.mu.Lock()
	a.status = s
	a.mu.Unlock()
}

// Perform runs op through ctl. While op is in flight the status shows
// progress; afterwards it is empty on success or carries the error.
// ErrBusy and ErrDisabled leave the status untouched.
func (a *Activity) Perform(ctx context.Context, ctl *action.Control, disabled bool, progress string, op func(context.Context) error) error {
	return ctl.Run(ctx, disabled, func(ctx context.Context) error {
		a.SetStatus(Progress(progress))
		if err := op(ctx); err != nil {
			a.SetStatus(Failure(err))
			return err
		}
		a.SetStatus(EmptyStatus)
		return nil
	})
}

// Panel is an editor of one value: a draft, its reducer and a save action.
type Panel[T any] struct {
	Activity

	save   action.Control
	reduce Reducer[T]
	equal  func(a, b T) bool

	draftMu sync.Mutex
	draft   Draft[T]
}

// PanelView is a render snapshot of a panel against its confirmed value.
type PanelView[T any] struct {
	Draft        Draft[T]
	Dirty        bool
	SaveEligible bool
	Busy         bool
	Status       Status
}

// NewPanel starts a panel whose draft equals initial.
func NewPanel[T any](initial T, reduce Reducer[T], equal func(a, b T) bool) *Panel[T] {
	return &Panel[T]{
		reduce: reduce,
		equal:  equal,
		draft:  NewDraft(initial),
	}
}

// Draft returns the current draft.
func (p *Panel[T]) Draft() Draft[T] {
	p.draftMu.Lock()
	defer p.draftMu.Unlock()
	return p.draft
}

// Edit applies one field input through the reducer.
func (p *Panel[T]) Edit(field, input string) (Draft[T], error) {
	p.draftMu.Lock()
	defer p.draftMu.Unlock()
	next, err := p.reduce(p.draft, field, input)
	if err != nil {
		return p.draft, err
	}
	p.draft = next
	return next, nil
}

// Follow moves an untouched draft from the old confirmed value to the new
// one. Drafts carrying edits or flagged fields are left alone.
func (p *Panel[T]) Follow(old, current T) {
	p.draftMu.Lock()
	defer p.draftMu.Unlock()
	if p.draft.Valid() && p.equal(p.draft.Value, old) {
		p.draft = NewDraft(current)
	}
}

// Snapshot reports the panel state against the confirmed value.
func (p *Panel[T]) Snapshot(confirmed T) PanelView[T] {
	d := p.Draft()
	dirty := !p.equal(d.Value, confirmed)
	return PanelView[T]{
		Draft:        d,
		Dirty:        dirty,
		SaveEligible: dirty && d.Valid(),
		Busy:         p.save.Busy(),
		Status:       p.Status(),
	}
}

// Save hands the draft value to fn when it differs from confirmed and no
// field is flagged. On failure the draft is kept for retry.
func (p *Panel[T]) Save(ctx context.Context, confirmed T, fn func(context.Context, T) error) error {
	d := p.Draft()
	eligible := d.Valid() && !p.equal(d.Value, confirmed)
	return p.Perform(ctx, &p.save, !eligible, "Saving..", func(ctx context.Context) error {
		return fn(ctx, d.Value)
	})
}

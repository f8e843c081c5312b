package console

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"seclabel/core"
)

// DefaultPageSize matches the labeling table.
const DefaultPageSize = 10

var (
	// ErrDuplicateTag is returned when a tag is already on the form.
	ErrDuplicateTag = errors.New("tag already added")

	// ErrNoSelection is returned when submitting without a selected event.
	ErrNoSelection = errors.New("no event selected")

	// ErrRowNotFound is returned when selecting an id not on the current page.
	ErrRowNotFound = errors.New("event is not on the current page")
)

// EventFilters is the filter form above the labeling table. Dates are
// YYYY-MM-DD or RFC 3339 strings as typed.
type EventFilters struct {
	Severity     string
	SIEMSource   string
	SourceIP     string
	AttackType   string
	ManualReview *bool
	DateFrom     string
	DateTo       string
}

// Values encodes the set filters as query parameters, plus page and
// page_size when positive. Blank fields are omitted.
func (f EventFilters) Values(page, pageSize int) url.Values {
	q := url.Values{}
	set := func(key, v string) {
		if v = strings.TrimSpace(v); v != "" {
			q.Set(key, v)
		}
	}
	set("severity", f.Severity)
	set("siem_source", f.SIEMSource)
	set("source_ip", f.SourceIP)
	set("attack_type", f.AttackType)
	if f.ManualReview != nil {
		q.Set("manual_review", strconv.FormatBool(*f.ManualReview))
	}
	set("date_from", f.DateFrom)
	set("date_to", f.DateTo)
	setPage(q, page, pageSize)
	return q
}

// Pager tracks the table's position in a paged list.
type Pager struct {
	Page       int
	PageSize   int
	TotalCount int
	TotalPages int
}

// HasPrev reports whether a previous page exists.
func (p Pager) HasPrev() bool { return p.Page > 1 }

// HasNext reports whether a later page exists.
func (p Pager) HasNext() bool { return p.Page < p.TotalPages }

// Next moves forward one page and reports whether it moved.
func (p *Pager) Next() bool {
	if !p.HasNext() {
		return false
	}
	p.Page++
	return true
}

// Prev moves back one page and reports whether it moved.
func (p *Pager) Prev() bool {
	if !p.HasPrev() {
		return false
	}
	p.Page--
	return true
}

// LabelForm is the edit form for one event's labels.
type LabelForm struct {
	TruePositive   *bool
	AttackType     string
	MitreTactic    string
	MitreTechnique string
	Tags           []string
}

// FormFromEvent fills a form with an event's current labels.
func FormFromEvent(e core.Event) LabelForm {
	f := LabelForm{
		AttackType:     e.AttackType,
		MitreTactic:    e.MitreTactic,
		MitreTechnique: e.MitreTechnique,
		Tags:           append([]string{}, e.Labels.ManualTags...),
	}
	if e.TruePositive != nil {
		v := *e.TruePositive
		f.TruePositive = &v
	}
	return f
}

// AddTag appends a trimmed tag, rejecting blank, duplicate and over-long ones.
func (f *LabelForm) AddTag(tag string) error {
	tag = strings.TrimSpace(tag)
	if err := core.ValidateTag(tag); err != nil {
		return err
	}
	for _, t := range f.Tags {
		if t == tag {
			return fmt.Errorf("%w: %q", ErrDuplicateTag, tag)
		}
	}
	f.Tags = append(f.Tags, tag)
	return nil
}

// RemoveTag drops a tag if present.
func (f *LabelForm) RemoveTag(tag string) {
	out := f.Tags[:0]
	for _, t := range f.Tags {
		if t != tag {
			out = append(out, t)
		}
	}
	f.Tags = out
}

// Request builds the label payload, validated the same way the server does.
func (f LabelForm) Request() (core.LabelRequest, error) {
	req := core.LabelRequest{
		TruePositive:   f.TruePositive,
		AttackType:     f.AttackType,
		MitreTactic:    f.MitreTactic,
		MitreTechnique: f.MitreTechnique,
		ManualTags:     core.Tags(append([]string{}, f.Tags...)),
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return req, err
	}
	return req, nil
}

// EventsAPI is the part of Client the labeling view uses.
type EventsAPI interface {
	ListEvents(ctx context.Context, query url.Values) (*EventPage, error)
	LabelEvent(ctx context.Context, id int64, req core.LabelRequest) (*core.Event, error)
}

// LabelingView is the state of the labeling screen: filters, the current
// page of rows, the selected row and its label form. Err holds the message
// of the last failed request and is cleared by the next success.
type LabelingView struct {
	api EventsAPI

	Filters  EventFilters
	Pager    Pager
	Rows     []core.Event
	Selected *core.Event
	Form     LabelForm
	Err      string
}

// NewLabelingView creates a view on page 1. A non-positive pageSize uses
// DefaultPageSize.
func NewLabelingView(api EventsAPI, pageSize int) *LabelingView {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &LabelingView{api: api, Pager: Pager{Page: 1, PageSize: pageSize, TotalPages: 1}}
}

func (v *LabelingView) fail(err error) error {
	v.Err = ErrorMessage(err)
	return err
}

// Load fetches the current page with the current filters. A selection that
// is still on the page is refreshed; otherwise it is cleared.
func (v *LabelingView) Load(ctx context.Context) error {
	page, err := v.api.ListEvents(ctx, v.Filters.Values(v.Pager.Page, v.Pager.PageSize))
	if err != nil {
		return v.fail(err)
	}
	v.Err = ""
	v.Rows = page.Events
	v.Pager = Pager{Page: page.Page, PageSize: page.PageSize, TotalCount: page.TotalCount, TotalPages: page.TotalPages}

	if v.Selected != nil {
		id := v.Selected.ID
		v.Selected = nil
		for i := range v.Rows {
			if v.Rows[i].ID == id {
				v.Selected = &v.Rows[i]
				break
			}
		}
		if v.Selected == nil {
			v.Form = LabelForm{}
		}
	}
	return nil
}

// ApplyFilters replaces the filters, returns to page 1 and reloads.
func (v *LabelingView) ApplyFilters(ctx context.Context, f EventFilters) error {
	v.Filters = f
	v.Pager.Page = 1
	return v.Load(ctx)
}

// NextPage loads the next page; it does nothing on the last page.
func (v *LabelingView) NextPage(ctx context.Context) error {
	if !v.Pager.Next() {
		return nil
	}
	return v.Load(ctx)
}

// PrevPage loads the previous page; it does nothing on page 1.
func (v *LabelingView) PrevPage(ctx context.Context) error {
	if !v.Pager.Prev() {
		return nil
	}
	return v.Load(ctx)
}

// Select marks a row and copies its labels into the form.
func (v *LabelingView) Select(id int64) error {
	for i := range v.Rows {
		if v.Rows[i].ID == id {
			v.Selected = &v.Rows[i]
			v.Form = FormFromEvent(v.Rows[i])
			return nil
		}
	}
	return fmt.Errorf("%w: %d", ErrRowNotFound, id)
}

// Submit validates the form, posts the labels of the selected event and
// reloads the page.
func (v *LabelingView) Submit(ctx context.Context) (*core.Event, error) {
	if v.Selected == nil {
		return nil, v.fail(ErrNoSelection)
	}
	req, err := v.Form.Request()
	if err != nil {
		return nil, v.fail(err)
	}
	updated, err := v.api.LabelEvent(ctx, v.Selected.ID, req)
	if err != nil {
		return nil, v.fail(err)
	}
	if err := v.Load(ctx); err != nil {
		return updated, err
	}
	return updated, nil
}

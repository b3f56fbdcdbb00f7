// Rollcall - Troupe Attendance and Points Synchronization
// Copyright 2026 Jordan Morrell (jmorrell)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/jmorrell/rollcall

package source

import (
	"context"
	"strconv"
	"time"

	"github.com/jmorrell/rollcall/internal/models"
	"github.com/jmorrell/rollcall/internal/propcoerce"
)

// QuestionKind classifies a form question's answer shape.
type QuestionKind string

// Question kinds.
const (
	QuestionText   QuestionKind = "text"
	QuestionChoice QuestionKind = "choice"
	QuestionScale  QuestionKind = "scale"
	QuestionDate   QuestionKind = "date"
	QuestionTime   QuestionKind = "time"
)

// FormQuestion is one question of a form's live schema.
type FormQuestion struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Kind    QuestionKind `json:"kind"`
	Options []string     `json:"options,omitempty"`

	// Scale bounds, inclusive. Only meaningful for scale questions.
	ScaleLow  int `json:"scale_low,omitempty"`
	ScaleHigh int `json:"scale_high,omitempty"`
}

// Form is a form's question schema.
type Form struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Questions []FormQuestion `json:"questions"`
}

// FormResponse is one submitted response, answers keyed by question ID.
type FormResponse struct {
	ID          string            `json:"id"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Answers     map[string]string `json:"answers"`
}

// FormAdapter reads a form's question schema and response list. The question
// kind constrains which property types a question may map to; mappings that
// violate the compatibility rules are nulled during field synchronization.
type FormAdapter struct {
	client   *Client
	resolver *Resolver
}

// DiscoverAudience implements Adapter. Responses submitted after asOf are
// ignored so concurrent submissions cannot shift a run's outcome mid-scan.
func (a *FormAdapter) DiscoverAudience(ctx context.Context, tr *models.Troupe, ev *models.Event, asOf time.Time) (*Discovery, error) {
	formID, err := a.resolver.Resolve(models.SourceForm, ev.SourceURI)
	if err != nil {
		return nil, err
	}

	form, err := a.client.FormSchema(ctx, formID)
	if err != nil {
		return nil, err
	}

	fieldIDs := make([]string, len(form.Questions))
	labels := make(map[string]string, len(form.Questions))
	questions := make(map[string]FormQuestion, len(form.Questions))
	for i, q := range form.Questions {
		fieldIDs[i] = q.ID
		labels[q.ID] = q.Title
		questions[q.ID] = q
	}
	syncFields(tr, ev, fieldIDs, labels)

	// Question-kind compatibility pass.
	for _, fid := range mappedFields(ev) {
		f := ev.Fields[fid]
		pt, declared := tr.Properties[*f.Property]
		if !declared || !questionAllows(questions[fid], pt) {
			invalidateMapping(ev, fid)
		}
	}

	d := &Discovery{Event: ev}
	idField, ok := ev.MappedProperty(models.MemberIDProperty)
	if !ok {
		return d, nil
	}

	responses, err := a.client.FormResponses(ctx, formID)
	if err != nil {
		return nil, err
	}

	att := models.AttendedEvent{TypeID: ev.TypeID, Value: ev.Value, Date: ev.StartDate}
	for _, resp := range responses {
		if !asOf.IsZero() && resp.SubmittedAt.After(asOf) {
			continue
		}

		idOpts := propcoerce.Options{Bools: boolPair(questions[idField])}
		idValue, err := propcoerce.Coerce(tr.Properties[models.MemberIDProperty], resp.Answers[idField], idOpts)
		if err != nil || idValue == nil {
			continue
		}

		props := make(map[string]any)
		for _, fid := range mappedFields(ev) {
			f := ev.Fields[fid]
			pt, declared := tr.Properties[*f.Property]
			if !declared {
				continue
			}

			opts := propcoerce.Options{Bools: boolPair(questions[fid])}
			v, coerceErr := propcoerce.Coerce(pt, resp.Answers[fid], opts)
			if coerceErr != nil {
				invalidateMapping(ev, fid)
				continue
			}
			if v != nil {
				props[*f.Property] = v
			}
		}

		d.Members = append(d.Members, MemberRecord{
			Identity:   propcoerce.FormatValue(idValue),
			Properties: props,
			Attended:   att,
		})
	}
	return d, nil
}

// questionAllows reports whether a question's kind can legally feed the
// declared property type.
func questionAllows(q FormQuestion, pt models.PropertyType) bool {
	switch q.Kind {
	case QuestionText:
		switch pt.Base() {
		case models.TypeString, models.TypeNumber, models.TypeDate:
			return true
		}
	case QuestionChoice:
		if pt.Base() == models.TypeString {
			return true
		}
		// Booleans need an exact two-way choice.
		return pt.Base() == models.TypeBoolean && len(q.Options) == 2
	case QuestionScale:
		if pt.Base() == models.TypeNumber {
			return true
		}
		// Booleans need a two-point scale.
		return pt.Base() == models.TypeBoolean && q.ScaleHigh-q.ScaleLow == 1
	case QuestionDate:
		return pt.Base() == models.TypeDate || pt.Base() == models.TypeString
	case QuestionTime:
		return pt.Base() == models.TypeString
	}
	return false
}

// boolPair derives the question's declared true/false value pair: the first
// option of a two-way choice reads as true, and the upper point of a
// two-point scale reads as true.
func boolPair(q FormQuestion) *propcoerce.BoolPair {
	switch q.Kind {
	case QuestionChoice:
		if len(q.Options) == 2 {
			return &propcoerce.BoolPair{True: q.Options[0], False: q.Options[1]}
		}
	case QuestionScale:
		if q.ScaleHigh-q.ScaleLow == 1 {
			return &propcoerce.BoolPair{
				True:  strconv.Itoa(q.ScaleHigh),
				False: strconv.Itoa(q.ScaleLow),
			}
		}
	}
	return nil
}

// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/vorlif/humanize"
	"github.com/vorlif/humanize/locale/de"
	"github.com/vorlif/humanize/locale/es"
	"github.com/vorlif/spreak"

	"github.com/wneessen/waybar-location/internal/config"
	"github.com/wneessen/waybar-location/internal/geocode"
	"github.com/wneessen/waybar-location/internal/pipeline"
)

// TemplateContext is the data available to the text and tooltip templates.
type TemplateContext struct {
	Title        string
	Message      string
	Prompt       string
	Busy         bool
	RetryEnabled bool
	Stage        string
	Class        string

	Icon          string
	IconWithSpace string

	HasCoordinates bool
	Latitude       float64
	Longitude      float64
	Accuracy       float64
	Address        geocode.Address
	Placeholder    bool

	UpdateTime time.Time
}

// Output is a single waybar JSON line.
type Output struct {
	Text    string `json:"text"`
	Alt     string `json:"alt"`
	Tooltip string `json:"tooltip"`
	Class   string `json:"class"`
}

type Presenter struct {
	localizer *spreak.Localizer
	humanizer *humanize.Humanizer
	text      *template.Template
	tooltip   *template.Template
}

// New parses the configured templates and verifies that they render against the initial state.
func New(conf *config.Config, loc *spreak.Localizer) (*Presenter, error) {
	collection, err := humanize.New(humanize.WithLocale(de.New(), es.New()))
	if err != nil {
		return nil, fmt.Errorf("failed to create humanizer: %w", err)
	}

	pres := &Presenter{
		localizer: loc,
		humanizer: collection.CreateHumanizer(loc.Language()),
	}

	pres.text, err = template.New("text").Funcs(pres.templateFuncMap()).Parse(conf.Templates.Text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse text template: %w", err)
	}
	pres.tooltip, err = template.New("tooltip").Funcs(pres.templateFuncMap()).Parse(conf.Templates.Tooltip)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tooltip template: %w", err)
	}

	if _, err = pres.Render(pipeline.Project(pipeline.State{Stage: pipeline.StageIdle})); err != nil {
		return nil, err
	}

	return pres, nil
}

// BuildContext translates the view into the template context.
func (p *Presenter) BuildContext(view pipeline.View) TemplateContext {
	class := Class(view)
	tplCtx := TemplateContext{
		Title:         p.localizer.Get("My current address"),
		Message:       p.message(view.Msg),
		Busy:          view.Busy,
		RetryEnabled:  view.RetryEnabled,
		Stage:         view.Stage.String(),
		Class:         class,
		Icon:          ClassIcons[class],
		IconWithSpace: iconWithSpace(ClassIcons[class]),
		Address:       view.Address,
		Placeholder:   view.Placeholder,
		UpdateTime:    view.UpdatedAt,
	}
	if view.Prompt != "" {
		tplCtx.Prompt = p.localizer.Get(view.Prompt)
	}
	if coords, ok := view.Coordinates.Get(); ok {
		tplCtx.HasCoordinates = true
		tplCtx.Latitude = coords.Lat
		tplCtx.Longitude = coords.Lon
		tplCtx.Accuracy = coords.Acc
	}
	return tplCtx
}

// Render executes the templates for the view.
func (p *Presenter) Render(view pipeline.View) (Output, error) {
	tplCtx := p.BuildContext(view)

	textBuf := bytes.NewBuffer(nil)
	if err := p.text.Execute(textBuf, tplCtx); err != nil {
		return Output{}, fmt.Errorf("failed to render text template: %w", err)
	}
	tooltipBuf := bytes.NewBuffer(nil)
	if err := p.tooltip.Execute(tooltipBuf, tplCtx); err != nil {
		return Output{}, fmt.Errorf("failed to render tooltip template: %w", err)
	}

	return Output{
		Text:    textBuf.String(),
		Alt:     tplCtx.Stage,
		Tooltip: tooltipBuf.String(),
		Class:   tplCtx.Class,
	}, nil
}

// Class returns the CSS class for the view.
func Class(view pipeline.View) string {
	if view.Busy {
		return ClassBusy
	}
	if class, ok := StageClasses[view.Stage]; ok {
		return class
	}
	return ClassIdle
}

// message translates the format and renders the arguments into it.
func (p *Presenter) message(msg pipeline.Msg) string {
	if len(msg.Args) == 0 {
		return p.localizer.Get(msg.Format)
	}
	return p.localizer.Getf(msg.Format, msg.Args...)
}

package intercept

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/truecost/internal/dom"
	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/opcost"
)

// Question is the first prompt of a session.
type Question struct {
	Variant model.QuestionVariant
	Price   float64
}

// ProjectionView is the opportunity-cost step shown after a want response.
type ProjectionView struct {
	Projection  opcost.Projection
	PresentText string
	FutureText  string
	SkipLabel   string
}

// SavedView is the summary shown after a skip.
type SavedView struct {
	Saved     float64
	Total     float64
	SavedText string
	TotalText string
}

// Presenter renders a session to the user. An error from any Show method
// makes the interceptor fail open.
type Presenter interface {
	ShowQuestion(s *Session, q Question) error
	ShowProjection(s *Session, v ProjectionView) error
	ShowSaved(s *Session, v SavedView) error
	Close(s *Session)
}

// Modal element classes.
const (
	ModalID           = "true-cost-modal"
	OverlayClass      = "true-cost-modal-overlay"
	ModalClass        = "true-cost-modal"
	NeedButtonClass   = "true-cost-modal-need"
	WantButtonClass   = "true-cost-modal-want"
	SkipButtonClass   = "true-cost-modal-skip"
	BuyButtonClass    = "true-cost-modal-buy-anyway"
	CloseButtonClass  = "true-cost-modal-close"
	QuestionTextClass = "true-cost-modal-question"
)

// DOMPresenter renders the session as a modal overlay appended to the
// document body.
type DOMPresenter struct {
	doc dom.Document
}

// NewDOMPresenter creates a DOMPresenter for doc.
func NewDOMPresenter(doc dom.Document) *DOMPresenter {
	return &DOMPresenter{doc: doc}
}

func (p *DOMPresenter) ShowQuestion(_ *Session, q Question) error {
	p.remove()
	body := p.doc.Query("body")
	if body == nil {
		return eris.New("intercept: document has no body")
	}

	overlay := p.doc.CreateElement("div", OverlayClass)
	overlay.SetAttr("id", ModalID)
	modal := p.doc.CreateElement("div", ModalClass)
	p.fill(modal, "Quick check...",
		[]textLine{{QuestionTextClass, q.Variant.QuestionText}, {"true-cost-modal-subtext", q.Variant.Subtext}},
		[]textLine{{NeedButtonClass, "I need this"}, {WantButtonClass, "I just want it"}},
	)
	overlay.AppendChild(modal)
	body.AppendChild(overlay)
	return nil
}

func (p *DOMPresenter) ShowProjection(_ *Session, v ProjectionView) error {
	modal, err := p.clearModal()
	if err != nil {
		return err
	}
	p.fill(modal, "Here's what you could save...",
		[]textLine{
			{"true-cost-modal-price", v.PresentText},
			{"true-cost-modal-future", v.FutureText},
			{QuestionTextClass, "Skip this purchase and invest the money instead?"},
		},
		[]textLine{{SkipButtonClass, v.SkipLabel}, {BuyButtonClass, "Buy anyway"}},
	)
	return nil
}

func (p *DOMPresenter) ShowSaved(_ *Session, v SavedView) error {
	modal, err := p.clearModal()
	if err != nil {
		return err
	}
	p.fill(modal, "Great choice!",
		[]textLine{
			{"true-cost-modal-saved-label", "You just saved"},
			{"true-cost-modal-saved-amount", v.SavedText},
			{"true-cost-modal-total", "Total saved so far: " + v.TotalText},
		},
		[]textLine{{CloseButtonClass, "Nice!"}},
	)
	return nil
}

func (p *DOMPresenter) Close(*Session) {
	p.remove()
}

type textLine struct {
	class string
	text  string
}

func (p *DOMPresenter) fill(modal dom.Element, header string, lines, buttons []textLine) {
	h := p.doc.CreateElement("div", "true-cost-modal-header")
	h.SetText(header)
	modal.AppendChild(h)

	body := p.doc.CreateElement("div", "true-cost-modal-body")
	for _, l := range lines {
		el := p.doc.CreateElement("p", l.class)
		el.SetText(l.text)
		body.AppendChild(el)
	}
	modal.AppendChild(body)

	row := p.doc.CreateElement("div", "true-cost-modal-buttons")
	for _, b := range buttons {
		el := p.doc.CreateElement("button", b.class)
		el.SetText(b.text)
		row.AppendChild(el)
	}
	modal.AppendChild(row)
}

func (p *DOMPresenter) clearModal() (dom.Element, error) {
	overlay := p.doc.Query("#" + ModalID)
	if overlay == nil {
		return nil, eris.New("intercept: modal not shown")
	}
	if old := overlay.Query("." + ModalClass); old != nil {
		old.Remove()
	}
	modal := p.doc.CreateElement("div", ModalClass)
	overlay.AppendChild(modal)
	return modal, nil
}

func (p *DOMPresenter) remove() {
	if el := p.doc.Query("#" + ModalID); el != nil {
		el.Remove()
	}
}

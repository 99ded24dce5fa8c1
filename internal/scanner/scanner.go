// Package scanner finds prices on a storefront page and annotates each with
// its opportunity cost.
package scanner

import (
	"context"
	"strings"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sells-group/truecost/internal/dom"
	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/opcost"
	"github.com/sells-group/truecost/internal/price"
)

const (
	// BadgeClass marks badges inserted by the scanner.
	BadgeClass = "true-cost-badge"
	// ProcessedAttr marks price elements that already carry a badge.
	ProcessedAttr = "data-true-cost-processed"

	labelClass     = "true-cost-label"
	offscreenClass = "a-offscreen"
	maxTitleRunes  = 200
)

// PageCategory is the kind of storefront page being scanned.
type PageCategory string

const (
	PageProduct PageCategory = "product"
	PageCart    PageCategory = "cart"
	PageOther   PageCategory = "other"
)

// Classify maps a URL path to a page category.
func Classify(path string) PageCategory {
	switch {
	case strings.Contains(path, "/dp/") || strings.Contains(path, "/gp/product/"):
		return PageProduct
	case strings.Contains(path, "/cart") || strings.Contains(path, "/gp/cart"):
		return PageCart
	default:
		return PageOther
	}
}

// Selectors lists the price selectors per page category.
type Selectors struct {
	Product []string `mapstructure:"product_selectors"`
	Cart    []string `mapstructure:"cart_selectors"`
}

// DefaultSelectors returns the selectors for Amazon storefronts: the main
// product price and cart subtotals.
func DefaultSelectors() Selectors {
	return Selectors{
		Product: []string{
			"#corePrice_feature_div .a-price .a-offscreen",
			"#corePriceDisplay_desktop_feature_div .a-price .a-offscreen",
			"#priceblock_ourprice",
			"#priceblock_dealprice",
			"#priceblock_saleprice",
			`.a-price[data-a-size="xl"] .a-offscreen`,
			`.a-price[data-a-size="l"] .a-offscreen`,
		},
		Cart: []string{
			"#sc-subtotal-amount-activecart .a-price .a-offscreen",
			"#sc-subtotal-amount-buybox .a-price .a-offscreen",
			".sc-subtotal .a-price .a-offscreen",
			"#subtotals-marketplace-table .a-price .a-offscreen",
		},
	}
}

func (s Selectors) forCategory(c PageCategory) []string {
	switch c {
	case PageProduct:
		return s.Product
	case PageCart:
		return s.Cart
	default:
		return nil
	}
}

// Badge is an opportunity-cost annotation attached to a price container.
type Badge struct {
	Anchor      dom.Element
	FutureValue float64
	Text        string
}

// ScanResult summarises one pass over the page.
type ScanResult struct {
	Category PageCategory
	Examined int
	Skipped  int
	Badges   []Badge
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithSelectors overrides the default selectors. Empty lists keep the
// defaults for that category.
func WithSelectors(sel Selectors) Option {
	return func(s *Scanner) {
		if len(sel.Product) > 0 {
			s.sel.Product = sel.Product
		}
		if len(sel.Cart) > 0 {
			s.sel.Cart = sel.Cart
		}
	}
}

// Scanner annotates prices in one document. Scans are serialized, and a scan
// of an unchanged page is a no-op.
type Scanner struct {
	doc       dom.Document
	sel       Selectors
	formatter *opcost.Formatter

	mu       sync.Mutex
	settings model.Settings
	calc     *opcost.Calculator
}

// New creates a Scanner for doc using settings s.
func New(doc dom.Document, s model.Settings, opts ...Option) *Scanner {
	sc := &Scanner{
		doc:       doc,
		sel:       DefaultSelectors(),
		formatter: opcost.NewFormatter(price.DetectCurrency(doc.Hostname()).Symbol),
		settings:  s,
		calc:      opcost.NewCalculator(s),
	}
	for _, o := range opts {
		o(sc)
	}
	return sc
}

// Settings returns the settings the scanner currently renders with.
func (s *Scanner) Settings() model.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Scan badges every unprocessed, parseable price on the page. Elements that
// are hidden, detached or not yet populated are left unmarked so a later
// scan can pick them up.
func (s *Scanner) Scan() ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scanLocked()
}

func (s *Scanner) scanLocked() ScanResult {
	res := ScanResult{Category: Classify(s.doc.Path())}
	if !s.settings.Enabled {
		return res
	}

	for _, sel := range s.sel.forCategory(res.Category) {
		for _, el := range s.doc.QueryAll(sel) {
			res.Examined++
			if el.HasAttr(ProcessedAttr) || el.Closest("."+BadgeClass) != nil {
				continue
			}
			if el.Detached() || (el.Hidden() && !el.HasClass(offscreenClass)) {
				res.Skipped++
				continue
			}
			v, ok := price.Parse(strings.TrimSpace(el.Text()))
			if !ok || v <= 0 {
				res.Skipped++
				continue
			}
			el.SetAttr(ProcessedAttr, "true")
			if b, ok := s.attachBadge(el, v); ok {
				res.Badges = append(res.Badges, b)
			}
		}
	}

	if len(res.Badges) > 0 || res.Skipped > 0 {
		zap.L().Debug("scanner: scanned page",
			zap.String("url", s.doc.URL()),
			zap.String("category", string(res.Category)),
			zap.Int("examined", res.Examined),
			zap.Int("skipped", res.Skipped),
			zap.Int("badged", len(res.Badges)),
		)
	}
	return res
}

// container picks the element a badge for priceEl is attached to.
func container(priceEl dom.Element) dom.Element {
	if c := priceEl.Closest(".a-price"); c != nil {
		return c
	}
	if w := priceEl.Closest(".a-price-whole"); w != nil {
		if p := w.Parent(); p != nil {
			return p
		}
	}
	return priceEl.Parent()
}

func (s *Scanner) attachBadge(priceEl dom.Element, v float64) (Badge, bool) {
	c := container(priceEl)
	if c == nil || c.Query("."+BadgeClass) != nil {
		return Badge{}, false
	}

	p := s.calc.Project(v)
	text := s.formatter.BadgeText(p)

	badge := s.doc.CreateElement("div", BadgeClass)
	label := s.doc.CreateElement("span", labelClass)
	label.SetText(text)
	badge.AppendChild(label)
	c.AppendChild(badge)

	return Badge{Anchor: c, FutureValue: p.Future, Text: text}, true
}

// RemoveAll deletes every badge and clears processed markers. Returns the
// number of badges removed.
func (s *Scanner) RemoveAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked()
}

func (s *Scanner) removeLocked() int {
	badges := s.doc.QueryAll("." + BadgeClass)
	for _, b := range badges {
		b.Remove()
	}
	for _, el := range s.doc.QueryAll("[" + ProcessedAttr + "]") {
		el.RemoveAttr(ProcessedAttr)
	}
	return len(badges)
}

// UpdateSettings applies new settings: existing badges are removed and, when
// enabled, the page is rescanned with the new rate and horizon.
func (s *Scanner) UpdateSettings(settings model.Settings) ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	s.calc = opcost.NewCalculator(settings)
	s.removeLocked()
	return s.scanLocked()
}

// CurrentPrice returns the first positive price found by the product
// selectors, then the cart selectors.
func (s *Scanner) CurrentPrice() (float64, bool) {
	for _, group := range [][]string{s.sel.Product, s.sel.Cart} {
		for _, sel := range group {
			el := s.doc.Query(sel)
			if el == nil {
				continue
			}
			if v, ok := price.Parse(el.Text()); ok && v > 0 {
				return v, true
			}
		}
	}
	return 0, false
}

// ProductTitle returns the trimmed product title, at most 200 characters, or
// "" when the page has none.
func (s *Scanner) ProductTitle() string {
	for _, sel := range []string{"#productTitle", "#title", "h1.a-size-large"} {
		el := s.doc.Query(sel)
		if el == nil {
			continue
		}
		title := strings.TrimSpace(el.Text())
		if utf8.RuneCountInString(title) > maxTitleRunes {
			title = string([]rune(title)[:maxTitleRunes])
		}
		return title
	}
	return ""
}

// Watch rescans on every document change notification until ctx is done.
// after, when set, runs once per notification after the scan completes.
func (s *Scanner) Watch(ctx context.Context, after func(ScanResult)) error {
	changes := s.doc.Changes()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			res := s.Scan()
			if after != nil {
				after(res)
			}
		}
	}
}

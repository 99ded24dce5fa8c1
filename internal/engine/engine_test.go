package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/truecost/internal/auth"
	"github.com/sells-group/truecost/internal/config"
	"github.com/sells-group/truecost/internal/decision"
	"github.com/sells-group/truecost/internal/dom"
	"github.com/sells-group/truecost/internal/intercept"
	"github.com/sells-group/truecost/internal/model"
	"github.com/sells-group/truecost/internal/scanner"
	"github.com/sells-group/truecost/internal/settings"
	"github.com/sells-group/truecost/internal/variant"
)

const productPage = `<html><body>
<div id="centerCol">
  <span id="productTitle">Wireless Earbuds</span>
  <div id="corePrice_feature_div">
    <span class="a-price"><span class="a-offscreen">$49.99</span></span>
  </div>
</div>
<div id="buybox">
  <input id="add-to-cart-button" type="submit">
</div>
<a id="help" href="/help">Help</a>
</body></html>`

type sink struct {
	mu   sync.Mutex
	recs []model.SavingRecord
}

func (s *sink) RecordSaving(_ context.Context, rec model.SavingRecord) (*model.SavingRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return &rec, nil
}

func (s *sink) all() []model.SavingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SavingRecord(nil), s.recs...)
}

type variantSource struct{}

func (variantSource) ActiveVariants(context.Context) ([]model.QuestionVariant, error) {
	return []model.QuestionVariant{{ID: "v-joy", QuestionText: "Will this bring lasting joy?", IsActive: true}}, nil
}

func (variantSource) Effectiveness(context.Context) ([]model.EffectivenessStat, error) {
	return nil, nil
}

type failingSource struct{}

func (failingSource) Load(context.Context) (model.Settings, error) {
	return model.Settings{}, errors.New("disk gone")
}

type fixture struct {
	tab      *Tab
	doc      *dom.HTMLDocument
	local    *settings.MemoryStore
	sink     *sink
	recorder *decision.Recorder
}

func newFixture(t *testing.T, s model.Settings) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		doc:   dom.MustParseHTML("https://www.amazon.com/dp/B0EARBUDS", productPage),
		local: settings.NewMemoryStore(),
		sink:  &sink{},
	}
	require.NoError(t, settings.Save(ctx, f.local, s))

	id := auth.Static{ID: "user-1", AccessToken: "token"}
	f.recorder = decision.NewRecorder(f.sink, id, time.Second)

	tab, err := Open(ctx, f.doc, Config{
		Local:             f.local,
		Variants:          variant.New(variantSource{}, id),
		Recorder:          f.recorder,
		CheckoutSelectors: config.DefaultCheckoutSelectors(),
	})
	require.NoError(t, err)
	f.tab = tab
	return f
}

func confirmOn() model.Settings {
	s := model.DefaultSettings()
	s.ConfirmBeforePurchase = true
	return s
}

func badgeTexts(doc dom.Document) []string {
	var out []string
	for _, b := range doc.QueryAll("." + scanner.BadgeClass) {
		out = append(out, strings.TrimSpace(b.Text()))
	}
	return out
}

func TestWantThenSkip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, confirmOn())

	assert.Equal(t, []string{"If invested, worth $98.34 in 10 yrs"}, badgeTexts(f.doc))

	button := f.doc.Query("#add-to-cart-button")
	require.True(t, intercept.Bound(button))

	purchases := 0
	sess, paused := f.tab.Click(ctx, button, func() { purchases++ })
	require.True(t, paused)
	assert.Equal(t, 49.99, sess.Price())
	assert.Equal(t, "v-joy", sess.Variant().ID)

	require.NoError(t, sess.Respond(model.ResponseWant))
	require.NoError(t, sess.Confirm(ctx, intercept.ChoiceSkip))
	f.recorder.Wait()

	assert.Zero(t, purchases)
	assert.Equal(t, intercept.StateResolvedSkipped, sess.State())

	recs := f.sink.all()
	require.Len(t, recs, 1)
	assert.Equal(t, 49.99, recs[0].Price)
	assert.Equal(t, model.ResponseWant, recs[0].UserResponse)
	assert.Equal(t, model.DecisionSkipped, recs[0].FinalDecision)
	require.NotNil(t, recs[0].VariantID)
	assert.Equal(t, "v-joy", *recs[0].VariantID)
	assert.Equal(t, "Wireless Earbuds", recs[0].ProductTitle)

	total, err := settings.TotalSaved(ctx, f.local)
	require.NoError(t, err)
	assert.InDelta(t, 49.99, total, 1e-9)

	modal := f.doc.Query("#" + intercept.ModalID)
	require.NotNil(t, modal)
	assert.Contains(t, modal.Text(), "Total saved so far: $49.99")
}

func TestRepeatedClickHeldWhileAsking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, confirmOn())

	purchases := 0
	buy := func() { purchases++ }
	button := f.doc.Query("#add-to-cart-button")

	first, paused := f.tab.Click(ctx, button, buy)
	require.True(t, paused)
	again, paused := f.tab.Click(ctx, button, buy)
	require.True(t, paused, "click during an open prompt must not reach checkout")
	assert.Same(t, first, again)
	assert.Zero(t, purchases)

	require.NoError(t, first.Respond(model.ResponseWant))
	_, paused = f.tab.Click(ctx, button, buy)
	require.True(t, paused)
	require.NoError(t, first.Confirm(ctx, intercept.ChoiceSkip))
	f.recorder.Wait()

	assert.Zero(t, purchases)
	require.Len(t, f.sink.all(), 1)
	assert.Equal(t, model.DecisionSkipped, f.sink.all()[0].FinalDecision)
}

func TestNeedProceedsOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, confirmOn())

	purchases := 0
	button := f.doc.Query("#add-to-cart-button")
	action := func() {
		purchases++
		// The replayed click reaches the tab again and must not pause.
		f.tab.Click(ctx, button, nil)
	}
	sess, paused := f.tab.Click(ctx, button, action)
	require.True(t, paused)
	require.NoError(t, sess.Respond(model.ResponseNeed))
	f.recorder.Wait()

	assert.Equal(t, 1, purchases)
	assert.Nil(t, f.doc.Query("#"+intercept.ModalID))
	require.Len(t, f.sink.all(), 1)
	assert.Equal(t, model.DecisionPurchased, f.sink.all()[0].FinalDecision)
}

func TestClickGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("unbound control proceeds", func(t *testing.T) {
		f := newFixture(t, confirmOn())
		ran := false
		_, paused := f.tab.Click(ctx, f.doc.Query("#help"), func() { ran = true })
		assert.False(t, paused)
		assert.True(t, ran)
	})
	t.Run("below minimum proceeds", func(t *testing.T) {
		s := confirmOn()
		s.MinPrice = 50
		f := newFixture(t, s)
		ran := false
		_, paused := f.tab.Click(ctx, f.doc.Query("#add-to-cart-button"), func() { ran = true })
		assert.False(t, paused)
		assert.True(t, ran)
		assert.Empty(t, f.sink.all())
	})
	t.Run("confirmation off binds nothing", func(t *testing.T) {
		f := newFixture(t, model.DefaultSettings())
		assert.False(t, intercept.Bound(f.doc.Query("#add-to-cart-button")))
		assert.Len(t, badgeTexts(f.doc), 1)
	})
}

func TestReloadSettings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, confirmOn())

	off := confirmOn()
	off.Enabled = false
	require.NoError(t, settings.Save(ctx, f.local, off))
	res, err := f.tab.ReloadSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.Badges)
	assert.Empty(t, badgeTexts(f.doc))
	assert.False(t, f.tab.Settings().Enabled)

	longer := confirmOn()
	longer.Years = 20
	require.NoError(t, settings.Save(ctx, f.local, longer))
	_, err = f.tab.ReloadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"If invested, worth $193.45 in 20 yrs"}, badgeTexts(f.doc))

	f.tab.source = failingSource{}
	_, err = f.tab.ReloadSettings(ctx)
	assert.Error(t, err)
	assert.Equal(t, 20, f.tab.Settings().Years, "failed reload keeps current settings")
}

func TestRunBindsInjectedControls(t *testing.T) {
	f := newFixture(t, confirmOn())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.tab.Run(ctx) }()

	_, err := f.doc.AppendHTML("#buybox", `<input id="buy-now-button" type="submit">`)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return intercept.Bound(f.doc.Query("#buy-now-button"))
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestOpen_RequiresLocalStore(t *testing.T) {
	_, err := Open(context.Background(), dom.MustParseHTML("https://www.amazon.com/", "<html></html>"), Config{})
	assert.Error(t, err)
}

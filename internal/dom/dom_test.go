package dom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productPage = `<!doctype html>
<html><body>
<h1 id="productTitle">  Wireless Headphones  </h1>
<div id="corePrice_feature_div">
  <span class="a-price" data-a-size="xl">
    <span class="a-offscreen">$49.99</span>
    <span aria-hidden="true"><span class="a-price-whole">49</span><span class="a-price-fraction">99</span></span>
  </span>
</div>
<div style="display: none"><span class="a-price"><span class="a-offscreen">$5.00</span></span></div>
<form>
  <input id="add-to-cart-button" name="submit.add-to-cart" type="submit">
  <input id="buy-now-button" type="submit" hidden>
</form>
</body></html>`

func fixture(t *testing.T) *HTMLDocument {
	t.Helper()
	return MustParseHTML("https://www.amazon.com/dp/B000TEST?th=1", productPage)
}

func TestSelectorParsing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		sel     string
		wantErr bool
	}{
		{"id and class", "#submit.add-to-cart", false},
		{"quoted attr with dots", `input[name="submit.add-to-cart"]`, false},
		{"descendant", `.a-price[data-a-size="xl"] .a-offscreen`, false},
		{"child", "form > input", false},
		{"list", "#a, .b, span", false},
		{"universal", "*", false},
		{"unterminated attr", `input[name="x"`, true},
		{"unknown pseudo-class", "span:no-such-state", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := compileSelector(tt.sel)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDocument_Query(t *testing.T) {
	t.Parallel()
	doc := fixture(t)

	assert.Equal(t, "www.amazon.com", doc.Hostname())
	assert.Equal(t, "/dp/B000TEST", doc.Path())

	el := doc.Query(`.a-price[data-a-size="xl"] .a-offscreen`)
	require.NotNil(t, el)
	assert.Equal(t, "$49.99", el.Text())

	btn := doc.Query(`input[name="submit.add-to-cart"]`)
	require.NotNil(t, btn)
	v, ok := btn.Attr("id")
	assert.True(t, ok)
	assert.Equal(t, "add-to-cart-button", v)

	assert.Len(t, doc.QueryAll("form > input"), 2)
	assert.Len(t, doc.QueryAll(".a-offscreen"), 2)
	assert.Nil(t, doc.Query("#missing"))
	assert.Nil(t, doc.Query("[[bad"))
}

func TestElement_HiddenAndClosest(t *testing.T) {
	t.Parallel()
	doc := fixture(t)

	offscreen := doc.QueryAll(".a-offscreen")
	require.Len(t, offscreen, 2)
	assert.False(t, offscreen[0].Hidden())
	assert.True(t, offscreen[1].Hidden(), "display:none ancestor")
	assert.True(t, doc.Query("#buy-now-button").Hidden())

	whole := doc.Query(".a-price-whole")
	require.NotNil(t, whole)
	price := whole.Closest(".a-price")
	require.NotNil(t, price)
	assert.True(t, price.HasClass("a-price"))
	assert.Nil(t, whole.Closest("table"))

	parent := whole.Parent()
	require.NotNil(t, parent)
	assert.Equal(t, "true", mustAttr(t, parent, "aria-hidden"))
}

func TestElement_Mutations(t *testing.T) {
	t.Parallel()
	doc := fixture(t)

	container := doc.Query(".a-price")
	require.NotNil(t, container)

	badge := doc.CreateElement("span", "true-cost-badge")
	assert.True(t, badge.Detached())
	badge.SetText("worth more later")

	select {
	case <-doc.Changes():
		t.Fatal("detached SetText must not notify")
	default:
	}

	container.AppendChild(badge)
	assert.False(t, badge.Detached())
	assert.Len(t, container.QueryAll(".true-cost-badge"), 1)

	select {
	case <-doc.Changes():
	default:
		t.Fatal("expected change notification")
	}

	badge.SetAttr("data-x", "1")
	select {
	case <-doc.Changes():
		t.Fatal("attribute writes must not notify")
	default:
	}
	assert.True(t, badge.HasAttr("data-x"))
	badge.RemoveAttr("data-x")
	assert.False(t, badge.HasAttr("data-x"))

	badge.Remove()
	assert.True(t, badge.Detached())
	assert.Empty(t, doc.QueryAll(".true-cost-badge"))
	<-doc.Changes()
}

func TestDocument_AppendHTML(t *testing.T) {
	t.Parallel()
	doc := fixture(t)

	n, err := doc.AppendHTML("#corePrice_feature_div", `<span class="late">$12.00</span>`)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "$12.00", doc.Query("#corePrice_feature_div .late").Text())

	// Notifications coalesce.
	_, err = doc.AppendHTML("form", `<b>x</b>`)
	require.NoError(t, err)
	<-doc.Changes()
	select {
	case <-doc.Changes():
		t.Fatal("expected a single coalesced notification")
	default:
	}

	out, err := doc.Render()
	require.NoError(t, err)
	assert.Contains(t, out, `class="late"`)
}

func mustAttr(t *testing.T, el Element, name string) string {
	t.Helper()
	v, ok := el.Attr(name)
	require.True(t, ok)
	return v
}

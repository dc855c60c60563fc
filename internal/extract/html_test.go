package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articlePage = `<!doctype html>
<html>
<head>
  <title>Acme | Pricing</title>
  <meta property="article:published_time" content="2024-03-01T10:00:00Z">
  <style>.x { color: red }</style>
</head>
<body>
  <header><a href="/">Home</a> <h1>Site header</h1></header>
  <nav><ul><li>Docs</li><li>Blog</li></ul></nav>
  <main>
    <h1>Pricing   plans</h1>
    <p>Our   Pro plan costs
       $20 per month.</p>
    <script>console.log("tracking")</script>
    <div class="ad-banner">Buy now!</div>
    <aside>Related links</aside>
    <p>Cancel <b>anytime</b>.</p>
    <iframe src="https://video.test"></iframe>
    <noscript>Enable JS</noscript>
  </main>
  <footer>Copyright Acme</footer>
</body>
</html>`

func TestExtractHTML_PrefersMain(t *testing.T) {
	doc, err := ExtractHTML("https://acme.test/pricing", []byte(articlePage))
	require.NoError(t, err)

	assert.Equal(t, "Pricing plans Our Pro plan costs $20 per month. Cancel anytime .", doc.PageContent)
	assert.Equal(t, "https://acme.test/pricing", doc.Metadata.Source)
	assert.Equal(t, "Pricing plans", doc.Metadata.Title)
	assert.Equal(t, "2024-03-01T10:00:00Z", doc.Metadata.Date)
	assert.Equal(t, CountWords(doc.PageContent), doc.Metadata.ContentLength)

	for _, banned := range []string{"tracking", "Buy now", "Related", "Copyright", "Docs", "Enable JS", "color"} {
		assert.NotContains(t, doc.PageContent, banned)
	}
}

func TestExtractHTML_BodyFallbackAndTitleTag(t *testing.T) {
	page := `<html><head><title> Hello   World </title></head>
<body><div id="content">Plain body text.</div><footer>foot</footer>
<time datetime="2023-12-24">Dec 24</time></body></html>`

	doc, err := ExtractHTML("https://b.test/", []byte(page))
	require.NoError(t, err)
	assert.Equal(t, "Plain body text. Dec 24", doc.PageContent)
	assert.Equal(t, "Hello World", doc.Metadata.Title)
	assert.Equal(t, "2023-12-24", doc.Metadata.Date)
}

func TestExtractHTML_NoDate(t *testing.T) {
	doc, err := ExtractHTML("https://c.test/", []byte(`<p>just text</p>`))
	require.NoError(t, err)
	assert.Equal(t, "just text", doc.PageContent)
	assert.Empty(t, doc.Metadata.Date)
	assert.Empty(t, doc.Metadata.Title)
}

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, CountWords(""))
	assert.Equal(t, 5, CountWords("one two, three-four five"))
}

func TestIsAdMarker(t *testing.T) {
	assert.True(t, adMarker.MatchString("ad-banner"))
	assert.True(t, adMarker.MatchString("sidebar ads"))
	assert.True(t, adMarker.MatchString("adsbygoogle"))
	assert.False(t, adMarker.MatchString("shadow"))
	assert.False(t, adMarker.MatchString("header"))
	assert.False(t, adMarker.MatchString("download"))
}

package partial

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/aldas/go-canxl-regs/internal/ctxlog"
	"github.com/aldas/go-canxl-regs/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

const pageWithContainers = `<html><head></head><body><div id="menu"></div><main>x</main><div id="footer">old</div></body></html>`

func newFragmentServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/can/footer.html", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`<p class="f">footer</p>`))
	})
	mux.HandleFunc("/menu.html", func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func parse(t *testing.T, page string) *html.Node {
	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func render(t *testing.T, n *html.Node) string {
	buf := new(bytes.Buffer)
	require.NoError(t, html.Render(buf, n))
	return buf.String()
}

func loggerCtx() (context.Context, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	return ctxlog.WithLogger(context.Background(), logging.New("debug", "text", buf)), buf
}

func TestLoader_Load(t *testing.T) {
	var testCases = []struct {
		name        string
		givenPage   string
		givenConfig Config
		expectBody  string
		expectLog   string
		expectCalls int32
		expectError string
	}{
		{
			name:        "ok, footer injected",
			givenPage:   pageWithContainers,
			givenConfig: FooterConfig(),
			expectBody:  `<div id="footer"><p class="f">footer</p></div>`,
			expectCalls: 1,
		},
		{
			name:        "ok, missing footer container is logged and nothing is fetched",
			givenPage:   `<html><body><main>x</main></body></html>`,
			givenConfig: FooterConfig(),
			expectBody:  `<main>x</main>`,
			expectLog:   "level=WARN msg=\"fragment container not found\" fragment=footer container=footer",
			expectCalls: 0,
		},
		{
			name:        "ok, missing menu container is ignored",
			givenPage:   `<html><body><main>x</main></body></html>`,
			givenConfig: MenuConfig(),
			expectBody:  `<main>x</main>`,
			expectCalls: 0,
		},
		{
			name:        "nok, not found response leaves container untouched",
			givenPage:   `<html><body><div id="menu">keep</div></body></html>`,
			givenConfig: MenuConfig(),
			expectBody:  `<div id="menu">keep</div>`,
			expectLog:   "level=ERROR msg=\"failed to load fragment\" fragment=menu path=/menu.html",
			expectCalls: 1,
			expectError: "unexpected fragment response status: 404 for /menu.html",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			calls := &atomic.Int32{}
			srv := newFragmentServer(t, calls)
			fetcher := NewHTTPFetcher(srv.URL, time.Second)
			defer fetcher.Close()

			ctx, logs := loggerCtx()
			doc := parse(t, tc.givenPage)

			err := NewLoader(tc.givenConfig, fetcher).Load(ctx, doc)
			if tc.expectError != "" {
				assert.ErrorIs(t, err, ErrUnexpectedStatus)
				assert.EqualError(t, err, tc.expectError)
			} else {
				assert.NoError(t, err)
			}

			assert.Contains(t, render(t, doc), tc.expectBody)
			assert.Equal(t, tc.expectCalls, calls.Load())
			if tc.expectLog != "" {
				assert.Contains(t, logs.String(), tc.expectLog)
			} else {
				assert.Empty(t, logs.String())
			}
		})
	}
}

func TestRender(t *testing.T) {
	calls := &atomic.Int32{}
	srv := newFragmentServer(t, calls)
	fetcher := NewHTTPFetcher(srv.URL, time.Second)
	defer fetcher.Close()

	ctx, logs := loggerCtx()
	out, err := Render(ctx, strings.NewReader(pageWithContainers),
		NewLoader(FooterConfig(), fetcher),
		NewLoader(MenuConfig(), fetcher),
	)
	require.NoError(t, err)

	assert.Equal(t,
		`<html><head></head><body><div id="menu"></div><main>x</main><div id="footer"><p class="f">footer</p></div></body></html>`,
		string(out),
	)
	assert.Equal(t, int32(2), calls.Load())
	assert.Contains(t, logs.String(), "failed to load fragment")
}

func TestFSFetcher_Fetch(t *testing.T) {
	f := FSFetcher{FS: fstest.MapFS{
		"can/footer.html": &fstest.MapFile{Data: []byte("<b>f</b>")},
	}}

	b, err := f.Fetch(context.Background(), "/can/footer.html")
	assert.NoError(t, err)
	assert.Equal(t, "<b>f</b>", string(b))

	_, err = f.Fetch(context.Background(), "/menu.html")
	assert.ErrorIs(t, err, ErrUnexpectedStatus)
}

func TestInject(t *testing.T) {
	doc := parse(t, `<html><body><ul id="menu"><li>a</li><li>b</li></ul></body></html>`)

	err := Inject(doc, "menu", []byte(`<li>x</li>`))
	require.NoError(t, err)
	assert.Contains(t, render(t, doc), `<ul id="menu"><li>x</li></ul>`)

	err = Inject(doc, "footer", []byte(`<p>x</p>`))
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestFindByID(t *testing.T) {
	doc := parse(t, `<html><body><div><span id="a">1</span></div><span id="a">2</span></body></html>`)

	n := FindByID(doc, "a")
	require.NotNil(t, n)
	assert.Equal(t, "1", n.FirstChild.Data)

	assert.Nil(t, FindByID(doc, "b"))
	assert.Nil(t, FindByID(nil, "a"))
}

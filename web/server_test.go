package web

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/aldas/go-canxl-regs"
	"github.com/aldas/go-canxl-regs/bittiming"
	"github.com/aldas/go-canxl-regs/regmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSite = fstest.MapFS{
	"index.html":      &fstest.MapFile{Data: []byte(`<html><head></head><body><div id="menu"></div><h1>x</h1><div id="footer"></div></body></html>`)},
	"plain.html":      &fstest.MapFile{Data: []byte(`<html><head></head><body><h1>plain</h1></body></html>`)},
	"menu.html":       &fstest.MapFile{Data: []byte(`<a href="/">Home</a>`)},
	"can/footer.html": &fstest.MapFile{Data: []byte(`<p>footer</p>`)},
	"style.css":       &fstest.MapFile{Data: []byte(`body {}`)},
}

func newTestServer(t *testing.T, site fstest.MapFS) (*Server, *bytes.Buffer) {
	registry, err := regmap.NewRegistry(regmap.DecoderConfig{ClockHz: 80_000_000, DecodeLookupsToEnumType: true})
	require.NoError(t, err)

	logs := new(bytes.Buffer)
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	config := Config{Listen: ":0", CalculatorDefaults: bittiming.DefaultParams()}
	if site == nil {
		return NewServer(config, registry, logger), logs
	}
	return NewServerWithFS(config, registry, logger, site), logs
}

func doRequest(s *Server, method string, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_health(t *testing.T) {
	s, logs := newTestServer(t, testSite)

	rec := doRequest(s, http.MethodGet, "/health", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())
	assert.Contains(t, logs.String(), `msg="request handled" method=GET path=/health status=200`)
}

func TestServer_static(t *testing.T) {
	var testCases = []struct {
		name         string
		whenPath     string
		expectStatus int
		expectBody   string
	}{
		{
			name:         "ok, index page with fragments",
			whenPath:     "/",
			expectStatus: http.StatusOK,
			expectBody:   `<html><head></head><body><div id="menu"><a href="/">Home</a></div><h1>x</h1><div id="footer"><p>footer</p></div></body></html>`,
		},
		{
			name:         "ok, page without containers",
			whenPath:     "/plain.html",
			expectStatus: http.StatusOK,
			expectBody:   `<html><head></head><body><h1>plain</h1></body></html>`,
		},
		{
			name:         "ok, fragment is served as is",
			whenPath:     "/can/footer.html",
			expectStatus: http.StatusOK,
			expectBody:   `<p>footer</p>`,
		},
		{
			name:         "ok, stylesheet",
			whenPath:     "/style.css",
			expectStatus: http.StatusOK,
			expectBody:   `body {}`,
		},
		{
			name:         "nok, missing page",
			whenPath:     "/missing.html",
			expectStatus: http.StatusNotFound,
			expectBody:   "404 page not found\n",
		},
		{
			name:         "nok, directory",
			whenPath:     "/can/",
			expectStatus: http.StatusNotFound,
			expectBody:   "404 page not found\n",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestServer(t, testSite)

			rec := doRequest(s, http.MethodGet, tc.whenPath, nil, "")

			assert.Equal(t, tc.expectStatus, rec.Code)
			assert.Equal(t, tc.expectBody, rec.Body.String())
		})
	}
}

func TestServer_static_missingFooterIsLogged(t *testing.T) {
	site := fstest.MapFS{
		"index.html": &fstest.MapFile{Data: []byte(`<html><head></head><body><div id="footer"></div></body></html>`)},
	}
	s, logs := newTestServer(t, site)

	rec := doRequest(s, http.MethodGet, "/", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `<html><head></head><body><div id="footer"></div></body></html>`, rec.Body.String())
	assert.Contains(t, logs.String(), `level=ERROR msg="failed to load fragment" method=GET path=/ fragment=footer`)
}

func TestServer_embeddedSite(t *testing.T) {
	s, _ := newTestServer(t, nil)

	for _, p := range []string{"/", "/bittiming.html", "/decoder.html"} {
		rec := doRequest(s, http.MethodGet, p, nil, "")

		assert.Equal(t, http.StatusOK, rec.Code, p)
		assert.Contains(t, rec.Body.String(), `<nav class="menu">`, p)
		assert.Contains(t, rec.Body.String(), `<p class="footer">`, p)
	}
}

func TestServer_bitTiming(t *testing.T) {
	s, _ := newTestServer(t, testSite)

	form := url.Values{}
	form.Set(bittiming.FieldClockFreq, "80")
	form.Set(bittiming.FieldMode, "xl")
	form.Set(bittiming.FieldTDC, "on")
	form.Set(bittiming.FieldTMS, "on")

	rec := doRequest(s, http.MethodPost, "/api/bittiming", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp bitTimingResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1", resp.Values["res_brp"])
	assert.Equal(t, "160", resp.Values["res_tq_arb"])
	assert.Equal(t, "8", resp.Values["res_tq_xl"])
	assert.Equal(t, 1, resp.Result.BRP)
	assert.Equal(t, 4, resp.Findings.Count(canxl.SeverityCalculation))
}

func TestServer_bitTiming_errors(t *testing.T) {
	var testCases = []struct {
		name         string
		whenForm     url.Values
		expectStatus int
		expectError  string
	}{
		{
			name:         "nok, invalid float",
			whenForm:     url.Values{bittiming.FieldClockFreq: {"abc"}},
			expectStatus: http.StatusBadRequest,
			expectError:  `invalid form field value: par_clk_freq: strconv.ParseFloat: parsing "abc": invalid syntax`,
		},
		{
			name:         "nok, invalid parameters",
			whenForm:     url.Values{bittiming.FieldClockFreq: {"0"}},
			expectStatus: http.StatusUnprocessableEntity,
			expectError:  "invalid bit-timing parameters: clock frequency must be positive",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestServer(t, testSite)

			rec := doRequest(s, http.MethodPost, "/api/bittiming", strings.NewReader(tc.whenForm.Encode()), "application/x-www-form-urlencoded")

			assert.Equal(t, tc.expectStatus, rec.Code)
			var resp struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.expectError, resp.Error)
		})
	}
}

func TestServer_decode(t *testing.T) {
	s, _ := newTestServer(t, testSite)

	body := "# endianness and status\n0x400 0x87654321\nSTAT = 0x00000088\n"
	rec := doRequest(s, http.MethodPost, "/api/decode/xcan/prt", strings.NewReader(body), "text/plain")
	require.Equal(t, http.StatusOK, rec.Code)

	var report canxl.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, canxl.VariantXCAN, report.Variant)
	assert.Equal(t, canxl.BlockPRT, report.Block)

	stat, ok := report.FindRegister("STAT")
	require.True(t, ok)
	bo, ok := stat.FindField("BO")
	require.True(t, ok)
	assert.Equal(t, uint32(1), bo.Value)
	assert.True(t, report.Findings.HasErrors())
}

func TestServer_decode_errors(t *testing.T) {
	var testCases = []struct {
		name         string
		whenPath     string
		whenBody     string
		expectStatus int
		expectError  string
	}{
		{
			name:         "nok, unsupported block",
			whenPath:     "/api/decode/X_CANB/IRC",
			whenBody:     "0x0 0x0",
			expectStatus: http.StatusNotFound,
			expectError:  "block is not supported by variant: X_CANB/IRC",
		},
		{
			name:         "nok, unknown variant",
			whenPath:     "/api/decode/M_CAN/PRT",
			whenBody:     "0x0 0x0",
			expectStatus: http.StatusNotFound,
			expectError:  "unknown CAN IP variant: `M_CAN`",
		},
		{
			name:         "nok, invalid dump line",
			whenPath:     "/api/decode/X_CAN/PRT",
			whenBody:     "0x400 0x1 0x2",
			expectStatus: http.StatusBadRequest,
			expectError:  "line 1: invalid register dump line: `0x400 0x1 0x2`",
		},
		{
			name:         "nok, empty dump",
			whenPath:     "/api/decode/X_CAN/PRT",
			whenBody:     "# nothing\n",
			expectStatus: http.StatusBadRequest,
			expectError:  "decode failed, dump has no register values",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, _ := newTestServer(t, testSite)

			rec := doRequest(s, http.MethodPost, tc.whenPath, strings.NewReader(tc.whenBody), "text/plain")

			assert.Equal(t, tc.expectStatus, rec.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tc.expectError, resp.Error)
		})
	}
}

func TestServer_modules(t *testing.T) {
	s, _ := newTestServer(t, testSite)

	rec := doRequest(s, http.MethodGet, "/api/modules", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `["XS_CAN/MH","XS_CAN/PRT","X_CAN/IRC","X_CAN/MH","X_CAN/PRT","X_CANB/PRT"]`, rec.Body.String())
}

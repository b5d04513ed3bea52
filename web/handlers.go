package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/aldas/go-canxl-regs"
	"github.com/aldas/go-canxl-regs/bittiming"
	"github.com/aldas/go-canxl-regs/dump"
	"github.com/aldas/go-canxl-regs/internal/ctxlog"
	"github.com/aldas/go-canxl-regs/partial"
	"github.com/aldas/go-canxl-regs/regmap"
)

// maxDumpSize limits size of register dump request body
const maxDumpSize = 1 << 20

const indexPage = "index.html"

// fragments are served as they are, without injecting other fragments into them
var fragments = map[string]bool{}

func init() {
	for _, c := range []partial.Config{partial.FooterConfig(), partial.MenuConfig()} {
		fragments[strings.TrimPrefix(c.Path, "/")] = true
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type bitTimingResponse struct {
	// Values holds `res_*` form fields
	Values   map[string]string `json:"values"`
	Result   bittiming.Result  `json:"result"`
	Findings canxl.Findings    `json:"findings"`
	Error    string            `json:"error,omitempty"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctxlog.FromContext(r.Context()).Debug("health check endpoint hit", "remote_addr", r.RemoteAddr)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) staticHandler(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(path.Clean(r.URL.Path), "/")
	if name == "" {
		name = indexPage
	}
	stat, err := fs.Stat(s.static, name)
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}
	if fragments[name] || path.Ext(name) != ".html" {
		http.ServeFileFS(w, r, s.static, name)
		return
	}

	f, err := s.static.Open(name)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer f.Close()

	page, err := partial.Render(r.Context(), f, s.loaders...)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (s *Server) bitTimingHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	params, err := bittiming.ParseFormWithDefaults(r.Form, s.config.CalculatorDefaults)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}

	result, findings, err := bittiming.Calculate(params)
	if findings == nil {
		findings = canxl.Findings{}
	}
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, bitTimingResponse{
			Values:   map[string]string{},
			Findings: findings,
			Error:    err.Error(),
		})
		return
	}

	formValues, err := result.FormValues()
	if err != nil {
		ctxlog.FromContext(r.Context()).Error("bit-timing result register encoding failed", "error", err)
		findings.Add(canxl.SeverityError, "", "", "%v", err)
	}
	values := map[string]string{}
	for name, v := range formValues {
		values[name] = v[0]
	}
	writeJSON(w, http.StatusOK, bitTimingResponse{Values: values, Result: result, Findings: findings})
}

func (s *Server) decodeHandler(w http.ResponseWriter, r *http.Request) {
	variant, err := canxl.ParseVariant(r.PathValue("variant"))
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, err)
		return
	}
	block, err := canxl.ParseBlock(r.PathValue("block"))
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, err)
		return
	}
	decoder, err := s.registry.Decoder(variant, block)
	if err != nil {
		s.writeError(w, r, http.StatusNotFound, err)
		return
	}

	reader := dump.NewReader(http.MaxBytesReader(w, r.Body, maxDumpSize), decoder)
	values, err := dump.ReadAll(r.Context(), reader)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err)
		return
	}
	report, err := decoder.Decode(values)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, regmap.ErrDecodeEmptyDump) {
			status = http.StatusBadRequest
		}
		s.writeError(w, r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) modulesHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Modules())
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	logger := ctxlog.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", err)
	} else {
		logger.Debug("request rejected", "status", status, "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

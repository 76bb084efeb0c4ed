package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/grpc/status"

	"brandhub.dev/demodata/internal/demodata"
	"brandhub.dev/demodata/internal/docstore"
	"brandhub.dev/demodata/internal/runlock"
)

type errorBody struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Stage       string   `json:"stage,omitempty"`
	Collection  string   `json:"collection,omitempty"`
	Check       string   `json:"check,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
}

type seedResponse struct {
	RunID        string           `json:"run_id,omitempty"`
	Counts       map[string]int   `json:"counts,omitempty"`
	Placeholders []string         `json:"placeholders,omitempty"`
	States       []demodata.State `json:"states,omitempty"`
	Error        *errorBody       `json:"error,omitempty"`
}

type resetRequest struct {
	Collections []string `json:"collections"`
}

type resetResponse struct {
	RunID   string           `json:"run_id,omitempty"`
	Deleted map[string]int   `json:"deleted,omitempty"`
	States  []demodata.State `json:"states,omitempty"`
	Error   *errorBody       `json:"error,omitempty"`
}

// Seed runs a seed for the authenticated operator.
func (a *API) Seed(w http.ResponseWriter, r *http.Request) {
	var opts demodata.SeedOptions
	if err := decodeOptional(r, &opts); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	operator, _ := operatorFromContext(r.Context())

	rep, err := a.runner.Seed(runContext(r), operator, opts)
	var resp seedResponse
	if rep != nil {
		resp = seedResponse{RunID: rep.RunID, Counts: rep.Counts, Placeholders: rep.Placeholders, States: rep.States}
	}
	if err != nil {
		code, body := classify(err)
		a.log.Warn("seed failed", zap.String("operator_id", operator), zap.Error(err))
		resp.Error = body
		writeJSON(w, code, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Reset tears down demo data; an optional body narrows the collections.
func (a *API) Reset(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeOptional(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	operator, _ := operatorFromContext(r.Context())

	var (
		rep *demodata.ResetReport
		err error
	)
	if len(req.Collections) > 0 {
		rep, err = a.runner.ResetCollections(runContext(r), operator, req.Collections...)
	} else {
		rep, err = a.runner.Reset(runContext(r), operator)
	}
	var resp resetResponse
	if rep != nil {
		resp = resetResponse{RunID: rep.RunID, Deleted: rep.Deleted, States: rep.States}
	}
	if err != nil {
		code, body := classify(err)
		a.log.Warn("reset failed", zap.String("operator_id", operator), zap.Error(err))
		resp.Error = body
		writeJSON(w, code, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// runContext keeps request values but drops its cancellation: a run that has
// started finishes even if the client goes away.
func runContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

// classify maps run errors to an HTTP status and error body.
func classify(err error) (int, *errorBody) {
	body := &errorBody{Code: "internal", Message: err.Error()}

	var (
		pde *demodata.PermissionDeniedError
		ipe *demodata.IdentityProvisioningError
		swe *demodata.StageWriteError
		tce *demodata.TeardownCollectionError
	)
	switch {
	case errors.As(err, &pde):
		st, _ := status.FromError(pde)
		body.Code, body.Message, body.Check = st.Code().String(), st.Message(), pde.Check
		return http.StatusForbidden, body
	case errors.As(err, &ipe):
		body.Code = "identity_provisioning"
		for _, d := range ipe.Diagnostics {
			body.Diagnostics = append(body.Diagnostics, d.String())
		}
		return http.StatusBadGateway, body
	case errors.As(err, &swe):
		body.Code, body.Stage = docstore.CodeOf(swe.Err).String(), swe.Stage
		return http.StatusBadGateway, body
	case errors.As(err, &tce):
		body.Code, body.Collection = docstore.CodeOf(tce.Err).String(), tce.Collection
		return http.StatusBadGateway, body
	case errors.Is(err, runlock.ErrHeld):
		body.Code = "run_in_progress"
		return http.StatusConflict, body
	case errors.Is(err, demodata.ErrUnknownCollection):
		body.Code = "invalid_argument"
		return http.StatusBadRequest, body
	}
	return http.StatusInternalServerError, body
}

func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func respondError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": map[string]string{"code": http.StatusText(code), "message": msg}})
}

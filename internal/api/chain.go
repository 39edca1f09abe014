package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nerrad567/signalchain-core/internal/chain"
)

// setCurrentRequest is the body of PUT /chain/current.
type setCurrentRequest struct {
	Amps *float64 `json:"amps"`
}

// setCurrentResponse reports the applied target and any overload advisories.
type setCurrentResponse struct {
	TargetA    float64          `json:"target_a"`
	Advisories []chain.Advisory `json:"advisories"`
}

// setFrequencyRequest is the body of PUT /chain/frequency.
type setFrequencyRequest struct {
	Hz *float64 `json:"hz"`
}

// setOutputRequest is the body of PUT /chain/output. At least one field is required.
type setOutputRequest struct {
	Enabled     *bool    `json:"enabled"`
	ExcitationV *float64 `json:"excitation_v"`
}

// setLockInRequest is the body of PUT /chain/lockin. At least one field is required.
type setLockInRequest struct {
	TimeConstantS *float64 `json:"time_constant_s"`
	SensitivityV  *float64 `json:"sensitivity_v"`
	InputRangeV   *float64 `json:"input_range_v"`
}

// handleGetChain returns the summary, readback and configuration in one document.
func (s *Server) handleGetChain(w http.ResponseWriter, _ *http.Request) {
	st, err := s.chain.Status()
	if err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// handleGetSummary returns the topology summary as plain text.
func (s *Server) handleGetSummary(w http.ResponseWriter, _ *http.Request) {
	summary, err := s.chain.Summary()
	if err != nil {
		writeChainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response
	w.Write([]byte(summary + "\n"))
}

// handleSetCurrent applies a current setpoint. Advisories are returned with
// a 200; they never block the write.
func (s *Server) handleSetCurrent(w http.ResponseWriter, r *http.Request) {
	var req setCurrentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Amps == nil {
		writeBadRequest(w, "amps is required")
		return
	}

	advs, err := s.chain.SetCurrentTarget(r.Context(), *req.Amps)
	if err != nil {
		writeChainError(w, err)
		return
	}
	if advs == nil {
		advs = []chain.Advisory{}
	}
	writeJSON(w, http.StatusOK, setCurrentResponse{TargetA: *req.Amps, Advisories: advs})
}

// handleSetFrequency sets the shared reference frequency.
func (s *Server) handleSetFrequency(w http.ResponseWriter, r *http.Request) {
	var req setFrequencyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Hz == nil {
		writeBadRequest(w, "hz is required")
		return
	}

	if err := s.chain.SetReferenceFrequency(r.Context(), *req.Hz); err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"frequency_hz": *req.Hz})
}

// handleSetOutput switches the source output and/or writes its level.
// The level is written first so enabling the output never drives a
// stale amplitude.
func (s *Server) handleSetOutput(w http.ResponseWriter, r *http.Request) {
	var req setOutputRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Enabled == nil && req.ExcitationV == nil {
		writeBadRequest(w, "enabled or excitation_v is required")
		return
	}

	ctx := r.Context()
	if req.ExcitationV != nil {
		if err := s.chain.SetExcitation(ctx, *req.ExcitationV); err != nil {
			writeChainError(w, err)
			return
		}
	}
	if req.Enabled != nil {
		if err := s.chain.SetOutput(ctx, *req.Enabled); err != nil {
			writeChainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, req)
}

// handleSetLockIn writes the lock-in settings present in the body.
func (s *Server) handleSetLockIn(w http.ResponseWriter, r *http.Request) {
	var req setLockInRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.TimeConstantS == nil && req.SensitivityV == nil && req.InputRangeV == nil {
		writeBadRequest(w, "at least one lock-in setting is required")
		return
	}

	ctx := r.Context()
	if req.InputRangeV != nil {
		if err := s.chain.SetInputRange(ctx, *req.InputRangeV); err != nil {
			writeChainError(w, err)
			return
		}
	}
	if req.SensitivityV != nil {
		if err := s.chain.SetSensitivity(ctx, *req.SensitivityV); err != nil {
			writeChainError(w, err)
			return
		}
	}
	if req.TimeConstantS != nil {
		if err := s.chain.SetTimeConstant(ctx, *req.TimeConstantS); err != nil {
			writeChainError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, req)
}

// handleGetAdvisory returns the advisory scalars.
func (s *Server) handleGetAdvisory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.chain.AdvisoryConfig())
}

// handleSetAdvisory merges the body over the current advisory scalars.
// {"r_est_ohm": null} clears the impedance estimate.
func (s *Server) handleSetAdvisory(w http.ResponseWriter, r *http.Request) {
	cfg := s.chain.AdvisoryConfig()
	if !decodeBody(w, r, &cfg) {
		return
	}
	if err := s.chain.SetAdvisoryConfig(r.Context(), cfg); err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.chain.AdvisoryConfig())
}

// handleGetConverter returns the manual converter settings.
func (s *Server) handleGetConverter(w http.ResponseWriter, _ *http.Request) {
	cs, err := s.chain.ConverterSettings()
	if err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// handleSetConverter merges the body over the converter settings.
func (s *Server) handleSetConverter(w http.ResponseWriter, r *http.Request) {
	cs, err := s.chain.ConverterSettings()
	if err != nil {
		writeChainError(w, err)
		return
	}
	if !decodeBody(w, r, &cs) {
		return
	}
	if err := s.chain.SetConverter(r.Context(), cs); err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// handleGetPreamp returns the manual preamp settings.
func (s *Server) handleGetPreamp(w http.ResponseWriter, _ *http.Request) {
	ps, err := s.chain.PreampSettings()
	if err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// handleSetPreamp merges the body over the preamp settings.
func (s *Server) handleSetPreamp(w http.ResponseWriter, r *http.Request) {
	ps, err := s.chain.PreampSettings()
	if err != nil {
		writeChainError(w, err)
		return
	}
	if !decodeBody(w, r, &ps) {
		return
	}
	if err := s.chain.SetPreamp(r.Context(), ps); err != nil {
		writeChainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

// decodeBody decodes a JSON body into v, rejecting unknown fields. It
// writes the 400 itself and reports false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeBadRequest(w, fmt.Sprintf("invalid JSON body: %v", err))
		return false
	}
	return true
}

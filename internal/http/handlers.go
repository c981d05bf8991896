package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/antonykevinfernando/doorstep-sub001/internal/deposits"
	"github.com/antonykevinfernando/doorstep-sub001/internal/observability"
)

func (s *Server) handleCreateHold(w http.ResponseWriter, r *http.Request) {
	var req deposits.HoldRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	res, err := s.Deposits.CreateHold(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleCreateCheckout(w http.ResponseWriter, r *http.Request) {
	var req deposits.HoldRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	res, err := s.Deposits.CreateCheckoutSession(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req deposits.CaptureRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, "invalid request body: "+err.Error())
		return
	}
	res, err := s.Deposits.Capture(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetDeposit(w http.ResponseWriter, r *http.Request) {
	d, err := s.Deposits.GetDeposit(r.Context(), mux.Vars(r)["deposit_id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleCheckoutSuccess is reached by a browser redirect, so every outcome is
// a terminal HTML page.
func (s *Server) handleCheckoutSuccess(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res, err := s.Deposits.CompleteCheckout(r.Context(), deposits.CallbackRequest{
		SessionID: q.Get("session_id"),
		TaskID:    q.Get("task_id"),
		MoveID:    q.Get("move_id"),
	})
	if err != nil {
		kind := deposits.KindOf(err)
		status := statusFor(kind)
		if status >= http.StatusInternalServerError {
			s.logger.Error("checkout callback failed", "kind", kind.String(), "error", err)
		} else {
			s.logger.Warn("checkout callback rejected", "kind", kind.String(), "error", err)
		}
		s.renderPage(w, status, failurePage, pageData{Message: publicMessage(err)})
		return
	}
	s.renderPage(w, http.StatusOK, successPage, pageData{
		Amount:    formatAmount(res.Deposit.AmountCents, s.Deposits.Currency),
		DepositID: res.Deposit.ID,
		Replayed:  res.Replayed,
	})
}

func (s *Server) handleCheckoutCancel(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, http.StatusOK, cancelPage, pageData{})
}

// handleFakeCheckoutPay plays the payer on the fake gateway's hosted page:
// it completes the session and follows the registered success redirect.
func (s *Server) handleFakeCheckoutPay(w http.ResponseWriter, r *http.Request) {
	if s.FakeCheckout == nil {
		http.NotFound(w, r)
		return
	}
	id := mux.Vars(r)["session_id"]
	if _, err := s.FakeCheckout.CompleteSession(id); err != nil {
		s.renderPage(w, http.StatusNotFound, failurePage, pageData{Message: "checkout session not found"})
		return
	}
	target := strings.Replace(s.FakeCheckout.SuccessURL(id), "{CHECKOUT_SESSION_ID}", id, 1)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	if err := s.Deposits.Store.Ping(ctx); err != nil {
		failed["store"] = err.Error()
	}
	for name, check := range s.ReadyChecks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		s.logger.Warn("readiness check failed", "failed", failed)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleWS subscribes an operator console to deposit events. The read loop
// only exists to notice the peer going away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.WSReg == nil {
		http.NotFound(w, r)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	id := uuid.NewString()
	s.WSReg.Add(id, conn)
	observability.WSSubscribers.Set(float64(s.WSReg.Len()))
	s.logger.Info("console subscribed", "subscriber_id", id)

	go func() {
		defer func() {
			s.WSReg.Remove(id)
			observability.WSSubscribers.Set(float64(s.WSReg.Len()))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.logger.Debug("console disconnected", "subscriber_id", id, "error", err)
				return
			}
		}
	}()
}

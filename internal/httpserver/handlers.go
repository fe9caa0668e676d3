package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"fixshop/internal/domain"
)

// -- Warranties --

func (s *Server) createWarranty(w http.ResponseWriter, r *http.Request) {
	var in domain.NewWarranty
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	tenant := tenantFrom(r.Context())
	created, err := s.deps.Warranties.Create(r.Context(), tenant, in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.Stats.Invalidate(r.Context(), tenant.ID)
	writeJSON(w, http.StatusCreated, newWarrantyView(*created, s.deps.Warranties.DisplayStatus(*created)))
}

func (s *Server) listWarranties(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Warranties.List(r.Context(), tenantFrom(r.Context()), listFilter(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]warrantyView, 0, len(list))
	for _, item := range list {
		out = append(out, newWarrantyView(item, s.deps.Warranties.DisplayStatus(item)))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getWarranty(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Warranties.Get(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newWarrantyView(*item, s.deps.Warranties.DisplayStatus(*item)))
}

func (s *Server) setWarrantyStatus(w http.ResponseWriter, r *http.Request) {
	var in statusRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	status, err := domain.ParseWarrantyStatus(in.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tenant := tenantFrom(r.Context())
	if err := s.deps.Warranties.SetStatus(r.Context(), tenant, chi.URLParam(r, "id"), status); err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.Stats.Invalidate(r.Context(), tenant.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) lookupWarranty(w http.ResponseWriter, r *http.Request) {
	item, err := s.deps.Warranties.Lookup(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, publicWarrantyView{
		ShortCode:     item.ShortCode,
		CustomerName:  item.Customer.Name,
		DeviceModel:   item.DeviceModel,
		RepairType:    item.RepairType,
		IssuedAt:      item.IssuedAt,
		ExpiresAt:     item.ExpiresAt,
		DisplayStatus: s.deps.Warranties.DisplayStatus(*item),
	})
}

// -- Jobs --

func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	var in jobRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	tenant := tenantFrom(r.Context())
	job, err := s.deps.Jobs.Create(r.Context(), tenant, in.intake())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.Stats.Invalidate(r.Context(), tenant.ID)
	s.writeJob(w, r, http.StatusCreated, *job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Jobs.List(r.Context(), tenantFrom(r.Context()), listFilter(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := make([]jobView, 0, len(list))
	for _, job := range list {
		view, err := newJobView(job)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	job, err := s.deps.Jobs.Get(r.Context(), tenant, chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	payments, err := s.deps.Ledger.Payments(r.Context(), tenant, job.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view, err := newJobView(*job)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	view.Payments = newPaymentViews(payments)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) updateJob(w http.ResponseWriter, r *http.Request) {
	var in jobRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.deps.Jobs.UpdateDetails(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"), in.details()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteJob(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	if err := s.deps.Jobs.Delete(r.Context(), tenant, chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.Stats.Invalidate(r.Context(), tenant.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setJobStatus(w http.ResponseWriter, r *http.Request) {
	var in statusRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	status, err := domain.ParseJobStatus(in.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	tenant := tenantFrom(r.Context())
	if _, err := s.deps.Jobs.SetStatus(r.Context(), tenant, chi.URLParam(r, "id"), status); err != nil {
		s.fail(w, r, err)
		return
	}
	s.deps.Stats.Invalidate(r.Context(), tenant.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeJob(w http.ResponseWriter, r *http.Request, code int, job domain.JobSheet) {
	view, err := newJobView(job)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, code, view)
}

// -- Payments --

func (s *Server) addPayment(w http.ResponseWriter, r *http.Request) {
	var in domain.NewPayment
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	entry, err := s.deps.Ledger.AddPayment(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"payment": newPaymentViews([]domain.Payment{entry.Payment})[0],
		"advance": entry.Advance,
		"balance": entry.Balance,
	})
}

func (s *Server) listPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := s.deps.Ledger.Payments(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newPaymentViews(payments))
}

func (s *Server) deletePayment(w http.ResponseWriter, r *http.Request) {
	if _, err := s.deps.Ledger.DeletePayment(r.Context(), tenantFrom(r.Context()), chi.URLParam(r, "id"), chi.URLParam(r, "pid")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -- Stats and PIN --

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	tenant := tenantFrom(r.Context())
	snap, err := s.deps.Stats.Get(r.Context(), tenant)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	out := *snap
	if !s.deps.Gate.Authorize(tenant, r.Header.Get(headerGrant)) {
		out = out.Redacted()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) verifyPIN(w http.ResponseWriter, r *http.Request) {
	var in pinRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	grant, ok, err := s.deps.Gate.Verify(r.Context(), tenantFrom(r.Context()), in.PIN)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": ok, "grant": grant})
}

func (s *Server) setPIN(w http.ResponseWriter, r *http.Request) {
	var in pinRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Gate.Set(r.Context(), tenantFrom(r.Context()), in.PIN); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) changePIN(w http.ResponseWriter, r *http.Request) {
	var in pinRequest
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Gate.Change(r.Context(), tenantFrom(r.Context()), in.OldPIN, in.NewPIN); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package http

import (
	"net/http"
	"strings"
	"time"

	"dailyledger/internal/core"
	"dailyledger/internal/export"
	"dailyledger/internal/log"
)

type createMemberRequest struct {
	Name                string `json:"name"`
	MonthlyTarget       string `json:"monthlyTarget"`
	DefaultDailyPayment string `json:"defaultDailyPayment"`
	CreatedOn           string `json:"createdOn"`
	Rank                int    `json:"rank"`
}

func (s *Server) handleCreateMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createMemberRequest
	if !decodeBody(w, r, &req) {
		return
	}

	target, err := core.ParseAmount(req.MonthlyTarget)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid monthly target")
		return
	}

	member := core.Member{
		UserID:        userID,
		Name:          strings.TrimSpace(req.Name),
		MonthlyTarget: target,
		Rank:          req.Rank,
	}
	if req.DefaultDailyPayment != "" {
		daily, err := core.ParseAmount(req.DefaultDailyPayment)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid default daily payment")
			return
		}
		member.DefaultDailyPayment = daily
	}
	if req.CreatedOn != "" {
		createdOn, err := core.ParseDay(req.CreatedOn)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid createdOn date")
			return
		}
		member.CreatedOn = createdOn
	}

	created, err := s.ledger.CreateMember(r.Context(), member)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Create member failed", log.FieldError, err, log.FieldUserID, userID)
		writeServiceError(w, err)
		return
	}

	s.membersCache.Delete(userID)
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if members, found := s.membersCache.Get(userID); found {
		writeJSON(w, http.StatusOK, members)
		return
	}

	members, err := s.ledger.ListMembers(r.Context(), userID)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "List members failed", log.FieldError, err, log.FieldUserID, userID)
		writeServiceError(w, err)
		return
	}
	if members == nil {
		members = []core.Member{}
	}

	s.membersCache.Set(userID, members)
	writeJSON(w, http.StatusOK, members)
}

type archiveMemberRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleArchiveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	memberID := r.PathValue("id")

	var req archiveMemberRequest
	if r.ContentLength > 0 && !decodeBody(w, r, &req) {
		return
	}

	if err := s.ledger.ArchiveMember(r.Context(), userID, memberID, req.Reason); err != nil {
		writeServiceError(w, err)
		return
	}

	s.membersCache.Delete(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleUnarchiveMember(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	memberID := r.PathValue("id")

	if err := s.ledger.UnarchiveMember(r.Context(), userID, memberID); err != nil {
		writeServiceError(w, err)
		return
	}

	s.membersCache.Delete(userID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearOutstanding(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	memberID := r.PathValue("id")

	month := core.MonthOf(time.Now())
	if v := r.URL.Query().Get("month"); v != "" {
		parsed, err := core.ParseMonth(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid month, expected YYYY-MM")
			return
		}
		month = parsed
	}

	txn, err := s.ledger.ClearOutstanding(r.Context(), userID, memberID, month)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, txn)
}

type recordPaymentRequest struct {
	MemberID string `json:"memberId"`
	Date     string `json:"date"`
	Amount   string `json:"amount"`
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req recordPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	date := req.Date
	if date == "" {
		date = core.DayKey(time.Now())
	}

	txn, err := s.ledger.RecordPayment(r.Context(), userID, req.MemberID, date, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, txn)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := core.TransactionFilter{
		MemberID:   q.Get("memberId"),
		DateEquals: q.Get("date"),
		DateFrom:   q.Get("from"),
		DateTo:     q.Get("to"),
	}

	txns, err := s.ledger.ListTransactions(r.Context(), userID, filter)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "List transactions failed", log.FieldError, err, log.FieldUserID, userID)
		writeServiceError(w, err)
		return
	}
	if txns == nil {
		txns = []core.Transaction{}
	}

	writeJSON(w, http.StatusOK, txns)
}

type correctTransactionRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleCorrectTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	txnID := r.PathValue("id")

	var req correctTransactionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid amount")
		return
	}

	txn, err := s.ledger.CorrectTransaction(r.Context(), userID, txnID, amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, txn)
}

func (s *Server) handleDailyStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	day := time.Now()
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := core.ParseDay(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid date, expected YYYY-MM-DD")
			return
		}
		day = parsed
	}

	snap, err := s.stats.GetDaily(r.Context(), userID, day)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Daily stats failed", log.FieldError, err, log.FieldUserID, userID, log.FieldDate, core.DayKey(day))
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleMonthlyStats(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	month := core.MonthOf(time.Now())
	if v := r.URL.Query().Get("month"); v != "" {
		parsed, err := core.ParseMonth(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid month, expected YYYY-MM")
			return
		}
		month = parsed
	}

	snap, err := s.stats.GetMonthly(r.Context(), userID, month)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Monthly stats failed", log.FieldError, err, log.FieldUserID, userID, log.FieldMonth, month.Key())
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleExportMonthly(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	month := core.MonthOf(time.Now())
	if v := r.URL.Query().Get("month"); v != "" {
		parsed, err := core.ParseMonth(v)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "invalid month, expected YYYY-MM")
			return
		}
		month = parsed
	}

	members, err := s.ledger.ListMembers(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	txns, err := s.ledger.ListTransactions(r.Context(), userID, core.TransactionFilter{})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	f, err := export.BuildMonthlyWorkbook(members, txns, month)
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Export build failed", log.FieldError, err, log.FieldUserID, userID, log.FieldMonth, month.Key())
		writeError(w, http.StatusInternalServerError, "failed to build export")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename(month)+`"`)
	if err := f.Write(w); err != nil {
		s.logger.ErrorContext(r.Context(), "Export write failed", log.FieldError, err, log.FieldUserID, userID)
	}
}

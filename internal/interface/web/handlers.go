package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/lotterylab/lotteryd/internal/core/application"
)

type handler struct {
	svc application.Service
}

func newHandler(svc application.Service) *handler {
	return &handler{svc}
}

type buyTicketRequest struct {
	Buyer  string `json:"buyer"`
	Amount string `json:"amount"`
}

type roundResponse struct {
	Id          string `json:"id"`
	Seq         uint64 `json:"round_id"`
	Stage       string `json:"state"`
	OpenedAt    int64  `json:"opened_at"`
	TicketCount int    `json:"ticket_count"`
	PotAmount   string `json:"pot_amount"`
}

type ticketResponse struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type winnerResponse struct {
	RoundSeq     uint64 `json:"round_id"`
	Winner       string `json:"winner"`
	PayoutAmount string `json:"payout_amount"`
	ResolvedAt   int64  `json:"resolved_at"`
}

func (h *handler) buyTicket(w http.ResponseWriter, r *http.Request) {
	var req buyTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	amount, err := strconv.ParseUint(req.Amount, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid amount")
		return
	}

	info, err := h.svc.BuyTicket(r.Context(), req.Buyer, amount)
	if err != nil {
		writeSvcError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toRoundResponse(info))
}

func (h *handler) listTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.svc.GetCurrentTickets(r.Context())
	if err != nil {
		writeSvcError(w, err)
		return
	}

	resp := make([]ticketResponse, 0, len(tickets))
	for _, ticket := range tickets {
		resp = append(resp, ticketResponse{
			Owner:  ticket.Owner,
			Amount: strconv.FormatUint(ticket.Amount, 10),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tickets": resp})
}

func (h *handler) ticketCount(w http.ResponseWriter, r *http.Request) {
	owner := chi.URLParam(r, "owner")
	count, err := h.svc.GetTicketCount(r.Context(), owner)
	if err != nil {
		writeSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner": owner, "count": count,
	})
}

func (h *handler) roundInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.GetRoundInfo(r.Context())
	if err != nil {
		writeSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRoundResponse(info))
}

func (h *handler) listWinners(w http.ResponseWriter, r *http.Request) {
	winners, err := h.svc.GetWinners(r.Context())
	if err != nil {
		writeSvcError(w, err)
		return
	}

	resp := make([]winnerResponse, 0, len(winners))
	for _, record := range winners {
		resp = append(resp, winnerResponse{
			RoundSeq:     record.RoundSeq,
			Winner:       record.Winner,
			PayoutAmount: strconv.FormatUint(record.PayoutAmount, 10),
			ResolvedAt:   record.ResolvedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"winners": resp})
}

func (h *handler) checkUpkeep(w http.ResponseWriter, r *http.Request) {
	eligible, err := h.svc.CheckUpkeep(r.Context())
	if err != nil {
		writeSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"eligible": eligible})
}

func (h *handler) performUpkeep(w http.ResponseWriter, r *http.Request) {
	requestId, err := h.svc.PerformUpkeep(r.Context())
	if err != nil {
		writeSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"request_id": requestId})
}

func (h *handler) faucet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	amount, err := h.svc.FaucetRequest(r.Context(), req.Address)
	if err != nil {
		writeSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": req.Address, "amount": strconv.FormatUint(amount, 10),
	})
}

func (h *handler) balance(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	balance, err := h.svc.GetBalance(r.Context(), address)
	if err != nil {
		writeSvcError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"address": address, "balance": strconv.FormatUint(balance, 10),
	})
}

func toRoundResponse(info *application.RoundInfo) roundResponse {
	return roundResponse{
		Id:          info.Id,
		Seq:         info.Seq,
		Stage:       info.Stage,
		OpenedAt:    info.OpenedAt,
		TicketCount: info.TicketCount,
		PotAmount:   strconv.FormatUint(info.PotAmount, 10),
	}
}

func writeSvcError(w http.ResponseWriter, err error) {
	var (
		oracleErr      application.ErrOracleUnavailable
		notEnoughErr   application.ErrNotEnoughValue
		notOpenErr     application.ErrRoundNotOpen
		notEligibleErr application.ErrNotEligible
		calculatingErr application.ErrAlreadyCalculating
	)

	switch {
	case errors.As(err, &oracleErr):
		writeError(w, http.StatusServiceUnavailable, "oracle_unavailable", err.Error())
	case errors.As(err, &notEnoughErr):
		writeError(w, http.StatusPaymentRequired, "not_enough_value", err.Error())
	case errors.As(err, &notOpenErr):
		writeError(w, http.StatusConflict, "round_not_open", err.Error())
	case errors.As(err, &notEligibleErr):
		writeError(w, http.StatusConflict, "not_eligible", err.Error())
	case errors.As(err, &calculatingErr):
		writeError(w, http.StatusConflict, "already_calculating", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"code": code, "message": message,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// nolint:all
	json.NewEncoder(w).Encode(body)
}

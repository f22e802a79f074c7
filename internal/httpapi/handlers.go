package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"
	"time"

	"bank-ledger/internal/domain"
	"bank-ledger/internal/iban"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is the transfer engine as seen by the HTTP layer.
type Service interface {
	CreateAccount(ctx context.Context, countryCode string, initialDeposit decimal.Decimal) (iban.Number, error)
	Account(ctx context.Context, id string) (domain.Account, error)
	Transfer(ctx context.Context, src, dst string, amount decimal.Decimal) (uuid.UUID, error)
	Transfers(ctx context.Context, id string) ([]domain.Transfer, error)
}

type Handlers struct {
	svc      Service
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandlers(svc Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report JSON names, which is what clients sent.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handlers{svc: svc, validate: v, logger: logger}
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func httpStatusForErr(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	// Ledger errors
	case errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict

	// Context / timeouts
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout

	default:
		return http.StatusInternalServerError
	}
}

func publicErrMessage(code int, err error) string {
	// Don’t leak internals on 5xx.
	if code >= 500 {
		return "internal error"
	}
	return err.Error()
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := httpStatusForErr(err)
	if code >= 500 {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
	}
	writeErr(w, code, publicErrMessage(code, err))
}

// validationErr turns the first validator failure into an ArgumentError.
func validationErr(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return domain.InvalidArgument(verrs[0].Field())
	}
	return err
}

// POST /v1/accounts
func (h *Handlers) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.CountryCode = strings.TrimSpace(req.CountryCode)
	if err := h.validate.Struct(req); err != nil {
		h.fail(w, r, validationErr(err))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	n, err := h.svc.CreateAccount(ctx, req.CountryCode, req.InitialDeposit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, domain.CreateAccountResponse{AccountNumber: n.String()})
}

// GET /v1/accounts/{accountNumber}
func (h *Handlers) GetAccount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	acc, err := h.svc.Account(ctx, r.PathValue("accountNumber"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, domain.AccountResponse{
		AccountNumber: acc.ID,
		Balance:       acc.Balance.StringFixed(2),
		DateOpened:    acc.DateOpened,
	})
}

// POST /v1/accounts/{src}/transfers/{dst}
func (h *Handlers) PostTransfer(w http.ResponseWriter, r *http.Request) {
	var req domain.PostTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id, err := h.svc.Transfer(ctx, r.PathValue("src"), r.PathValue("dst"), req.Amount)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, domain.PostTransferResponse{TransferID: id})
}

// GET /v1/accounts/{src}/transfers
func (h *Handlers) GetTransfers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	transfers, err := h.svc.Transfers(ctx, r.PathValue("src"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := domain.TransfersResponse{Transfers: make([]domain.TransferResponse, 0, len(transfers))}
	for _, t := range transfers {
		resp.Transfers = append(resp.Transfers, domain.TransferResponse{
			ID:          t.ID,
			Source:      t.Source,
			Destination: t.Destination,
			Amount:      t.Amount.StringFixed(2),
			CreatedAt:   t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

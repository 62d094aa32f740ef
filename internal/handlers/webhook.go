package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/nkiryanov/washpay/internal/apperrors"
	"github.com/nkiryanov/washpay/internal/handlers/render"
	"github.com/nkiryanov/washpay/internal/logger"
	"github.com/nkiryanov/washpay/internal/service/settlement"
)

const maxWebhookBody = 1 << 20

func handleSettlementWebhook(receiver webhookReceiver, l logger.Logger) http.Handler {
	type response struct {
		Received bool   `json:"received"`
		Outcome  string `json:"outcome"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Signature covers the exact bytes, so the body is read raw
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			render.Error(w, render.DecodingErrorType, "Failed to read request body", http.StatusBadRequest)
			return
		}

		outcome, err := receiver.HandleWebhook(r.Context(), r.Header.Get(settlement.SignatureHeader), body)
		if errors.Is(err, apperrors.ErrSignatureInvalid) {
			l.Warn("Settlement webhook signature rejected", "remote", r.RemoteAddr, "error", err)
		}
		if err != nil {
			renderError(w, l, err, "Failed to handle settlement event")
			return
		}

		render.JSON(w, response{Received: true, Outcome: outcome})
	})
}

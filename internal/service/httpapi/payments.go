package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/vladislavdragonenkov/marketplace/internal/service/payment"
)

func (a *API) createGatewayPayment(w http.ResponseWriter, r *http.Request) {
	var req payment.CreatePaymentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	raw, err := a.payments.CreateGatewayPayment(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

// zalopayCallback всегда отвечает 200: шлюз смотрит только на return_code.
func (a *API) zalopayCallback(w http.ResponseWriter, r *http.Request) {
	var req payment.CallbackRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := decodeCallback(body, &req); err != nil {
		writeJSON(w, http.StatusOK, payment.CallbackResult{
			ReturnCode:    payment.ReturnCodeFailed,
			ReturnMessage: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, a.payments.HandleCallback(r.Context(), req))
}

func decodeCallback(body io.Reader, req *payment.CallbackRequest) error {
	if err := json.NewDecoder(body).Decode(req); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty callback body")
		}
		return fmt.Errorf("decode callback: %w", err)
	}
	return nil
}

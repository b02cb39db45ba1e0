package broadcast

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/PetSOS-teamsite/petsos-sub001/internal/domain/clinics"

	"github.com/go-chi/chi/v5"
)

func RegisterRoutes(r chi.Router, svc *Service) {
	r.Post("/emergency-requests/{requestID}/broadcast", targetedBroadcastHandler(svc))
	r.Post("/emergency-requests/{requestID}/broadcast/quick", quickBroadcastHandler(svc))
	r.Get("/emergency-requests/{requestID}/messages", listMessagesHandler(svc))

	// Webhook de confirmación de entrega del bridge de WhatsApp.
	r.Post("/channels/whatsapp/delivery", deliveryWebhookHandler(svc))
}

// targetedBroadcastRequest sigue el contrato externo (camelCase).
type targetedBroadcastRequest struct {
	ClinicIDs []string `json:"clinicIds"`
	Message   string   `json:"message"`
}

type exclusionResponse struct {
	ClinicID string `json:"clinic_id"`
	Reason   string `json:"reason"`
}

type broadcastResponse struct {
	Count    int                 `json:"count"`
	Excluded []exclusionResponse `json:"excluded,omitempty"`
}

type messageResponse struct {
	ID                 string          `json:"id"`
	EmergencyRequestID string          `json:"emergency_request_id"`
	ClinicID           string          `json:"clinic_id"`
	Channel            clinics.Channel `json:"channel"`
	Recipient          string          `json:"recipient"`
	Status             Status          `json:"status"`
	RetryCount         int             `json:"retry_count"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	SentAt             *time.Time      `json:"sent_at,omitempty"`
	DeliveredAt        *time.Time      `json:"delivered_at,omitempty"`
	FailedAt           *time.Time      `json:"failed_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

func targetedBroadcastHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req targetedBroadcastRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}

		res, err := svc.TargetedBroadcast(r.Context(), chi.URLParam(r, "requestID"), req.ClinicIDs, req.Message)
		if err != nil {
			writeBroadcastError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBroadcastResponse(res))
	}
}

func quickBroadcastHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := svc.QuickBroadcast(r.Context(), chi.URLParam(r, "requestID"))
		if err != nil {
			writeBroadcastError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBroadcastResponse(res))
	}
}

func listMessagesHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.Messages(r.Context(), chi.URLParam(r, "requestID"))
		if err != nil {
			writeBroadcastError(w, err)
			return
		}

		out := make([]messageResponse, 0, len(items))
		for _, m := range items {
			out = append(out, toMessageResponse(m))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

type deliveryWebhookRequest struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

func deliveryWebhookHandler(svc *Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req deliveryWebhookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.MessageID == "" {
			http.Error(w, "message_id required", http.StatusBadRequest)
			return
		}

		// Acusamos recibo aunque el id no matchee ningún row: el proveedor
		// reintenta webhooks con error y acá no hay nada que reintentar.
		_ = svc.ConfirmDelivery(r.Context(), req.MessageID)
		w.WriteHeader(http.StatusNoContent)
	}
}

func writeBroadcastError(w http.ResponseWriter, err error) {
	switch err {
	case ErrRequestNotFound:
		http.Error(w, err.Error(), http.StatusNotFound)
	case ErrEmptyMessage:
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func toBroadcastResponse(res Result) broadcastResponse {
	out := broadcastResponse{Count: res.Count}
	for _, e := range res.Excluded {
		out.Excluded = append(out.Excluded, exclusionResponse{ClinicID: e.ClinicID, Reason: e.Reason})
	}
	return out
}

func toMessageResponse(m Message) messageResponse {
	return messageResponse{
		ID:                 m.ID,
		EmergencyRequestID: m.EmergencyRequestID,
		ClinicID:           m.ClinicID,
		Channel:            m.Channel,
		Recipient:          m.Recipient,
		Status:             m.Status,
		RetryCount:         m.RetryCount,
		ErrorMessage:       m.ErrorMessage,
		SentAt:             m.SentAt,
		DeliveredAt:        m.DeliveredAt,
		FailedAt:           m.FailedAt,
		CreatedAt:          m.CreatedAt,
	}
}

// writeJSON duplicado a propósito por módulo (ver clinics/emergencies).
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

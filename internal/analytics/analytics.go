// Package analytics records device telemetry posted by clients, logged in or
// not.
package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ZUXXSU/chathubserver/internal/apperr"
	"github.com/ZUXXSU/chathubserver/internal/identity"
	"github.com/ZUXXSU/chathubserver/internal/middleware"
	"github.com/ZUXXSU/chathubserver/internal/web"
	"github.com/google/uuid"
)

type Record struct {
	ID                  string          `json:"_id"`
	User                identity.ID     `json:"user"`
	UniqueIdentifier    string          `json:"uniqueIdentifier" validate:"required"`
	IPAddress           string          `json:"ipAddress"`
	PreciseLocation     json.RawMessage `json:"preciseLocation,omitempty"`
	ApproximateLocation json.RawMessage `json:"approximateLocation,omitempty"`
	DeviceModel         string          `json:"deviceModel" validate:"required"`
	OS                  string          `json:"os" validate:"required"`
	ScreenResolution    string          `json:"screenResolution"`
	NetworkType         string          `json:"networkType"`
	AppVersion          string          `json:"appVersion"`
	Timestamp           time.Time       `json:"timestamp"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return []byte(raw)
}

// Insert stores rec with a server timestamp.
func (r *Repository) Insert(ctx context.Context, rec *Record) error {
	rec.ID = uuid.NewString()
	query := `INSERT INTO analytics (id, user_ref, unique_identifier, ip_address, precise_location,
			approximate_location, device_model, os, screen_resolution, network_type, app_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING created_at`
	return r.db.QueryRowContext(ctx, query,
		rec.ID, rec.User, rec.UniqueIdentifier, rec.IPAddress,
		nullJSON(rec.PreciseLocation), nullJSON(rec.ApproximateLocation),
		rec.DeviceModel, rec.OS, rec.ScreenResolution, rec.NetworkType, rec.AppVersion,
	).Scan(&rec.Timestamp)
}

// Anonymous lists records posted without a login, newest first.
func (r *Repository) Anonymous(ctx context.Context) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, user_ref, unique_identifier, ip_address,
			device_model, os, network_type, created_at
		FROM analytics WHERE user_ref = $1 ORDER BY created_at DESC`, identity.Anonymous)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.User, &rec.UniqueIdentifier, &rec.IPAddress,
			&rec.DeviceModel, &rec.OS, &rec.NetworkType, &rec.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type Store interface {
	Insert(ctx context.Context, rec *Record) error
}

type Handler struct {
	store     Store
	responder *web.Responder
}

func NewHandler(store Store, responder *web.Responder) *Handler {
	return &Handler{store: store, responder: responder}
}

// Send runs behind the soft auth middleware, so the user is either a real
// id or identity.Anonymous.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var rec Record
	if err := web.Decode(r, &rec); err != nil {
		h.responder.Error(w, r, err)
		return
	}
	p, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		p.ID = identity.Anonymous
	}
	rec.User = p.ID

	if err := h.store.Insert(r.Context(), &rec); err != nil {
		h.responder.Error(w, r, apperr.Wrap(err, "store analytics"))
		return
	}
	web.JSON(w, http.StatusOK, map[string]any{"success": true, "message": "Data received"})
}

// Package identity talks to the provincial citizen identity service used to
// look up walk-up attendees by CUIL.
package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/inscribcordoba/attendance/internal/logging"
)

// DefaultEndpoint is the user lookup operation of the identity service.
const DefaultEndpoint = "https://cuentacidi.test.cba.gov.ar/api/Usuario/Obtener_Usuario"

// NotAvailable is used for optional person fields the service leaves empty.
const NotAvailable = "N/A"

// Config carries the application and operator credentials sent with every lookup.
type Config struct {
	Endpoint      string
	ApplicationID int
	Password      string
	// AppKey is the shared secret the token is derived from.
	AppKey       string
	OperatorCUIL string
	OperatorHash string
	Timeout      time.Duration
	// Location is used to render request timestamps. Defaults to time.Local.
	Location *time.Location
}

// Person is the subset of the identity record used for enrollment.
type Person struct {
	Name              string
	IdentityNumber    string
	FormattedIdentity string
	Locality          string
	Phone             string
}

// Lookuper resolves a normalized 11-digit CUIL to a person record.
type Lookuper interface {
	Lookup(ctx context.Context, identityNumber string) (Person, error)
}

// Client performs a single authenticated lookup per call. It never retries.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time
	logger     *slog.Logger
}

// NewClient builds a client. A nil httpClient gets one with cfg.Timeout.
func NewClient(cfg Config, httpClient *http.Client, now func() time.Time, logger *slog.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, httpClient: httpClient, now: now, logger: logger}
}

type lookupRequest struct {
	ApplicationID int    `json:"IdAplicacion"`
	Password      string `json:"Contrasenia"`
	Token         string `json:"TokenValue"`
	Timestamp     string `json:"TimeStamp"`
	CUIL          string `json:"CUIL"`
	OperatorCUIL  string `json:"CUILOperador"`
	OperatorHash  string `json:"HashCookieOperador"`
}

type lookupResponse struct {
	Respuesta struct {
		CodigoError any    `json:"CodigoError"`
		Resultado   string `json:"Resultado"`
	} `json:"Respuesta"`
	NombreFormateado string `json:"NombreFormateado"`
	CuilFormateado   string `json:"CuilFormateado"`
	CUIL             string `json:"CUIL"`
	Domicilio        *struct {
		Localidad string `json:"Localidad"`
	} `json:"Domicilio"`
	TelFormateado string `json:"TelFormateado"`
	CelFormateado string `json:"CelFormateado"`
}

// Lookup queries the identity service for identityNumber.
func (c *Client) Lookup(ctx context.Context, identityNumber string) (person Person, err error) {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = c.logger
	}
	logger = logger.With("component", "identity", "cuil", identityNumber)

	start := c.now()
	defer func() {
		if err != nil {
			logger.WarnContext(ctx, "identity lookup failed", "error", err, "duration", time.Since(start))
			return
		}
		logger.InfoContext(ctx, "identity lookup succeeded", "duration", time.Since(start))
	}()

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	timestamp := Timestamp(c.now().In(c.cfg.Location))
	body, err := json.Marshal(lookupRequest{
		ApplicationID: c.cfg.ApplicationID,
		Password:      c.cfg.Password,
		Token:         Token(timestamp, c.cfg.AppKey),
		Timestamp:     timestamp,
		CUIL:          identityNumber,
		OperatorCUIL:  c.cfg.OperatorCUIL,
		OperatorHash:  c.cfg.OperatorHash,
	})
	if err != nil {
		return Person{}, fmt.Errorf("identity: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return Person{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Person{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return Person{}, fmt.Errorf("%w: status %d", ErrServiceUnavailable, resp.StatusCode)
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Person{}, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
		return Person{}, fmt.Errorf("%w: decode response: %v", ErrServiceUnavailable, err)
	}

	if code, failed := errorCode(payload.Respuesta.CodigoError); failed {
		message := strings.TrimSpace(payload.Respuesta.Resultado)
		if message == "" {
			message = "La API devolvió un error desconocido."
		}
		return Person{}, &RejectedError{Code: code, Message: message}
	}

	person = Person{
		Name:              strings.TrimSpace(payload.NombreFormateado),
		IdentityNumber:    strings.TrimSpace(payload.CUIL),
		FormattedIdentity: strings.TrimSpace(payload.CuilFormateado),
		Locality:          NotAvailable,
		Phone:             NotAvailable,
	}
	if person.IdentityNumber == "" {
		person.IdentityNumber = identityNumber
	}
	if payload.Domicilio != nil && strings.TrimSpace(payload.Domicilio.Localidad) != "" {
		person.Locality = strings.TrimSpace(payload.Domicilio.Localidad)
	}
	switch {
	case strings.TrimSpace(payload.TelFormateado) != "":
		person.Phone = strings.TrimSpace(payload.TelFormateado)
	case strings.TrimSpace(payload.CelFormateado) != "":
		person.Phone = strings.TrimSpace(payload.CelFormateado)
	}
	return person, nil
}

// errorCode reports whether the service-level error code is set.
// Missing, null, false, zero and empty values mean success.
func errorCode(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case bool:
		return strconv.FormatBool(v), v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), v != 0
	case string:
		return v, v != ""
	default:
		return fmt.Sprint(v), true
	}
}

package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sakif/pluk/internal/apperror"
	"github.com/sakif/pluk/internal/model"
)

// DefaultIdentityBaseURL is the Google Identity Toolkit REST endpoint.
const DefaultIdentityBaseURL = "https://identitytoolkit.googleapis.com/v1"

// Remote talks to an Identity-Toolkit-compatible REST provider
// (accounts:signUp, accounts:signInWithPassword, accounts:sendOobCode).
// The provider owns credentials; nothing secret is stored locally.
type Remote struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

var _ Directory = (*Remote)(nil)

// NewRemote uses DefaultIdentityBaseURL when baseURL is empty.
func NewRemote(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger) *Remote {
	if baseURL == "" {
		baseURL = DefaultIdentityBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

type credentialsRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type accountResponse struct {
	LocalID string `json:"localId"`
	Email   string `json:"email"`
}

type oobRequest struct {
	RequestType string `json:"requestType"`
	Email       string `json:"email"`
}

// providerError is the body the provider sends with any non-2xx status:
//
//	{"error": {"code": 400, "message": "WEAK_PASSWORD : Password should be at least 6 characters"}}
type providerError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (d *Remote) Register(ctx context.Context, email, password string) (*model.Account, error) {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	var resp accountResponse
	if err := d.call(ctx, "accounts:signUp", credentialsRequest{email, password, true}, &resp, email); err != nil {
		return nil, err
	}

	d.logger.Info("account registered with identity provider", "email", email)
	return d.account(resp, email), nil
}

func (d *Remote) Authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperror.InvalidCredentials()
	}

	var resp accountResponse
	if err := d.call(ctx, "accounts:signInWithPassword", credentialsRequest{email, password, true}, &resp, email); err != nil {
		return nil, err
	}
	return d.account(resp, email), nil
}

// SetSecurityQuestion is not offered by hosted providers; they recover
// accounts by email instead.
func (d *Remote) SetSecurityQuestion(context.Context, string, string, string) error {
	return apperror.ValidationFailed("question",
		"security questions are not available with this account provider")
}

// SendPasswordReset asks the provider to email a reset link.
func (d *Remote) SendPasswordReset(ctx context.Context, email string) error {
	email = NormalizeEmail(email)
	if err := ValidateEmail(email); err != nil {
		return err
	}
	err := d.call(ctx, "accounts:sendOobCode", oobRequest{RequestType: "PASSWORD_RESET", Email: email}, nil, email)
	if errors.Is(err, apperror.ErrUnauthorized) {
		return apperror.AccountNotFound(email)
	}
	return err
}

func (d *Remote) account(resp accountResponse, email string) *model.Account {
	now := time.Now().UTC()
	acc := &model.Account{ID: resp.LocalID, Email: NormalizeEmail(resp.Email), CreatedAt: now, UpdatedAt: now}
	if acc.Email == "" {
		acc.Email = email
	}
	if acc.ID == "" {
		acc.ID = acc.Email
	}
	return acc
}

// call POSTs body to method and decodes a 2xx response into out (when
// non-nil). Every failure comes back as an *apperror.AppError.
func (d *Remote) call(ctx context.Context, method string, body, out any, email string) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return apperror.ProviderFailure(fmt.Errorf("directory: encoding %s: %w", method, err))
	}

	endpoint := fmt.Sprintf("%s/%s?key=%s", d.baseURL, method, url.QueryEscape(d.apiKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return apperror.ProviderFailure(fmt.Errorf("directory: building %s request: %w", method, err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("identity provider unreachable", "method", method, "error", err)
		return apperror.ProviderFailure(fmt.Errorf("directory: calling %s: %w", method, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var pe providerError
		_ = json.NewDecoder(resp.Body).Decode(&pe)
		code := ProviderCode(pe.Error.Message)
		d.logger.Info("identity provider rejected request",
			"method", method,
			"status", resp.StatusCode,
			"code", code,
		)
		return translate(code, email, fmt.Errorf("directory: %s returned %d %s", method, resp.StatusCode, code))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.ProviderFailure(fmt.Errorf("directory: decoding %s response: %w", method, err))
	}
	return nil
}

// ProviderCode extracts the leading code from a provider message such as
// "WEAK_PASSWORD : Password should be at least 6 characters".
func ProviderCode(message string) string {
	code, _, _ := strings.Cut(message, ":")
	code = strings.TrimSpace(code)
	if i := strings.IndexByte(code, ' '); i >= 0 {
		code = code[:i]
	}
	return code
}

// translate maps provider codes onto the local error taxonomy. Unknown codes
// are treated as an outage.
func translate(code, email string, cause error) error {
	switch code {
	case "EMAIL_EXISTS":
		return apperror.DuplicateAccount(email)
	case "WEAK_PASSWORD":
		return apperror.WeakPassword(MinPasswordLength)
	case "INVALID_PASSWORD", "EMAIL_NOT_FOUND", "INVALID_LOGIN_CREDENTIALS", "USER_DISABLED":
		return apperror.InvalidCredentials()
	case "INVALID_EMAIL", "MISSING_EMAIL":
		return apperror.ValidationFailed("email", "enter a valid email address")
	default:
		return apperror.ProviderFailure(cause)
	}
}

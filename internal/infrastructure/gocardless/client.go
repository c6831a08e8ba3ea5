// Package gocardless implements the open-banking aggregator API used to
// obtain bank consents and pull account transactions.
package gocardless

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"banksync/internal/domain/requisition"
	"banksync/internal/domain/transaction"
)

const (
	baseURL          = "https://bankaccountdata.gocardless.com/api/v2"
	defaultTimeout   = 60 * time.Second
	tokenPath        = "/token/new/"
	requisitionsPath = "/requisitions/"
	accountsPath     = "/accounts/"
	institutionsPath = "/institutions/"

	// tokenExpirySkew forces a refresh slightly before the aggregator
	// would reject the token.
	tokenExpirySkew = 60 * time.Second
)

// ErrUnavailable marks transport failures and aggregator 5xx responses.
// Callers leave these for the next scheduled cycle instead of retrying.
var ErrUnavailable = errors.New("aggregator unavailable")

// Client handles communication with the aggregator's bank account data API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	secretID   string
	secretKey  string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

var (
	_ requisition.AggregatorClient = (*Client)(nil)
	_ transaction.Source           = (*Client)(nil)
)

// NewClient creates a new aggregator API client.
func NewClient(secretID, secretKey string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		baseURL:   baseURL,
		secretID:  secretID,
		secretKey: secretKey,
	}
}

type tokenResponse struct {
	Access        string `json:"access"`
	AccessExpires int    `json:"access_expires"`
}

type requisitionResponse struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Link     string   `json:"link"`
	Accounts []string `json:"accounts"`
}

type requisitionListResponse struct {
	Count   int                   `json:"count"`
	Results []requisitionResponse `json:"results"`
}

type transactionsResponse struct {
	Transactions struct {
		Booked []rawTransaction `json:"booked"`
	} `json:"transactions"`
}

// rawTransaction is one booked posting as the aggregator serializes it.
type rawTransaction struct {
	EntryReference    string `json:"entryReference"`
	BookingDateString string `json:"bookingDate"` // "2006-01-02" format
	TransactionAmount struct {
		Amount   string `json:"amount"` // API returns amount as string
		Currency string `json:"currency"`
	} `json:"transactionAmount"`
	AdditionalInformation string `json:"additionalInformation"`
}

// GetBookingDate parses and returns the booking date if present.
func (t *rawTransaction) GetBookingDate() (*time.Time, error) {
	if t.BookingDateString == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", t.BookingDateString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bookingDate '%s': %w", t.BookingDateString, err)
	}
	return &parsed, nil
}

// GetAmount returns the amount as a decimal.
func (t *rawTransaction) GetAmount() (decimal.Decimal, error) {
	if t.TransactionAmount.Amount == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(t.TransactionAmount.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse amount '%s': %w", t.TransactionAmount.Amount, err)
	}
	return amount, nil
}

// Institution is one bank the aggregator can link to.
type Institution struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type errorResponse struct {
	Summary string `json:"summary"`
	Detail  string `json:"detail"`
}

// CreateAuthorization opens a new requisition with the aggregator and
// returns its id together with the consent link the user must follow.
func (c *Client) CreateAuthorization(ctx context.Context, institutionID, redirectURL string) (*requisition.Authorization, error) {
	payload := map[string]string{
		"institution_id": institutionID,
		"redirect":       redirectURL,
	}
	var resp requisitionResponse
	if err := c.do(ctx, http.MethodPost, requisitionsPath, nil, payload, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" || resp.Link == "" {
		return nil, fmt.Errorf("aggregator returned incomplete requisition (id=%q link=%q)", resp.ID, resp.Link)
	}
	return &requisition.Authorization{
		RequisitionID: resp.ID,
		ConsentLink:   resp.Link,
	}, nil
}

// GetAuthorizationStatus returns the aggregator's current view of a
// requisition: its raw status code, linked accounts, and consent link.
func (c *Client) GetAuthorizationStatus(ctx context.Context, requisitionID string) (*requisition.AuthorizationStatus, error) {
	var resp requisitionResponse
	if err := c.do(ctx, http.MethodGet, requisitionsPath+requisitionID+"/", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &requisition.AuthorizationStatus{
		Status:      resp.Status,
		AccountIDs:  resp.Accounts,
		ConsentLink: resp.Link,
	}, nil
}

// ListAuthorizations returns one page of requisition ids.
func (c *Client) ListAuthorizations(ctx context.Context, limit, offset int) ([]string, error) {
	query := url.Values{}
	query.Set("limit", fmt.Sprint(limit))
	query.Set("offset", fmt.Sprint(offset))

	var resp requisitionListResponse
	if err := c.do(ctx, http.MethodGet, requisitionsPath, query, nil, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Results))
	for _, r := range resp.Results {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// DeleteAuthorization removes a requisition on the aggregator side.
func (c *Client) DeleteAuthorization(ctx context.Context, requisitionID string) error {
	return c.do(ctx, http.MethodDelete, requisitionsPath+requisitionID+"/", nil, nil, nil)
}

// GetAccountTransactions fetches the booked postings of a bank account
// from the given date onward.
func (c *Client) GetAccountTransactions(ctx context.Context, accountID string, since time.Time) ([]transaction.RawRecord, error) {
	query := url.Values{}
	query.Set("date_from", since.Format("2006-01-02"))

	var resp transactionsResponse
	if err := c.do(ctx, http.MethodGet, accountsPath+accountID+"/transactions/", query, nil, &resp); err != nil {
		return nil, err
	}

	records := make([]transaction.RawRecord, 0, len(resp.Transactions.Booked))
	for i := range resp.Transactions.Booked {
		raw := &resp.Transactions.Booked[i]
		bookingDate, err := raw.GetBookingDate()
		if err != nil {
			return nil, err
		}
		amount, err := raw.GetAmount()
		if err != nil {
			return nil, err
		}
		records = append(records, transaction.RawRecord{
			EntryReference: raw.EntryReference,
			BookingDate:    bookingDate,
			Narrative:      raw.AdditionalInformation,
			Amount:         amount,
			Currency:       raw.TransactionAmount.Currency,
		})
	}
	return records, nil
}

// ListInstitutions returns the banks available for linking in a country.
func (c *Client) ListInstitutions(ctx context.Context, country string) ([]Institution, error) {
	query := url.Values{}
	query.Set("country", country)

	var institutions []Institution
	if err := c.do(ctx, http.MethodGet, institutionsPath, query, nil, &institutions); err != nil {
		return nil, err
	}
	return institutions, nil
}

// token returns a valid access token, requesting a fresh one when the
// cached token is missing or close to expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenExpirySkew)) {
		return c.accessToken, nil
	}

	payload := map[string]string{
		"secret_id":  c.secretID,
		"secret_key": c.secretKey,
	}
	var resp tokenResponse
	if err := c.doUnauthenticated(ctx, http.MethodPost, tokenPath, payload, &resp); err != nil {
		return "", fmt.Errorf("obtain access token: %w", err)
	}
	if resp.Access == "" {
		return "", fmt.Errorf("aggregator returned an empty access token")
	}

	c.accessToken = resp.Access
	c.tokenExpiry = time.Now().Add(time.Duration(resp.AccessExpires) * time.Second)
	return c.accessToken, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}
	return c.request(ctx, method, path, query, payload, out, token)
}

func (c *Client) doUnauthenticated(ctx context.Context, method, path string, payload, out any) error {
	return c.request(ctx, method, path, nil, payload, out, "")
}

func (c *Client) request(ctx context.Context, method, path string, query url.Values, payload, out any, token string) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, summarize(respBody))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		var errResp errorResponse
		if err := json.Unmarshal(respBody, &errResp); err != nil || errResp.Summary == "" {
			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, summarize(respBody))
		}
		return fmt.Errorf("API error (status %d): %s - %s", resp.StatusCode, errResp.Summary, errResp.Detail)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func summarize(body []byte) string {
	const max = 512
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
